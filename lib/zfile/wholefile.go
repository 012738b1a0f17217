// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/blockfile/zfile/lib/zfcodec"
)

// Identity is the three-way result of [Identify].
type Identity int

const (
	// NotZFile means the first 512 bytes do not carry the zfile magic.
	NotZFile Identity = iota
	// ValidZFile means the header record's magic and self-digest check out.
	ValidZFile
	// CorruptZFile means the magic is present but the self-digest does not match.
	CorruptZFile
)

func (i Identity) String() string {
	switch i {
	case NotZFile:
		return "not-zfile"
	case ValidZFile:
		return "valid-zfile"
	case CorruptZFile:
		return "corrupt-zfile"
	default:
		return "unknown"
	}
}

// Compress reads all of src, compresses it per opts into a new zfile
// container written to dst, and returns the number of raw bytes
// consumed. It batches reads through the codec's preferred batch
// width for throughput, exactly mirroring the single-stream builder's
// on-disk layout for the same input.
func Compress(dst Backend, src io.Reader, opts CompressOptions, observer Observer) (int64, error) {
	if opts.BlockSize < MinBlockSize || opts.BlockSize > MaxReadSize {
		return 0, newErr(ErrKindConfig, "compress", errRangeBlockSize(opts.BlockSize))
	}
	codec, err := zfcodec.New(zfcodec.Algorithm(opts.Algorithm), int(opts.Level))
	if err != nil {
		return 0, newErr(ErrKindConfig, "compress", err)
	}
	defer codec.Close()
	if observer == nil {
		observer = NopObserver{}
	}

	cfg := BuilderConfig{CompressOptions: opts, Observer: observer}
	rec := HeaderTrailer{Flags: FlagHeader | FlagDataIndex, Options: opts}
	buf := rec.marshal()
	if _, err := dst.Pwrite(buf[:], 0); err != nil {
		return 0, newErr(ErrKindIO, "compress", err)
	}

	batchWidth := codec.NBatch()
	chunks := make([][]byte, batchWidth)
	compressed := make([][]byte, batchWidth)
	for i := range chunks {
		chunks[i] = make([]byte, opts.BlockSize)
		compressed[i] = make([]byte, codec.MaxCompressedLen(int(opts.BlockSize))+4)
	}

	var blockLengths []uint32
	var rawTotal int64

	for {
		batchCount, err := fillBatch(src, chunks)
		if batchCount == 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				return rawTotal, newErr(ErrKindIO, "compress", err)
			}
			break
		}

		sizes, cErr := codec.BatchCompress(chunks[:batchCount], compressed[:batchCount])
		if cErr != nil {
			return rawTotal, newErr(ErrKindCodec, "compress", cErr)
		}

		for i := 0; i < batchCount; i++ {
			out := compressed[i][:sizes[i]]
			if opts.Verify {
				var crcBuf [4]byte
				binary.LittleEndian.PutUint32(crcBuf[:], crc32cSalted(out))
				out = append(out, crcBuf[:]...)
			}
			if _, aErr := dst.Append(out); aErr != nil {
				return rawTotal, newErr(ErrKindIO, "compress", aErr)
			}
			blockLengths = append(blockLengths, uint32(len(out)))
			rawTotal += int64(len(chunks[i]))
			observer.OnBlockWrite(len(blockLengths)-1, len(out))
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				return rawTotal, newErr(ErrKindIO, "compress", err)
			}
			break // io.EOF on a short final batch
		}
	}

	return rawTotal, finalizeContainer(dst, blockLengths, rawTotal, cfg)
}

// fillBatch reads up to len(chunks) full opts.BlockSize-sized chunks
// from src, trimming the final chunk to however many bytes were
// actually read. It returns io.EOF alongside a non-zero count when the
// final chunk read was short.
func fillBatch(src io.Reader, chunks [][]byte) (int, error) {
	for i, chunk := range chunks {
		n, err := io.ReadFull(src, chunk)
		if n > 0 && n < len(chunk) {
			chunks[i] = chunk[:n]
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return i + boolToInt(n > 0), io.EOF
			}
			return i, err
		}
	}
	return len(chunks), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Decompress opens container as a zfile [Reader] and streams its full
// logical content to sink.
func Decompress(container Backend, sink io.Writer) error {
	r, err := Open(container, ReaderConfig{Verify: true})
	if err != nil {
		return err
	}
	defer r.Close()

	blockSize := int64(r.header.Options.BlockSize)
	scratch := make([]byte, blockSize)
	for off := int64(0); off < r.Size(); off += blockSize {
		n, err := r.Pread(scratch, off)
		if err != nil {
			return err
		}
		if _, err := sink.Write(scratch[:n]); err != nil {
			return newErr(ErrKindIO, "decompress", err)
		}
	}
	return nil
}

// Identify inspects the first 512 bytes of a container for the zfile
// magic and self-digest, without validating the trailer or index.
func Identify(backend Backend) (Identity, error) {
	var buf [RecordSize]byte
	if _, err := backend.Pread(buf[:], 0); err != nil {
		return NotZFile, newErr(ErrKindIO, "identify", err)
	}
	var gotMagic [8]byte
	copy(gotMagic[:], buf[0:8])
	if gotMagic != magic0Bytes {
		return NotZFile, nil
	}
	if _, err := unmarshalHeaderTrailer(buf[:]); err != nil {
		return CorruptZFile, nil
	}
	return ValidZFile, nil
}

// Validate opens container and checks every block's CRC without
// decompressing, returning a checksum error for the first block that
// fails.
func Validate(backend Backend) error {
	r, err := Open(backend, ReaderConfig{Verify: true})
	if err != nil {
		return err
	}
	defer r.Close()
	r.SetValidateOnly(true)

	blockSize := int64(r.header.Options.BlockSize)
	for off := int64(0); off < r.Size(); off += blockSize {
		if _, err := r.Pread(make([]byte, blockSize), off); err != nil {
			return err
		}
	}
	return nil
}
