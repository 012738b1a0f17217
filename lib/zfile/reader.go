// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/blockfile/zfile/lib/zfcodec"
)

// maxCRCRetries bounds the per-block trim-and-reread budget in [Reader.Pread].
const maxCRCRetries = 3

var (
	errNotHeader      = errors.New("record at offset 0 is not a header record")
	errTooShort       = errors.New("backing file is shorter than one record")
	errNotSealed      = errors.New("trailer is not sealed")
	errIndexCRC       = errors.New("block-length index CRC mismatch")
	errNegativeOffset = errors.New("negative offset")
)

func errBlockCRC(index int) error {
	return fmt.Errorf("block %d CRC mismatch after %d retries", index, maxCRCRetries)
}

// ReaderConfig configures [Open].
type ReaderConfig struct {
	// Verify enables per-block CRC checking (for containers built with
	// CompressOptions.Verify) and the open-time retry-on-corruption
	// policy. Disable only for trusted, already validated containers.
	Verify bool
	// Observer receives per-block notifications. Defaults to
	// [NopObserver] if nil.
	Observer Observer
	// TakeOwnership, if true, makes Close call Backend.Close as well.
	TakeOwnership bool
}

func (c ReaderConfig) observer() Observer {
	if c.Observer != nil {
		return c.Observer
	}
	return NopObserver{}
}

// Reader serves random-access reads of the logical (decompressed)
// content of a zfile container. It is purely synchronous: all
// concurrency is left to the caller.
type Reader struct {
	backend Backend
	codec   zfcodec.Codec
	cfg     ReaderConfig

	header    HeaderTrailer
	jumpTable *JumpTable

	validateOnly bool
	closed       bool
}

// Open loads and validates a container's header, trailer, and index,
// and builds its jump table. If cfg.Verify is set and any validation
// step fails, Open evicts the whole file from any backend cache via
// [Backend.Fallocate] and retries once before giving up — this
// recovers from a backend whose cache returned stale bytes on the
// first attempt.
func Open(backend Backend, cfg ReaderConfig) (*Reader, error) {
	r, err := tryOpen(backend, cfg)
	if err == nil {
		return r, nil
	}
	if !cfg.Verify {
		return nil, err
	}
	if fErr := backend.Fallocate(true); fErr != nil {
		return nil, err
	}
	return tryOpen(backend, cfg)
}

func tryOpen(backend Backend, cfg ReaderConfig) (*Reader, error) {
	var headBuf [RecordSize]byte
	if _, err := backend.Pread(headBuf[:], 0); err != nil {
		return nil, newErr(ErrKindIO, "open", err)
	}
	header, err := unmarshalHeaderTrailer(headBuf[:])
	if err != nil {
		return nil, newErr(ErrKindFormat, "open", err)
	}
	if !header.IsHeader() {
		return nil, newErr(ErrKindFormat, "open", errNotHeader)
	}

	trailer := header
	if !header.HeaderOverwrite() {
		stat, err := backend.Fstat()
		if err != nil {
			return nil, newErr(ErrKindIO, "open", err)
		}
		if stat.Size < RecordSize {
			return nil, newErr(ErrKindFormat, "open", errTooShort)
		}
		var tailBuf [RecordSize]byte
		if _, err := backend.Pread(tailBuf[:], stat.Size-RecordSize); err != nil {
			return nil, newErr(ErrKindIO, "open", err)
		}
		trailer, err = unmarshalHeaderTrailer(tailBuf[:])
		if err != nil {
			return nil, newErr(ErrKindFormat, "open", err)
		}
	}
	if !trailer.Sealed() {
		return nil, newErr(ErrKindFormat, "open", errNotSealed)
	}

	indexBuf := make([]byte, 4*trailer.IndexSize)
	if len(indexBuf) > 0 {
		if _, err := backend.Pread(indexBuf, trailer.IndexOffset); err != nil {
			return nil, newErr(ErrKindIO, "open", err)
		}
	}
	if trailer.DigestEnabled() {
		if crc32cPlain(indexBuf) != trailer.IndexCRC {
			return nil, newErr(ErrKindChecksum, "open", errIndexCRC)
		}
	}

	blockLengths := make([]uint32, trailer.IndexSize)
	for i := range blockLengths {
		blockLengths[i] = binary.LittleEndian.Uint32(indexBuf[i*4 : i*4+4])
	}

	dataStart := int64(RecordSize) + int64(trailer.Options.DictSize)
	jt, err := buildJumpTable(blockLengths, trailer.Options.BlockSize, trailer.Options.Verify, dataStart)
	if err != nil {
		return nil, newErr(ErrKindRange, "open", err)
	}

	codec, err := zfcodec.New(zfcodec.Algorithm(trailer.Options.Algorithm), int(trailer.Options.Level))
	if err != nil {
		return nil, newErr(ErrKindConfig, "open", err)
	}

	return &Reader{
		backend:   backend,
		codec:     codec,
		cfg:       cfg,
		header:    trailer,
		jumpTable: jt,
	}, nil
}

// SetValidateOnly switches the reader between serving decompressed
// content (false) and CRC-only validation mode (true), where Pread
// checks every intersecting block's CRC but never decompresses. Used
// by [Validate].
func (r *Reader) SetValidateOnly(v bool) { r.validateOnly = v }

// Size returns the logical (decompressed) size of the container's
// content, matching the original_file_size recorded at build time.
func (r *Reader) Size() int64 { return r.header.OriginalFileSize }

// BlockCount returns the number of compressed blocks in the container.
func (r *Reader) BlockCount() int { return r.jumpTable.BlockCount() }

// Pread fills buf with the logical bytes in [offset, offset+len(buf)),
// clamped to the container's logical size, decompressing only the
// blocks intersecting the requested range.
func (r *Reader) Pread(buf []byte, offset int64) (int, error) {
	return r.pread(buf, int64(len(buf)), offset)
}

// Prefetch performs the same backend reads and verification as Pread
// over [offset, offset+count) without decompressing or copying
// anything, warming any lower-layer cache, and returns the logical
// byte count it would have produced.
func (r *Reader) Prefetch(offset, count int64) (int, error) {
	return r.pread(nil, count, offset)
}

func (r *Reader) pread(dst []byte, want, offset int64) (int, error) {
	if offset < 0 {
		return 0, newErr(ErrKindRange, "pread", errNegativeOffset)
	}
	if offset >= r.header.OriginalFileSize || want <= 0 {
		return 0, nil
	}
	if offset+want > r.header.OriginalFileSize {
		want = r.header.OriginalFileSize - offset
	}

	blockSize := int64(r.header.Options.BlockSize)
	beginBlock := int(offset / blockSize)
	endBlock := int((offset + want - 1) / blockSize)

	var span []byte
	spanBegin, spanEnd := -1, -1
	var spanByteStart int64
	var produced int64

	for i := beginBlock; i <= endBlock; i++ {
		if i < spanBegin || i >= spanEnd {
			spanBegin = i
			start, err := r.jumpTable.Offset(i)
			if err != nil {
				return int(produced), newErr(ErrKindRange, "pread", err)
			}
			spanByteStart = start

			total := int64(0)
			spanEnd = i
			for spanEnd <= endBlock {
				l := r.blockOnDiskLen(spanEnd)
				if spanEnd > spanBegin && total+l > MaxReadSize {
					break
				}
				total += l
				spanEnd++
			}

			span = make([]byte, total)
			if _, err := r.backend.Pread(span, spanByteStart); err != nil {
				return int(produced), newErr(ErrKindIO, "pread", err)
			}
		}

		blockOff, err := r.jumpTable.Offset(i)
		if err != nil {
			return int(produced), newErr(ErrKindRange, "pread", err)
		}
		blockLen := r.blockOnDiskLen(i)
		localOff := blockOff - spanByteStart
		raw := span[localOff : localOff+blockLen]

		n, err := r.consumeBlock(i, raw, blockOff, blockLen, offset, want, produced, dst)
		if err != nil {
			return int(produced), err
		}
		produced += n
	}

	return int(produced), nil
}

// blockOnDiskLen returns block i's exact on-disk length (including
// the trailing CRC, if any), derived from consecutive jump-table
// offsets, or the residual span to index_offset for the final block.
func (r *Reader) blockOnDiskLen(i int) int64 {
	start, _ := r.jumpTable.Offset(i)
	if i+1 < r.jumpTable.BlockCount() {
		next, _ := r.jumpTable.Offset(i + 1)
		return next - start
	}
	return r.header.IndexOffset - start
}

// blockRawLen returns block i's decompressed length: block_size for
// every block except possibly the last.
func (r *Reader) blockRawLen(i int) int {
	blockSize := int64(r.header.Options.BlockSize)
	if i == r.jumpTable.BlockCount()-1 {
		return int(r.header.OriginalFileSize - int64(i)*blockSize)
	}
	return int(blockSize)
}

// blockLogicalSpan computes how many logical bytes block i contributes
// to the current request and at what offset within the block's
// decompressed content that contribution starts.
func (r *Reader) blockLogicalSpan(i int, reqOffset, reqWant int64) (length, start int64) {
	blockSize := int64(r.header.Options.BlockSize)
	blockLogicalStart := int64(i) * blockSize
	blockLogicalEnd := blockLogicalStart + blockSize
	if blockLogicalEnd > r.header.OriginalFileSize {
		blockLogicalEnd = r.header.OriginalFileSize
	}

	reqEnd := reqOffset + reqWant
	spanStart := reqOffset
	if blockLogicalStart > spanStart {
		spanStart = blockLogicalStart
	}
	spanEnd := reqEnd
	if blockLogicalEnd < spanEnd {
		spanEnd = blockLogicalEnd
	}

	return spanEnd - spanStart, spanStart - blockLogicalStart
}

// consumeBlock verifies, and (unless in validate-only mode)
// decompresses and copies, one block's contribution to the caller's
// request. On checksum or codec failure it retries up to
// maxCRCRetries times, trimming the block from the backend's cache
// before each reread.
func (r *Reader) consumeBlock(index int, raw []byte, blockOff, blockLen, reqOffset, reqWant, produced int64, dst []byte) (int64, error) {
	logicalLen, logicalStart := r.blockLogicalSpan(index, reqOffset, reqWant)
	blockRawLen := r.blockRawLen(index)

	var directDst []byte
	direct := dst != nil && logicalStart == 0 && logicalLen == int64(blockRawLen)
	if direct {
		directDst = dst[produced : produced+logicalLen]
	}

	for attempt := 0; ; attempt++ {
		payload := raw
		if r.header.Options.Verify {
			payload = raw[:len(raw)-4]
		}
		if r.header.Options.Verify && r.cfg.Verify {
			want := binary.LittleEndian.Uint32(raw[len(raw)-4:])
			if crc32cSalted(payload) != want {
				if reread, ok := r.retry(&attempt, blockOff, blockLen); ok {
					raw = reread
					continue
				}
				return 0, newErr(ErrKindChecksum, "pread", errBlockCRC(index))
			}
		}

		if r.validateOnly || dst == nil {
			// Validate-only mode and prefetch mode both skip
			// decompression: the former only wants the CRC check above,
			// the latter only wants the backend read to have happened.
			r.cfg.observer().OnBlockRead(index, len(raw), int(logicalLen))
			return logicalLen, nil
		}

		if direct {
			if _, err := r.codec.Decompress(payload, directDst); err != nil {
				if reread, ok := r.retry(&attempt, blockOff, blockLen); ok {
					raw = reread
					continue
				}
				return 0, newErr(ErrKindCodec, "pread", err)
			}
		} else {
			scratch := make([]byte, blockRawLen)
			if _, err := r.codec.Decompress(payload, scratch); err != nil {
				if reread, ok := r.retry(&attempt, blockOff, blockLen); ok {
					raw = reread
					continue
				}
				return 0, newErr(ErrKindCodec, "pread", err)
			}
			if dst != nil {
				copy(dst[produced:produced+logicalLen], scratch[logicalStart:logicalStart+logicalLen])
			}
		}

		r.cfg.observer().OnBlockRead(index, len(raw), int(logicalLen))
		return logicalLen, nil
	}
}

// retry evicts [blockOff, blockOff+blockLen) from the backend's cache
// and rereads it, if the attempt budget is not exhausted. attempt is
// advanced by the caller's for loop; retry only inspects it.
func (r *Reader) retry(attempt *int, blockOff, blockLen int64) ([]byte, bool) {
	if *attempt >= maxCRCRetries {
		return nil, false
	}
	if err := r.backend.Trim(blockOff, blockLen); err != nil {
		return nil, false
	}
	buf := make([]byte, blockLen)
	if _, err := r.backend.Pread(buf, blockOff); err != nil {
		return nil, false
	}
	return buf, true
}

// Close releases the reader. If the reader took ownership of its
// backend, it is closed as well.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.codec.Close(); err != nil {
		return err
	}
	if r.cfg.TakeOwnership {
		return r.backend.Close()
	}
	return nil
}
