// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/blockfile/zfile/lib/zfcodec"
)

var errBuilderClosed = errors.New("builder is closed")

func errRangeBlockSize(size uint32) error {
	return fmt.Errorf("block size %d out of range [%d, %d]", size, MinBlockSize, MaxReadSize)
}

const (
	// MinBlockSize is the smallest permitted CompressOptions.BlockSize.
	MinBlockSize = 4 << 10
	// MaxReadSize bounds both CompressOptions.BlockSize and the
	// reader's read-ahead buffer.
	MaxReadSize = 4 << 20
)

// BuilderConfig configures a [Builder] or [MultiBuilder] at construction.
type BuilderConfig struct {
	// CompressOptions is the full persisted option set.
	CompressOptions CompressOptions
	// OverwriteHeader, if true, copies the trailer's populated record
	// back to offset 0 on Close, so a reader can load full metadata
	// from a single positioned read.
	OverwriteHeader bool
	// Observer receives per-block notifications. Defaults to
	// [NopObserver] if nil.
	Observer Observer
	// TakeOwnership, if true, makes Close call Backend.Close as well.
	TakeOwnership bool
}

func (c BuilderConfig) observer() Observer {
	if c.Observer != nil {
		return c.Observer
	}
	return NopObserver{}
}

// Builder is the single-stream zfile container builder: it accepts
// arbitrary-sized writes, chops them into fixed raw blocks, compresses
// each with the configured codec, and appends the compressed block
// (plus trailing CRC, if CompressOptions.Verify) to the backing file.
// Block order in the backing file is exactly the order data was
// written.
type Builder struct {
	backend Backend
	codec   zfcodec.Codec
	cfg     BuilderConfig

	blockSize uint32
	verify    bool

	reserved     []byte // tail buffer, len < blockSize
	blockLengths []uint32
	rawTotal     int64
	closed       bool
}

// NewBuilder constructs a [Builder] writing to backend. It writes the
// provisional header record immediately.
func NewBuilder(backend Backend, cfg BuilderConfig) (*Builder, error) {
	if cfg.CompressOptions.BlockSize < MinBlockSize || cfg.CompressOptions.BlockSize > MaxReadSize {
		return nil, newErr(ErrKindConfig, "init", errRangeBlockSize(cfg.CompressOptions.BlockSize))
	}
	codec, err := zfcodec.New(zfcodec.Algorithm(cfg.CompressOptions.Algorithm), int(cfg.CompressOptions.Level))
	if err != nil {
		return nil, newErr(ErrKindConfig, "init", err)
	}

	b := &Builder{
		backend:   backend,
		codec:     codec,
		cfg:       cfg,
		blockSize: cfg.CompressOptions.BlockSize,
		verify:    cfg.CompressOptions.Verify,
	}
	if err := b.writeProvisionalHeader(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Builder) writeProvisionalHeader() error {
	rec := HeaderTrailer{
		Flags:   FlagHeader | FlagDataIndex,
		Options: b.cfg.CompressOptions,
	}
	buf := rec.marshal()
	if _, err := b.backend.Pwrite(buf[:], 0); err != nil {
		return newErr(ErrKindIO, "init", err)
	}
	return nil
}

// Write appends p to the logical stream. It always consumes all of p
// on success; partial consumption only happens via a non-nil error.
func (b *Builder) Write(p []byte) (int, error) {
	if b.closed {
		return 0, newErr(ErrKindConfig, "write", errBuilderClosed)
	}

	n := len(p)
	b.rawTotal += int64(n)

	for len(p) > 0 {
		if len(b.reserved) > 0 {
			need := int(b.blockSize) - len(b.reserved)
			take := need
			if take > len(p) {
				take = len(p)
			}
			b.reserved = append(b.reserved, p[:take]...)
			p = p[take:]
			if len(b.reserved) < int(b.blockSize) {
				continue
			}
			if err := b.emitBlock(b.reserved); err != nil {
				return n - len(p), err
			}
			b.reserved = b.reserved[:0]
			continue
		}

		if len(p) >= int(b.blockSize) {
			if err := b.emitBlock(p[:b.blockSize]); err != nil {
				return n - len(p), err
			}
			p = p[b.blockSize:]
			continue
		}

		b.reserved = append(b.reserved[:0], p...)
		p = nil
	}

	return n, nil
}

// emitBlock compresses raw, appends CRC if configured, and writes the
// result to the backend, recording its on-disk length.
func (b *Builder) emitBlock(raw []byte) error {
	dst := make([]byte, b.codec.MaxCompressedLen(len(raw))+4)
	n, err := b.codec.Compress(raw, dst)
	if err != nil {
		return newErr(ErrKindCodec, "write", err)
	}
	out := dst[:n]
	if b.verify {
		var crcBuf [4]byte
		binary.LittleEndian.PutUint32(crcBuf[:], crc32cSalted(out))
		out = append(out, crcBuf[:]...)
	}

	if _, err := b.backend.Append(out); err != nil {
		return newErr(ErrKindIO, "write", err)
	}
	b.blockLengths = append(b.blockLengths, uint32(len(out)))
	b.cfg.observer().OnBlockWrite(len(b.blockLengths)-1, len(out))
	return nil
}

// Close flushes any buffered tail block, writes the block-length
// index, writes the trailer, and optionally copies the trailer's
// record back to offset 0.
func (b *Builder) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	if len(b.reserved) > 0 {
		if err := b.emitBlock(b.reserved); err != nil {
			return err
		}
		b.reserved = nil
	}

	if err := finalizeContainer(b.backend, b.blockLengths, b.rawTotal, b.cfg); err != nil {
		return err
	}
	return b.codec.Close()
}

// finalizeContainer writes the block-length index and trailer shared
// by the single-stream and multi-worker builders (and the whole-file
// compress path), and optionally copies the trailer back to offset 0.
func finalizeContainer(backend Backend, blockLengths []uint32, rawTotal int64, cfg BuilderConfig) error {
	stat, err := backend.Fstat()
	if err != nil {
		return newErr(ErrKindIO, "close", err)
	}
	indexOffset := stat.Size

	indexBuf := make([]byte, 4*len(blockLengths))
	for i, l := range blockLengths {
		binary.LittleEndian.PutUint32(indexBuf[i*4:i*4+4], l)
	}
	if _, err := backend.Append(indexBuf); err != nil {
		return newErr(ErrKindIO, "close", err)
	}

	trailer := HeaderTrailer{
		Flags:            FlagDataIndex | FlagSealed | FlagDigestEnabled,
		IndexOffset:      indexOffset,
		IndexSize:        int64(len(blockLengths)),
		OriginalFileSize: rawTotal,
		IndexCRC:         crc32cPlain(indexBuf),
		Options:          cfg.CompressOptions,
	}
	buf := trailer.marshal()
	if _, err := backend.Append(buf[:]); err != nil {
		return newErr(ErrKindIO, "close", err)
	}

	if cfg.OverwriteHeader {
		overwrite := trailer
		overwrite.Flags |= FlagHeader | FlagHeaderOverwrite
		obuf := overwrite.marshal()
		if _, err := backend.Pwrite(obuf[:], 0); err != nil {
			return newErr(ErrKindIO, "close", err)
		}
	}

	if cfg.TakeOwnership {
		if err := backend.Close(); err != nil {
			return newErr(ErrKindIO, "close", err)
		}
	}
	return nil
}
