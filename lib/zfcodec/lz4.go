// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfcodec

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// defaultBatchWidth is the preferred batch size for codecs without a
// genuinely batched native API; chosen to amortize the per-call
// overhead of the whole-file compress path without holding too many
// blocks in memory at once.
const defaultBatchWidth = 32

// lz4Codec implements [Codec] with block-mode LZ4
// (github.com/pierrec/lz4/v4), using the same CompressBlock /
// UncompressBlock / CompressBlockBound calls as the reference
// compressor this package is modeled on. hashTable is reused across
// calls on this instance to avoid reallocating it per block; per the
// package docs, a hash table must not be shared across concurrent
// callers, which is exactly why [New] hands out one codec per worker.
//
// CompressBlock returns n==0 to mean "could not compress this below
// its original size" rather than an error condition — LZ4 block mode
// has no raw-block representation of its own, so every encoded block
// carries a one-byte tag ahead of the payload identifying whether it
// is lz4-compressed or stored verbatim.
type lz4Codec struct {
	hashTable []int
}

const (
	tagLZ4Compressed byte = 0
	tagLZ4Stored     byte = 1
)

// newLZ4Codec constructs an LZ4 codec. level is currently unused: LZ4
// block mode does not expose a quality knob beyond fast vs.
// high-compression mode, and the fast mode is the right default for
// random-access containers where decode speed dominates.
func newLZ4Codec(level int) Codec {
	return &lz4Codec{hashTable: make([]int, 1<<16)}
}

func (c *lz4Codec) MaxCompressedLen(srcLen int) int {
	bound := lz4.CompressBlockBound(srcLen)
	if srcLen > bound {
		bound = srcLen
	}
	return 1 + bound
}

func (c *lz4Codec) Compress(src, dst []byte) (int, error) {
	if len(dst) < c.MaxCompressedLen(len(src)) {
		return 0, ErrBufferTooSmall
	}
	n, err := lz4.CompressBlock(src, dst[1:], c.hashTable)
	if err != nil {
		return 0, fmt.Errorf("lz4 compress: %w", err)
	}
	// n==0 is lz4's "could not compress" signal; n>=len(src) means
	// compression was not worthwhile. Either way, store verbatim.
	if n == 0 || n >= len(src) {
		dst[0] = tagLZ4Stored
		copy(dst[1:1+len(src)], src)
		return 1 + len(src), nil
	}
	dst[0] = tagLZ4Compressed
	return 1 + n, nil
}

func (c *lz4Codec) Decompress(src, dst []byte) (int, error) {
	if len(src) == 0 {
		return 0, fmt.Errorf("%w: empty block", ErrFormat)
	}
	tag, payload := src[0], src[1:]
	if tag == tagLZ4Stored {
		if len(payload) > len(dst) {
			return 0, fmt.Errorf("%w: stored block has %d bytes, dst holds %d", ErrBufferTooSmall, len(payload), len(dst))
		}
		if len(payload) != len(dst) {
			return 0, fmt.Errorf("lz4 decompress: stored block has %d bytes, want %d", len(payload), len(dst))
		}
		copy(dst, payload)
		return len(dst), nil
	}
	n, err := lz4.UncompressBlock(payload, dst)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if n != len(dst) {
		return n, fmt.Errorf("lz4 decompress: got %d bytes, want %d", n, len(dst))
	}
	return n, nil
}

func (c *lz4Codec) BatchCompress(chunks [][]byte, dst [][]byte) ([]int, error) {
	if len(chunks) != len(dst) {
		return nil, fmt.Errorf("lz4 batch compress: %d chunks but %d destination slots", len(chunks), len(dst))
	}
	sizes := make([]int, len(chunks))
	for i, chunk := range chunks {
		n, err := c.Compress(chunk, dst[i])
		if err != nil {
			return nil, fmt.Errorf("lz4 batch compress chunk %d: %w", i, err)
		}
		sizes[i] = n
	}
	return sizes, nil
}

func (c *lz4Codec) NBatch() int { return defaultBatchWidth }

// Close is a no-op: the LZ4 codec owns nothing but a plain hash table.
func (c *lz4Codec) Close() error { return nil }
