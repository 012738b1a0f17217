// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfcodec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstdCodec implements [Codec] with github.com/klauspost/compress/zstd.
// Each instance owns its own encoder/decoder pair rather than sharing
// package-level globals, so that handing one codec to each worker in a
// multi-worker builder never causes cross-worker contention — zstd's
// encoder and decoder are safe for concurrent use, but a private pair
// per worker avoids any shared state at all.
type zstdCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// newZstdCodec constructs a zstd codec. level maps onto zstd's speed
// presets: <=1 is fastest, >=4 is best compression, everything else is
// the balanced default.
func newZstdCodec(level int) (Codec, error) {
	var speed zstd.EncoderLevel
	switch {
	case level <= 1:
		speed = zstd.SpeedFastest
	case level >= 4:
		speed = zstd.SpeedBestCompression
	default:
		speed = zstd.SpeedDefault
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(speed))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &zstdCodec{encoder: enc, decoder: dec}, nil
}

func (c *zstdCodec) MaxCompressedLen(srcLen int) int {
	// zstd's frame overhead is small and bounded; this mirrors the
	// generous bound klauspost/compress itself documents for
	// worst-case incompressible input.
	return srcLen + srcLen/8 + 256
}

func (c *zstdCodec) Compress(src, dst []byte) (int, error) {
	compressed := c.encoder.EncodeAll(src, nil)
	if len(compressed) > len(dst) {
		return 0, ErrBufferTooSmall
	}
	copy(dst, compressed)
	return len(compressed), nil
}

func (c *zstdCodec) Decompress(src, dst []byte) (int, error) {
	result, err := c.decoder.DecodeAll(src, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(result) > len(dst) {
		return 0, fmt.Errorf("%w: zstd decompressed %d bytes, dst holds %d", ErrBufferTooSmall, len(result), len(dst))
	}
	if len(result) != len(dst) {
		return 0, fmt.Errorf("zstd decompress: got %d bytes, want %d", len(result), len(dst))
	}
	copy(dst, result)
	return len(result), nil
}

func (c *zstdCodec) BatchCompress(chunks [][]byte, dst [][]byte) ([]int, error) {
	if len(chunks) != len(dst) {
		return nil, fmt.Errorf("zstd batch compress: %d chunks but %d destination slots", len(chunks), len(dst))
	}
	sizes := make([]int, len(chunks))
	for i, chunk := range chunks {
		n, err := c.Compress(chunk, dst[i])
		if err != nil {
			return nil, fmt.Errorf("zstd batch compress chunk %d: %w", i, err)
		}
		sizes[i] = n
	}
	return sizes, nil
}

func (c *zstdCodec) NBatch() int { return defaultBatchWidth }

// Close releases the encoder's and decoder's background goroutines.
// zstd.Decoder.Close never returns an error; zstd.Encoder.Close can.
func (c *zstdCodec) Close() error {
	c.decoder.Close()
	return c.encoder.Close()
}
