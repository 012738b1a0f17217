// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

// Package zfcodec defines the pluggable block-compression interface
// used by zfile containers, and provides LZ4 and zstd implementations.
package zfcodec

import "fmt"

// Algorithm identifies a compression codec. The values are persisted
// in container headers — never renumber an existing algorithm.
type Algorithm uint8

const (
	// AlgorithmLZ4 selects block-mode LZ4: fast compression and
	// decompression with a modest ratio.
	AlgorithmLZ4 Algorithm = 0
	// AlgorithmZstd selects zstd: slower than LZ4 but a better ratio,
	// good for text-like content.
	AlgorithmZstd Algorithm = 1
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmLZ4:
		return "lz4"
	case AlgorithmZstd:
		return "zstd"
	default:
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
}

// ParseAlgorithm parses the string form of an [Algorithm].
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "lz4":
		return AlgorithmLZ4, nil
	case "zstd":
		return AlgorithmZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression algorithm %q", name)
	}
}

// Codec compresses and decompresses fixed-size blocks for one
// algorithm and quality level. Construction from (algorithm, level) is
// deterministic and stateless except for internal codec state, so a
// codec instance is safe to hand to exactly one worker (e.g. in a
// multi-worker builder) without sharing it.
type Codec interface {
	// Compress writes the compressed form of src into dst, which must
	// be at least MaxCompressedLen(len(src)) bytes, and returns the
	// number of bytes written. It never writes more than len(dst).
	Compress(src, dst []byte) (int, error)
	// Decompress writes the decompressed form of src into dst, which
	// must be exactly the original uncompressed length, and returns
	// that length. It fails distinctly on malformed input
	// ([ErrFormat]) versus a destination that is too small
	// ([ErrBufferTooSmall]). For an LZ4 block held in compressed form
	// the two cases are not told apart: a too-small dst is reported
	// as [ErrFormat].
	Decompress(src, dst []byte) (int, error)
	// MaxCompressedLen returns the worst-case compressed size for an
	// input of srcLen bytes — the minimum dst capacity Compress needs.
	MaxCompressedLen(srcLen int) int
	// BatchCompress compresses each of chunks into the correspondingly
	// indexed slice of dst, which must have the same length as chunks
	// and slots sized by MaxCompressedLen. Returns the number of bytes
	// written per chunk. Used by whole-file compression for
	// throughput; a codec without a genuine batched path may simply
	// loop over Compress.
	BatchCompress(chunks [][]byte, dst [][]byte) ([]int, error)
	// NBatch returns this codec's preferred batch width: the number
	// of chunks a caller should accumulate before calling
	// BatchCompress.
	NBatch() int
	// Close releases any resources this codec instance owns (e.g.
	// zstd's encoder/decoder goroutines). Callers must call Close
	// exactly once when done with a codec obtained from [New].
	Close() error
}

// ErrFormat indicates decompression failed because the input was not
// valid compressed data for the codec.
var ErrFormat = fmt.Errorf("zfcodec: malformed compressed data")

// ErrBufferTooSmall indicates Compress's or Decompress's destination
// buffer was smaller than the operation required.
var ErrBufferTooSmall = fmt.Errorf("zfcodec: destination buffer too small")

// New constructs a [Codec] for the given algorithm and quality level.
// The level's meaning is codec-specific: LZ4 ignores it and always
// uses its fast mode; for zstd it maps onto zstd's encoder
// speed/level presets.
func New(algorithm Algorithm, level int) (Codec, error) {
	switch algorithm {
	case AlgorithmLZ4:
		return newLZ4Codec(level), nil
	case AlgorithmZstd:
		return newZstdCodec(level)
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %d", uint8(algorithm))
	}
}
