// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

// Package zfile implements a read-optimized, block-compressed,
// random-accessible file container.
//
// A zfile container wraps an arbitrary byte-addressable backing file
// (local disk, network object, anything satisfying [Backend]) and
// presents a read-only view of the original, uncompressed content.
// Any [Reader.Pread] call translates into a minimal set of backing-file
// reads, decompressing only the compressed blocks intersecting the
// requested range.
//
// The package is organized in layers:
//
//   - Record: the fixed 512-byte [HeaderTrailer] carrying container
//     metadata, written at offset 0 (header) and at the end of file
//     (trailer), each self-checksummed with CRC-32C.
//
//   - Jump table: an in-memory sparse index ([JumpTable]) mapping block
//     number to absolute backing-file offset, derived from the
//     persisted block-length index.
//
//   - Builders: [Builder] streams raw bytes in, compresses fixed-size
//     blocks, and emits a sealed container. [MultiBuilder] does the
//     same with N parallel compression workers while preserving input
//     order on output.
//
//   - Reader: [Reader] opens an existing container and serves
//     [Reader.Pread] with CRC verification, retry-on-corruption, and
//     optional prefetch-only mode.
//
//   - Whole-file operations: [Compress], [Decompress], [Identify], and
//     [Validate] cover the common source-file-to-container and
//     container-to-sink cases without the caller managing a builder or
//     reader directly.
//
// Compression algorithms are pluggable behind the [zfcodec.Codec]
// interface (github.com/blockfile/zfile/lib/zfcodec); backing-file I/O
// is pluggable behind [Backend].
package zfile
