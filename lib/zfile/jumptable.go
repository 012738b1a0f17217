// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import "fmt"

// jumpTableRunSpan bounds the run size G = (2^16) / blockSize used to
// derive the jump table below. Runs exist to bound delta to 16 bits; a
// block size at or above this bound collapses every run to width 1,
// which is still correct, just less compact.
const jumpTableRunSpan = 1 << 16

// JumpTable is a compact, build-once, random-access structure mapping
// block number to absolute backing-file byte offset. It is derived
// from the persisted block-length index and never mutated afterward.
//
// Blocks are grouped into runs of G = (2^16)/blockSize blocks. Each run
// stores one 64-bit absolute offset at its start; every other block in
// the run stores a 16-bit delta from that offset. This trades a small
// amount of precision (each run must fit within 65536 bytes of
// compressed data) for a table roughly 4x smaller than a plain []int64.
type JumpTable struct {
	blockSize     uint32
	runSpan       int // G: blocks per run
	partialOffset []int64
	delta         []uint16
}

// minBlockLen returns the minimum legal on-disk length for a
// compressed block: 4 bytes (the trailing CRC) when verify is set,
// else 0.
func minBlockLen(verify bool) uint32 {
	if verify {
		return 4
	}
	return 0
}

// buildJumpTable derives a [JumpTable] from the persisted block-length
// array. dataStart is the absolute offset of the first block (512 +
// dict_size).
func buildJumpTable(blockLengths []uint32, blockSize uint32, verify bool, dataStart int64) (*JumpTable, error) {
	runSpan := jumpTableRunSpan / int(blockSize)
	if runSpan < 1 {
		runSpan = 1
	}

	n := len(blockLengths)
	runCount := (n + runSpan - 1) / runSpan
	jt := &JumpTable{
		blockSize:     blockSize,
		runSpan:       runSpan,
		partialOffset: make([]int64, runCount),
		delta:         make([]uint16, n),
	}

	minLen := minBlockLen(verify)
	off := dataStart
	for i, length := range blockLengths {
		if length <= minLen {
			return nil, fmt.Errorf("block %d has length %d, must exceed minimum %d", i, length, minLen)
		}
		runStart := i % runSpan
		if runStart == 0 {
			jt.partialOffset[i/runSpan] = off
		} else {
			delta := off - jt.partialOffset[i/runSpan]
			if delta < 0 || delta > 0xFFFF {
				return nil, fmt.Errorf("block %d run-local offset %d overflows 16 bits", i, delta)
			}
			jt.delta[i] = uint16(delta)
		}
		off += int64(length)
	}

	return jt, nil
}

// Offset returns the absolute backing-file byte offset of block i.
func (jt *JumpTable) Offset(i int) (int64, error) {
	if i < 0 || i >= len(jt.delta) {
		return 0, fmt.Errorf("block index %d out of range [0, %d)", i, len(jt.delta))
	}
	run := i / jt.runSpan
	if i%jt.runSpan == 0 {
		return jt.partialOffset[run], nil
	}
	return jt.partialOffset[run] + int64(jt.delta[i]), nil
}

// BlockCount returns the number of blocks described by the table.
func (jt *JumpTable) BlockCount() int { return len(jt.delta) }
