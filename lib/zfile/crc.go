// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import "hash/crc32"

// castagnoliTable is the CRC-32C (Castagnoli) table used for every
// checksum in the container format: the header/trailer self-digest,
// the block-length index checksum, and (salted) per-block payload
// checksums.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// blockCRCSeed is the salt used for per-block payload checksums. It is
// a protocol constant: changing it invalidates every existing
// container's block CRCs.
const blockCRCSeed uint32 = 100007

// crc32cPlain computes the unsalted CRC-32C of data. Used for the
// header/trailer self-digest and the block-length index checksum.
func crc32cPlain(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// crc32cSalted computes the salted CRC-32C of a block payload:
// crc32c_extend(payload, seed=blockCRCSeed). [crc32.Update] continues a
// running CRC-32 computation from a prior checksum value, which is
// exactly the "extend with seed" operation this needs.
func crc32cSalted(payload []byte) uint32 {
	return crc32.Update(blockCRCSeed, castagnoliTable, payload)
}
