// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// RecordSize is the fixed on-disk size of a [HeaderTrailer] record:
// 512 bytes, zero-padded beyond the populated prefix.
const RecordSize = 512

// populatedRecordSize is the size of the populated prefix of a
// HeaderTrailer record. This is a protocol constant, not derived from
// field widths, so that adding reserved fields never silently changes
// the on-disk layout.
const populatedRecordSize = 96

// Flag bits for HeaderTrailer.Flags.
const (
	// FlagHeader marks this record as occupying the header position
	// (offset 0). Clear for a trailer record.
	FlagHeader uint64 = 1 << 0
	// FlagDataIndex marks this record as describing index-bearing
	// data. Reserved for future use; always set on written records.
	FlagDataIndex uint64 = 1 << 1
	// FlagSealed marks a trailer as fully written, with a consistent
	// index. Never set on a header record written before close.
	FlagSealed uint64 = 1 << 2
	// FlagHeaderOverwrite marks a record as a trailer image copied
	// back to offset 0 after finalisation, letting a reader load full
	// index metadata from the first 512 bytes alone.
	FlagHeaderOverwrite uint64 = 1 << 3
	// FlagDigestEnabled marks that IndexCRC should be verified against
	// the block-length index bytes.
	FlagDigestEnabled uint64 = 1 << 4
	// FlagIndexCompressed is reserved for a future compressed index
	// representation. Never set by this implementation.
	FlagIndexCompressed uint64 = 1 << 5
)

// magic0 is the 8-byte container signature "ZFile\0\x01", zero-padded
// to 8 bytes and interpreted little-endian as a uint64.
var magic0Bytes = [8]byte{'Z', 'F', 'i', 'l', 'e', 0x00, 0x01, 0x00}

var magic0 = binary.LittleEndian.Uint64(magic0Bytes[:])

// magic1 is the fixed container identification UUID, laid out in the
// RFC-4122 little-endian form used by existing on-disk containers:
// the time_low/time_mid/time_hi_and_version fields are little-endian,
// clock_seq and node are stored as raw bytes.
var magic1 = uuid.UUID{
	0x74, 0x75, 0x6a, 0x69, // time_low, LE(0x696a7574)
	0x2e, 0x79, // time_mid, LE(0x792e)
	0x79, 0x66, // time_hi_and_version, LE(0x6679)
	0x41, 0x40, // clock_seq_hi_and_reserved, clock_seq_low
	0x6c, 0x69, 0x62, 0x61, 0x62, 0x61, // node
}

// CompressOptions is the persisted set of compression parameters for a
// container.
type CompressOptions struct {
	// Algorithm identifies the codec used for every block.
	Algorithm uint8
	// Verify, if true, appends a 4-byte salted CRC-32C after every
	// compressed block.
	Verify bool
	// UseDict is reserved; always false.
	UseDict bool
	// Level is a codec-specific quality knob.
	Level uint8
	// BlockSize is the raw block size in bytes. Must be a power of
	// two in [MinBlockSize, MaxReadSize].
	BlockSize uint32
	// DictSize is reserved; always zero.
	DictSize uint32
}

const compressOptionsSize = 12

func (o CompressOptions) marshal(buf []byte) {
	buf[0] = o.Algorithm
	buf[1] = boolByte(o.Verify)
	buf[2] = boolByte(o.UseDict)
	buf[3] = o.Level
	binary.LittleEndian.PutUint32(buf[4:8], o.BlockSize)
	binary.LittleEndian.PutUint32(buf[8:12], o.DictSize)
}

func unmarshalCompressOptions(buf []byte) CompressOptions {
	return CompressOptions{
		Algorithm: buf[0],
		Verify:    buf[1] != 0,
		UseDict:   buf[2] != 0,
		Level:     buf[3],
		BlockSize: binary.LittleEndian.Uint32(buf[4:8]),
		DictSize:  binary.LittleEndian.Uint32(buf[8:12]),
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// HeaderTrailer is the fixed 512-byte record written at the start
// (header) and end (trailer) of a container.
type HeaderTrailer struct {
	Flags            uint64
	IndexOffset      int64 // absolute backing-file byte offset
	IndexSize        int64 // entry count, not bytes
	OriginalFileSize int64
	IndexCRC         uint32
	Options          CompressOptions
}

// IsHeader reports whether this record occupies the header position.
func (r HeaderTrailer) IsHeader() bool { return r.Flags&FlagHeader != 0 }

// Sealed reports whether this record marks a fully written container.
func (r HeaderTrailer) Sealed() bool { return r.Flags&FlagSealed != 0 }

// HeaderOverwrite reports whether this is a trailer image copied back
// to the header position.
func (r HeaderTrailer) HeaderOverwrite() bool { return r.Flags&FlagHeaderOverwrite != 0 }

// DigestEnabled reports whether the block-length index carries a
// verifiable CRC.
func (r HeaderTrailer) DigestEnabled() bool { return r.Flags&FlagDigestEnabled != 0 }

// marshal serializes r into a zero-padded [RecordSize]-byte block with
// a freshly computed self-digest.
func (r HeaderTrailer) marshal() [RecordSize]byte {
	var buf [RecordSize]byte
	copy(buf[0:8], magic0Bytes[:])
	copy(buf[8:24], magic1[:])
	binary.LittleEndian.PutUint32(buf[24:28], populatedRecordSize)
	// buf[28:32] (self_digest) left zero for the digest computation.
	binary.LittleEndian.PutUint64(buf[32:40], r.Flags)
	binary.LittleEndian.PutUint64(buf[40:48], uint64(r.IndexOffset))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(r.IndexSize))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(r.OriginalFileSize))
	binary.LittleEndian.PutUint32(buf[64:68], r.IndexCRC)
	r.Options.marshal(buf[68:80])
	// buf[80:96] reserved, zero. buf[96:512] zero-padded.

	digest := crc32cPlain(buf[:])
	binary.LittleEndian.PutUint32(buf[28:32], digest)
	return buf
}

// unmarshalHeaderTrailer parses a [RecordSize]-byte block, validating
// magics, record size, and self-digest.
func unmarshalHeaderTrailer(buf []byte) (HeaderTrailer, error) {
	if len(buf) < RecordSize {
		return HeaderTrailer{}, fmt.Errorf("record is %d bytes, want %d", len(buf), RecordSize)
	}

	var gotMagic0 [8]byte
	copy(gotMagic0[:], buf[0:8])
	if gotMagic0 != magic0Bytes {
		return HeaderTrailer{}, fmt.Errorf("bad magic0: %x", gotMagic0)
	}

	var gotMagic1 uuid.UUID
	copy(gotMagic1[:], buf[8:24])
	if gotMagic1 != magic1 {
		return HeaderTrailer{}, fmt.Errorf("bad magic1: %s", gotMagic1)
	}

	recordSize := binary.LittleEndian.Uint32(buf[24:28])
	if recordSize != populatedRecordSize {
		return HeaderTrailer{}, fmt.Errorf("record_size = %d, want %d", recordSize, populatedRecordSize)
	}

	storedDigest := binary.LittleEndian.Uint32(buf[28:32])
	check := make([]byte, RecordSize)
	copy(check, buf[:RecordSize])
	binary.LittleEndian.PutUint32(check[28:32], 0)
	wantDigest := crc32cPlain(check)
	if storedDigest != wantDigest {
		return HeaderTrailer{}, fmt.Errorf("self_digest mismatch: stored %08x, computed %08x", storedDigest, wantDigest)
	}

	return HeaderTrailer{
		Flags:            binary.LittleEndian.Uint64(buf[32:40]),
		IndexOffset:      int64(binary.LittleEndian.Uint64(buf[40:48])),
		IndexSize:        int64(binary.LittleEndian.Uint64(buf[48:56])),
		OriginalFileSize: int64(binary.LittleEndian.Uint64(buf[56:64])),
		IndexCRC:         binary.LittleEndian.Uint32(buf[64:68]),
		Options:          unmarshalCompressOptions(buf[68:80]),
	}, nil
}
