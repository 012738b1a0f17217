// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import "testing"

func TestHeaderTrailerRoundtrip(t *testing.T) {
	rec := HeaderTrailer{
		Flags:            FlagHeader | FlagDataIndex,
		IndexOffset:      1 << 20,
		IndexSize:        16,
		OriginalFileSize: 1 << 24,
		IndexCRC:         0xdeadbeef,
		Options: CompressOptions{
			Algorithm: 1,
			Verify:    true,
			Level:     3,
			BlockSize: 1 << 20,
		},
	}

	buf := rec.marshal()
	if len(buf) != RecordSize {
		t.Fatalf("marshal produced %d bytes, want %d", len(buf), RecordSize)
	}

	got, err := unmarshalHeaderTrailer(buf[:])
	if err != nil {
		t.Fatalf("unmarshalHeaderTrailer: %v", err)
	}

	if got.Flags != rec.Flags {
		t.Errorf("Flags = %x, want %x", got.Flags, rec.Flags)
	}
	if got.IndexOffset != rec.IndexOffset {
		t.Errorf("IndexOffset = %d, want %d", got.IndexOffset, rec.IndexOffset)
	}
	if got.IndexSize != rec.IndexSize {
		t.Errorf("IndexSize = %d, want %d", got.IndexSize, rec.IndexSize)
	}
	if got.OriginalFileSize != rec.OriginalFileSize {
		t.Errorf("OriginalFileSize = %d, want %d", got.OriginalFileSize, rec.OriginalFileSize)
	}
	if got.IndexCRC != rec.IndexCRC {
		t.Errorf("IndexCRC = %x, want %x", got.IndexCRC, rec.IndexCRC)
	}
	if got.Options != rec.Options {
		t.Errorf("Options = %+v, want %+v", got.Options, rec.Options)
	}
	if !got.IsHeader() {
		t.Error("IsHeader() = false, want true")
	}
}

func TestHeaderTrailerZeroPadding(t *testing.T) {
	rec := HeaderTrailer{Flags: FlagSealed}
	buf := rec.marshal()
	for i := populatedRecordSize; i < RecordSize; i++ {
		if buf[i] != 0 {
			t.Fatalf("byte %d = %#x, want zero padding", i, buf[i])
		}
	}
}

func TestUnmarshalRejectsBadMagic(t *testing.T) {
	rec := HeaderTrailer{Flags: FlagHeader}
	buf := rec.marshal()
	buf[0] ^= 0xFF
	if _, err := unmarshalHeaderTrailer(buf[:]); err == nil {
		t.Fatal("unmarshalHeaderTrailer should fail on corrupted magic0")
	}
}

func TestUnmarshalRejectsBadDigest(t *testing.T) {
	rec := HeaderTrailer{Flags: FlagSealed | FlagDataIndex, OriginalFileSize: 42}
	buf := rec.marshal()
	buf[40] ^= 0xFF // perturb a byte inside the populated region, not the digest itself
	if _, err := unmarshalHeaderTrailer(buf[:]); err == nil {
		t.Fatal("unmarshalHeaderTrailer should fail on corrupted self-digest")
	}
}

func TestHeaderTrailerFlagPredicates(t *testing.T) {
	sealed := HeaderTrailer{Flags: FlagSealed | FlagDigestEnabled}
	if !sealed.Sealed() {
		t.Error("Sealed() = false, want true")
	}
	if !sealed.DigestEnabled() {
		t.Error("DigestEnabled() = false, want true")
	}
	if sealed.IsHeader() || sealed.HeaderOverwrite() {
		t.Error("unset flag bits reported as set")
	}
}

func TestCompressOptionsRoundtrip(t *testing.T) {
	want := CompressOptions{
		Algorithm: 1,
		Verify:    true,
		UseDict:   false,
		Level:     7,
		BlockSize: 1 << 16,
		DictSize:  0,
	}
	buf := make([]byte, compressOptionsSize)
	want.marshal(buf)
	got := unmarshalCompressOptions(buf)
	if got != want {
		t.Errorf("roundtrip = %+v, want %+v", got, want)
	}
}
