// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/blockfile/zfile/lib/zfcodec"
)

func testOptions(blockSize uint32, verify bool) CompressOptions {
	return CompressOptions{
		Algorithm: uint8(zfcodec.AlgorithmLZ4),
		Verify:    verify,
		BlockSize: blockSize,
	}
}

func buildAndRead(t *testing.T, backend *MemBackend, opts CompressOptions, input []byte) *Reader {
	t.Helper()

	builder, err := NewBuilder(backend, BuilderConfig{CompressOptions: opts, OverwriteHeader: true})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	if _, err := builder.Write(input); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := builder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reader, err := Open(backend, ReaderConfig{Verify: opts.Verify})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return reader
}

func TestBuilderEmptyInput(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, true)

	reader := buildAndRead(t, backend, opts, nil)
	defer reader.Close()

	if reader.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", reader.Size())
	}
	if got := len(backend.Bytes()); got != 1024 {
		t.Fatalf("container size = %d bytes, want 1024 (header + empty index + trailer)", got)
	}

	n, err := reader.Pread(make([]byte, 10), 0)
	if err != nil {
		t.Fatalf("Pread: %v", err)
	}
	if n != 0 {
		t.Fatalf("Pread on empty container returned %d bytes, want 0", n)
	}
}

func TestBuilderOneMiBZeros(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, true)

	input := make([]byte, 1<<20)
	reader := buildAndRead(t, backend, opts, input)
	defer reader.Close()

	if reader.BlockCount() != 16 {
		t.Fatalf("BlockCount() = %d, want 16", reader.BlockCount())
	}

	out := make([]byte, len(input))
	n, err := reader.Pread(out, 0)
	if err != nil {
		t.Fatalf("Pread: %v", err)
	}
	if n != len(input) {
		t.Fatalf("Pread returned %d bytes, want %d", n, len(input))
	}
	if !bytes.Equal(out, input) {
		t.Fatal("decompressed content does not match input")
	}
}

func TestBuilderRandomDataSpansTwoBlocks(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, true)

	input := make([]byte, 100<<10)
	if _, err := rand.Read(input); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	reader := buildAndRead(t, backend, opts, input)
	defer reader.Close()

	out := make([]byte, 20<<10)
	n, err := reader.Pread(out, 50<<10)
	if err != nil {
		t.Fatalf("Pread: %v", err)
	}
	if n != len(out) {
		t.Fatalf("Pread returned %d bytes, want %d", n, len(out))
	}
	if !bytes.Equal(out, input[50<<10:70<<10]) {
		t.Fatal("Pread content does not match the corresponding input range")
	}
}

func TestBuilderCorruptedCRCFailsAfterRetries(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, true)

	input := make([]byte, 100<<10)
	if _, err := rand.Read(input); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	reader := buildAndRead(t, backend, opts, input)
	defer reader.Close()

	blockOff, err := reader.jumpTable.Offset(1)
	if err != nil {
		t.Fatalf("Offset(1): %v", err)
	}
	blockLen := reader.blockOnDiskLen(1)
	corrupted := backend.Bytes()
	corrupted[blockOff+blockLen-1] ^= 0xFF
	backend2 := NewMemBackendFromBytes(corrupted)

	reader2, err := Open(backend2, ReaderConfig{Verify: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader2.Close()

	_, err = reader2.Pread(make([]byte, 1), 64<<10)
	if err == nil {
		t.Fatal("Pread over a corrupted block should fail")
	}
	if !IsChecksum(err) {
		t.Fatalf("error = %v, want a checksum error", err)
	}
}

func TestBuilderRejectsWriteAfterClose(t *testing.T) {
	backend := NewMemBackend()
	builder, err := NewBuilder(backend, BuilderConfig{CompressOptions: testOptions(64<<10, true)})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	if err := builder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := builder.Write([]byte("x")); err == nil {
		t.Fatal("Write after Close should fail")
	}
}

func TestBuilderRejectsUnsealedTrailer(t *testing.T) {
	backend := NewMemBackend()
	rec := HeaderTrailer{Flags: FlagHeader | FlagDataIndex, Options: testOptions(64<<10, true)}
	buf := rec.marshal()
	if _, err := backend.Pwrite(buf[:], 0); err != nil {
		t.Fatalf("Pwrite: %v", err)
	}
	// Trailer omits FlagSealed.
	trailer := HeaderTrailer{Flags: FlagDataIndex, Options: testOptions(64<<10, true)}
	tbuf := trailer.marshal()
	if _, err := backend.Append(tbuf[:]); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := Open(backend, ReaderConfig{}); err == nil {
		t.Fatal("Open should fail on an unsealed trailer")
	} else if !IsFormat(err) {
		t.Fatalf("error = %v, want a format error", err)
	}
}
