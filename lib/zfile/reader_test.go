// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import (
	"bytes"
	"testing"
)

func TestReaderPrefetch(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, true)
	input := sequentialCounterBytes(200 << 10)

	reader := buildAndRead(t, backend, opts, input)
	defer reader.Close()

	n, err := reader.Prefetch(10<<10, 50<<10)
	if err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	if n != 50<<10 {
		t.Fatalf("Prefetch returned %d, want %d", n, 50<<10)
	}
}

func TestReaderValidateOnly(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, true)
	input := sequentialCounterBytes(200 << 10)

	reader := buildAndRead(t, backend, opts, input)
	defer reader.Close()
	reader.SetValidateOnly(true)

	n, err := reader.Pread(make([]byte, len(input)), 0)
	if err != nil {
		t.Fatalf("Pread in validate-only mode: %v", err)
	}
	if n != len(input) {
		t.Fatalf("Pread returned %d, want %d", n, len(input))
	}
}

func TestReaderClampsReadPastEnd(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, true)
	input := sequentialCounterBytes(10 << 10)

	reader := buildAndRead(t, backend, opts, input)
	defer reader.Close()

	buf := make([]byte, 1<<20)
	n, err := reader.Pread(buf, 5<<10)
	if err != nil {
		t.Fatalf("Pread: %v", err)
	}
	if n != 5<<10 {
		t.Fatalf("Pread returned %d, want %d", n, 5<<10)
	}
	if !bytes.Equal(buf[:n], input[5<<10:]) {
		t.Fatal("clamped read content mismatch")
	}
}

func TestReaderReadAheadSpansMultipleBlocks(t *testing.T) {
	// Force MaxReadSize-sized spans to split into multiple backend
	// reads by using a block size much smaller than MaxReadSize, with
	// enough blocks that the read-ahead window must reload partway
	// through the request.
	backend := NewMemBackend()
	opts := testOptions(4<<10, true)
	input := sequentialCounterBytes(8 << 20) // spans well past one MaxReadSize window

	reader := buildAndRead(t, backend, opts, input)
	defer reader.Close()

	out := make([]byte, len(input))
	n, err := reader.Pread(out, 0)
	if err != nil {
		t.Fatalf("Pread: %v", err)
	}
	if n != len(input) {
		t.Fatalf("Pread returned %d, want %d", n, len(input))
	}
	if !bytes.Equal(out, input) {
		t.Fatal("content mismatch across read-ahead window boundary")
	}
}

func TestReaderNoVerify(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, false)
	input := sequentialCounterBytes(128 << 10)

	reader := buildAndRead(t, backend, opts, input)
	defer reader.Close()

	out := make([]byte, len(input))
	if _, err := reader.Pread(out, 0); err != nil {
		t.Fatalf("Pread: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatal("content mismatch with verify disabled")
	}
}

func TestReaderFstatLogicalSize(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, true)
	input := sequentialCounterBytes(130 << 10)

	reader := buildAndRead(t, backend, opts, input)
	defer reader.Close()

	if reader.Size() != int64(len(input)) {
		t.Fatalf("Size() = %d, want %d", reader.Size(), len(input))
	}
}

func TestReaderSmallReadsWithinSingleBlock(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, true)
	input := sequentialCounterBytes(64 << 10)

	reader := buildAndRead(t, backend, opts, input)
	defer reader.Close()

	for _, tc := range []struct{ off, n int }{
		{0, 1}, {100, 50}, {1 << 10, 4 << 10}, {60 << 10, 4 << 10},
	} {
		out := make([]byte, tc.n)
		got, err := reader.Pread(out, int64(tc.off))
		if err != nil {
			t.Fatalf("Pread(%d, %d): %v", tc.off, tc.n, err)
		}
		if got != tc.n {
			t.Fatalf("Pread(%d, %d) = %d bytes, want %d", tc.off, tc.n, got, tc.n)
		}
		if !bytes.Equal(out, input[tc.off:tc.off+tc.n]) {
			t.Fatalf("Pread(%d, %d) content mismatch", tc.off, tc.n)
		}
	}
}
