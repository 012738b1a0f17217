// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import (
	"bytes"
	"testing"
)

func TestMemBackendAppendAndPread(t *testing.T) {
	b := NewMemBackend()

	off1, err := b.Append([]byte("hello"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if off1 != 0 {
		t.Fatalf("first Append offset = %d, want 0", off1)
	}

	off2, err := b.Append([]byte("world"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if off2 != 5 {
		t.Fatalf("second Append offset = %d, want 5", off2)
	}

	buf := make([]byte, 10)
	if _, err := b.Pread(buf, 0); err != nil {
		t.Fatalf("Pread: %v", err)
	}
	if !bytes.Equal(buf, []byte("helloworld")) {
		t.Fatalf("Pread = %q, want %q", buf, "helloworld")
	}
}

func TestMemBackendPwriteGrows(t *testing.T) {
	b := NewMemBackend()
	if _, err := b.Pwrite([]byte("xyz"), 10); err != nil {
		t.Fatalf("Pwrite: %v", err)
	}
	stat, err := b.Fstat()
	if err != nil {
		t.Fatalf("Fstat: %v", err)
	}
	if stat.Size != 13 {
		t.Fatalf("Fstat().Size = %d, want 13", stat.Size)
	}
}

func TestMemBackendPreadOutOfRange(t *testing.T) {
	b := NewMemBackendFromBytes([]byte("abc"))
	if _, err := b.Pread(make([]byte, 4), 0); err == nil {
		t.Fatal("Pread past end of data should fail")
	}
	if _, err := b.Pread(make([]byte, 1), 100); err == nil {
		t.Fatal("Pread at an out-of-range offset should fail")
	}
}

func TestMemBackendBytesIsACopy(t *testing.T) {
	b := NewMemBackendFromBytes([]byte("abc"))
	copy1 := b.Bytes()
	copy1[0] = 'z'
	copy2 := b.Bytes()
	if copy2[0] != 'a' {
		t.Fatal("Bytes() should return an independent copy")
	}
}
