// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import (
	"bytes"
	"testing"
)

func TestCompressDecompressRoundtrip(t *testing.T) {
	input := sequentialCounterBytes(3 << 20)
	opts := testOptions(256<<10, true)

	backend := NewMemBackend()
	rawTotal, err := Compress(backend, bytes.NewReader(input), opts, nil)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if rawTotal != int64(len(input)) {
		t.Fatalf("Compress returned %d raw bytes, want %d", rawTotal, len(input))
	}

	var sink bytes.Buffer
	if err := Decompress(backend, &sink); err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(sink.Bytes(), input) {
		t.Fatal("decompressed content does not match input")
	}
}

func TestCompressDecompressShortTail(t *testing.T) {
	// Input length not a multiple of block size exercises the final
	// short batch path in fillBatch.
	input := sequentialCounterBytes(100 << 10)
	opts := testOptions(64<<10, true)

	backend := NewMemBackend()
	if _, err := Compress(backend, bytes.NewReader(input), opts, nil); err != nil {
		t.Fatalf("Compress: %v", err)
	}

	var sink bytes.Buffer
	if err := Decompress(backend, &sink); err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(sink.Bytes(), input) {
		t.Fatal("decompressed content does not match input")
	}
}

func TestIdentifyNotZFile(t *testing.T) {
	backend := NewMemBackendFromBytes(bytes.Repeat([]byte{0x00}, 1024))
	identity, err := Identify(backend)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if identity != NotZFile {
		t.Fatalf("Identify = %v, want %v", identity, NotZFile)
	}
}

func TestIdentifyValidZFile(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, true)
	buildAndRead(t, backend, opts, sequentialCounterBytes(10<<10)).Close()

	identity, err := Identify(backend)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if identity != ValidZFile {
		t.Fatalf("Identify = %v, want %v", identity, ValidZFile)
	}
}

func TestIdentifyCorruptZFile(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, true)
	buildAndRead(t, backend, opts, sequentialCounterBytes(10<<10)).Close()

	corrupted := backend.Bytes()
	corrupted[40] ^= 0xFF // flip a byte inside the populated header region
	identity, err := Identify(NewMemBackendFromBytes(corrupted))
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if identity != CorruptZFile {
		t.Fatalf("Identify = %v, want %v", identity, CorruptZFile)
	}
}

func TestValidateSucceedsOnCleanContainer(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, true)
	buildAndRead(t, backend, opts, sequentialCounterBytes(200<<10)).Close()

	if err := Validate(backend); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateFailsOnCorruptBlock(t *testing.T) {
	backend := NewMemBackend()
	opts := testOptions(64<<10, true)
	reader := buildAndRead(t, backend, opts, sequentialCounterBytes(200<<10))

	blockOff, err := reader.jumpTable.Offset(0)
	if err != nil {
		t.Fatalf("Offset(0): %v", err)
	}
	reader.Close()

	corrupted := backend.Bytes()
	corrupted[blockOff] ^= 0xFF
	if err := Validate(NewMemBackendFromBytes(corrupted)); err == nil {
		t.Fatal("Validate should fail on a corrupted block")
	}
}
