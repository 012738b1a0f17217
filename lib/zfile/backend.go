// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import (
	"bytes"
	"fmt"
	"sync"
)

// BackendStat mirrors the handful of fstat fields a [Backend] must
// report.
type BackendStat struct {
	// Size is the current byte size of the backing file.
	Size int64
}

// Backend is the minimal capability set a backing file must provide:
// positioned read and write, sequential append, size, and the two
// cache-eviction hints the reader's retry policy relies on. Any
// byte-addressable object — local disk, network blob, raw block
// device — can implement it.
//
// Implementations that cannot support [Backend.Trim] or
// [Backend.Fallocate] should make them no-ops rather than returning
// [ErrNotSupported]: those calls are cache hints, not correctness
// requirements, and a no-op simply means the retry-on-corruption path
// re-reads without first evicting a stale cache entry.
type Backend interface {
	// Pread reads len(p) bytes starting at absolute offset off.
	Pread(p []byte, off int64) (int, error)
	// Pwrite writes p at absolute offset off.
	Pwrite(p []byte, off int64) (int, error)
	// Append writes p at the current end of the backing file and
	// returns the offset it was written at.
	Append(p []byte) (int64, error)
	// Fstat reports the current size of the backing file.
	Fstat() (BackendStat, error)
	// Trim hints that the byte range [off, off+length) can be evicted
	// from any read cache. May be a no-op.
	Trim(off, length int64) error
	// Fallocate hints that the whole file's cached content may be
	// stale and should be evicted before the next read, when
	// punchHoleWholeFile is true. May be a no-op.
	Fallocate(punchHoleWholeFile bool) error
	// Close releases any resources held by the backend. Builders and
	// readers call this only when they were given ownership of the
	// backend.
	Close() error
}

// MemBackend is an in-memory [Backend] backed by a growable byte
// buffer. It never evicts anything, so [MemBackend.Trim] and
// [MemBackend.Fallocate] are no-ops — useful for tests and for
// wrapping already-fetched content that has no real cache beneath it.
type MemBackend struct {
	mu   sync.Mutex
	data []byte
}

// NewMemBackend creates an empty in-memory [Backend].
func NewMemBackend() *MemBackend {
	return &MemBackend{}
}

// NewMemBackendFromBytes creates an in-memory [Backend] pre-populated
// with data. The backend takes ownership of the slice.
func NewMemBackendFromBytes(data []byte) *MemBackend {
	return &MemBackend{data: data}
}

func (m *MemBackend) Pread(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off > int64(len(m.data)) {
		return 0, fmt.Errorf("pread at offset %d: out of range (size %d)", off, len(m.data))
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("pread at offset %d: short read (%d of %d bytes)", off, n, len(p))
	}
	return n, nil
}

func (m *MemBackend) Pwrite(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[off:end], p)
	return len(p), nil
}

func (m *MemBackend) Append(p []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	off := int64(len(m.data))
	m.data = append(m.data, p...)
	return off, nil
}

func (m *MemBackend) Fstat() (BackendStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return BackendStat{Size: int64(len(m.data))}, nil
}

func (m *MemBackend) Trim(off, length int64) error  { return nil }
func (m *MemBackend) Fallocate(wholeFile bool) error { return nil }
func (m *MemBackend) Close() error                   { return nil }

// Bytes returns a copy of the backend's current content. Intended for
// tests.
func (m *MemBackend) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.data)
}
