// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix && !linux

package zfile

// Trim is a no-op on platforms without fadvise(DONTNEED). The retry
// path still re-reads the affected range; it just can't force a cold
// read first.
func (b *FileBackend) Trim(off, length int64) error { return nil }

// Fallocate is a no-op on platforms without a punch-hole fallocate
// flag.
func (b *FileBackend) Fallocate(punchHoleWholeFile bool) error { return nil }
