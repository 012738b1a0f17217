// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package zfile

import "golang.org/x/sys/unix"

// Trim evicts [off, off+length) from the page cache via
// fadvise(DONTNEED). Best-effort: errors are not surfaced, since a
// cache-drop hint that fails just means the retry re-reads through a
// warm (possibly stale) cache instead of a cold one.
func (b *FileBackend) Trim(off, length int64) error {
	_ = unix.Fadvise(b.fd, off, length, unix.FADV_DONTNEED)
	return nil
}

// Fallocate, when punchHoleWholeFile is true, punches a hole over the
// entire file to evict all of its cached content ahead of a retry.
func (b *FileBackend) Fallocate(punchHoleWholeFile bool) error {
	if !punchHoleWholeFile {
		return nil
	}
	stat, err := b.Fstat()
	if err != nil {
		return err
	}
	if stat.Size == 0 {
		return nil
	}
	_ = unix.Fallocate(b.fd, unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, 0, stat.Size)
	return nil
}
