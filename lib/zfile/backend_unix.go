// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package zfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileBackend is the default [Backend], implementing positioned I/O
// over a real file descriptor with golang.org/x/sys/unix. [Trim] and
// [Fallocate] are advisory cache-eviction hints whose implementation
// varies by platform; see backend_trim_linux.go and
// backend_trim_other.go.
type FileBackend struct {
	file *os.File
	fd   int
}

// OpenFileBackend opens path for positioned I/O. If the file does not
// exist and create is true, it is created.
func OpenFileBackend(path string, create bool) (*FileBackend, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &FileBackend{file: f, fd: int(f.Fd())}, nil
}

// NewFileBackend wraps an already-open [*os.File].
func NewFileBackend(f *os.File) *FileBackend {
	return &FileBackend{file: f, fd: int(f.Fd())}
}

func (b *FileBackend) Pread(p []byte, off int64) (int, error) {
	n, err := unix.Pread(b.fd, p, off)
	if err != nil {
		return n, fmt.Errorf("pread at offset %d: %w", off, err)
	}
	if n < len(p) {
		return n, fmt.Errorf("pread at offset %d: short read (%d of %d bytes)", off, n, len(p))
	}
	return n, nil
}

func (b *FileBackend) Pwrite(p []byte, off int64) (int, error) {
	total := 0
	for len(p) > 0 {
		n, err := unix.Pwrite(b.fd, p, off)
		total += n
		if err != nil {
			return total, fmt.Errorf("pwrite at offset %d: %w", off, err)
		}
		p = p[n:]
		off += int64(n)
	}
	return total, nil
}

func (b *FileBackend) Append(p []byte) (int64, error) {
	stat, err := b.Fstat()
	if err != nil {
		return 0, err
	}
	off := stat.Size
	_, err = b.Pwrite(p, off)
	return off, err
}

func (b *FileBackend) Fstat() (BackendStat, error) {
	var st unix.Stat_t
	if err := unix.Fstat(b.fd, &st); err != nil {
		return BackendStat{}, fmt.Errorf("fstat: %w", err)
	}
	return BackendStat{Size: st.Size}, nil
}

func (b *FileBackend) Close() error {
	return b.file.Close()
}
