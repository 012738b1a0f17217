// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import (
	"errors"
	"fmt"
)

// ErrKind classifies the failure modes a zfile operation can report.
type ErrKind int

const (
	// ErrKindIO indicates a backing-file failure (read, write, stat,
	// trim, or fallocate returned an error).
	ErrKindIO ErrKind = iota
	// ErrKindFormat indicates a magic mismatch, bad flags, or a
	// record-size mismatch in a header or trailer record.
	ErrKindFormat
	// ErrKindChecksum indicates a self-digest, index CRC, or block
	// CRC mismatch.
	ErrKindChecksum
	// ErrKindRange indicates an offset/count out of bounds, or a
	// jump-table delta overflow during index build.
	ErrKindRange
	// ErrKindCodec indicates a compress/decompress failure.
	ErrKindCodec
	// ErrKindConfig indicates invalid options, or a write to a builder
	// that is already closed.
	ErrKindConfig
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindIO:
		return "io"
	case ErrKindFormat:
		return "format"
	case ErrKindChecksum:
		return "checksum"
	case ErrKindRange:
		return "range"
	case ErrKindCodec:
		return "codec"
	case ErrKindConfig:
		return "config"
	default:
		return fmt.Sprintf("errkind(%d)", int(k))
	}
}

// Error is the error type returned by every public zfile operation.
// Callers distinguish failure modes with [errors.As] and [Error.Kind],
// or with the [IsChecksum] / [IsFormat] / [IsRange] helpers.
type Error struct {
	Kind ErrKind
	Op   string // the operation that failed, e.g. "open", "pread", "close"
	Err  error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("zfile: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("zfile: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// newErr constructs an [*Error], wrapping err if non-nil.
func newErr(kind ErrKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ErrNotSupported is an error a [Backend] may return for an operation
// it does not implement. Nothing in this package returns or wraps it;
// the backends here make Trim and Fallocate no-ops instead.
var ErrNotSupported = errors.New("operation not supported by this backend")

// IsChecksum reports whether err is a zfile checksum error.
func IsChecksum(err error) bool { return hasKind(err, ErrKindChecksum) }

// IsFormat reports whether err is a zfile format error.
func IsFormat(err error) bool { return hasKind(err, ErrKindFormat) }

// IsRange reports whether err is a zfile range error.
func IsRange(err error) bool { return hasKind(err, ErrKindRange) }

func hasKind(err error, kind ErrKind) bool {
	var zerr *Error
	if errors.As(err, &zerr) {
		return zerr.Kind == kind
	}
	return false
}
