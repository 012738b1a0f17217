// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package zfile

import (
	"errors"
	"testing"
)

func TestErrorKindPredicates(t *testing.T) {
	checksumErr := newErr(ErrKindChecksum, "pread", errIndexCRC)
	if !IsChecksum(checksumErr) {
		t.Error("IsChecksum should report true for a checksum-kind error")
	}
	if IsFormat(checksumErr) || IsRange(checksumErr) {
		t.Error("IsFormat/IsRange should report false for a checksum-kind error")
	}

	formatErr := newErr(ErrKindFormat, "open", errNotSealed)
	if !IsFormat(formatErr) {
		t.Error("IsFormat should report true for a format-kind error")
	}

	if IsChecksum(errors.New("plain error")) {
		t.Error("IsChecksum should report false for a non-zfile error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying cause")
	err := newErr(ErrKindIO, "pread", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see through to the wrapped cause")
	}
}
