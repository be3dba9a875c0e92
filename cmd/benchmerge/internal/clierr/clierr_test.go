// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clierr

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestExitCodeOf(t *testing.T) {
	for _, test := range []struct {
		err  error
		want int
	}{
		{nil, 0},
		{io.EOF, Failure},
		{New(Usage, "bad flag"), Usage},
		{New(0, "zero"), Failure},
		{Wrap(Transient, "write", io.ErrUnexpectedEOF), Transient},
		{fmt.Errorf("outer: %w", New(BadData, "inner")), BadData},
	} {
		if got := ExitCodeOf(test.err); got != test.want {
			t.Errorf("ExitCodeOf(%v) = %d, want %d", test.err, got, test.want)
		}
	}
}

func TestWrap(t *testing.T) {
	err := Wrap(BadData, "apply", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("errors.Is(%v, io.ErrUnexpectedEOF) = false", err)
	}
	if got, want := err.Error(), "apply: unexpected EOF"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got, want := Wrap(BadData, "", io.EOF).Error(), "EOF"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got := Wrap(Usage, "no cause", nil); got.Error() != "no cause" || ExitCodeOf(got) != Usage {
		t.Errorf("Wrap(nil cause) = %v", got)
	}
}
