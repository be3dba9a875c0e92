// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package updater

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Handle and Rebuild is an
// *Error whose Kind is one of these.
var (
	ErrMalformedPayload   = errors.New("malformed benchmark payload")
	ErrInvalidName        = errors.New("invalid naming convention")
	ErrMalformedAggregate = errors.New("malformed aggregate document")
	ErrMalformedCommit    = errors.New("malformed commit metadata")
	ErrStoreUnavailable   = errors.New("storage unavailable")
	ErrConflict           = errors.New("aggregate update conflict")
)

// An Error describes a failed update step.
type Error struct {
	Op   string // step that failed, such as "read payload"
	Name string // object involved
	Kind error  // one of the Err* kinds
	Err  error  // underlying error, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Name, e.Kind, e.Err)
}

// Unwrap returns the kind and the underlying error, so errors.Is
// matches either.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind of err, or nil if err is not an *Error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// Permanent reports whether err is caused by the data itself, so
// retrying the same event cannot succeed.
func Permanent(err error) bool {
	switch KindOf(err) {
	case ErrMalformedPayload, ErrInvalidName, ErrMalformedAggregate, ErrMalformedCommit:
		return true
	}
	return false
}
