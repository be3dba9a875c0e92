// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package clierr attaches process exit codes to errors.
package clierr

import (
	"errors"
	"fmt"
)

// Exit codes.
const (
	Failure   = 1
	Usage     = 2
	BadData   = 3 // the payload, commit file or aggregate is malformed
	Transient = 4 // the store was unavailable or writers kept conflicting
)

// ExitCoder is an error that carries a process exit code.
type ExitCoder interface {
	error
	ExitCode() int
}

// ExitError is an error with an explicit exit code. errors.Is and
// errors.As see through it to the cause.
type ExitError struct {
	code  int
	msg   string
	cause error
}

func (e *ExitError) Error() string {
	switch {
	case e.cause == nil:
		return e.msg
	case e.msg == "":
		return e.cause.Error()
	}
	return fmt.Sprintf("%s: %v", e.msg, e.cause)
}

func (e *ExitError) ExitCode() int { return e.code }

func (e *ExitError) Unwrap() error { return e.cause }

// New returns an ExitError with a message.
func New(code int, msg string) error {
	return &ExitError{code: normalize(code), msg: msg}
}

// Newf is a formatted variant of New.
func Newf(code int, format string, args ...any) error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap returns an ExitError for cause. An empty msg reports the cause
// alone. Wrap(code, msg, nil) is New(code, msg).
func Wrap(code int, msg string, cause error) error {
	if cause == nil {
		return New(code, msg)
	}
	return &ExitError{code: normalize(code), msg: msg, cause: cause}
}

// ExitCodeOf returns the exit code carried by err, 0 for nil, and
// Failure for errors without one.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ec ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return Failure
}

func normalize(code int) int {
	if code <= 0 {
		return Failure
	}
	return code
}
