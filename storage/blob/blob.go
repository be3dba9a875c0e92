// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package blob provides the named-object store interface used by the
// benchmark updater, and an in-memory implementation of it.
// Implementations backed by cloud storage live in subpackages.
package blob

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the named object does not exist.
	ErrNotFound = errors.New("blob: object not found")
	// ErrPreconditionFailed is returned by Put when its Condition
	// does not hold.
	ErrPreconditionFailed = errors.New("blob: precondition failed")
)

// Store is a bucket of named objects.
type Store interface {
	// Get reads the named object. It returns ErrNotFound if the
	// object does not exist.
	Get(ctx context.Context, name string) (*Object, error)

	// Exists reports whether the named object exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Put writes the named object, replacing any existing content.
	// If cond is not nil, the write only happens if cond holds at
	// the time of the write; otherwise Put returns
	// ErrPreconditionFailed and the object is unchanged.
	Put(ctx context.Context, name string, data []byte, contentType string, cond *Condition) error

	// List returns the attributes of every object whose name
	// starts with prefix, in name order.
	List(ctx context.Context, prefix string) ([]Attrs, error)
}

// An Object is the content of a stored object.
type Object struct {
	Name        string
	Data        []byte
	ContentType string
	// Version identifies this content of the object. It is opaque
	// and only meaningful to the Store that returned it.
	Version string
}

// Attrs describes a stored object without its content.
type Attrs struct {
	Name    string
	Version string
	Size    int64
	Created time.Time
}

// A Condition is a precondition on a write.
type Condition struct {
	// DoesNotExist requires that the object not exist.
	DoesNotExist bool
	// Version, if DoesNotExist is false, requires that the object's
	// current version be Version.
	Version string
}

// IfVersion returns the Condition that an object is still at the
// version of obj, or does not exist if obj is nil.
func IfVersion(obj *Object) *Condition {
	if obj == nil {
		return &Condition{DoesNotExist: true}
	}
	return &Condition{Version: obj.Version}
}
