// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package blob

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory Store. It is safe for concurrent use.
// Versions are decimal generation numbers that increase with every
// write, as they do in Cloud Storage.
type MemStore struct {
	mu      sync.Mutex
	gen     int64
	objects map[string]*memObject

	// Now, if set, is used for object creation times.
	Now func() time.Time
	// BeforePut, if set, is called before each Put takes effect,
	// outside the store's lock. Tests use it to interleave writers.
	BeforePut func(name string)
}

type memObject struct {
	data        []byte
	contentType string
	gen         int64
	created     time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string]*memObject)}
}

func (s *MemStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *MemStore) Get(ctx context.Context, name string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &Object{
		Name:        name,
		Data:        append([]byte(nil), o.data...),
		ContentType: o.contentType,
		Version:     strconv.FormatInt(o.gen, 10),
	}, nil
}

func (s *MemStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[name]
	return ok, nil
}

func (s *MemStore) Put(ctx context.Context, name string, data []byte, contentType string, cond *Condition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.BeforePut != nil {
		s.BeforePut(name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.objects[name]
	if cond != nil {
		switch {
		case cond.DoesNotExist && exists:
			return ErrPreconditionFailed
		case !cond.DoesNotExist && (!exists || strconv.FormatInt(cur.gen, 10) != cond.Version):
			return ErrPreconditionFailed
		}
	}
	s.gen++
	created := s.now()
	s.objects[name] = &memObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		gen:         s.gen,
		created:     created,
	}
	return nil
}

func (s *MemStore) List(ctx context.Context, prefix string) ([]Attrs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Attrs
	for name, o := range s.objects {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, Attrs{
			Name:    name,
			Version: strconv.FormatInt(o.gen, 10),
			Size:    int64(len(o.data)),
			Created: o.created,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Files returns the names of the stored objects, sorted.
func (s *MemStore) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
