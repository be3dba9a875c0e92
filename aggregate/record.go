// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aggregate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// A Record is a single benchmark record: a JSON object whose fields
// are arbitrary except for CommitHashField, which the updater owns.
//
// Records keep the field order they were decoded with, and field
// values are retained as raw JSON, so unknown fields round-trip
// without loss. The zero Record is an empty object.
type Record struct {
	fields []field
}

type field struct {
	key   string
	value json.RawMessage
}

// Len returns the number of fields in r.
func (r *Record) Len() int { return len(r.fields) }

// Keys returns the field names of r in order.
func (r *Record) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.key
	}
	return keys
}

// Get returns the raw JSON value of key.
func (r *Record) Get(key string) (json.RawMessage, bool) {
	if i := r.index(key); i >= 0 {
		return r.fields[i].value, true
	}
	return nil, false
}

// GetString returns the value of key if it is a JSON string.
func (r *Record) GetString(key string) (string, bool) {
	raw, ok := r.Get(key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Set sets key to the JSON encoding of v. An existing key keeps its
// position; a new key is appended.
func (r *Record) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	r.SetRaw(key, raw)
	return nil
}

// SetRaw is like Set but takes an already encoded value.
func (r *Record) SetRaw(key string, raw json.RawMessage) {
	if i := r.index(key); i >= 0 {
		r.fields[i].value = raw
		return
	}
	r.fields = append(r.fields, field{key, raw})
}

// CommitHash returns the record's commitHash field, or "" if it is
// absent or not a string.
func (r *Record) CommitHash() string {
	s, _ := r.GetString(CommitHashField)
	return s
}

// Clone returns a copy of r that shares no field storage with it.
func (r *Record) Clone() Record {
	fields := make([]field, len(r.fields))
	for i, f := range r.fields {
		fields[i] = field{f.key, append(json.RawMessage(nil), f.value...)}
	}
	return Record{fields}
}

func (r *Record) index(key string) int {
	for i, f := range r.fields {
		if f.key == key {
			return i
		}
	}
	return -1
}

// MarshalJSON encodes r as a JSON object with fields in order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if len(f.value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(f.value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into r, replacing its contents.
// A key that appears more than once keeps its first position and its
// last value.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("want JSON object, found %s", describe(tok))
	}
	r.fields = r.fields[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected %s in object key", describe(tok))
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		r.SetRaw(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// describe names the kind of a JSON token for error messages.
func describe(tok json.Token) string {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			return "array"
		case '{':
			return "object"
		}
		return string(t)
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", tok)
}
