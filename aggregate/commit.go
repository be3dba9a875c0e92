// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aggregate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// A Commit is the commit history entry kept in the aggregate
// document. It is built from the commit metadata file uploaded
// next to a benchmark payload.
type Commit struct {
	Hash string `json:"hash"`
	// Parent is the hash of the predecessor commit. It is nil for
	// root commits and when the metadata did not name one.
	Parent    *string   `json:"parent"`
	Timestamp Timestamp `json:"timestamp"`
}

// ParseCommit parses a commit metadata file. Fields other than hash,
// parent and timestamp are ignored. hash and timestamp are required.
func ParseCommit(data []byte) (*Commit, error) {
	var raw struct {
		Hash      *string         `json:"hash"`
		Parent    json.RawMessage `json:"parent"`
		Timestamp Timestamp       `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Hash == nil || *raw.Hash == "" {
		return nil, errors.New("commit metadata has no hash")
	}
	if raw.Timestamp.IsZero() {
		return nil, errors.New("commit metadata has no timestamp")
	}
	c := &Commit{Hash: *raw.Hash, Timestamp: raw.Timestamp}
	if len(raw.Parent) > 0 && !bytes.Equal(raw.Parent, []byte("null")) {
		var parent string
		if err := json.Unmarshal(raw.Parent, &parent); err != nil {
			return nil, fmt.Errorf("commit parent: %w", err)
		}
		c.Parent = &parent
	}
	return c, nil
}

// A Timestamp is a commit time as it appeared in the commit
// metadata: a JSON number or string, kept verbatim.
type Timestamp struct {
	raw json.RawMessage
}

// NumberTimestamp returns a Timestamp holding the number v.
func NumberTimestamp(v float64) Timestamp {
	raw, _ := json.Marshal(v)
	return Timestamp{raw}
}

// StringTimestamp returns a Timestamp holding the string s.
func StringTimestamp(s string) Timestamp {
	raw, _ := json.Marshal(s)
	return Timestamp{raw}
}

// ParseTimestamp returns s as a number Timestamp if it is a JSON
// number and as a string Timestamp otherwise.
func ParseTimestamp(s string) Timestamp {
	if _, err := strconv.ParseFloat(s, 64); err == nil && json.Valid([]byte(s)) {
		return Timestamp{json.RawMessage(s)}
	}
	return StringTimestamp(s)
}

// IsZero reports whether t is missing or JSON null.
func (t Timestamp) IsZero() bool {
	return len(t.raw) == 0 || bytes.Equal(t.raw, []byte("null"))
}

func (t Timestamp) String() string {
	if len(t.raw) == 0 {
		return "null"
	}
	return string(t.raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if len(t.raw) == 0 {
		return []byte("null"), nil
	}
	return t.raw, nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.raw = append(t.raw[:0], data...)
	return nil
}

// Timestamp classes, in sort order.
const (
	classChrono = iota // numbers and parseable date strings
	classString        // any other string
	classOther         // null, missing, or other JSON kinds
)

type sortKey struct {
	class int
	num   float64
	str   string
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t Timestamp) key() sortKey {
	if t.IsZero() {
		return sortKey{class: classOther}
	}
	switch t.raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(t.raw, &s); err != nil {
			return sortKey{class: classOther}
		}
		for _, layout := range timeLayouts {
			if tm, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				return sortKey{class: classChrono, num: float64(tm.UnixNano()) / 1e9}
			}
		}
		return sortKey{class: classString, str: s}
	case '{', '[', 't', 'f':
		return sortKey{class: classOther, str: string(t.raw)}
	}
	var f float64
	if err := json.Unmarshal(t.raw, &f); err != nil || math.IsNaN(f) {
		return sortKey{class: classOther, str: string(t.raw)}
	}
	return sortKey{class: classChrono, num: f}
}

// Compare returns -1, 0 or +1 depending on whether t sorts before,
// together with, or after u.
//
// Numbers and strings that parse as RFC 3339 dates are ordered in time
// (numbers are Unix seconds). They sort before other strings, which are
// ordered lexicographically, and those sort before null or any other
// kind of value.
func (t Timestamp) Compare(u Timestamp) int {
	a, b := t.key(), u.key()
	switch {
	case a.class != b.class:
		return cmpInt(a.class, b.class)
	case a.num < b.num:
		return -1
	case a.num > b.num:
		return 1
	}
	return strings.Compare(a.str, b.str)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
