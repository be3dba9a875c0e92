// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aggregate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Object names shared by every producer and consumer of the bucket.
// They must not change: the display reads them directly.
const (
	// DocumentName is the name of the aggregate document.
	DocumentName = "benchmark_data.json"
	// DocumentContentType is the content type the document is written with.
	DocumentContentType = "application/json"
	// PayloadPrefix starts the name of every benchmark payload.
	PayloadPrefix = "benchmark_"
	// CommitHashField is the record field set to the payload's commit.
	CommitHashField = "commitHash"
)

// CommitName returns the name of the commit metadata object for hash.
func CommitName(hash string) string {
	return "commits/commit_" + hash + ".json"
}

// A Document is the aggregate of every benchmark payload seen so far.
type Document struct {
	// Benchmarks holds records in arrival order. It is only ever
	// appended to.
	Benchmarks []Record
	// Commits is kept sorted by Timestamp.
	Commits []Commit

	// extra holds unknown top-level fields so they survive a rewrite.
	extra Record
}

// New returns an empty document.
func New() *Document {
	return &Document{Benchmarks: []Record{}, Commits: []Commit{}}
}

// Parse decodes an aggregate document. Missing or null benchmarks and
// commits fields are treated as empty.
func Parse(data []byte) (*Document, error) {
	d := New()
	if err := json.Unmarshal(data, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Marshal encodes d as it is stored in the bucket.
func (d *Document) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	benchmarks, commits := d.Benchmarks, d.Commits
	if benchmarks == nil {
		benchmarks = []Record{}
	}
	if commits == nil {
		commits = []Commit{}
	}
	buf.WriteString(`{"benchmarks":`)
	if err := encodeTo(&buf, benchmarks); err != nil {
		return nil, err
	}
	buf.WriteString(`,"commits":`)
	if err := encodeTo(&buf, commits); err != nil {
		return nil, err
	}
	for _, f := range d.extra.fields {
		buf.WriteByte(',')
		if err := encodeTo(&buf, f.key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		buf.Write(f.value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeTo(buf *bytes.Buffer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var all Record
	if err := all.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("aggregate document: %w", err)
	}
	d.Benchmarks, d.Commits = []Record{}, []Commit{}
	d.extra = Record{}
	for _, f := range all.fields {
		switch f.key {
		case "benchmarks":
			if err := decodeList(f.value, &d.Benchmarks); err != nil {
				return fmt.Errorf("benchmarks: %w", err)
			}
		case "commits":
			if err := decodeList(f.value, &d.Commits); err != nil {
				return fmt.Errorf("commits: %w", err)
			}
		default:
			d.extra.fields = append(d.extra.fields, f)
		}
	}
	return nil
}

// decodeList decodes a JSON array into list, leaving list untouched
// for null. Any other JSON kind is an error.
func decodeList(raw json.RawMessage, list interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] != '[' {
		return fmt.Errorf("want array, found %.32s", raw)
	}
	return json.Unmarshal(raw, list)
}

// An Update is one benchmark payload ready to be merged.
type Update struct {
	// Hash is the commit hash parsed from the payload's name.
	Hash string
	// Records are the payload's records in payload order.
	Records []Record
	// Commit is the commit metadata, or nil if there was none.
	Commit *Commit
}

// Options adjusts how Apply merges an Update.
type Options struct {
	// SkipKnownCommits drops the update's commit if the document
	// already has a commit with the same hash.
	SkipKnownCommits bool
}

// Applied describes what Apply changed.
type Applied struct {
	Appended    int
	CommitAdded bool
}

// Apply merges u into d: every record gets CommitHashField set to
// u.Hash and is appended in order, the commit (if any) is appended,
// and the commits are re-sorted by timestamp. The records in u are
// not modified.
func (d *Document) Apply(u Update, opts Options) (Applied, error) {
	var a Applied
	for i := range u.Records {
		rec := u.Records[i].Clone()
		if err := rec.Set(CommitHashField, u.Hash); err != nil {
			return a, err
		}
		d.Benchmarks = append(d.Benchmarks, rec)
		a.Appended++
	}
	if u.Commit != nil && !(opts.SkipKnownCommits && d.HasCommit(u.Commit.Hash)) {
		d.Commits = append(d.Commits, *u.Commit)
		a.CommitAdded = true
	}
	d.SortCommits()
	return a, nil
}

// HasCommit reports whether d has a commit entry for hash.
func (d *Document) HasCommit(hash string) bool {
	for _, c := range d.Commits {
		if c.Hash == hash {
			return true
		}
	}
	return false
}

// SortCommits sorts d.Commits by timestamp. Entries with equal
// timestamps keep their relative order.
func (d *Document) SortCommits() {
	sort.SliceStable(d.Commits, func(i, j int) bool {
		return d.Commits[i].Timestamp.Compare(d.Commits[j].Timestamp) < 0
	})
}

// CommitsSorted reports whether d.Commits is in timestamp order.
func (d *Document) CommitsSorted() bool {
	return sort.SliceIsSorted(d.Commits, func(i, j int) bool {
		return d.Commits[i].Timestamp.Compare(d.Commits[j].Timestamp) < 0
	})
}

// CopyExtra replaces the unknown top-level fields of d with those
// of src.
func (d *Document) CopyExtra(src *Document) {
	d.extra = src.extra.Clone()
}
