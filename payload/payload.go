// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package payload decodes uploaded benchmark payloads into aggregate
// records.
//
// A payload is either a JSON array of objects, which are taken as
// records verbatim, or the output of "go test -bench" (the Go
// benchmark format), which is summarized into one record per
// benchmark. Content that starts with '[' is always JSON; otherwise
// the format is chosen by the object's file extension.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/benchdisplay/benchmerge/aggregate"
)

// A Format is a payload encoding.
type Format int

const (
	JSON Format = iota
	GoBench
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case GoBench:
		return "gobench"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FormatOf returns the format of the payload object name.
// ".txt", ".bench" and ".out" files are Go benchmark text; anything
// else is JSON.
func FormatOf(name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".txt", ".bench", ".out":
		return GoBench
	}
	return JSON
}

// Decode decodes the payload stored in the object name. A JSON array
// is accepted under any extension.
func Decode(name string, data []byte) ([]aggregate.Record, error) {
	if FormatOf(name) == GoBench && !isJSONArray(data) {
		return DecodeGoBench(name, data)
	}
	return DecodeJSON(data)
}

// isJSONArray reports whether data looks like a JSON array. Go
// benchmark text never starts with '['.
func isJSONArray(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// ErrNotArray is returned by DecodeJSON for JSON that is not an array.
var ErrNotArray = errors.New("payload is not a JSON array")

// DecodeJSON decodes a JSON array of objects.
func DecodeJSON(data []byte) ([]aggregate.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		// Let the decoder produce a positioned message.
		var v interface{}
		err := json.Unmarshal(trimmed, &v)
		if err == nil {
			err = errors.New("invalid JSON")
		}
		return nil, err
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, err
	}
	recs := make([]aggregate.Record, len(raws))
	for i, raw := range raws {
		if err := recs[i].UnmarshalJSON(raw); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return recs, nil
}
