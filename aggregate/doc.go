// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package aggregate implements the aggregate benchmark document: the
// single JSON object that holds every benchmark record uploaded to a
// bucket together with the commit history used to order them.
//
// The document has the form
//
//	{
//	  "benchmarks": [ {...arbitrary fields..., "commitHash": "<hash>"}, ... ],
//	  "commits": [ {"hash": "<hash>", "parent": "<hash-or-null>", "timestamp": <time>}, ... ]
//	}
//
// Benchmarks are appended in arrival order and never rewritten.
// Commits are kept sorted by timestamp; see Timestamp.Compare for how
// numeric and string timestamps are ordered.
package aggregate
