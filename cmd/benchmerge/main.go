// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Benchmerge merges benchmark payloads uploaded to a bucket into the
// bucket's aggregate document, benchmark_data.json.
//
// Usage:
//
//	benchmerge [--config file] [--log-mode mode] command
//
// The serve command runs the HTTP receiver for storage notifications.
// The apply, rebuild, show and history commands operate on the
// configured bucket directly.
package main

import (
	"fmt"
	"os"

	"github.com/benchdisplay/benchmerge/cmd/benchmerge/commands"
	"github.com/benchdisplay/benchmerge/cmd/benchmerge/internal/clierr"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "benchmerge:", err)
		os.Exit(clierr.ExitCodeOf(err))
	}
}
