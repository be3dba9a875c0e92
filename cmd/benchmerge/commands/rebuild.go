// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRebuildCmd(o *options) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Recreate the aggregate document from every payload in the bucket",
		Long: "rebuild replays every benchmark_* payload, oldest first, into a fresh\n" +
			"aggregate document and replaces the current one, unless another writer\n" +
			"changed it in the meantime.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.load(); err != nil {
				return err
			}
			ctx, cancel := o.updateContext(cmd.Context())
			defer cancel()
			e, err := o.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			doc, stats, err := e.updater.Rebuild(ctx, dryRun)
			if err != nil {
				return exitErr(err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "payloads: %d\n", stats.Payloads)
			fmt.Fprintf(w, "skipped: %d\n", stats.Skipped)
			fmt.Fprintf(w, "records: %d\n", stats.Records)
			fmt.Fprintf(w, "commits: %d\n", len(doc.Commits))
			if dryRun {
				fmt.Fprintln(w, "dry run: aggregate not written")
			} else if stats.Written {
				fmt.Fprintln(w, "aggregate written")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the document without writing it")
	return cmd
}
