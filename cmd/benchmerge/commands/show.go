// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newShowCmd(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Summarize the aggregate document",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.load(); err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := o.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			doc, version, err := e.updater.Current(ctx)
			if err != nil {
				return exitErr(err)
			}
			w := cmd.OutOrStdout()
			if asJSON {
				data, err := doc.Marshal()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(w, "%s\n", data)
				return err
			}
			if version == "" {
				version = "(none)"
			}
			fmt.Fprintf(w, "version: %s\n", version)
			fmt.Fprintf(w, "benchmarks: %d\n", len(doc.Benchmarks))
			fmt.Fprintf(w, "commits: %d\n", len(doc.Commits))
			if len(doc.Commits) == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "HASH\tTIMESTAMP\tPARENT")
			for _, c := range doc.Commits {
				parent := "-"
				if c.Parent != nil {
					parent = *c.Parent
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Hash, c.Timestamp, parent)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the document itself")
	return cmd
}
