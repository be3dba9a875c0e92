// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/benchdisplay/benchmerge/cmd/benchmerge/internal/clierr"
	"github.com/spf13/cobra"
)

func newHistoryCmd(o *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently applied payloads from the ledger",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.load(); err != nil {
				return err
			}
			if limit < 0 {
				return clierr.Newf(clierr.Usage, "history: --limit must not be negative, got %d", limit)
			}
			if o.cfg.Ledger.Driver == "" {
				return clierr.New(clierr.Usage, "history: no ledger configured (set ledger.driver)")
			}
			ctx := cmd.Context()
			e, err := o.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			events, err := e.ledger.Recent(ctx, limit)
			if err != nil {
				return clierr.Wrap(clierr.Transient, "history", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "APPLIED\tOBJECT\tVERSION\tCOMMIT\tRECORDS")
			for _, ev := range events {
				fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\t%d\n",
					ev.AppliedAt.Format(time.RFC3339), ev.Bucket, ev.Name, ev.Version, ev.CommitHash, ev.Records)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "show at most `n` entries (0 for all)")
	return cmd
}
