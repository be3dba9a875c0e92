// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"encoding/json"

	"github.com/benchdisplay/benchmerge/cmd/benchmerge/internal/clierr"
	"github.com/benchdisplay/benchmerge/updater"
	"github.com/spf13/cobra"
)

func newApplyCmd(o *options) *cobra.Command {
	var ev updater.Event
	cmd := &cobra.Command{
		Use:   "apply --name benchmark_<commit>.<ext>",
		Short: "Merge one payload into the aggregate document",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ev.Name == "" {
				return clierr.New(clierr.Usage, "apply: --name is required")
			}
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

			if ev.Bucket == "" {
				ev.Bucket = o.cfg.Storage.Bucket
			}
			res, err := e.updater.Handle(ctx, ev)
			if err != nil {
				return exitErr(err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "\t")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&ev.Name, "name", "", "payload object `name`")
	cmd.Flags().StringVar(&ev.Generation, "generation", "", "object `generation` reported by the notification")
	cmd.Flags().StringVar(&ev.Bucket, "bucket", "", "`bucket` of the object (default storage.bucket)")
	return cmd
}
