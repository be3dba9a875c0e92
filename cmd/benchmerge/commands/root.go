// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package commands implements the benchmerge command line.
package commands

import (
	"fmt"

	"github.com/benchdisplay/benchmerge/cmd/benchmerge/internal/clierr"
	"github.com/benchdisplay/benchmerge/internal/config"
	"github.com/benchdisplay/benchmerge/internal/logger"
	"github.com/spf13/cobra"
)

// Version is reported by the version command and attached to traces.
// It is set at link time with -ldflags "-X ...commands.Version=v1.2.3".
var Version = "devel"

// options holds the global flags and what is derived from them.
type options struct {
	configPath string
	logMode    string

	cfg config.Config
	log *logger.Logger
}

// load reads the configuration and creates the logger. Commands that
// touch the bucket call it first.
func (o *options) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return clierr.Wrap(clierr.Usage, "config", err)
	}
	if o.logMode != "" {
		cfg.Log.Mode = o.logMode
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return clierr.Wrap(clierr.Usage, "", err)
	}
	o.cfg, o.log = cfg, log
	return nil
}

// NewRootCmd constructs the benchmerge root command.
func NewRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "benchmerge",
		Short: "Merge uploaded benchmark payloads into benchmark_data.json",
		Long: "benchmerge keeps a bucket's aggregate benchmark document up to date.\n" +
			"Each benchmark_<commit>.<ext> payload written to the bucket is appended\n" +
			"to benchmark_data.json together with its commit metadata.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			o.log.Sync()
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return clierr.Wrap(clierr.Usage, "", err)
	})

	cmd.PersistentFlags().StringVar(&o.configPath, "config", "", "read configuration from `file` (.toml, .yaml or .yml)")
	cmd.PersistentFlags().StringVar(&o.logMode, "log-mode", "", "log `mode`: development or production (overrides log.mode)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version of benchmerge",
		Args:  noArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "benchmerge version %s\n", Version)
		},
	})
	cmd.AddCommand(newServeCmd(o))
	cmd.AddCommand(newApplyCmd(o))
	cmd.AddCommand(newRebuildCmd(o))
	cmd.AddCommand(newShowCmd(o))
	cmd.AddCommand(newHistoryCmd(o))
	return cmd
}

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return clierr.Wrap(clierr.Usage, "", err)
	}
	return nil
}
