// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benchdisplay/benchmerge/cmd/benchmerge/internal/clierr"
	"github.com/benchdisplay/benchmerge/internal/config"
	"github.com/benchdisplay/benchmerge/internal/logger"
	"github.com/benchdisplay/benchmerge/storage/app"
	"github.com/spf13/cobra"
	"google.golang.org/api/idtoken"
)

func newServeCmd(o *options) *cobra.Command {
	var (
		addr         string
		applyUploads bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP receiver for storage notifications",
		Long: "serve accepts Pub/Sub push requests, CloudEvents and plain object\n" +
			"references on /events and merges each announced payload.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.load(); err != nil {
				return err
			}
			if addr != "" {
				o.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := o.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			auth, err := authFunc(ctx, o.cfg.Server)
			if err != nil {
				return err
			}
			if auth == nil {
				o.log.Warn("no authentication configured; /events and /upload accept any caller")
			}
			a := &app.App{
				Updater:      e.updater,
				Log:          o.log,
				Auth:         auth,
				Timeout:      o.cfg.UpdateTimeout(),
				ApplyUploads: applyUploads,
			}
			mux := http.NewServeMux()
			a.RegisterOnMux(mux)

			ln, err := net.Listen("tcp", o.cfg.Server.Addr)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			o.log.Info("listening", "addr", ln.Addr().String(), "bucket", o.cfg.Storage.Bucket)
			return serve(ctx, srv, ln, o.cfg.ShutdownTimeout(), o.log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "serve HTTP on `address` (overrides server.addr)")
	cmd.Flags().BoolVar(&applyUploads, "apply-uploads", false, "merge payloads posted to /upload right away")
	return cmd
}

// newValidator builds the ID token validator. Tests replace it.
var newValidator = func(ctx context.Context) (app.TokenValidator, error) {
	return idtoken.NewValidator(ctx)
}

// authFunc returns the App.Auth function cfg asks for, or nil if the
// server is open.
func authFunc(ctx context.Context, sc config.ServerConfig) (func(http.ResponseWriter, *http.Request) error, error) {
	switch {
	case sc.AuthToken != "" && sc.AuthAudience != "":
		return nil, clierr.New(clierr.Usage, "set only one of server.auth_token and server.auth_audience")
	case sc.AuthToken != "":
		return app.BearerAuth(sc.AuthToken), nil
	case sc.AuthAudience != "":
		v, err := newValidator(ctx)
		if err != nil {
			return nil, clierr.Wrap(clierr.Failure, "creating ID token validator", err)
		}
		return app.IDTokenAuth(v, sc.AuthAudience, sc.AuthEmails), nil
	case len(sc.AuthEmails) > 0:
		return nil, clierr.New(clierr.Usage, "server.auth_emails requires server.auth_audience")
	}
	return nil, nil
}

// serve runs srv on ln until ctx is done, then shuts it down, giving
// in-flight requests up to grace to finish.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration, log *logger.Logger) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down", "grace", grace.String())
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
