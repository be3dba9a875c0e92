// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"context"
	"errors"
	"os"

	"github.com/benchdisplay/benchmerge/aggregate"
	"github.com/benchdisplay/benchmerge/cmd/benchmerge/internal/clierr"
	"github.com/benchdisplay/benchmerge/internal/tracing"
	"github.com/benchdisplay/benchmerge/storage/blob/backend"
	"github.com/benchdisplay/benchmerge/storage/db"
	_ "github.com/benchdisplay/benchmerge/storage/db/sqlite3"
	"github.com/benchdisplay/benchmerge/storage/lock"
	"github.com/benchdisplay/benchmerge/updater"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

// env holds everything opened from the configuration.
type env struct {
	updater *updater.Updater
	// ledger is nil when no ledger is configured.
	ledger  *db.DB
	closers []func() error
}

// Close releases the resources of e in reverse order of opening.
func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}

// updateContext bounds a command's update by updater.timeout.
func (o *options) updateContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := o.cfg.UpdateTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// openStore opens the configured blob store. Tests replace it to
// share a store between commands.
var openStore = backend.Open

// open connects to the configured store, ledger and lock, installs
// the tracer provider, and returns an updater using them.
func (o *options) open(ctx context.Context) (_ *env, err error) {
	cfg := o.cfg
	e := &env{}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	shutdown, err := tracing.Setup(ctx, cfg.Trace.Exporter, os.Stderr, Version, o.log)
	if err != nil {
		return nil, clierr.Wrap(clierr.Usage, "", err)
	}
	e.closers = append(e.closers, func() error { return shutdown(context.Background()) })

	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, clierr.Wrap(clierr.Transient, "open store", err)
	}
	e.closers = append(e.closers, closeStore)

	u := &updater.Updater{
		Store:       store,
		Bucket:      cfg.Storage.Bucket,
		Log:         o.log,
		MaxAttempts: cfg.Updater.MaxAttempts,
		Options:     aggregate.Options{SkipKnownCommits: cfg.Updater.SkipKnownCommits},
	}

	if cfg.Ledger.Driver != "" {
		ledger, err := db.OpenSQL(cfg.Ledger.Driver, cfg.Ledger.DSN)
		if err != nil {
			return nil, clierr.Wrap(clierr.Transient, "open ledger", err)
		}
		e.closers = append(e.closers, ledger.Close)
		e.ledger = ledger
		u.Ledger = ledger
	}

	if cfg.Lock.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.Password,
			DB:       cfg.Lock.DB,
		})
		e.closers = append(e.closers, client.Close)
		u.Locker = lock.NewRedis(client, cfg.LockTTL())
	}

	o.log.Debug("opened bucket",
		"backend", cfg.Storage.Backend,
		"bucket", cfg.Storage.Bucket,
		"ledger", cfg.Ledger.Driver,
		"lock", cfg.Lock.RedisAddr != "")
	e.updater = u
	return e, nil
}

// exitErr attaches the exit code for an update error.
func exitErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case updater.Permanent(err):
		return clierr.Wrap(clierr.BadData, "", err)
	case errors.Is(err, updater.ErrConflict), errors.Is(err, updater.ErrStoreUnavailable):
		return clierr.Wrap(clierr.Transient, "", err)
	}
	return err
}
