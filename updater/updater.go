// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package updater merges newly uploaded benchmark payloads into the
// aggregate document of a bucket.
//
// Handle is called once per storage notification. It reads the
// payload named by the event, reads the commit metadata uploaded for
// the same hash (if any), and rewrites benchmark_data.json with the
// payload's records appended and the commit added to the sorted
// commit history. The aggregate is written with a version
// precondition, so concurrent updates are retried instead of lost.
package updater

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/benchdisplay/benchmerge/aggregate"
	"github.com/benchdisplay/benchmerge/internal/logger"
	"github.com/benchdisplay/benchmerge/payload"
	"github.com/benchdisplay/benchmerge/storage/blob"
	"github.com/benchdisplay/benchmerge/storage/db"
	"github.com/benchdisplay/benchmerge/storage/lock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxAttempts is the number of compare-and-swap attempts made
// when MaxAttempts is zero.
const DefaultMaxAttempts = 5

const tracerName = "github.com/benchdisplay/benchmerge/updater"

// A Ledger remembers which events were applied.
// *db.DB implements Ledger.
type Ledger interface {
	Seen(ctx context.Context, bucket, name, version string) (bool, error)
	Record(ctx context.Context, e db.Event) error
}

// An Updater applies events for one bucket.
type Updater struct {
	// Store holds the bucket's objects.
	Store blob.Store
	// Bucket names the bucket behind Store. Events for other buckets
	// are skipped. If empty, events for any bucket are applied.
	Bucket string
	// Ledger, if not nil, is consulted to skip events that were
	// already applied.
	Ledger Ledger
	// Locker, if not nil, serializes writers of the aggregate.
	Locker lock.Locker
	// Log receives progress and warnings. It may be nil.
	Log *logger.Logger
	// Tracer creates the spans for each event. If nil, the global
	// tracer provider is used.
	Tracer trace.Tracer
	// MaxAttempts bounds the compare-and-swap loop.
	MaxAttempts int
	// Backoff returns the delay before retry n (starting at 1).
	// If nil, an exponential backoff with jitter is used.
	Backoff func(n int) time.Duration
	// Options controls the merge.
	Options aggregate.Options
}

// An Event identifies a newly written object.
type Event struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
	// Generation is the object version reported by the notification.
	// It is informational; the version actually read is used for the
	// ledger.
	Generation string `json:"generation,omitempty"`
}

// A Result describes the outcome of Handle.
type Result struct {
	Hash        string `json:"hash,omitempty"`
	Appended    int    `json:"appended"`
	CommitAdded bool   `json:"commitAdded"`
	Attempts    int    `json:"attempts"`
	Skipped     bool   `json:"skipped,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (u *Updater) tracer() trace.Tracer {
	if u.Tracer != nil {
		return u.Tracer
	}
	return otel.Tracer(tracerName)
}

func (u *Updater) maxAttempts() int {
	if u.MaxAttempts > 0 {
		return u.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (u *Updater) backoff(n int) time.Duration {
	if u.Backoff != nil {
		return u.Backoff(n)
	}
	d := 50 * time.Millisecond << (n - 1)
	if d > 2*time.Second || d <= 0 {
		d = 2 * time.Second
	}
	return d/2 + rand.N(d/2+1)
}

// Handle merges the payload named by ev into the aggregate document.
// Objects that are not payloads are skipped without any I/O.
func (u *Updater) Handle(ctx context.Context, ev Event) (res *Result, err error) {
	ctx, span := u.tracer().Start(ctx, "updater.Handle", trace.WithAttributes(
		attribute.String("bucket", ev.Bucket),
		attribute.String("name", ev.Name),
	))
	defer func() {
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("outcome", "error"))
		case res.Skipped:
			span.SetAttributes(attribute.String("outcome", "skipped"), attribute.String("reason", res.Reason))
		default:
			span.SetAttributes(
				attribute.String("outcome", "applied"),
				attribute.Int("appended", res.Appended),
				attribute.Int("attempts", res.Attempts),
			)
		}
		span.End()
	}()

	log := u.Log.With("bucket", ev.Bucket, "name", ev.Name)
	if reason := skipReason(ev.Name); reason != "" {
		log.Debug("skipping object", "reason", reason)
		return &Result{Skipped: true, Reason: reason}, nil
	}
	if u.Bucket != "" && ev.Bucket != "" && ev.Bucket != u.Bucket {
		log.Warn("skipping event for another bucket", "served", u.Bucket)
		return &Result{Skipped: true, Reason: "unknown bucket"}, nil
	}
	bucket := ev.Bucket
	if bucket == "" {
		bucket = u.Bucket
	}

	hash, _, err := ParseName(ev.Name)
	if err != nil {
		return nil, &Error{Op: "parse name", Name: ev.Name, Kind: ErrInvalidName, Err: err}
	}
	span.SetAttributes(attribute.String("hash", hash))
	res = &Result{Hash: hash}

	obj, err := u.Store.Get(ctx, ev.Name)
	if err != nil {
		return nil, &Error{Op: "read payload", Name: ev.Name, Kind: ErrStoreUnavailable, Err: err}
	}
	records, err := payload.Decode(ev.Name, obj.Data)
	if err != nil {
		return nil, &Error{Op: "decode payload", Name: ev.Name, Kind: ErrMalformedPayload, Err: err}
	}

	if seen, err := u.seen(ctx, bucket, ev.Name, obj.Version); err != nil {
		return nil, err
	} else if seen {
		log.Info("event already applied", "version", obj.Version)
		res.Skipped, res.Reason = true, "already applied"
		return res, nil
	}

	if u.Locker != nil {
		unlock, err := u.Locker.Lock(ctx, bucket+"/"+aggregate.DocumentName)
		if err != nil {
			return nil, &Error{Op: "lock", Name: aggregate.DocumentName, Kind: ErrStoreUnavailable, Err: err}
		}
		defer func() {
			// The write is durable by now.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				log.Warn("releasing aggregate lock", "error", err)
			}
		}()
		// A concurrent delivery of the same event may have been
		// applied while we waited.
		if seen, err := u.seen(ctx, bucket, ev.Name, obj.Version); err != nil {
			return nil, err
		} else if seen {
			log.Info("event applied while waiting for the lock", "version", obj.Version)
			res.Skipped, res.Reason = true, "already applied"
			return res, nil
		}
	}

	commit, err := u.readCommit(ctx, hash, log)
	if err != nil {
		return nil, err
	}

	upd := aggregate.Update{Hash: hash, Records: records, Commit: commit}
	applied, attempts, err := u.write(ctx, log, func(doc *aggregate.Document) (aggregate.Applied, error) {
		return doc.Apply(upd, u.Options)
	})
	res.Attempts = attempts
	if err != nil {
		return nil, err
	}
	res.Appended, res.CommitAdded = applied.Appended, applied.CommitAdded
	log.Info("merged payload", "hash", hash, "appended", res.Appended, "commitAdded", res.CommitAdded, "attempts", res.Attempts)

	if u.Ledger != nil {
		e := db.Event{Bucket: bucket, Name: ev.Name, Version: obj.Version, CommitHash: hash, Records: res.Appended}
		if err := u.Ledger.Record(ctx, e); err != nil {
			log.Error("recording event in ledger", "error", err)
		}
	}
	return res, nil
}

// seen reports whether the ledger, if any, already has the event.
func (u *Updater) seen(ctx context.Context, bucket, name, version string) (bool, error) {
	if u.Ledger == nil {
		return false, nil
	}
	ok, err := u.Ledger.Seen(ctx, bucket, name, version)
	if err != nil {
		return false, &Error{Op: "check ledger", Name: name, Kind: ErrStoreUnavailable, Err: err}
	}
	return ok, nil
}

// readCommit returns the commit metadata uploaded for hash, or nil if
// there is none.
func (u *Updater) readCommit(ctx context.Context, hash string, log *logger.Logger) (*aggregate.Commit, error) {
	name := aggregate.CommitName(hash)
	obj, err := u.Store.Get(ctx, name)
	if errors.Is(err, blob.ErrNotFound) {
		log.Debug("no commit metadata", "commit", name)
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Op: "read commit", Name: name, Kind: ErrStoreUnavailable, Err: err}
	}
	c, err := aggregate.ParseCommit(obj.Data)
	if err != nil {
		return nil, &Error{Op: "parse commit", Name: name, Kind: ErrMalformedCommit, Err: err}
	}
	if c.Hash != hash {
		log.Warn("commit metadata names a different hash", "commit", name, "metadataHash", c.Hash)
	}
	return c, nil
}

// Current returns the aggregate document and its version. A missing
// document is returned as an empty document with an empty version.
func (u *Updater) Current(ctx context.Context) (*aggregate.Document, string, error) {
	obj, err := u.Store.Get(ctx, aggregate.DocumentName)
	if errors.Is(err, blob.ErrNotFound) {
		return aggregate.New(), "", nil
	}
	if err != nil {
		return nil, "", &Error{Op: "read aggregate", Name: aggregate.DocumentName, Kind: ErrStoreUnavailable, Err: err}
	}
	doc, err := aggregate.Parse(obj.Data)
	if err != nil {
		return nil, "", &Error{Op: "parse aggregate", Name: aggregate.DocumentName, Kind: ErrMalformedAggregate, Err: err}
	}
	return doc, obj.Version, nil
}

// write runs a read-modify-write cycle on the aggregate document,
// retrying with backoff when another writer got there first.
func (u *Updater) write(ctx context.Context, log *logger.Logger, mutate func(*aggregate.Document) (aggregate.Applied, error)) (aggregate.Applied, int, error) {
	limit := u.maxAttempts()
	for attempt := 1; ; attempt++ {
		applied, err := u.writeOnce(ctx, mutate)
		if err == nil {
			return applied, attempt, nil
		}
		if !errors.Is(err, blob.ErrPreconditionFailed) {
			return applied, attempt, err
		}
		if attempt >= limit {
			return applied, attempt, &Error{Op: "write aggregate", Name: aggregate.DocumentName, Kind: ErrConflict, Err: err}
		}
		d := u.backoff(attempt)
		log.Info("aggregate changed concurrently, retrying", "attempt", attempt, "backoff", d)
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return applied, attempt, &Error{Op: "write aggregate", Name: aggregate.DocumentName, Kind: ErrStoreUnavailable, Err: ctx.Err()}
		case <-t.C:
		}
	}
}

// writeOnce reads, mutates and conditionally writes the document.
// A lost race is returned as blob.ErrPreconditionFailed, unwrapped.
func (u *Updater) writeOnce(ctx context.Context, mutate func(*aggregate.Document) (aggregate.Applied, error)) (aggregate.Applied, error) {
	var cond *blob.Condition
	doc := aggregate.New()
	obj, err := u.Store.Get(ctx, aggregate.DocumentName)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		cond = blob.IfVersion(nil)
	case err != nil:
		return aggregate.Applied{}, &Error{Op: "read aggregate", Name: aggregate.DocumentName, Kind: ErrStoreUnavailable, Err: err}
	default:
		if doc, err = aggregate.Parse(obj.Data); err != nil {
			return aggregate.Applied{}, &Error{Op: "parse aggregate", Name: aggregate.DocumentName, Kind: ErrMalformedAggregate, Err: err}
		}
		cond = blob.IfVersion(obj)
	}
	applied, err := mutate(doc)
	if err != nil {
		return applied, &Error{Op: "merge", Name: aggregate.DocumentName, Kind: ErrMalformedPayload, Err: err}
	}
	data, err := doc.Marshal()
	if err != nil {
		return applied, &Error{Op: "encode aggregate", Name: aggregate.DocumentName, Kind: ErrMalformedAggregate, Err: err}
	}
	err = u.Store.Put(ctx, aggregate.DocumentName, data, aggregate.DocumentContentType, cond)
	if errors.Is(err, blob.ErrPreconditionFailed) {
		return applied, blob.ErrPreconditionFailed
	}
	if err != nil {
		return applied, &Error{Op: "write aggregate", Name: aggregate.DocumentName, Kind: ErrStoreUnavailable, Err: err}
	}
	return applied, nil
}
