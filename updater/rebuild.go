// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package updater

import (
	"context"
	"errors"
	"sort"

	"github.com/benchdisplay/benchmerge/aggregate"
	"github.com/benchdisplay/benchmerge/payload"
	"github.com/benchdisplay/benchmerge/storage/blob"
	"golang.org/x/sync/errgroup"
)

// rebuildFetchLimit bounds concurrent payload reads during Rebuild.
const rebuildFetchLimit = 8

// RebuildStats summarizes a Rebuild.
type RebuildStats struct {
	Payloads int `json:"payloads"`
	// Skipped counts payloads that could not be decoded or whose
	// commit metadata was malformed.
	Skipped int `json:"skipped"`
	Records int `json:"records"`
	Commits int `json:"commits"`
	Written bool `json:"written"`
}

type rebuildItem struct {
	attrs   blob.Attrs
	hash    string
	records []aggregate.Record
	commit  *aggregate.Commit
	skip    error
}

// Rebuild replays every payload in the bucket, oldest first, into a
// fresh aggregate document. Unless dryRun is set, the result replaces
// the current document, provided no other writer changed it in the
// meantime. Unknown top-level fields of the current document are kept.
func (u *Updater) Rebuild(ctx context.Context, dryRun bool) (*aggregate.Document, RebuildStats, error) {
	var stats RebuildStats
	if u.Locker != nil && !dryRun {
		unlock, err := u.Locker.Lock(ctx, u.Bucket+"/"+aggregate.DocumentName)
		if err != nil {
			return nil, stats, &Error{Op: "lock", Name: aggregate.DocumentName, Kind: ErrStoreUnavailable, Err: err}
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				u.Log.Warn("releasing aggregate lock", "error", err)
			}
		}()
	}

	// The version is read before listing so that a payload merged
	// after the listing makes the final write fail.
	cur, version, err := u.Current(ctx)
	if err != nil {
		return nil, stats, err
	}

	attrs, err := u.Store.List(ctx, aggregate.PayloadPrefix)
	if err != nil {
		return nil, stats, &Error{Op: "list payloads", Name: aggregate.PayloadPrefix, Kind: ErrStoreUnavailable, Err: err}
	}
	var items []*rebuildItem
	for _, a := range attrs {
		if skipReason(a.Name) != "" {
			continue
		}
		hash, _, err := ParseName(a.Name)
		if err != nil {
			u.Log.Warn("ignoring object with invalid name", "name", a.Name, "error", err)
			continue
		}
		items = append(items, &rebuildItem{attrs: a, hash: hash})
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].attrs, items[j].attrs
		if !a.Created.Equal(b.Created) {
			return a.Created.Before(b.Created)
		}
		return a.Name < b.Name
	})
	stats.Payloads = len(items)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rebuildFetchLimit)
	for _, it := range items {
		g.Go(func() error {
			return u.fetchItem(gctx, it)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	doc := aggregate.New()
	doc.CopyExtra(cur)
	for _, it := range items {
		if it.skip != nil {
			stats.Skipped++
			u.Log.Warn("skipping payload", "name", it.attrs.Name, "error", it.skip)
			continue
		}
		a, err := doc.Apply(aggregate.Update{Hash: it.hash, Records: it.records, Commit: it.commit}, u.Options)
		if err != nil {
			return nil, stats, &Error{Op: "merge", Name: it.attrs.Name, Kind: ErrMalformedPayload, Err: err}
		}
		stats.Records += a.Appended
		if a.CommitAdded {
			stats.Commits++
		}
	}
	if dryRun {
		return doc, stats, nil
	}

	data, err := doc.Marshal()
	if err != nil {
		return nil, stats, &Error{Op: "encode aggregate", Name: aggregate.DocumentName, Kind: ErrMalformedAggregate, Err: err}
	}
	cond := &blob.Condition{Version: version}
	if version == "" {
		cond = blob.IfVersion(nil)
	}
	if err := u.Store.Put(ctx, aggregate.DocumentName, data, aggregate.DocumentContentType, cond); err != nil {
		kind := ErrStoreUnavailable
		if errors.Is(err, blob.ErrPreconditionFailed) {
			kind = ErrConflict
		}
		return nil, stats, &Error{Op: "write aggregate", Name: aggregate.DocumentName, Kind: kind, Err: err}
	}
	stats.Written = true
	u.Log.Info("rebuilt aggregate", "payloads", stats.Payloads, "skipped", stats.Skipped, "records", stats.Records, "commits", stats.Commits)
	return doc, stats, nil
}

// fetchItem reads and decodes one payload and its commit metadata.
// Data errors are recorded in it.skip; store errors are returned.
func (u *Updater) fetchItem(ctx context.Context, it *rebuildItem) error {
	obj, err := u.Store.Get(ctx, it.attrs.Name)
	if err != nil {
		return &Error{Op: "read payload", Name: it.attrs.Name, Kind: ErrStoreUnavailable, Err: err}
	}
	if it.records, err = payload.Decode(it.attrs.Name, obj.Data); err != nil {
		it.skip = &Error{Op: "decode payload", Name: it.attrs.Name, Kind: ErrMalformedPayload, Err: err}
		return nil
	}
	it.commit, err = u.readCommit(ctx, it.hash, u.Log)
	if err != nil {
		if Permanent(err) {
			it.skip = err
			return nil
		}
		return err
	}
	return nil
}
