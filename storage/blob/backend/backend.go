// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package backend opens the blob store selected by the storage section
// of the configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/benchdisplay/benchmerge/internal/config"
	"github.com/benchdisplay/benchmerge/storage/blob"
	"github.com/benchdisplay/benchmerge/storage/blob/gcs"
	"github.com/benchdisplay/benchmerge/storage/blob/s3"
)

// Open returns the store for cfg and a function that releases it.
// The memory backend returns a new, empty store on every call.
func Open(ctx context.Context, cfg config.StorageConfig) (blob.Store, func() error, error) {
	switch cfg.Backend {
	case "memory":
		return blob.NewMemStore(), nop, nil
	case "gcs":
		s, err := gcs.Open(ctx, gcs.Config{
			Bucket:       cfg.Bucket,
			EmulatorHost: cfg.EmulatorHost,
			Credentials:  cfg.Credentials,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "s3":
		client, err := s3.NewClient(s3.Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3.New(client, cfg.Bucket), nop, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

func nop() error { return nil }
