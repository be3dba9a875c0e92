// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package backend

import (
	"context"
	"testing"

	"github.com/benchdisplay/benchmerge/internal/config"
	"github.com/benchdisplay/benchmerge/storage/blob"
	"github.com/benchdisplay/benchmerge/storage/blob/s3"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, closeStore, err := Open(ctx, config.StorageConfig{Backend: "memory", Bucket: "local"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*blob.MemStore); !ok {
		t.Errorf("memory backend opened %T", s)
	}
	if err := closeStore(); err != nil {
		t.Errorf("close: %v", err)
	}

	s, _, err = Open(ctx, config.StorageConfig{
		Backend: "s3",
		Bucket:  "bench",
		S3: config.S3Config{
			Endpoint:        "http://localhost:9000",
			AccessKeyID:     "minio",
			SecretAccessKey: "minio123",
			PathStyle:       true,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ss, ok := s.(*s3.Store); !ok || ss.Bucket() != "bench" {
		t.Errorf("s3 backend opened %T", s)
	}

	if _, _, err := Open(ctx, config.StorageConfig{Backend: "s3", Bucket: "bench"}); err == nil {
		t.Errorf("s3 backend without credentials opened")
	}
	if _, _, err := Open(ctx, config.StorageConfig{Backend: "ftp"}); err == nil {
		t.Errorf("unknown backend opened")
	}
}
