// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/benchdisplay/benchmerge/storage/blob"
	"google.golang.org/api/googleapi"
)

func TestConditions(t *testing.T) {
	c, err := conditions(&blob.Condition{DoesNotExist: true})
	if err != nil || !c.DoesNotExist {
		t.Errorf("conditions(DoesNotExist) = %+v, %v", c, err)
	}
	c, err = conditions(&blob.Condition{Version: "1700000000123456"})
	if err != nil || c.GenerationMatch != 1700000000123456 {
		t.Errorf("conditions(version) = %+v, %v", c, err)
	}
	for _, bad := range []string{"", "0", "abc", "-3"} {
		if _, err := conditions(&blob.Condition{Version: bad}); err == nil {
			t.Errorf("conditions(%q) succeeded, want error", bad)
		}
	}
}

func TestMapErr(t *testing.T) {
	for _, test := range []struct {
		err  error
		want error
	}{
		{storage.ErrObjectNotExist, blob.ErrNotFound},
		{&googleapi.Error{Code: http.StatusPreconditionFailed}, blob.ErrPreconditionFailed},
		{fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound}), blob.ErrNotFound},
	} {
		if got := mapErr("x", test.err); !errors.Is(got, test.want) {
			t.Errorf("mapErr(%v) = %v, want %v", test.err, got, test.want)
		}
	}
	other := &googleapi.Error{Code: http.StatusForbidden}
	got := mapErr("x", other)
	if errors.Is(got, blob.ErrNotFound) || errors.Is(got, blob.ErrPreconditionFailed) {
		t.Errorf("mapErr(403) = %v, want neither not-found nor precondition", got)
	}
	var gerr *googleapi.Error
	if !errors.As(got, &gerr) {
		t.Errorf("mapErr(403) lost the googleapi.Error")
	}
}

func TestClientOptionsEmulator(t *testing.T) {
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	opts, err := ClientOptions(context.Background(), Config{EmulatorHost: "http://localhost:4443/"})
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 1 {
		t.Errorf("got %d options, want 1", len(opts))
	}
	if got := os.Getenv("STORAGE_EMULATOR_HOST"); got != "http://localhost:4443" {
		t.Errorf("STORAGE_EMULATOR_HOST = %q", got)
	}
}

func TestClientOptionsBadCredentials(t *testing.T) {
	if _, err := ClientOptions(context.Background(), Config{Credentials: "/does/not/exist.json"}); err == nil {
		t.Errorf("ClientOptions(missing file) succeeded")
	}
	if _, err := ClientOptions(context.Background(), Config{Credentials: "{not json"}); err == nil {
		t.Errorf("ClientOptions(bad JSON) succeeded")
	}
}

// TestStoreEmulator runs the Store against a storage emulator such as
// fake-gcs-server. It is skipped unless BENCHMERGE_GCS_EMULATOR_HOST is set.
func TestStoreEmulator(t *testing.T) {
	host := strings.TrimRight(strings.TrimSpace(os.Getenv("BENCHMERGE_GCS_EMULATOR_HOST")), "/")
	if host == "" {
		t.Skip("set BENCHMERGE_GCS_EMULATOR_HOST to run against a storage emulator")
	}
	bucket := fmt.Sprintf("benchmerge-it-%d", time.Now().UnixNano())
	createBucket(t, host, bucket)

	ctx := context.Background()
	s, err := Open(ctx, Config{Bucket: bucket, EmulatorHost: host})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Get(ctx, "benchmark_data.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, "benchmark_data.json", []byte(`{}`), "application/json", blob.IfVersion(nil)); err != nil {
		t.Fatalf("Put(create): %v", err)
	}
	obj, err := s.Get(ctx, "benchmark_data.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if obj.ContentType != "application/json" {
		t.Errorf("ContentType = %q, want application/json", obj.ContentType)
	}
	if err := s.Put(ctx, "benchmark_data.json", []byte(`{"a":1}`), "application/json", blob.IfVersion(nil)); !errors.Is(err, blob.ErrPreconditionFailed) {
		t.Errorf("Put(create existing) error = %v, want ErrPreconditionFailed", err)
	}
	if err := s.Put(ctx, "benchmark_data.json", []byte(`{"a":2}`), "application/json", blob.IfVersion(obj)); err != nil {
		t.Errorf("Put(if version): %v", err)
	}
	if err := s.Put(ctx, "benchmark_data.json", []byte(`{"a":3}`), "application/json", blob.IfVersion(obj)); !errors.Is(err, blob.ErrPreconditionFailed) {
		t.Errorf("Put(stale) error = %v, want ErrPreconditionFailed", err)
	}
	if ok, err := s.Exists(ctx, "benchmark_data.json"); err != nil || !ok {
		t.Errorf("Exists = %v, %v, want true", ok, err)
	}
	attrs, err := s.List(ctx, "benchmark_")
	if err != nil || len(attrs) != 1 {
		t.Errorf("List = %v, %v, want one object", attrs, err)
	}
}

func createBucket(t *testing.T, host, bucket string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": bucket})
	resp, err := http.Post(host+"/storage/v1/b?project=test", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Skipf("storage emulator not reachable at %s: %v", host, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		t.Fatalf("create bucket %s: %s", bucket, resp.Status)
	}
}
