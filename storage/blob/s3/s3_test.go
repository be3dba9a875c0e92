// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package s3

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/benchdisplay/benchmerge/storage/blob"
)

// fakeClient is an in-memory S3 that honors conditional puts.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	data        []byte
	etag        string
	contentType string
	modified    time.Time
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: make(map[string]fakeObject)}
}

func (f *fakeClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(strings.NewReader(string(o.data))),
		ETag:        aws.String(o.etag),
		ContentType: aws.String(o.contentType),
	}, nil
}

func (f *fakeClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ETag: aws.String(o.etag)}, nil
}

func (f *fakeClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	cur, exists := f.objects[key]
	if in.IfNoneMatch != nil && exists {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	if in.IfMatch != nil && (!exists || cur.etag != aws.ToString(in.IfMatch)) {
		if !exists {
			return nil, &smithy.GenericAPIError{Code: "NoSuchKey"}
		}
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}
	}
	sum := md5.Sum(append(data, byte(len(f.objects))))
	f.objects[key] = fakeObject{
		data:        data,
		etag:        `"` + hex.EncodeToString(sum[:]) + `"`,
		contentType: aws.ToString(in.ContentType),
		modified:    time.Now(),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		o := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			ETag:         aws.String(o.etag),
			Size:         aws.Int64(int64(len(o.data))),
			LastModified: aws.Time(o.modified),
		})
	}
	return out, nil
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeClient(), "bench")

	if _, err := s.Get(ctx, "benchmark_data.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if ok, err := s.Exists(ctx, "benchmark_data.json"); err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}
	if err := s.Put(ctx, "benchmark_data.json", []byte(`{}`), "application/json", blob.IfVersion(nil)); err != nil {
		t.Fatalf("Put(create): %v", err)
	}
	obj, err := s.Get(ctx, "benchmark_data.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(obj.Data) != "{}" || obj.ContentType != "application/json" || obj.Version == "" {
		t.Errorf("Get = %+v", obj)
	}
	if err := s.Put(ctx, "benchmark_data.json", []byte(`{"x":1}`), "application/json", blob.IfVersion(nil)); !errors.Is(err, blob.ErrPreconditionFailed) {
		t.Errorf("Put(create existing) error = %v, want ErrPreconditionFailed", err)
	}
	if err := s.Put(ctx, "benchmark_data.json", []byte(`{"x":2}`), "application/json", blob.IfVersion(obj)); err != nil {
		t.Fatalf("Put(if match): %v", err)
	}
	if err := s.Put(ctx, "benchmark_data.json", []byte(`{"x":3}`), "application/json", blob.IfVersion(obj)); !errors.Is(err, blob.ErrPreconditionFailed) {
		t.Errorf("Put(stale) error = %v, want ErrPreconditionFailed", err)
	}
	if ok, err := s.Exists(ctx, "benchmark_data.json"); err != nil || !ok {
		t.Errorf("Exists = %v, %v, want true", ok, err)
	}
	if err := s.Put(ctx, "benchmark_a.json", []byte(`[]`), "", nil); err != nil {
		t.Fatal(err)
	}
	attrs, err := s.List(ctx, "benchmark_")
	if err != nil {
		t.Fatal(err)
	}
	if len(attrs) != 2 || attrs[0].Name != "benchmark_a.json" || attrs[1].Name != "benchmark_data.json" {
		t.Errorf("List = %+v, want benchmark_a.json and benchmark_data.json", attrs)
	}
	if attrs[0].Size != 2 || attrs[0].Created.IsZero() {
		t.Errorf("List attrs = %+v, want size 2 and a creation time", attrs[0])
	}
}

func TestMapErr(t *testing.T) {
	for _, test := range []struct {
		err  error
		want error
	}{
		{&types.NoSuchKey{}, blob.ErrNotFound},
		{&types.NotFound{}, blob.ErrNotFound},
		{&smithy.GenericAPIError{Code: "PreconditionFailed"}, blob.ErrPreconditionFailed},
		{&smithy.GenericAPIError{Code: "ConditionalRequestConflict"}, blob.ErrPreconditionFailed},
	} {
		if got := mapErr("k", test.err); !errors.Is(got, test.want) {
			t.Errorf("mapErr(%T %v) = %v, want %v", test.err, test.err, got, test.want)
		}
	}
	got := mapErr("k", &smithy.GenericAPIError{Code: "AccessDenied"})
	if errors.Is(got, blob.ErrNotFound) || errors.Is(got, blob.ErrPreconditionFailed) {
		t.Errorf("mapErr(AccessDenied) = %v", got)
	}
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient(Config{Bucket: "b"}); err == nil {
		t.Errorf("NewClient without credentials succeeded")
	}
	c, err := NewClient(Config{Bucket: "b", Endpoint: "http://localhost:9000", AccessKeyID: "k", SecretAccessKey: "s", PathStyle: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Options().Region; got != "us-east-1" {
		t.Errorf("Region = %q, want us-east-1", got)
	}
	if !c.Options().UsePathStyle {
		t.Errorf("UsePathStyle = false, want true")
	}
}
