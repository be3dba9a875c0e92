// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gcs implements blob.Store on Google Cloud Storage.
//
// Object versions are Cloud Storage generation numbers, so a
// conditional Put is a write with a generation-match precondition.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/benchdisplay/benchmerge/storage/blob"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Store is a blob.Store backed by a Cloud Storage bucket.
type Store struct {
	client *storage.Client
	bucket string
}

var _ blob.Store = (*Store)(nil)

// Config selects how the storage client authenticates.
type Config struct {
	// Bucket is the bucket to use.
	Bucket string
	// EmulatorHost, if set, is the base URL of a storage emulator
	// such as fake-gcs-server. No credentials are used.
	EmulatorHost string
	// Credentials is either a path to a service account key file
	// or the key itself as JSON. If empty, application default
	// credentials are used.
	Credentials string
}

// ClientOptions returns the client options for cfg.
func ClientOptions(ctx context.Context, cfg Config) ([]option.ClientOption, error) {
	if cfg.EmulatorHost != "" {
		// The client library reads the emulator endpoint from the
		// environment only.
		host := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		if err := os.Setenv("STORAGE_EMULATOR_HOST", host); err != nil {
			return nil, err
		}
		return []option.ClientOption{option.WithoutAuthentication()}, nil
	}
	creds := strings.TrimSpace(cfg.Credentials)
	if creds == "" {
		return nil, nil
	}
	data := []byte(creds)
	if !strings.HasPrefix(creds, "{") {
		var err error
		if data, err = os.ReadFile(creds); err != nil {
			return nil, fmt.Errorf("read credentials: %w", err)
		}
	}
	c, err := google.CredentialsFromJSON(ctx, data, storage.ScopeReadWrite)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return []option.ClientOption{option.WithCredentials(c)}, nil
}

// Open creates a storage client for cfg and returns a Store for
// cfg.Bucket. Close releases the client.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs: no bucket")
	}
	opts, err := ClientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}
	return New(client, cfg.Bucket), nil
}

// New returns a Store for bucket using client.
func New(client *storage.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Bucket returns the name of the store's bucket.
func (s *Store) Bucket() string { return s.bucket }

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) object(name string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(name)
}

func (s *Store) Get(ctx context.Context, name string) (*blob.Object, error) {
	r, err := s.object(name).NewReader(ctx)
	if err != nil {
		return nil, mapErr(name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs: read %s: %w", name, err)
	}
	return &blob.Object{
		Name:        name,
		Data:        data,
		ContentType: r.Attrs.ContentType,
		Version:     strconv.FormatInt(r.Attrs.Generation, 10),
	}, nil
}

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.object(name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, mapErr(name, err)
	}
	return true, nil
}

func (s *Store) Put(ctx context.Context, name string, data []byte, contentType string, cond *blob.Condition) error {
	o := s.object(name)
	if cond != nil {
		c, err := conditions(cond)
		if err != nil {
			return err
		}
		o = o.If(c)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := o.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		// Canceling the context aborts the upload.
		cancel()
		w.Close()
		return mapErr(name, err)
	}
	if err := w.Close(); err != nil {
		return mapErr(name, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]blob.Attrs, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []blob.Attrs
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs: list %s: %w", prefix, err)
		}
		out = append(out, blob.Attrs{
			Name:    attrs.Name,
			Version: strconv.FormatInt(attrs.Generation, 10),
			Size:    attrs.Size,
			Created: attrs.Created,
		})
	}
	return out, nil
}

// conditions converts a blob.Condition to Cloud Storage preconditions.
func conditions(cond *blob.Condition) (storage.Conditions, error) {
	if cond.DoesNotExist {
		return storage.Conditions{DoesNotExist: true}, nil
	}
	gen, err := strconv.ParseInt(cond.Version, 10, 64)
	if err != nil || gen <= 0 {
		return storage.Conditions{}, fmt.Errorf("gcs: invalid generation %q", cond.Version)
	}
	return storage.Conditions{GenerationMatch: gen}, nil
}

// mapErr translates Cloud Storage errors to blob errors.
func mapErr(name string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs: %s: %w", name, blob.ErrNotFound)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusPreconditionFailed:
			return fmt.Errorf("gcs: %s: %w", name, blob.ErrPreconditionFailed)
		case http.StatusNotFound:
			return fmt.Errorf("gcs: %s: %w", name, blob.ErrNotFound)
		}
	}
	return fmt.Errorf("gcs: %s: %w", name, err)
}
