// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package s3 implements blob.Store on an S3-compatible bucket.
//
// Object versions are ETags. Conditional writes use the If-Match and
// If-None-Match headers, which S3 and most compatible servers honor
// on PutObject.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/benchdisplay/benchmerge/storage/blob"
)

// Client is the subset of the AWS SDK client used by Store.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store is a blob.Store backed by an S3 bucket.
type Store struct {
	client Client
	bucket string
}

var _ blob.Store = (*Store)(nil)

// New returns a Store for bucket using client.
func New(client Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Config describes how to reach an S3-compatible endpoint.
type Config struct {
	Bucket string
	Region string
	// Endpoint, if set, overrides the AWS endpoint, for MinIO and
	// other compatible servers.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// PathStyle addresses buckets as endpoint/bucket rather than
	// bucket.endpoint.
	PathStyle bool
}

// NewClient returns an SDK client for cfg using static credentials.
func NewClient(cfg Config) (*s3.Client, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("s3: access key id and secret access key are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	creds := aws.Credentials{
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Source:          "benchmerge config",
	}
	opts := s3.Options{
		Region:       region,
		UsePathStyle: cfg.PathStyle,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		})),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts), nil
}

// Bucket returns the name of the store's bucket.
func (s *Store) Bucket() string { return s.bucket }

func (s *Store) Get(ctx context.Context, name string) (*blob.Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, mapErr(name, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: read %s: %w", name, err)
	}
	return &blob.Object{
		Name:        name,
		Data:        data,
		ContentType: aws.ToString(out.ContentType),
		Version:     aws.ToString(out.ETag),
	}, nil
}

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err == nil {
		return true, nil
	}
	if err := mapErr(name, err); !errors.Is(err, blob.ErrNotFound) {
		return false, err
	}
	return false, nil
}

func (s *Store) Put(ctx context.Context, name string, data []byte, contentType string, cond *blob.Condition) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if cond != nil {
		if cond.DoesNotExist {
			in.IfNoneMatch = aws.String("*")
		} else {
			if cond.Version == "" {
				return errors.New("s3: empty version in condition")
			}
			in.IfMatch = aws.String(cond.Version)
		}
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return mapErr(name, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]blob.Attrs, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var out []blob.Attrs
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: list %s: %w", prefix, err)
		}
		for _, o := range page.Contents {
			out = append(out, blob.Attrs{
				Name:    aws.ToString(o.Key),
				Version: aws.ToString(o.ETag),
				Size:    aws.ToInt64(o.Size),
				Created: aws.ToTime(o.LastModified),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// mapErr translates S3 errors to blob errors.
func mapErr(name string, err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("s3: %s: %w", name, blob.ErrNotFound)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("s3: %s: %w", name, blob.ErrPreconditionFailed)
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("s3: %s: %w", name, blob.ErrNotFound)
		}
	}
	return fmt.Errorf("s3: %s: %w", name, err)
}
