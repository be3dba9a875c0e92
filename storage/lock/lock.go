// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lock provides a single-writer lock shared by all processes
// that update the same aggregate document.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by an unlock function when the lock expired
// and was possibly taken by another holder.
var ErrNotHeld = errors.New("lock not held")

// A Locker acquires named locks. The returned function releases the
// lock.
type Locker interface {
	Lock(ctx context.Context, name string) (func(context.Context) error, error)
}

const (
	DefaultTTL  = 30 * time.Second
	defaultPoll = 100 * time.Millisecond
	keyPrefix   = "benchmerge:lock:"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by a redis server. A lock is a key set
// with NX and an expiry, so a crashed holder blocks others for at
// most TTL.
type Redis struct {
	client redis.UniversalClient
	// TTL bounds how long a lock is held without being released.
	TTL time.Duration
	// Poll is the interval between acquisition attempts.
	Poll time.Duration
}

var _ Locker = (*Redis)(nil)

// NewRedis returns a Redis locker using client. A zero ttl means
// DefaultTTL.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, TTL: ttl, Poll: defaultPoll}
}

// Lock blocks until the lock for name is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	key := keyPrefix + name
	token := uuid.NewString()
	poll := r.Poll
	if poll <= 0 {
		poll = defaultPoll
	}
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", name, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s: %w", name, ctx.Err())
		case <-t.C:
		}
	}
	unlock := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("unlock %s: %w", name, err)
		}
		if n == 0 {
			return fmt.Errorf("unlock %s: %w", name, ErrNotHeld)
		}
		return nil
	}
	return unlock, nil
}
