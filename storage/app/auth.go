// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/idtoken"
)

var errNoToken = errors.New("missing bearer token")

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", errNoToken
	}
	return strings.TrimSpace(h[len(prefix):]), nil
}

// BearerAuth returns an App.Auth function that accepts requests
// carrying token as a bearer token.
func BearerAuth(token string) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		got, err := bearerToken(r)
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return errors.New("wrong bearer token")
		}
		return nil
	}
}

// A TokenValidator checks Google-signed ID tokens.
// *idtoken.Validator implements it.
type TokenValidator interface {
	Validate(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// IDTokenAuth returns an App.Auth function that accepts requests
// carrying an ID token for audience, as sent by Pub/Sub push
// subscriptions and Cloud Run invokers. If emails is not empty, the
// token's email claim must be one of them.
func IDTokenAuth(v TokenValidator, audience string, emails []string) func(http.ResponseWriter, *http.Request) error {
	allowed := make(map[string]bool)
	for _, e := range emails {
		allowed[strings.ToLower(e)] = true
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		token, err := bearerToken(r)
		if err != nil {
			return err
		}
		p, err := v.Validate(r.Context(), token, audience)
		if err != nil {
			return fmt.Errorf("invalid ID token: %w", err)
		}
		if len(allowed) == 0 {
			return nil
		}
		email, _ := p.Claims["email"].(string)
		if verified, ok := p.Claims["email_verified"].(bool); ok && !verified {
			return fmt.Errorf("email %q is not verified", email)
		}
		if !allowed[strings.ToLower(email)] {
			return fmt.Errorf("email %q is not allowed", email)
		}
		return nil
	}
}
