// Copyright 2016 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package app implements the HTTP receiver for storage notifications.
// Combine an App with an updater.Updater to get an HTTP server.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/benchdisplay/benchmerge/internal/logger"
	"github.com/benchdisplay/benchmerge/updater"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// App manages the receiver logic. Construct an App instance using a
// literal with an Updater and call RegisterOnMux to connect it with
// an HTTP server.
type App struct {
	Updater *updater.Updater
	Log     *logger.Logger

	// Auth authorizes push and upload requests.
	// If necessary, it can write its own response (e.g. a
	// redirect) and return ErrResponseWritten.
	Auth func(http.ResponseWriter, *http.Request) error

	// Timeout bounds the update triggered by one request. Zero means
	// the request context alone applies.
	Timeout time.Duration

	// ApplyUploads makes /upload merge the uploaded payload right
	// away, for deployments without storage notifications.
	ApplyUploads bool
}

// ErrResponseWritten can be returned by App.Auth to abort the normal handling.
var ErrResponseWritten = errors.New("response written")

// RegisterOnMux registers the app's URLs on mux.
func (a *App) RegisterOnMux(mux *http.ServeMux) {
	mux.HandleFunc("/events", a.events)
	mux.HandleFunc("/upload", a.upload)
	mux.HandleFunc("/healthz", a.healthz)
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

// authorize runs a.Auth and reports whether handling should continue.
func (a *App) authorize(w http.ResponseWriter, r *http.Request) bool {
	if a.Auth == nil {
		return true
	}
	err := a.Auth(w, r)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrResponseWritten):
	default:
		a.Log.Warn("unauthorized request", "path", r.URL.Path, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	return false
}

// updateContext returns the context for an update started by r.
// It continues any trace the caller propagated in r's headers.
func (a *App) updateContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	if a.Timeout > 0 {
		return context.WithTimeout(ctx, a.Timeout)
	}
	return context.WithCancel(ctx)
}

// statusOf maps an update error to an HTTP status. Push subscriptions
// redeliver on 5xx and 409 and drop the message on other 4xx codes.
func statusOf(err error) int {
	switch updater.KindOf(err) {
	case updater.ErrConflict:
		return http.StatusConflict
	case updater.ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	}
	if updater.Permanent(err) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error     string `json:"error"`
	Permanent bool   `json:"permanent"`
}
