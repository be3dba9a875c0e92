// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/benchdisplay/benchmerge/updater"
)

// maxEventSize bounds the body of an /events request.
const maxEventSize = 1 << 20

const (
	// finalizeEventType is the Pub/Sub notification type for a newly
	// written object.
	finalizeEventType = "OBJECT_FINALIZE"
	// finalizeCloudEvent is the CloudEvents type for the same.
	finalizeCloudEvent = "google.cloud.storage.object.v1.finalized"
)

// objectRef is the part of a Cloud Storage object resource that
// identifies it. Generation is a string in the JSON API but a number
// in some emulators.
type objectRef struct {
	Bucket     string          `json:"bucket"`
	Name       string          `json:"name"`
	Generation json.RawMessage `json:"generation"`
}

// pushEnvelope is the body of a Pub/Sub push request, or of a
// structured CloudEvent, or a bare object reference. Only the fields
// used by decodeEvent are listed.
type pushEnvelope struct {
	objectRef
	Message *struct {
		Attributes map[string]string `json:"attributes"`
		Data       []byte            `json:"data"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// errIgnored marks events that are acknowledged without processing.
var errIgnored = errors.New("ignored")

// decodeEvent extracts the object event from an /events request body.
// ceType is the ce-type header of a binary-mode CloudEvent, if any.
// Events about something other than a newly written object return an
// error wrapping errIgnored.
func decodeEvent(body []byte, ceType string) (updater.Event, error) {
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return updater.Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if ceType != "" && ceType != finalizeCloudEvent {
		return updater.Event{}, fmt.Errorf("%w: event type %s", errIgnored, ceType)
	}

	var ref objectRef
	switch {
	case env.Message != nil:
		attrs := env.Message.Attributes
		if t := attrs["eventType"]; t != "" && t != finalizeEventType {
			return updater.Event{}, fmt.Errorf("%w: event type %s", errIgnored, t)
		}
		ref.Bucket, ref.Name = attrs["bucketId"], attrs["objectId"]
		if g := attrs["objectGeneration"]; g != "" {
			ref.Generation, _ = json.Marshal(g)
		}
		if ref.Name == "" && len(env.Message.Data) > 0 {
			if err := json.Unmarshal(env.Message.Data, &ref); err != nil {
				return updater.Event{}, fmt.Errorf("decoding message data: %w", err)
			}
		}
	case len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")):
		if env.Type != "" && env.Type != finalizeCloudEvent {
			return updater.Event{}, fmt.Errorf("%w: event type %s", errIgnored, env.Type)
		}
		if err := json.Unmarshal(env.Data, &ref); err != nil {
			return updater.Event{}, fmt.Errorf("decoding event data: %w", err)
		}
	default:
		ref = env.objectRef
	}
	if ref.Name == "" {
		return updater.Event{}, errors.New("event names no object")
	}
	return updater.Event{
		Bucket:     ref.Bucket,
		Name:       ref.Name,
		Generation: generation(ref.Generation),
	}, nil
}

// generation returns a JSON string or number as a string.
func generation(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// events is the handler for the /events endpoint. It applies one
// storage notification and reports the outcome as JSON.
func (a *App) events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "/events must be called as a POST request", http.StatusMethodNotAllowed)
		return
	}
	if !a.authorize(w, r) {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	ev, err := decodeEvent(body, strings.TrimSpace(r.Header.Get("Ce-Type")))
	if errors.Is(err, errIgnored) {
		a.Log.Debug("ignoring notification", "reason", err)
		writeJSON(w, http.StatusOK, &updater.Result{Skipped: true, Reason: err.Error()})
		return
	}
	if err != nil {
		a.Log.Warn("bad event", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := a.updateContext(r)
	defer cancel()
	res, err := a.Updater.Handle(ctx, ev)
	if err != nil {
		status := statusOf(err)
		a.Log.Error("update failed", "bucket", ev.Bucket, "name", ev.Name, "status", status, "error", err)
		writeJSON(w, status, errorResponse{Error: err.Error(), Permanent: updater.Permanent(err)})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
