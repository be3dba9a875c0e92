// Copyright 2016 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/benchdisplay/benchmerge/aggregate"
	"github.com/benchdisplay/benchmerge/updater"
)

// maxUploadMemory is the part of a multipart upload kept in memory;
// the rest spills to temporary files.
const maxUploadMemory = 32 << 20

// upload is the handler for the /upload endpoint. It processes a
// multipart/form-data POST request with the fields commit, parent
// and timestamp and one or more file parts, and stores them under the
// bucket's naming conventions.
func (a *App) upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "/upload must be called as a POST request", http.StatusMethodNotAllowed)
		return
	}
	if !a.authorize(w, r) {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	result, err := a.processUpload(r)
	if err != nil {
		status := http.StatusBadRequest
		if updater.KindOf(err) != nil {
			status = statusOf(err)
		}
		a.Log.Error("upload failed", "error", err)
		writeJSON(w, status, errorResponse{Error: err.Error(), Permanent: updater.Permanent(err)})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// uploadStatus is the response to an /upload POST served as JSON.
type uploadStatus struct {
	// Hash is the commit hash the files were stored under.
	Hash string `json:"hash"`
	// Files is the list of objects written, in order.
	Files []string `json:"files"`
	// Results holds the outcome of merging each payload, if the
	// app applies uploads.
	Results []*updater.Result `json:"results,omitempty"`
}

// processUpload writes the commit metadata (if a timestamp was given)
// and then each payload, so a notification for a payload always
// finds its commit file.
func (a *App) processUpload(r *http.Request) (*uploadStatus, error) {
	hash := strings.TrimSpace(r.FormValue("commit"))
	if _, ext, err := updater.ParseName(aggregate.PayloadPrefix + hash); err != nil || ext != "" {
		return nil, fmt.Errorf("invalid commit %q", hash)
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		return nil, fmt.Errorf("no file parts")
	}
	// Every name is checked before anything is written. ParseName
	// rejects the aggregate document's name.
	names := make([]string, len(files))
	for i, fh := range files {
		ext := strings.TrimPrefix(path.Ext(fh.Filename), ".")
		if ext == "" {
			ext = "json"
		}
		name := fmt.Sprintf("%s%s.%s", aggregate.PayloadPrefix, hash, ext)
		if len(files) > 1 {
			name = fmt.Sprintf("%s%s.%d.%s", aggregate.PayloadPrefix, hash, i, ext)
		}
		if _, _, err := updater.ParseName(name); err != nil {
			return nil, fmt.Errorf("file %q: %v", fh.Filename, err)
		}
		names[i] = name
	}

	status := &uploadStatus{Hash: hash}
	ctx, cancel := a.updateContext(r)
	defer cancel()
	store := a.Updater.Store

	if ts := strings.TrimSpace(r.FormValue("timestamp")); ts != "" {
		c := aggregate.Commit{Hash: hash, Timestamp: aggregate.ParseTimestamp(ts)}
		if p := strings.TrimSpace(r.FormValue("parent")); p != "" {
			c.Parent = &p
		}
		data, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		name := aggregate.CommitName(hash)
		if err := store.Put(ctx, name, data, "application/json", nil); err != nil {
			return nil, &updater.Error{Op: "write commit", Name: name, Kind: updater.ErrStoreUnavailable, Err: err}
		}
		status.Files = append(status.Files, name)
	}

	for i, fh := range files {
		name := names[i]
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		if err := store.Put(ctx, name, data, fh.Header.Get("Content-Type"), nil); err != nil {
			return nil, &updater.Error{Op: "write payload", Name: name, Kind: updater.ErrStoreUnavailable, Err: err}
		}
		status.Files = append(status.Files, name)
		a.Log.Info("stored upload", "name", name, "bytes", len(data))

		if a.ApplyUploads {
			res, err := a.Updater.Handle(ctx, updater.Event{Bucket: a.Updater.Bucket, Name: name})
			if err != nil {
				return nil, err
			}
			status.Results = append(status.Results, res)
		}
	}
	return status, nil
}
