// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benchdisplay/benchmerge/aggregate"
	"github.com/benchdisplay/benchmerge/storage/blob"
	"github.com/benchdisplay/benchmerge/updater"
)

func newTestApp(t *testing.T) (*App, *blob.MemStore, *httptest.Server) {
	t.Helper()
	s := blob.NewMemStore()
	a := &App{Updater: &updater.Updater{
		Store:   s,
		Bucket:  "bench",
		Backoff: func(int) time.Duration { return 0 },
	}}
	mux := http.NewServeMux()
	a.RegisterOnMux(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return a, s, srv
}

func put(t *testing.T, s *blob.MemStore, name, content string) {
	t.Helper()
	if err := s.Put(context.Background(), name, []byte(content), "", nil); err != nil {
		t.Fatal(err)
	}
}

func post(t *testing.T, url, body string, header http.Header) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func TestDecodeEvent(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte(`{"bucket":"b","name":"benchmark_abc.json","generation":"17"}`))
	for _, test := range []struct {
		name    string
		body    string
		ceType  string
		want    updater.Event
		ignored bool
		bad     bool
	}{
		{
			name: "plain",
			body: `{"bucket":"b","name":"benchmark_abc.json"}`,
			want: updater.Event{Bucket: "b", Name: "benchmark_abc.json"},
		},
		{
			name: "numeric generation",
			body: `{"bucket":"b","name":"benchmark_abc.json","generation":1700000000123456}`,
			want: updater.Event{Bucket: "b", Name: "benchmark_abc.json", Generation: "1700000000123456"},
		},
		{
			name: "pubsub attributes",
			body: `{"message":{"attributes":{"bucketId":"b","objectId":"benchmark_abc.json","objectGeneration":"42","eventType":"OBJECT_FINALIZE"},"messageId":"1"},"subscription":"s"}`,
			want: updater.Event{Bucket: "b", Name: "benchmark_abc.json", Generation: "42"},
		},
		{
			name: "pubsub data",
			body: `{"message":{"data":"` + data + `","attributes":{"eventType":"OBJECT_FINALIZE"}}}`,
			want: updater.Event{Bucket: "b", Name: "benchmark_abc.json", Generation: "17"},
		},
		{
			name:    "pubsub delete",
			body:    `{"message":{"attributes":{"bucketId":"b","objectId":"benchmark_abc.json","eventType":"OBJECT_DELETE"}}}`,
			ignored: true,
		},
		{
			name: "structured cloudevent",
			body: `{"specversion":"1.0","type":"google.cloud.storage.object.v1.finalized","data":{"bucket":"b","name":"benchmark_abc.json","generation":"3"}}`,
			want: updater.Event{Bucket: "b", Name: "benchmark_abc.json", Generation: "3"},
		},
		{
			name:    "structured cloudevent archived",
			body:    `{"specversion":"1.0","type":"google.cloud.storage.object.v1.archived","data":{"bucket":"b","name":"x"}}`,
			ignored: true,
		},
		{
			name:   "binary cloudevent",
			body:   `{"bucket":"b","name":"benchmark_abc.json","generation":"9"}`,
			ceType: "google.cloud.storage.object.v1.finalized",
			want:   updater.Event{Bucket: "b", Name: "benchmark_abc.json", Generation: "9"},
		},
		{
			name:    "binary cloudevent deleted",
			body:    `{"bucket":"b","name":"benchmark_abc.json"}`,
			ceType:  "google.cloud.storage.object.v1.deleted",
			ignored: true,
		},
		{
			name: "background function envelope",
			body: `{"data":{"bucket":"b","name":"benchmark_abc.json"},"context":{"eventId":"1"}}`,
			want: updater.Event{Bucket: "b", Name: "benchmark_abc.json"},
		},
		{name: "not json", body: `bucket=b`, bad: true},
		{name: "no name", body: `{"bucket":"b"}`, bad: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := decodeEvent([]byte(test.body), test.ceType)
			switch {
			case test.ignored:
				if !errors.Is(err, errIgnored) {
					t.Errorf("decodeEvent error = %v, want ignored", err)
				}
			case test.bad:
				if err == nil || errors.Is(err, errIgnored) {
					t.Errorf("decodeEvent error = %v, want a decoding error", err)
				}
			default:
				if err != nil {
					t.Fatalf("decodeEvent: %v", err)
				}
				if got != test.want {
					t.Errorf("decodeEvent = %+v, want %+v", got, test.want)
				}
			}
		})
	}
}

func TestEvents(t *testing.T) {
	_, s, srv := newTestApp(t)
	put(t, s, "benchmark_abc.json", `[{"name":"bench1","value":10}]`)
	put(t, s, "commits/commit_abc.json", `{"hash":"abc","parent":null,"timestamp":100}`)

	code, body := post(t, srv.URL+"/events", `{"bucket":"bench","name":"benchmark_abc.json"}`, nil)
	if code != http.StatusOK {
		t.Fatalf("POST /events = %d %s", code, body)
	}
	var res updater.Result
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if res.Hash != "abc" || res.Appended != 1 || !res.CommitAdded || res.Attempts != 1 {
		t.Errorf("result = %+v", res)
	}
	obj, err := s.Get(context.Background(), aggregate.DocumentName)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"benchmarks":[{"name":"bench1","value":10,"commitHash":"abc"}],"commits":[{"hash":"abc","parent":null,"timestamp":100}]}`
	if string(obj.Data) != want {
		t.Errorf("aggregate = %s, want %s", obj.Data, want)
	}

	// The updater's own write is acknowledged and skipped.
	code, body = post(t, srv.URL+"/events", `{"bucket":"bench","name":"benchmark_data.json"}`, nil)
	if code != http.StatusOK || !bytes.Contains(body, []byte(`"skipped":true`)) {
		t.Errorf("POST /events(aggregate) = %d %s, want skipped", code, body)
	}
}

func TestEventsStatus(t *testing.T) {
	_, s, srv := newTestApp(t)
	put(t, s, "benchmark_bad.json", `{"not":"array"}`)

	for _, test := range []struct {
		body string
		code int
	}{
		{`{"bucket":"bench","name":"benchmark_bad.json"}`, http.StatusUnprocessableEntity},
		{`{"bucket":"bench","name":"benchmark_a_b.json"}`, http.StatusUnprocessableEntity},
		{`{"bucket":"bench","name":"benchmark_missing.json"}`, http.StatusServiceUnavailable},
		{`{"message":{"attributes":{"eventType":"OBJECT_METADATA_UPDATE","objectId":"benchmark_abc.json"}}}`, http.StatusOK},
		{`not json`, http.StatusBadRequest},
	} {
		if code, body := post(t, srv.URL+"/events", test.body, nil); code != test.code {
			t.Errorf("POST /events %s = %d %s, want %d", test.body, code, body, test.code)
		}
	}

	resp, err := http.Get(srv.URL + "/events")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /events = %d, want 405", resp.StatusCode)
	}
}

func TestStatusOf(t *testing.T) {
	for _, test := range []struct {
		kind error
		code int
	}{
		{updater.ErrConflict, http.StatusConflict},
		{updater.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{updater.ErrMalformedPayload, http.StatusUnprocessableEntity},
		{updater.ErrMalformedAggregate, http.StatusUnprocessableEntity},
		{updater.ErrMalformedCommit, http.StatusUnprocessableEntity},
		{updater.ErrInvalidName, http.StatusUnprocessableEntity},
	} {
		err := &updater.Error{Op: "test", Name: "x", Kind: test.kind}
		if got := statusOf(err); got != test.code {
			t.Errorf("statusOf(%v) = %d, want %d", test.kind, got, test.code)
		}
	}
	if got := statusOf(errors.New("other")); got != http.StatusInternalServerError {
		t.Errorf("statusOf(other) = %d, want 500", got)
	}
}

func TestAuth(t *testing.T) {
	a, _, srv := newTestApp(t)
	a.Auth = func(w http.ResponseWriter, r *http.Request) error {
		if r.Header.Get("Authorization") != "Bearer ok" {
			return errors.New("bad token")
		}
		return nil
	}
	if code, _ := post(t, srv.URL+"/events", `{"name":"x.json"}`, nil); code != http.StatusUnauthorized {
		t.Errorf("unauthorized POST = %d, want 401", code)
	}
	h := http.Header{"Authorization": {"Bearer ok"}}
	if code, body := post(t, srv.URL+"/events", `{"name":"x.json"}`, h); code != http.StatusOK {
		t.Errorf("authorized POST = %d %s, want 200", code, body)
	}
}

func TestHealthz(t *testing.T) {
	_, _, srv := newTestApp(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz = %d", resp.StatusCode)
	}
}

func TestUpload(t *testing.T) {
	a, s, srv := newTestApp(t)
	a.ApplyUploads = true

	pr, pw := io.Pipe()
	mpw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		defer mpw.Close()
		mpw.WriteField("commit", "abc")
		mpw.WriteField("parent", "p0")
		mpw.WriteField("timestamp", "1700000000")
		w, err := mpw.CreateFormFile("file", "results.txt")
		if err != nil {
			t.Errorf("CreateFormFile: %v", err)
			return
		}
		fmt.Fprintf(w, "goos: linux\nBenchmarkOne 5 100 ns/op\nBenchmarkTwo 10 200 ns/op\n")
	}()
	resp, err := http.Post(srv.URL+"/upload", mpw.FormDataContentType(), pr)
	if err != nil {
		t.Fatalf("post /upload: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post /upload: %v %s", resp.Status, body)
	}
	var status uploadStatus
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatal(err)
	}
	wantFiles := []string{"commits/commit_abc.json", "benchmark_abc.txt"}
	if fmt.Sprint(status.Files) != fmt.Sprint(wantFiles) {
		t.Errorf("files = %v, want %v", status.Files, wantFiles)
	}
	if len(status.Results) != 1 || status.Results[0].Appended != 2 || !status.Results[0].CommitAdded {
		t.Errorf("results = %+v", status.Results)
	}
	commit, err := s.Get(context.Background(), "commits/commit_abc.json")
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"hash":"abc","parent":"p0","timestamp":1700000000}`; string(commit.Data) != want {
		t.Errorf("commit file = %s, want %s", commit.Data, want)
	}
}

func TestUploadRejectsBadCommit(t *testing.T) {
	_, s, srv := newTestApp(t)
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	mpw.WriteField("commit", "a_b")
	w, _ := mpw.CreateFormFile("file", "x.json")
	w.Write([]byte(`[]`))
	mpw.Close()
	resp, err := http.Post(srv.URL+"/upload", mpw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if files := s.Files(); len(files) != 0 {
		t.Errorf("files stored: %v", files)
	}
}

func TestUploadCannotReplaceAggregate(t *testing.T) {
	_, s, srv := newTestApp(t)
	const doc = `{"benchmarks":[{"name":"kept","commitHash":"abc"}],"commits":[]}`
	put(t, s, aggregate.DocumentName, doc)

	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	mpw.WriteField("commit", "data")
	mpw.WriteField("timestamp", "100")
	w, _ := mpw.CreateFormFile("file", "x.json")
	w.Write([]byte(`[]`))
	mpw.Close()
	resp, err := http.Post(srv.URL+"/upload", mpw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	obj, err := s.Get(context.Background(), aggregate.DocumentName)
	if err != nil {
		t.Fatal(err)
	}
	if string(obj.Data) != doc {
		t.Errorf("aggregate = %s, want %s", obj.Data, doc)
	}
	if files := s.Files(); len(files) != 1 {
		t.Errorf("files stored: %v, want only the aggregate", files)
	}
}
