// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Benchsave uploads benchmark results for one commit to a bucket.
//
// Usage:
//
//	benchsave [-v] [-config file] [-server url] [-token t] [-audience aud]
//	          [-header file] [-commit hash] [-parent hash] [-timestamp t] file
//
// The input file is a JSON array of benchmark records, or the output
// of ``go test -bench''. It is stored as benchmark_<hash>.<ext>, next
// to the commit metadata commits/commit_<hash>.json, which is written
// first so that the payload's notification finds it.
//
// Commit fields not given on the command line are read from
// ``git show -s'' for -commit (HEAD by default).
//
// Without -server, benchsave writes to the bucket named by the storage
// section of the configuration. With -server, it posts the files to
// the /upload endpoint of a benchmerge server instead. The request
// carries the shared -token ($BENCHMERGE_AUTH_TOKEN) as a bearer token,
// or, with -audience, an ID token for that audience minted from Google
// application default credentials.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/benchdisplay/benchmerge/aggregate"
	"github.com/benchdisplay/benchmerge/internal/config"
	"github.com/benchdisplay/benchmerge/storage/blob"
	"github.com/benchdisplay/benchmerge/storage/blob/backend"
	"github.com/benchdisplay/benchmerge/updater"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
)

var (
	configFile = flag.String("config", "", "read storage configuration from `file`")
	server     = flag.String("server", "", "upload to the benchmerge server at `url` instead of the bucket")
	token      = flag.String("token", os.Getenv("BENCHMERGE_AUTH_TOKEN"), "send `token` as the bearer token to -server")
	audience   = flag.String("audience", "", "send an ID token for `aud` to -server")
	verbose    = flag.Bool("v", false, "print verbose log messages")
	header     = flag.String("header", "", "insert `file` at the beginning of a go test -bench payload")
	commit     = flag.String("commit", "", "commit `hash` the results belong to (default HEAD)")
	parent     = flag.String("parent", "", "`hash` of the parent commit")
	timestamp  = flag.String("timestamp", "", "commit `time`, as Unix seconds or a date")
)

// commitInfo is the commit metadata to upload. Empty fields are
// unknown.
type commitInfo struct {
	Hash      string
	Parent    string
	Timestamp string
}

// fill copies the fields of from that c is missing.
func (c *commitInfo) fill(from commitInfo) {
	if c.Hash == "" {
		c.Hash = from.Hash
	}
	if c.Parent == "" {
		c.Parent = from.Parent
	}
	if c.Timestamp == "" {
		c.Timestamp = from.Timestamp
	}
}

// complete reports whether c has enough to write a commit file.
func (c commitInfo) complete() bool {
	return c.Hash != "" && c.Timestamp != ""
}

// metadata returns the commit file contents for c.
func (c commitInfo) metadata() ([]byte, error) {
	m := aggregate.Commit{Hash: c.Hash, Timestamp: aggregate.ParseTimestamp(c.Timestamp)}
	if c.Parent != "" {
		p := c.Parent
		m.Parent = &p
	}
	return json.Marshal(m)
}

// uploadClient returns the HTTP client for requests to a benchmerge
// server, authenticating with token or an ID token for audience.
func uploadClient(ctx context.Context, token, audience string) (*http.Client, error) {
	switch {
	case token != "" && audience != "":
		return nil, errors.New("-token and -audience are mutually exclusive")
	case token != "":
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})), nil
	case audience != "":
		ts, err := idtoken.NewTokenSource(ctx, audience)
		if err != nil {
			return nil, fmt.Errorf("ID token for %s: %w", audience, err)
		}
		return oauth2.NewClient(ctx, ts), nil
	}
	return http.DefaultClient, nil
}

const gitFormat = "--format=%H%n%P%n%ct"

// gitCommit returns the metadata git has for rev.
func gitCommit(rev string) (commitInfo, error) {
	out, err := exec.Command("git", "show", "-s", gitFormat, rev).Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(ee.Stderr) > 0 {
			return commitInfo{}, fmt.Errorf("git show %s: %s", rev, bytes.TrimSpace(ee.Stderr))
		}
		return commitInfo{}, fmt.Errorf("git show %s: %v", rev, err)
	}
	return parseGitShow(out)
}

// parseGitShow parses the output of git show -s with gitFormat: the
// hash, the space-separated parent hashes, and the committer time.
// The first parent is kept.
func parseGitShow(out []byte) (commitInfo, error) {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) != 3 || lines[0] == "" || lines[2] == "" {
		return commitInfo{}, fmt.Errorf("unexpected git show output %q", out)
	}
	c := commitInfo{Hash: lines[0], Timestamp: lines[2]}
	if parents := strings.Fields(lines[1]); len(parents) > 0 {
		c.Parent = parents[0]
	}
	return c, nil
}

// payloadName returns the object name for the payload read from file.
// Go benchmark output and other files without an extension are stored
// as .txt.
func payloadName(hash, file string) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(file), ".")
	if ext == "" {
		ext = "txt"
	}
	name := aggregate.PayloadPrefix + hash + "." + ext
	// ParseName refuses the aggregate document's name.
	if _, _, err := updater.ParseName(name); err != nil {
		return "", err
	}
	return name, nil
}

// saveToStore writes the commit file, if c is complete, and then the
// payload. It returns the names written.
func saveToStore(ctx context.Context, s blob.Store, c commitInfo, file string, data []byte) ([]string, error) {
	name, err := payloadName(c.Hash, file)
	if err != nil {
		return nil, err
	}
	var written []string
	if c.complete() {
		meta, err := c.metadata()
		if err != nil {
			return nil, err
		}
		cname := aggregate.CommitName(c.Hash)
		if err := s.Put(ctx, cname, meta, "application/json", nil); err != nil {
			return nil, err
		}
		written = append(written, cname)
	}
	contentType := "text/plain; charset=utf-8"
	if strings.HasSuffix(name, ".json") {
		contentType = "application/json"
	}
	if err := s.Put(ctx, name, data, contentType, nil); err != nil {
		return written, err
	}
	return append(written, name), nil
}

type uploadStatus struct {
	Hash  string   `json:"hash"`
	Files []string `json:"files"`
}

// saveToServer posts c and the payload to the /upload endpoint of the
// server at baseURL.
func saveToServer(ctx context.Context, hc *http.Client, baseURL string, c commitInfo, file string, data []byte) (*uploadStatus, error) {
	pr, pw := io.Pipe()
	mpw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		defer mpw.Close()
		mpw.WriteField("commit", c.Hash)
		if c.complete() {
			mpw.WriteField("timestamp", c.Timestamp)
			if c.Parent != "" {
				mpw.WriteField("parent", c.Parent)
			}
		}
		w, err := mpw.CreateFormFile("file", filepath.Base(file))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := w.Write(data); err != nil {
			pw.CloseWithError(err)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/upload", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("upload failed: %v: %s", resp.Status, bytes.TrimSpace(body))
	}
	status := &uploadStatus{}
	if err := json.NewDecoder(resp.Body).Decode(status); err != nil {
		return nil, fmt.Errorf("cannot parse upload response: %v", err)
	}
	return status, nil
}

// readPayload reads file, prepending headerData to text payloads.
func readPayload(file string, headerData []byte) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	if len(headerData) == 0 || strings.EqualFold(filepath.Ext(file), ".json") {
		return data, nil
	}
	return append(append([]byte(nil), headerData...), data...), nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage of benchsave:
	benchsave [flags] file
`)
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.SetPrefix("benchsave: ")
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
	}
	file := flag.Arg(0)

	var headerData []byte
	if *header != "" {
		var err error
		headerData, err = os.ReadFile(*header)
		if err != nil {
			log.Fatal(err)
		}
		headerData = append(bytes.TrimRight(headerData, "\n"), '\n', '\n')
	}
	data, err := readPayload(file, headerData)
	if err != nil {
		log.Fatal(err)
	}

	c := commitInfo{Hash: *commit, Parent: *parent, Timestamp: *timestamp}
	if c.Hash == "" || c.Timestamp == "" {
		rev := c.Hash
		if rev == "" {
			rev = "HEAD"
		}
		g, err := gitCommit(rev)
		switch {
		case err == nil:
			c.fill(g)
		case c.Hash == "":
			log.Fatal(err)
		default:
			log.Printf("no commit metadata: %v", err)
		}
	}
	if !c.complete() {
		log.Printf("uploading %s without commit metadata", c.Hash)
	}

	ctx := context.Background()
	start := time.Now()
	var files []string
	if *server != "" {
		hc, err := uploadClient(ctx, *token, *audience)
		if err != nil {
			log.Fatal(err)
		}
		status, err := saveToServer(ctx, hc, *server, c, file, data)
		if err != nil {
			log.Fatal(err)
		}
		files = status.Files
	} else {
		cfg, err := config.Load(*configFile)
		if err != nil {
			log.Fatal(err)
		}
		store, closeStore, err := backend.Open(ctx, cfg.Storage)
		if err != nil {
			log.Fatal(err)
		}
		files, err = saveToStore(ctx, store, c, file, data)
		closeStore()
		if err != nil {
			log.Fatal(err)
		}
	}

	if *verbose {
		log.Printf("%d objects written in %.2f seconds.", len(files), time.Since(start).Seconds())
	}
	for _, f := range files {
		fmt.Println(f)
	}
}
