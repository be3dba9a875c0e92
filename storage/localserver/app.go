// Copyright 2016 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Localserver runs the benchmerge receiver against an in-memory bucket
// and an in-memory ledger, for development. Payloads posted to /upload
// are merged right away, and the aggregate document is served at
// /benchmark_data.json.
package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/benchdisplay/benchmerge/aggregate"
	"github.com/benchdisplay/benchmerge/internal/logger"
	"github.com/benchdisplay/benchmerge/storage/app"
	"github.com/benchdisplay/benchmerge/storage/blob"
	"github.com/benchdisplay/benchmerge/storage/db"
	_ "github.com/benchdisplay/benchmerge/storage/db/sqlite3"
	"github.com/benchdisplay/benchmerge/updater"
)

var (
	addr    = flag.String("addr", ":8080", "serve HTTP on `address`")
	bucket  = flag.String("bucket", "local", "name events must carry to be applied")
	verbose = flag.Bool("v", false, "log each update")
)

func main() {
	log.SetPrefix("localserver: ")
	log.SetFlags(0)
	flag.Parse()

	ledger, err := db.OpenSQL("sqlite3", ":memory:")
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	store := blob.NewMemStore()

	l := logger.Nop()
	if *verbose {
		if l, err = logger.New("development"); err != nil {
			log.Fatal(err)
		}
	}
	u := &updater.Updater{
		Store:  store,
		Bucket: *bucket,
		Ledger: ledger,
		Log:    l,
	}
	a := &app.App{
		Updater:      u,
		Log:          l,
		ApplyUploads: true,
	}
	a.RegisterOnMux(http.DefaultServeMux)
	http.HandleFunc("/"+aggregate.DocumentName, func(w http.ResponseWriter, r *http.Request) {
		doc, _, err := u.Current(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data, err := doc.Marshal()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", aggregate.DocumentContentType)
		w.Write(data)
	})

	log.Printf("Listening on %s", *addr)

	log.Fatal(http.ListenAndServe(*addr, nil))
}
