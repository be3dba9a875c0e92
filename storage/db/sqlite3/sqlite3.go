// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sqlite3 provides the sqlite3 driver for
// github.com/benchdisplay/benchmerge/storage/db.OpenSQL. It must be
// imported instead of go-sqlite3 to ensure every connection waits on
// a busy database instead of failing.
package sqlite3

import (
	"database/sql"

	"github.com/benchdisplay/benchmerge/storage/db"
	"github.com/mattn/go-sqlite3"
)

func init() {
	db.RegisterOpenHook("sqlite3", func(d *sql.DB) error {
		d.Driver().(*sqlite3.SQLiteDriver).ConnectHook = func(c *sqlite3.SQLiteConn) error {
			_, err := c.Exec("PRAGMA busy_timeout = 5000;", nil)
			return err
		}
		// Each connection to ":memory:" is a separate database.
		d.SetMaxOpenConns(1)
		return nil
	})
}
