// Copyright 2016 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package db provides the event ledger used to recognize storage
// notifications that were already applied to the aggregate document.
package db

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// DB is a ledger of applied events backed by a SQL database.
// It's safe for concurrent use by multiple goroutines.
type DB struct {
	sql *sql.DB // underlying database connection
	// prepared statements
	insertEvent *sql.Stmt
	seenEvent   *sql.Stmt
}

// An Event is one storage notification that was merged into the
// aggregate document.
type Event struct {
	Bucket string
	Name   string
	// Version is the store's version of the payload object, such as
	// a Cloud Storage generation. Rewriting an object gives it a new
	// version and therefore a new event.
	Version    string
	CommitHash string
	// Records is the number of benchmark records appended.
	Records   int
	AppliedAt time.Time
}

// ID returns the primary key of e.
func (e Event) ID() string {
	return EventID(e.Bucket, e.Name, e.Version)
}

// EventID returns the ledger key for the object bucket/name at version.
func EventID(bucket, name, version string) string {
	sum := sha256.Sum256([]byte(bucket + "/" + name + "#" + version))
	return hex.EncodeToString(sum[:])
}

// now is overridden by tests.
var now = time.Now

// OpenSQL creates a DB backed by a SQL database. The parameters are
// the same as the parameters for sql.Open. Only mysql and sqlite3 are
// explicitly supported; other database engines will receive MySQL
// query syntax which may or may not be compatible.
func OpenSQL(driverName, dataSourceName string) (*DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if hook := openHooks[driverName]; hook != nil {
		if err := hook(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	d := &DB{sql: db}
	if err := d.createTables(driverName); err != nil {
		db.Close()
		return nil, err
	}
	if err := d.prepareStatements(driverName); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

var openHooks = make(map[string]func(*sql.DB) error)

// RegisterOpenHook registers a hook to be called after opening a connection to driverName.
// This is used by the sqlite3 package to register a ConnectHook.
// It must be called from an init function.
func RegisterOpenHook(driverName string, hook func(*sql.DB) error) {
	openHooks[driverName] = hook
}

// createTmpl is the template used to prepare the CREATE statements
// for the database. It is evaluated with . as a map containing one
// entry whose key is the driver name.
var createTmpl = template.Must(template.New("create").Parse(`
CREATE TABLE IF NOT EXISTS Events (
	EventID CHAR(64) PRIMARY KEY,
	Bucket VARCHAR(255) NOT NULL,
	Name VARCHAR(1024) NOT NULL,
	Version VARCHAR(255) NOT NULL,
	CommitHash VARCHAR(255) NOT NULL,
	Records INTEGER NOT NULL,
	AppliedAt BIGINT NOT NULL
{{if not .sqlite3}}
	, INDEX (AppliedAt)
{{end}}
);
{{if .sqlite3}}
CREATE INDEX IF NOT EXISTS EventsAppliedAt ON Events(AppliedAt);
{{end}}
`))

// insertTmpl is the idempotent insert; a second record of the same
// event is ignored.
var insertTmpl = template.Must(template.New("insert").Parse(
	`INSERT {{if .sqlite3}}OR IGNORE{{else}}IGNORE{{end}} INTO Events(EventID, Bucket, Name, Version, CommitHash, Records, AppliedAt) VALUES (?, ?, ?, ?, ?, ?, ?)`))

// createTables creates any missing tables on the connection in
// db.sql. driverName is the same driver name passed to sql.Open and
// is used to select the correct syntax.
func (db *DB) createTables(driverName string) error {
	var buf bytes.Buffer
	if err := createTmpl.Execute(&buf, map[string]bool{driverName: true}); err != nil {
		return err
	}
	for _, q := range strings.Split(buf.String(), ";") {
		if strings.TrimSpace(q) == "" {
			continue
		}
		if _, err := db.sql.Exec(q); err != nil {
			return fmt.Errorf("create table: %v", err)
		}
	}
	return nil
}

// prepareStatements calls db.sql.Prepare on reusable SQL statements.
func (db *DB) prepareStatements(driverName string) error {
	var buf bytes.Buffer
	if err := insertTmpl.Execute(&buf, map[string]bool{driverName: true}); err != nil {
		return err
	}
	var err error
	db.insertEvent, err = db.sql.Prepare(buf.String())
	if err != nil {
		return err
	}
	db.seenEvent, err = db.sql.Prepare("SELECT COUNT(*) FROM Events WHERE EventID = ?")
	if err != nil {
		return err
	}
	return nil
}

// Seen reports whether the object bucket/name at version was already
// recorded.
func (db *DB) Seen(ctx context.Context, bucket, name, version string) (bool, error) {
	var n int
	if err := db.seenEvent.QueryRowContext(ctx, EventID(bucket, name, version)).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Record stores e. Recording an event twice is not an error; the
// first record is kept. A zero AppliedAt is set to the current time.
func (db *DB) Record(ctx context.Context, e Event) error {
	if e.Bucket == "" || e.Name == "" {
		return errors.New("db: event needs a bucket and a name")
	}
	at := e.AppliedAt
	if at.IsZero() {
		at = now()
	}
	_, err := db.insertEvent.ExecContext(ctx, e.ID(), e.Bucket, e.Name, e.Version, e.CommitHash, e.Records, at.UnixMilli())
	return err
}

// Recent returns up to limit events, most recently applied first.
// A limit of zero or less returns all events.
func (db *DB) Recent(ctx context.Context, limit int) ([]Event, error) {
	q := "SELECT Bucket, Name, Version, CommitHash, Records, AppliedAt FROM Events ORDER BY AppliedAt DESC, Name DESC"
	var args []interface{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var e Event
		var ms int64
		if err := rows.Scan(&e.Bucket, &e.Name, &e.Version, &e.CommitHash, &e.Records, &ms); err != nil {
			return nil, err
		}
		e.AppliedAt = time.UnixMilli(ms).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the number of events in the ledger.
func (db *DB) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM Events").Scan(&n)
	return n, err
}

// Close closes the database connections, releasing any open resources.
func (db *DB) Close() error {
	if err := db.insertEvent.Close(); err != nil {
		return err
	}
	if err := db.seenEvent.Close(); err != nil {
		return err
	}
	return db.sql.Close()
}
