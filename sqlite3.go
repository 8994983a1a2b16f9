// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sqlite3 is a safe object model over the SQLite C engine.
//
// A Database owns one engine connection. Statements are prepared from
// a Database and executed into ResultRanges, single-pass iterators over
// the result rows. A Row is a cheap view of the current row that is
// invalidated by the next step; ColumnData and RowCache hold durable
// copies that outlive the statement and the connection.
//
// # Memory Mode
//
// In-memory databases are popular for tests:
//
//	db, err := sqlite3.Open(":memory:")
//
// # Binding Types
//
// SQLite is flexible about type conversions, and so is this package.
// Almost all "basic" Go types (int, float64, string, []byte, bool) are
// accepted and directly mapped into SQLite, even if they are named Go
// types. time.Time is stored as TimeFormat text. uint and uint64 are
// rejected: values above 1<<63-1 cannot round-trip through the engine's
// signed integers.
//
// # Concurrency
//
// A Database and everything derived from it must be driven by one
// goroutine at a time. Distinct Databases are independent; whether they
// may run on distinct goroutines is governed by the process-wide
// threading mode, see ConfigureMultiThread and friends.
package sqlite3

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/weka-io/d2sqlite3/sqlh"
)

// The engine is linked in by a build-tagged file setting these hooks.
var (
	engineOpen sqlh.OpenFunc = func(string, sqlh.OpenFlags, string) (sqlh.DB, error) {
		return nil, fmt.Errorf("sqlite3: engine not linked (build with cgo)")
	}
	engineComplete  sqlh.CompleteFunc
	engineConfigure sqlh.ConfigureFunc
	engineVersion   func() string
)

var maxConnID atomic.Int32

// ConfigureSingleThread puts the engine in single-thread mode: all
// mutexes are compiled out and every Database must be driven from one
// goroutine. Must be called before the first Open.
func ConfigureSingleThread() error { return configure(sqlh.SQLITE_CONFIG_SINGLETHREAD) }

// ConfigureMultiThread puts the engine in multi-thread mode: distinct
// Databases may be used from distinct goroutines, but a single Database
// must not be shared. Must be called before the first Open.
func ConfigureMultiThread() error { return configure(sqlh.SQLITE_CONFIG_MULTITHREAD) }

// ConfigureSerialized puts the engine in serialized mode: the engine
// takes its own locks and connections may be shared. Must be called
// before the first Open.
func ConfigureSerialized() error { return configure(sqlh.SQLITE_CONFIG_SERIALIZED) }

func configure(mode sqlh.ThreadMode) error {
	if engineConfigure == nil {
		return fmt.Errorf("sqlite3: engine not linked (build with cgo)")
	}
	return engineConfigure(mode)
}

// Version reports the SQLite library version string.
func Version() string {
	if engineVersion == nil {
		return ""
	}
	return engineVersion()
}

// Database is an open connection to an SQLite database.
//
// It is not safe for concurrent use.
type Database struct {
	db     sqlh.DB
	id     sqlh.TraceConnID
	tracer sqlh.Tracer
	closed atomic.Bool
}

// Open opens the database at path, creating it if needed.
//
// path may be a plain filename, a file: URI, or ":memory:" for a
// private in-memory database. With no flags the database opens
// read-write with a rollback journal; pass sqlh flags to override.
func Open(path string, flags ...sqlh.OpenFlags) (*Database, error) {
	var openFlags sqlh.OpenFlags
	if len(flags) == 0 {
		openFlags = sqlh.OpenFlagsDefault
	}
	for _, f := range flags {
		openFlags |= f
	}

	db, err := engineOpen(path, openFlags, "")
	if err != nil {
		if ec, ok := err.(sqlh.ErrCode); ok {
			e := &Error{
				Code: sqlh.Code(ec),
				Loc:  "Open",
			}
			if db != nil {
				e.Msg = db.ErrMsg()
			}
			err = e
		}
		// The engine can hand back a half-made handle with the error.
		if db != nil {
			db.Close()
		}
		return nil, err
	}
	return &Database{
		db: db,
		id: sqlh.TraceConnID(maxConnID.Add(1)),
	}, nil
}

// SetTracer installs t to observe statement execution on this
// connection. A nil t disables tracing.
func (db *Database) SetTracer(t sqlh.Tracer) { db.tracer = t }

func (db *Database) trace(query string, start time.Time, err error) {
	if db.tracer != nil {
		db.tracer.Query(db.id, query, time.Since(start), err)
	}
}

// Close releases the engine connection. Closing twice is a counted
// no-op. Closing with unfinalized statements fails and leaves the
// database open.
func (db *Database) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		UsesAfterClose.Add("Close", 1)
		return nil
	}
	if err := reserr(db.db, "Close", "", db.db.Close()); err != nil {
		db.closed.Store(false)
		return err
	}
	return nil
}

// guard reports ErrClosed (and counts the use) if the database has
// been closed.
func (db *Database) guard(loc string) error {
	if db.closed.Load() {
		UsesAfterClose.Add(loc, 1)
		return ErrClosed
	}
	return nil
}

// Prepare compiles the first statement of sql. Any text after the
// first complete statement is silently ignored; use Run to execute a
// multi-statement script. Whitespace or comment-only sql yields a
// valid empty Statement whose Execute returns no rows.
func (db *Database) Prepare(sql string) (*Statement, error) {
	if err := db.guard("Prepare"); err != nil {
		return nil, err
	}
	stmt, _, err := db.db.Prepare(sql)
	if err != nil {
		return nil, reserr(db.db, "Prepare", sql, err)
	}
	return &Statement{db: db, stmt: stmt, query: sql}, nil
}

// Execute prepares and runs a single statement to completion, binding
// args in order. Rows the statement produces are discarded.
// The run is traced once, by the statement's step.
func (db *Database) Execute(sql string, args ...any) error {
	stmt, err := db.Prepare(sql)
	if err != nil {
		return err
	}
	defer stmt.Finalize()
	if err := stmt.BindAll(args...); err != nil {
		return err
	}
	rr, err := stmt.Execute()
	if err != nil {
		return err
	}
	return rr.drain()
}

// LastInsertRowid reports the rowid of the most recent successful
// INSERT on this connection.
func (db *Database) LastInsertRowid() int64 {
	if db.guard("LastInsertRowid") != nil {
		return 0
	}
	return db.db.LastInsertRowid()
}

// Changes reports the number of rows changed by the most recent
// statement on this connection.
func (db *Database) Changes() int64 {
	if db.guard("Changes") != nil {
		return 0
	}
	return db.db.Changes()
}

// TotalChanges reports the number of rows changed since the connection
// opened.
func (db *Database) TotalChanges() int64 {
	if db.guard("TotalChanges") != nil {
		return 0
	}
	return db.db.TotalChanges()
}

// ErrorCode reports the extended result code of the most recent failed
// engine call on this connection.
func (db *Database) ErrorCode() sqlh.Code {
	if db.guard("ErrorCode") != nil {
		return sqlh.SQLITE_MISUSE
	}
	return db.db.ExtendedErrCode()
}

// BusyTimeout sets how long the engine retries when a table is locked
// by another connection.
func (db *Database) BusyTimeout(d time.Duration) {
	if db.guard("BusyTimeout") != nil {
		return
	}
	db.db.BusyTimeout(d)
}

// Interrupt aborts any operation in flight on this connection. Safe to
// call from another goroutine; that is its purpose.
func (db *Database) Interrupt() {
	if db.guard("Interrupt") != nil {
		return
	}
	db.db.Interrupt()
}

// EnableLoadExtension toggles the extension loading C API for this
// connection. The load_extension() SQL function stays disabled.
func (db *Database) EnableLoadExtension(on bool) error {
	if err := db.guard("EnableLoadExtension"); err != nil {
		return err
	}
	return reserr(db.db, "EnableLoadExtension", "", db.db.EnableLoadExtension(on))
}

// LoadExtension loads the shared library at path as an SQLite
// extension. entryPoint may be empty to use the library's default.
func (db *Database) LoadExtension(path, entryPoint string) error {
	if err := db.guard("LoadExtension"); err != nil {
		return err
	}
	return reserr(db.db, "LoadExtension", "", db.db.LoadExtension(path, entryPoint))
}

// TableColumnMetadata describes a declared column of a table. schema
// may be empty for "main".
func (db *Database) TableColumnMetadata(schema, table, column string) (sqlh.ColumnMetadata, error) {
	if err := db.guard("TableColumnMetadata"); err != nil {
		return sqlh.ColumnMetadata{}, err
	}
	md, err := db.db.TableColumnMetadata(schema, table, column)
	return md, reserr(db.db, "TableColumnMetadata", "", err)
}
