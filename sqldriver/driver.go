// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sqldriver adapts the object model to database/sql.
//
// It registers itself under the name "d2sqlite3":
//
//	db, err := sql.Open("d2sqlite3", "file:demo.db")
//
// # Initializing connections or tracing
//
// If you want to do initial configuration of a connection, or enable
// tracing, use the Connector function:
//
//	connInitFunc := func(db *sqlite3.Database) error {
//		return db.Run("PRAGMA journal_mode=WAL;", nil)
//	}
//	db, err = sql.OpenDB(sqldriver.Connector(sqliteURI, connInitFunc, nil))
//
// # Memory Mode
//
// In-memory databases are popular for tests.
// Use the "memdb" VFS (*not* the legacy in-memory modes) to be compatible
// with the database/sql connection pool:
//
//	file:/dbname?vfs=memdb
//
// Use a different dbname for each memory database opened.
//
// # Reading Time
//
// If a column is declared DATE or DATETIME, text data is parsed as
// sqlite3.TimeFormat (allowing truncated forms) and returned as a
// time.Time, and integer data is parsed as seconds since epoch.
// A column declared BOOLEAN converts integer data to a bool.
package sqldriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	sqlite3 "github.com/weka-io/d2sqlite3"
	"github.com/weka-io/d2sqlite3/sqlh"
)

func init() {
	sql.Register("d2sqlite3", drv{})
}

// ConnInitFunc is a function called by the driver on new connections.
//
// Any error return closes the conn and passes the error to database/sql.
type ConnInitFunc func(db *sqlite3.Database) error

type drv struct{}

func (drv) Open(name string) (driver.Conn, error) { panic("deprecated, unused") }
func (drv) OpenConnector(name string) (driver.Connector, error) {
	return &connector{name: name}, nil
}

// Connector returns a driver.Connector for the given database URI that
// runs connInitFunc on every new connection and attaches tracer to it.
func Connector(sqliteURI string, connInitFunc ConnInitFunc, tracer sqlh.Tracer) driver.Connector {
	return &connector{
		name:         sqliteURI,
		tracer:       tracer,
		connInitFunc: connInitFunc,
	}
}

type connector struct {
	name         string
	tracer       sqlh.Tracer
	connInitFunc ConnInitFunc
}

func (p *connector) Driver() driver.Driver { return drv{} }
func (p *connector) Connect(ctx context.Context) (driver.Conn, error) {
	db, err := sqlite3.Open(p.name)
	if err != nil {
		return nil, err
	}
	db.SetTracer(p.tracer)
	if p.connInitFunc != nil {
		if err := p.connInitFunc(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqldriver.ConnInitFunc: %w", err)
		}
	}
	return &conn{db: db}, nil
}

type txState int

const (
	txStateNone  = txState(0) // connection is not connected to a Tx
	txStateInit  = txState(1) // BeginTx called, but "BEGIN;" not yet executed
	txStateBegun = txState(2) // "BEGIN;" has been executed
)

type conn struct {
	db       *sqlite3.Database
	txState  txState
	readOnly bool
}

func (c *conn) Prepare(query string) (driver.Stmt, error) { panic("deprecated, unused") }
func (c *conn) Begin() (driver.Tx, error)                 { panic("deprecated, unused") }

func (c *conn) Close() error {
	return c.db.Close()
}

func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	cstmt, err := c.db.Prepare(strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}
	return &stmt{conn: c, stmt: cstmt}, nil
}

func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	const LevelSerializable = 6 // matches the sql package constant
	if opts.Isolation != 0 && opts.Isolation != LevelSerializable {
		return nil, errors.New("sqldriver only supports serializable isolation level")
	}
	c.readOnly = opts.ReadOnly
	c.txState = txStateInit
	if err := c.txInit(ctx); err != nil {
		return nil, err
	}
	return &connTx{conn: c}, nil
}

// Raw is so ConnInitFunc callers can reach the object model through
// sql.Conn.Raw.
func (c *conn) Raw(fn func(any) error) error { return fn(c) }

type readOnlyKey struct{}

// ReadOnly applies the query_only pragma to the transaction begun with
// this context.
func ReadOnly(ctx context.Context) context.Context {
	return context.WithValue(ctx, readOnlyKey{}, true)
}

// IsReadOnly reports whether the context has the ReadOnly key.
func IsReadOnly(ctx context.Context) bool {
	return ctx.Value(readOnlyKey{}) != nil
}

func (c *conn) txInit(ctx context.Context) error {
	if c.txState != txStateInit {
		return nil
	}
	c.txState = txStateBegun
	if c.readOnly || IsReadOnly(ctx) {
		c.readOnly = true
		if err := c.db.Execute("BEGIN"); err != nil {
			return err
		}
		return c.db.Execute("PRAGMA query_only=true")
	}
	return c.db.Execute("BEGIN IMMEDIATE")
}

func (c *conn) txEnd(endStmt string) error {
	state, readOnly := c.txState, c.readOnly
	c.txState = txStateNone
	c.readOnly = false
	if state != txStateBegun {
		return nil
	}
	err := c.db.Execute(endStmt)
	if readOnly {
		if err2 := c.db.Execute("PRAGMA query_only=false"); err == nil {
			err = err2
		}
	}
	return err
}

type connTx struct {
	conn *conn
}

func (tx *connTx) Commit() error   { return tx.conn.txEnd("COMMIT") }
func (tx *connTx) Rollback() error { return tx.conn.txEnd("ROLLBACK") }

type stmt struct {
	conn *conn
	stmt *sqlite3.Statement
}

func (s *stmt) NumInput() int { return s.stmt.ParameterCount() }
func (s *stmt) Close() error  { return s.stmt.Finalize() }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) { panic("deprecated, unused") }
func (s *stmt) Query(args []driver.Value) (driver.Rows, error)  { panic("deprecated, unused") }

// parameter sigils tried, in order, for driver-level named arguments.
var sigils = []string{":", "@", "$"}

func (s *stmt) bindAll(args []driver.NamedValue) error {
	if err := s.stmt.Reset(); err != nil {
		return err
	}
	if err := s.stmt.ClearBindings(); err != nil {
		return err
	}
	for _, arg := range args {
		if arg.Name == "" {
			if err := s.stmt.Bind(arg.Ordinal, arg.Value); err != nil {
				return err
			}
			continue
		}
		// database/sql strips the sigil from sql.Named names.
		bound := false
		for _, sigil := range sigils {
			if s.stmt.ParameterIndex(sigil+arg.Name) != 0 {
				if err := s.stmt.BindName(sigil+arg.Name, arg.Value); err != nil {
					return err
				}
				bound = true
				break
			}
		}
		if !bound {
			return fmt.Errorf("sqldriver: unknown parameter name %q", arg.Name)
		}
	}
	return nil
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if err := s.bindAll(args); err != nil {
		return nil, err
	}
	rr, err := s.stmt.Execute()
	if err != nil {
		return nil, err
	}
	for !rr.Empty() {
		if err := rr.Advance(); err != nil {
			return nil, err
		}
	}
	res := stmtResult{
		lastInsertID: s.conn.db.LastInsertRowid(),
		rowsAffected: s.conn.db.Changes(),
	}
	if err := s.stmt.Reset(); err != nil {
		return nil, err
	}
	return res, nil
}

type stmtResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (res stmtResult) LastInsertId() (int64, error) { return res.lastInsertID, nil }
func (res stmtResult) RowsAffected() (int64, error) { return res.rowsAffected, nil }

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if err := s.bindAll(args); err != nil {
		return nil, err
	}
	rr, err := s.stmt.Execute()
	if err != nil {
		return nil, err
	}
	return &rows{stmt: s, rr: rr}, nil
}

// colDeclType is whether and how the declared SQLite column type should
// map to any special handling (as a date, or as a boolean, etc).
type colDeclType byte

const (
	declTypeUnknown colDeclType = iota
	declTypeDateOrTime
	declTypeBoolean
)

func colDeclTypeFromString(s string) colDeclType {
	if strings.EqualFold(s, "DATETIME") || strings.EqualFold(s, "DATE") {
		return declTypeDateOrTime
	}
	if strings.EqualFold(s, "BOOLEAN") {
		return declTypeBoolean
	}
	return declTypeUnknown
}

type rows struct {
	stmt    *stmt
	rr      *sqlite3.ResultRange
	started bool // true once the first row has been consumed
	closed  bool

	colNames     []string      // filled on call to Columns
	colDeclTypes []colDeclType // filled on first call to Next
}

func (r *rows) Columns() []string {
	if r.closed {
		panic("Columns called after Rows was closed")
	}
	if r.colNames == nil {
		r.colNames = make([]string, r.stmt.stmt.ColumnCount())
		for i := range r.colNames {
			r.colNames[i] = r.stmt.stmt.ColumnName(i)
		}
	}
	return append([]string{}, r.colNames...)
}

func (r *rows) Close() error {
	if r.closed {
		return errors.New("sqldriver: rows already closed")
	}
	r.closed = true
	return r.stmt.stmt.Reset()
}

func (r *rows) Next(dest []driver.Value) error {
	if r.closed {
		return errors.New("sqldriver: rows already closed")
	}
	if r.rr.Empty() {
		return io.EOF
	}
	if r.started {
		if err := r.rr.Advance(); err != nil {
			return err
		}
	}
	r.started = true
	if r.rr.Empty() {
		return io.EOF
	}

	if r.colDeclTypes == nil {
		r.colDeclTypes = make([]colDeclType, r.stmt.stmt.ColumnCount())
		for i := range r.colDeclTypes {
			r.colDeclTypes[i] = colDeclTypeFromString(r.stmt.stmt.ColumnDeclType(i))
		}
	}

	row, err := r.rr.Row()
	if err != nil {
		return err
	}
	for i := range dest {
		v, err := row.Value(i)
		if err != nil {
			return err
		}
		if r.colDeclTypes[i] == declTypeDateOrTime {
			switch v.Kind() {
			case sqlh.KindInteger:
				dest[i] = time.Unix(v.Int64(), 0)
				continue
			case sqlh.KindText:
				t, err := parseTimeColumn(v.TextValue())
				if err != nil {
					return fmt.Errorf("sqldriver: cannot parse time from column %d: %v", i, err)
				}
				dest[i] = t
				continue
			}
		}
		switch v.Kind() {
		case sqlh.KindInteger:
			if r.colDeclTypes[i] == declTypeBoolean {
				dest[i] = v.Int64() > 0
			} else {
				dest[i] = v.Int64()
			}
		case sqlh.KindFloat:
			dest[i] = v.Float64()
		case sqlh.KindText:
			dest[i] = []byte(v.TextValue())
		case sqlh.KindBlob:
			dest[i] = v.BlobValue()
		default:
			dest[i] = nil
		}
	}
	return nil
}

// parseTimeColumn accepts sqlite3.TimeFormat and its truncated forms,
// the way SQLite's own date functions write timestamps.
func parseTimeColumn(v string) (time.Time, error) {
	format := sqlite3.TimeFormat
	if len(format) > len(v) {
		format = strings.TrimSuffix(format, "-0700")
	}
	if len(format) > len(v) {
		format = strings.TrimSuffix(format, ".000")
	}
	if len(format) > len(v) {
		format = strings.TrimSuffix(format, ":05")
	}
	return time.Parse(format, v)
}
