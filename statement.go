// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import (
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/weka-io/d2sqlite3/sqlh"
)

// TimeFormat is the string format this package uses to store
// millisecond-precision time in SQLite in text format.
const TimeFormat = "2006-01-02 15:04:05.000-0700"

// Statement is a prepared SQL statement bound to a Database.
//
// A Statement prepared from whitespace or comments only is "empty":
// binds and resets are no-ops and Execute yields no rows.
//
// It is not safe for concurrent use.
type Statement struct {
	db    *Database
	stmt  sqlh.Stmt // nil when the statement is empty
	query string

	finalized atomic.Bool

	// gen counts steps and resets. A Row captures the value at its
	// creation and refuses to read once it moves on.
	gen uint64
}

// SQL reports the text the statement was prepared from.
func (s *Statement) SQL() string { return s.query }

// Empty reports whether the statement compiled to nothing (whitespace
// or comments only).
func (s *Statement) Empty() bool { return s.stmt == nil }

func (s *Statement) guard(loc string) error {
	if s.finalized.Load() {
		UsesAfterClose.Add(loc, 1)
		return ErrClosed
	}
	return s.db.guard(loc)
}

func (s *Statement) reserr(loc string, err error) error {
	return reserr(s.db.db, loc, s.query, err)
}

// Finalize releases the statement. Exactly one Finalize takes effect;
// later calls are counted no-ops.
func (s *Statement) Finalize() error {
	if !s.finalized.CompareAndSwap(false, true) {
		UsesAfterClose.Add("Finalize", 1)
		return nil
	}
	s.gen++ // outstanding Rows must not touch the dead handle
	if s.stmt == nil {
		return nil
	}
	return s.reserr("Finalize", s.stmt.Finalize())
}

// Bind binds v to the i'th parameter (1-based).
//
// nil binds NULL; bool binds INTEGER 0/1; signed integers and small
// unsigned integers bind INTEGER; float32/64 bind FLOAT; string binds
// TEXT; []byte binds BLOB, except an empty slice which binds NULL;
// time.Time binds TEXT in TimeFormat; ColumnData binds by its kind.
// uint and uint64 are rejected: they cannot round-trip through the
// engine's signed 64-bit integers.
func (s *Statement) Bind(i int, v any) error {
	if err := s.guard("Bind"); err != nil {
		return err
	}
	if s.stmt == nil {
		return nil
	}
	return s.bind(i, v)
}

func (s *Statement) bind(i int, v any) error {
	var err error
	switch v := v.(type) {
	case nil:
		err = s.stmt.BindNull(i)
	case bool:
		n := int64(0)
		if v {
			n = 1
		}
		err = s.stmt.BindInt64(i, n)
	case int:
		err = s.stmt.BindInt64(i, int64(v))
	case int8:
		err = s.stmt.BindInt64(i, int64(v))
	case int16:
		err = s.stmt.BindInt64(i, int64(v))
	case int32:
		err = s.stmt.BindInt64(i, int64(v))
	case int64:
		err = s.stmt.BindInt64(i, v)
	case uint8:
		err = s.stmt.BindInt64(i, int64(v))
	case uint16:
		err = s.stmt.BindInt64(i, int64(v))
	case uint32:
		err = s.stmt.BindInt64(i, int64(v))
	case uint, uint64:
		return fmt.Errorf("%w: %T cannot round-trip through INTEGER", ErrUnsupportedType, v)
	case float32:
		err = s.stmt.BindDouble(i, float64(v))
	case float64:
		err = s.stmt.BindDouble(i, v)
	case string:
		err = s.stmt.BindText(i, v)
	case []byte:
		if len(v) == 0 {
			// An empty byte sequence stores as NULL, never a
			// zero-length BLOB.
			err = s.stmt.BindNull(i)
		} else {
			err = s.stmt.BindBlob(i, v)
		}
	case time.Time:
		err = s.stmt.BindText(i, v.Format(TimeFormat))
	case ColumnData:
		err = s.bindValue(i, v)
	default:
		return s.bindReflect(i, v)
	}
	return s.reserr("Bind", err)
}

func (s *Statement) bindValue(i int, v ColumnData) error {
	switch v.Kind() {
	case sqlh.KindInteger:
		return s.stmt.BindInt64(i, v.Int64())
	case sqlh.KindFloat:
		return s.stmt.BindDouble(i, v.Float64())
	case sqlh.KindText:
		return s.stmt.BindText(i, v.TextValue())
	case sqlh.KindBlob:
		return s.stmt.BindBlob(i, v.BlobValue())
	default:
		return s.stmt.BindNull(i)
	}
}

// bindReflect handles named basic types (type UserID int64 and such).
func (s *Statement) bindReflect(i int, v any) error {
	val := reflect.ValueOf(v)
	switch val.Kind() {
	case reflect.Bool:
		return s.bind(i, val.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return s.bind(i, val.Int())
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return s.bind(i, int64(val.Uint()))
	case reflect.Float32, reflect.Float64:
		return s.bind(i, val.Float())
	case reflect.String:
		return s.bind(i, val.String())
	case reflect.Slice:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			return s.bind(i, val.Bytes())
		}
	}
	return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

// BindName binds v to the named parameter. The name includes its sigil,
// e.g. ":id", "@when" or "$path".
func (s *Statement) BindName(name string, v any) error {
	if err := s.guard("BindName"); err != nil {
		return err
	}
	if s.stmt == nil {
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	i := s.stmt.BindParameterIndex(name)
	if i == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return s.bind(i, v)
}

// BindAll binds vs to the statement's parameters in order. The number
// of values must match the parameter count exactly.
func (s *Statement) BindAll(vs ...any) error {
	if err := s.guard("BindAll"); err != nil {
		return err
	}
	if want := s.ParameterCount(); len(vs) != want {
		return &Error{
			Code:  sqlh.SQLITE_MISUSE,
			Loc:   "BindAll",
			Query: s.query,
			Msg:   fmt.Sprintf("statement has %d parameters, got %d values", want, len(vs)),
		}
	}
	for i, v := range vs {
		if err := s.Bind(i+1, v); err != nil {
			return err
		}
	}
	return nil
}

// ClearBindings sets every parameter back to NULL.
func (s *Statement) ClearBindings() error {
	if err := s.guard("ClearBindings"); err != nil {
		return err
	}
	if s.stmt == nil {
		return nil
	}
	return s.reserr("ClearBindings", s.stmt.ClearBindings())
}

// Reset rewinds the statement so it can run again. Bindings are kept.
// ResultRanges and Rows from the previous run are invalidated.
func (s *Statement) Reset() error {
	if err := s.guard("Reset"); err != nil {
		return err
	}
	if s.stmt == nil {
		return nil
	}
	s.gen++
	return s.reserr("Reset", s.stmt.Reset())
}

// Execute starts the statement and performs the first step. The
// returned ResultRange is positioned on the first row, or already
// empty for statements that return none.
func (s *Statement) Execute() (*ResultRange, error) {
	if err := s.guard("Execute"); err != nil {
		return nil, err
	}
	rr := &ResultRange{stmt: s}
	if s.stmt == nil {
		rr.done = true
		return rr, nil
	}
	start := time.Now()
	s.gen++
	row, err := s.stmt.Step()
	s.db.trace(s.query, start, err)
	if err != nil {
		return nil, s.reserr("Execute", err)
	}
	rr.done = !row
	return rr, nil
}

// Inject binds vs, runs the statement to completion discarding any
// rows, and resets it for the next use. It is the fast path for
// INSERT/UPDATE loops over one prepared statement.
func (s *Statement) Inject(vs ...any) error {
	if err := s.BindAll(vs...); err != nil {
		return err
	}
	rr, err := s.Execute()
	if err != nil {
		return err
	}
	if err := rr.drain(); err != nil {
		return err
	}
	return s.Reset()
}

// ParameterCount reports the number of SQL parameters in the statement.
func (s *Statement) ParameterCount() int {
	if s.guard("ParameterCount") != nil || s.stmt == nil {
		return 0
	}
	return s.stmt.BindParameterCount()
}

// ParameterName reports the name (with sigil) of the i'th parameter
// (1-based), or "" for nameless ? parameters.
func (s *Statement) ParameterName(i int) string {
	if s.guard("ParameterName") != nil || s.stmt == nil {
		return ""
	}
	return s.stmt.BindParameterName(i)
}

// ParameterIndex reports the 1-based index of the named parameter
// (sigil included), or 0 if the statement has no such parameter.
func (s *Statement) ParameterIndex(name string) int {
	if s.guard("ParameterIndex") != nil || s.stmt == nil {
		return 0
	}
	return s.stmt.BindParameterIndex(name)
}

// ColumnCount reports the number of result columns the statement
// produces, or 0 for statements that return no rows.
func (s *Statement) ColumnCount() int {
	if s.guard("ColumnCount") != nil || s.stmt == nil {
		return 0
	}
	return s.stmt.ColumnCount()
}

// ColumnName reports the name of the i'th result column (0-based).
func (s *Statement) ColumnName(i int) string {
	if s.guard("ColumnName") != nil || s.stmt == nil {
		return ""
	}
	return s.stmt.ColumnName(i)
}

// ColumnDeclType reports the declared type of the i'th result column
// (0-based), or "" for expressions and statements with no rows.
func (s *Statement) ColumnDeclType(i int) string {
	if s.guard("ColumnDeclType") != nil || s.stmt == nil {
		return ""
	}
	return s.stmt.ColumnDeclType(i)
}
