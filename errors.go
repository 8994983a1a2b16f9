// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import (
	"errors"
	"expvar"
	"strings"

	"github.com/weka-io/d2sqlite3/sqlh"
)

// UsesAfterClose is a metric that is incremented every time an operation is
// attempted on a database or statement after Close/Finalize has already been
// called. The keys are internal identifiers for the code path that
// incremented a counter.
var UsesAfterClose expvar.Map

// ErrClosed is returned when an operation is attempted on a database after
// Close has already been called, or on a statement after Finalize.
var ErrClosed = errors.New("sqlite3: already closed")

// ErrNoRows is returned when a row is requested from an empty ResultRange,
// or when an empty ResultRange is advanced.
var ErrNoRows = errors.New("sqlite3: no rows")

// ErrUnknownParameter is returned when binding by a name the statement does
// not declare. The name must include its sigil (':', '@' or '$').
var ErrUnknownParameter = errors.New("sqlite3: unknown parameter")

// ErrUnknownColumn is returned when a row lookup names a column the
// result does not contain.
var ErrUnknownColumn = errors.New("sqlite3: unknown column")

// ErrColumnRange is returned when a column index is outside the row's
// current bounds.
var ErrColumnRange = errors.New("sqlite3: column index out of range")

// ErrRowInvalidated is returned when a Row is used after its ResultRange
// stepped or its Statement was reset.
var ErrRowInvalidated = errors.New("sqlite3: row invalidated by a later step")

// ErrUnsupportedType is returned when a bound or returned Go value has no
// SQLite representation.
var ErrUnsupportedType = errors.New("sqlite3: unsupported type")

// Error is an error produced by the SQLite engine.
type Error struct {
	Code  sqlh.Code // SQLite extended error code (SQLITE_OK is an invalid value)
	Loc   string    // method name that generated the error
	Query string    // original SQL query text
	Msg   string    // value of sqlite3_errmsg at the time of the error
}

func (err *Error) Error() string {
	b := new(strings.Builder)
	b.WriteString("sqlite3")
	if err.Loc != "" {
		b.WriteByte('.')
		b.WriteString(err.Loc)
	}
	b.WriteString(": ")
	b.WriteString(err.Code.String())
	if err.Msg != "" {
		b.WriteString(": ")
		b.WriteString(err.Msg)
	}
	if err.Query != "" {
		b.WriteString(" (")
		b.WriteString(err.Query)
		b.WriteByte(')')
	}
	return b.String()
}

// reserr decorates an engine error with its location, query and the
// connection's current error message.
func reserr(db sqlh.DB, loc, query string, err error) error {
	if err == nil {
		return nil
	}
	ec, ok := err.(sqlh.ErrCode)
	if !ok {
		return err
	}
	e := &Error{
		Code:  sqlh.Code(ec),
		Loc:   loc,
		Query: query,
	}
	if db != nil {
		e.Msg = db.ErrMsg()
		if xc := db.ExtendedErrCode(); xc.Primary() == e.Code.Primary() {
			e.Code = xc
		}
	}
	return e
}
