// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import (
	"fmt"
	"math"

	"go4.org/mem"

	"github.com/weka-io/d2sqlite3/sqlh"
)

// ResultRange is a single-pass iterator over a statement's result rows.
// Execute positions it on the first row; Advance moves it forward. Rows
// come back in engine order and are never buffered.
//
// It is not safe for concurrent use.
type ResultRange struct {
	stmt *Statement
	done bool
}

// Empty reports whether the iterator has run out of rows. A statement
// that returns no rows is empty immediately after Execute.
func (rr *ResultRange) Empty() bool { return rr.done }

// Advance steps to the next row. Advancing an empty ResultRange is an
// error (ErrNoRows); stepping off the last row is not.
func (rr *ResultRange) Advance() error {
	if rr.done {
		return ErrNoRows
	}
	if err := rr.stmt.guard("Advance"); err != nil {
		return err
	}
	rr.stmt.gen++
	row, err := rr.stmt.stmt.Step()
	if err != nil {
		rr.done = true
		return rr.stmt.reserr("Advance", err)
	}
	rr.done = !row
	return nil
}

// Row returns a view of the current row. The view is invalidated by
// the next Advance, Reset or Finalize; copy what must outlive the step
// with Value or Cache.
func (rr *ResultRange) Row() (Row, error) {
	if rr.done {
		return Row{}, ErrNoRows
	}
	if err := rr.stmt.guard("Row"); err != nil {
		return Row{}, err
	}
	return Row{
		rr:    rr,
		gen:   rr.stmt.gen,
		front: 0,
		back:  rr.stmt.stmt.ColumnCount() - 1,
	}, nil
}

// OneValue returns the first column of the current row. It is the
// shape of "SELECT count(*) ..." reads.
func (rr *ResultRange) OneValue() (ColumnData, error) {
	row, err := rr.Row()
	if err != nil {
		return ColumnData{}, err
	}
	return row.Value(0)
}

// drain steps the iterator to completion.
func (rr *ResultRange) drain() error {
	for !rr.done {
		if err := rr.Advance(); err != nil {
			return err
		}
	}
	return nil
}

// Row is a non-owning view of the current result row. Every read is
// checked against the parent statement's step counter: once the
// iterator moves on, the view answers ErrRowInvalidated instead of
// touching memory the engine has reused.
//
// PopFront and PopBack narrow the view without copying, so a Row can be
// consumed like a double-ended range.
type Row struct {
	rr    *ResultRange
	gen   uint64
	front int // inclusive
	back  int // inclusive; front > back means exhausted
}

func (r Row) valid() error {
	if r.rr == nil || r.gen != r.rr.stmt.gen {
		return ErrRowInvalidated
	}
	return nil
}

// col maps a view-relative index to a statement column index.
func (r Row) col(i int) (int, error) {
	if err := r.valid(); err != nil {
		return 0, err
	}
	c := r.front + i
	if i < 0 || c > r.back {
		return 0, fmt.Errorf("%w: %d (row has %d columns)", ErrColumnRange, i, r.Len())
	}
	return c, nil
}

// Len reports the number of columns left in the view.
func (r Row) Len() int {
	if r.valid() != nil || r.front > r.back {
		return 0
	}
	return r.back - r.front + 1
}

// PopFront returns the view narrowed past its first column.
func (r Row) PopFront() (Row, error) {
	if err := r.valid(); err != nil {
		return Row{}, err
	}
	if r.front > r.back {
		return Row{}, fmt.Errorf("%w: pop from exhausted row", ErrColumnRange)
	}
	r.front++
	return r, nil
}

// PopBack returns the view narrowed before its last column.
func (r Row) PopBack() (Row, error) {
	if err := r.valid(); err != nil {
		return Row{}, err
	}
	if r.front > r.back {
		return Row{}, fmt.Errorf("%w: pop from exhausted row", ErrColumnRange)
	}
	r.back--
	return r, nil
}

// ColumnName reports the name of the i'th column of the view.
func (r Row) ColumnName(i int) (string, error) {
	c, err := r.col(i)
	if err != nil {
		return "", err
	}
	return r.rr.stmt.stmt.ColumnName(c), nil
}

// Value returns the i'th column as a durable tagged ColumnData. Text
// and blob payloads are copied out of the engine.
func (r Row) Value(i int) (ColumnData, error) {
	c, err := r.col(i)
	if err != nil {
		return ColumnData{}, err
	}
	st := r.rr.stmt.stmt
	switch st.ColumnType(c) {
	case sqlh.SQLITE_INTEGER:
		return sqlh.Integer(st.ColumnInt64(c)), nil
	case sqlh.SQLITE_FLOAT:
		return sqlh.Float(st.ColumnDouble(c)), nil
	case sqlh.SQLITE_TEXT:
		return sqlh.Text(st.ColumnText(c)), nil
	case sqlh.SQLITE_BLOB:
		return sqlh.Blob(append([]byte(nil), st.ColumnBlob(c)...)), nil
	default:
		return sqlh.Null(), nil
	}
}

// ByName returns the column with the given result name. The lookup is
// a linear scan over the view's columns.
func (r Row) ByName(name string) (ColumnData, error) {
	if err := r.valid(); err != nil {
		return ColumnData{}, err
	}
	st := r.rr.stmt.stmt
	for c := r.front; c <= r.back; c++ {
		if st.ColumnName(c) == name {
			return r.Value(c - r.front)
		}
	}
	return ColumnData{}, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
}

// Int returns the i'th column as an int64. NULL reads as 0; the engine
// coerces other datatypes.
func (r Row) Int(i int) (int64, error) {
	c, err := r.col(i)
	if err != nil {
		return 0, err
	}
	return r.rr.stmt.stmt.ColumnInt64(c), nil
}

// Float returns the i'th column as a float64. NULL reads as NaN, not
// 0: a missing measurement must not look like a zero one.
func (r Row) Float(i int) (float64, error) {
	c, err := r.col(i)
	if err != nil {
		return 0, err
	}
	st := r.rr.stmt.stmt
	if st.ColumnType(c) == sqlh.SQLITE_NULL {
		return math.NaN(), nil
	}
	return st.ColumnDouble(c), nil
}

// Text returns the i'th column as a string. NULL reads as "".
func (r Row) Text(i int) (string, error) {
	c, err := r.col(i)
	if err != nil {
		return "", err
	}
	return r.rr.stmt.stmt.ColumnText(c), nil
}

// TextRO returns the i'th column as a read-only memory view, for
// callers that hash or parse text without wanting another allocation
// downstream.
func (r Row) TextRO(i int) (mem.RO, error) {
	c, err := r.col(i)
	if err != nil {
		return mem.RO{}, err
	}
	return mem.S(r.rr.stmt.stmt.ColumnText(c)), nil
}

// Blob returns the i'th column as bytes, copied out of the engine.
// NULL reads as nil.
func (r Row) Blob(i int) ([]byte, error) {
	c, err := r.col(i)
	if err != nil {
		return nil, err
	}
	st := r.rr.stmt.stmt
	raw := st.ColumnBlob(c)
	if raw == nil {
		return nil, nil
	}
	return append([]byte(nil), raw...), nil
}

// Bool returns the i'th column as a boolean: any non-zero integer is
// true. NULL reads as false.
func (r Row) Bool(i int) (bool, error) {
	n, err := r.Int(i)
	return n != 0, err
}
