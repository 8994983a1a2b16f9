// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"tailscale.com/tstest"

	"github.com/weka-io/d2sqlite3/sqlh"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenClose(t *testing.T) {
	tstest.ResourceCheck(t)
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("second Close: %v, want nil", err)
	}
	if err := db.Execute("SELECT 1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Execute after Close: %v, want ErrClosed", err)
	}
	if _, err := db.Prepare("SELECT 1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Prepare after Close: %v, want ErrClosed", err)
	}
}

func TestOpenBadPath(t *testing.T) {
	_, err := Open("/nonexistent-dir-for-sure/db.sqlite")
	if err == nil {
		t.Fatal("Open of bad path succeeded")
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("err is %T, want *Error", err)
	}
	if e.Loc != "Open" {
		t.Fatalf("e.Loc=%q, want Open", e.Loc)
	}
}

func TestVersion(t *testing.T) {
	v := Version()
	if !strings.HasPrefix(v, "3.") {
		t.Fatalf("Version()=%q, want 3.x", v)
	}
}

func TestRoundTrip(t *testing.T) {
	db := openTestDB(t)
	err := db.Run(`
		CREATE TABLE t (i INTEGER, f FLOAT, s TEXT, b BLOB, n);
		`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Execute("INSERT INTO t VALUES (?, ?, ?, ?, ?)",
		int64(42), 1.5, "hello", []byte{1, 2, 3}, nil); err != nil {
		t.Fatal(err)
	}

	stmt, err := db.Prepare("SELECT i, f, s, b, n FROM t")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	rr, err := stmt.Execute()
	if err != nil {
		t.Fatal(err)
	}
	if rr.Empty() {
		t.Fatal("no rows")
	}
	row, err := rr.Row()
	if err != nil {
		t.Fatal(err)
	}
	if got, err := row.Int(0); err != nil || got != 42 {
		t.Fatalf("Int(0)=%d, %v; want 42", got, err)
	}
	if got, err := row.Float(1); err != nil || got != 1.5 {
		t.Fatalf("Float(1)=%v, %v; want 1.5", got, err)
	}
	if got, err := row.Text(2); err != nil || got != "hello" {
		t.Fatalf("Text(2)=%q, %v; want hello", got, err)
	}
	if got, err := row.Blob(3); err != nil || string(got) != "\x01\x02\x03" {
		t.Fatalf("Blob(3)=%v, %v", got, err)
	}
	if got, err := row.TextRO(2); err != nil || got.StringCopy() != "hello" {
		t.Fatalf("TextRO(2)=%q, %v; want hello", got.StringCopy(), err)
	}

	// NULL reads as the zero value, except through Float.
	if got, err := row.Int(4); err != nil || got != 0 {
		t.Fatalf("Int(NULL)=%d, %v; want 0", got, err)
	}
	if got, err := row.Text(4); err != nil || got != "" {
		t.Fatalf("Text(NULL)=%q, %v; want empty", got, err)
	}
	if got, err := row.Blob(4); err != nil || got != nil {
		t.Fatalf("Blob(NULL)=%v, %v; want nil", got, err)
	}
	if got, err := row.Float(4); err != nil || !math.IsNaN(got) {
		t.Fatalf("Float(NULL)=%v, %v; want NaN", got, err)
	}

	if err := rr.Advance(); err != nil {
		t.Fatal(err)
	}
	if !rr.Empty() {
		t.Fatal("range not empty after one row")
	}
	if err := rr.Advance(); !errors.Is(err, ErrNoRows) {
		t.Fatalf("Advance past end: %v, want ErrNoRows", err)
	}
}

func TestEmptyBlobBindsNull(t *testing.T) {
	db := openTestDB(t)
	if err := db.Execute("CREATE TABLE t (b BLOB)"); err != nil {
		t.Fatal(err)
	}
	if err := db.Execute("INSERT INTO t VALUES (?)", []byte{}); err != nil {
		t.Fatal(err)
	}
	stmt, err := db.Prepare("SELECT b IS NULL FROM t")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	rr, err := stmt.Execute()
	if err != nil {
		t.Fatal(err)
	}
	v, err := rr.OneValue()
	if err != nil {
		t.Fatal(err)
	}
	if v.Int64() != 1 {
		t.Fatal("empty []byte did not store as NULL")
	}
}

func TestBindUnsupported(t *testing.T) {
	db := openTestDB(t)
	stmt, err := db.Prepare("SELECT ?")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	if err := stmt.Bind(1, uint64(1)); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("Bind(uint64): %v, want ErrUnsupportedType", err)
	}
	if err := stmt.Bind(1, uint(1)); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("Bind(uint): %v, want ErrUnsupportedType", err)
	}
	if err := stmt.Bind(1, struct{}{}); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("Bind(struct): %v, want ErrUnsupportedType", err)
	}
}

func TestBindNamedTypes(t *testing.T) {
	type userID int64
	type label string
	db := openTestDB(t)
	stmt, err := db.Prepare("SELECT ? + 0, ? || ''")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	if err := stmt.BindAll(userID(7), label("x")); err != nil {
		t.Fatal(err)
	}
	rr, err := stmt.Execute()
	if err != nil {
		t.Fatal(err)
	}
	row, err := rr.Row()
	if err != nil {
		t.Fatal(err)
	}
	if got, err := row.Int(0); err != nil || got != 7 {
		t.Fatalf("named int: %d, %v", got, err)
	}
	if got, err := row.Text(1); err != nil || got != "x" {
		t.Fatalf("named string: %q, %v", got, err)
	}
}

func TestBindName(t *testing.T) {
	db := openTestDB(t)
	stmt, err := db.Prepare("SELECT :i + 0, @f + 0.0, $t || ''")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	if err := stmt.BindName(":i", 3); err != nil {
		t.Fatal(err)
	}
	if err := stmt.BindName("@f", 0.5); err != nil {
		t.Fatal(err)
	}
	if err := stmt.BindName("$t", "q"); err != nil {
		t.Fatal(err)
	}
	if err := stmt.BindName(":nope", 1); !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("BindName(:nope): %v, want ErrUnknownParameter", err)
	}
	if got, want := stmt.ParameterCount(), 3; got != want {
		t.Fatalf("ParameterCount=%d, want %d", got, want)
	}
	if got, want := stmt.ParameterName(1), ":i"; got != want {
		t.Fatalf("ParameterName(1)=%q, want %q", got, want)
	}
	if got, want := stmt.ParameterIndex("@f"), 2; got != want {
		t.Fatalf("ParameterIndex(@f)=%d, want %d", got, want)
	}

	rr, err := stmt.Execute()
	if err != nil {
		t.Fatal(err)
	}
	row, err := rr.Row()
	if err != nil {
		t.Fatal(err)
	}
	if got, err := row.Int(0); err != nil || got != 3 {
		t.Fatalf("col 0: %d, %v", got, err)
	}
	if got, err := row.Float(1); err != nil || got != 0.5 {
		t.Fatalf("col 1: %v, %v", got, err)
	}
	if got, err := row.Text(2); err != nil || got != "q" {
		t.Fatalf("col 2: %q, %v", got, err)
	}
}

func TestBindAllCountMismatch(t *testing.T) {
	db := openTestDB(t)
	stmt, err := db.Prepare("SELECT ?, ?")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	err = stmt.BindAll(1)
	var e *Error
	if !errors.As(err, &e) || e.Loc != "BindAll" {
		t.Fatalf("BindAll(1): %v, want *Error at BindAll", err)
	}
}

func TestBindTime(t *testing.T) {
	db := openTestDB(t)
	stmt, err := db.Prepare("SELECT ?")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	when := time.Date(2024, 5, 17, 8, 30, 0, 250e6, time.UTC)
	if err := stmt.BindAll(when); err != nil {
		t.Fatal(err)
	}
	rr, err := stmt.Execute()
	if err != nil {
		t.Fatal(err)
	}
	v, err := rr.OneValue()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v.TextValue(), "2024-05-17 08:30:00.250+0000"; got != want {
		t.Fatalf("time stored as %q, want %q", got, want)
	}
}

func TestEmptyStatement(t *testing.T) {
	db := openTestDB(t)
	for _, sql := range []string{"", "   ", "-- comment only\n", "/* block */"} {
		stmt, err := db.Prepare(sql)
		if err != nil {
			t.Fatalf("Prepare(%q): %v", sql, err)
		}
		if !stmt.Empty() {
			t.Fatalf("Prepare(%q) not empty", sql)
		}
		if err := stmt.Bind(1, 1); err != nil {
			t.Fatalf("Bind on empty: %v", err)
		}
		rr, err := stmt.Execute()
		if err != nil {
			t.Fatalf("Execute on empty: %v", err)
		}
		if !rr.Empty() {
			t.Fatal("empty statement produced rows")
		}
		if err := stmt.Finalize(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPrepareTrailingTextIgnored(t *testing.T) {
	db := openTestDB(t)
	stmt, err := db.Prepare("SELECT 1; SELECT 2;")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	rr, err := stmt.Execute()
	if err != nil {
		t.Fatal(err)
	}
	v, err := rr.OneValue()
	if err != nil {
		t.Fatal(err)
	}
	if v.Int64() != 1 {
		t.Fatalf("got %d, want 1 (first statement only)", v.Int64())
	}
}

func TestRowInvalidation(t *testing.T) {
	db := openTestDB(t)
	err := db.Run(`
		CREATE TABLE t (c);
		INSERT INTO t VALUES (1), (2);
		`, nil)
	if err != nil {
		t.Fatal(err)
	}
	stmt, err := db.Prepare("SELECT c FROM t ORDER BY c")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	rr, err := stmt.Execute()
	if err != nil {
		t.Fatal(err)
	}
	row, err := rr.Row()
	if err != nil {
		t.Fatal(err)
	}
	if err := rr.Advance(); err != nil {
		t.Fatal(err)
	}
	if _, err := row.Int(0); !errors.Is(err, ErrRowInvalidated) {
		t.Fatalf("read after Advance: %v, want ErrRowInvalidated", err)
	}
	row, err = rr.Row()
	if err != nil {
		t.Fatal(err)
	}
	if err := stmt.Reset(); err != nil {
		t.Fatal(err)
	}
	if _, err := row.Int(0); !errors.Is(err, ErrRowInvalidated) {
		t.Fatalf("read after Reset: %v, want ErrRowInvalidated", err)
	}
}

func TestRowPopAndByName(t *testing.T) {
	db := openTestDB(t)
	stmt, err := db.Prepare("SELECT 1 AS a, 2 AS b, 3 AS c")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	rr, err := stmt.Execute()
	if err != nil {
		t.Fatal(err)
	}
	row, err := rr.Row()
	if err != nil {
		t.Fatal(err)
	}
	if row.Len() != 3 {
		t.Fatalf("Len=%d, want 3", row.Len())
	}
	inner, err := row.PopFront()
	if err != nil {
		t.Fatal(err)
	}
	inner, err = inner.PopBack()
	if err != nil {
		t.Fatal(err)
	}
	if inner.Len() != 1 {
		t.Fatalf("inner Len=%d, want 1", inner.Len())
	}
	if got, err := inner.Int(0); err != nil || got != 2 {
		t.Fatalf("inner col 0: %d, %v; want 2", got, err)
	}
	if name, err := inner.ColumnName(0); err != nil || name != "b" {
		t.Fatalf("inner name: %q, %v; want b", name, err)
	}
	if _, err := inner.Int(1); !errors.Is(err, ErrColumnRange) {
		t.Fatalf("out of range read: %v, want ErrColumnRange", err)
	}
	if v, err := row.ByName("c"); err != nil || v.Int64() != 3 {
		t.Fatalf("ByName(c): %v, %v", v, err)
	}
	if _, err := row.ByName("zz"); !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("ByName(zz): %v, want ErrUnknownColumn", err)
	}
}

func TestOneValue(t *testing.T) {
	db := openTestDB(t)
	stmt, err := db.Prepare("SELECT 1 WHERE 0")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	rr, err := stmt.Execute()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rr.OneValue(); !errors.Is(err, ErrNoRows) {
		t.Fatalf("OneValue on empty: %v, want ErrNoRows", err)
	}
}

func TestInject(t *testing.T) {
	db := openTestDB(t)
	if err := db.Execute("CREATE TABLE t (a, b)"); err != nil {
		t.Fatal(err)
	}
	stmt, err := db.Prepare("INSERT INTO t VALUES (?, ?)")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	for i := 0; i < 10; i++ {
		if err := stmt.Inject(i, i*i); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := db.Changes(), int64(1); got != want {
		t.Fatalf("Changes=%d, want %d", got, want)
	}
	if got, want := db.TotalChanges(), int64(10); got != want {
		t.Fatalf("TotalChanges=%d, want %d", got, want)
	}
}

func TestLastInsertRowid(t *testing.T) {
	db := openTestDB(t)
	err := db.Run(`
		CREATE TABLE t (id INTEGER PRIMARY KEY, v);
		INSERT INTO t (v) VALUES ('x');
		`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := db.LastInsertRowid(); got != 1 {
		t.Fatalf("LastInsertRowid=%d, want 1", got)
	}
}

func TestStatementUseAfterFinalize(t *testing.T) {
	db := openTestDB(t)
	stmt, err := db.Prepare("SELECT 1")
	if err != nil {
		t.Fatal(err)
	}
	if err := stmt.Finalize(); err != nil {
		t.Fatal(err)
	}
	if err := stmt.Finalize(); err != nil {
		t.Fatalf("second Finalize: %v, want nil", err)
	}
	if _, err := stmt.Execute(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Execute after Finalize: %v, want ErrClosed", err)
	}
	if got := UsesAfterClose.Get("Finalize"); got == nil {
		t.Fatal("UsesAfterClose has no Finalize counter")
	}
}

func TestErrorFormat(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Prepare("NOT REAL SQL")
	if err == nil {
		t.Fatal("Prepare of garbage succeeded")
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("err is %T, want *Error", err)
	}
	msg := e.Error()
	for _, want := range []string{"sqlite3.Prepare", "SQLITE_ERROR", "NOT REAL SQL"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}
}

func TestTableColumnMetadata(t *testing.T) {
	db := openTestDB(t)
	if err := db.Execute("CREATE TABLE t (id INTEGER PRIMARY KEY AUTOINCREMENT, v TEXT NOT NULL)"); err != nil {
		t.Fatal(err)
	}
	meta, err := db.TableColumnMetadata("", "t", "id")
	if err != nil {
		t.Fatal(err)
	}
	if !meta.PrimaryKey || !meta.AutoIncrement {
		t.Fatalf("id metadata: %+v", meta)
	}
	meta, err = db.TableColumnMetadata("", "t", "v")
	if err != nil {
		t.Fatal(err)
	}
	if !meta.NotNull || meta.PrimaryKey {
		t.Fatalf("v metadata: %+v", meta)
	}
	if !strings.EqualFold(meta.DeclaredType, "TEXT") {
		t.Fatalf("v declared type: %q", meta.DeclaredType)
	}
}

func TestDropAll(t *testing.T) {
	db := openTestDB(t)
	err := db.Run(`
		CREATE TABLE t (c);
		CREATE INDEX t_c ON t (c);
		CREATE VIEW v AS SELECT c FROM t;
		CREATE TRIGGER trg AFTER INSERT ON t BEGIN SELECT 1; END;
		`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.DropAll(""); err != nil {
		t.Fatal(err)
	}
	stmt, err := db.Prepare("SELECT count(*) FROM sqlite_schema")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	rr, err := stmt.Execute()
	if err != nil {
		t.Fatal(err)
	}
	n, err := rr.OneValue()
	if err != nil {
		t.Fatal(err)
	}
	if n.Int64() != 0 {
		t.Fatalf("%d schema objects remain after DropAll", n.Int64())
	}
}

func TestTracer(t *testing.T) {
	db := openTestDB(t)
	var queries []string
	db.SetTracer(tracerFunc(func(query string, err error) {
		queries = append(queries, query)
	}))
	if err := db.Execute("CREATE TABLE t (c)"); err != nil {
		t.Fatal(err)
	}
	if err := db.Execute("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatal(err)
	}
	if len(queries) != 2 {
		t.Fatalf("traced %d queries, want 2: %q", len(queries), queries)
	}
}

type tracerFunc func(query string, err error)

func (f tracerFunc) Query(id sqlh.TraceConnID, query string, duration time.Duration, err error) {
	f(query, err)
}
