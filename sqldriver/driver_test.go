// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqldriver

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	sqlite3 "github.com/weka-io/d2sqlite3"
)

func init() {
	sqlx.BindDriver("d2sqlite3", sqlx.QUESTION)
}

// memDB returns a URI for a fresh shareable in-memory database.
func memDB() string {
	return "file:/" + uuid.NewString() + "?vfs=memdb"
}

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("d2sqlite3", memDB())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestQueryRoundTrip(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec("CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT, score FLOAT)")
	if err != nil {
		t.Fatal(err)
	}
	res, err := db.Exec("INSERT INTO person (name, score) VALUES (?, ?)", "ada", 99.5)
	if err != nil {
		t.Fatal(err)
	}
	if id, err := res.LastInsertId(); err != nil || id != 1 {
		t.Fatalf("LastInsertId=%d, %v; want 1", id, err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		t.Fatalf("RowsAffected=%d, %v; want 1", n, err)
	}

	var name string
	var score float64
	if err := db.QueryRow("SELECT name, score FROM person WHERE id = ?", 1).Scan(&name, &score); err != nil {
		t.Fatal(err)
	}
	if name != "ada" || score != 99.5 {
		t.Fatalf("got %q, %v", name, score)
	}
}

func TestStructScan(t *testing.T) {
	db := openTestDB(t)

	db.MustExec("CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT, score FLOAT)")
	db.MustExec("INSERT INTO person (name, score) VALUES (?, ?), (?, ?)", "ada", 99.5, "grace", 98.0)

	type person struct {
		ID    int64   `db:"id"`
		Name  string  `db:"name"`
		Score float64 `db:"score"`
	}
	var people []person
	if err := db.Select(&people, "SELECT id, name, score FROM person ORDER BY id"); err != nil {
		t.Fatal(err)
	}
	if len(people) != 2 {
		t.Fatalf("got %d people, want 2", len(people))
	}
	if people[0].Name != "ada" || people[1].Name != "grace" {
		t.Fatalf("got %+v", people)
	}
}

func TestNamedArgs(t *testing.T) {
	db := openTestDB(t)
	db.MustExec("CREATE TABLE t (a, b)")

	if _, err := db.Exec("INSERT INTO t VALUES (:a, @b)",
		sql.Named("a", 1), sql.Named("b", "x")); err != nil {
		t.Fatal(err)
	}
	var a int64
	var b string
	if err := db.QueryRow("SELECT a, b FROM t").Scan(&a, &b); err != nil {
		t.Fatal(err)
	}
	if a != 1 || b != "x" {
		t.Fatalf("got %d, %q", a, b)
	}

	if _, err := db.Exec("INSERT INTO t VALUES (:a, :b)", sql.Named("nope", 1)); err == nil {
		t.Fatal("unknown named arg did not fail")
	}
}

func TestNullValues(t *testing.T) {
	db := openTestDB(t)
	db.MustExec("CREATE TABLE t (s TEXT, n INTEGER)")
	db.MustExec("INSERT INTO t VALUES (NULL, NULL)")

	var s sql.NullString
	var n sql.NullInt64
	if err := db.QueryRow("SELECT s, n FROM t").Scan(&s, &n); err != nil {
		t.Fatal(err)
	}
	if s.Valid || n.Valid {
		t.Fatalf("got %+v, %+v; want NULLs", s, n)
	}
}

func TestTimeColumn(t *testing.T) {
	db := openTestDB(t)
	db.MustExec("CREATE TABLE t (id INTEGER PRIMARY KEY, at DATETIME, unix_at DATETIME)")

	when := time.Date(2024, 5, 17, 8, 30, 15, 0, time.UTC)
	db.MustExec("INSERT INTO t (at, unix_at) VALUES (?, ?)", when, when.Unix())

	var at, unixAt time.Time
	if err := db.QueryRow("SELECT at, unix_at FROM t").Scan(&at, &unixAt); err != nil {
		t.Fatal(err)
	}
	if !at.Equal(when) {
		t.Fatalf("text time: got %v, want %v", at, when)
	}
	if !unixAt.Equal(when) {
		t.Fatalf("unix time: got %v, want %v", unixAt, when)
	}
}

func TestBooleanColumn(t *testing.T) {
	db := openTestDB(t)
	db.MustExec("CREATE TABLE t (ok BOOLEAN)")
	db.MustExec("INSERT INTO t VALUES (?), (?)", true, false)

	var vals []bool
	if err := db.Select(&vals, "SELECT ok FROM t"); err != nil {
		t.Fatal(err)
	}
	if len(vals) != 2 || !vals[0] || vals[1] {
		t.Fatalf("got %v", vals)
	}
}

func TestTransactions(t *testing.T) {
	db := openTestDB(t)
	db.MustExec("CREATE TABLE t (c)")

	tx, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	tx, err = db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec("INSERT INTO t VALUES (2)"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := db.QueryRow("SELECT count(*) FROM t").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count=%d, want 1 (rollback discarded, commit kept)", n)
	}
}

func TestReadOnlyTx(t *testing.T) {
	db := openTestDB(t)
	db.MustExec("CREATE TABLE t (c)")

	tx, err := db.BeginTx(ReadOnly(context.Background()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec("INSERT INTO t VALUES (1)"); err == nil {
		t.Fatal("write inside read-only tx succeeded")
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	// The pragma is lifted once the tx ends.
	if _, err := db.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatal(err)
	}
}

func TestConnector(t *testing.T) {
	initCalls := 0
	connInit := func(db *sqlite3.Database) error {
		initCalls++
		return db.Run("PRAGMA cache_size=100;", nil)
	}
	db := sql.OpenDB(Connector(memDB(), connInit, nil))
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Fatal(err)
	}
	if initCalls == 0 {
		t.Fatal("ConnInitFunc never ran")
	}
}

func TestMemDBsAreDistinct(t *testing.T) {
	db1 := openTestDB(t)
	db2 := openTestDB(t)
	db1.MustExec("CREATE TABLE only_here (c)")
	if _, err := db2.Exec("SELECT * FROM only_here"); err == nil {
		t.Fatal("table leaked between memory databases")
	}
}
