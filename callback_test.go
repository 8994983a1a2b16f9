// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oneValue(t *testing.T, db *Database, sql string, args ...any) ColumnData {
	t.Helper()
	stmt, err := db.Prepare(sql)
	require.NoError(t, err)
	defer stmt.Finalize()
	require.NoError(t, stmt.BindAll(args...))
	rr, err := stmt.Execute()
	require.NoError(t, err)
	v, err := rr.OneValue()
	require.NoError(t, err)
	return v
}

func TestCreateFunction(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.CreateFunction("greeting", func(name string) string {
		return "hello, " + name
	}, true))
	v := oneValue(t, db, "SELECT greeting('world')")
	assert.Equal(t, "hello, world", v.TextValue())

	require.NoError(t, db.CreateFunction("add3", func(a, b, c int64) int64 {
		return a + b + c
	}, true))
	v = oneValue(t, db, "SELECT add3(1, 2, 3)")
	assert.EqualValues(t, 6, v.Int64())

	require.NoError(t, db.CreateFunction("rev", func(b []byte) []byte {
		out := make([]byte, len(b))
		for i := range b {
			out[len(b)-1-i] = b[i]
		}
		return out
	}, true))
	v = oneValue(t, db, "SELECT rev(?)", []byte("abc"))
	assert.Equal(t, []byte("cba"), v.BlobValue())
}

func TestCreateFunctionVariadicArgs(t *testing.T) {
	db := openTestDB(t)

	// any arguments receive whatever SQLite passes.
	require.NoError(t, db.CreateFunction("typename", func(v any) string {
		switch v.(type) {
		case nil:
			return "null"
		case int64:
			return "integer"
		case float64:
			return "float"
		case string:
			return "text"
		case []byte:
			return "blob"
		}
		return "?"
	}, true))
	assert.Equal(t, "null", oneValue(t, db, "SELECT typename(NULL)").TextValue())
	assert.Equal(t, "integer", oneValue(t, db, "SELECT typename(1)").TextValue())
	assert.Equal(t, "float", oneValue(t, db, "SELECT typename(1.5)").TextValue())
	assert.Equal(t, "text", oneValue(t, db, "SELECT typename('x')").TextValue())
	assert.Equal(t, "blob", oneValue(t, db, "SELECT typename(x'00')").TextValue())
}

func TestCreateFunctionError(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.CreateFunction("boom", func() (int64, error) {
		return 0, errors.New("it broke")
	}, false))
	stmt, err := db.Prepare("SELECT boom()")
	require.NoError(t, err)
	defer stmt.Finalize()
	_, err = stmt.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "it broke")
}

func TestCreateFunctionPanicBecomesError(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.CreateFunction("kaboom", func() int64 {
		panic("function exploded")
	}, false))
	stmt, err := db.Prepare("SELECT kaboom()")
	require.NoError(t, err)
	defer stmt.Finalize()
	_, err = stmt.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "function exploded")
}

func TestCreateFunctionRejectsBadShapes(t *testing.T) {
	db := openTestDB(t)

	assert.Error(t, db.CreateFunction("f", 42, false), "not a function")
	assert.Error(t, db.CreateFunction("f", func(vs ...int64) int64 { return 0 }, false), "variadic")
	assert.Error(t, db.CreateFunction("f", func() {}, false), "no result")
	assert.Error(t, db.CreateFunction("f", func(ch chan int) int64 { return 0 }, false), "unsupported arg")
	assert.Error(t, db.CreateFunction("f", func() chan int { return nil }, false), "unsupported result")
}

type sumAgg struct {
	total int64
	seen  bool
}

func (a *sumAgg) Accumulate(v int64) error {
	a.total += v
	a.seen = true
	return nil
}

func (a *sumAgg) Result() (int64, error) {
	if !a.seen {
		return -1, nil // distinguish the zero-row group
	}
	return a.total, nil
}

type joinAgg struct {
	parts []string
}

func (a *joinAgg) Accumulate(s string) { a.parts = append(a.parts, s) }
func (a *joinAgg) Result() string      { return strings.Join(a.parts, "+") }

func TestCreateAggregate(t *testing.T) {
	db := openTestDB(t)
	err := db.Run(`
		CREATE TABLE t (c INTEGER, s TEXT);
		INSERT INTO t VALUES (1, 'a'), (2, 'b'), (3, 'c');
		`, nil)
	require.NoError(t, err)

	require.NoError(t, db.CreateAggregate("mysum", func() *sumAgg { return &sumAgg{} }, true))
	v := oneValue(t, db, "SELECT mysum(c) FROM t")
	assert.EqualValues(t, 6, v.Int64())

	// Zero-row group gets a fresh state straight to Result.
	v = oneValue(t, db, "SELECT mysum(c) FROM t WHERE c > 100")
	assert.EqualValues(t, -1, v.Int64())

	require.NoError(t, db.CreateAggregate("myjoin", func() (*joinAgg, error) {
		return &joinAgg{}, nil
	}, true))
	v = oneValue(t, db, "SELECT myjoin(s) FROM t")
	assert.Equal(t, "a+b+c", v.TextValue())
}

func TestCreateAggregateGroups(t *testing.T) {
	db := openTestDB(t)
	err := db.Run(`
		CREATE TABLE t (grp INTEGER, c INTEGER);
		INSERT INTO t VALUES (1, 10), (1, 20), (2, 5);
		`, nil)
	require.NoError(t, err)
	require.NoError(t, db.CreateAggregate("mysum", func() *sumAgg { return &sumAgg{} }, true))

	stmt, err := db.Prepare("SELECT grp, mysum(c) FROM t GROUP BY grp ORDER BY grp")
	require.NoError(t, err)
	defer stmt.Finalize()
	rr, err := stmt.Execute()
	require.NoError(t, err)
	rc, err := Cache(rr)
	require.NoError(t, err)
	require.Equal(t, 2, rc.Len())
	assert.EqualValues(t, 30, rc.At(0).At(1).Int64())
	assert.EqualValues(t, 5, rc.At(1).At(1).Int64())
}

func TestCreateAggregateRejectsBadShapes(t *testing.T) {
	db := openTestDB(t)

	assert.Error(t, db.CreateAggregate("a", 42, false), "not a function")
	assert.Error(t, db.CreateAggregate("a", func(n int) *sumAgg { return nil }, false), "constructor with args")
	assert.Error(t, db.CreateAggregate("a", func() int { return 0 }, false), "no Accumulate/Result methods")
}

func TestCreateCollation(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CreateCollation("reverse", func(a, b string) int {
		return -strings.Compare(a, b)
	}))
	err := db.Run(`
		CREATE TABLE t (s TEXT);
		INSERT INTO t VALUES ('a'), ('c'), ('b');
		`, nil)
	require.NoError(t, err)

	stmt, err := db.Prepare("SELECT s FROM t ORDER BY s COLLATE reverse")
	require.NoError(t, err)
	defer stmt.Finalize()
	rr, err := stmt.Execute()
	require.NoError(t, err)
	rc, err := Cache(rr)
	require.NoError(t, err)
	var got []string
	for i := 0; i < rc.Len(); i++ {
		got = append(got, rc.At(i).At(0).TextValue())
	}
	assert.Equal(t, []string{"c", "b", "a"}, got)

	assert.Error(t, db.CreateCollation("bad", nil))
}

func TestCreateFunctionReplace(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, db.CreateFunction("gen", func() int64 {
			return int64(i)
		}, false))
	}
	v := oneValue(t, db, "SELECT gen()")
	assert.EqualValues(t, 4, v.Int64(), "last registration wins")
}

func TestFunctionErrorMessageNamesFunction(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CreateFunction("picky", func(v int64) (int64, error) {
		if v < 0 {
			return 0, fmt.Errorf("negative input %d", v)
		}
		return v, nil
	}, true))

	v := oneValue(t, db, "SELECT picky(7)")
	assert.EqualValues(t, 7, v.Int64())

	stmt, err := db.Prepare("SELECT picky(-1)")
	require.NoError(t, err)
	defer stmt.Finalize()
	_, err = stmt.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "picky")
	assert.Contains(t, err.Error(), "negative input -1")
}
