// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)
	err := db.Run(`
		CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT, score FLOAT, data BLOB);
		INSERT INTO t VALUES
			(1, 'a', 1.5, x'010203'),
			(2, '', 0.0, x''),
			(3, NULL, NULL, NULL);
		`, nil)
	if err != nil {
		t.Fatal(err)
	}

	rc := cacheQuery(t, db, "SELECT id, name, score, data FROM t ORDER BY id")
	buf, err := rc.AppendBinary(nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := DecodeRowCache(buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(rc.Columns(), got.Columns()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if got.Len() != rc.Len() {
		t.Fatalf("Len=%d, want %d", got.Len(), rc.Len())
	}
	for i := 0; i < rc.Len(); i++ {
		if diff := cmp.Diff(rc.At(i).Values(), got.At(i).Values()); diff != "" {
			t.Fatalf("row %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestSnapshotNaN(t *testing.T) {
	rc := &RowCache{
		names: map[string]int{"f": 0},
		cols:  []string{"f"},
		rows:  [][]ColumnData{{Float(math.NaN())}},
	}
	buf, err := rc.AppendBinary(nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeRowCache(buf)
	if err != nil {
		t.Fatal(err)
	}
	v := got.At(0).At(0)
	if !math.IsNaN(v.Float64()) {
		t.Fatalf("got %v, want NaN", v.Float64())
	}
	if !v.Equal(rc.At(0).At(0)) {
		t.Fatal("NaN values must compare equal through Equal")
	}
}

func TestSnapshotAppendsToBuf(t *testing.T) {
	db := openTestDB(t)
	rc := cacheQuery(t, db, "SELECT 1 AS one")
	prefix := []byte("header:")
	buf, err := rc.AppendBinary(prefix)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:len(prefix)]) != "header:" {
		t.Fatal("AppendBinary must extend the given buffer")
	}
	if _, err := DecodeRowCache(buf[len(prefix):]); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeRowCacheRejectsGarbage(t *testing.T) {
	db := openTestDB(t)
	rc := cacheQuery(t, db, "SELECT 1 AS one, 'x' AS s")
	buf, err := rc.AppendBinary(nil)
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string][]byte{
		"empty":                   {},
		"bad header":              {'X'},
		"truncated":               buf[:len(buf)/2],
		"no terminator":           buf[:len(buf)-1],
		"trailing headerless row": append(append([]byte{}, buf[:len(buf)-1]...), '(', 'q'),
		"huge column count":       putU64([]byte{'C'}, math.MaxUint64>>1),
		"column count over data":  putU64([]byte{'C'}, 2),
	}
	for name, data := range cases {
		if _, err := DecodeRowCache(data); err == nil {
			t.Errorf("%s: decode succeeded, want error", name)
		}
	}
}
