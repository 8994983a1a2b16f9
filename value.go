// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import "github.com/weka-io/d2sqlite3/sqlh"

// ColumnData is a durable, tagged SQLite datum: one of NULL, INTEGER,
// FLOAT, TEXT or BLOB. Unlike a Row it owns its payload, so it can be
// stored, sent between goroutines, and read after the statement and
// connection that produced it are gone.
//
// The typed getters mirror Row's coercion rules: NULL reads as the
// zero value for every type except float64, where it reads as NaN.
type ColumnData = sqlh.Value

// Null returns the NULL ColumnData.
func Null() ColumnData { return sqlh.Null() }

// Integer returns an INTEGER ColumnData.
func Integer(v int64) ColumnData { return sqlh.Integer(v) }

// Float returns a FLOAT ColumnData.
func Float(v float64) ColumnData { return sqlh.Float(v) }

// Text returns a TEXT ColumnData.
func Text(s string) ColumnData { return sqlh.Text(s) }

// Blob returns a BLOB ColumnData holding b. The caller must not mutate
// b afterwards.
func Blob(b []byte) ColumnData { return sqlh.Blob(b) }
