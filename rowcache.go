// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import "fmt"

// RowCache is a fully materialized result: every remaining row of a
// ResultRange copied into ColumnData. It is independent of the source
// statement and connection, and the column-name index is built once
// and shared by every row.
type RowCache struct {
	names map[string]int
	cols  []string
	rows  [][]ColumnData
}

// Cache drains rr into a RowCache. rr is empty afterwards.
func Cache(rr *ResultRange) (*RowCache, error) {
	rc := &RowCache{names: make(map[string]int)}
	if rr.Empty() {
		return rc, nil
	}

	row, err := rr.Row()
	if err != nil {
		return nil, err
	}
	n := row.Len()
	rc.cols = make([]string, n)
	for i := 0; i < n; i++ {
		name, err := row.ColumnName(i)
		if err != nil {
			return nil, err
		}
		rc.cols[i] = name
		// First declaration wins when names collide.
		if _, dup := rc.names[name]; !dup {
			rc.names[name] = i
		}
	}

	for !rr.Empty() {
		row, err := rr.Row()
		if err != nil {
			return nil, err
		}
		vals := make([]ColumnData, n)
		for i := 0; i < n; i++ {
			if vals[i], err = row.Value(i); err != nil {
				return nil, err
			}
		}
		rc.rows = append(rc.rows, vals)
		if err := rr.Advance(); err != nil {
			return nil, err
		}
	}
	return rc, nil
}

// Len reports the number of cached rows.
func (rc *RowCache) Len() int { return len(rc.rows) }

// Columns reports the cached column names in result order.
func (rc *RowCache) Columns() []string { return rc.cols }

// At returns the i'th cached row. It panics when i is out of range,
// like a slice index.
func (rc *RowCache) At(i int) CachedRow {
	return CachedRow{cache: rc, vals: rc.rows[i]}
}

// CachedRow is one materialized row of a RowCache.
type CachedRow struct {
	cache *RowCache
	vals  []ColumnData
}

// Len reports the number of columns in the row.
func (cr CachedRow) Len() int { return len(cr.vals) }

// At returns the i'th column. It panics when i is out of range, like a
// slice index.
func (cr CachedRow) At(i int) ColumnData { return cr.vals[i] }

// Values returns the row's columns. The slice is shared, not copied;
// treat it as read-only.
func (cr CachedRow) Values() []ColumnData { return cr.vals }

// ByName returns the column with the given result name, using the
// cache's shared name index.
func (cr CachedRow) ByName(name string) (ColumnData, error) {
	i, ok := cr.cache.names[name]
	if !ok {
		return ColumnData{}, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return cr.vals[i], nil
}
