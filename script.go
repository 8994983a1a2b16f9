// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import (
	"fmt"
	"strings"
)

// SplitStatements partitions an SQL script into individual statements.
//
// The fragments are contiguous slices of script: concatenating them
// reproduces the input byte for byte. A boundary is placed only at a
// semicolon that (a) sits outside string literals, quoted identifiers
// and comments, and (b) the engine's completeness check confirms ends
// a syntactically whole statement, so BEGIN...END trigger bodies stay
// in one piece. Any trailing remainder (an unterminated statement,
// whitespace or comments) becomes the last fragment.
func SplitStatements(script string) ([]string, error) {
	if engineComplete == nil {
		return nil, fmt.Errorf("sqlite3: engine not linked (build with cgo)")
	}
	var out []string
	start := 0
	i := 0
	for i < len(script) {
		switch c := script[i]; c {
		case '\'', '"', '`':
			i = skipQuoted(script, i, c)
		case '[':
			// Bracketed identifier, no escaping inside.
			if j := strings.IndexByte(script[i+1:], ']'); j >= 0 {
				i += j + 2
			} else {
				i = len(script)
			}
		case '-':
			if i+1 < len(script) && script[i+1] == '-' {
				if j := strings.IndexByte(script[i:], '\n'); j >= 0 {
					i += j + 1
				} else {
					i = len(script)
				}
			} else {
				i++
			}
		case '/':
			if i+1 < len(script) && script[i+1] == '*' {
				if j := strings.Index(script[i+2:], "*/"); j >= 0 {
					i += j + 4
				} else {
					i = len(script)
				}
			} else {
				i++
			}
		case ';':
			// A semicolon inside a BEGIN...END body does not complete
			// the statement; the engine is the judge.
			frag := script[start : i+1]
			if engineComplete(frag) {
				out = append(out, frag)
				start = i + 1
			}
			i++
		default:
			i++
		}
	}
	if start < len(script) {
		out = append(out, script[start:])
	}
	return out, nil
}

// skipQuoted advances past a quoted region starting at i, where a
// doubled quote character is an escape, per SQL.
func skipQuoted(s string, i int, q byte) int {
	i++
	for i < len(s) {
		if s[i] != q {
			i++
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i += 2 // escaped quote
			continue
		}
		return i + 1
	}
	return i
}

// Run executes a multi-statement script in order. If each is non-nil
// it is invoked with every statement's result iterator before the
// statement is finalized; returning stop=true ends the run early,
// returning an error aborts it. Fragments that compile to nothing
// (whitespace, comments) are skipped.
func (db *Database) Run(script string, each func(*ResultRange) (stop bool, err error)) error {
	if err := db.guard("Run"); err != nil {
		return err
	}
	frags, err := SplitStatements(script)
	if err != nil {
		return err
	}
	for _, frag := range frags {
		stop, err := db.runOne(frag, each)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

func (db *Database) runOne(frag string, each func(*ResultRange) (stop bool, err error)) (stop bool, err error) {
	stmt, err := db.Prepare(frag)
	if err != nil {
		return false, err
	}
	defer func() {
		if ferr := stmt.Finalize(); err == nil {
			err = ferr
		}
	}()
	if stmt.Empty() {
		return false, nil
	}
	rr, err := stmt.Execute()
	if err != nil {
		return false, err
	}
	if each != nil {
		if stop, err = each(rr); err != nil {
			return false, err
		}
	}
	if err := rr.drain(); err != nil {
		return false, err
	}
	return stop, nil
}
