// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/sys/cpu"

	"github.com/weka-io/d2sqlite3/sqlh"
)

// The snapshot format is a flat token stream in native byte order:
//
//	'C' u64(ncols) { 's' u64(len) name-bytes }...
//	{ '(' value... ')' }...
//	'E'
//
// where value is one of 'n', 'i' u64, 'f' u64, 't' u64 bytes,
// 'b' u64 bytes. It is a process-local interchange format; do not
// depend on its layout, parse it with DecodeRowCache.

func putU64(buf []byte, v uint64) []byte {
	var b [8]byte
	if cpu.IsBigEndian {
		binary.BigEndian.PutUint64(b[:], v)
	} else {
		binary.LittleEndian.PutUint64(b[:], v)
	}
	return append(buf, b[:]...)
}

func getU64(data []byte) (uint64, []byte, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("sqlite3: snapshot truncated")
	}
	var v uint64
	if cpu.IsBigEndian {
		v = binary.BigEndian.Uint64(data[:8])
	} else {
		v = binary.LittleEndian.Uint64(data[:8])
	}
	return v, data[8:], nil
}

func appendValue(buf []byte, v ColumnData) []byte {
	switch v.Kind() {
	case sqlh.KindInteger:
		buf = append(buf, 'i')
		buf = putU64(buf, uint64(v.Int64()))
	case sqlh.KindFloat:
		buf = append(buf, 'f')
		buf = putU64(buf, math.Float64bits(v.Float64()))
	case sqlh.KindText:
		s := v.TextValue()
		buf = append(buf, 't')
		buf = putU64(buf, uint64(len(s)))
		buf = append(buf, s...)
	case sqlh.KindBlob:
		b := v.BlobValue()
		buf = append(buf, 'b')
		buf = putU64(buf, uint64(len(b)))
		buf = append(buf, b...)
	default:
		buf = append(buf, 'n')
	}
	return buf
}

// AppendBinary appends a snapshot of the cache to buf and returns the
// extended slice.
func (rc *RowCache) AppendBinary(buf []byte) ([]byte, error) {
	buf = append(buf, 'C')
	buf = putU64(buf, uint64(len(rc.cols)))
	for _, name := range rc.cols {
		buf = append(buf, 's')
		buf = putU64(buf, uint64(len(name)))
		buf = append(buf, name...)
	}
	for _, row := range rc.rows {
		if len(row) != len(rc.cols) {
			return nil, fmt.Errorf("sqlite3: snapshot row has %d columns, header has %d", len(row), len(rc.cols))
		}
		buf = append(buf, '(')
		for _, v := range row {
			buf = appendValue(buf, v)
		}
		buf = append(buf, ')')
	}
	return append(buf, 'E'), nil
}

// DecodeRowCache parses a snapshot produced by AppendBinary. Text and
// blob payloads are copied out of data.
func DecodeRowCache(data []byte) (*RowCache, error) {
	bad := func(what string) (*RowCache, error) {
		return nil, fmt.Errorf("sqlite3: bad snapshot: %s", what)
	}
	take := func(n uint64) ([]byte, bool) {
		if uint64(len(data)) < n {
			return nil, false
		}
		b := data[:n]
		data = data[n:]
		return b, true
	}

	if len(data) == 0 || data[0] != 'C' {
		return bad("missing header")
	}
	data = data[1:]
	ncols, rest, err := getU64(data)
	if err != nil {
		return nil, err
	}
	data = rest

	// Every column costs at least 9 bytes ('s' plus a u64 length), so a
	// count the remaining bytes cannot hold is garbage; checking first
	// keeps the count safe to allocate with.
	if ncols > uint64(len(data))/9 {
		return bad("impossible column count")
	}

	rc := &RowCache{names: make(map[string]int)}
	rc.cols = make([]string, 0, ncols)
	for i := uint64(0); i < ncols; i++ {
		if len(data) == 0 || data[0] != 's' {
			return bad("missing column name")
		}
		data = data[1:]
		n, rest, err := getU64(data)
		if err != nil {
			return nil, err
		}
		data = rest
		b, ok := take(n)
		if !ok {
			return bad("truncated column name")
		}
		name := string(b)
		rc.cols = append(rc.cols, name)
		if _, dup := rc.names[name]; !dup {
			rc.names[name] = int(i)
		}
	}

	for {
		if len(data) == 0 {
			return bad("missing terminator")
		}
		tok := data[0]
		data = data[1:]
		if tok == 'E' {
			return rc, nil
		}
		if tok != '(' {
			return bad(fmt.Sprintf("unexpected token %q", tok))
		}
		row := make([]ColumnData, 0, ncols)
	rowLoop:
		for {
			if len(data) == 0 {
				return bad("truncated row")
			}
			tok := data[0]
			data = data[1:]
			switch tok {
			case ')':
				break rowLoop
			case 'n':
				row = append(row, Null())
			case 'i':
				x, rest, err := getU64(data)
				if err != nil {
					return nil, err
				}
				data = rest
				row = append(row, Integer(int64(x)))
			case 'f':
				x, rest, err := getU64(data)
				if err != nil {
					return nil, err
				}
				data = rest
				row = append(row, Float(math.Float64frombits(x)))
			case 't', 'b':
				n, rest, err := getU64(data)
				if err != nil {
					return nil, err
				}
				data = rest
				b, ok := take(n)
				if !ok {
					return bad("truncated value")
				}
				if tok == 't' {
					row = append(row, Text(string(b)))
				} else {
					row = append(row, Blob(append([]byte(nil), b...)))
				}
			default:
				return bad(fmt.Sprintf("unexpected value token %q", tok))
			}
		}
		if uint64(len(row)) != ncols {
			return bad("row width mismatch")
		}
		rc.rows = append(rc.rows, row)
	}
}
