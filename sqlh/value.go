package sqlh

import (
	"bytes"
	"fmt"
	"math"
	"time"
)

// ValueKind identifies which SQLite datatype a Value holds.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindInteger
	KindFloat
	KindText
	KindBlob
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInteger:
		return "INTEGER"
	case KindFloat:
		return "FLOAT"
	case KindText:
		return "TEXT"
	case KindBlob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// Value is a tagged SQLite datum. The zero Value is NULL.
//
// A Value owns its payload (text and blob bytes are copied out of the
// engine when a Value is built), so it stays valid after the statement
// that produced it moves on.
type Value struct {
	kind ValueKind
	n    int64
	f    float64
	s    string
	b    []byte
}

// Null returns the NULL Value.
func Null() Value { return Value{} }

// Integer returns an INTEGER Value.
func Integer(v int64) Value { return Value{kind: KindInteger, n: v} }

// Float returns a FLOAT Value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Text returns a TEXT Value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Blob returns a BLOB Value holding b. The caller must not mutate b
// afterwards.
func Blob(b []byte) Value { return Value{kind: KindBlob, b: b} }

// Kind reports the datatype this Value holds.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the Value is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the Value as an int64. NULL is 0.
func (v Value) Int64() int64 {
	switch v.kind {
	case KindInteger:
		return v.n
	case KindFloat:
		return int64(v.f)
	default:
		return 0
	}
}

// Float64 returns the Value as a float64. NULL is NaN, matching the
// convention that a missing measurement is not-a-number rather than 0.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInteger:
		return float64(v.n)
	case KindNull:
		return math.NaN()
	default:
		return 0
	}
}

// TextValue returns the Value as a string. NULL is "".
func (v Value) TextValue() string {
	switch v.kind {
	case KindText:
		return v.s
	case KindBlob:
		return string(v.b)
	case KindNull:
		return ""
	default:
		return v.String()
	}
}

// BlobValue returns the Value as bytes. NULL is nil.
// The returned slice must not be mutated.
func (v Value) BlobValue() []byte {
	switch v.kind {
	case KindBlob:
		return v.b
	case KindText:
		return []byte(v.s)
	default:
		return nil
	}
}

// Bool reports the Value as a boolean: any non-zero integer is true.
// NULL is false.
func (v Value) Bool() bool { return v.Int64() != 0 }

// Any returns the Value as one of nil, int64, float64, string or []byte.
func (v Value) Any() any {
	switch v.kind {
	case KindInteger:
		return v.n
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	case KindBlob:
		return v.b
	default:
		return nil
	}
}

// Equal reports whether two Values hold the same datatype and payload.
// NaN floats compare equal to each other.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInteger:
		return v.n == o.n
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindText:
		return v.s == o.s
	case KindBlob:
		return bytes.Equal(v.b, o.b)
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return fmt.Sprintf("%d", v.n)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindText:
		return v.s
	case KindBlob:
		return fmt.Sprintf("x'%x'", v.b)
	default:
		return "UNKNOWN"
	}
}

// ScalarFunc is a host implementation of an SQL scalar function.
// Returning an error reports a function error to the engine; the host
// side never panics across the engine boundary.
type ScalarFunc func(args []Value) (Value, error)

// Aggregate is the per-group state of an SQL aggregate function.
// Accumulate runs once per input row, Result once at group end.
// A group with no rows gets a fresh state and goes straight to Result.
type Aggregate interface {
	Accumulate(args []Value) error
	Result() (Value, error)
}

// HookOp is the operation reported to an update hook.
type HookOp int

// The values match the SQLite authorizer action codes.
const (
	SQLITE_DELETE HookOp = 9
	SQLITE_INSERT HookOp = 18
	SQLITE_UPDATE HookOp = 23
)

func (op HookOp) String() string {
	switch op {
	case SQLITE_DELETE:
		return "SQLITE_DELETE"
	case SQLITE_INSERT:
		return "SQLITE_INSERT"
	case SQLITE_UPDATE:
		return "SQLITE_UPDATE"
	default:
		var buf [20]byte
		return "SQLITE_UNKNOWN_OP(" + string(itoa(buf[:], int64(op))) + ")"
	}
}

// UpdateHookFunc observes row changes on a connection.
type UpdateHookFunc func(op HookOp, db, table string, rowid int64)

// CommitHookFunc runs before a COMMIT lands. allow=false converts the
// commit into a rollback.
type CommitHookFunc func() (allow bool)

// RollbackHookFunc observes a rollback on a connection.
type RollbackHookFunc func()

// ProgressFunc runs periodically during long engine operations.
// interrupt=true aborts the in-flight operation.
type ProgressFunc func() (interrupt bool)

// ColumnMetadata describes a declared table column.
// https://sqlite.org/c3ref/table_column_metadata.html
type ColumnMetadata struct {
	DeclaredType  string
	Collation     string
	NotNull       bool
	PrimaryKey    bool
	AutoIncrement bool
}

// TraceConnID is a unique ID for a connection, used by Tracer.
type TraceConnID int32

// Tracer observes statement execution for logging and stats.
type Tracer interface {
	Query(id TraceConnID, query string, duration time.Duration, err error)
}
