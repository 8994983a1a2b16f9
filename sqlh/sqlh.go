// Package sqlh defines the boundary between the object model and the
// SQLite engine.
//
// The engine is a black box behind the DB and Stmt interfaces; nothing
// above this package touches a C handle directly.
package sqlh

// Given everything in here has an sqlh. prefix,
// why not strip the SQLITE_ prefix from constants?
// Because this way standard names show up in search.

import "time"

// OpenFunc is sqlite3_open_v2.
//
// Surprisingly: an error opening the DB can return a non-nil handle.
// Call Close on it.
//
// https://sqlite.org/c3ref/open.html
type OpenFunc func(filename string, flags OpenFlags, vfs string) (DB, error)

// CompleteFunc is sqlite3_complete: it reports whether sql ends in a
// semicolon that terminates a syntactically whole statement.
//
// https://sqlite.org/c3ref/complete.html
type CompleteFunc func(sql string) bool

// ConfigureFunc applies a process-wide threading mode with
// sqlite3_config. It fails once the engine has been initialized.
//
// https://sqlite.org/c3ref/config.html
type ConfigureFunc func(mode ThreadMode) error

// ThreadMode is a process-wide engine threading mode.
type ThreadMode int

const (
	SQLITE_CONFIG_SINGLETHREAD ThreadMode = 1
	SQLITE_CONFIG_MULTITHREAD  ThreadMode = 2
	SQLITE_CONFIG_SERIALIZED   ThreadMode = 3
)

func (m ThreadMode) String() string {
	switch m {
	case SQLITE_CONFIG_SINGLETHREAD:
		return "SQLITE_CONFIG_SINGLETHREAD"
	case SQLITE_CONFIG_MULTITHREAD:
		return "SQLITE_CONFIG_MULTITHREAD"
	case SQLITE_CONFIG_SERIALIZED:
		return "SQLITE_CONFIG_SERIALIZED"
	default:
		var buf [20]byte
		return "SQLITE_CONFIG_UNKNOWN(" + string(itoa(buf[:], int64(m))) + ")"
	}
}

// DB is an sqlite3* database connection object.
// https://sqlite.org/c3ref/sqlite3.html
type DB interface {
	// Close is sqlite3_close.
	// https://sqlite.org/c3ref/close.html
	Close() error
	// ErrMsg is sqlite3_errmsg.
	// https://sqlite.org/c3ref/errcode.html
	ErrMsg() string
	// ExtendedErrCode is sqlite3_extended_errcode.
	// https://sqlite.org/c3ref/errcode.html
	ExtendedErrCode() Code
	// Changes is sqlite3_changes64.
	// https://sqlite.org/c3ref/changes.html
	Changes() int64
	// TotalChanges is sqlite3_total_changes64.
	// https://sqlite.org/c3ref/total_changes.html
	TotalChanges() int64
	// LastInsertRowid is sqlite3_last_insert_rowid.
	// https://sqlite.org/c3ref/last_insert_rowid.html
	LastInsertRowid() int64
	// Prepare is sqlite3_prepare_v2.
	//
	// A query holding only whitespace or comments prepares successfully
	// and returns a nil Stmt. Text after the first complete statement is
	// returned in remainingQuery, never parsed.
	//
	// https://www.sqlite.org/c3ref/prepare.html
	Prepare(query string) (stmt Stmt, remainingQuery string, err error)
	// BusyTimeout is sqlite3_busy_timeout.
	// https://www.sqlite.org/c3ref/busy_timeout.html
	BusyTimeout(time.Duration)
	// Interrupt is sqlite3_interrupt.
	// https://sqlite.org/c3ref/interrupt.html
	Interrupt()
	// EnableLoadExtension is sqlite3_db_config(SQLITE_DBCONFIG_ENABLE_LOAD_EXTENSION).
	// https://sqlite.org/c3ref/c_dbconfig_defensive.html
	EnableLoadExtension(on bool) error
	// LoadExtension is sqlite3_load_extension.
	// https://sqlite.org/c3ref/load_extension.html
	LoadExtension(path, entryPoint string) error
	// TableColumnMetadata is sqlite3_table_column_metadata.
	// https://sqlite.org/c3ref/table_column_metadata.html
	TableColumnMetadata(schema, table, column string) (ColumnMetadata, error)

	// CreateScalarFunc is sqlite3_create_function_v2 with an xFunc.
	// The engine owns fn until the function is replaced or the
	// connection closes; the registration is released exactly once.
	// https://sqlite.org/c3ref/create_function.html
	CreateScalarFunc(name string, nArg int, deterministic bool, fn ScalarFunc) error
	// CreateAggregateFunc is sqlite3_create_function_v2 with
	// xStep/xFinal. newState is invoked once per aggregation group.
	CreateAggregateFunc(name string, nArg int, deterministic bool, newState func() (Aggregate, error)) error
	// CreateCollation is sqlite3_create_collation_v2.
	// cmp must define a total order over all strings.
	// https://sqlite.org/c3ref/create_collation.html
	CreateCollation(name string, cmp func(a, b string) int) error

	// SetUpdateHook is sqlite3_update_hook. A nil fn uninstalls.
	// https://sqlite.org/c3ref/update_hook.html
	SetUpdateHook(fn UpdateHookFunc)
	// SetCommitHook is sqlite3_commit_hook. Returning allow=false from
	// fn converts the COMMIT into a ROLLBACK. A nil fn uninstalls.
	// https://sqlite.org/c3ref/commit_hook.html
	SetCommitHook(fn CommitHookFunc)
	// SetRollbackHook is sqlite3_rollback_hook. A nil fn uninstalls.
	SetRollbackHook(fn RollbackHookFunc)
	// SetProgressHandler is sqlite3_progress_handler: fn runs every ops
	// virtual machine instructions; returning interrupt=true aborts the
	// in-flight operation with SQLITE_INTERRUPT. A nil fn uninstalls.
	// https://sqlite.org/c3ref/progress_handler.html
	SetProgressHandler(ops int, fn ProgressFunc)
}

// Stmt is an sqlite3_stmt* prepared statement object.
// https://sqlite.org/c3ref/stmt.html
type Stmt interface {
	// SQL is sqlite3_sql.
	// https://www.sqlite.org/c3ref/expanded_sql.html
	SQL() string
	// Reset is sqlite3_reset.
	// https://www.sqlite.org/c3ref/reset.html
	Reset() error
	// ClearBindings is sqlite3_clear_bindings.
	// https://www.sqlite.org/c3ref/clear_bindings.html
	ClearBindings() error
	// Finalize is sqlite3_finalize.
	// https://sqlite.org/c3ref/finalize.html
	Finalize() error
	// Step is sqlite3_step.
	//	For SQLITE_ROW, Step returns (true, nil).
	//	For SQLITE_DONE, Step returns (false, nil).
	//	For any error, Step returns (false, err).
	// https://www.sqlite.org/c3ref/step.html
	Step() (row bool, err error)

	// BindDouble is sqlite3_bind_double.
	// https://sqlite.org/c3ref/bind_blob.html
	BindDouble(col int, val float64) error
	// BindInt64 is sqlite3_bind_int64.
	// https://sqlite.org/c3ref/bind_blob.html
	BindInt64(col int, val int64) error
	// BindNull is sqlite3_bind_null.
	// https://sqlite.org/c3ref/bind_blob.html
	BindNull(col int) error
	// BindText is sqlite3_bind_text64. The engine copies val.
	// https://sqlite.org/c3ref/bind_blob.html
	BindText(col int, val string) error
	// BindBlob is sqlite3_bind_blob64. The engine copies val.
	// https://sqlite.org/c3ref/bind_blob.html
	BindBlob(col int, val []byte) error
	// BindParameterCount is sqlite3_bind_parameter_count.
	// https://sqlite.org/c3ref/bind_parameter_count.html
	BindParameterCount() int
	// BindParameterName is sqlite3_bind_parameter_name.
	// The name includes its sigil. Nameless parameters return "".
	// https://sqlite.org/c3ref/bind_parameter_count.html
	BindParameterName(col int) string
	// BindParameterIndex is sqlite3_bind_parameter_index.
	// The name must include its sigil. Returns zero if no matching
	// parameter is found.
	// https://sqlite.org/c3ref/bind_parameter_index.html
	BindParameterIndex(name string) int

	// ColumnCount is sqlite3_column_count.
	// https://sqlite.org/c3ref/column_count.html
	ColumnCount() int
	// ColumnName is sqlite3_column_name.
	// https://sqlite.org/c3ref/column_name.html
	ColumnName(col int) string
	// ColumnText is sqlite3_column_text.
	// https://sqlite.org/c3ref/column_blob.html
	ColumnText(col int) string
	// ColumnBlob is sqlite3_column_blob.
	//
	// WARNING: The returned memory is managed by C and is only valid until
	//          another call is made on this Stmt.
	//
	// https://sqlite.org/c3ref/column_blob.html
	ColumnBlob(col int) []byte
	// ColumnDouble is sqlite3_column_double.
	// https://sqlite.org/c3ref/column_blob.html
	ColumnDouble(col int) float64
	// ColumnInt64 is sqlite3_column_int64.
	// https://sqlite.org/c3ref/column_blob.html
	ColumnInt64(col int) int64
	// ColumnType is sqlite3_column_type.
	// https://www.sqlite.org/c3ref/column_blob.html
	ColumnType(col int) ColumnType
	// ColumnDeclType is sqlite3_column_decltype.
	// https://sqlite.org/c3ref/column_decltype.html
	ColumnDeclType(col int) string
}

// ColumnType are constants for each of the SQLite datatypes.
// https://www.sqlite.org/c3ref/c_blob.html
type ColumnType int

const (
	SQLITE_INTEGER ColumnType = 1
	SQLITE_FLOAT   ColumnType = 2
	SQLITE_TEXT    ColumnType = 3
	SQLITE_BLOB    ColumnType = 4
	SQLITE_NULL    ColumnType = 5
)

func (t ColumnType) String() string {
	switch t {
	case SQLITE_INTEGER:
		return "SQLITE_INTEGER"
	case SQLITE_FLOAT:
		return "SQLITE_FLOAT"
	case SQLITE_TEXT:
		return "SQLITE_TEXT"
	case SQLITE_BLOB:
		return "SQLITE_BLOB"
	case SQLITE_NULL:
		return "SQLITE_NULL"
	default:
		return "UNKNOWN_SQLITE_DATATYPE"
	}
}

// OpenFlags are flags used when opening a DB.
//
// https://www.sqlite.org/c3ref/c_open_autoproxy.html
type OpenFlags int

const (
	SQLITE_OPEN_READONLY     OpenFlags = 0x00000001
	SQLITE_OPEN_READWRITE    OpenFlags = 0x00000002
	SQLITE_OPEN_CREATE       OpenFlags = 0x00000004
	SQLITE_OPEN_URI          OpenFlags = 0x00000040
	SQLITE_OPEN_MEMORY       OpenFlags = 0x00000080
	SQLITE_OPEN_NOMUTEX      OpenFlags = 0x00008000
	SQLITE_OPEN_FULLMUTEX    OpenFlags = 0x00010000
	SQLITE_OPEN_SHAREDCACHE  OpenFlags = 0x00020000
	SQLITE_OPEN_PRIVATECACHE OpenFlags = 0x00040000
	SQLITE_OPEN_WAL          OpenFlags = 0x00080000
	SQLITE_OPEN_NOFOLLOW     OpenFlags = 0x00100000

	// OpenFlagsDefault uses the rollback journal; callers opt in to WAL.
	OpenFlagsDefault = SQLITE_OPEN_READWRITE |
		SQLITE_OPEN_CREATE |
		SQLITE_OPEN_URI |
		SQLITE_OPEN_NOMUTEX
)

var allOpenFlags = []OpenFlags{
	SQLITE_OPEN_READONLY,
	SQLITE_OPEN_READWRITE,
	SQLITE_OPEN_CREATE,
	SQLITE_OPEN_URI,
	SQLITE_OPEN_MEMORY,
	SQLITE_OPEN_NOMUTEX,
	SQLITE_OPEN_FULLMUTEX,
	SQLITE_OPEN_SHAREDCACHE,
	SQLITE_OPEN_PRIVATECACHE,
	SQLITE_OPEN_WAL,
	SQLITE_OPEN_NOFOLLOW,
}

var openFlagsStrings = map[OpenFlags]string{
	SQLITE_OPEN_READONLY:     "SQLITE_OPEN_READONLY",
	SQLITE_OPEN_READWRITE:    "SQLITE_OPEN_READWRITE",
	SQLITE_OPEN_CREATE:       "SQLITE_OPEN_CREATE",
	SQLITE_OPEN_URI:          "SQLITE_OPEN_URI",
	SQLITE_OPEN_MEMORY:       "SQLITE_OPEN_MEMORY",
	SQLITE_OPEN_NOMUTEX:      "SQLITE_OPEN_NOMUTEX",
	SQLITE_OPEN_FULLMUTEX:    "SQLITE_OPEN_FULLMUTEX",
	SQLITE_OPEN_SHAREDCACHE:  "SQLITE_OPEN_SHAREDCACHE",
	SQLITE_OPEN_PRIVATECACHE: "SQLITE_OPEN_PRIVATECACHE",
	SQLITE_OPEN_WAL:          "SQLITE_OPEN_WAL",
	SQLITE_OPEN_NOFOLLOW:     "SQLITE_OPEN_NOFOLLOW",
}

func (o OpenFlags) String() string {
	var flags []byte
	for _, flag := range allOpenFlags {
		if o&flag == 0 {
			continue
		}
		if len(flags) > 0 {
			flags = append(flags, '|')
		}
		flagStr, ok := openFlagsStrings[flag]
		if ok {
			flags = append(flags, flagStr...)
		} else {
			flags = append(flags, "UNKNOWN_FLAG:"...)
			var buf [20]byte
			flags = append(flags, itoa(buf[:], int64(flag))...)
		}
	}
	return string(flags)
}

// ErrCode is an SQLite error code as a Go error.
// It must not be one of the status codes SQLITE_OK, SQLITE_ROW, or SQLITE_DONE.
type ErrCode Code

func (e ErrCode) Error() string {
	return Code(e).String()
}

// Code is an SQLite extended error code.
//
// The three SQLite result codes (SQLITE_OK, SQLITE_ROW, and SQLITE_DONE),
// are not errors so they should not be used in an Error.
type Code int

// Primary reports the primary (low byte) result code.
func (code Code) Primary() Code { return code & 0xff }

func (code Code) String() string {
	switch code {
	default:
		var buf [20]byte
		return "SQLITE_UNKNOWN_ERR(" + string(itoa(buf[:], int64(code))) + ")"
	case SQLITE_OK:
		return "SQLITE_OK(not an error)"
	case SQLITE_ROW:
		return "SQLITE_ROW(not an error)"
	case SQLITE_DONE:
		return "SQLITE_DONE(not an error)"
	case SQLITE_ERROR:
		return "SQLITE_ERROR"
	case SQLITE_INTERNAL:
		return "SQLITE_INTERNAL"
	case SQLITE_PERM:
		return "SQLITE_PERM"
	case SQLITE_ABORT:
		return "SQLITE_ABORT"
	case SQLITE_BUSY:
		return "SQLITE_BUSY"
	case SQLITE_LOCKED:
		return "SQLITE_LOCKED"
	case SQLITE_NOMEM:
		return "SQLITE_NOMEM"
	case SQLITE_READONLY:
		return "SQLITE_READONLY"
	case SQLITE_INTERRUPT:
		return "SQLITE_INTERRUPT"
	case SQLITE_IOERR:
		return "SQLITE_IOERR"
	case SQLITE_CORRUPT:
		return "SQLITE_CORRUPT"
	case SQLITE_NOTFOUND:
		return "SQLITE_NOTFOUND"
	case SQLITE_FULL:
		return "SQLITE_FULL"
	case SQLITE_CANTOPEN:
		return "SQLITE_CANTOPEN"
	case SQLITE_PROTOCOL:
		return "SQLITE_PROTOCOL"
	case SQLITE_EMPTY:
		return "SQLITE_EMPTY"
	case SQLITE_SCHEMA:
		return "SQLITE_SCHEMA"
	case SQLITE_TOOBIG:
		return "SQLITE_TOOBIG"
	case SQLITE_CONSTRAINT:
		return "SQLITE_CONSTRAINT"
	case SQLITE_MISMATCH:
		return "SQLITE_MISMATCH"
	case SQLITE_MISUSE:
		return "SQLITE_MISUSE"
	case SQLITE_NOLFS:
		return "SQLITE_NOLFS"
	case SQLITE_AUTH:
		return "SQLITE_AUTH"
	case SQLITE_FORMAT:
		return "SQLITE_FORMAT"
	case SQLITE_RANGE:
		return "SQLITE_RANGE"
	case SQLITE_NOTADB:
		return "SQLITE_NOTADB"
	case SQLITE_NOTICE:
		return "SQLITE_NOTICE"
	case SQLITE_WARNING:
		return "SQLITE_WARNING"

	case SQLITE_BUSY_RECOVERY:
		return "SQLITE_BUSY_RECOVERY"
	case SQLITE_BUSY_SNAPSHOT:
		return "SQLITE_BUSY_SNAPSHOT"
	case SQLITE_BUSY_TIMEOUT:
		return "SQLITE_BUSY_TIMEOUT"
	case SQLITE_CANTOPEN_NOTEMPDIR:
		return "SQLITE_CANTOPEN_NOTEMPDIR"
	case SQLITE_CANTOPEN_ISDIR:
		return "SQLITE_CANTOPEN_ISDIR"
	case SQLITE_CANTOPEN_FULLPATH:
		return "SQLITE_CANTOPEN_FULLPATH"
	case SQLITE_LOCKED_SHAREDCACHE:
		return "SQLITE_LOCKED_SHAREDCACHE"
	case SQLITE_READONLY_RECOVERY:
		return "SQLITE_READONLY_RECOVERY"
	case SQLITE_READONLY_CANTLOCK:
		return "SQLITE_READONLY_CANTLOCK"
	case SQLITE_READONLY_ROLLBACK:
		return "SQLITE_READONLY_ROLLBACK"
	case SQLITE_ABORT_ROLLBACK:
		return "SQLITE_ABORT_ROLLBACK"
	case SQLITE_CONSTRAINT_CHECK:
		return "SQLITE_CONSTRAINT_CHECK"
	case SQLITE_CONSTRAINT_COMMITHOOK:
		return "SQLITE_CONSTRAINT_COMMITHOOK"
	case SQLITE_CONSTRAINT_FOREIGNKEY:
		return "SQLITE_CONSTRAINT_FOREIGNKEY"
	case SQLITE_CONSTRAINT_FUNCTION:
		return "SQLITE_CONSTRAINT_FUNCTION"
	case SQLITE_CONSTRAINT_NOTNULL:
		return "SQLITE_CONSTRAINT_NOTNULL"
	case SQLITE_CONSTRAINT_PRIMARYKEY:
		return "SQLITE_CONSTRAINT_PRIMARYKEY"
	case SQLITE_CONSTRAINT_TRIGGER:
		return "SQLITE_CONSTRAINT_TRIGGER"
	case SQLITE_CONSTRAINT_UNIQUE:
		return "SQLITE_CONSTRAINT_UNIQUE"
	case SQLITE_CONSTRAINT_ROWID:
		return "SQLITE_CONSTRAINT_ROWID"
	}
}

const (
	SQLITE_OK         = Code(0) // do not use in Error
	SQLITE_ERROR      = Code(1)
	SQLITE_INTERNAL   = Code(2)
	SQLITE_PERM       = Code(3)
	SQLITE_ABORT      = Code(4)
	SQLITE_BUSY       = Code(5)
	SQLITE_LOCKED     = Code(6)
	SQLITE_NOMEM      = Code(7)
	SQLITE_READONLY   = Code(8)
	SQLITE_INTERRUPT  = Code(9)
	SQLITE_IOERR      = Code(10)
	SQLITE_CORRUPT    = Code(11)
	SQLITE_NOTFOUND   = Code(12)
	SQLITE_FULL       = Code(13)
	SQLITE_CANTOPEN   = Code(14)
	SQLITE_PROTOCOL   = Code(15)
	SQLITE_EMPTY      = Code(16)
	SQLITE_SCHEMA     = Code(17)
	SQLITE_TOOBIG     = Code(18)
	SQLITE_CONSTRAINT = Code(19)
	SQLITE_MISMATCH   = Code(20)
	SQLITE_MISUSE     = Code(21)
	SQLITE_NOLFS      = Code(22)
	SQLITE_AUTH       = Code(23)
	SQLITE_FORMAT     = Code(24)
	SQLITE_RANGE      = Code(25)
	SQLITE_NOTADB     = Code(26)
	SQLITE_NOTICE     = Code(27)
	SQLITE_WARNING    = Code(28)
	SQLITE_ROW        = Code(100) // do not use in Error
	SQLITE_DONE       = Code(101) // do not use in Error

	// Extended error codes

	SQLITE_LOCKED_SHAREDCACHE    = Code(SQLITE_LOCKED | (1 << 8))
	SQLITE_BUSY_RECOVERY         = Code(SQLITE_BUSY | (1 << 8))
	SQLITE_BUSY_SNAPSHOT         = Code(SQLITE_BUSY | (2 << 8))
	SQLITE_BUSY_TIMEOUT          = Code(SQLITE_BUSY | (3 << 8))
	SQLITE_CANTOPEN_NOTEMPDIR    = Code(SQLITE_CANTOPEN | (1 << 8))
	SQLITE_CANTOPEN_ISDIR        = Code(SQLITE_CANTOPEN | (2 << 8))
	SQLITE_CANTOPEN_FULLPATH     = Code(SQLITE_CANTOPEN | (3 << 8))
	SQLITE_READONLY_RECOVERY     = Code(SQLITE_READONLY | (1 << 8))
	SQLITE_READONLY_CANTLOCK     = Code(SQLITE_READONLY | (2 << 8))
	SQLITE_READONLY_ROLLBACK     = Code(SQLITE_READONLY | (3 << 8))
	SQLITE_ABORT_ROLLBACK        = Code(SQLITE_ABORT | (2 << 8))
	SQLITE_CONSTRAINT_CHECK      = Code(SQLITE_CONSTRAINT | (1 << 8))
	SQLITE_CONSTRAINT_COMMITHOOK = Code(SQLITE_CONSTRAINT | (2 << 8))
	SQLITE_CONSTRAINT_FOREIGNKEY = Code(SQLITE_CONSTRAINT | (3 << 8))
	SQLITE_CONSTRAINT_FUNCTION   = Code(SQLITE_CONSTRAINT | (4 << 8))
	SQLITE_CONSTRAINT_NOTNULL    = Code(SQLITE_CONSTRAINT | (5 << 8))
	SQLITE_CONSTRAINT_PRIMARYKEY = Code(SQLITE_CONSTRAINT | (6 << 8))
	SQLITE_CONSTRAINT_TRIGGER    = Code(SQLITE_CONSTRAINT | (7 << 8))
	SQLITE_CONSTRAINT_UNIQUE     = Code(SQLITE_CONSTRAINT | (8 << 8))
	SQLITE_CONSTRAINT_ROWID      = Code(SQLITE_CONSTRAINT | (10 << 8))
)

// CodeAsError converts a Code into an ErrCode.
// SQLite non-error status codes return nil.
func CodeAsError(code Code) error {
	if code == SQLITE_OK || code == SQLITE_ROW || code == SQLITE_DONE {
		return nil
	}
	return ErrCode(code)
}

func itoa(buf []byte, val int64) []byte {
	i := len(buf) - 1
	neg := false
	if val < 0 {
		neg = true
		val = 0 - val
	}
	for val >= 10 {
		buf[i] = byte(val%10 + '0')
		i--
		val /= 10
	}
	buf[i] = byte(val + '0')
	if neg {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}
