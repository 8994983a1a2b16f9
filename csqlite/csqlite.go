package csqlite

// This list of compiler options is heavily influenced by:
//
// https://www.sqlite.org/compile.html#recommended_compile_time_options
//
// SQLITE_OMIT_AUTOINIT is deliberately absent: the engine initializes
// itself on first use, so Configure can run before any Open without an
// explicit initialize call here.

// #cgo CFLAGS: -DSQLITE_THREADSAFE=2
// #cgo CFLAGS: -DSQLITE_DQS=0
// #cgo CFLAGS: -DSQLITE_DEFAULT_MEMSTATUS=0
// #cgo CFLAGS: -DSQLITE_LIKE_DOESNT_MATCH_BLOBS
// #cgo CFLAGS: -DSQLITE_MAX_EXPR_DEPTH=0
// #cgo CFLAGS: -DSQLITE_OMIT_DEPRECATED
// #cgo CFLAGS: -DSQLITE_USE_ALLOCA
// #cgo CFLAGS: -DSQLITE_ENABLE_FTS5
// #cgo CFLAGS: -DSQLITE_ENABLE_RTREE
// #cgo CFLAGS: -DSQLITE_ENABLE_JSON1
// #cgo CFLAGS: -DSQLITE_ENABLE_COLUMN_METADATA
// #cgo CFLAGS: -DSQLITE_ENABLE_STAT4
// #cgo CFLAGS: -DHAVE_USLEEP=1
// #cgo linux LDFLAGS: -ldl -lm
// #cgo linux CFLAGS: -std=c99
//
// #include <stdint.h>
// #include <stdlib.h>
// #include <string.h>
// #include <sqlite3.h>
//
// extern void csFuncTramp(sqlite3_context*, int, sqlite3_value**);
// extern void csStepTramp(sqlite3_context*, int, sqlite3_value**);
// extern void csFinalTramp(sqlite3_context*);
// extern void csDestroyTramp(void*);
// extern int  csCompareTramp(void*, int, const void*, int, const void*);
// extern int  csCommitTramp(void*);
// extern void csRollbackTramp(void*);
// extern void csUpdateTramp(void*, int, char const*, char const*, sqlite3_int64);
// extern int  csProgressTramp(void*);
//
// int cs_config_threadmode(int mode) {
//	return sqlite3_config(mode);
// }
//
// int cs_enable_load_extension(sqlite3* db, int on) {
//	return sqlite3_db_config(db, SQLITE_DBCONFIG_ENABLE_LOAD_EXTENSION, on, (int*)0);
// }
//
// int cs_create_function(sqlite3* db, const char* name, int nArg, int det, uintptr_t key, int isAgg) {
//	int flags = SQLITE_UTF8;
//	if (det) {
//		flags |= SQLITE_DETERMINISTIC;
//	}
//	if (isAgg) {
//		return sqlite3_create_function_v2(db, name, nArg, flags, (void*)key, 0, csStepTramp, csFinalTramp, csDestroyTramp);
//	}
//	return sqlite3_create_function_v2(db, name, nArg, flags, (void*)key, csFuncTramp, 0, 0, csDestroyTramp);
// }
//
// int cs_create_collation(sqlite3* db, const char* name, uintptr_t key) {
//	return sqlite3_create_collation_v2(db, name, SQLITE_UTF8, (void*)key, csCompareTramp, csDestroyTramp);
// }
//
// void cs_update_hook(sqlite3* db, uintptr_t key, int install) {
//	if (install) {
//		sqlite3_update_hook(db, csUpdateTramp, (void*)key);
//	} else {
//		sqlite3_update_hook(db, 0, 0);
//	}
// }
//
// void cs_commit_hook(sqlite3* db, uintptr_t key, int install) {
//	if (install) {
//		sqlite3_commit_hook(db, csCommitTramp, (void*)key);
//	} else {
//		sqlite3_commit_hook(db, 0, 0);
//	}
// }
//
// void cs_rollback_hook(sqlite3* db, uintptr_t key, int install) {
//	if (install) {
//		sqlite3_rollback_hook(db, csRollbackTramp, (void*)key);
//	} else {
//		sqlite3_rollback_hook(db, 0, 0);
//	}
// }
//
// void cs_progress_handler(sqlite3* db, int ops, uintptr_t key, int install) {
//	if (install) {
//		sqlite3_progress_handler(db, ops, csProgressTramp, (void*)key);
//	} else {
//		sqlite3_progress_handler(db, 0, 0, 0);
//	}
// }
//
// void cs_result_text(sqlite3_context* ctx, const char* p, int n) {
//	sqlite3_result_text(ctx, p, n, SQLITE_TRANSIENT);
// }
//
// void cs_result_blob(sqlite3_context* ctx, const void* p, int n) {
//	sqlite3_result_blob(ctx, p, n, SQLITE_TRANSIENT);
// }
//
// void cs_result_error(sqlite3_context* ctx, const char* msg, int n) {
//	sqlite3_result_error(ctx, msg, n);
// }
//
// static int cs_bind_text(sqlite3_stmt* stmt, int col, const char* p, int n) {
//	if (n == 0) {
//		return sqlite3_bind_text(stmt, col, "", 0, SQLITE_STATIC);
//	}
//	return sqlite3_bind_text(stmt, col, p, n, SQLITE_TRANSIENT);
// }
//
// static int cs_bind_blob(sqlite3_stmt* stmt, int col, const void* p, int n) {
//	return sqlite3_bind_blob(stmt, col, p, n, SQLITE_TRANSIENT);
// }
import "C"
import (
	"time"
	"unsafe"

	"github.com/weka-io/d2sqlite3/sqlh"
)

// DB is an sqlite3* database connection object.
// https://sqlite.org/c3ref/sqlite3.html
type DB struct {
	db *C.sqlite3

	// Live hook capsules, 0 when none. The hook C APIs have no
	// destructor callback, so the connection owns each registration and
	// releases it on replacement or after a successful close.
	updateKey   uintptr
	commitKey   uintptr
	rollbackKey uintptr
	progressKey uintptr

	declTypes map[string]string
}

// Stmt is an sqlite3_stmt* prepared statement object.
// https://sqlite.org/c3ref/stmt.html
type Stmt struct {
	db   *DB
	stmt *C.sqlite3_stmt
}

var _ sqlh.DB = (*DB)(nil)
var _ sqlh.Stmt = (*Stmt)(nil)

// Configure is sqlite3_config: it selects the process-wide threading
// mode. It must run before the engine initializes (that is, before the
// first Open); afterwards the engine reports SQLITE_MISUSE.
//
// https://sqlite.org/c3ref/config.html
func Configure(mode sqlh.ThreadMode) error {
	return errCode(C.cs_config_threadmode(C.int(mode)))
}

// Complete is sqlite3_complete.
// https://sqlite.org/c3ref/complete.html
func Complete(sql string) bool {
	csql := C.CString(sql)
	defer C.free(unsafe.Pointer(csql))
	return C.sqlite3_complete(csql) != 0
}

// Version is sqlite3_libversion.
func Version() string {
	return C.GoString(C.sqlite3_libversion())
}

// VersionNumber is sqlite3_libversion_number.
func VersionNumber() int {
	return int(C.sqlite3_libversion_number())
}

// Open is sqlite3_open_v2.
//
// Surprisingly: an error opening the DB can return a non-nil handle.
// Call Close on it.
//
// https://sqlite.org/c3ref/open.html
func Open(filename string, flags sqlh.OpenFlags, vfs string) (sqlh.DB, error) {
	cfilename := C.CString(filename)
	defer C.free(unsafe.Pointer(cfilename))

	cvfs := (*C.char)(nil)
	if vfs != "" {
		cvfs = C.CString(vfs)
		defer C.free(unsafe.Pointer(cvfs))
	}

	var cdb *C.sqlite3
	res := C.sqlite3_open_v2(cfilename, &cdb, C.int(flags), cvfs)
	if cdb == nil {
		return nil, errCode(res)
	}
	return &DB{db: cdb}, errCode(res)
}

// Close is sqlite3_close.
// https://sqlite.org/c3ref/close.html
func (db *DB) Close() error {
	// Function, aggregate and collation capsules are released by
	// csDestroyTramp as sqlite3_close tears them down. Hook capsules
	// are released here only once the close succeeds: a failed close
	// (unfinalized statements) leaves a usable connection, and its
	// hooks must stay installed.
	if err := errCode(C.sqlite3_close(db.db)); err != nil {
		return err
	}
	for _, key := range []uintptr{db.updateKey, db.commitKey, db.rollbackKey, db.progressKey} {
		if key != 0 {
			freeCapsule(key)
		}
	}
	db.updateKey, db.commitKey, db.rollbackKey, db.progressKey = 0, 0, 0, 0
	return nil
}

// ErrMsg is sqlite3_errmsg.
// https://sqlite.org/c3ref/errcode.html
func (db *DB) ErrMsg() string {
	return C.GoString(C.sqlite3_errmsg(db.db))
}

// ExtendedErrCode is sqlite3_extended_errcode.
// https://sqlite.org/c3ref/errcode.html
func (db *DB) ExtendedErrCode() sqlh.Code {
	return sqlh.Code(C.sqlite3_extended_errcode(db.db))
}

// Changes is sqlite3_changes.
// https://sqlite.org/c3ref/changes.html
func (db *DB) Changes() int64 {
	return int64(C.sqlite3_changes(db.db))
}

// TotalChanges is sqlite3_total_changes.
// https://sqlite.org/c3ref/total_changes.html
func (db *DB) TotalChanges() int64 {
	return int64(C.sqlite3_total_changes(db.db))
}

// LastInsertRowid is sqlite3_last_insert_rowid.
// https://sqlite.org/c3ref/last_insert_rowid.html
func (db *DB) LastInsertRowid() int64 {
	return int64(C.sqlite3_last_insert_rowid(db.db))
}

// Prepare is sqlite3_prepare_v2.
// https://www.sqlite.org/c3ref/prepare.html
func (db *DB) Prepare(query string) (stmt sqlh.Stmt, remainingQuery string, err error) {
	csql := C.CString(query)
	defer C.free(unsafe.Pointer(csql))

	var cstmt *C.sqlite3_stmt
	var csqlTail *C.char
	res := C.sqlite3_prepare_v2(db.db, csql, C.int(len(query))+1, &cstmt, &csqlTail)
	if err := errCode(res); err != nil {
		return nil, "", err
	}
	remainingQuery = query[len(query)-int(C.strlen(csqlTail)):]
	if cstmt == nil {
		// Whitespace or comments only.
		return nil, remainingQuery, nil
	}
	return &Stmt{db: db, stmt: cstmt}, remainingQuery, nil
}

// BusyTimeout is sqlite3_busy_timeout.
// https://www.sqlite.org/c3ref/busy_timeout.html
func (db *DB) BusyTimeout(d time.Duration) {
	C.sqlite3_busy_timeout(db.db, C.int(d/time.Millisecond))
}

// Interrupt is sqlite3_interrupt.
// https://sqlite.org/c3ref/interrupt.html
func (db *DB) Interrupt() {
	C.sqlite3_interrupt(db.db)
}

// EnableLoadExtension is sqlite3_db_config(SQLITE_DBCONFIG_ENABLE_LOAD_EXTENSION).
// It enables the C API only, not the load_extension() SQL function.
func (db *DB) EnableLoadExtension(on bool) error {
	return errCode(C.cs_enable_load_extension(db.db, cbool(on)))
}

// LoadExtension is sqlite3_load_extension.
// https://sqlite.org/c3ref/load_extension.html
func (db *DB) LoadExtension(path, entryPoint string) error {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	centry := (*C.char)(nil)
	if entryPoint != "" {
		centry = C.CString(entryPoint)
		defer C.free(unsafe.Pointer(centry))
	}
	var cerr *C.char
	res := C.sqlite3_load_extension(db.db, cpath, centry, &cerr)
	if cerr != nil {
		defer C.sqlite3_free(unsafe.Pointer(cerr))
	}
	return errCode(res)
}

// TableColumnMetadata is sqlite3_table_column_metadata.
// https://sqlite.org/c3ref/table_column_metadata.html
func (db *DB) TableColumnMetadata(schema, table, column string) (sqlh.ColumnMetadata, error) {
	cschema := (*C.char)(nil)
	if schema != "" {
		cschema = C.CString(schema)
		defer C.free(unsafe.Pointer(cschema))
	}
	ctable := C.CString(table)
	defer C.free(unsafe.Pointer(ctable))
	ccolumn := C.CString(column)
	defer C.free(unsafe.Pointer(ccolumn))

	var declType, collSeq *C.char
	var notNull, primaryKey, autoinc C.int
	res := C.sqlite3_table_column_metadata(db.db, cschema, ctable, ccolumn,
		&declType, &collSeq, &notNull, &primaryKey, &autoinc)
	if err := errCode(res); err != nil {
		return sqlh.ColumnMetadata{}, err
	}
	return sqlh.ColumnMetadata{
		DeclaredType:  C.GoString(declType),
		Collation:     C.GoString(collSeq),
		NotNull:       notNull != 0,
		PrimaryKey:    primaryKey != 0,
		AutoIncrement: autoinc != 0,
	}, nil
}

// CreateScalarFunc is sqlite3_create_function_v2 with an xFunc.
// https://sqlite.org/c3ref/create_function.html
func (db *DB) CreateScalarFunc(name string, nArg int, deterministic bool, fn sqlh.ScalarFunc) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	key := newCapsule(&scalarFunc{name: name, fn: fn})
	res := C.cs_create_function(db.db, cname, C.int(nArg), cbool(deterministic), C.uintptr_t(key), 0)
	// On failure sqlite3_create_function_v2 invokes xDestroy itself,
	// which already released the capsule. Do not free it again.
	return errCode(res)
}

// CreateAggregateFunc is sqlite3_create_function_v2 with xStep/xFinal.
func (db *DB) CreateAggregateFunc(name string, nArg int, deterministic bool, newState func() (sqlh.Aggregate, error)) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	key := newCapsule(&aggFunc{name: name, newState: newState})
	res := C.cs_create_function(db.db, cname, C.int(nArg), cbool(deterministic), C.uintptr_t(key), 1)
	return errCode(res)
}

// CreateCollation is sqlite3_create_collation_v2.
// https://sqlite.org/c3ref/create_collation.html
func (db *DB) CreateCollation(name string, cmp func(a, b string) int) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	key := newCapsule(&collFunc{name: name, cmp: cmp})
	res := C.cs_create_collation(db.db, cname, C.uintptr_t(key))
	if err := errCode(res); err != nil {
		// Unlike create_function_v2, a failed create_collation_v2 does
		// NOT invoke xDestroy; release the capsule here.
		freeCapsule(key)
		return err
	}
	return nil
}

// SetUpdateHook is sqlite3_update_hook.
// https://sqlite.org/c3ref/update_hook.html
func (db *DB) SetUpdateHook(fn sqlh.UpdateHookFunc) {
	var key uintptr
	if fn == nil {
		C.cs_update_hook(db.db, 0, 0)
	} else {
		key = newCapsule(fn)
		C.cs_update_hook(db.db, C.uintptr_t(key), 1)
	}
	if db.updateKey != 0 {
		freeCapsule(db.updateKey)
	}
	db.updateKey = key
}

// SetCommitHook is sqlite3_commit_hook.
// https://sqlite.org/c3ref/commit_hook.html
func (db *DB) SetCommitHook(fn sqlh.CommitHookFunc) {
	var key uintptr
	if fn == nil {
		C.cs_commit_hook(db.db, 0, 0)
	} else {
		key = newCapsule(fn)
		C.cs_commit_hook(db.db, C.uintptr_t(key), 1)
	}
	if db.commitKey != 0 {
		freeCapsule(db.commitKey)
	}
	db.commitKey = key
}

// SetRollbackHook is sqlite3_rollback_hook.
func (db *DB) SetRollbackHook(fn sqlh.RollbackHookFunc) {
	var key uintptr
	if fn == nil {
		C.cs_rollback_hook(db.db, 0, 0)
	} else {
		key = newCapsule(fn)
		C.cs_rollback_hook(db.db, C.uintptr_t(key), 1)
	}
	if db.rollbackKey != 0 {
		freeCapsule(db.rollbackKey)
	}
	db.rollbackKey = key
}

// SetProgressHandler is sqlite3_progress_handler.
// https://sqlite.org/c3ref/progress_handler.html
func (db *DB) SetProgressHandler(ops int, fn sqlh.ProgressFunc) {
	var key uintptr
	if fn == nil {
		C.cs_progress_handler(db.db, 0, 0, 0)
	} else {
		key = newCapsule(fn)
		C.cs_progress_handler(db.db, C.int(ops), C.uintptr_t(key), 1)
	}
	if db.progressKey != 0 {
		freeCapsule(db.progressKey)
	}
	db.progressKey = key
}

// SQL is sqlite3_sql.
// https://www.sqlite.org/c3ref/expanded_sql.html
func (stmt *Stmt) SQL() string {
	return C.GoString(C.sqlite3_sql(stmt.stmt))
}

// Reset is sqlite3_reset.
// https://www.sqlite.org/c3ref/reset.html
func (stmt *Stmt) Reset() error {
	return errCode(C.sqlite3_reset(stmt.stmt))
}

// Finalize is sqlite3_finalize.
// https://sqlite.org/c3ref/finalize.html
func (stmt *Stmt) Finalize() error {
	return errCode(C.sqlite3_finalize(stmt.stmt))
}

// ClearBindings is sqlite3_clear_bindings.
// https://www.sqlite.org/c3ref/clear_bindings.html
func (stmt *Stmt) ClearBindings() error {
	return errCode(C.sqlite3_clear_bindings(stmt.stmt))
}

// Step is sqlite3_step.
//	For SQLITE_ROW, Step returns (true, nil).
//	For SQLITE_DONE, Step returns (false, nil).
//	For any error, Step returns (false, err).
// https://www.sqlite.org/c3ref/step.html
func (stmt *Stmt) Step() (row bool, err error) {
	res := C.sqlite3_step(stmt.stmt)
	switch res {
	case C.SQLITE_ROW:
		return true, nil
	case C.SQLITE_DONE:
		return false, nil
	default:
		return false, errCode(res)
	}
}

// BindDouble is sqlite3_bind_double.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindDouble(col int, val float64) error {
	return errCode(C.sqlite3_bind_double(stmt.stmt, C.int(col), C.double(val)))
}

// BindInt64 is sqlite3_bind_int64.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindInt64(col int, val int64) error {
	return errCode(C.sqlite3_bind_int64(stmt.stmt, C.int(col), C.sqlite3_int64(val)))
}

// BindNull is sqlite3_bind_null.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindNull(col int) error {
	return errCode(C.sqlite3_bind_null(stmt.stmt, C.int(col)))
}

// BindText is sqlite3_bind_text. The engine copies val.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindText(col int, val string) error {
	if len(val) == 0 {
		return errCode(C.cs_bind_text(stmt.stmt, C.int(col), nil, 0))
	}
	p := (*C.char)(unsafe.Pointer(unsafe.StringData(val)))
	return errCode(C.cs_bind_text(stmt.stmt, C.int(col), p, C.int(len(val))))
}

// BindBlob is sqlite3_bind_blob. The engine copies val.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindBlob(col int, val []byte) error {
	var p unsafe.Pointer
	if len(val) > 0 {
		p = unsafe.Pointer(&val[0])
	}
	return errCode(C.cs_bind_blob(stmt.stmt, C.int(col), p, C.int(len(val))))
}

// BindParameterCount is sqlite3_bind_parameter_count.
// https://sqlite.org/c3ref/bind_parameter_count.html
func (stmt *Stmt) BindParameterCount() int {
	return int(C.sqlite3_bind_parameter_count(stmt.stmt))
}

// BindParameterName is sqlite3_bind_parameter_name.
// https://sqlite.org/c3ref/bind_parameter_count.html
func (stmt *Stmt) BindParameterName(col int) string {
	cstr := C.sqlite3_bind_parameter_name(stmt.stmt, C.int(col))
	if cstr == nil {
		return ""
	}
	return C.GoString(cstr)
}

// BindParameterIndex is sqlite3_bind_parameter_index.
// Returns zero if no matching parameter is found.
// https://sqlite.org/c3ref/bind_parameter_index.html
func (stmt *Stmt) BindParameterIndex(name string) int {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return int(C.sqlite3_bind_parameter_index(stmt.stmt, cname))
}

// ColumnCount is sqlite3_column_count.
// https://sqlite.org/c3ref/column_count.html
func (stmt *Stmt) ColumnCount() int {
	return int(C.sqlite3_column_count(stmt.stmt))
}

// ColumnName is sqlite3_column_name.
// https://sqlite.org/c3ref/column_name.html
func (stmt *Stmt) ColumnName(col int) string {
	return C.GoString(C.sqlite3_column_name(stmt.stmt, C.int(col)))
}

// ColumnText is sqlite3_column_text.
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnText(col int) string {
	str := (*C.char)(unsafe.Pointer(C.sqlite3_column_text(stmt.stmt, C.int(col))))
	n := C.sqlite3_column_bytes(stmt.stmt, C.int(col))
	if str == nil || n == 0 {
		return ""
	}
	return C.GoStringN(str, n)
}

// ColumnBlob is sqlite3_column_blob.
//
// WARNING: The returned memory is managed by C and is only valid until
//          another call is made on this Stmt.
//
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnBlob(col int) []byte {
	res := C.sqlite3_column_blob(stmt.stmt, C.int(col))
	if res == nil {
		return nil
	}
	n := int(C.sqlite3_column_bytes(stmt.stmt, C.int(col)))
	return unsafe.Slice((*byte)(res), n)
}

// ColumnDouble is sqlite3_column_double.
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnDouble(col int) float64 {
	return float64(C.sqlite3_column_double(stmt.stmt, C.int(col)))
}

// ColumnInt64 is sqlite3_column_int64.
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnInt64(col int) int64 {
	return int64(C.sqlite3_column_int64(stmt.stmt, C.int(col)))
}

// ColumnType is sqlite3_column_type.
// https://www.sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnType(col int) sqlh.ColumnType {
	return sqlh.ColumnType(C.sqlite3_column_type(stmt.stmt, C.int(col)))
}

// ColumnDeclType is sqlite3_column_decltype.
// https://sqlite.org/c3ref/column_decltype.html
func (stmt *Stmt) ColumnDeclType(col int) string {
	cstr := C.sqlite3_column_decltype(stmt.stmt, C.int(col))
	if cstr == nil {
		return ""
	}
	clen := C.strlen(cstr)
	b := unsafe.Slice((*byte)(unsafe.Pointer(cstr)), clen)
	if stmt.db.declTypes == nil {
		stmt.db.declTypes = make(map[string]string)
	}
	if res, found := stmt.db.declTypes[string(b)]; found {
		return res
	}
	res := string(b)
	stmt.db.declTypes[res] = res
	return res
}

func cbool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

func errCode(code C.int) error { return sqlh.CodeAsError(sqlh.Code(code)) }
