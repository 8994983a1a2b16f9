package csqlite

// This file contains the //export trampolines the engine calls back
// into. cgo forbids C definitions alongside //export, so the preamble
// here only declares the helpers defined in csqlite.go.

// #include <stdlib.h>
// #include <sqlite3.h>
//
// extern void cs_result_text(sqlite3_context*, const char*, int);
// extern void cs_result_blob(sqlite3_context*, const void*, int);
// extern void cs_result_error(sqlite3_context*, const char*, int);
import "C"
import (
	"fmt"
	"unsafe"

	"github.com/weka-io/d2sqlite3/sqlh"
)

func goValue(v *C.sqlite3_value) sqlh.Value {
	switch C.sqlite3_value_type(v) {
	case C.SQLITE_INTEGER:
		return sqlh.Integer(int64(C.sqlite3_value_int64(v)))
	case C.SQLITE_FLOAT:
		return sqlh.Float(float64(C.sqlite3_value_double(v)))
	case C.SQLITE_TEXT:
		str := (*C.char)(unsafe.Pointer(C.sqlite3_value_text(v)))
		n := C.sqlite3_value_bytes(v)
		if str == nil || n == 0 {
			return sqlh.Text("")
		}
		return sqlh.Text(C.GoStringN(str, n))
	case C.SQLITE_BLOB:
		p := C.sqlite3_value_blob(v)
		n := C.sqlite3_value_bytes(v)
		return sqlh.Blob(C.GoBytes(p, n))
	default:
		return sqlh.Null()
	}
}

func goValues(argc C.int, argv **C.sqlite3_value) []sqlh.Value {
	if argc == 0 {
		return nil
	}
	cvals := unsafe.Slice(argv, int(argc))
	vals := make([]sqlh.Value, len(cvals))
	for i, cv := range cvals {
		vals[i] = goValue(cv)
	}
	return vals
}

func setResult(ctx *C.sqlite3_context, v sqlh.Value) {
	switch v.Kind() {
	case sqlh.KindInteger:
		C.sqlite3_result_int64(ctx, C.sqlite3_int64(v.Int64()))
	case sqlh.KindFloat:
		C.sqlite3_result_double(ctx, C.double(v.Float64()))
	case sqlh.KindText:
		s := v.TextValue()
		cs := C.CString(s)
		C.cs_result_text(ctx, cs, C.int(len(s)))
		C.free(unsafe.Pointer(cs))
	case sqlh.KindBlob:
		b := v.BlobValue()
		if len(b) == 0 {
			C.sqlite3_result_zeroblob(ctx, 0)
			return
		}
		C.cs_result_blob(ctx, unsafe.Pointer(&b[0]), C.int(len(b)))
	default:
		C.sqlite3_result_null(ctx)
	}
}

func setError(ctx *C.sqlite3_context, name string, err error) {
	msg := fmt.Sprintf("%s: %v", name, err)
	cmsg := C.CString(msg)
	C.cs_result_error(ctx, cmsg, C.int(len(msg)))
	C.free(unsafe.Pointer(cmsg))
}

// A panic must never unwind across the C boundary; it is reported to
// the engine as a function error instead. name is a pointer so the
// deferred call sees the function name once the capsule resolves, and
// still has a label if the lookup itself panics.
func recoverToResult(ctx *C.sqlite3_context, name *string) {
	if r := recover(); r != nil {
		setError(ctx, *name, fmt.Errorf("panic: %v", r))
	}
}

//export csFuncTramp
func csFuncTramp(ctx *C.sqlite3_context, argc C.int, argv **C.sqlite3_value) {
	name := "scalar function"
	defer recoverToResult(ctx, &name)
	key := uintptr(C.sqlite3_user_data(ctx))
	fn := capsuleValue(key).(*scalarFunc)
	name = fn.name
	res, err := fn.fn(goValues(argc, argv))
	if err != nil {
		setError(ctx, fn.name, err)
		return
	}
	setResult(ctx, res)
}

// aggContextID returns the per-group state id slot, allocating it in
// the engine's aggregate context on first use. A nil return means the
// engine is out of memory.
func aggContextID(ctx *C.sqlite3_context) *int64 {
	p := C.sqlite3_aggregate_context(ctx, 8)
	if p == nil {
		return nil
	}
	return (*int64)(p)
}

//export csStepTramp
func csStepTramp(ctx *C.sqlite3_context, argc C.int, argv **C.sqlite3_value) {
	name := "aggregate step"
	defer recoverToResult(ctx, &name)
	key := uintptr(C.sqlite3_user_data(ctx))
	agg := capsuleValue(key).(*aggFunc)
	name = agg.name

	idp := aggContextID(ctx)
	if idp == nil {
		C.sqlite3_result_error_nomem(ctx)
		return
	}
	if *idp == 0 {
		state, err := agg.newState()
		if err != nil {
			setError(ctx, agg.name, err)
			return
		}
		*idp = agg.add(state)
	}
	state := agg.get(*idp)
	if state == nil {
		setError(ctx, agg.name, fmt.Errorf("lost aggregate state"))
		return
	}
	if err := state.Accumulate(goValues(argc, argv)); err != nil {
		setError(ctx, agg.name, err)
	}
}

//export csFinalTramp
func csFinalTramp(ctx *C.sqlite3_context) {
	name := "aggregate result"
	defer recoverToResult(ctx, &name)
	key := uintptr(C.sqlite3_user_data(ctx))
	agg := capsuleValue(key).(*aggFunc)
	name = agg.name

	// A group with no rows never ran the step callback, so the
	// aggregate context is empty: build a fresh state and finish it.
	var state sqlh.Aggregate
	p := C.sqlite3_aggregate_context(ctx, 0)
	if p != nil && *(*int64)(p) != 0 {
		id := *(*int64)(p)
		state = agg.get(id)
		agg.remove(id)
	}
	if state == nil {
		var err error
		state, err = agg.newState()
		if err != nil {
			setError(ctx, agg.name, err)
			return
		}
	}
	res, err := state.Result()
	if err != nil {
		setError(ctx, agg.name, err)
		return
	}
	setResult(ctx, res)
}

//export csDestroyTramp
func csDestroyTramp(p unsafe.Pointer) {
	freeCapsule(uintptr(p))
}

//export csCompareTramp
func csCompareTramp(p unsafe.Pointer, an C.int, a unsafe.Pointer, bn C.int, b unsafe.Pointer) C.int {
	coll := capsuleValue(uintptr(p)).(*collFunc)
	// A panic here cannot be reported through the engine; treat the
	// operands as equal and keep the process alive.
	defer func() { recover() }()
	as := C.GoStringN((*C.char)(a), an)
	bs := C.GoStringN((*C.char)(b), bn)
	r := coll.cmp(as, bs)
	switch {
	case r < 0:
		return -1
	case r > 0:
		return 1
	default:
		return 0
	}
}

//export csCommitTramp
func csCommitTramp(p unsafe.Pointer) C.int {
	fn := capsuleValue(uintptr(p)).(sqlh.CommitHookFunc)
	allow := true
	func() {
		defer func() {
			if recover() != nil {
				allow = false
			}
		}()
		allow = fn()
	}()
	if allow {
		return 0
	}
	return 1 // non-zero turns the COMMIT into a ROLLBACK
}

//export csRollbackTramp
func csRollbackTramp(p unsafe.Pointer) {
	fn := capsuleValue(uintptr(p)).(sqlh.RollbackHookFunc)
	defer func() { recover() }()
	fn()
}

//export csUpdateTramp
func csUpdateTramp(p unsafe.Pointer, op C.int, dbName, table *C.char, rowid C.sqlite3_int64) {
	fn := capsuleValue(uintptr(p)).(sqlh.UpdateHookFunc)
	defer func() { recover() }()
	fn(sqlh.HookOp(op), C.GoString(dbName), C.GoString(table), int64(rowid))
}

//export csProgressTramp
func csProgressTramp(p unsafe.Pointer) C.int {
	fn := capsuleValue(uintptr(p)).(sqlh.ProgressFunc)
	interrupt := false
	func() {
		defer func() {
			if recover() != nil {
				interrupt = true
			}
		}()
		interrupt = fn()
	}()
	if interrupt {
		return 1 // non-zero aborts the running operation
	}
	return 0
}
