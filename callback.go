// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import (
	"fmt"
	"reflect"

	"github.com/weka-io/d2sqlite3/sqlh"
)

// This file adapts plain Go functions to the engine's fixed callback
// shape. The engine side only ever sees ScalarFunc/Aggregate over
// tagged Values; the reflection happens once, at registration.

var errorType = reflect.TypeOf((*error)(nil)).Elem()
var valueType = reflect.TypeOf(ColumnData{})
var anyType = reflect.TypeOf((*any)(nil)).Elem()

// argConverter turns an engine Value into one reflect argument.
type argConverter func(sqlh.Value) (reflect.Value, error)

// retConverter turns one reflect result into an engine Value.
type retConverter func(reflect.Value) (sqlh.Value, error)

func argConverterFor(t reflect.Type) (argConverter, error) {
	if t == valueType {
		return func(v sqlh.Value) (reflect.Value, error) {
			return reflect.ValueOf(v), nil
		}, nil
	}
	if t == anyType {
		return func(v sqlh.Value) (reflect.Value, error) {
			rv := reflect.New(anyType).Elem()
			if a := v.Any(); a != nil {
				rv.Set(reflect.ValueOf(a))
			}
			return rv, nil
		}, nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return func(v sqlh.Value) (reflect.Value, error) {
			return reflect.ValueOf(v.Bool()).Convert(t), nil
		}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(v sqlh.Value) (reflect.Value, error) {
			return reflect.ValueOf(v.Int64()).Convert(t), nil
		}, nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return func(v sqlh.Value) (reflect.Value, error) {
			return reflect.ValueOf(v.Int64()).Convert(t), nil
		}, nil
	case reflect.Float32, reflect.Float64:
		return func(v sqlh.Value) (reflect.Value, error) {
			return reflect.ValueOf(v.Float64()).Convert(t), nil
		}, nil
	case reflect.String:
		return func(v sqlh.Value) (reflect.Value, error) {
			return reflect.ValueOf(v.TextValue()).Convert(t), nil
		}, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return func(v sqlh.Value) (reflect.Value, error) {
				return reflect.ValueOf(v.BlobValue()).Convert(t), nil
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: parameter type %s", ErrUnsupportedType, t)
}

func retConverterFor(t reflect.Type) (retConverter, error) {
	if t == valueType {
		return func(rv reflect.Value) (sqlh.Value, error) {
			return rv.Interface().(sqlh.Value), nil
		}, nil
	}
	if t == anyType {
		return func(rv reflect.Value) (sqlh.Value, error) {
			return anyToValue(rv.Interface())
		}, nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return func(rv reflect.Value) (sqlh.Value, error) {
			if rv.Bool() {
				return Integer(1), nil
			}
			return Integer(0), nil
		}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(rv reflect.Value) (sqlh.Value, error) {
			return Integer(rv.Int()), nil
		}, nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return func(rv reflect.Value) (sqlh.Value, error) {
			return Integer(int64(rv.Uint())), nil
		}, nil
	case reflect.Float32, reflect.Float64:
		return func(rv reflect.Value) (sqlh.Value, error) {
			return Float(rv.Float()), nil
		}, nil
	case reflect.String:
		return func(rv reflect.Value) (sqlh.Value, error) {
			return Text(rv.String()), nil
		}, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return func(rv reflect.Value) (sqlh.Value, error) {
				return Blob(append([]byte(nil), rv.Bytes()...)), nil
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: return type %s", ErrUnsupportedType, t)
}

func anyToValue(a any) (sqlh.Value, error) {
	switch v := a.(type) {
	case nil:
		return Null(), nil
	case bool:
		if v {
			return Integer(1), nil
		}
		return Integer(0), nil
	case int:
		return Integer(int64(v)), nil
	case int64:
		return Integer(v), nil
	case float64:
		return Float(v), nil
	case string:
		return Text(v), nil
	case []byte:
		return Blob(v), nil
	case ColumnData:
		return v, nil
	default:
		return Null(), fmt.Errorf("%w: %T", ErrUnsupportedType, a)
	}
}

// callShape validates a callback's results: one value, or a value and
// an error, or (for aggregate steps) nothing or just an error.
func resultShape(t reflect.Type, allowNone bool) (hasValue, hasErr bool, err error) {
	switch t.NumOut() {
	case 0:
		if allowNone {
			return false, false, nil
		}
	case 1:
		if t.Out(0) == errorType {
			if allowNone {
				return false, true, nil
			}
		} else {
			return true, false, nil
		}
	case 2:
		if t.Out(1) == errorType && t.Out(0) != errorType {
			return true, true, nil
		}
	}
	return false, false, fmt.Errorf("must return a value or (value, error)")
}

// CreateFunction registers impl as the SQL scalar function name.
//
// impl must be a non-variadic func whose parameters are drawn from
// bool, signed integers, uint8/16/32, floats, string, []byte,
// ColumnData or any, returning one such value or (value, error). Its
// arity fixes the SQL arity. An error (or panic) in impl surfaces to
// the running statement as "name: msg".
//
// Set deterministic only if impl always returns the same output for
// the same inputs; it lets the engine cache and reorder calls.
func (db *Database) CreateFunction(name string, impl any, deterministic bool) error {
	if err := db.guard("CreateFunction"); err != nil {
		return err
	}
	v := reflect.ValueOf(impl)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return fmt.Errorf("sqlite3.CreateFunction %q: impl is %T, not a function", name, impl)
	}
	if t.IsVariadic() {
		return fmt.Errorf("sqlite3.CreateFunction %q: variadic functions are not supported, arity must be fixed", name)
	}
	argConv := make([]argConverter, t.NumIn())
	for i := range argConv {
		conv, err := argConverterFor(t.In(i))
		if err != nil {
			return fmt.Errorf("sqlite3.CreateFunction %q: arg %d: %w", name, i, err)
		}
		argConv[i] = conv
	}
	hasValue, hasErr, err := resultShape(t, false)
	if err != nil || !hasValue {
		return fmt.Errorf("sqlite3.CreateFunction %q: must return a value or (value, error)", name)
	}
	retConv, err := retConverterFor(t.Out(0))
	if err != nil {
		return fmt.Errorf("sqlite3.CreateFunction %q: %w", name, err)
	}

	fn := func(args []sqlh.Value) (sqlh.Value, error) {
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			rv, err := argConv[i](a)
			if err != nil {
				return Null(), err
			}
			in[i] = rv
		}
		out := v.Call(in)
		if hasErr && !out[1].IsNil() {
			return Null(), out[1].Interface().(error)
		}
		return retConv(out[0])
	}
	return reserr(db.db, "CreateFunction", "", db.db.CreateScalarFunc(name, t.NumIn(), deterministic, fn))
}

// reflectAggregate adapts a user aggregate object to the engine shape.
type reflectAggregate struct {
	step    reflect.Value
	argConv []argConverter
	stepErr bool

	final    reflect.Value
	retConv  retConverter
	finalErr bool
}

func (ra *reflectAggregate) Accumulate(args []sqlh.Value) error {
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		rv, err := ra.argConv[i](a)
		if err != nil {
			return err
		}
		in[i] = rv
	}
	out := ra.step.Call(in)
	if ra.stepErr && !out[len(out)-1].IsNil() {
		return out[len(out)-1].Interface().(error)
	}
	return nil
}

func (ra *reflectAggregate) Result() (sqlh.Value, error) {
	out := ra.final.Call(nil)
	if ra.finalErr && !out[1].IsNil() {
		return Null(), out[1].Interface().(error)
	}
	return ra.retConv(out[0])
}

// CreateAggregate registers an SQL aggregate function.
//
// constructor must be a func() T or func() (T, error); it runs once
// per aggregation group. T must have an Accumulate method (parameter
// rules as in CreateFunction, returning nothing or error) that runs
// per row, and a Result method returning (value) or (value, error)
// that runs at group end. A group with no rows gets a fresh T and goes
// straight to Result.
func (db *Database) CreateAggregate(name string, constructor any, deterministic bool) error {
	if err := db.guard("CreateAggregate"); err != nil {
		return err
	}
	ctor := reflect.ValueOf(constructor)
	ct := ctor.Type()
	if ct.Kind() != reflect.Func || ct.NumIn() != 0 {
		return fmt.Errorf("sqlite3.CreateAggregate %q: constructor must be func() T or func() (T, error)", name)
	}
	ctorErr := false
	switch ct.NumOut() {
	case 1:
	case 2:
		if ct.Out(1) != errorType {
			return fmt.Errorf("sqlite3.CreateAggregate %q: constructor's second result must be error", name)
		}
		ctorErr = true
	default:
		return fmt.Errorf("sqlite3.CreateAggregate %q: constructor must be func() T or func() (T, error)", name)
	}
	st := ct.Out(0)

	stepM, ok := st.MethodByName("Accumulate")
	if !ok {
		return fmt.Errorf("sqlite3.CreateAggregate %q: %s has no Accumulate method", name, st)
	}
	finalM, ok := st.MethodByName("Result")
	if !ok {
		return fmt.Errorf("sqlite3.CreateAggregate %q: %s has no Result method", name, st)
	}

	// Method types include the receiver as In(0).
	stepT := stepM.Func.Type()
	if stepT.IsVariadic() {
		return fmt.Errorf("sqlite3.CreateAggregate %q: Accumulate must not be variadic", name)
	}
	nArg := stepT.NumIn() - 1
	argConv := make([]argConverter, nArg)
	for i := range argConv {
		conv, err := argConverterFor(stepT.In(i + 1))
		if err != nil {
			return fmt.Errorf("sqlite3.CreateAggregate %q: Accumulate arg %d: %w", name, i, err)
		}
		argConv[i] = conv
	}
	stepHasVal, stepErr, err := resultShape(stepT, true)
	if err != nil || stepHasVal {
		return fmt.Errorf("sqlite3.CreateAggregate %q: Accumulate must return nothing or error", name)
	}

	finalT := finalM.Func.Type()
	if finalT.NumIn() != 1 {
		return fmt.Errorf("sqlite3.CreateAggregate %q: Result must take no arguments", name)
	}
	hasValue, finalErr, err := resultShape(finalT, false)
	if err != nil || !hasValue {
		return fmt.Errorf("sqlite3.CreateAggregate %q: Result must return a value or (value, error)", name)
	}
	retConv, err := retConverterFor(finalT.Out(0))
	if err != nil {
		return fmt.Errorf("sqlite3.CreateAggregate %q: %w", name, err)
	}

	newState := func() (sqlh.Aggregate, error) {
		out := ctor.Call(nil)
		if ctorErr && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		recv := out[0]
		return &reflectAggregate{
			step:     recv.Method(stepM.Index),
			argConv:  argConv,
			stepErr:  stepErr,
			final:    recv.Method(finalM.Index),
			retConv:  retConv,
			finalErr: finalErr,
		}, nil
	}
	return reserr(db.db, "CreateAggregate", "", db.db.CreateAggregateFunc(name, nArg, deterministic, newState))
}

// CreateCollation registers cmp as the collation name. cmp must define
// a total order (cmp(a,b) < 0 iff a sorts before b); the engine trusts
// it, an inconsistent order corrupts indexes built with it.
func (db *Database) CreateCollation(name string, cmp func(a, b string) int) error {
	if err := db.guard("CreateCollation"); err != nil {
		return err
	}
	if cmp == nil {
		return fmt.Errorf("sqlite3.CreateCollation %q: cmp must not be nil", name)
	}
	return reserr(db.db, "CreateCollation", "", db.db.CreateCollation(name, cmp))
}

// SetUpdateHook installs fn to observe every row INSERT, UPDATE and
// DELETE on this connection. It replaces any previous update hook; nil
// uninstalls. fn must not use the connection.
func (db *Database) SetUpdateHook(fn sqlh.UpdateHookFunc) {
	if db.guard("SetUpdateHook") != nil {
		return
	}
	db.db.SetUpdateHook(fn)
}

// SetCommitHook installs fn to run as each transaction commits.
// Returning allow=false turns the COMMIT into a ROLLBACK. It replaces
// any previous commit hook; nil uninstalls.
func (db *Database) SetCommitHook(fn sqlh.CommitHookFunc) {
	if db.guard("SetCommitHook") != nil {
		return
	}
	db.db.SetCommitHook(fn)
}

// SetRollbackHook installs fn to run as each transaction rolls back.
// It replaces any previous rollback hook; nil uninstalls.
func (db *Database) SetRollbackHook(fn sqlh.RollbackHookFunc) {
	if db.guard("SetRollbackHook") != nil {
		return
	}
	db.db.SetRollbackHook(fn)
}

// SetProgressHandler installs fn to run about every ops virtual
// machine instructions. Returning interrupt=true aborts the in-flight
// statement with SQLITE_INTERRUPT. It replaces any previous handler;
// nil uninstalls.
func (db *Database) SetProgressHandler(ops int, fn sqlh.ProgressFunc) {
	if db.guard("SetProgressHandler") != nil {
		return
	}
	db.db.SetProgressHandler(ops, fn)
}
