// Package sqlitepool implements a pool of SQLite database connections.
package sqlitepool

import (
	"context"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/weka-io/d2sqlite3"
	"github.com/weka-io/d2sqlite3/sqlh"
)

// A Pool is a fixed-size pool of SQLite database connections.
// One is reserved for writable transactions, the others are
// used for read-only transactions.
type Pool struct {
	poolSize    int
	rwConnFree  chan *conn // cap == 1
	roConnsFree chan *conn // cap == poolSize-1
	closed      chan struct{}
}

type conn struct {
	pool  *Pool
	db    *sqlite3.Database
	stmts map[string]*sqlite3.Statement // persistent statements on db
}

// NewPool creates a Pool of poolSize database connections.
//
// For each connection, initFn is called to initialize the connection.
// Tracer is attached to every connection to report query statistics.
func NewPool(filename string, poolSize int, initFn func(*sqlite3.Database) error, tracer sqlh.Tracer) (*Pool, error) {
	if poolSize < 2 {
		return nil, fmt.Errorf("sqlitepool.NewPool: poolSize=%d is too small", poolSize)
	}
	p := &Pool{
		poolSize:    poolSize,
		rwConnFree:  make(chan *conn, 1),
		roConnsFree: make(chan *conn, poolSize-1),
		closed:      make(chan struct{}),
	}
	fail := func(err error) (*Pool, error) {
		p.closeFree()
		return nil, fmt.Errorf("sqlitepool.NewPool: %w", err)
	}
	for i := 0; i < poolSize; i++ {
		db, err := sqlite3.Open(filename)
		if err != nil {
			return fail(err)
		}
		db.SetTracer(tracer)
		db.BusyTimeout(10 * time.Second)
		if initFn != nil {
			if err := initFn(db); err != nil {
				db.Close()
				return fail(err)
			}
		}
		c := &conn{
			pool:  p,
			db:    db,
			stmts: make(map[string]*sqlite3.Statement),
		}
		if i == 0 {
			p.rwConnFree <- c
		} else {
			if err := db.Execute("PRAGMA query_only=true"); err != nil {
				db.Close()
				return fail(err)
			}
			p.roConnsFree <- c
		}
	}

	return p, nil
}

// closeFree closes every connection parked in the free channels.
func (p *Pool) closeFree() {
	for {
		select {
		case c := <-p.rwConnFree:
			c.db.Close()
		case c := <-p.roConnsFree:
			c.db.Close()
		default:
			return
		}
	}
}

func (c *conn) close() error {
	for _, stmt := range c.stmts {
		stmt.Finalize()
	}
	c.stmts = nil
	return c.db.Close()
}

func (p *Pool) Close() error {
	select {
	case <-p.closed:
		return errors.New("sqlitepool: pool already closed")
	default:
	}
	close(p.closed)

	c := <-p.rwConnFree
	err := c.close()

	for i := 0; i < p.poolSize-1; i++ {
		c := <-p.roConnsFree
		if err2 := c.close(); err == nil {
			err = err2
		}
	}
	return err
}

var errPoolClosed = fmt.Errorf("%w: sqlitepool closed", context.Canceled)

// BeginTx creates a writable transaction using BEGIN IMMEDIATE.
func (p *Pool) BeginTx(ctx context.Context) (*Tx, error) {
	select {
	case <-p.closed:
		return nil, errPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case conn := <-p.rwConnFree:
		tx := &Tx{Rx: &Rx{conn: conn, inTx: true}}
		if err := tx.Exec("BEGIN IMMEDIATE;"); err != nil {
			p.rwConnFree <- conn // can't block, buffer is big enough
			return nil, err
		}
		return tx, nil
	}
}

// BeginRx creates a read-only transaction.
func (p *Pool) BeginRx(ctx context.Context) (*Rx, error) {
	select {
	case <-p.closed:
		return nil, errPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case conn := <-p.roConnsFree:
		rx := &Rx{conn: conn}
		if err := rx.Exec("BEGIN;"); err != nil {
			p.roConnsFree <- conn // can't block, buffer is big enough
			return nil, err
		}
		return rx, nil
	}
}

// Rx is a read-only transaction.
//
// It is *not* safe for concurrent use.
type Rx struct {
	conn *conn
	inTx bool // true if this Rx is embedded in a writable Tx

	// OnRollback is an optional function called after rollback.
	// If Rx is part of a Tx and it is committed, then OnRollback
	// is not called.
	OnRollback func()
}

// Exec executes an SQL statement, discarding any rows it produces.
func (rx *Rx) Exec(sql string, args ...any) error {
	return rx.conn.db.Execute(sql, args...)
}

// Prepare returns a prepared statement for sql, cached on the
// connection. The statement is owned by the pool; do not finalize it.
// Reset and bind before use.
func (rx *Rx) Prepare(sql string) *sqlite3.Statement {
	if stmt := rx.conn.stmts[sql]; stmt != nil {
		return stmt
	}
	stmt, err := rx.conn.db.Prepare(sql)
	if err != nil {
		// Cached statements are constant strings hardcoded into
		// programs. Failing to prepare one means the string is bad.
		// Ideally we would detect this at compile time, but barring
		// that, there is no point returning the error because this
		// is not something the program can recover from or handle.
		panic(err)
	}
	rx.conn.stmts[sql] = stmt
	return stmt
}

// DB returns the underlying database connection.
//
// Be careful: a transaction is in progress. Any use of BEGIN/COMMIT/ROLLBACK
// should be modelled as a nested transaction, and when done the original
// outer transaction should be left in-progress.
func (rx *Rx) DB() *sqlite3.Database {
	return rx.conn.db
}

// Rollback executes ROLLBACK and cleans up the Rx.
// It is a no-op if Rx is already rolled back.
func (rx *Rx) Rollback() {
	if rx.conn == nil {
		return
	}
	if rx.inTx {
		panic("Tx.Rx.Rollback called, only call Rollback on the Tx object")
	}
	err := rx.Exec("ROLLBACK;")
	rx.conn.pool.roConnsFree <- rx.conn
	rx.conn = nil
	if rx.OnRollback != nil {
		rx.OnRollback()
		rx.OnRollback = nil
	}
	if err != nil {
		panic(err)
	}
}

// Tx is a writable SQLite database transaction.
//
// It is *not* safe for concurrent use.
//
// A Tx contains an embedded Rx, which can be used to pass to functions
// that want to perform read-only queries on the writable Tx.
type Tx struct {
	*Rx

	// OnCommit is an optional function called after successful commit.
	OnCommit func()
}

// Rollback executes ROLLBACK and cleans up the Tx.
// It is a no-op if the Tx is already rolled back or committed.
func (tx *Tx) Rollback() {
	if tx.conn == nil {
		return
	}
	err := tx.Exec("ROLLBACK;")
	tx.conn.pool.rwConnFree <- tx.conn
	tx.conn = nil
	if tx.OnRollback != nil {
		tx.OnRollback()
		tx.OnRollback = nil
		tx.OnCommit = nil
	}
	if err != nil {
		panic(err)
	}
}

// Commit executes COMMIT and cleans up the Tx.
// It is an error to call if the Tx is already rolled back or committed.
func (tx *Tx) Commit() error {
	if tx.conn == nil {
		return errors.New("sqlitepool: tx already done")
	}
	err := tx.Exec("COMMIT;")
	tx.conn.pool.rwConnFree <- tx.conn
	tx.conn = nil
	if err != nil {
		return err
	}
	if tx.OnCommit != nil {
		tx.OnCommit()
		tx.OnCommit = nil
		tx.OnRollback = nil
	}
	return nil
}
