package csqlite

import (
	"sync"

	"github.com/weka-io/d2sqlite3/sqlh"
)

// The capsule registry maps small integer keys to the Go values backing
// engine callbacks. The C side only ever holds the key (as a void*), so
// the collector can never see a Go pointer escape through C.
var capsules struct {
	mu   sync.Mutex
	m    map[uintptr]any
	next uintptr
}

func newCapsule(v any) uintptr {
	capsules.mu.Lock()
	defer capsules.mu.Unlock()
	if capsules.m == nil {
		capsules.m = make(map[uintptr]any)
	}
	capsules.next++
	key := capsules.next
	capsules.m[key] = v
	return key
}

func capsuleValue(key uintptr) any {
	capsules.mu.Lock()
	defer capsules.mu.Unlock()
	return capsules.m[key]
}

func freeCapsule(key uintptr) {
	capsules.mu.Lock()
	defer capsules.mu.Unlock()
	if _, ok := capsules.m[key]; !ok {
		panic("csqlite: capsule freed twice or never allocated")
	}
	delete(capsules.m, key)
}

// LiveCapsules reports the number of callback registrations currently
// held on behalf of the engine. Useful for verifying that replacing or
// removing a callback released the old registration.
func LiveCapsules() int {
	capsules.mu.Lock()
	defer capsules.mu.Unlock()
	return len(capsules.m)
}

// scalarFunc is the registry payload for a scalar SQL function.
type scalarFunc struct {
	name string
	fn   sqlh.ScalarFunc
}

// aggFunc is the registry payload for an aggregate SQL function.
// Per-group state lives in active, keyed by an id stored in the
// engine's aggregate context.
type aggFunc struct {
	name     string
	newState func() (sqlh.Aggregate, error)

	mu     sync.Mutex
	nextID int64
	active map[int64]sqlh.Aggregate
}

func (a *aggFunc) add(state sqlh.Aggregate) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		a.active = make(map[int64]sqlh.Aggregate)
	}
	a.nextID++
	a.active[a.nextID] = state
	return a.nextID
}

func (a *aggFunc) get(id int64) sqlh.Aggregate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active[id]
}

func (a *aggFunc) remove(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active, id)
}

// collFunc is the registry payload for a collation.
type collFunc struct {
	name string
	cmp  func(a, b string) int
}
