// Package csqlite implements the sqlh engine interfaces with cgo.
//
// The layer is mechanical: each method maps onto one C API call and
// converts arguments and results at the boundary, nothing more. All
// semantics live above it in the sqlite3 object model, so callers
// never touch cgo themselves and the unsafe surface stays in one
// place.
//
// Host callbacks (functions, aggregates, collations, hooks) are
// handed to C as small integer keys into a Go-side registry, never as
// Go pointers. Each key is allocated when the callback is installed
// and released exactly once, by the engine's destructor where the C
// API provides one, or by the replacing install where it does not.
package csqlite
