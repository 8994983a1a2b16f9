// Package sqlstats implements an SQLite Tracer that collects query stats.
package sqlstats

import (
	"expvar"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weka-io/d2sqlite3/sqlh"
)

// Tracer collects per-query statistics.
//
// To use, attach it to a connection with Database.SetTracer (or pass it
// to sqlitepool.NewPool or sqldriver.Connector), then serve the debug
// page with http.HandlerFunc(tracer.Handle).
type Tracer struct {
	// Once a query has been seen once, only the read lock
	// is required to update stats.
	mu      sync.RWMutex
	queries map[string]*queryStats // query -> stats

	// Queries counts every traced query across all statements.
	Queries expvar.Int
	// Errors counts traced queries that returned an error.
	Errors expvar.Int
}

type queryStats struct {
	query string

	// When inside the queries map all fields must be accessed as atomics.
	count    int64
	errors   int64
	duration int64 // time.Duration
	mean     int64
}

var _ sqlh.Tracer = (*Tracer)(nil)

func (t *Tracer) queryStats(query string) *queryStats {
	t.mu.RLock()
	stats := t.queries[query]
	t.mu.RUnlock()

	if stats != nil {
		return stats
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.queries == nil {
		t.queries = make(map[string]*queryStats)
	}
	stats = t.queries[query]
	if stats == nil {
		stats = &queryStats{query: query}
		t.queries[query] = stats
	}
	return stats
}

func (t *Tracer) collect() (rows []queryStats) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for query, s := range t.queries {
		row := queryStats{
			query:    query,
			count:    atomic.LoadInt64(&s.count),
			errors:   atomic.LoadInt64(&s.errors),
			duration: atomic.LoadInt64(&s.duration),
		}
		row.mean = row.duration / row.count
		rows = append(rows, row)
	}
	return rows
}

func (t *Tracer) Query(id sqlh.TraceConnID, query string, duration time.Duration, err error) {
	stats := t.queryStats(query)

	atomic.AddInt64(&stats.count, 1)
	atomic.AddInt64(&stats.duration, int64(duration))
	t.Queries.Add(1)
	if err != nil {
		atomic.AddInt64(&stats.errors, 1)
		t.Errors.Add(1)
	}
}

func (t *Tracer) Handle(w http.ResponseWriter, r *http.Request) {
	getArgs, _ := url.ParseQuery(r.URL.RawQuery)
	sortParam := strings.TrimSpace(getArgs.Get("sort"))
	rows := t.collect()

	switch sortParam {
	case "", "count":
		sort.Slice(rows, func(i, j int) bool { return rows[i].count > rows[j].count })
	case "query":
		sort.Slice(rows, func(i, j int) bool { return rows[i].query < rows[j].query })
	case "duration":
		sort.Slice(rows, func(i, j int) bool { return rows[i].duration > rows[j].duration })
	case "errors":
		sort.Slice(rows, func(i, j int) bool { return rows[i].errors > rows[j].errors })
	case "mean":
		sort.Slice(rows, func(i, j int) bool { return rows[i].mean > rows[j].mean })
	default:
		http.Error(w, fmt.Sprintf("unknown sort: %q", sortParam), 400)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(200)
	fmt.Fprintf(w, `<!DOCTYPE html><html><body>
	<p>Trace of queries run via github.com/weka-io/d2sqlite3.</p>
	<table border="1">
	<tr>
	<th><a href="?sort=query">Query</a></th>
	<th><a href="?sort=count">Count</a></th>
	<th><a href="?sort=duration">Duration</a></th>
	<th><a href="?sort=mean">Mean</a></th>
	<th><a href="?sort=errors">Errors</a></th>
	</tr>
	`)
	for _, row := range rows {
		fmt.Fprintf(w, "<tr><td>%s</td><td>%d</td><td>%s</td><td>%s</td><td>%d</td></tr>\n",
			row.query,
			row.count,
			time.Duration(row.duration).Round(time.Second),
			time.Duration(row.mean).Round(time.Millisecond),
			row.errors,
		)
	}
	fmt.Fprintf(w, "</table></body></html>")
}
