package sqlstats

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sqlite3 "github.com/weka-io/d2sqlite3"
)

func TestQueryStats(t *testing.T) {
	tracer := &Tracer{}
	db, err := sqlite3.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.SetTracer(tracer)

	if err := db.Execute("CREATE TABLE t (c)"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := db.Execute("INSERT INTO t (c) VALUES (?)", i); err != nil {
			t.Fatal(err)
		}
	}
	rows := tracer.collect()
	byQuery := map[string]queryStats{}
	for _, row := range rows {
		byQuery[row.query] = row
	}
	if got := byQuery["CREATE TABLE t (c)"].count; got != 1 {
		t.Errorf("CREATE count=%d, want 1", got)
	}
	if got := byQuery["INSERT INTO t (c) VALUES (?)"].count; got != 3 {
		t.Errorf("INSERT count=%d, want 3", got)
	}
	if got := tracer.Queries.Value(); got != 4 {
		t.Errorf("Queries=%d, want 4", got)
	}
}

func TestHandle(t *testing.T) {
	tracer := &Tracer{}
	db, err := sqlite3.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.SetTracer(tracer)

	if err := db.Execute("CREATE TABLE t (c)"); err != nil {
		t.Fatal(err)
	}
	if err := db.Execute("INSERT INTO t (c) VALUES (1)"); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(tracer.Handle))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if want := "CREATE TABLE t "; !strings.Contains(s, want) {
		t.Fatalf("want %q, got:\n%s", want, s)
	}
	if want := "INSERT INTO t (c)"; !strings.Contains(s, want) {
		t.Fatalf("want %q, got:\n%s", want, s)
	}

	resp, err = srv.Client().Get(srv.URL + "?sort=bogus")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("bogus sort: status %d, want 400", resp.StatusCode)
	}
}
