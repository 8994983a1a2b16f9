package jsonb

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	sqlite3 "github.com/weka-io/d2sqlite3"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		e     Element
		valid bool
	}{
		{nil, false},
		{Element{0x13, 0x31}, true},
		{Element{0xc3, 0x01, 0x31}, true},
		{Element{0xd3, 0x00, 0x01, 0x31}, true},
		{Element{0xe3, 0x00, 0x00, 0x00, 0x01, 0x31}, true},
		{Element{0xf3, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x31}, true},
		{Element{0xc3, 0x01, 0x31, 'e', 'x', 't', 'r', 'a'}, false},
		{Element{0xc3, 0x01}, false},          // truncated payload
		{Element{0x1d}, false},                // reserved kind
		{Element{0xf3, 0x00, 0x00}, false},    // truncated header
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("case-%d-% 02x", i, []byte(tt.e)), func(t *testing.T) {
			if got := tt.e.Valid(); got != tt.valid {
				t.Errorf("Valid = %v, want %v", got, tt.valid)
			}
		})
	}
}

func jsonbFromDB(t testing.TB, db *sqlite3.Database, expr string, args ...any) Element {
	t.Helper()
	stmt, err := db.Prepare(expr)
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	if err := stmt.BindAll(args...); err != nil {
		t.Fatal(err)
	}
	rr, err := stmt.Execute()
	if err != nil {
		t.Fatal(err)
	}
	v, err := rr.OneValue()
	if err != nil {
		t.Fatal(err)
	}
	e := Element(v.BlobValue())
	if !e.Valid() {
		t.Fatalf("engine produced invalid JSONB: % 02x", []byte(e))
	}
	return e
}

func TestFromEngine(t *testing.T) {
	db, err := sqlite3.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	tests := []struct {
		name string
		json string // passed through jsonb(?)
		expr string // full SQL expression, when json is empty
		kind Kind
		want any
	}{
		{name: "null", json: "null", kind: KindNull, want: nil},
		{name: "true", json: "true", kind: KindTrue, want: true},
		{name: "false", json: "false", kind: KindFalse, want: false},
		{name: "int", json: "123", kind: KindInt, want: int64(123)},
		{name: "int5", json: "0x20", kind: KindInt5, want: int64(0x20)},
		{name: "float", json: "0.5", kind: KindFloat, want: 0.5},
		{name: "float5", json: ".5", kind: KindFloat5, want: 0.5},
		{name: "text", json: `"foo"`, kind: KindText, want: "foo"},
		{name: "textj", json: `"foo\nbar"`, kind: KindTextJ, want: "foo\nbar"},
		{name: "text5", json: `"\0"`, kind: KindText5, want: "\x00"},
		{
			name: "textraw",
			expr: `SELECT jsonb_replace('null','$','exam"ple')`,
			kind: KindTextRaw,
			want: `exam"ple`,
		},
		{
			name: "array",
			json: `[1, 2, 3.5, {"foo":[3,4,false,5]}, "six", true, null, "foo\nbar"]`,
			kind: KindArray,
			want: []any{
				int64(1), int64(2), 3.5,
				map[string]any{"foo": []any{int64(3), int64(4), false, int64(5)}},
				"six", true, nil, "foo\nbar",
			},
		},
		{
			name: "object",
			json: `{"null":null,"int":123,"array":[],"t":true,"float":123.45,"obj":{}}`,
			kind: KindObject,
			want: map[string]any{
				"null":  nil,
				"int":   int64(123),
				"array": []any{},
				"t":     true,
				"float": 123.45,
				"obj":   map[string]any{},
			},
		},
		{name: "unicode escape", json: `"a\u00e9b"`, kind: KindTextJ, want: "aéb"},
		{name: "surrogate pair", json: `"\ud83d\ude00"`, kind: KindTextJ, want: "\U0001f600"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Element
			if tt.json != "" {
				e = jsonbFromDB(t, db, "SELECT jsonb(?)", tt.json)
			} else {
				e = jsonbFromDB(t, db, tt.expr)
			}
			if got := e.Kind(); got != tt.kind {
				t.Fatalf("Kind = %v, want %v", got, tt.kind)
			}
			got, err := e.Decode()
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAppendJSON(t *testing.T) {
	db, err := sqlite3.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	e := jsonbFromDB(t, db, "SELECT jsonb(?)", `[1, "two", {"three": 3.5}, null]`)
	out, err := AppendJSON(nil, e)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(out), `[1,"two",{"three":3.5},null]`; got != want {
		t.Fatalf("AppendJSON = %s, want %s", got, want)
	}

	if _, err := AppendJSON(nil, Element{0xc3, 0x01}); err == nil {
		t.Fatal("AppendJSON on malformed input succeeded")
	}
}

func TestCut(t *testing.T) {
	// Two concatenated elements: int 1, text "x".
	b := append([]byte{0x13, '1'}, 0x17, 'x')
	e, rest, ok := Cut(b)
	if !ok || e.Kind() != KindInt {
		t.Fatalf("first Cut: ok=%v kind=%v", ok, e.Kind())
	}
	e, rest, ok = Cut(rest)
	if !ok || e.Kind() != KindText {
		t.Fatalf("second Cut: ok=%v kind=%v", ok, e.Kind())
	}
	if len(rest) != 0 {
		t.Fatalf("rest=% 02x, want empty", rest)
	}
	if _, _, ok := Cut(rest); ok {
		t.Fatal("Cut of empty input reported ok")
	}
}
