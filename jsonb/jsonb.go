// Package jsonb decodes SQLite's JSONB format, the binary encoding the
// engine's jsonb() family of SQL functions produces.
//
// See https://sqlite.org/jsonb.html.
package jsonb

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Kind is a JSONB element kind. The values are the wire format's
// element types.
type Kind byte

const (
	KindNull   Kind = 0x0
	KindTrue   Kind = 0x1
	KindFalse  Kind = 0x2
	KindInt    Kind = 0x3 // canonical JSON integer text
	KindInt5   Kind = 0x4 // JSON5 integer text (hex allowed)
	KindFloat  Kind = 0x5 // canonical JSON float text
	KindFloat5 Kind = 0x6 // JSON5 float text (.5, 1., Infinity, NaN)

	// KindText has no escapes. KindTextJ carries RFC 8259 escapes,
	// KindText5 additionally JSON5 escapes. KindTextRaw is unescaped
	// UTF-8 produced inside the engine.
	KindText    Kind = 0x7
	KindTextJ   Kind = 0x8
	KindText5   Kind = 0x9
	KindTextRaw Kind = 0xa

	KindArray  Kind = 0xb // payload is concatenated elements
	KindObject Kind = 0xc // payload is concatenated key/value pairs
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindTrue:
		return "True"
	case KindFalse:
		return "False"
	case KindInt:
		return "Int"
	case KindInt5:
		return "Int5"
	case KindFloat:
		return "Float"
	case KindFloat5:
		return "Float5"
	case KindText:
		return "Text"
	case KindTextJ:
		return "TextJ"
	case KindText5:
		return "Text5"
	case KindTextRaw:
		return "TextRaw"
	case KindArray:
		return "Array"
	case KindObject:
		return "Object"
	default:
		return "Reserved(" + strconv.Itoa(int(k)) + ")"
	}
}

func (k Kind) isText() bool { return k >= KindText && k <= KindTextRaw }

// Element is one JSONB element, header included.
type Element []byte

// ErrMalformed is returned for input that is not well-formed JSONB.
var ErrMalformed = errors.New("jsonb: malformed element")

// split reports the header length and payload length, or ok=false when
// the element is truncated or has a reserved kind.
func (e Element) split() (hdr, pay int, ok bool) {
	if len(e) == 0 || e[0]&0xf > byte(KindObject) {
		return 0, 0, false
	}
	upper := int(e[0] >> 4)
	switch upper {
	default:
		hdr, pay = 1, upper
	case 0xc:
		hdr = 2
	case 0xd:
		hdr = 3
	case 0xe:
		hdr = 5
	case 0xf:
		hdr = 9
	}
	if len(e) < hdr {
		return 0, 0, false
	}
	for _, b := range e[1:hdr] {
		pay = pay<<8 | int(b)
		if pay > math.MaxInt32 {
			return 0, 0, false
		}
	}
	if len(e) < hdr+pay {
		return 0, 0, false
	}
	return hdr, pay, true
}

// Kind reports the element's kind. Malformed input reports KindNull;
// check Valid first.
func (e Element) Kind() Kind {
	if len(e) == 0 {
		return KindNull
	}
	return Kind(e[0] & 0xf)
}

// Valid reports whether e holds exactly one well-formed element. It
// does not descend into arrays and objects; Decode does.
func (e Element) Valid() bool {
	hdr, pay, ok := e.split()
	return ok && len(e) == hdr+pay
}

// Payload returns the element's payload bytes, nil when malformed.
func (e Element) Payload() []byte {
	hdr, pay, ok := e.split()
	if !ok {
		return nil
	}
	return e[hdr : hdr+pay]
}

// Cut splits the first element off b. ok=false means b does not start
// with a well-formed element.
func Cut(b []byte) (e Element, rest []byte, ok bool) {
	hdr, pay, ok := Element(b).split()
	if !ok {
		return nil, nil, false
	}
	return Element(b[:hdr+pay]), b[hdr+pay:], true
}

// Decode converts e into nil, bool, int64, float64, string, []any or
// map[string]any, descending into arrays and objects.
func (e Element) Decode() (any, error) {
	if !e.Valid() {
		return nil, ErrMalformed
	}
	switch k := e.Kind(); k {
	case KindNull:
		return nil, nil
	case KindTrue:
		return true, nil
	case KindFalse:
		return false, nil
	case KindInt, KindInt5:
		// base 0 accepts JSON5 hex payloads.
		n, err := strconv.ParseInt(signedText(e.Payload()), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("jsonb: bad integer %q", e.Payload())
		}
		return n, nil
	case KindFloat, KindFloat5:
		f, err := parseFloat5(string(e.Payload()))
		if err != nil {
			return nil, fmt.Errorf("jsonb: bad float %q", e.Payload())
		}
		return f, nil
	case KindText, KindTextRaw:
		return string(e.Payload()), nil
	case KindTextJ, KindText5:
		return unescape(e.Payload())
	case KindArray:
		out := []any{}
		pay := e.Payload()
		for len(pay) > 0 {
			el, rest, ok := Cut(pay)
			if !ok {
				return nil, ErrMalformed
			}
			pay = rest
			v, err := el.Decode()
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case KindObject:
		out := map[string]any{}
		pay := e.Payload()
		for len(pay) > 0 {
			kel, rest, ok := Cut(pay)
			if !ok {
				return nil, ErrMalformed
			}
			pay = rest
			vel, rest, ok := Cut(pay)
			if !ok {
				return nil, ErrMalformed
			}
			pay = rest
			if !kel.Kind().isText() {
				return nil, fmt.Errorf("jsonb: object key has kind %v", kel.Kind())
			}
			kv, err := kel.Decode()
			if err != nil {
				return nil, err
			}
			v, err := vel.Decode()
			if err != nil {
				return nil, err
			}
			out[kv.(string)] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("jsonb: reserved kind %v", e.Kind())
	}
}

// Text returns the element's string value, unescaping as its kind
// requires.
func (e Element) Text() (string, error) {
	if !e.Kind().isText() {
		return "", fmt.Errorf("jsonb: Text on kind %v", e.Kind())
	}
	v, err := e.Decode()
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Int returns the element's integer value.
func (e Element) Int() (int64, error) {
	if k := e.Kind(); k != KindInt && k != KindInt5 {
		return 0, fmt.Errorf("jsonb: Int on kind %v", k)
	}
	v, err := e.Decode()
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Float returns the element's float value.
func (e Element) Float() (float64, error) {
	if k := e.Kind(); k != KindFloat && k != KindFloat5 {
		return 0, fmt.Errorf("jsonb: Float on kind %v", k)
	}
	v, err := e.Decode()
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// AppendJSON renders e as RFC 8259 JSON text appended to dst. JSON5
// payloads are normalized; object key order is not preserved.
func AppendJSON(dst []byte, e Element) ([]byte, error) {
	v, err := e.Decode()
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(dst, out...), nil
}

// signedText strips a JSON5 leading '+' that strconv rejects.
func signedText(b []byte) string {
	s := string(b)
	return strings.TrimPrefix(s, "+")
}

func parseFloat5(s string) (float64, error) {
	t := strings.TrimPrefix(s, "+")
	switch strings.TrimPrefix(t, "-") {
	case "Infinity":
		if strings.HasPrefix(t, "-") {
			return math.Inf(-1), nil
		}
		return math.Inf(1), nil
	case "NaN":
		return math.NaN(), nil
	}
	// ParseFloat accepts ".5" and "5." already.
	return strconv.ParseFloat(t, 64)
}

// unescape resolves RFC 8259 and JSON5 escapes in a string payload.
func unescape(b []byte) (string, error) {
	if !hasEscape(b) {
		return string(b), nil
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for i := 0; i < len(b); {
		c := b[i]
		if c != '\\' {
			sb.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(b) {
			return "", ErrMalformed
		}
		i++
		switch b[i] {
		case '"', '\\', '/', '\'':
			sb.WriteByte(b[i])
			i++
		case 'b':
			sb.WriteByte('\b')
			i++
		case 'f':
			sb.WriteByte('\f')
			i++
		case 'n':
			sb.WriteByte('\n')
			i++
		case 'r':
			sb.WriteByte('\r')
			i++
		case 't':
			sb.WriteByte('\t')
			i++
		case 'v':
			sb.WriteByte('\v')
			i++
		case '0':
			sb.WriteByte(0)
			i++
		case 'x':
			if i+2 >= len(b) {
				return "", ErrMalformed
			}
			n, err := strconv.ParseUint(string(b[i+1:i+3]), 16, 8)
			if err != nil {
				return "", ErrMalformed
			}
			sb.WriteRune(rune(n))
			i += 3
		case 'u':
			r, n, err := unescapeU16(b[i-1:])
			if err != nil {
				return "", err
			}
			sb.WriteRune(r)
			i += n - 1
		case '\n':
			i++ // JSON5 line continuation
		case '\r':
			i++
			if i < len(b) && b[i] == '\n' {
				i++
			}
		default:
			return "", fmt.Errorf("jsonb: bad escape \\%c", b[i])
		}
	}
	return sb.String(), nil
}

// unescapeU16 decodes a \uXXXX escape at the start of b, consuming a
// following low surrogate when present. n is bytes consumed.
func unescapeU16(b []byte) (r rune, n int, err error) {
	if len(b) < 6 || b[0] != '\\' || b[1] != 'u' {
		return 0, 0, ErrMalformed
	}
	hi, err := strconv.ParseUint(string(b[2:6]), 16, 32)
	if err != nil {
		return 0, 0, ErrMalformed
	}
	r = rune(hi)
	n = 6
	if utf16.IsSurrogate(r) && len(b) >= 12 && b[6] == '\\' && b[7] == 'u' {
		lo, err := strconv.ParseUint(string(b[8:12]), 16, 32)
		if err != nil {
			return 0, 0, ErrMalformed
		}
		if dec := utf16.DecodeRune(r, rune(lo)); dec != utf8.RuneError {
			return dec, 12, nil
		}
	}
	if utf16.IsSurrogate(r) {
		r = utf8.RuneError
	}
	return r, n, nil
}

func hasEscape(b []byte) bool {
	for _, c := range b {
		if c == '\\' {
			return true
		}
	}
	return false
}
