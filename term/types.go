package term

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Go-side terms are the representation used at the realm boundary: spawn
// arguments, administrative sends, exit reasons and notifications. The heap
// package converts between them and heap values.
//
// Accepted Go types: nil, bool, int, int64, float64, string, []byte,
// Keyword, PID, Ref, Tuple, Vector, List and Cons.

// Keyword is a keyword by name.
type Keyword string

// Value interns the keyword.
func (k Keyword) Value() Value { return Intern(string(k)) }

func (k Keyword) String() string { return ":" + string(k) }

// PID identifies a process within a realm. Zero is never a valid pid.
type PID uint64

func (p PID) String() string { return "<" + strconv.FormatUint(uint64(p), 10) + ">" }

// Ref is a realm-unique reference, used for monitors.
type Ref = uuid.UUID

// NewRef returns a fresh reference.
func NewRef() Ref { return uuid.New() }

// Tuple is a fixed-size sequence, written [a b c].
type Tuple []any

// Vector is an indexed sequence, written {a b c}.
type Vector []any

// List is a proper list built from cons cells, written (a b c).
type List []any

// Cons is a single pair whose tail is not a list, written (a . b).
type Cons struct {
	Head any
	Tail any
}

// Format renders a Go-side term.
func Format(t any) string {
	var b strings.Builder
	format(&b, t)
	return b.String()
}

func format(b *strings.Builder, t any) {
	switch v := t.(type) {
	case nil:
		b.WriteString("nil")
	case bool:
		b.WriteString(strconv.FormatBool(v))
	case int:
		b.WriteString(strconv.Itoa(v))
	case int64:
		b.WriteString(strconv.FormatInt(v, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case string:
		b.WriteString(strconv.Quote(v))
	case []byte:
		fmt.Fprintf(b, "#bytes<%d>", len(v))
	case Keyword:
		b.WriteString(v.String())
	case PID:
		b.WriteString(v.String())
	case Ref:
		b.WriteString("#ref<" + v.String() + ">")
	case Tuple:
		seq(b, "[", "]", v)
	case Vector:
		seq(b, "{", "}", v)
	case List:
		seq(b, "(", ")", v)
	case Cons:
		b.WriteByte('(')
		format(b, v.Head)
		b.WriteString(" . ")
		format(b, v.Tail)
		b.WriteByte(')')
	case error:
		b.WriteString(strconv.Quote(v.Error()))
	default:
		fmt.Fprintf(b, "%v", v)
	}
}

func seq(b *strings.Builder, lhs, rhs string, items []any) {
	b.WriteString(lhs)
	for i, it := range items {
		if i > 0 {
			b.WriteByte(' ')
		}
		format(b, it)
	}
	b.WriteString(rhs)
}

// Equal compares two Go-side terms structurally. Integers compare by value
// regardless of int/int64.
func Equal(a, b any) bool {
	if ai, ok := asInt(a); ok {
		bi, ok := asInt(b)
		return ok && ai == bi
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool, float64, string, Keyword, PID, Ref:
		return a == b
	case []byte:
		y, ok := b.([]byte)
		return ok && string(x) == string(y)
	case Tuple:
		y, ok := b.(Tuple)
		return ok && equalSeq(x, y)
	case Vector:
		y, ok := b.(Vector)
		return ok && equalSeq(x, y)
	case List:
		y, ok := b.(List)
		return ok && equalSeq(x, y)
	case Cons:
		y, ok := b.(Cons)
		return ok && Equal(x.Head, y.Head) && Equal(x.Tail, y.Tail)
	}
	return false
}

func asInt(v any) (int64, bool) {
	switch i := v.(type) {
	case int:
		return int64(i), true
	case int64:
		return i, true
	}
	return 0, false
}

func equalSeq(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// IsNormal reports whether an exit reason is the normal reason.
func IsNormal(reason any) bool {
	k, ok := reason.(Keyword)
	return ok && k == "normal"
}

// IsKill reports whether an exit reason is the untrappable kill reason.
func IsKill(reason any) bool {
	k, ok := reason.(Keyword)
	return ok && k == "kill"
}
