package term

import "fmt"

// Value is a tagged machine word. The low three bits select the tag; the
// remaining 61 bits carry the payload. Immediates (nil, booleans, small
// integers, keywords, pids) live entirely inside the word. Everything else
// is boxed: the payload is the word address of an object header inside the
// owning process heap.
type Value uint64

// Tag is the low-bit discriminant of a Value.
type Tag uint8

const (
	TagSpecial Tag = iota // nil, false, true
	TagInt                // 61-bit signed integer
	TagKeyword            // interned keyword index
	TagPID                // process identifier
	TagBoxed              // word address of a heap object
	TagHeader             // object header, never a value
)

var tagNames = [...]string{
	TagSpecial: "special",
	TagInt:     "int",
	TagKeyword: "keyword",
	TagPID:     "pid",
	TagBoxed:   "boxed",
	TagHeader:  "header",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

const (
	tagBits  = 3
	tagMask  = 1<<tagBits - 1
	kindBits = 5
	kindMask = 1<<kindBits - 1

	headerShift = tagBits + kindBits
)

// Immediate constants.
const (
	Nil   Value = 0
	False Value = 1<<tagBits | Value(TagSpecial)
	True  Value = 2<<tagBits | Value(TagSpecial)
)

// Small integer range.
const (
	MaxInt = 1<<60 - 1
	MinInt = -(1 << 60)
)

// MaxHeaderSize is the largest size field a header can carry.
const MaxHeaderSize = 1<<(64-headerShift) - 1

// Kind identifies the layout of a heap object.
type Kind uint8

const (
	KindTuple  Kind = iota + 1 // size elements
	KindVector                 // size elements
	KindCons                   // head, tail
	KindString                 // size bytes, UTF-8
	KindBinary                 // size bytes, stored inline
	KindFloat                  // one word of IEEE-754 bits
	KindBigInt                 // one word, int64 outside the small range
	KindBinRef                 // one word, pooled binary handle
	KindRef                    // two words, 128-bit unique reference
)

var kindNames = [...]string{
	KindTuple:  "tuple",
	KindVector: "vector",
	KindCons:   "cons",
	KindString: "string",
	KindBinary: "binary",
	KindFloat:  "float",
	KindBigInt: "bigint",
	KindBinRef: "binref",
	KindRef:    "ref",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Traced reports whether the payload words of an object of this kind are
// Values the collector must follow.
func (k Kind) Traced() bool {
	return k == KindTuple || k == KindVector || k == KindCons
}

// Tag returns the value's tag.
func (v Value) Tag() Tag { return Tag(v & tagMask) }

func (v Value) payload() uint64 { return uint64(v) >> tagBits }

func (v Value) IsNil() bool     { return v == Nil }
func (v Value) IsBool() bool    { return v == True || v == False }
func (v Value) IsInt() bool     { return v.Tag() == TagInt }
func (v Value) IsKeyword() bool { return v.Tag() == TagKeyword }
func (v Value) IsPID() bool     { return v.Tag() == TagPID }
func (v Value) IsBoxed() bool   { return v.Tag() == TagBoxed }
func (v Value) IsHeader() bool  { return v.Tag() == TagHeader }

// Immediate reports whether the value carries no heap reference.
func (v Value) Immediate() bool {
	t := v.Tag()
	return t != TagBoxed && t != TagHeader
}

// Bool converts a Go bool.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Truthy follows the usual convention: everything except nil and false.
func (v Value) Truthy() bool { return v != Nil && v != False }

// FitsInt reports whether i can be stored as an immediate integer.
func FitsInt(i int64) bool { return i >= MinInt && i <= MaxInt }

// Int encodes a small integer. The caller must check FitsInt.
func Int(i int64) Value { return Value(uint64(i)<<tagBits | uint64(TagInt)) }

// Int returns the integer payload of a small integer value.
func (v Value) Int() int64 { return int64(v) >> tagBits }

// MakePID encodes a process identifier.
func MakePID(p PID) Value { return Value(uint64(p)<<tagBits | uint64(TagPID)) }

// PID returns the pid payload.
func (v Value) PID() PID { return PID(v.payload()) }

// Boxed encodes a reference to the object whose header lives at addr.
func Boxed(addr uint64) Value { return Value(addr<<tagBits | uint64(TagBoxed)) }

// Addr returns the word address of a boxed value.
func (v Value) Addr() uint64 { return v.payload() }

// Header builds an object header.
func Header(k Kind, size int) Value {
	return Value(uint64(size)<<headerShift | uint64(k&kindMask)<<tagBits | uint64(TagHeader))
}

// Kind returns the object kind of a header.
func (v Value) Kind() Kind { return Kind(v.payload() & kindMask) }

// Size returns the size field of a header.
func (v Value) Size() int { return int(uint64(v) >> headerShift) }

// Words returns the total number of words an object with this header
// occupies, header included.
func (v Value) Words() int { return 1 + PayloadWords(v.Kind(), v.Size()) }

// PayloadWords returns the number of words following a header of the given
// kind and size.
func PayloadWords(k Kind, size int) int {
	switch k {
	case KindTuple, KindVector:
		return size
	case KindCons, KindRef:
		return 2
	case KindString, KindBinary:
		return (size + 7) / 8
	case KindFloat, KindBigInt, KindBinRef:
		return 1
	}
	return 0
}

func (v Value) String() string {
	switch v.Tag() {
	case TagSpecial:
		switch v {
		case Nil:
			return "nil"
		case True:
			return "true"
		case False:
			return "false"
		}
	case TagInt:
		return fmt.Sprint(v.Int())
	case TagKeyword:
		return ":" + KeywordName(v)
	case TagPID:
		return v.PID().String()
	case TagBoxed:
		return fmt.Sprintf("#box<%#x>", v.Addr())
	case TagHeader:
		return fmt.Sprintf("#header<%s/%d>", v.Kind(), v.Size())
	}
	return fmt.Sprintf("#value<%#x>", uint64(v))
}
