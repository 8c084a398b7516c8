package heap

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/wippyai/realm-runtime/binpool"
	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/term"
)

// build allocates an object of kind whose payload Values are the protected
// slots from mark onward, then pops them.
func (h *Heap) build(kind term.Kind, mark int) (term.Value, error) {
	n := len(h.protect) - mark
	addr, err := h.alloc(1 + n)
	if err != nil {
		h.Unprotect(mark)
		return term.Nil, err
	}
	w := h.words(addr, 1+n)
	w[0] = uint64(term.Header(kind, n))
	for i, v := range h.protect[mark:] {
		w[1+i] = uint64(v)
	}
	h.Unprotect(mark)
	return term.Boxed(addr), nil
}

// raw allocates an object whose payload holds no Values.
func (h *Heap) raw(kind term.Kind, size int) (uint64, []uint64, error) {
	if size > term.MaxHeaderSize {
		return 0, nil, errors.New(errors.PhaseAlloc, errors.KindOutOfBounds).
			Detail("%s of size %d exceeds the header limit", kind, size).
			Build()
	}
	n := 1 + term.PayloadWords(kind, size)
	addr, err := h.alloc(n)
	if err != nil {
		return 0, nil, err
	}
	w := h.words(addr, n)
	w[0] = uint64(term.Header(kind, size))
	return addr, w[1:], nil
}

// Tuple allocates a tuple of elems.
func (h *Heap) Tuple(elems ...term.Value) (term.Value, error) {
	return h.build(term.KindTuple, h.Protect(elems...))
}

// Vector allocates a vector of elems.
func (h *Heap) Vector(elems ...term.Value) (term.Value, error) {
	return h.build(term.KindVector, h.Protect(elems...))
}

// Cons allocates a pair.
func (h *Heap) Cons(head, tail term.Value) (term.Value, error) {
	return h.build(term.KindCons, h.Protect(head, tail))
}

// List builds a proper list of elems.
func (h *Heap) List(elems ...term.Value) (term.Value, error) {
	mark := h.Protect(elems...)
	defer h.Unprotect(mark)

	acc := h.Protect(term.Nil)
	for i := len(elems) - 1; i >= 0; i-- {
		cell, err := h.Cons(h.protect[mark+i], h.protect[acc])
		if err != nil {
			return term.Nil, err
		}
		h.protect[acc] = cell
	}
	return h.protect[acc], nil
}

// Int returns an immediate for small integers and a boxed big integer
// otherwise.
func (h *Heap) Int(i int64) (term.Value, error) {
	if term.FitsInt(i) {
		return term.Int(i), nil
	}
	addr, w, err := h.raw(term.KindBigInt, 1)
	if err != nil {
		return term.Nil, err
	}
	w[0] = uint64(i)
	return term.Boxed(addr), nil
}

// Float allocates a boxed float.
func (h *Heap) Float(f float64) (term.Value, error) {
	addr, w, err := h.raw(term.KindFloat, 1)
	if err != nil {
		return term.Nil, err
	}
	w[0] = math.Float64bits(f)
	return term.Boxed(addr), nil
}

// String allocates a string. Strings are always stored inline.
func (h *Heap) String(s string) (term.Value, error) {
	addr, w, err := h.raw(term.KindString, len(s))
	if err != nil {
		return term.Nil, err
	}
	packBytes(w, []byte(s))
	return term.Boxed(addr), nil
}

// Binary stores b. Payloads above the binary threshold are published to the
// pool and referenced; smaller ones are copied inline.
func (h *Heap) Binary(b []byte) (term.Value, error) {
	if h.pool == nil || len(b) <= h.cfg.BinaryThreshold {
		addr, w, err := h.raw(term.KindBinary, len(b))
		if err != nil {
			return term.Nil, err
		}
		packBytes(w, b)
		return term.Boxed(addr), nil
	}

	ref, err := h.pool.Publish(append([]byte(nil), b...))
	if err != nil {
		return term.Nil, err
	}
	v, err := h.binRef(ref, len(b))
	if err != nil {
		_, _ = h.pool.Release(ref)
		return term.Nil, err
	}
	return v, nil
}

// AdoptBinary stores a reference to an already published binary, taking
// ownership of one count on ref.
func (h *Heap) AdoptBinary(ref binpool.Ref) (term.Value, error) {
	if h.pool == nil {
		return term.Nil, errors.NotInitialized(errors.PhaseAlloc, "binary pool")
	}
	b, err := h.pool.Bytes(ref)
	if err != nil {
		return term.Nil, err
	}
	return h.binRef(ref, len(b))
}

func (h *Heap) binRef(ref binpool.Ref, size int) (term.Value, error) {
	addr, w, err := h.raw(term.KindBinRef, size)
	if err != nil {
		return term.Nil, err
	}
	w[0] = uint64(ref)
	h.bins = append(h.bins, addr)
	return term.Boxed(addr), nil
}

// MakeRef allocates a unique reference.
func (h *Heap) MakeRef(r term.Ref) (term.Value, error) {
	addr, w, err := h.raw(term.KindRef, 2)
	if err != nil {
		return term.Nil, err
	}
	w[0] = binary.BigEndian.Uint64(r[:8])
	w[1] = binary.BigEndian.Uint64(r[8:])
	return term.Boxed(addr), nil
}

// Kind returns the object kind of v, or 0 for immediates.
func (h *Heap) Kind(v term.Value) term.Kind {
	if !v.IsBoxed() {
		return 0
	}
	obj, err := h.object(v)
	if err != nil {
		return 0
	}
	return term.Value(obj[0]).Kind()
}

func (h *Heap) expect(v term.Value, kinds ...term.Kind) ([]uint64, error) {
	if !v.IsBoxed() {
		return nil, errors.TypeMismatch(errors.PhaseConvert, nil, kinds[0].String(), v.Tag().String())
	}
	obj, err := h.object(v)
	if err != nil {
		return nil, err
	}
	k := term.Value(obj[0]).Kind()
	for _, want := range kinds {
		if k == want {
			return obj, nil
		}
	}
	return nil, errors.TypeMismatch(errors.PhaseConvert, nil, kinds[0].String(), k.String())
}

// Arity returns the element count of a tuple or vector.
func (h *Heap) Arity(v term.Value) (int, error) {
	obj, err := h.expect(v, term.KindTuple, term.KindVector)
	if err != nil {
		return 0, err
	}
	return term.Value(obj[0]).Size(), nil
}

// Elem returns element i of a tuple or vector.
func (h *Heap) Elem(v term.Value, i int) (term.Value, error) {
	obj, err := h.expect(v, term.KindTuple, term.KindVector)
	if err != nil {
		return term.Nil, err
	}
	n := term.Value(obj[0]).Size()
	if i < 0 || i >= n {
		return term.Nil, errors.OutOfBounds(errors.PhaseConvert, nil, i, n)
	}
	return term.Value(obj[1+i]), nil
}

// Head returns the head of a pair.
func (h *Heap) Head(v term.Value) (term.Value, error) {
	obj, err := h.expect(v, term.KindCons)
	if err != nil {
		return term.Nil, err
	}
	return term.Value(obj[1]), nil
}

// Tail returns the tail of a pair.
func (h *Heap) Tail(v term.Value) (term.Value, error) {
	obj, err := h.expect(v, term.KindCons)
	if err != nil {
		return term.Nil, err
	}
	return term.Value(obj[2]), nil
}

// IntValue returns the integer behind a small or big integer.
func (h *Heap) IntValue(v term.Value) (int64, error) {
	if v.IsInt() {
		return v.Int(), nil
	}
	obj, err := h.expect(v, term.KindBigInt)
	if err != nil {
		return 0, err
	}
	return int64(obj[1]), nil
}

// FloatValue returns the float behind a boxed float.
func (h *Heap) FloatValue(v term.Value) (float64, error) {
	obj, err := h.expect(v, term.KindFloat)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(obj[1]), nil
}

// RefValue returns the reference behind a boxed ref.
func (h *Heap) RefValue(v term.Value) (term.Ref, error) {
	var r term.Ref
	obj, err := h.expect(v, term.KindRef)
	if err != nil {
		return r, err
	}
	binary.BigEndian.PutUint64(r[:8], obj[1])
	binary.BigEndian.PutUint64(r[8:], obj[2])
	return r, nil
}

// BinaryRef returns the pool handle of a pooled binary.
func (h *Heap) BinaryRef(v term.Value) (binpool.Ref, bool) {
	obj, err := h.expect(v, term.KindBinRef)
	if err != nil {
		return 0, false
	}
	return binpool.Ref(obj[1]), true
}

// Bytes returns the content of a string or binary. For pooled binaries the
// returned slice is shared and must not be modified.
func (h *Heap) Bytes(v term.Value) ([]byte, error) {
	obj, err := h.expect(v, term.KindBinary, term.KindString, term.KindBinRef)
	if err != nil {
		return nil, err
	}
	hdr := term.Value(obj[0])
	if hdr.Kind() == term.KindBinRef {
		return h.pool.Bytes(binpool.Ref(obj[1]))
	}
	return unpackBytes(obj[1:], hdr.Size()), nil
}

// StringValue returns the content of a string.
func (h *Heap) StringValue(v term.Value) (string, error) {
	obj, err := h.expect(v, term.KindString)
	if err != nil {
		return "", err
	}
	b := unpackBytes(obj[1:], term.Value(obj[0]).Size())
	if !utf8.Valid(b) {
		return "", errors.New(errors.PhaseConvert, errors.KindInvalidInput).
			Detail("string is not valid UTF-8").
			Build()
	}
	return string(b), nil
}

func packBytes(dst []uint64, b []byte) {
	for i := 0; i < len(b); i += 8 {
		var chunk [8]byte
		copy(chunk[:], b[i:])
		dst[i/8] = binary.LittleEndian.Uint64(chunk[:])
	}
}

func unpackBytes(src []uint64, n int) []byte {
	out := make([]byte, len(src)*8)
	for i, w := range src {
		binary.LittleEndian.PutUint64(out[i*8:], w)
	}
	return out[:n]
}
