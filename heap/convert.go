package heap

import (
	"fmt"
	"strconv"

	"github.com/wippyai/realm-runtime/binpool"
	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/term"
)

// Put converts a Go-side term into a heap value. See package term for the
// accepted types.
func (h *Heap) Put(t any) (term.Value, error) {
	return h.put(t, nil)
}

func (h *Heap) put(t any, path []string) (term.Value, error) {
	switch v := t.(type) {
	case nil:
		return term.Nil, nil
	case bool:
		return term.Bool(v), nil
	case int:
		return h.Int(int64(v))
	case int64:
		return h.Int(v)
	case float64:
		return h.Float(v)
	case string:
		return h.String(v)
	case []byte:
		return h.Binary(v)
	case term.Keyword:
		return v.Value(), nil
	case term.PID:
		return term.MakePID(v), nil
	case term.Ref:
		return h.MakeRef(v)
	case term.Value:
		if !v.Immediate() {
			return term.Nil, errors.New(errors.PhaseConvert, errors.KindInvalidInput).
				Path(path...).
				Detail("raw boxed value %v cannot be converted", v).
				Build()
		}
		return v, nil
	case term.Tuple:
		return h.putSeq(term.KindTuple, v, path)
	case term.Vector:
		return h.putSeq(term.KindVector, v, path)
	case term.List:
		return h.putList(v, term.Nil, path)
	case term.Cons:
		tail, err := h.put(v.Tail, append(path, "tail"))
		if err != nil {
			return term.Nil, err
		}
		mark := h.Protect(tail)
		head, err := h.put(v.Head, append(path, "head"))
		if err != nil {
			h.Unprotect(mark)
			return term.Nil, err
		}
		tail = h.protect[mark]
		h.Unprotect(mark)
		return h.Cons(head, tail)
	}
	return term.Nil, errors.New(errors.PhaseConvert, errors.KindUnsupported).
		Path(path...).
		Detail("cannot store Go type %T", t).
		Value(t).
		Build()
}

func (h *Heap) putSeq(kind term.Kind, items []any, path []string) (term.Value, error) {
	mark := len(h.protect)
	for i, it := range items {
		v, err := h.put(it, append(path, strconv.Itoa(i)))
		if err != nil {
			h.Unprotect(mark)
			return term.Nil, err
		}
		h.protect = append(h.protect, v)
	}
	return h.build(kind, mark)
}

func (h *Heap) putList(items []any, tail term.Value, path []string) (term.Value, error) {
	acc := h.Protect(tail)
	defer h.Unprotect(acc)
	for i := len(items) - 1; i >= 0; i-- {
		v, err := h.put(items[i], append(path, strconv.Itoa(i)))
		if err != nil {
			return term.Nil, err
		}
		cell, err := h.Cons(v, h.protect[acc])
		if err != nil {
			return term.Nil, err
		}
		h.protect[acc] = cell
	}
	return h.protect[acc], nil
}

// Get converts a heap value into a Go-side term. Strings become string,
// binaries []byte (copied), integers int64 and proper lists term.List.
func (h *Heap) Get(v term.Value) (any, error) {
	return h.get(v, nil)
}

func (h *Heap) get(v term.Value, path []string) (any, error) {
	switch v.Tag() {
	case term.TagSpecial:
		switch v {
		case term.Nil:
			return nil, nil
		case term.True:
			return true, nil
		case term.False:
			return false, nil
		}
	case term.TagInt:
		return v.Int(), nil
	case term.TagKeyword:
		return term.Keyword(term.KeywordName(v)), nil
	case term.TagPID:
		return v.PID(), nil
	case term.TagBoxed:
		return h.getObject(v, path)
	}
	return nil, errors.New(errors.PhaseConvert, errors.KindCorrupt).
		Path(path...).
		Detail("unexpected word %#x", uint64(v)).
		Build()
}

func (h *Heap) getObject(v term.Value, path []string) (any, error) {
	obj, err := h.object(v)
	if err != nil {
		return nil, err
	}
	hdr := term.Value(obj[0])

	switch hdr.Kind() {
	case term.KindTuple, term.KindVector:
		items := make([]any, hdr.Size())
		for i := range items {
			if items[i], err = h.get(term.Value(obj[1+i]), append(path, strconv.Itoa(i))); err != nil {
				return nil, err
			}
		}
		if hdr.Kind() == term.KindTuple {
			return term.Tuple(items), nil
		}
		return term.Vector(items), nil
	case term.KindCons:
		return h.getList(v, path)
	case term.KindString:
		return string(unpackBytes(obj[1:], hdr.Size())), nil
	case term.KindBinary:
		return unpackBytes(obj[1:], hdr.Size()), nil
	case term.KindBinRef:
		b, err := h.pool.Bytes(binpool.Ref(obj[1]))
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), b...), nil
	case term.KindFloat:
		return h.FloatValue(v)
	case term.KindBigInt:
		return int64(obj[1]), nil
	case term.KindRef:
		return h.RefValue(v)
	}
	return nil, errors.New(errors.PhaseConvert, errors.KindCorrupt).
		Path(path...).
		Detail("unknown object kind %v", hdr.Kind()).
		Build()
}

// getList walks a cons chain iteratively. A chain ending in nil becomes a
// term.List; any other tail produces nested term.Cons values.
func (h *Heap) getList(v term.Value, path []string) (any, error) {
	var items []any
	cur := v
	for h.Kind(cur) == term.KindCons {
		obj, err := h.object(cur)
		if err != nil {
			return nil, err
		}
		item, err := h.get(term.Value(obj[1]), append(path, strconv.Itoa(len(items))))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		cur = term.Value(obj[2])
	}
	if cur == term.Nil {
		return term.List(items), nil
	}

	tail, err := h.get(cur, append(path, "tail"))
	if err != nil {
		return nil, err
	}
	for i := len(items) - 1; i >= 0; i-- {
		tail = term.Cons{Head: items[i], Tail: tail}
	}
	return tail, nil
}

// Sprint renders a heap value for diagnostics.
func (h *Heap) Sprint(v term.Value) string {
	t, err := h.Get(v)
	if err != nil {
		return fmt.Sprintf("#invalid<%v>", err)
	}
	return term.Format(t)
}
