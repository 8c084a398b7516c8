package heap

import (
	"bytes"

	"github.com/wippyai/realm-runtime/term"
)

// Equal reports whether a in ha and b in hb have the same content. The two
// values may live in different heaps. Inline and pooled binaries with the
// same bytes are equal.
func Equal(ha *Heap, a term.Value, hb *Heap, b term.Value) bool {
	if a.Immediate() || b.Immediate() {
		return a == b
	}
	oa, err := ha.object(a)
	if err != nil {
		return false
	}
	ob, err := hb.object(b)
	if err != nil {
		return false
	}
	ka, kb := term.Value(oa[0]).Kind(), term.Value(ob[0]).Kind()

	if isBytes(ka) && isBytes(kb) {
		if (ka == term.KindString) != (kb == term.KindString) {
			return false
		}
		ba, err := ha.Bytes(a)
		if err != nil {
			return false
		}
		bb, err := hb.Bytes(b)
		if err != nil {
			return false
		}
		return bytes.Equal(ba, bb)
	}

	if ka != kb || len(oa) != len(ob) || oa[0] != ob[0] {
		return false
	}
	if !ka.Traced() {
		for i := 1; i < len(oa); i++ {
			if oa[i] != ob[i] {
				return false
			}
		}
		return true
	}
	for i := 1; i < len(oa); i++ {
		if !Equal(ha, term.Value(oa[i]), hb, term.Value(ob[i])) {
			return false
		}
	}
	return true
}

func isBytes(k term.Kind) bool {
	return k == term.KindString || k == term.KindBinary || k == term.KindBinRef
}
