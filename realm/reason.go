package realm

import (
	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/term"
)

// Exit reasons are Go-side terms. These are the ones the realm produces.
var (
	ReasonNormal   any = term.Keyword("normal")
	ReasonKilled   any = term.Keyword("killed")
	ReasonNoProc   any = term.Keyword("noproc")
	ReasonShutdown any = term.Keyword("shutdown")
)

// ErrorReason converts err into the exit reason [:error :<kind> "detail"].
// A nil error is the normal reason.
func ErrorReason(err error) any {
	if err == nil {
		return ReasonNormal
	}
	if e, ok := errors.As(err); ok {
		detail := e.Detail
		if detail == "" {
			detail = e.Error()
		}
		return term.Tuple{term.Keyword("error"), term.Keyword(e.Kind), detail}
	}
	return term.Tuple{term.Keyword("error"), term.Keyword("error"), err.Error()}
}

// normalizeReason makes sure a reason can be copied into a heap.
func normalizeReason(reason any) any {
	switch r := reason.(type) {
	case nil:
		return ReasonNormal
	case error:
		return ErrorReason(r)
	}
	if !convertible(reason) {
		return term.Tuple{term.Keyword("error"), term.Keyword("bad_reason"), term.Format(reason)}
	}
	return reason
}

func convertible(t any) bool {
	switch v := t.(type) {
	case nil, bool, int, int64, float64, string, []byte, term.Keyword, term.PID, term.Ref:
		return true
	case term.Value:
		return v.Immediate()
	case term.Tuple:
		return allConvertible(v)
	case term.Vector:
		return allConvertible(v)
	case term.List:
		return allConvertible(v)
	case term.Cons:
		return convertible(v.Head) && convertible(v.Tail)
	}
	return false
}

func allConvertible(items []any) bool {
	for _, it := range items {
		if !convertible(it) {
			return false
		}
	}
	return true
}
