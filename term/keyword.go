package term

import "sync"

// keywords is shared by every process: a keyword value means the same name
// in every heap, so messages carry keywords as immediates.
var keywords = struct {
	mu     sync.RWMutex
	byName map[string]uint64
	names  []string
}{
	byName: make(map[string]uint64),
}

// Intern returns the keyword value for name, registering it on first use.
func Intern(name string) Value {
	keywords.mu.RLock()
	idx, ok := keywords.byName[name]
	keywords.mu.RUnlock()
	if ok {
		return Value(idx<<tagBits | uint64(TagKeyword))
	}

	keywords.mu.Lock()
	defer keywords.mu.Unlock()
	if idx, ok = keywords.byName[name]; !ok {
		idx = uint64(len(keywords.names))
		keywords.names = append(keywords.names, name)
		keywords.byName[name] = idx
	}
	return Value(idx<<tagBits | uint64(TagKeyword))
}

// KeywordName returns the name of a keyword value, or "" for an unknown index.
func KeywordName(v Value) string {
	idx := v.payload()
	keywords.mu.RLock()
	defer keywords.mu.RUnlock()
	if idx >= uint64(len(keywords.names)) {
		return ""
	}
	return keywords.names[idx]
}

// Frequently used keywords.
var (
	KwNormal  = Intern("normal")
	KwError   = Intern("error")
	KwExit    = Intern("EXIT")
	KwDown    = Intern("DOWN")
	KwKill    = Intern("kill")
	KwKilled  = Intern("killed")
	KwNoProc  = Intern("noproc")
	KwCrash   = Intern("crash")
	KwTimeout = Intern("timeout")
)
