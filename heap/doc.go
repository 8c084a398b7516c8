// Package heap implements the per-process heap and its copying collector.
//
// # Allocation
//
// A heap is a list of segments obtained from a pages.Provider. Allocation
// bumps downward through the active segment. When it is full the heap
// collects first and grows only if the collection did not free enough:
//
//	h, err := heap.New(heap.DefaultConfig(), provider, pool)
//	v, err := h.Put(term.Tuple{term.Keyword("ok"), 42})
//
// Exceeding Config.MaxWords after a collection fails with an out_of_memory
// error. The failure is sticky: every later allocation returns it, and the
// scheduler turns it into the process's exit reason.
//
// # Roots
//
// The collector moves objects. Roots are whatever registered Tracers visit
// (the process code's suspended state, mailbox entries) plus the temporary
// root stack managed with Protect and Unprotect. Constructors protect their
// own arguments. A caller holding other values across an allocating call
// must protect them:
//
//	mark := h.Protect(key, val)
//	pair, err := h.Tuple(key, val)  // arguments are safe
//	other, err := h.String("label") // may move key and val
//	key, val = h.Protected(mark), h.Protected(mark+1)
//	h.Unprotect(mark)
//
// A root that refers outside the heap's segments is reported as a corrupt
// error, which is fatal to the realm.
//
// # Collection
//
// Collection evacuates everything reachable into a fresh segment using an
// explicit gray stack. The old header of each moved object is overwritten
// with a boxed pointer to the copy, which is how shared objects are copied
// once. Pooled binary references that were not reached are released after
// the walk. The heap shrinks when live data falls under ShrinkRatio of its
// capacity and grows when it exceeds GrowRatio.
//
// # Fragments
//
// Messages are deep-copied into a Fragment, a standalone segment that a
// receiving heap adopts without copying again. Pooled binaries are retained,
// not copied.
package heap
