// Package realmrt is a lightweight-process runtime for Go.
//
// A realm multiplexes many isolated processes onto a fixed number of
// worker goroutines. Processes never share memory: each owns a heap of
// tagged values reclaimed by its own copying collector, and processes talk
// only by copying messages into each other's mailboxes. Large binaries are
// the exception; they live once in a reference-counted pool and messages
// carry a handle.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	realmrt/             Root package (documentation only)
//	├── realm/           Realm, processes, workers, links, monitors, exits
//	├── sched/           Work-stealing run queues and the global queue
//	├── mailbox/         Lock-free MPSC inbox with selective receive
//	├── heap/            Per-process heap, copying collector, message fragments
//	├── binpool/         Reference-counted pool of shared binaries
//	├── pages/           Memory providers (Go heap, mmap) and the memory budget
//	├── term/            Tagged value words and Go-side terms
//	├── wasmcode/        WebAssembly guests as process code (wazero)
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Spawn a process and send it a message:
//
//	r, err := realm.New(realm.DefaultConfig())
//	pid, err := r.Spawn(realm.CodeFunc(func(p *realm.Process, budget int) realm.Result {
//		m, st := p.Receive(realm.Infinity)
//		if st == realm.Pending {
//			return realm.Block(1)
//		}
//		v, _ := p.Heap().Get(m.Value)
//		fmt.Println(term.Format(v))
//		return realm.Exit(realm.ReasonNormal, 1)
//	}))
//	r.Start(ctx)
//	r.Send(pid, term.Tuple{term.Keyword("hello"), 42})
//
// # Process Code
//
// The realm does not interpret anything itself. A process runs a Code
// value, resumed one slice at a time with a reduction budget; it reports
// whether it yielded, blocked on a receive or exited. CodeFunc adapts a Go
// closure; wasmcode runs WebAssembly guests.
//
// # Error Handling
//
// Errors carry a phase and a kind:
//
//	if errors.KindOf(err) == errors.KindNoProcess {
//		// the target has exited
//	}
//
// A process that fails exits with [:error :<kind> "detail"] as its reason.
// Corrupt-heap faults are fatal to the whole realm.
package realmrt
