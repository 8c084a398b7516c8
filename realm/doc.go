// Package realm runs lightweight processes on a fixed set of workers.
//
// A Realm owns the workers, the process table, the memory provider and the
// binary pool. Processes are spawned with a Code value, which the realm
// resumes for one slice at a time with a reduction budget:
//
//	r, err := realm.New(realm.DefaultConfig(), realm.WithLogger(log))
//	pid, err := r.Spawn(realm.CodeFunc(func(p *realm.Process, budget int) realm.Result {
//		msg, st := p.Receive(time.Second)
//		switch st {
//		case realm.Pending:
//			return realm.Block(1)
//		case realm.TimedOut:
//			return realm.Exit(realm.ReasonNormal, 1)
//		}
//		return realm.Yield(1)
//	}))
//	err = r.Start(ctx)
//	defer r.Shutdown(ctx)
//
// Code returns Yield when its budget runs out, Block after a pending
// Receive and Exit when it is done. Panics in code become exits with a
// crash reason.
//
// # Scheduling
//
// Every worker holds one run queue per priority band. Processes spawned or
// woken by process code go to the current worker's queue; everything else
// goes through the global queue. An idle worker polls the global queue,
// then steals half of a random peer's band, then parks until notified.
//
// # Exits
//
// Exit signals travel through the target's mailbox and take effect at its
// next slice. Linked processes die with the same reason unless it is
// :normal or they trap exits, in which case they receive
// [:EXIT pid reason]. Monitors receive [:DOWN ref pid reason]. A process
// terminates exactly once; its heap, mailbox and pooled binaries are
// released before the exit event is emitted.
//
// A corrupt heap is fatal: the worker that finds it stops the realm and
// Wait returns the fault.
package realm
