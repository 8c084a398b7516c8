// Package sched provides the run queues used by realm workers.
//
// Each worker owns a Deque. It pushes runnable items at the tail and pops
// from the head; when it runs dry it steals half of a random peer's deque.
// Items that do not fit, and items enqueued from outside any worker, go to
// the shared GlobalQueue, which every worker polls periodically so nothing
// queued there starves.
//
//	local := sched.NewDeque[Proc](256)
//	global := sched.NewGlobalQueue[Proc]()
//
//	local.PushOverflow(p, global)
//	p := local.Pop()
//	if p == nil {
//		p = local.Steal(peer)
//	}
package sched
