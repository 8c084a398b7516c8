// Package binpool provides the realm-wide pool of large immutable binaries.
//
// Payloads above a heap's binary threshold are published here once and
// referenced from process heaps by handle, so sending them between processes
// copies a word instead of the bytes.
//
// # Lifecycle
//
//	pool := binpool.New(budget)
//
//	ref, err := pool.Publish(data) // count = 1, pool owns data
//	err = pool.Retain(ref)         // count = 2, e.g. a message copy
//	freed, err := pool.Release(ref) // count = 1
//	freed, err = pool.Release(ref)  // count = 0, freed == true
//
// Counts are atomic and linearizable. The slot table is guarded by one lock,
// taken on publish and on the release that frees an entry.
//
// # Stale handles
//
// A Ref carries its slot's generation. Once an entry is freed its slot may be
// reused, but the generation changes, so operations on a stale Ref fail with
// an invalid_ref error instead of touching the new occupant.
//
// # Observers
//
//	pool.Subscribe(binpool.ObserverFunc(func(e binpool.Event) {
//		if e.Type == binpool.EventFreed {
//			freedBytes.Add(int64(e.Size))
//		}
//	}))
package binpool
