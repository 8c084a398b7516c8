// Package mailbox implements the per-process message queue.
//
// Any goroutine may Send; only the owning process drains and receives.
// Senders deep-copy their message into a heap.Fragment and push an Entry
// onto a lock-free inbox:
//
//	f, err := senderHeap.Export(msg)
//	mb.Send(mailbox.NewMessage(senderPID, f))
//
// The owner periodically drains the inbox, which adopts each fragment into
// its heap and appends it to a private ordered queue, then receives
// selectively:
//
//	mb.Drain(onSignal)
//	msg, ok := mb.Receive(isReply, isTimeout)
//
// Messages from one sender are received in send order. Entries from
// different senders are ordered by the moment their push linearized, which
// is not otherwise guaranteed.
//
// # Memory ordering
//
// The inbox is an intrusive Vyukov queue. Send publishes an entry with a
// single atomic exchange of the head followed by an atomic store of the
// previous node's next pointer; the owner observes it through an atomic load
// of that pointer. Between the two steps the queue looks empty to the
// owner, so the arrived counter is incremented before the push and readers
// that see it positive retry rather than sleep.
//
// Close flips the closed flag and waits for in-flight sends to finish
// before discarding the inbox, so no entry is linked after the owner has
// stopped looking.
package mailbox
