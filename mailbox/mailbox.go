package mailbox

import (
	"runtime"
	"sync/atomic"

	"github.com/wippyai/realm-runtime/heap"
	"github.com/wippyai/realm-runtime/term"
)

// Kind distinguishes ordinary messages from exit signals.
type Kind uint8

const (
	KindMessage Kind = iota
	KindExit
)

// Entry is a queued item. Producers build it, the queue links it; once
// pushed it belongs to the mailbox.
type Entry struct {
	next     atomic.Pointer[Entry]
	fragment *heap.Fragment
	reason   any
	sender   term.PID
	kind     Kind
	kill     bool
}

// NewMessage wraps a message fragment.
func NewMessage(from term.PID, f *heap.Fragment) *Entry {
	return &Entry{kind: KindMessage, sender: from, fragment: f}
}

// NewExit creates an exit signal. kill marks a signal that cannot be
// trapped.
func NewExit(from term.PID, reason any, kill bool) *Entry {
	return &Entry{kind: KindExit, sender: from, reason: reason, kill: kill}
}

// Signal is an exit signal handed to the owner during Drain.
type Signal struct {
	Reason any
	From   term.PID
	Kill   bool
}

// SignalHandler decides what an exit signal turns into. Returning deliver
// appends msg to the private queue as an ordinary message from s.From.
type SignalHandler func(s Signal) (msg term.Value, deliver bool)

// Predicate is one receive clause.
type Predicate func(v term.Value) bool

// Any matches every message.
func Any(term.Value) bool { return true }

// Message is a received message.
type Message struct {
	Value  term.Value
	Sender term.PID
	// Clause is the index of the predicate that matched.
	Clause int
}

type queued struct {
	value  term.Value
	sender term.PID
}

// Mailbox is an unbounded multi-producer, single-consumer queue with
// selective receive.
//
// Producers push onto an intrusive lock-free inbox (one atomic exchange per
// send). The owner moves arrivals into a private ordered list, adopting each
// message fragment into its heap, and scans that list for receive.
type Mailbox struct {
	head     atomic.Pointer[Entry] // producers
	tail     *Entry                // owner
	stub     Entry
	arrived  atomic.Int64
	private  atomic.Int64
	inflight atomic.Int64
	closed   atomic.Bool

	heap  *heap.Heap
	queue []queued
}

// New creates a mailbox whose messages are adopted into h. The private
// queue is registered as a root set of h.
func New(h *heap.Heap) *Mailbox {
	m := &Mailbox{heap: h}
	m.head.Store(&m.stub)
	m.tail = &m.stub
	h.AddTracer(m.TraceRoots)
	return m
}

// Send enqueues e. It never blocks. If the mailbox is closed the entry is
// discarded and Send reports false.
func (m *Mailbox) Send(e *Entry) bool {
	m.inflight.Add(1)
	if m.closed.Load() {
		m.inflight.Add(-1)
		Discard(e)
		return false
	}
	m.arrived.Add(1)
	m.push(e)
	m.inflight.Add(-1)
	return true
}

func (m *Mailbox) push(e *Entry) {
	e.next.Store(nil)
	prev := m.head.Swap(e)
	prev.next.Store(e)
}

// pop removes the oldest inbox entry. It returns nil when the inbox is
// empty or when a producer is between its exchange and its link; in the
// latter case arrived stays positive and the caller retries later.
func (m *Mailbox) pop() *Entry {
	tail := m.tail
	next := tail.next.Load()
	if tail == &m.stub {
		if next == nil {
			return nil
		}
		m.tail = next
		tail = next
		next = next.next.Load()
	}
	if next != nil {
		m.tail = next
		return tail
	}
	if tail != m.head.Load() {
		return nil
	}
	m.push(&m.stub)
	if next = tail.next.Load(); next != nil {
		m.tail = next
		return tail
	}
	return nil
}

// Drain moves every arrived entry into the private queue in arrival order.
// Message fragments are adopted into the heap; exit signals go through
// onSignal. It returns the number of entries consumed from the inbox.
func (m *Mailbox) Drain(onSignal SignalHandler) int {
	n := 0
	for e := m.pop(); e != nil; e = m.pop() {
		n++
		m.arrived.Add(-1)
		switch e.kind {
		case KindMessage:
			v := m.heap.Adopt(e.fragment)
			m.append(queued{value: v, sender: e.sender})
		case KindExit:
			if onSignal == nil {
				continue
			}
			if v, ok := onSignal(Signal{From: e.sender, Reason: e.reason, Kill: e.kill}); ok {
				m.append(queued{value: v, sender: e.sender})
			}
		}
		e.fragment = nil
		e.reason = nil
	}
	return n
}

func (m *Mailbox) append(q queued) {
	m.queue = append(m.queue, q)
	m.private.Add(1)
}

// Receive scans the private queue from the oldest message, testing each one
// against preds in order. The first match is removed and returned; messages
// that match nothing keep their relative order. With no predicates every
// message matches.
func (m *Mailbox) Receive(preds ...Predicate) (Message, bool) {
	for i, q := range m.queue {
		clause := -1
		if len(preds) == 0 {
			clause = 0
		}
		for j, p := range preds {
			if p(q.value) {
				clause = j
				break
			}
		}
		if clause < 0 {
			continue
		}
		m.queue = append(m.queue[:i], m.queue[i+1:]...)
		m.private.Add(-1)
		return Message{Value: q.value, Sender: q.sender, Clause: clause}, true
	}
	return Message{}, false
}

// TraceRoots visits every message in the private queue.
func (m *Mailbox) TraceRoots(visit func(*term.Value)) {
	for i := range m.queue {
		visit(&m.queue[i].value)
	}
}

// Len returns the number of queued messages, arrived or not yet drained.
// Safe from any goroutine.
func (m *Mailbox) Len() int {
	return int(m.arrived.Load() + m.private.Load())
}

// HasArrivals reports whether entries are waiting in the inbox. Safe from
// any goroutine.
func (m *Mailbox) HasArrivals() bool {
	return m.arrived.Load() > 0
}

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool { return m.closed.Load() }

// Close stops accepting messages and discards everything still in the
// inbox. Only the owner may call it. Messages already in the private queue
// live in the heap and go away with it.
func (m *Mailbox) Close() {
	if m.closed.Swap(true) {
		return
	}
	for m.inflight.Load() > 0 {
		runtime.Gosched()
	}
	for {
		e := m.pop()
		if e == nil {
			if m.arrived.Load() <= 0 {
				break
			}
			runtime.Gosched()
			continue
		}
		m.arrived.Add(-1)
		Discard(e)
	}
	m.queue = nil
	m.private.Store(0)
}

// Discard releases an entry that will not be sent.
func Discard(e *Entry) {
	if e.fragment != nil {
		_ = e.fragment.Discard()
		e.fragment = nil
	}
}
