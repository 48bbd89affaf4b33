// Package fifo implements the lock-free, multi-producer single-consumer
// queue that bridges per-source producer threads to the writer loop,
// grounded on base/queue.c of the original implementation: a singly
// linked list of nodes where the tail pointer is only ever a hint and the
// true append point is discovered by walking next pointers to the first
// nil, installed with a compare-and-swap.
package fifo

import (
	"sync/atomic"

	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
)

// maxPushAttempts bounds the CAS retry loop in Push; spec requires at
// least 100.
const maxPushAttempts = 100

type node struct {
	next atomic.Pointer[node]
	item *message.Message
}

// FIFO is a multi-producer, single-consumer queue of *message.Message.
// The zero value is not ready for use; call Init first.
type FIFO struct {
	head  atomic.Pointer[node]
	tail  atomic.Pointer[node]
	valid atomic.Bool
}

// New returns an initialised, empty FIFO.
func New() *FIFO {
	f := &FIFO{}
	f.Init()
	return f
}

// Init prepares an empty FIFO for use. It refuses to reinitialise a queue
// that is already valid or partially populated, mirroring queue_init's
// guard.
func (f *FIFO) Init() bool {
	if f.valid.Load() || f.head.Load() != nil || f.tail.Load() != nil {
		return false
	}
	f.head.Store(nil)
	f.tail.Store(nil)
	f.valid.Store(true)
	return true
}

// Push enqueues msg. It fails if the queue is not valid, or if it could
// not linearize an insertion within maxPushAttempts CAS attempts under
// contention from other producers. A false return is fatal for the
// calling producer thread: it must release msg and exit.
func (f *FIFO) Push(msg *message.Message) bool {
	if !f.valid.Load() {
		return false
	}

	n := &node{item: msg}

	// Empty-queue fast path: install both head and tail atomically.
	if f.head.CompareAndSwap(nil, n) {
		f.tail.Store(n)
		return true
	}

	attempts := 0
	for attempts < maxPushAttempts {
		// tail is only ever a hint; walk forward to the real tail.
		tail := f.tail.Load()
		if tail == nil {
			// Racing with the first installer above; retry.
			attempts++
			continue
		}
		for next := tail.next.Load(); next != nil; next = tail.next.Load() {
			tail = next
		}
		if tail.next.CompareAndSwap(nil, n) {
			// Best-effort publish of the new tail hint.
			f.tail.Store(n)
			return true
		}
		attempts++
	}
	return false
}

// Pop removes and returns the oldest message. Only a single consumer may
// ever call Pop; a failed CAS here is treated as a programming error and
// is never retried. Returns (nil, false) if the queue is empty or
// invalid.
func (f *FIFO) Pop() (*message.Message, bool) {
	if !f.valid.Load() {
		return nil, false
	}
	head := f.head.Load()
	if head == nil {
		return nil, false
	}
	next := head.next.Load()
	if !f.head.CompareAndSwap(head, next) {
		// Multiple consumers: a programming error. Do not retry.
		return nil, false
	}
	item := head.item
	head.item = nil
	return item, true
}

// Count walks the whole list and returns its length, or -1 if the queue
// is invalid. O(n).
func (f *FIFO) Count() int {
	if !f.valid.Load() {
		return -1
	}
	n := 0
	for cur := f.head.Load(); cur != nil; cur = cur.next.Load() {
		n++
	}
	return n
}

// Destroy invalidates the queue (so further Push/Pop calls fail) and
// releases every still-queued message, in that order, matching
// queue_destroy.
func (f *FIFO) Destroy() {
	f.valid.Store(false)
	cur := f.head.Load()
	for cur != nil {
		next := cur.next.Load()
		cur.item.Release()
		cur.item = nil
		cur = next
	}
	f.head.Store(nil)
	f.tail.Store(nil)
}

// Valid reports whether the queue currently accepts pushes.
func (f *FIFO) Valid() bool {
	return f.valid.Load()
}
