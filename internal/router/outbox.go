package router

import (
	"sync"

	"github.com/rickgao/proximity-voice/internal/protocol"
)

// Outbox is a bounded per-connection send queue.
//
// Audio frames go into a fixed-size ring; when the ring is full the newest
// frame is dropped. Roster frames use a single slot that is overwritten by
// newer rosters, so a roster is never lost to audio pressure. A pending
// roster is handed out before queued audio.
type Outbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []protocol.Frame
	head   int // read position
	tail   int // write position
	count  int
	roster *protocol.Frame
	closed bool

	// Stats
	delivered int64
	dropped   int64
	coalesced int64
}

// NewOutbox creates an outbox holding up to capacity audio frames.
func NewOutbox(capacity int) *Outbox {
	if capacity < 1 {
		capacity = 1
	}
	o := &Outbox{
		buf: make([]protocol.Frame, capacity),
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// PushAudio queues an audio frame.
// Returns ErrOutboxFull if the ring is full (the frame is dropped) and
// ErrOutboxClosed after Close.
func (o *Outbox) PushAudio(frame protocol.Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}
	if o.count == len(o.buf) {
		o.dropped++
		return ErrOutboxFull
	}

	o.buf[o.tail] = frame
	o.tail = (o.tail + 1) % len(o.buf)
	o.count++

	o.cond.Signal()
	return nil
}

// PushRoster replaces any pending roster frame.
// Returns ErrOutboxClosed after Close.
func (o *Outbox) PushRoster(frame protocol.Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}
	if o.roster != nil {
		o.coalesced++
	}
	f := frame
	o.roster = &f

	o.cond.Signal()
	return nil
}

// Push routes a frame to PushRoster or PushAudio by kind.
func (o *Outbox) Push(frame protocol.Frame) error {
	if frame.Kind == protocol.FrameRoster {
		return o.PushRoster(frame)
	}
	return o.PushAudio(frame)
}

// Receive removes and returns the next frame.
// Blocks until a frame is available or the outbox is closed.
// Returns false once the outbox is closed and empty.
func (o *Outbox) Receive() (protocol.Frame, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for o.roster == nil && o.count == 0 && !o.closed {
		o.cond.Wait()
	}

	return o.popLocked()
}

// TryReceive returns the next frame without blocking.
func (o *Outbox) TryReceive() (protocol.Frame, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.popLocked()
}

// Close stops accepting frames and wakes all waiters.
// Frames already queued can still be received.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	o.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Len returns the number of queued frames, roster included.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lenLocked()
}

// Stats returns outbox statistics.
func (o *Outbox) Stats() OutboxStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return OutboxStats{
		Queued:    o.lenLocked(),
		Capacity:  len(o.buf),
		Delivered: o.delivered,
		Dropped:   o.dropped,
		Coalesced: o.coalesced,
	}
}

// OutboxStats contains outbox statistics.
type OutboxStats struct {
	Queued    int
	Capacity  int   // Audio ring size
	Delivered int64 // Frames handed to the writer
	Dropped   int64 // Audio frames rejected while full
	Coalesced int64 // Roster frames replaced before delivery
}

// popLocked dequeues the next frame. Must be called with lock held.
func (o *Outbox) popLocked() (protocol.Frame, bool) {
	if o.roster != nil {
		f := *o.roster
		o.roster = nil
		o.delivered++
		return f, true
	}

	if o.count == 0 {
		return protocol.Frame{}, false
	}

	f := o.buf[o.head]
	o.buf[o.head] = protocol.Frame{} // Clear reference for GC
	o.head = (o.head + 1) % len(o.buf)
	o.count--
	o.delivered++
	return f, true
}

func (o *Outbox) lenLocked() int {
	n := o.count
	if o.roster != nil {
		n++
	}
	return n
}
