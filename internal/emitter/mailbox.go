package emitter

import "sync"

// mailbox is a single-slot buffer between the run loop and the publisher.
//
// put never blocks: a new event replaces an unconsumed one and the drop is
// counted. take blocks until an event is available or the mailbox is closed.
type mailbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	event *FrameEvent

	totalDrops uint64

	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// put stores ev, overwriting any unconsumed event. It reports whether an
// event was dropped. Events put after close are ignored.
func (m *mailbox) put(ev *FrameEvent) (dropped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	if m.event != nil {
		m.totalDrops++
		dropped = true
	}
	m.event = ev
	m.cond.Signal()
	return dropped
}

// take returns the pending event, blocking until one arrives. After close
// it drains the last pending event, then returns nil.
func (m *mailbox) take() *FrameEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.event == nil && !m.closed {
		m.cond.Wait()
	}
	ev := m.event
	m.event = nil
	return ev
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.cond.Broadcast()
}

func (m *mailbox) drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalDrops
}
