// Package streaming routes execution events from the interpreter to live
// observers. Each execution has at most one live consumer; a new subscribe
// for the same execution detaches the previous one so an observer can
// reattach after a dropped connection.
package streaming

import (
	"sync"

	"github.com/gemihub/gemiflow/pkg/schema"
)

const channelBuffer = 64

// Hub is the event transport between interpreters and observers.
type Hub interface {
	Publish(executionID string, event schema.Event)
	Subscribe(executionID string) (<-chan schema.Event, func())
	Close(executionID string)
}

type stream struct {
	ch     chan schema.Event
	closed bool
}

// MemoryHub is the in-process Hub implementation.
type MemoryHub struct {
	mu      sync.Mutex
	streams map[string]*stream
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{streams: make(map[string]*stream)}
}

// Publish delivers an event to the execution's consumer. Non-blocking: when
// the buffer is full the oldest buffered event is dropped so the stream
// keeps pace with the interpreter.
func (h *MemoryHub) Publish(executionID string, event schema.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[executionID]
	if !ok || s.closed {
		return
	}
	for {
		select {
		case s.ch <- event:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Subscribe attaches the consumer for an execution. A previous consumer for
// the same execution is detached by closing its channel. The returned cancel
// detaches this consumer; safe to call more than once.
func (h *MemoryHub) Subscribe(executionID string) (<-chan schema.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.streams[executionID]; ok && !prev.closed {
		prev.closed = true
		close(prev.ch)
	}

	s := &stream{ch: make(chan schema.Event, channelBuffer)}
	h.streams[executionID] = s

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if cur, ok := h.streams[executionID]; ok && cur == s && !cur.closed {
			cur.closed = true
			close(cur.ch)
			delete(h.streams, executionID)
		}
	}
	return s.ch, cancel
}

// Close tears down the execution's stream once the run has finished and its
// terminal event has been flushed.
func (h *MemoryHub) Close(executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.streams[executionID]; ok {
		if !s.closed {
			s.closed = true
			close(s.ch)
		}
		delete(h.streams, executionID)
	}
}
