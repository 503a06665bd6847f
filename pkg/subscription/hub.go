package subscription

import (
	"context"
	"sync"
)

// EventHub is an in-process EventSink that fans events out to listeners.
// Slow listeners lose events rather than blocking the lifecycle operation.
// All methods are safe for concurrent use.
type EventHub struct {
	listeners  map[*listener]struct{}
	bufferSize int
	closed     bool
	done       chan struct{}
	mu         sync.RWMutex
	cleanupWg  sync.WaitGroup
}

type listener struct {
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

// NewEventHub creates a hub with the given per-listener buffer (minimum 1).
func NewEventHub(bufferSize int) *EventHub {
	return &EventHub{
		listeners:  make(map[*listener]struct{}),
		bufferSize: max(bufferSize, 1),
		done:       make(chan struct{}),
	}
}

// Listen returns a channel receiving every published event until ctx is cancelled
// or the hub is closed, after which the channel is closed.
func (h *EventHub) Listen(ctx context.Context) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	l := &listener{ch: make(chan Event, h.bufferSize)}
	if h.closed {
		l.close()
		return l.ch
	}
	h.listeners[l] = struct{}{}

	if ctx.Done() != nil {
		h.cleanupWg.Add(1)
		go func() {
			defer h.cleanupWg.Done()
			select {
			case <-ctx.Done():
				h.remove(l)
			case <-h.done:
			}
		}()
	}

	return l.ch
}

// Publish implements EventSink. It never blocks and never fails.
func (h *EventHub) Publish(_ context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil
	}
	for l := range h.listeners {
		l.send(event)
	}
	return nil
}

// Close closes every listener channel. Safe to call multiple times.
func (h *EventHub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	for l := range h.listeners {
		l.close()
	}
	clear(h.listeners)
	h.mu.Unlock()

	h.cleanupWg.Wait()
	return nil
}

func (h *EventHub) remove(l *listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, l)
	l.close()
}

func (l *listener) send(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- event:
	default:
		// buffer full: drop for this listener only
	}
}

func (l *listener) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
}
