package chat

import (
	"context"
	"sync"
)

// hub fans snapshots out to renderers. Each subscriber holds at most one
// pending snapshot; a newer one replaces it, so a slow reader never blocks the
// controller and always ends up with the latest state.
type hub struct {
	mu     sync.Mutex
	subs   map[uint64]chan Snapshot
	nextID uint64
	done   chan struct{}
	closed bool
}

func newHub() *hub {
	return &hub{
		subs: make(map[uint64]chan Snapshot),
		done: make(chan struct{}),
	}
}

func (h *hub) subscribe(ctx context.Context, initial Snapshot) <-chan Snapshot {
	ch := make(chan Snapshot, 1)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	ch <- initial
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			h.unsubscribe(id)
		case <-h.done:
		}
	}()
	return ch
}

func (h *hub) publish(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		offer(ch, s)
	}
}

func (h *hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(ch)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	close(h.done)
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func offer(ch chan Snapshot, s Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
