package events

import (
	"context"
	"sync"

	"github.com/suPer8Hu/hackchat/internal/chat"
)

// Hub fans committed changes out to live subscribers. A subscriber that
// falls behind loses changes instead of stalling the store.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan chat.Change
	nextID int
	size   int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{subs: make(map[int]chan chat.Change), size: buffer}
}

// Subscribe returns a channel of changes and a func that releases it.
func (h *Hub) Subscribe() (<-chan chat.Change, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan chat.Change, h.size)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Committed(_ context.Context, change chat.Change, _ chat.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- change:
		default:
		}
	}
}
