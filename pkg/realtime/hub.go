// Package realtime delivers order changes to every connected view. Changes
// reach a view through two independent sources feeding one reducer: pushed
// events from the Hub and periodic snapshots from the store.
package realtime

import (
	"sync"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
)

const defaultBuffer = 64

// Hub fans change events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event and catches up on its
// next poll.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan models.ChangeEvent
	seq  int
	log  logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		subs: make(map[int]chan models.ChangeEvent),
		log:  log,
	}
}

// Subscribe returns the event channel and a cancel func. Cancel is safe to
// call more than once and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan models.ChangeEvent, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan models.ChangeEvent, buffer)

	h.mu.Lock()
	h.seq++
	id := h.seq
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(ev models.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.Debug("subscriber lagging, event dropped", logger.Int("subscriber", id), logger.String("type", string(ev.Type)))
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
