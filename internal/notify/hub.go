package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AllQueries subscribes to the events of every query.
const AllQueries = ""

const subscriberBuffer = 64

type subscriber chan []byte

// Hub is an in-process pub/sub of JSON-encoded events keyed by query id.
// Slow subscribers miss events instead of stalling the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[subscriber]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{subs: map[string]map[subscriber]struct{}{}, logger: logger.Named("hub")}
}

// Subscribe returns a channel of events for queryID, or for every query when
// queryID is AllQueries. The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe(queryID string) (<-chan []byte, func()) {
	ch := make(subscriber, subscriberBuffer)
	h.mu.Lock()
	set := h.subs[queryID]
	if set == nil {
		set = map[subscriber]struct{}{}
		h.subs[queryID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[queryID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, queryID)
				}
			}
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

func (h *Hub) Publish(_ context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("failed to encode event", zap.String("query_id", ev.QueryID), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for _, key := range []string{ev.QueryID, AllQueries} {
		for ch := range h.subs[key] {
			select {
			case ch <- b:
			default:
				dropped++
			}
		}
		if ev.QueryID == AllQueries {
			break
		}
	}
	if dropped > 0 {
		h.logger.Debug("slow subscribers dropped event",
			zap.String("query_id", ev.QueryID), zap.Int("dropped", dropped))
	}
}

// Subscribers counts the live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}
