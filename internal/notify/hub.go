package notify

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	KindAchievementUnlocked = "achievement_unlocked"
	KindTaskReopened        = "task_reopened"
)

type Notification struct {
	UserID uint64          `json:"user_id"`
	Kind   string          `json:"kind"`
	Title  string          `json:"title"`
	Body   string          `json:"body"`
	Data   json.RawMessage `json:"data,omitempty"`
	At     time.Time       `json:"at"`
}

// Hub fans notifications out to the subscribers of each user. Slow
// subscribers miss notifications instead of blocking publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]map[chan Notification]struct{}
	buffer int
}

func NewHub() *Hub {
	return &Hub{subs: map[uint64]map[chan Notification]struct{}{}, buffer: 16}
}

// Subscribe returns a channel of the user's notifications and a func that
// unsubscribes and closes it.
func (h *Hub) Subscribe(userID uint64) (<-chan Notification, func()) {
	ch := make(chan Notification, h.buffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = map[chan Notification]struct{}{}
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers n to every current subscriber of n.UserID and returns how
// many received it.
func (h *Hub) Publish(n Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
			delivered++
		default:
		}
	}
	return delivered
}

func (h *Hub) Subscribers(userID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
