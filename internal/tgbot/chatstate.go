package tgbot

import (
	"sync"
	"time"
)

// chatState holds one value per chat with the same time-based eviction as
// buttonMap. Abandoned questionnaire steps and stale winner lists fall out
// instead of living for the process lifetime.
type chatState[T any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]chatEntry[T]
}

type chatEntry[T any] struct {
	value   T
	touched time.Time
}

func newChatState[T any](ttl time.Duration) *chatState[T] {
	return &chatState[T]{
		ttl:     ttl,
		entries: map[int64]chatEntry[T]{},
	}
}

func (c *chatState[T]) Put(chatID int64, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked()
	c.entries[chatID] = chatEntry[T]{value: value, touched: time.Now()}
}

// Get returns the chat's value and refreshes its eviction clock.
func (c *chatState[T]) Get(chatID int64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked()
	e, ok := c.entries[chatID]
	if !ok {
		var zero T
		return zero, false
	}
	e.touched = time.Now()
	c.entries[chatID] = e
	return e.value, true
}

func (c *chatState[T]) Delete(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, chatID)
}

func (c *chatState[T]) evictLocked() {
	cutoff := time.Now().Add(-c.ttl)
	for id, e := range c.entries {
		if e.touched.Before(cutoff) {
			delete(c.entries, id)
		}
	}
}
