package tgbot

import (
	"strconv"
	"sync"
	"time"
)

// buttonMap hands out short tokens for callback payloads that do not fit
// Telegram's 64-byte callback-data limit (group keys and type names carry
// full Russian titles). Entries expire so the table cannot grow without
// bound.
type buttonMap struct {
	mu      sync.Mutex
	ttl     time.Duration
	seq     int
	entries map[string]buttonEntry
}

type buttonEntry struct {
	value   string
	created time.Time
}

func newButtonMap(ttl time.Duration) *buttonMap {
	return &buttonMap{
		ttl:     ttl,
		entries: map[string]buttonEntry{},
	}
}

// Put stores a value and returns its short token.
func (b *buttonMap) Put(value string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictLocked()
	b.seq++
	token := strconv.Itoa(b.seq)
	b.entries[token] = buttonEntry{value: value, created: time.Now()}
	return token
}

// Get resolves a token back to its value. Expired and unknown tokens yield
// false; the UI treats that as a stale keyboard.
func (b *buttonMap) Get(token string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictLocked()
	e, ok := b.entries[token]
	if !ok {
		return "", false
	}
	return e.value, true
}

func (b *buttonMap) evictLocked() {
	cutoff := time.Now().Add(-b.ttl)
	for token, e := range b.entries {
		if e.created.Before(cutoff) {
			delete(b.entries, token)
		}
	}
}
