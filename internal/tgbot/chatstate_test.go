package tgbot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatStateRoundTrip(t *testing.T) {
	c := newChatState[string](time.Minute)

	c.Put(42, "раунд")
	got, ok := c.Get(42)
	require.True(t, ok)
	assert.Equal(t, "раунд", got)

	_, ok = c.Get(99)
	assert.False(t, ok)
}

func TestChatStateExpiry(t *testing.T) {
	c := newChatState[int](10 * time.Millisecond)
	c.Put(42, 7)
	time.Sleep(25 * time.Millisecond)
	_, ok := c.Get(42)
	assert.False(t, ok)
}

func TestChatStateGetRefreshes(t *testing.T) {
	c := newChatState[int](40 * time.Millisecond)
	c.Put(42, 7)
	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		_, ok := c.Get(42)
		require.True(t, ok, "touch %d", i)
	}
}

func TestChatStateDelete(t *testing.T) {
	c := newChatState[string](time.Minute)
	c.Put(42, "x")
	c.Delete(42)
	_, ok := c.Get(42)
	assert.False(t, ok)
}
