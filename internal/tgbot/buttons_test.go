package tgbot

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestButtonMapRoundTrip(t *testing.T) {
	b := newButtonMap(time.Minute)

	longKey := "Квиз, плиз#" + strings.Repeat("1", 100)
	token := b.Put(longKey)
	assert.Less(t, len(token), 64-len("ge:"))

	got, ok := b.Get(token)
	require.True(t, ok)
	assert.Equal(t, longKey, got)
}

func TestButtonMapUnknownToken(t *testing.T) {
	b := newButtonMap(time.Minute)
	_, ok := b.Get("999")
	assert.False(t, ok)
}

func TestButtonMapExpiry(t *testing.T) {
	b := newButtonMap(10 * time.Millisecond)
	token := b.Put("значение")
	time.Sleep(25 * time.Millisecond)
	_, ok := b.Get(token)
	assert.False(t, ok)
}

func TestButtonMapTokensAreDistinct(t *testing.T) {
	b := newButtonMap(time.Minute)
	t1 := b.Put("a")
	t2 := b.Put("a")
	assert.NotEqual(t, t1, t2)
}
