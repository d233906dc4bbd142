package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatAppliesCivilOffset(t *testing.T) {
	// 21:30 UTC is already the next civil day at +3.
	instant := time.Date(2024, time.June, 1, 21, 30, 0, 0, time.UTC)
	assert.Equal(t, "02.06", FormatDayMonth(instant, 3*time.Hour))
	assert.Equal(t, "02.06 00:30", FormatDateTime(instant, 3*time.Hour))
	assert.Equal(t, "01.06 21:30", FormatDateTime(instant, 0))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "короткое", Truncate("короткое", 10))
	assert.Equal(t, "длинно...", Truncate("длинное название", 9))
	assert.Equal(t, "дл", Truncate("длинное", 2))
	// Rune-aware: Cyrillic is two bytes per rune.
	assert.Equal(t, "абв", Truncate("абвг", 3))
}

func TestPollWord(t *testing.T) {
	cases := map[int]string{
		1:  "опрос",
		2:  "опроса",
		4:  "опроса",
		5:  "опросов",
		11: "опросов",
		12: "опросов",
		21: "опрос",
		22: "опроса",
	}
	for n, want := range cases {
		assert.Equal(t, want, PollWord(n), "n=%d", n)
	}
}
