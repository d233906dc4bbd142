package pollsvc

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizbot/internal/models"
)

var msk = 3 * time.Hour

func gameAt(id string, day int) models.Game {
	return models.Game{
		ExternalID: id,
		Title:      "Квиз, плиз! #612",
		DateTime:   time.Date(2024, time.June, day, 16, 30, 0, 0, time.UTC), // 19:30 civil
		Venue:      "Бар Причал",
	}
}

func TestGroupTitle(t *testing.T) {
	assert.Equal(t, "Квиз, плиз (Классика) #612", GroupTitle("Квиз, плиз", "612"))
	assert.Equal(t, "Квиз, плиз (Классика) #612", GroupTitle("Квиз,плиз", "612"))
	assert.Equal(t, "Квиз Плиз. Обо всём #41", GroupTitle("Обо всём", "41"))
	assert.Equal(t, "Квиз Плиз. [кино и сериалы] #9", GroupTitle("[кино и сериалы]", "9"))
}

func TestBuildGroupPollsSingleChunk(t *testing.T) {
	b := Builder{MaxOptions: 10, Offset: msk}
	group := models.GameGroup{
		GroupKey: "Квиз, плиз#612",
		TypeName: "Квиз, плиз",
		Number:   "612",
		Games:    []models.Game{gameAt("b", 9), gameAt("a", 2)},
	}

	specs := b.BuildGroupPolls(group)
	require.Len(t, specs, 1)

	spec := specs[0]
	assert.Equal(t, "Квиз, плиз (Классика) #612", spec.Title)
	assert.Equal(t, "Квиз, плиз#612", spec.GroupKey)
	require.Len(t, spec.Options, 3)

	// Chronological order regardless of input order.
	assert.Equal(t, "a", spec.Options[0].GameExternalID)
	assert.Equal(t, "b", spec.Options[1].GameExternalID)
	assert.Contains(t, spec.Options[0].Label, "19:30")
	assert.Contains(t, spec.Options[0].Label, "Бар Причал")

	last := spec.Options[2]
	assert.True(t, last.Unavailable)
	assert.Equal(t, UnavailableLabel, last.Label)
	assert.Empty(t, last.GameExternalID)
}

func TestBuildGroupPollsSplitsOverflow(t *testing.T) {
	b := Builder{MaxOptions: 10, Offset: msk}
	group := models.GameGroup{TypeName: "Квиз, плиз", Number: "612"}
	for i := 1; i <= 23; i++ {
		group.Games = append(group.Games, gameAt(fmt.Sprintf("g%02d", i), i))
	}

	specs := b.BuildGroupPolls(group)
	require.Len(t, specs, 3)

	// 23 games over 9 slots per poll: 9 + 9 + 5.
	assert.Len(t, specs[0].Options, 10)
	assert.Len(t, specs[1].Options, 10)
	assert.Len(t, specs[2].Options, 6)

	assert.Equal(t, "Квиз, плиз (Классика) #612 (1/3)", specs[0].Title)
	assert.Equal(t, "Квиз, плиз (Классика) #612 (3/3)", specs[2].Title)

	// Every poll carries its own sentinel, always last.
	for _, spec := range specs {
		last := spec.Options[len(spec.Options)-1]
		assert.True(t, last.Unavailable)
		for _, opt := range spec.Options[:len(spec.Options)-1] {
			assert.False(t, opt.Unavailable)
			assert.NotEmpty(t, opt.GameExternalID)
		}
	}
}

func TestBuildDatePollsWindow(t *testing.T) {
	b := Builder{MaxOptions: 10, Offset: msk}
	games := []models.Game{
		gameAt("in1", 2),
		gameAt("in2", 5),
		gameAt("out", 20),
	}
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.June, 8, 0, 0, 0, 0, time.UTC)

	specs := b.BuildDatePolls(games, start, end)
	require.Len(t, specs, 1)

	spec := specs[0]
	assert.Empty(t, spec.GroupKey)
	assert.Equal(t, "Игры с 01.06 по 08.06", spec.Title)
	require.Len(t, spec.Options, 3)
	assert.Equal(t, "in1", spec.Options[0].GameExternalID)
	assert.Equal(t, "in2", spec.Options[1].GameExternalID)
	assert.True(t, spec.Options[2].Unavailable)
}

func TestBuildDatePollsPartTitles(t *testing.T) {
	b := Builder{MaxOptions: 5, Offset: msk}
	var games []models.Game
	for i := 1; i <= 9; i++ {
		games = append(games, gameAt(fmt.Sprintf("g%d", i), i))
	}
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)

	specs := b.BuildDatePolls(games, start, end)
	require.Len(t, specs, 3)
	assert.Equal(t, "Игры с 01.06 по 30.06 (1/3)", specs[0].Title)
	assert.Equal(t, "Игры с 01.06 по 30.06 (2/3)", specs[1].Title)
	assert.Equal(t, "Игры с 01.06 по 30.06 (3/3)", specs[2].Title)
}

func TestBuildDatePollsEmptyWindow(t *testing.T) {
	b := Builder{MaxOptions: 10, Offset: msk}
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	specs := b.BuildDatePolls([]models.Game{gameAt("g", 20)}, start, start.AddDate(0, 0, 7))
	assert.Empty(t, specs)
}
