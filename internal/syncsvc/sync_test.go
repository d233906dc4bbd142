package syncsvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizbot/internal/models"
	"quizbot/internal/scraper"
)

type fakeFetcher struct {
	pages   map[string]string // url -> html
	json    map[string][]byte // url -> body
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.fetched = append(f.fetched, url)
	html, ok := f.pages[url]
	if !ok {
		return "", errors.New("no such page")
	}
	return html, nil
}

func (f *fakeFetcher) FetchJSON(_ context.Context, url string) ([]byte, error) {
	f.fetched = append(f.fetched, url)
	body, ok := f.json[url]
	if !ok {
		return nil, errors.New("no such endpoint")
	}
	return body, nil
}

type fakeCatalog struct {
	excludedTypes []string
	upserted      []models.Game
	upsertErr     error
}

func (c *fakeCatalog) UpsertGame(_ context.Context, game *models.Game) error {
	if c.upsertErr != nil {
		return c.upsertErr
	}
	c.upserted = append(c.upserted, *game)
	return nil
}

func (c *fakeCatalog) ExcludedTypes(_ context.Context, _ int64) ([]string, error) {
	return c.excludedTypes, nil
}

func card(title, number, date, tm string) string {
	return `<div class="game-card"><div class="game-card__name-wrapper">
		<a class="game-card__name" href="/game/` + title + number + `">` + title + `</a>
		<a class="game-card__name">#` + number + `</a>
	</div>
	<div class="game-card__date">` + date + `</div>
	<div class="game-card__location-wrapper"><div class="game-card__location-text">` + tm + `</div></div>
	</div>`
}

func fixedNow() time.Time {
	return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func newTestService(f *fakeFetcher, c *fakeCatalog) *Service {
	svc := New(f, c, scraper.Normalizer{Offset: 3 * time.Hour})
	svc.Now = fixedNow
	return svc
}

func TestSyncMarkupCounts(t *testing.T) {
	// Source host is outside the API table, so only markup is walked.
	source := "https://testville.quizplease.ru/schedule"
	html := card("Квиз, плиз!", "612", "02.06", "в 19:30") +
		card("Квиз, плиз!", "613", "09.06", "в 19:30") +
		card("Обо всём", "41", "05.06", "в 20:00") +
		card("Хоррор", "7", "06.06", "в 20:00") +
		card("Квиз, плиз!", "614", "скоро", "в 19:30") // unparseable date

	f := &fakeFetcher{pages: map[string]string{
		"https://testville.quizplease.ru/schedule?page=1": html,
	}}
	c := &fakeCatalog{excludedTypes: []string{"хоррор"}}

	res, err := newTestService(f, c).Sync(context.Background(), 42, source)
	require.NoError(t, err)
	assert.Equal(t, Result{Added: 3, Skipped: 1, Excluded: 1}, res)

	require.Len(t, c.upserted, 3)
	for _, g := range c.upserted {
		assert.Equal(t, int64(42), g.ChatID)
		assert.Equal(t, source, g.SourceURL)
		assert.NotEmpty(t, g.GroupKey)
	}
}

func TestSyncAPIPathPreferred(t *testing.T) {
	source := "https://spb.quizplease.ru/schedule"
	page1, _ := scraper.APIEndpoint(source, 1)

	f := &fakeFetcher{json: map[string][]byte{
		page1: []byte(`{"status":"ok","data":{"data":[
			{"id":"u1","title":"Квиз, плиз!","game_number":"612","date":"02.06.2024 19:30","place":{"title":"Бар"},"status":4}
		],"pagination":{"total_pages":1}}}`),
	}}
	c := &fakeCatalog{}

	res, err := newTestService(f, c).Sync(context.Background(), 1, source)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	// The markup strategy is never touched when the API delivers.
	for _, url := range f.fetched {
		assert.Contains(t, url, "/api/game")
	}
}

func TestSyncAPIEmptyFallsBackToMarkup(t *testing.T) {
	source := "https://spb.quizplease.ru/schedule"
	f := &fakeFetcher{
		json: map[string][]byte{}, // every API call fails
		pages: map[string]string{
			"https://spb.quizplease.ru/schedule?page=1": card("Квиз, плиз!", "612", "02.06", "в 19:30"),
		},
	}
	c := &fakeCatalog{}

	res, err := newTestService(f, c).Sync(context.Background(), 1, source)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
}

func TestSyncMarkupPaginationStopsOnRepeat(t *testing.T) {
	source := "https://testville.quizplease.ru/schedule"
	pager := `<ul><li class="game-pagination__list-item"><p>3</p></li></ul>`
	page1 := card("Квиз, плиз!", "612", "02.06", "в 19:30") + pager
	// Page 2 repeats page 1 verbatim; page 3 must never be requested.
	f := &fakeFetcher{pages: map[string]string{
		"https://testville.quizplease.ru/schedule?page=1": page1,
		"https://testville.quizplease.ru/schedule?page=2": page1,
	}}
	c := &fakeCatalog{}

	res, err := newTestService(f, c).Sync(context.Background(), 1, source)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Len(t, f.fetched, 2)
}

func TestSyncFetchFailure(t *testing.T) {
	f := &fakeFetcher{}
	c := &fakeCatalog{}
	_, err := newTestService(f, c).Sync(context.Background(), 1, "https://testville.quizplease.ru/schedule")
	assert.Error(t, err)
}
