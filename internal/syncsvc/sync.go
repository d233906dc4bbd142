// Package syncsvc pulls the schedule for one chat from its source, normalizes
// it and lands it in the catalog. Runs are admitted through a bounded queue
// with per-chat mutual exclusion.
package syncsvc

import (
	"context"
	"log"
	"strings"
	"time"

	"quizbot/internal/models"
	"quizbot/internal/scraper"
)

// Result is what a sync run reports back to the chat.
type Result struct {
	Added    int
	Skipped  int
	Excluded int
}

// Fetcher is the slice of the scraper the orchestrator needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	FetchJSON(ctx context.Context, url string) ([]byte, error)
}

// Catalog is the slice of the store the orchestrator needs.
type Catalog interface {
	UpsertGame(ctx context.Context, game *models.Game) error
	ExcludedTypes(ctx context.Context, chatID int64) ([]string, error)
}

// Service discovers, retrieves and normalizes schedule records for one chat
// per call. It never deletes rows; pruning is a separate store operation.
type Service struct {
	fetcher    Fetcher
	catalog    Catalog
	normalizer scraper.Normalizer

	// Now is swappable for tests.
	Now func() time.Time
}

func New(fetcher Fetcher, catalog Catalog, normalizer scraper.Normalizer) *Service {
	return &Service{
		fetcher:    fetcher,
		catalog:    catalog,
		normalizer: normalizer,
		Now:        time.Now,
	}
}

// Sync runs the extractor chain for the chat's source: the JSON API when the
// source maps to a known catalog id, markup pagination otherwise or when the
// API yields nothing. Each record is normalized, filtered against the chat's
// excluded types and upserted.
func (s *Service) Sync(ctx context.Context, chatID int64, sourceURL string) (Result, error) {
	raw := s.fetchAPI(ctx, chatID, sourceURL)
	if len(raw) == 0 {
		var err error
		raw, err = s.fetchMarkup(ctx, chatID, sourceURL)
		if err != nil {
			return Result{}, err
		}
	}

	excludedTypes, err := s.catalog.ExcludedTypes(ctx, chatID)
	if err != nil {
		return Result{}, err
	}
	excluded := make(map[string]bool, len(excludedTypes))
	for _, t := range excludedTypes {
		excluded[strings.ToLower(t)] = true
	}

	var res Result
	now := s.Now()
	for _, r := range raw {
		game, ok := s.normalizer.Normalize(r, now)
		if !ok {
			res.Skipped++
			continue
		}
		if excluded[strings.ToLower(game.TypeName)] {
			res.Excluded++
			continue
		}
		game.ChatID = chatID
		game.SourceURL = sourceURL
		if err := s.catalog.UpsertGame(ctx, &game); err != nil {
			return res, err
		}
		res.Added++
	}
	log.Printf("[sync chat %d] added %d, excluded %d, skipped %d", chatID, res.Added, res.Excluded, res.Skipped)
	return res, nil
}

// fetchAPI walks the paginated JSON API. Any failure just returns what has
// been collected so far; the caller falls back to markup on an empty result.
func (s *Service) fetchAPI(ctx context.Context, chatID int64, sourceURL string) []models.RawGame {
	endpoint, ok := scraper.APIEndpoint(sourceURL, 1)
	if !ok {
		return nil
	}

	var all []models.RawGame
	totalPages := 1
	for page := 1; page <= totalPages && page <= scraper.MaxPaginationPages; page++ {
		pageURL, _ := scraper.APIEndpoint(sourceURL, page)
		body, err := s.fetcher.FetchJSON(ctx, pageURL)
		if err != nil {
			log.Printf("[sync chat %d] api page %d failed: %v", chatID, page, err)
			break
		}
		items, pages := scraper.ParseAPI(body, sourceURL)
		if pages > totalPages {
			totalPages = pages
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
	}
	if len(all) > 0 {
		log.Printf("[sync chat %d] api path delivered %d records via %s", chatID, len(all), endpoint)
	}
	return all
}

// fetchMarkup walks the HTML pagination: discover the max page from the
// on-page paginator (hard-capped), then fetch sequentially, stopping early on
// a page that adds nothing new. Sources have been seen repeating their last
// page forever.
func (s *Service) fetchMarkup(ctx context.Context, chatID int64, sourceURL string) ([]models.RawGame, error) {
	firstURL := scraper.PageURL(sourceURL, 1)
	html, err := s.fetcher.Fetch(ctx, firstURL)
	if err != nil {
		return nil, err
	}

	maxPage := scraper.MaxPageFromPaginator(html)
	if maxPage > scraper.MaxPaginationPages {
		maxPage = scraper.MaxPaginationPages
	}
	log.Printf("[sync chat %d] paginator advertises %d pages", chatID, maxPage)

	seen := map[string]bool{}
	var all []models.RawGame
	appendNew := func(items []models.RawGame) int {
		added := 0
		for _, it := range items {
			if seen[it.ExternalID] {
				continue
			}
			seen[it.ExternalID] = true
			all = append(all, it)
			added++
		}
		return added
	}

	appendNew(parsePage(html, firstURL))

	for page := 2; page <= maxPage; page++ {
		pageURL := scraper.PageURL(sourceURL, page)
		html, err := s.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		if appendNew(parsePage(html, pageURL)) == 0 {
			log.Printf("[sync chat %d] page %d yielded nothing new, stopping", chatID, page)
			break
		}
	}
	return all, nil
}

// parsePage probes the current card layout first and falls back to the
// legacy column layout.
func parsePage(html, pageURL string) []models.RawGame {
	if items := scraper.ParseCards(html, pageURL); len(items) > 0 {
		return items
	}
	return scraper.ParseColumns(html, pageURL)
}
