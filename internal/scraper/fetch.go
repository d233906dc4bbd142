package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/chromedp/chromedp"
)

// ErrAntiBot marks content that matched a challenge signature. The fetcher
// handles it internally by escalating strategies; callers only see it when
// every strategy is exhausted.
var ErrAntiBot = errors.New("anti-bot challenge page")

var antiBotPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)подтвердите.*(не\s*робот|robot)`),
	regexp.MustCompile(`(?i)captcha`),
	regexp.MustCompile(`(?i)cloudflare`),
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

const (
	httpRetries      = 2
	httpTimeout      = 25 * time.Second
	browserAttempts  = 3
	navTimeout       = 90 * time.Second
	maxScrollRounds  = 120
	scrollDelay      = 800 * time.Millisecond
	stagnantRoundCap = 4

	recordSelector = ".schedule-column, .game-card__wrap, .game-card"
)

func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

func containsChallenge(html string) bool {
	for _, p := range antiBotPatterns {
		if p.MatchString(html) {
			return true
		}
	}
	return false
}

// hasScheduleMarkers probes for the structural elements the extractors need.
// A body without them is a JS shell or an unrelated page, useless to parse.
func hasScheduleMarkers(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return doc.Find(".schedule-column").Length() > 0 ||
		doc.Find(".game-card__wrap").Length() > 0 ||
		doc.Find(".game-card").Length() > 0
}

// Fetcher retrieves schedule pages behind a uniform contract, hiding the
// plain-HTTP vs headless-browser distinction from callers.
type Fetcher struct {
	client *http.Client

	// Headless toggles the browser escalation path; tests turn it off.
	Headless bool
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: httpTimeout},
		Headless: true,
	}
}

// Fetch runs the strategy chain: a lightweight HTTP request first, then a
// full browser render. Each strategy retries on its own; only when all of
// them exhaust does the fetch fail.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	html, httpErr := f.fetchHTTP(ctx, url)
	if httpErr == nil {
		return html, nil
	}
	log.Printf("[scraper] HTTP strategy failed for %s: %v", url, httpErr)

	if !f.Headless {
		return "", fmt.Errorf("fetch %s: %w", url, httpErr)
	}

	html, browserErr := f.fetchBrowser(ctx, url)
	if browserErr != nil {
		return "", fmt.Errorf("fetch %s: all strategies exhausted: %w", url, browserErr)
	}
	return html, nil
}

// FetchJSON does a plain GET with browser-like headers, for the schedule API
// path. The API is not anti-bot protected; no browser escalation.
func (f *Fetcher) FetchJSON(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", randomUserAgent())
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}
	pol := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), httpRetries), ctx)
	if err := backoff.Retry(op, pol); err != nil {
		return nil, fmt.Errorf("fetch api %s: %w", url, err)
	}
	return body, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= httpRetries; attempt++ {
		html, err := f.httpOnce(ctx, url)
		if err == nil {
			return html, nil
		}
		lastErr = err
		// A challenge page will not go away on retry; escalate immediately.
		if errors.Is(err, ErrAntiBot) {
			return "", err
		}
		log.Printf("[scraper] HTTP attempt %d failed for %s: %v", attempt, url, err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	return "", lastErr
}

func (f *Fetcher) httpOnce(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", randomUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Referer", url)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	html := string(raw)
	if containsChallenge(html) {
		return "", ErrAntiBot
	}
	if !hasScheduleMarkers(html) {
		return "", errors.New("no schedule markup in HTTP response")
	}
	return html, nil
}

func (f *Fetcher) fetchBrowser(ctx context.Context, url string) (string, error) {
	var html string
	attempt := 0
	op := func() error {
		attempt++
		log.Printf("[scraper] browser attempt %d for %s", attempt, url)
		out, err := f.browserOnce(ctx, url)
		if err != nil {
			return err
		}
		html = out
		return nil
	}
	pol := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(1500*time.Millisecond),
		), browserAttempts-1),
		ctx,
	)
	if err := backoff.Retry(op, pol); err != nil {
		return "", err
	}
	return html, nil
}

func (f *Fetcher) browserOnce(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.UserAgent(randomUserAgent()),
		chromedp.WindowSize(1280, 1400),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("lang", "ru-RU,ru"),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, navTimeout)
	defer cancelTimeout()

	if err := navigateWithFallback(tabCtx, url); err != nil {
		return "", err
	}
	if err := loadAllRecords(tabCtx); err != nil {
		return "", err
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", err
	}
	if containsChallenge(html) {
		return "", ErrAntiBot
	}
	return html, nil
}

// navigateWithFallback tries progressively weaker completion criteria. A
// script-heavy page may never fire load or reach network idle, so any single
// criterion is unreliable on its own.
func navigateWithFallback(ctx context.Context, url string) error {
	strategies := []struct {
		name string
		wait chromedp.Action
	}{
		{"domcontentloaded", chromedp.WaitReady("body", chromedp.ByQuery)},
		{"load", chromedp.WaitVisible("body", chromedp.ByQuery)},
		{"settle", chromedp.Sleep(3 * time.Second)},
	}
	var lastErr error
	for _, s := range strategies {
		stepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := chromedp.Run(stepCtx, chromedp.Navigate(url), s.wait)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Printf("[scraper] navigation (%s) failed for %s: %v", s.name, url, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("navigation failed for all strategies: %w", lastErr)
}

// clickLoadMoreJS clicks a visible "load more" control if one exists and
// reports whether it did.
const clickLoadMoreJS = `(() => {
	const selectors = ['.load-more-button', '.schedule-more__button', '.schedule-more button', '.schedule-more a'];
	for (const sel of selectors) {
		const btn = document.querySelector(sel);
		if (btn && btn.offsetParent !== null) {
			btn.scrollIntoView({block: 'center'});
			btn.click();
			return true;
		}
	}
	const fallback = Array.from(document.querySelectorAll('button, a')).find(node => {
		const text = (node.textContent || '').toLowerCase();
		return text.includes('загрузить ещё') || text.includes('показать ещё') || text.includes('показать больше');
	});
	if (fallback) {
		fallback.scrollIntoView({block: 'center'});
		fallback.click();
		return true;
	}
	return false;
})()`

const countRecordsJS = `document.querySelectorAll('` + recordSelector + `').length`

const scrollToBottomJS = `window.scrollTo(0, document.body.scrollHeight)`

// loadAllRecords alternates the load-more trigger and scroll-to-bottom until
// the record count stops growing for several consecutive rounds. One stagnant
// round is not enough: animations and lazy rendering delay the count.
func loadAllRecords(ctx context.Context) error {
	if err := chromedp.Run(ctx, chromedp.WaitReady(recordSelector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("schedule records never appeared: %w", err)
	}

	previous := 0
	if err := chromedp.Run(ctx, chromedp.Evaluate(countRecordsJS, &previous)); err != nil {
		return err
	}

	stagnant := 0
	for round := 0; round < maxScrollRounds; round++ {
		var clicked bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(clickLoadMoreJS, &clicked)); err != nil {
			return err
		}
		if !clicked {
			if err := chromedp.Run(ctx, chromedp.Evaluate(scrollToBottomJS, nil)); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(scrollDelay):
		}

		current := 0
		if err := chromedp.Run(ctx, chromedp.Evaluate(countRecordsJS, &current)); err != nil {
			return err
		}
		if current <= previous {
			stagnant++
			if stagnant >= stagnantRoundCap {
				log.Printf("[scraper] record count stagnant at %d, stopping scroll loop", current)
				return nil
			}
		} else {
			stagnant = 0
		}
		previous = current
	}
	return nil
}
