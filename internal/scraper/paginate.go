package scraper

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MaxPaginationPages is the hard cap on pages fetched for one sync run,
// whatever the on-page paginator claims.
const MaxPaginationPages = 20

// MaxPageFromPaginator reads the highest page number the on-page paginator
// advertises. Returns 1 when no paginator is found.
func MaxPageFromPaginator(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 1
	}
	maxPage := 1
	doc.Find(".game-pagination__list-item p").Each(func(_ int, s *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(s.Text()))
		if err == nil && n > maxPage {
			maxPage = n
		}
	})
	return maxPage
}

// PageURL rewrites a schedule URL to point at the given page.
func PageURL(sourceURL string, page int) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return sourceURL
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
