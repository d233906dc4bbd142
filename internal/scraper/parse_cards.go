package scraper

import (
	"log"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"quizbot/internal/models"
)

var (
	gamePathRe = regexp.MustCompile(`/game/([^/?#]+)`)
	atPrefixRe = regexp.MustCompile(`(?i)^at\s*`)
)

// ParseCards extracts schedule records from the current card-based layout
// (.game-card blocks). Malformed records are skipped, never fatal.
func ParseCards(html, baseURL string) []models.RawGame {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Printf("[parser] bad html document: %v", err)
		return nil
	}

	var items []models.RawGame

	// Real cards carry a name wrapper; background wrappers do not.
	cards := doc.Find(".game-card").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find(".game-card__name-wrapper").Length() > 0
	})

	cards.Each(func(_ int, card *goquery.Selection) {
		nameNodes := card.Find(".game-card__name-wrapper .game-card__name")
		titleLeft := strings.TrimSpace(nameNodes.First().Text())
		numberText := strings.TrimSpace(nameNodes.Eq(1).Text())
		number := ExtractGameNumber(numberText)
		fullTitle := strings.TrimSpace(titleLeft + " " + numberText)

		gameType := titleLeft
		if bracket := ExtractBracket(gameType); bracket != "" {
			gameType = bracket
		}

		dateText := strings.TrimSpace(card.Find(".game-card__date").First().Text())

		timeText := ""
		card.Find(".game-card__location-wrapper .game-card__location-text").Each(func(_ int, el *goquery.Selection) {
			raw := strings.TrimSpace(el.Text())
			// Some cards localize the prefix as "at 19:30".
			normalized := atPrefixRe.ReplaceAllString(raw, "в ")
			if IsTimeToken(normalized) {
				timeText = normalized
			}
		})

		venueSel := card.Find(".game-card__location-text__title").First().Clone()
		venueSel.Find("button").Remove()
		venue := strings.TrimSpace(venueSel.Text())

		addrSel := card.Find(".game-card__location-text__subtitle").First().Clone()
		addrSel.Find("button").Remove()
		address := strings.TrimSpace(addrSel.Text())

		difficulty := strings.TrimSpace(card.Find(".badge-difficulty__title").First().Text())
		if difficulty == "" {
			difficulty, _ = card.Find(".badge-difficulty__icon img").Attr("alt")
		}

		price := strings.TrimSpace(card.Find(".game-card__cost-title").First().Text())

		href, _ := card.Find(".game-card__name-wrapper a.game-card__name").Attr("href")
		if href == "" {
			href, _ = card.Find(".game-card__buttons a[href]").First().Attr("href")
		}
		recordURL := absoluteURL(href, baseURL)

		// Prefer a stable id from /game/{uuid} paths.
		externalID := ""
		if m := gamePathRe.FindStringSubmatch(recordURL); m != nil {
			externalID = m[1]
		} else if i := strings.LastIndex(recordURL, "id="); i >= 0 {
			externalID = recordURL[i+len("id="):]
		} else {
			externalID = strings.TrimSpace(fullTitle + " " + dateText + " " + timeText)
		}

		status := strings.TrimSpace(card.Find(".game-card__days").First().Text())

		if fullTitle == "" || dateText == "" {
			return
		}
		items = append(items, models.RawGame{
			ExternalID: externalID,
			Title:      strings.TrimSpace(titleLeft + " #" + number),
			GameType:   gameType,
			GameNumber: number,
			Date:       dateText,
			Time:       timeText,
			Venue:      venue,
			Address:    address,
			Price:      price,
			Difficulty: difficulty,
			Status:     status,
			URL:        recordURL,
		})
	})

	log.Printf("[parser] cards layout: %d of %d records parsed", len(items), cards.Length())
	return items
}
