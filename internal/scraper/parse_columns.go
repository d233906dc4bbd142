package scraper

import (
	"log"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"quizbot/internal/models"
)

func absoluteURL(href, baseURL string) string {
	if href == "" {
		return baseURL
	}
	if strings.HasPrefix(href, "http") {
		return href
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	ref, err := url.Parse(href)
	if err != nil {
		return baseURL
	}
	return base.ResolveReference(ref).String()
}

// ParseColumns extracts schedule records from the legacy column-based layout
// (.schedule-column blocks). Malformed records are skipped, never fatal.
func ParseColumns(html, baseURL string) []models.RawGame {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Printf("[parser] bad html document: %v", err)
		return nil
	}

	var items []models.RawGame
	cols := doc.Find(".schedule-column")

	cols.Each(func(_ int, col *goquery.Selection) {
		idAttr, _ := col.Attr("id")
		block := col.Find(".schedule-block").First()

		head := block.Find("a.schedule-block-head")
		titleLeft := strings.TrimSpace(head.Find(".h2.h2-game-card.h2-left").First().Text())
		numberText := strings.TrimSpace(head.Find(".h2.h2-game-card").Eq(1).Text())
		number := ExtractGameNumber(numberText)
		fullTitle := strings.TrimSpace(titleLeft + " " + numberText)

		gameType := titleLeft
		if bracket := ExtractBracket(gameType); bracket != "" {
			gameType = bracket
		}

		dateLine := strings.TrimSpace(block.Find(".block-date-with-language-game").First().Text())
		dateLine = spacesRe.ReplaceAllString(dateLine, " ")
		dateText := strings.TrimSpace(strings.SplitN(dateLine, ",", 2)[0])

		timeText := ""
		block.Find(".schedule-info .techtext").Each(func(_ int, el *goquery.Selection) {
			t := strings.TrimSpace(el.Text())
			if IsTimeToken(t) {
				timeText = t
			}
		})

		venueSel := block.Find(".schedule-block-info-bar").First().Clone()
		venueSel.Find("button").Remove()
		venue := strings.TrimSpace(venueSel.Text())

		address := strings.TrimSpace(block.Find(".techtext-halfwhite").First().Text())
		difficulty := strings.TrimSpace(block.Find(".badge-difficulty__title").First().Text())
		if difficulty == "" {
			difficulty, _ = block.Find(".badge-difficulty__icon img").Attr("alt")
		}
		price := strings.TrimSpace(block.Find(".new-price .price").First().Text())

		href, _ := head.Attr("href")
		if href == "" {
			href, _ = block.Find("a:contains('Подробнее')").Attr("href")
		}
		recordURL := absoluteURL(href, baseURL)

		externalID := idAttr
		if externalID == "" {
			if i := strings.LastIndex(recordURL, "id="); i >= 0 {
				externalID = recordURL[i+len("id="):]
			} else {
				externalID = strings.TrimSpace(fullTitle + " " + dateText + " " + timeText)
			}
		}

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
			URL:        recordURL,
		})
	})

	log.Printf("[parser] columns layout: %d of %d records parsed", len(items), cols.Length())
	return items
}
