package scraper

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"quizbot/internal/models"
)

// apiCityIDs maps schedule-host city slugs to the catalog ids the JSON API
// expects. Hosts outside this table fall back to markup extraction.
var apiCityIDs = map[string]int{
	"moscow":       4,
	"spb":          11,
	"novosibirsk":  5,
	"ekaterinburg": 7,
	"kazan":        15,
	"nizhniy":      9,
	"chelyabinsk":  6,
	"samara":       17,
	"rostov":       13,
}

// APIEndpoint maps a schedule page URL to its JSON API endpoint when the host
// carries a known catalog identifier. Returns false for sources that only
// deliver markup.
func APIEndpoint(sourceURL string, page int) (string, bool) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", false
	}
	host := u.Hostname()
	slug, _, found := strings.Cut(host, ".")
	if !found || !strings.HasSuffix(host, "quizplease.ru") {
		return "", false
	}
	cityID, ok := apiCityIDs[slug]
	if !ok {
		return "", false
	}
	q := url.Values{}
	q.Set("QpGameSearch[city_id]", strconv.Itoa(cityID))
	q.Set("page", strconv.Itoa(page))
	return fmt.Sprintf("%s://%s/api/game?%s", u.Scheme, host, q.Encode()), true
}

type apiPlace struct {
	Title     string `json:"title"`
	Address   string `json:"address"`
	AddressRU string `json:"address_ru"`
	City      *struct {
		Slug string `json:"slug"`
	} `json:"city"`
}

type apiGame struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Date       string   `json:"date"` // "02.01.2023 20:00"
	Place      apiPlace `json:"place"`
	Price      int      `json:"price"`
	GameNumber string   `json:"game_number"`
	Template   *struct {
		Title     string `json:"title"`
		GameLevel string `json:"game_level"`
	} `json:"template"`
	Status int    `json:"status"`
	URL    string `json:"url"`
}

type apiResponse struct {
	Status string `json:"status"`
	Data   struct {
		Data       []apiGame `json:"data"`
		Pagination struct {
			Total       int `json:"total"`
			PerPage     int `json:"per_page"`
			CurrentPage int `json:"current_page"`
			TotalPages  int `json:"total_pages"`
		} `json:"pagination"`
	} `json:"data"`
}

const apiStatusActive = 4

var apiDateRe = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4})\s+(\d{1,2}):(\d{2})$`)

// ParseAPI converts one page of the JSON schedule API into raw records.
// Returns the records and the total page count from the response envelope.
func ParseAPI(body []byte, baseURL string) ([]models.RawGame, int) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Printf("[parser] api response unmarshal: %v", err)
		return nil, 0
	}
	if resp.Status != "ok" {
		log.Printf("[parser] api response status %q", resp.Status)
		return nil, 0
	}

	var items []models.RawGame
	for _, game := range resp.Data.Data {
		titleLeft := strings.TrimSpace(game.Title)
		number := strings.TrimSpace(game.GameNumber)
		if number == "" {
			number = ExtractGameNumber(titleLeft)
		}
		fullTitle := titleLeft
		if number != "" {
			fullTitle = titleLeft + " #" + number
		}

		gameType := titleLeft
		if bracket := ExtractBracket(gameType); bracket != "" {
			gameType = bracket
		} else if !strings.Contains(strings.ToLower(gameType), "квиз") && game.Template != nil && game.Template.Title != "" {
			gameType = game.Template.Title
		}

		m := apiDateRe.FindStringSubmatch(game.Date)
		if m == nil {
			log.Printf("[parser] api record %s: unparseable date %q", game.ID, game.Date)
			continue
		}
		dateText := m[1] + "." + m[2] + "." + m[3]
		timeText := "в " + m[4] + ":" + m[5]

		address := game.Place.AddressRU
		if address == "" {
			address = game.Place.Address
		}

		price := ""
		if game.Price > 0 {
			price = fmt.Sprintf("%d ₽", game.Price)
		}

		difficulty := ""
		if game.Template != nil {
			difficulty = game.Template.GameLevel
		}

		recordURL := baseURL
		switch {
		case game.ID != "":
			citySlug := "spb"
			if game.Place.City != nil && game.Place.City.Slug != "" {
				citySlug = game.Place.City.Slug
			}
			recordURL = fmt.Sprintf("https://%s.quizplease.ru/game/%s", citySlug, game.ID)
		case game.URL != "":
			recordURL = game.URL
		}

		externalID := game.ID
		if externalID == "" {
			externalID = strings.TrimSpace(fullTitle + " " + dateText + " " + timeText)
		}

		status := ""
		if game.Status != apiStatusActive {
			status = strconv.Itoa(game.Status)
		}

		items = append(items, models.RawGame{
			ExternalID: externalID,
			Title:      fullTitle,
			GameType:   gameType,
			GameNumber: number,
			Date:       dateText,
			Time:       timeText,
			Venue:      game.Place.Title,
			Address:    address,
			Price:      price,
			Difficulty: difficulty,
			Status:     status,
			URL:        recordURL,
		})
	}

	log.Printf("[parser] api: %d of %d records parsed", len(items), len(resp.Data.Data))
	return items, resp.Data.Pagination.TotalPages
}
