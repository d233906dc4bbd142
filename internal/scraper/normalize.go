package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"quizbot/internal/models"
)

// ruMonths resolves Russian month names: genitive forms as the schedule
// prints them, plus three-letter abbreviations.
var ruMonths = map[string]time.Month{
	"января":   time.January,
	"февраля":  time.February,
	"марта":    time.March,
	"апреля":   time.April,
	"мая":      time.May,
	"июня":     time.June,
	"июля":     time.July,
	"августа":  time.August,
	"сентября": time.September,
	"октября":  time.October,
	"ноября":   time.November,
	"декабря":  time.December,
	"янв":      time.January,
	"фев":      time.February,
	"мар":      time.March,
	"апр":      time.April,
	"июн":      time.June,
	"июл":      time.July,
	"авг":      time.August,
	"сен":      time.September,
	"окт":      time.October,
	"ноя":      time.November,
	"дек":      time.December,
}

var (
	numericDateRe = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})(?:\.(\d{4}))?$`)
	isoDateRe     = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	textDateRe    = regexp.MustCompile(`^(\d{1,2})\s+([а-яё]+)$`)
	clockRe       = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	timePrefixRe  = regexp.MustCompile(`(?i)^в\s*`)
)

type civilDate struct {
	day, year int
	month     time.Month
	hasYear   bool
}

// parseCivilDate handles the co-existing date formats: "02.01.2024", "02.01",
// "2024-01-02", "2 января" and "2 янв" with an optional trailing weekday
// token ("2 января, сб").
func parseCivilDate(text string) (civilDate, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	// Weekday tokens follow a comma; the date part never contains one.
	text = strings.TrimSpace(strings.SplitN(text, ",", 2)[0])
	text = spacesRe.ReplaceAllString(text, " ")

	if m := numericDateRe.FindStringSubmatch(text); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		cd := civilDate{day: d, month: time.Month(mo)}
		if m[3] != "" {
			cd.year, _ = strconv.Atoi(m[3])
			cd.hasYear = true
		}
		return cd, true
	}
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return civilDate{day: d, month: time.Month(mo), year: y, hasYear: true}, true
	}
	if m := textDateRe.FindStringSubmatch(text); m != nil {
		mo, ok := ruMonths[m[2]]
		if !ok {
			return civilDate{}, false
		}
		d, _ := strconv.Atoi(m[1])
		return civilDate{day: d, month: mo}, true
	}
	return civilDate{}, false
}

func parseClock(text string) (hour, minute int, ok bool) {
	text = strings.TrimSpace(timePrefixRe.ReplaceAllString(strings.TrimSpace(text), ""))
	m := clockRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, true
}

func daysIn(month time.Month, year int) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Normalizer turns raw records into canonical catalog rows. Civil times are
// resolved against a fixed UTC offset; there is no timezone database and no
// DST handling.
type Normalizer struct {
	Offset time.Duration
}

// Normalize returns the canonical game and true, or a zero game and false
// when the record should be skipped (unparseable or out-of-range date, or no
// package number). A skip is counted by the caller, never an error.
func (n Normalizer) Normalize(raw models.RawGame, now time.Time) (models.Game, bool) {
	cd, ok := parseCivilDate(raw.Date)
	if !ok {
		return models.Game{}, false
	}
	hour, minute, ok := parseClock(raw.Time)
	if !ok {
		return models.Game{}, false
	}

	year := cd.year
	if !cd.hasYear {
		// No explicit year: current year unless the month already passed,
		// then roll to the next one.
		civilNow := now.UTC().Add(n.Offset)
		year = civilNow.Year()
		if cd.month < civilNow.Month() {
			year++
		}
	}

	if cd.month < time.January || cd.month > time.December {
		return models.Game{}, false
	}
	if cd.day < 1 || cd.day > daysIn(cd.month, year) {
		return models.Game{}, false
	}
	if hour > 23 || minute > 59 {
		return models.Game{}, false
	}

	// The extractor's resolved type and number win; the title is only a
	// fallback. API records named via a template title diverge from the
	// visible title, and exclusions key off the resolved type.
	typeName := NormalizeTypeName(raw.GameType)
	number := strings.TrimSpace(raw.GameNumber)
	if typeName == "" || number == "" {
		_, titleType, titleNumber := ExtractGroupKey(raw.Title)
		if typeName == "" {
			typeName = titleType
		}
		if number == "" {
			number = titleNumber
		}
	}
	if typeName == "" || number == "" {
		return models.Game{}, false
	}
	groupKey := typeName + "#" + number

	// Build the instant as if the civil components were UTC, then shift by
	// the fixed offset.
	instant := time.Date(year, cd.month, cd.day, hour, minute, 0, 0, time.UTC).Add(-n.Offset)

	return models.Game{
		ExternalID: raw.ExternalID,
		Title:      raw.Title,
		DateTime:   instant,
		Venue:      raw.Venue,
		Address:    raw.Address,
		Price:      raw.Price,
		Difficulty: raw.Difficulty,
		Status:     raw.Status,
		URL:        raw.URL,
		GroupKey:   groupKey,
		TypeName:   typeName,
		Number:     number,
	}, true
}
