package scraper

import (
	"regexp"
	"strings"
)

var (
	gameNumberRe = regexp.MustCompile(`#(\d+)`)
	bracketRe    = regexp.MustCompile(`\[.+?\].*`)
	timeTokenRe  = regexp.MustCompile(`(?i)^в\s*\d{1,2}:\d{2}$`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// ExtractGameNumber pulls the trailing package number out of a title:
// "Квиз, плиз! #1212" -> "1212".
func ExtractGameNumber(text string) string {
	m := gameNumberRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractBracket returns the "[...]" tail of a title when present:
// "[music party] рашн эдишн" -> "[music party] рашн эдишн".
func ExtractBracket(text string) string {
	return strings.TrimSpace(bracketRe.FindString(text))
}

// IsTimeToken reports whether text is a "в HH:MM" time-of-day token.
func IsTimeToken(text string) bool {
	return timeTokenRe.MatchString(text)
}

// NormalizeTypeName collapses whitespace and strips trailing exclamation
// marks so that "Квиз, плиз!" and "Квиз,  плиз" key the same package group.
func NormalizeTypeName(name string) string {
	name = spacesRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	name = strings.TrimRight(name, "!")
	return strings.TrimSpace(name)
}

// ExtractGroupKey derives the package identity from a raw title. The type
// name is everything before the "#", normalized; the number is the trailing
// "#N" token. Deterministic: the same title always yields the same key.
func ExtractGroupKey(title string) (groupKey, typeName, number string) {
	number = ExtractGameNumber(title)
	typeName = title
	if i := strings.Index(title, "#"); i >= 0 {
		typeName = title[:i]
	}
	typeName = NormalizeTypeName(typeName)
	return typeName + "#" + number, typeName, number
}
