// Package pollsvc builds poll specifications out of catalog rows and tallies
// the ballots that come back.
package pollsvc

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"quizbot/internal/models"
	"quizbot/internal/util"
)

// UnavailableLabel is the sentinel option closing every poll.
const UnavailableLabel = "Не смогу ни в один из дней"

const maxOptionTitleRunes = 50

// Option is one poll option to be sent to the messaging provider.
type Option struct {
	Label          string
	GameExternalID string // empty for the sentinel
	Unavailable    bool
}

// Spec is a poll ready to be posted: a title and an ordered option list that
// always ends with the unavailable sentinel.
type Spec struct {
	Title    string
	GroupKey string // empty for date-window polls
	Options  []Option
}

var classicTypeRe = regexp.MustCompile(`(?i)^Квиз\s*,?\s*плиз!?$`)

// GroupTitle names a per-package poll. The flagship game keeps its historical
// label; everything else gets the generic prefix.
func GroupTitle(typeName, number string) string {
	if classicTypeRe.MatchString(typeName) {
		return fmt.Sprintf("Квиз, плиз (Классика) #%s", number)
	}
	return fmt.Sprintf("Квиз Плиз. %s #%s", typeName, number)
}

func rangeTitle(start, end time.Time, offset time.Duration, part, total int) string {
	title := fmt.Sprintf("Игры с %s по %s", util.FormatDayMonth(start, offset), util.FormatDayMonth(end, offset))
	if total > 1 {
		title = fmt.Sprintf("%s (%d/%d)", title, part, total)
	}
	return title
}

// Builder partitions games into polls under the provider's per-poll option
// limit. One option slot per poll is reserved for the sentinel.
type Builder struct {
	MaxOptions int
	Offset     time.Duration
}

func chunkGames(games []models.Game, chunkSize int) [][]models.Game {
	sorted := make([]models.Game, len(games))
	copy(sorted, games)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DateTime.Before(sorted[j].DateTime) })

	var chunks [][]models.Game
	for start := 0; start < len(sorted); start += chunkSize {
		end := start + chunkSize
		if end > len(sorted) {
			end = len(sorted)
		}
		chunks = append(chunks, sorted[start:end])
	}
	return chunks
}

func withSentinel(opts []Option) []Option {
	return append(opts, Option{Label: UnavailableLabel, Unavailable: true})
}

// BuildGroupPolls produces the polls for one package. A package rarely
// overflows one poll, but a long-running game can.
func (b Builder) BuildGroupPolls(group models.GameGroup) []Spec {
	chunks := chunkGames(group.Games, b.MaxOptions-1)
	specs := make([]Spec, 0, len(chunks))
	for i, chunk := range chunks {
		title := GroupTitle(group.TypeName, group.Number)
		if len(chunks) > 1 {
			title = fmt.Sprintf("%s (%d/%d)", title, i+1, len(chunks))
		}
		opts := make([]Option, 0, len(chunk)+1)
		for _, g := range chunk {
			opts = append(opts, Option{
				Label:          fmt.Sprintf("%s %s", util.FormatDateTime(g.DateTime, b.Offset), g.Venue),
				GameExternalID: g.ExternalID,
			})
		}
		specs = append(specs, Spec{
			Title:    title,
			GroupKey: group.GroupKey,
			Options:  withSentinel(opts),
		})
	}
	return specs
}

// BuildDatePolls produces polls over a date window, annotated with a part
// index when the window does not fit a single poll.
func (b Builder) BuildDatePolls(games []models.Game, start, end time.Time) []Spec {
	var inWindow []models.Game
	for _, g := range games {
		if !g.DateTime.Before(start) && !g.DateTime.After(end) {
			inWindow = append(inWindow, g)
		}
	}
	chunks := chunkGames(inWindow, b.MaxOptions-1)
	specs := make([]Spec, 0, len(chunks))
	for i, chunk := range chunks {
		opts := make([]Option, 0, len(chunk)+1)
		for _, g := range chunk {
			opts = append(opts, Option{
				Label: fmt.Sprintf("%s - %s (%s)",
					util.FormatDateTime(g.DateTime, b.Offset),
					util.Truncate(g.Title, maxOptionTitleRunes),
					g.Venue),
				GameExternalID: g.ExternalID,
			})
		}
		specs = append(specs, Spec{
			Title:   rangeTitle(start, end, b.Offset, i+1, len(chunks)),
			Options: withSentinel(opts),
		})
	}
	return specs
}
