package pollsvc

import (
	"quizbot/internal/models"
)

// OptionTally is one option's vote count after grouping ballots.
type OptionTally struct {
	OptionID       int
	GameExternalID string
	Unavailable    bool
	Votes          int
}

// Tally counts distinct voters per option. A user who re-voted contributes
// once, through their latest ballot. The store already keeps only the last
// ballot per (poll, user), but the reduction here tolerates duplicates too.
func Tally(options []models.PollOption, votes []models.Vote) []OptionTally {
	latest := map[int64]models.Vote{}
	for _, v := range votes {
		prev, ok := latest[v.UserID]
		if !ok || v.VotedAt.After(prev.VotedAt) {
			latest[v.UserID] = v
		}
	}

	counts := map[int]int{}
	for _, v := range latest {
		for _, optionID := range v.OptionIDs {
			counts[optionID]++
		}
	}

	tallies := make([]OptionTally, 0, len(options))
	for _, opt := range options {
		tallies = append(tallies, OptionTally{
			OptionID:       opt.OptionID,
			GameExternalID: opt.GameExternalID,
			Unavailable:    opt.Unavailable,
			Votes:          counts[opt.OptionID],
		})
	}
	return tallies
}

// Winners returns every option tied at the maximum vote count, after
// dropping the unavailable sentinel from candidacy and anything below
// minVotes. Ties are not broken; several simultaneous winners are expected.
func Winners(tallies []OptionTally, minVotes int) []OptionTally {
	maxVotes := 0
	for _, t := range tallies {
		if t.Unavailable {
			continue
		}
		if t.Votes > maxVotes {
			maxVotes = t.Votes
		}
	}
	if maxVotes < minVotes {
		return nil
	}

	var winners []OptionTally
	for _, t := range tallies {
		if t.Unavailable {
			continue
		}
		if t.Votes == maxVotes {
			winners = append(winners, t)
		}
	}
	return winners
}
