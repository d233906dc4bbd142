// Package regsvc drives the vote-then-register flow: pick polls, recompute
// their winners, pick games, submit the registration form for each.
package regsvc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"quizbot/internal/models"
	"quizbot/internal/pollsvc"
)

var (
	ErrNoPollsSelected = errors.New("no polls selected")
	ErrNoGamesSelected = errors.New("no games selected")
	ErrTeamIncomplete  = errors.New("team info incomplete")
	ErrWrongStep       = errors.New("flow is not at the required step")
)

// Catalog is the slice of the store the selector needs.
type Catalog interface {
	PollOptions(ctx context.Context, pollID string) ([]models.PollOption, error)
	VotesForPoll(ctx context.Context, pollID string) ([]models.Vote, error)
	GameByExternalID(ctx context.Context, chatID int64, externalID string) (*models.Game, error)
	MarkPollProcessed(ctx context.Context, pollID string) error
	MarkGameRegistered(ctx context.Context, chatID int64, externalID string) error
	TeamInfo(ctx context.Context, chatID int64) (*models.TeamInfo, error)
}

// Submitter files one registration form; treated as an opaque, possibly slow,
// possibly failing collaborator. The selector performs no retries.
type Submitter interface {
	Submit(ctx context.Context, gameURL string, team models.TeamInfo) error
}

// WinningGame is one game that won a selected poll, plus its snapshot vote
// count.
type WinningGame struct {
	Game  models.Game
	Votes int
}

// SubmitReport counts per-game outcomes of one submission run.
type SubmitReport struct {
	Registered int
	Failed     int
}

// Selector is the explicit state machine behind the registration flow:
// NoSelection → PollsChosen → GamesChosen → Submitting → Done. State is
// per chat and cleared at the end of the flow.
type Selector struct {
	catalog   Catalog
	submitter Submitter
	states    *StateStore

	// MinWinnerVotes applies uniformly to every winner computation.
	MinWinnerVotes int
}

func NewSelector(catalog Catalog, submitter Submitter, states *StateStore, minWinnerVotes int) *Selector {
	return &Selector{
		catalog:        catalog,
		submitter:      submitter,
		states:         states,
		MinWinnerVotes: minWinnerVotes,
	}
}

// Selection exposes the chat's current flow state, creating a fresh one if
// none exists.
func (s *Selector) Selection(chatID int64) *Selection {
	return s.states.Get(chatID)
}

// TogglePoll flips a poll in or out of the chat's selection.
func (s *Selector) TogglePoll(chatID int64, pollID string) *Selection {
	sel := s.states.Get(chatID)
	if sel.SelectedPolls[pollID] {
		delete(sel.SelectedPolls, pollID)
	} else {
		sel.SelectedPolls[pollID] = true
	}
	if len(sel.SelectedPolls) > 0 {
		sel.Step = StepPollsChosen
	} else {
		sel.Step = StepNoSelection
	}
	return sel
}

// ToggleGame flips a winning game in or out of the chat's selection.
func (s *Selector) ToggleGame(chatID int64, externalID string) *Selection {
	sel := s.states.Get(chatID)
	if sel.SelectedGames[externalID] {
		delete(sel.SelectedGames, externalID)
	} else {
		sel.SelectedGames[externalID] = true
	}
	return sel
}

// Cancel aborts the flow and clears its state.
func (s *Selector) Cancel(chatID int64) {
	s.states.Clear(chatID)
}

// ChooseGames advances PollsChosen → GamesChosen: re-runs the aggregator over
// exactly the selected polls and returns the winners still worth registering
// (future, not yet registered).
func (s *Selector) ChooseGames(ctx context.Context, chatID int64) ([]WinningGame, error) {
	sel := s.states.Get(chatID)
	if len(sel.SelectedPolls) == 0 {
		return nil, ErrNoPollsSelected
	}

	var winners []WinningGame
	seen := map[string]bool{}
	sel.VoteCounts = map[string]int{}
	for pollID := range sel.SelectedPolls {
		options, err := s.catalog.PollOptions(ctx, pollID)
		if err != nil {
			return nil, err
		}
		votes, err := s.catalog.VotesForPoll(ctx, pollID)
		if err != nil {
			return nil, err
		}
		tallies := pollsvc.Tally(options, votes)
		for _, w := range pollsvc.Winners(tallies, s.MinWinnerVotes) {
			if w.GameExternalID == "" || seen[w.GameExternalID] {
				continue
			}
			seen[w.GameExternalID] = true

			game, err := s.catalog.GameByExternalID(ctx, chatID, w.GameExternalID)
			if err != nil {
				return nil, err
			}
			if game == nil || game.Registered || game.DateTime.Before(time.Now().UTC()) {
				continue
			}
			sel.VoteCounts[game.ExternalID] = w.Votes
			winners = append(winners, WinningGame{Game: *game, Votes: w.Votes})
		}
	}

	sel.Step = StepGamesChosen
	sel.SelectedGames = map[string]bool{}
	return winners, nil
}

// Submit advances GamesChosen → Submitting → Done: one registration request
// per selected game. Every poll in the original selection is marked processed
// regardless of per-game outcomes, and flow state is cleared at the end.
func (s *Selector) Submit(ctx context.Context, chatID int64) (SubmitReport, error) {
	sel := s.states.Get(chatID)
	if sel.Step != StepGamesChosen {
		s.states.Clear(chatID)
		return SubmitReport{}, ErrWrongStep
	}
	if len(sel.SelectedGames) == 0 {
		return SubmitReport{}, ErrNoGamesSelected
	}

	team, err := s.catalog.TeamInfo(ctx, chatID)
	if err != nil {
		s.states.Clear(chatID)
		return SubmitReport{}, err
	}
	if team == nil || !team.Complete() {
		return SubmitReport{}, ErrTeamIncomplete
	}

	sel.Step = StepSubmitting
	var report SubmitReport
	for externalID := range sel.SelectedGames {
		game, err := s.catalog.GameByExternalID(ctx, chatID, externalID)
		if err != nil || game == nil {
			report.Failed++
			continue
		}
		if err := s.submitter.Submit(ctx, game.URL, *team); err != nil {
			log.Printf("[registration chat %d] %s failed: %v", chatID, game.Title, err)
			report.Failed++
			continue
		}
		if err := s.catalog.MarkGameRegistered(ctx, chatID, externalID); err != nil {
			log.Printf("[registration chat %d] mark registered %s: %v", chatID, externalID, err)
		}
		report.Registered++
	}

	for pollID := range sel.SelectedPolls {
		if err := s.catalog.MarkPollProcessed(ctx, pollID); err != nil {
			log.Printf("[registration chat %d] mark poll processed %s: %v", chatID, pollID, err)
		}
	}

	sel.Step = StepDone
	s.states.Clear(chatID)
	if report.Registered == 0 && report.Failed > 0 {
		return report, fmt.Errorf("all %d registrations failed", report.Failed)
	}
	return report, nil
}
