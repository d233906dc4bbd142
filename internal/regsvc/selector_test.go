package regsvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizbot/internal/models"
)

type fakeCatalog struct {
	options map[string][]models.PollOption
	votes   map[string][]models.Vote
	games   map[string]models.Game
	team    *models.TeamInfo

	processed  []string
	registered []string
}

func (c *fakeCatalog) PollOptions(_ context.Context, pollID string) ([]models.PollOption, error) {
	return c.options[pollID], nil
}

func (c *fakeCatalog) VotesForPoll(_ context.Context, pollID string) ([]models.Vote, error) {
	return c.votes[pollID], nil
}

func (c *fakeCatalog) GameByExternalID(_ context.Context, _ int64, externalID string) (*models.Game, error) {
	g, ok := c.games[externalID]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (c *fakeCatalog) MarkPollProcessed(_ context.Context, pollID string) error {
	c.processed = append(c.processed, pollID)
	return nil
}

func (c *fakeCatalog) MarkGameRegistered(_ context.Context, _ int64, externalID string) error {
	c.registered = append(c.registered, externalID)
	return nil
}

func (c *fakeCatalog) TeamInfo(_ context.Context, _ int64) (*models.TeamInfo, error) {
	return c.team, nil
}

type fakeSubmitter struct {
	failURLs  map[string]bool
	submitted []string
}

func (s *fakeSubmitter) Submit(_ context.Context, gameURL string, _ models.TeamInfo) error {
	if s.failURLs[gameURL] {
		return errors.New("form rejected")
	}
	s.submitted = append(s.submitted, gameURL)
	return nil
}

func completeTeam() *models.TeamInfo {
	return &models.TeamInfo{
		ChatID:      1,
		TeamName:    "Сова",
		CaptainName: "Аня",
		Email:       "owl@example.com",
		Phone:       "+79990001122",
		PlayerCount: 6,
	}
}

func futureGame(id string) models.Game {
	return models.Game{
		ExternalID: id,
		Title:      "Квиз, плиз! #612",
		DateTime:   time.Now().UTC().Add(72 * time.Hour),
		URL:        "https://spb.quizplease.ru/game/" + id,
	}
}

func newTestSelector(c *fakeCatalog, s *fakeSubmitter) *Selector {
	return NewSelector(c, s, NewStateStore(time.Hour), 2)
}

func twoVotes(optionIDs ...int) []models.Vote {
	now := time.Now()
	return []models.Vote{
		{UserID: 1, OptionIDs: optionIDs, VotedAt: now},
		{UserID: 2, OptionIDs: optionIDs, VotedAt: now},
	}
}

func TestTogglePollAdvancesStep(t *testing.T) {
	sel := newTestSelector(&fakeCatalog{}, &fakeSubmitter{})

	state := sel.TogglePoll(1, "p1")
	assert.Equal(t, StepPollsChosen, state.Step)
	assert.True(t, state.SelectedPolls["p1"])

	state = sel.TogglePoll(1, "p1")
	assert.Equal(t, StepNoSelection, state.Step)
	assert.False(t, state.SelectedPolls["p1"])
}

func TestChooseGamesRequiresPolls(t *testing.T) {
	sel := newTestSelector(&fakeCatalog{}, &fakeSubmitter{})
	_, err := sel.ChooseGames(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoPollsSelected)
}

func TestChooseGamesReturnsWinners(t *testing.T) {
	c := &fakeCatalog{
		options: map[string][]models.PollOption{
			"p1": {
				{PollID: "p1", OptionID: 0, GameExternalID: "a"},
				{PollID: "p1", OptionID: 1, GameExternalID: "b"},
				{PollID: "p1", OptionID: 2, Unavailable: true},
			},
		},
		votes: map[string][]models.Vote{"p1": twoVotes(0)},
		games: map[string]models.Game{"a": futureGame("a"), "b": futureGame("b")},
	}
	sel := newTestSelector(c, &fakeSubmitter{})
	sel.TogglePoll(1, "p1")

	winners, err := sel.ChooseGames(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, "a", winners[0].Game.ExternalID)
	assert.Equal(t, 2, winners[0].Votes)
	assert.Equal(t, StepGamesChosen, sel.Selection(1).Step)
}

func TestChooseGamesFiltersRegisteredAndPast(t *testing.T) {
	past := futureGame("past")
	past.DateTime = time.Now().UTC().Add(-time.Hour)
	reg := futureGame("reg")
	reg.Registered = true

	c := &fakeCatalog{
		options: map[string][]models.PollOption{
			"p1": {
				{PollID: "p1", OptionID: 0, GameExternalID: "past"},
				{PollID: "p1", OptionID: 1, GameExternalID: "reg"},
				{PollID: "p1", OptionID: 2, GameExternalID: "gone"},
			},
		},
		votes: map[string][]models.Vote{"p1": twoVotes(0, 1, 2)},
		games: map[string]models.Game{"past": past, "reg": reg},
	}
	sel := newTestSelector(c, &fakeSubmitter{})
	sel.TogglePoll(1, "p1")

	winners, err := sel.ChooseGames(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, winners)
}

func TestSubmitRegistersAndMarksPolls(t *testing.T) {
	c := &fakeCatalog{
		options: map[string][]models.PollOption{
			"p1": {{PollID: "p1", OptionID: 0, GameExternalID: "a"}},
		},
		votes: map[string][]models.Vote{"p1": twoVotes(0)},
		games: map[string]models.Game{"a": futureGame("a")},
		team:  completeTeam(),
	}
	sub := &fakeSubmitter{}
	sel := newTestSelector(c, sub)

	sel.TogglePoll(1, "p1")
	_, err := sel.ChooseGames(context.Background(), 1)
	require.NoError(t, err)
	sel.ToggleGame(1, "a")

	report, err := sel.Submit(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, SubmitReport{Registered: 1}, report)
	assert.Equal(t, []string{"https://spb.quizplease.ru/game/a"}, sub.submitted)
	assert.Equal(t, []string{"a"}, c.registered)
	assert.Equal(t, []string{"p1"}, c.processed)

	// Flow state is gone after completion.
	assert.Equal(t, StepNoSelection, sel.Selection(1).Step)
}

func TestSubmitRequiresGamesStep(t *testing.T) {
	sel := newTestSelector(&fakeCatalog{team: completeTeam()}, &fakeSubmitter{})
	_, err := sel.Submit(context.Background(), 1)
	assert.ErrorIs(t, err, ErrWrongStep)
}

func TestSubmitRequiresCompleteTeam(t *testing.T) {
	c := &fakeCatalog{
		options: map[string][]models.PollOption{
			"p1": {{PollID: "p1", OptionID: 0, GameExternalID: "a"}},
		},
		votes: map[string][]models.Vote{"p1": twoVotes(0)},
		games: map[string]models.Game{"a": futureGame("a")},
		team:  &models.TeamInfo{TeamName: "Сова"},
	}
	sel := newTestSelector(c, &fakeSubmitter{})
	sel.TogglePoll(1, "p1")
	_, err := sel.ChooseGames(context.Background(), 1)
	require.NoError(t, err)
	sel.ToggleGame(1, "a")

	_, err = sel.Submit(context.Background(), 1)
	assert.ErrorIs(t, err, ErrTeamIncomplete)
}

func TestSubmitAllFailedIsError(t *testing.T) {
	c := &fakeCatalog{
		options: map[string][]models.PollOption{
			"p1": {{PollID: "p1", OptionID: 0, GameExternalID: "a"}},
		},
		votes: map[string][]models.Vote{"p1": twoVotes(0)},
		games: map[string]models.Game{"a": futureGame("a")},
		team:  completeTeam(),
	}
	sub := &fakeSubmitter{failURLs: map[string]bool{"https://spb.quizplease.ru/game/a": true}}
	sel := newTestSelector(c, sub)

	sel.TogglePoll(1, "p1")
	_, err := sel.ChooseGames(context.Background(), 1)
	require.NoError(t, err)
	sel.ToggleGame(1, "a")

	report, err := sel.Submit(context.Background(), 1)
	assert.Error(t, err)
	assert.Equal(t, SubmitReport{Failed: 1}, report)
	assert.Empty(t, c.registered)
	// Polls are still consumed so failed runs do not resurrect forever.
	assert.Equal(t, []string{"p1"}, c.processed)
}

func TestStateStoreEvictsByTTL(t *testing.T) {
	st := NewStateStore(time.Minute)
	current := time.Unix(1000, 0)
	st.now = func() time.Time { return current }

	sel := st.Get(1)
	sel.SelectedPolls["p"] = true

	current = current.Add(30 * time.Second)
	assert.True(t, st.Get(1).SelectedPolls["p"], "state survives within ttl")

	current = current.Add(2 * time.Minute)
	assert.False(t, st.Get(1).SelectedPolls["p"], "state expires past ttl")
}
