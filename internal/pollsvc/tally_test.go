package pollsvc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizbot/internal/models"
)

func options() []models.PollOption {
	return []models.PollOption{
		{PollID: "p", OptionID: 0, GameExternalID: "a"},
		{PollID: "p", OptionID: 1, GameExternalID: "b"},
		{PollID: "p", OptionID: 2, GameExternalID: "c"},
		{PollID: "p", OptionID: 3, Unavailable: true},
	}
}

func vote(user int64, at time.Time, opts ...int) models.Vote {
	return models.Vote{PollID: "p", UserID: user, OptionIDs: opts, VotedAt: at}
}

func TestTallyCountsDistinctVoters(t *testing.T) {
	now := time.Now()
	votes := []models.Vote{
		vote(1, now, 0, 1),
		vote(2, now, 0),
		vote(3, now, 3),
	}

	tallies := Tally(options(), votes)
	require.Len(t, tallies, 4)
	assert.Equal(t, 2, tallies[0].Votes)
	assert.Equal(t, 1, tallies[1].Votes)
	assert.Equal(t, 0, tallies[2].Votes)
	assert.Equal(t, 1, tallies[3].Votes)
	assert.True(t, tallies[3].Unavailable)
}

func TestTallyReVoteReplacesBallot(t *testing.T) {
	base := time.Now()
	votes := []models.Vote{
		vote(1, base, 0),
		vote(1, base.Add(time.Minute), 2), // same user changed their mind
	}

	tallies := Tally(options(), votes)
	assert.Equal(t, 0, tallies[0].Votes)
	assert.Equal(t, 1, tallies[2].Votes)
}

func TestWinnersReturnsAllTies(t *testing.T) {
	now := time.Now()
	votes := []models.Vote{
		vote(1, now, 0, 1),
		vote(2, now, 0, 1),
		vote(3, now, 2),
	}

	winners := Winners(Tally(options(), votes), 2)
	require.Len(t, winners, 2)
	assert.Equal(t, "a", winners[0].GameExternalID)
	assert.Equal(t, "b", winners[1].GameExternalID)
}

func TestWinnersIgnoresSentinel(t *testing.T) {
	now := time.Now()
	// The sentinel leads but can never win.
	votes := []models.Vote{
		vote(1, now, 3),
		vote(2, now, 3),
		vote(3, now, 3),
		vote(4, now, 1),
		vote(5, now, 1),
	}

	winners := Winners(Tally(options(), votes), 2)
	require.Len(t, winners, 1)
	assert.Equal(t, "b", winners[0].GameExternalID)
}

func TestWinnersThreshold(t *testing.T) {
	now := time.Now()
	votes := []models.Vote{vote(1, now, 0)}

	assert.Nil(t, Winners(Tally(options(), votes), 2))
	assert.Len(t, Winners(Tally(options(), votes), 1), 1)
}

func TestWinnersNoVotes(t *testing.T) {
	assert.Nil(t, Winners(Tally(options(), nil), 1))
}
