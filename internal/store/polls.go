package store

import (
	"context"
	"fmt"
	"time"

	"quizbot/internal/models"
)

// ---------- Polls, options, votes ----------

func (s *Store) InsertPoll(ctx context.Context, poll *models.Poll) error {
	poll.CreatedAt = time.Now().UTC()
	_, err := s.db.NewInsert().Model(poll).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert poll %s: %w", poll.PollID, err)
	}
	return nil
}

func (s *Store) InsertPollOption(ctx context.Context, opt *models.PollOption) error {
	_, err := s.db.NewInsert().Model(opt).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert poll option %s/%d: %w", opt.PollID, opt.OptionID, err)
	}
	return nil
}

func (s *Store) PollExists(ctx context.Context, pollID string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*models.Poll)(nil)).
		Where("poll_id = ?", pollID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("poll exists %s: %w", pollID, err)
	}
	return exists, nil
}

func (s *Store) PollsForChat(ctx context.Context, chatID int64) ([]models.Poll, error) {
	var polls []models.Poll
	err := s.db.NewSelect().
		Model(&polls).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select polls for chat: %w", err)
	}
	return polls, nil
}

// UnprocessedPolls lists polls not yet consumed by a registration run.
func (s *Store) UnprocessedPolls(ctx context.Context, chatID int64) ([]models.Poll, error) {
	var polls []models.Poll
	err := s.db.NewSelect().
		Model(&polls).
		Where("chat_id = ?", chatID).
		Where("NOT processed").
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select unprocessed polls: %w", err)
	}
	return polls, nil
}

// MarkPollProcessed flips the processed flag. The flag only ever moves
// false → true, once per poll.
func (s *Store) MarkPollProcessed(ctx context.Context, pollID string) error {
	_, err := s.db.NewUpdate().
		Model((*models.Poll)(nil)).
		Set("processed = true").
		Where("poll_id = ?", pollID).
		Where("NOT processed").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark poll processed: %w", err)
	}
	return nil
}

func (s *Store) PollOptions(ctx context.Context, pollID string) ([]models.PollOption, error) {
	var opts []models.PollOption
	err := s.db.NewSelect().
		Model(&opts).
		Where("poll_id = ?", pollID).
		Order("option_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select poll options: %w", err)
	}
	return opts, nil
}

// UpsertVote replaces the user's ballot wholesale: the previous option set is
// gone, not merged.
func (s *Store) UpsertVote(ctx context.Context, vote *models.Vote) error {
	vote.VotedAt = time.Now().UTC()
	_, err := s.db.NewInsert().
		Model(vote).
		On("CONFLICT (poll_id, user_id) DO UPDATE").
		Set("option_ids = EXCLUDED.option_ids").
		Set("display_name = EXCLUDED.display_name").
		Set("voted_at = EXCLUDED.voted_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert vote %s/%d: %w", vote.PollID, vote.UserID, err)
	}
	return nil
}

func (s *Store) VotesForPoll(ctx context.Context, pollID string) ([]models.Vote, error) {
	var votes []models.Vote
	err := s.db.NewSelect().
		Model(&votes).
		Where("poll_id = ?", pollID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select votes: %w", err)
	}
	return votes, nil
}

// VoterNamesByGame maps each polled game to the display names of the users
// who picked it, across every poll in the chat.
func (s *Store) VoterNamesByGame(ctx context.Context, chatID int64) (map[string][]string, error) {
	polls, err := s.PollsForChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	out := map[string][]string{}
	for _, poll := range polls {
		opts, err := s.PollOptions(ctx, poll.PollID)
		if err != nil {
			return nil, err
		}
		votes, err := s.VotesForPoll(ctx, poll.PollID)
		if err != nil {
			return nil, err
		}
		byOption := map[int][]string{}
		for _, v := range votes {
			for _, id := range v.OptionIDs {
				if v.DisplayName != "" {
					byOption[id] = append(byOption[id], v.DisplayName)
				}
			}
		}
		for _, opt := range opts {
			if opt.Unavailable || opt.GameExternalID == "" {
				continue
			}
			out[opt.GameExternalID] = append(out[opt.GameExternalID], byOption[opt.OptionID]...)
		}
	}
	return out, nil
}
