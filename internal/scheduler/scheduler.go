// Package scheduler re-syncs stale chats in the background so catalogs
// stay fresh without anyone typing /sync.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"quizbot/internal/models"
	"quizbot/internal/store"
	"quizbot/internal/syncsvc"
)

const staleAfter = 7 * 24 * time.Hour

// Notifier posts a message into a chat. Satisfied by tgbot.App.
type Notifier interface {
	SendText(chatID int64, text string) error
}

type Scheduler struct {
	st       *store.Store
	queue    *syncsvc.Queue
	notifier Notifier
	cron     *cron.Cron
}

func New(st *store.Store, queue *syncsvc.Queue, notifier Notifier) *Scheduler {
	return &Scheduler{
		st:       st,
		queue:    queue,
		notifier: notifier,
		cron:     cron.New(),
	}
}

// Start registers the hourly sweep and launches the cron loop. Stops when
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("@hourly", func() { s.sweep(ctx) })
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
	return nil
}

// sweep re-syncs every chat whose catalog has not been refreshed within
// staleAfter. Per-chat failures are logged and do not stop the sweep.
func (s *Scheduler) sweep(ctx context.Context) {
	chats, err := s.st.ChatsWithSource(ctx)
	if err != nil {
		log.Printf("[scheduler] list chats: %v", err)
		return
	}

	now := time.Now().UTC()
	for chatID, src := range chats {
		if !src.LastSyncAt.IsZero() && now.Sub(src.LastSyncAt) < staleAfter {
			continue
		}
		res, err := s.queue.Enqueue(ctx, chatID, src.SourceURL)
		if err != nil {
			log.Printf("[scheduler] chat %d sync: %v", chatID, err)
			continue
		}
		if err := s.st.SetSetting(ctx, chatID, models.SettingLastSyncAt, now.Format(time.RFC3339)); err != nil {
			log.Printf("[scheduler] chat %d stamp sync: %v", chatID, err)
		}
		if res.Added > 0 && s.notifier != nil {
			msg := fmt.Sprintf("🔄 Расписание обновилось: новых игр %d.", res.Added)
			if err := s.notifier.SendText(chatID, msg); err != nil {
				log.Printf("[scheduler] chat %d notify: %v", chatID, err)
			}
		}
	}
}
