package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	TelegramToken string

	DatabaseDSN string

	AdminTGIDs map[int64]bool

	// DefaultSourceURL seeds new chats that pick a city without setting an
	// explicit schedule URL.
	DefaultSourceURL string

	// MaxPollOptions is hard-capped at 10 (Telegram's limit per poll).
	MaxPollOptions int

	// MinWinnerVotes is the minimum vote count an option needs to win a poll.
	MinWinnerVotes int

	SyncConcurrency int

	// CivilOffset is the fixed UTC offset the schedule's civil times are
	// interpreted in. No timezone database, no DST.
	CivilOffset time.Duration

	HTTPAddr string
}

func FromEnv() (Config, error) {
	var c Config
	c.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	c.DatabaseDSN = strings.TrimSpace(os.Getenv("DATABASE_DSN"))
	c.DefaultSourceURL = strings.TrimSpace(os.Getenv("SOURCE_URL"))

	c.MaxPollOptions = intFromEnv("MAX_POLL_OPTIONS", 10)
	if c.MaxPollOptions > 10 {
		c.MaxPollOptions = 10
	}
	if c.MaxPollOptions < 2 {
		return c, fmt.Errorf("MAX_POLL_OPTIONS must be at least 2")
	}

	c.MinWinnerVotes = intFromEnv("MIN_WINNER_VOTES", 2)
	c.SyncConcurrency = intFromEnv("SYNC_CONCURRENCY", 5)
	if c.SyncConcurrency < 1 {
		c.SyncConcurrency = 1
	}

	offsetHours := intFromEnv("CIVIL_OFFSET_HOURS", 3) // Moscow
	c.CivilOffset = time.Duration(offsetHours) * time.Hour

	c.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}

	if c.TelegramToken == "" {
		return c, fmt.Errorf("TELEGRAM_BOT_TOKEN is empty")
	}
	if c.DatabaseDSN == "" {
		return c, fmt.Errorf("DATABASE_DSN is empty")
	}

	c.AdminTGIDs = parseAdminIDs(os.Getenv("ADMIN_TG_IDS"))

	return c, nil
}

func intFromEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func parseAdminIDs(raw string) map[int64]bool {
	m := map[int64]bool{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return m
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		m[v] = true
	}
	return m
}
