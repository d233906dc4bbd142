package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RawGame is what the extractors pull out of one schedule record before any
// date/number text has been reconciled. Discarded after normalization.
type RawGame struct {
	ExternalID string
	Title      string // "Квиз, плиз! #1212" или "[music party] рашн эдишн #7"
	GameType   string // часть до #, как есть
	GameNumber string // "1212"
	Date       string // "4 ноября", "02.01.2024" и т.п.
	Time       string // "в 16:00" (может отсутствовать)
	Venue      string
	Address    string
	Price      string
	Difficulty string
	Status     string
	URL        string
}

// Game is a canonical catalog row, unique per (chat_id, external_id).
type Game struct {
	bun.BaseModel `bun:"table:games,alias:g"`

	ChatID     int64     `bun:"chat_id,pk"`
	ExternalID string    `bun:"external_id,pk"`
	Title      string    `bun:"title,notnull"`
	DateTime   time.Time `bun:"date_time,notnull"`
	Venue      string    `bun:"venue,nullzero"`
	Address    string    `bun:"address,nullzero"`
	Price      string    `bun:"price,nullzero"`
	Difficulty string    `bun:"difficulty,nullzero"`
	Status     string    `bun:"status,nullzero"`
	URL        string    `bun:"url,notnull"`

	// GroupKey is "<typeName>#<number>"; stable across repeated syncs.
	GroupKey string `bun:"group_key,notnull"`
	TypeName string `bun:"type_name,notnull"`
	Number   string `bun:"number,notnull"`

	SourceURL    string     `bun:"source_url,nullzero"`
	Excluded     bool       `bun:"excluded,notnull,default:false"`
	Registered   bool       `bun:"registered,notnull,default:false"`
	RegisteredAt *time.Time `bun:"registered_at,nullzero"`
	FirstSeen    time.Time  `bun:"first_seen,notnull"`
	LastSeen     time.Time  `bun:"last_seen,notnull"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull"`
}

// GameGroup is the derived per-package view: all date-instances of one
// recurring game plus flags computed fresh on every query, never cached.
type GameGroup struct {
	GroupKey        string
	TypeName        string
	Number          string
	Games           []Game
	Played          bool
	RegisteredCount int
	PolledByPackage bool
	PolledByDate    bool
}

// Poll is one Telegram poll we posted and still track answers for.
type Poll struct {
	bun.BaseModel `bun:"table:polls,alias:p"`

	PollID    string    `bun:"poll_id,pk"`
	ChatID    int64     `bun:"chat_id,notnull"`
	MessageID int       `bun:"message_id,notnull"`
	GroupKey  string    `bun:"group_key,nullzero"` // empty ⇒ poll over a date window
	Title     string    `bun:"title,nullzero"`
	Processed bool      `bun:"processed,notnull,default:false"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// PollOption maps a poll option index to the game it references. Immutable
// after creation. Unavailable marks the "не смогу" sentinel; its
// GameExternalID stays empty.
type PollOption struct {
	bun.BaseModel `bun:"table:poll_options,alias:po"`

	PollID         string `bun:"poll_id,pk"`
	OptionID       int    `bun:"option_id,pk"`
	GameExternalID string `bun:"game_external_id,nullzero"`
	Unavailable    bool   `bun:"unavailable,notnull,default:false"`
}

// Vote is one user's full ballot on one poll. A later ballot from the same
// user replaces the option set wholesale.
type Vote struct {
	bun.BaseModel `bun:"table:poll_votes,alias:pv"`

	PollID      string    `bun:"poll_id,pk"`
	UserID      int64     `bun:"user_id,pk"`
	DisplayName string    `bun:"display_name,nullzero"`
	OptionIDs   []int     `bun:"option_ids,array"`
	VotedAt     time.Time `bun:"voted_at,notnull"`
}

// ChatSetting is a per-chat key/value row (source_url, last_sync_at, ...).
type ChatSetting struct {
	bun.BaseModel `bun:"table:chat_settings,alias:cs"`

	ChatID int64  `bun:"chat_id,pk"`
	Key    string `bun:"key,pk"`
	Value  string `bun:"value,nullzero"`
}

// Setting keys used across the bot.
const (
	SettingSourceURL        = "source_url"
	SettingPendingSourceURL = "pending_source_url"
	SettingLastSyncAt       = "last_sync_at"
)

// ExcludedType hides a whole game type (e.g. "[кино и музыка]") from a chat.
type ExcludedType struct {
	bun.BaseModel `bun:"table:chat_excluded_types,alias:cet"`

	ChatID   int64  `bun:"chat_id,pk"`
	TypeName string `bun:"type_name,pk"`
}

// ExcludedGroup hides a single package from a chat.
type ExcludedGroup struct {
	bun.BaseModel `bun:"table:chat_excluded_groups,alias:ceg"`

	ChatID   int64  `bun:"chat_id,pk"`
	GroupKey string `bun:"group_key,pk"`
}

// PlayedGroup marks a package the team has already played.
type PlayedGroup struct {
	bun.BaseModel `bun:"table:chat_played_groups,alias:cpg"`

	ChatID   int64  `bun:"chat_id,pk"`
	GroupKey string `bun:"group_key,pk"`
}

// TeamInfo holds the registration-form fields for a chat's team, 0/1 per chat.
type TeamInfo struct {
	bun.BaseModel `bun:"table:team_info,alias:ti"`

	ChatID      int64  `bun:"chat_id,pk"`
	TeamName    string `bun:"team_name,notnull"`
	CaptainName string `bun:"captain_name,notnull"`
	Email       string `bun:"email,notnull"`
	Phone       string `bun:"phone,notnull"`
	PlayerCount int    `bun:"player_count,notnull,default:4"`
}

// Complete reports whether every form field the registration page requires is
// filled in.
func (t TeamInfo) Complete() bool {
	return t.TeamName != "" && t.CaptainName != "" && t.Email != "" && t.Phone != ""
}
