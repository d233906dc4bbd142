package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quizbot/internal/models"
)

// Store is the catalog persistence layer: games, polls, votes, per-chat
// settings and exclusions. All game writes are keyed by (chat_id,
// external_id) so chats cannot interfere with each other.
type Store struct {
	db *bun.DB
}

func New(dsn string) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &Store{db: bun.NewDB(sqldb, pgdialect.New())}
}

// NewWithDB wraps an existing bun handle (tests, shared pools).
func NewWithDB(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the schema when it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	tables := []any{
		(*models.Game)(nil),
		(*models.Poll)(nil),
		(*models.PollOption)(nil),
		(*models.Vote)(nil),
		(*models.ChatSetting)(nil),
		(*models.ExcludedType)(nil),
		(*models.ExcludedGroup)(nil),
		(*models.PlayedGroup)(nil),
		(*models.TeamInfo)(nil),
	}
	for _, table := range tables {
		if _, err := s.db.NewCreateTable().Model(table).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", table, err)
		}
	}
	return nil
}

// ---------- Games ----------

// UpsertGame inserts a new catalog row or merges a re-observed one: mutable
// fields and last_seen are refreshed, first_seen and the registered flags are
// kept.
func (s *Store) UpsertGame(ctx context.Context, game *models.Game) error {
	now := time.Now().UTC()
	game.FirstSeen = now
	game.LastSeen = now
	game.UpdatedAt = now
	_, err := s.db.NewInsert().
		Model(game).
		On("CONFLICT (chat_id, external_id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("date_time = EXCLUDED.date_time").
		Set("venue = EXCLUDED.venue").
		Set("address = EXCLUDED.address").
		Set("price = EXCLUDED.price").
		Set("difficulty = EXCLUDED.difficulty").
		Set("status = EXCLUDED.status").
		Set("url = EXCLUDED.url").
		Set("group_key = EXCLUDED.group_key").
		Set("type_name = EXCLUDED.type_name").
		Set("number = EXCLUDED.number").
		Set("source_url = EXCLUDED.source_url").
		Set("last_seen = EXCLUDED.last_seen").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", game.ExternalID, err)
	}
	return nil
}

// UpcomingGames returns future games for a chat up to the horizon, dropping
// excluded rows, excluded packages, excluded types and played packages.
func (s *Store) UpcomingGames(ctx context.Context, chatID int64, daysAhead int) ([]models.Game, error) {
	now := time.Now().UTC()
	until := now.AddDate(0, 0, daysAhead)
	var games []models.Game
	err := s.db.NewSelect().
		Model(&games).
		Where("g.chat_id = ?", chatID).
		Where("g.date_time >= ?", now).
		Where("g.date_time <= ?", until).
		Where("NOT g.excluded").
		Where("NOT EXISTS (SELECT 1 FROM chat_excluded_groups ceg WHERE ceg.chat_id = g.chat_id AND ceg.group_key = g.group_key)").
		Where("NOT EXISTS (SELECT 1 FROM chat_excluded_types cet WHERE cet.chat_id = g.chat_id AND lower(cet.type_name) = lower(g.type_name))").
		Where("NOT EXISTS (SELECT 1 FROM chat_played_groups cpg WHERE cpg.chat_id = g.chat_id AND cpg.group_key = g.group_key)").
		Order("group_key ASC", "date_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select upcoming games: %w", err)
	}
	return games, nil
}

// UpcomingGroups aggregates future games into package groups with flags
// computed fresh on every call, nothing here is cached.
func (s *Store) UpcomingGroups(ctx context.Context, chatID int64, daysAhead int) ([]models.GameGroup, error) {
	now := time.Now().UTC()
	until := now.AddDate(0, 0, daysAhead)
	var games []models.Game
	err := s.db.NewSelect().
		Model(&games).
		Where("g.chat_id = ?", chatID).
		Where("g.date_time >= ?", now).
		Where("g.date_time <= ?", until).
		Where("NOT g.excluded").
		Where("NOT EXISTS (SELECT 1 FROM chat_excluded_groups ceg WHERE ceg.chat_id = g.chat_id AND ceg.group_key = g.group_key)").
		Where("NOT EXISTS (SELECT 1 FROM chat_excluded_types cet WHERE cet.chat_id = g.chat_id AND lower(cet.type_name) = lower(g.type_name))").
		Order("group_key ASC", "date_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select games for groups: %w", err)
	}

	played, err := s.playedSet(ctx, chatID)
	if err != nil {
		return nil, err
	}
	polls, err := s.PollsForChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	polledPackages := map[string]bool{}
	var datePollIDs []string
	for _, p := range polls {
		if p.GroupKey != "" {
			polledPackages[p.GroupKey] = true
		} else {
			datePollIDs = append(datePollIDs, p.PollID)
		}
	}
	datePolled, err := s.gamesInPolls(ctx, datePollIDs)
	if err != nil {
		return nil, err
	}

	byExternal := map[string]string{} // external id -> group key
	order := []string{}
	byKey := map[string]*models.GameGroup{}
	for _, g := range games {
		grp, ok := byKey[g.GroupKey]
		if !ok {
			grp = &models.GameGroup{
				GroupKey: g.GroupKey,
				TypeName: g.TypeName,
				Number:   g.Number,
				Played:   played[g.GroupKey],
			}
			byKey[g.GroupKey] = grp
			order = append(order, g.GroupKey)
		}
		grp.Games = append(grp.Games, g)
		if g.Registered {
			grp.RegisteredCount++
		}
		grp.PolledByPackage = grp.PolledByPackage || polledPackages[g.GroupKey]
		byExternal[g.ExternalID] = g.GroupKey
	}
	for externalID := range datePolled {
		if key, ok := byExternal[externalID]; ok {
			byKey[key].PolledByDate = true
		}
	}

	groups := make([]models.GameGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	return groups, nil
}

func (s *Store) playedSet(ctx context.Context, chatID int64) (map[string]bool, error) {
	var rows []models.PlayedGroup
	if err := s.db.NewSelect().Model(&rows).Where("chat_id = ?", chatID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select played groups: %w", err)
	}
	set := make(map[string]bool, len(rows))
	for _, r := range rows {
		set[r.GroupKey] = true
	}
	return set, nil
}

func (s *Store) gamesInPolls(ctx context.Context, pollIDs []string) (map[string]bool, error) {
	set := map[string]bool{}
	if len(pollIDs) == 0 {
		return set, nil
	}
	var opts []models.PollOption
	err := s.db.NewSelect().
		Model(&opts).
		Where("poll_id IN (?)", bun.In(pollIDs)).
		Where("NOT unavailable").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select poll options: %w", err)
	}
	for _, o := range opts {
		if o.GameExternalID != "" {
			set[o.GameExternalID] = true
		}
	}
	return set, nil
}

func (s *Store) GameByExternalID(ctx context.Context, chatID int64, externalID string) (*models.Game, error) {
	game := new(models.Game)
	err := s.db.NewSelect().
		Model(game).
		Where("chat_id = ?", chatID).
		Where("external_id = ?", externalID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select game %s: %w", externalID, err)
	}
	return game, nil
}

// PruneExpired deletes catalog rows whose instant is already in the past.
// Sync never deletes; this is the only removal path short of a tenant reset.
func (s *Store) PruneExpired(ctx context.Context, chatID int64) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*models.Game)(nil)).
		Where("chat_id = ?", chatID).
		Where("date_time < ?", time.Now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune expired games: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ResetChat wipes everything the chat has accumulated.
// pollChildDeletes builds the deletes clearing options and votes for every
// poll of the chat. Both tables are keyed by poll_id alone, so they must go
// before the polls rows themselves.
func (s *Store) pollChildDeletes(chatID int64) []*bun.DeleteQuery {
	chatPolls := s.db.NewSelect().
		Model((*models.Poll)(nil)).
		Column("poll_id").
		Where("chat_id = ?", chatID)
	return []*bun.DeleteQuery{
		s.db.NewDelete().Model((*models.PollOption)(nil)).Where("poll_id IN (?)", chatPolls),
		s.db.NewDelete().Model((*models.Vote)(nil)).Where("poll_id IN (?)", chatPolls),
	}
}

func (s *Store) ResetChat(ctx context.Context, chatID int64) error {
	for _, q := range s.pollChildDeletes(chatID) {
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("reset chat %d: %w", chatID, err)
		}
	}

	tables := []any{
		(*models.Game)(nil),
		(*models.ChatSetting)(nil),
		(*models.ExcludedType)(nil),
		(*models.ExcludedGroup)(nil),
		(*models.PlayedGroup)(nil),
		(*models.TeamInfo)(nil),
		(*models.Poll)(nil),
	}
	for _, table := range tables {
		if _, err := s.db.NewDelete().Model(table).Where("chat_id = ?", chatID).Exec(ctx); err != nil {
			return fmt.Errorf("reset chat %d: %w", chatID, err)
		}
	}
	return nil
}

func (s *Store) MarkGameRegistered(ctx context.Context, chatID int64, externalID string) error {
	now := time.Now().UTC()
	_, err := s.db.NewUpdate().
		Model((*models.Game)(nil)).
		Set("registered = true").
		Set("registered_at = ?", now).
		Set("updated_at = ?", now).
		Where("chat_id = ?", chatID).
		Where("external_id = ?", externalID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark game registered: %w", err)
	}
	return nil
}

// ---------- Exclusions and played marks ----------

func (s *Store) ExcludedTypes(ctx context.Context, chatID int64) ([]string, error) {
	var rows []models.ExcludedType
	err := s.db.NewSelect().Model(&rows).Where("chat_id = ?", chatID).Order("type_name ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select excluded types: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.TypeName)
	}
	return names, nil
}

func (s *Store) ExcludeType(ctx context.Context, chatID int64, typeName string) error {
	row := &models.ExcludedType{ChatID: chatID, TypeName: typeName}
	_, err := s.db.NewInsert().Model(row).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("exclude type: %w", err)
	}
	return nil
}

func (s *Store) UnexcludeType(ctx context.Context, chatID int64, typeName string) error {
	_, err := s.db.NewDelete().
		Model((*models.ExcludedType)(nil)).
		Where("chat_id = ?", chatID).
		Where("type_name = ?", typeName).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("unexclude type: %w", err)
	}
	return nil
}

func (s *Store) ExcludedGroups(ctx context.Context, chatID int64) ([]string, error) {
	var rows []models.ExcludedGroup
	err := s.db.NewSelect().Model(&rows).Where("chat_id = ?", chatID).Order("group_key ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select excluded groups: %w", err)
	}
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r.GroupKey)
	}
	return keys, nil
}

func (s *Store) ExcludeGroup(ctx context.Context, chatID int64, groupKey string) error {
	row := &models.ExcludedGroup{ChatID: chatID, GroupKey: groupKey}
	if _, err := s.db.NewInsert().Model(row).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("exclude group: %w", err)
	}
	_, err := s.db.NewUpdate().
		Model((*models.Game)(nil)).
		Set("excluded = true").
		Set("updated_at = ?", time.Now().UTC()).
		Where("chat_id = ?", chatID).
		Where("group_key = ?", groupKey).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("flag excluded games: %w", err)
	}
	return nil
}

func (s *Store) UnexcludeGroup(ctx context.Context, chatID int64, groupKey string) error {
	_, err := s.db.NewDelete().
		Model((*models.ExcludedGroup)(nil)).
		Where("chat_id = ?", chatID).
		Where("group_key = ?", groupKey).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("unexclude group: %w", err)
	}
	_, err = s.db.NewUpdate().
		Model((*models.Game)(nil)).
		Set("excluded = false").
		Set("updated_at = ?", time.Now().UTC()).
		Where("chat_id = ?", chatID).
		Where("group_key = ?", groupKey).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("unflag excluded games: %w", err)
	}
	return nil
}

func (s *Store) MarkGroupPlayed(ctx context.Context, chatID int64, groupKey string) error {
	row := &models.PlayedGroup{ChatID: chatID, GroupKey: groupKey}
	_, err := s.db.NewInsert().Model(row).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark group played: %w", err)
	}
	return nil
}

func (s *Store) UnmarkGroupPlayed(ctx context.Context, chatID int64, groupKey string) error {
	_, err := s.db.NewDelete().
		Model((*models.PlayedGroup)(nil)).
		Where("chat_id = ?", chatID).
		Where("group_key = ?", groupKey).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("unmark group played: %w", err)
	}
	return nil
}

// ---------- Settings ----------

func (s *Store) Setting(ctx context.Context, chatID int64, key string) (string, error) {
	row := new(models.ChatSetting)
	err := s.db.NewSelect().
		Model(row).
		Where("chat_id = ?", chatID).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select setting %s: %w", key, err)
	}
	return row.Value, nil
}

func (s *Store) SetSetting(ctx context.Context, chatID int64, key, value string) error {
	row := &models.ChatSetting{ChatID: chatID, Key: key, Value: value}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (chat_id, key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) DeleteSetting(ctx context.Context, chatID int64, key string) error {
	_, err := s.db.NewDelete().
		Model((*models.ChatSetting)(nil)).
		Where("chat_id = ?", chatID).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

// ChatsWithSource lists every chat that has a schedule URL configured, with
// its last sync time (zero when never synced). Feeds the auto-sync scheduler.
func (s *Store) ChatsWithSource(ctx context.Context) (map[int64]SourceState, error) {
	var rows []models.ChatSetting
	err := s.db.NewSelect().
		Model(&rows).
		Where("key IN (?)", bun.In([]string{models.SettingSourceURL, models.SettingLastSyncAt})).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select chats with source: %w", err)
	}
	out := map[int64]SourceState{}
	for _, r := range rows {
		state := out[r.ChatID]
		switch r.Key {
		case models.SettingSourceURL:
			state.SourceURL = r.Value
		case models.SettingLastSyncAt:
			if t, err := time.Parse(time.RFC3339, r.Value); err == nil {
				state.LastSyncAt = t
			}
		}
		out[r.ChatID] = state
	}
	for chatID, state := range out {
		if state.SourceURL == "" {
			delete(out, chatID)
		}
	}
	return out, nil
}

// SourceState is one chat's schedule source plus its last sync time.
type SourceState struct {
	SourceURL  string
	LastSyncAt time.Time
}

// ---------- Team info ----------

func (s *Store) TeamInfo(ctx context.Context, chatID int64) (*models.TeamInfo, error) {
	info := new(models.TeamInfo)
	err := s.db.NewSelect().Model(info).Where("chat_id = ?", chatID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select team info: %w", err)
	}
	return info, nil
}

func (s *Store) SaveTeamInfo(ctx context.Context, info *models.TeamInfo) error {
	_, err := s.db.NewInsert().
		Model(info).
		On("CONFLICT (chat_id) DO UPDATE").
		Set("team_name = EXCLUDED.team_name").
		Set("captain_name = EXCLUDED.captain_name").
		Set("email = EXCLUDED.email").
		Set("phone = EXCLUDED.phone").
		Set("player_count = EXCLUDED.player_count").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save team info: %w", err)
	}
	return nil
}
