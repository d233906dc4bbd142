package tgbot

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"quizbot/internal/config"
	"quizbot/internal/models"
	"quizbot/internal/pollsvc"
	"quizbot/internal/regsvc"
	"quizbot/internal/store"
	"quizbot/internal/syncsvc"
	"quizbot/internal/util"
)

const (
	defaultDaysAhead = 30
	buttonTTL        = 6 * time.Hour
)

// Callback data prefixes.
const (
	cbGroupPlayed   = "gp:"
	cbGroupUnplayed = "gu:"
	cbGroupExclude  = "ge:"
	cbGroupInclude  = "gi:"
	cbTypeExclude   = "te:"
	cbTypeInclude   = "ti:"
	cbPollToggle    = "rp:"
	cbPollsDone     = "rd"
	cbGameToggle    = "rg:"
	cbRegSubmit     = "rs"
	cbRegCancel     = "rc"
	cbSourceOK      = "so"
	cbSourceNo      = "sn"
)

type App struct {
	cfg      config.Config
	bot      *tgbotapi.BotAPI
	st       *store.Store
	queue    *syncsvc.Queue
	builder  pollsvc.Builder
	selector *regsvc.Selector

	buttons *buttonMap
	teamCap *chatState[*teamCapture]

	// last winner list shown per chat, needed to redraw checkmarks
	lastGames *chatState[[]regsvc.WinningGame]
}

func New(cfg config.Config, st *store.Store, queue *syncsvc.Queue, selector *regsvc.Selector) (*App, error) {
	b, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	b.Debug = false
	return &App{
		cfg:   cfg,
		bot:   b,
		st:    st,
		queue: queue,
		builder: pollsvc.Builder{
			MaxOptions: cfg.MaxPollOptions,
			Offset:     cfg.CivilOffset,
		},
		selector:  selector,
		buttons:   newButtonMap(buttonTTL),
		teamCap:   newChatState[*teamCapture](buttonTTL),
		lastGames: newChatState[[]regsvc.WinningGame](buttonTTL),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			switch {
			case upd.Message != nil:
				if err := a.handleMessage(ctx, upd.Message); err != nil {
					log.Printf("handle msg: %v", err)
				}
			case upd.CallbackQuery != nil:
				if err := a.handleCallback(ctx, upd.CallbackQuery); err != nil {
					log.Printf("handle cb: %v", err)
				}
			case upd.PollAnswer != nil:
				if err := a.handlePollAnswer(ctx, upd.PollAnswer); err != nil {
					log.Printf("handle poll answer: %v", err)
				}
			}
		}
	}
}

func (a *App) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := a.bot.Send(msg)
	return err
}

// ---------- Messages ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	chatID := m.Chat.ID
	txt := strings.TrimSpace(m.Text)

	if tc, ok := a.teamCap.Get(chatID); ok && !strings.HasPrefix(txt, "/") {
		return a.handleTeamInput(ctx, chatID, txt, tc)
	}

	cmd := txt
	arg := ""
	if i := strings.IndexByte(txt, ' '); i >= 0 {
		cmd, arg = txt[:i], strings.TrimSpace(txt[i+1:])
	}
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start", "/help":
		return a.showHelp(chatID)
	case "/set_source":
		return a.setSource(ctx, chatID, arg)
	case "/sync":
		return a.runSync(ctx, chatID)
	case "/games":
		return a.showGames(ctx, chatID)
	case "/groups":
		return a.showGroups(ctx, chatID)
	case "/types", "/exclude":
		return a.showTypes(ctx, chatID)
	case "/polls":
		return a.createGroupPolls(ctx, chatID)
	case "/polls_by_dates":
		return a.createDatePolls(ctx, chatID, arg)
	case "/voters":
		return a.showVoters(ctx, chatID)
	case "/team":
		return a.startTeamCapture(ctx, chatID)
	case "/register":
		return a.startRegistration(ctx, chatID)
	case "/prune":
		if !a.isAdmin(m.From) {
			return a.SendText(chatID, "Команда доступна только администратору.")
		}
		return a.prune(ctx, chatID)
	case "/reset":
		if !a.isAdmin(m.From) {
			return a.SendText(chatID, "Команда доступна только администратору.")
		}
		return a.reset(ctx, chatID)
	case "/status":
		return a.showStatus(chatID)
	}
	return nil
}

// isAdmin allows everyone when no admin list is configured.
func (a *App) isAdmin(u *tgbotapi.User) bool {
	if len(a.cfg.AdminTGIDs) == 0 {
		return true
	}
	return u != nil && a.cfg.AdminTGIDs[u.ID]
}

func (a *App) showHelp(chatID int64) error {
	return a.SendText(chatID,
		"Привет! Я слежу за расписанием квизов.\n\n"+
			"/set_source <url> — адрес расписания города\n"+
			"/sync — синхронизировать расписание\n"+
			"/games — ближайшие игры\n"+
			"/groups — пакеты игр\n"+
			"/types — типы игр (исключение)\n"+
			"/polls — опросы по пакетам\n"+
			"/polls_by_dates <дней> — опрос по датам\n"+
			"/voters — кто за что голосовал\n"+
			"/team — данные команды\n"+
			"/register — регистрация по итогам опросов\n"+
			"/prune — убрать прошедшие игры\n"+
			"/status — состояние очереди синхронизации")
}

// ---------- Source / sync ----------

func (a *App) setSource(ctx context.Context, chatID int64, raw string) error {
	if raw == "" {
		current, err := a.st.Setting(ctx, chatID, models.SettingSourceURL)
		if err != nil {
			return err
		}
		if current == "" {
			return a.SendText(chatID, "Источник не задан. Пример: /set_source https://spb.quizplease.ru/schedule")
		}
		return a.SendText(chatID, "Текущий источник: "+current)
	}

	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(u.Hostname(), "quizplease.ru") || !strings.Contains(u.Path, "/schedule") {
		return a.SendText(chatID, "Это не похоже на адрес расписания. Нужна ссылка вида https://<город>.quizplease.ru/schedule")
	}

	if err := a.st.SetSetting(ctx, chatID, models.SettingPendingSourceURL, raw); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, "Сменить источник на "+raw+"? Каталог этого чата будет очищен.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Да", cbSourceOK),
			tgbotapi.NewInlineKeyboardButtonData("❌ Нет", cbSourceNo),
		),
	)
	_, err = a.bot.Send(msg)
	return err
}

func (a *App) confirmSource(ctx context.Context, chatID int64, accept bool) error {
	pending, err := a.st.Setting(ctx, chatID, models.SettingPendingSourceURL)
	if err != nil {
		return err
	}
	if err := a.st.DeleteSetting(ctx, chatID, models.SettingPendingSourceURL); err != nil {
		return err
	}
	if !accept || pending == "" {
		return a.SendText(chatID, "Источник не изменён.")
	}
	if err := a.st.ResetChat(ctx, chatID); err != nil {
		return err
	}
	if err := a.st.SetSetting(ctx, chatID, models.SettingSourceURL, pending); err != nil {
		return err
	}
	return a.SendText(chatID, "✅ Источник обновлён. Запусти /sync")
}

func (a *App) runSync(ctx context.Context, chatID int64) error {
	sourceURL, err := a.st.Setting(ctx, chatID, models.SettingSourceURL)
	if err != nil {
		return err
	}
	if sourceURL == "" && a.cfg.DefaultSourceURL != "" {
		sourceURL = a.cfg.DefaultSourceURL
		if err := a.st.SetSetting(ctx, chatID, models.SettingSourceURL, sourceURL); err != nil {
			return err
		}
	}
	if sourceURL == "" {
		return a.SendText(chatID, "Сначала задай источник: /set_source <url>")
	}

	if err := a.SendText(chatID, "⏳ Синхронизирую расписание..."); err != nil {
		return err
	}
	res, err := a.queue.Enqueue(ctx, chatID, sourceURL)
	if err != nil {
		return a.SendText(chatID, "❌ Синхронизация не удалась: "+err.Error())
	}
	if err := a.st.SetSetting(ctx, chatID, models.SettingLastSyncAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return a.SendText(chatID, fmt.Sprintf(
		"✅ Готово.\nДобавлено игр: %d.\nИсключено из обработки: %d.\nПропущено: %d.",
		res.Added, res.Excluded, res.Skipped))
}

// ---------- Catalog views ----------

func (a *App) showGames(ctx context.Context, chatID int64) error {
	games, err := a.st.UpcomingGames(ctx, chatID, defaultDaysAhead)
	if err != nil {
		return err
	}
	if len(games) == 0 {
		return a.SendText(chatID, "Будущих игр нет. Попробуй /sync")
	}
	var sb strings.Builder
	sb.WriteString("🎲 Ближайшие игры:\n\n")
	for _, g := range games {
		sb.WriteString(fmt.Sprintf("%s — %s", util.FormatDateTime(g.DateTime, a.cfg.CivilOffset), g.Title))
		if g.Venue != "" {
			sb.WriteString(" (" + g.Venue + ")")
		}
		if g.Registered {
			sb.WriteString(" ✅")
		}
		sb.WriteByte('\n')
	}
	return a.SendText(chatID, sb.String())
}

func (a *App) showGroups(ctx context.Context, chatID int64) error {
	groups, err := a.st.UpcomingGroups(ctx, chatID, defaultDaysAhead)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return a.SendText(chatID, "Пакетов пока нет. Попробуй /sync")
	}

	for _, grp := range groups {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("📦 %s #%s — дат: %d", grp.TypeName, grp.Number, len(grp.Games)))
		if grp.Played {
			sb.WriteString("\nСыгран ✔️")
		}
		if grp.RegisteredCount > 0 {
			sb.WriteString(fmt.Sprintf("\nРегистраций: %d", grp.RegisteredCount))
		}
		if grp.PolledByPackage {
			sb.WriteString("\nОпрос по пакету уже был")
		}
		if grp.PolledByDate {
			sb.WriteString("\nПопадал в опрос по датам")
		}

		token := a.buttons.Put(grp.GroupKey)
		playedBtn := tgbotapi.NewInlineKeyboardButtonData("✔️ Сыгран", cbGroupPlayed+token)
		if grp.Played {
			playedBtn = tgbotapi.NewInlineKeyboardButtonData("↩️ Не сыгран", cbGroupUnplayed+token)
		}
		msg := tgbotapi.NewMessage(chatID, sb.String())
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				playedBtn,
				tgbotapi.NewInlineKeyboardButtonData("🚫 Исключить", cbGroupExclude+token),
			),
		)
		if _, err := a.bot.Send(msg); err != nil {
			return err
		}
	}

	excluded, err := a.st.ExcludedGroups(ctx, chatID)
	if err != nil {
		return err
	}
	if len(excluded) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(excluded))
		for _, key := range excluded {
			token := a.buttons.Put(key)
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("↩️ "+util.Truncate(key, 40), cbGroupInclude+token),
			))
		}
		msg := tgbotapi.NewMessage(chatID, "Исключённые пакеты:")
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
		if _, err := a.bot.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) showTypes(ctx context.Context, chatID int64) error {
	groups, err := a.st.UpcomingGroups(ctx, chatID, defaultDaysAhead)
	if err != nil {
		return err
	}
	excluded, err := a.st.ExcludedTypes(ctx, chatID)
	if err != nil {
		return err
	}
	excludedSet := map[string]bool{}
	for _, t := range excluded {
		excludedSet[strings.ToLower(t)] = true
	}

	seen := map[string]bool{}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, grp := range groups {
		key := strings.ToLower(grp.TypeName)
		if seen[key] {
			continue
		}
		seen[key] = true
		token := a.buttons.Put(grp.TypeName)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚫 "+util.Truncate(grp.TypeName, 40), cbTypeExclude+token),
		))
	}
	for _, t := range excluded {
		token := a.buttons.Put(t)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("↩️ "+util.Truncate(t, 40), cbTypeInclude+token),
		))
	}
	if len(rows) == 0 {
		return a.SendText(chatID, "Типов пока нет. Попробуй /sync")
	}

	msg := tgbotapi.NewMessage(chatID, "Типы игр. 🚫 — исключить из синка, ↩️ — вернуть:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = a.bot.Send(msg)
	return err
}

// ---------- Polls ----------

func (a *App) createGroupPolls(ctx context.Context, chatID int64) error {
	groups, err := a.st.UpcomingGroups(ctx, chatID, defaultDaysAhead)
	if err != nil {
		return err
	}
	created := 0
	for _, grp := range groups {
		if grp.Played || grp.PolledByPackage || len(grp.Games) == 0 {
			continue
		}
		for _, spec := range a.builder.BuildGroupPolls(grp) {
			if err := a.sendPoll(ctx, chatID, spec); err != nil {
				return err
			}
			created++
		}
	}
	if created == 0 {
		return a.SendText(chatID, "Нечего опрашивать: все пакеты уже охвачены.")
	}
	return a.SendText(chatID, fmt.Sprintf("Создано %d %s.", created, util.PollWord(created)))
}

func (a *App) createDatePolls(ctx context.Context, chatID int64, arg string) error {
	days := 7
	if arg != "" {
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			days = n
		}
	}
	games, err := a.st.UpcomingGames(ctx, chatID, days)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	specs := a.builder.BuildDatePolls(games, now, now.AddDate(0, 0, days))
	if len(specs) == 0 {
		return a.SendText(chatID, "В этом периоде игр нет.")
	}
	for _, spec := range specs {
		if err := a.sendPoll(ctx, chatID, spec); err != nil {
			return err
		}
	}
	return a.SendText(chatID, fmt.Sprintf("Создано %d %s.", len(specs), util.PollWord(len(specs))))
}

func (a *App) sendPoll(ctx context.Context, chatID int64, spec pollsvc.Spec) error {
	labels := make([]string, 0, len(spec.Options))
	for _, opt := range spec.Options {
		labels = append(labels, opt.Label)
	}
	poll := tgbotapi.NewPoll(chatID, spec.Title, labels...)
	poll.IsAnonymous = false
	poll.AllowsMultipleAnswers = true

	sent, err := a.bot.Send(poll)
	if err != nil {
		return fmt.Errorf("send poll: %w", err)
	}
	if sent.Poll == nil {
		return fmt.Errorf("send poll: provider returned no poll object")
	}

	if err := a.st.InsertPoll(ctx, &models.Poll{
		PollID:    sent.Poll.ID,
		ChatID:    chatID,
		MessageID: sent.MessageID,
		GroupKey:  spec.GroupKey,
		Title:     spec.Title,
	}); err != nil {
		return err
	}
	for i, opt := range spec.Options {
		if err := a.st.InsertPollOption(ctx, &models.PollOption{
			PollID:         sent.Poll.ID,
			OptionID:       i,
			GameExternalID: opt.GameExternalID,
			Unavailable:    opt.Unavailable,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) handlePollAnswer(ctx context.Context, ans *tgbotapi.PollAnswer) error {
	exists, err := a.st.PollExists(ctx, ans.PollID)
	if err != nil {
		return err
	}
	if !exists {
		log.Printf("[polls] vote for unknown poll %s, ignoring", ans.PollID)
		return nil
	}

	var nameParts []string
	if ans.User.UserName != "" {
		nameParts = append(nameParts, "@"+ans.User.UserName)
	}
	if ans.User.FirstName != "" {
		nameParts = append(nameParts, ans.User.FirstName)
	}
	if ans.User.LastName != "" {
		nameParts = append(nameParts, ans.User.LastName)
	}
	displayName := strings.Join(nameParts, " ")
	if displayName == "" {
		displayName = fmt.Sprintf("user_%d", ans.User.ID)
	}

	return a.st.UpsertVote(ctx, &models.Vote{
		PollID:      ans.PollID,
		UserID:      ans.User.ID,
		DisplayName: displayName,
		OptionIDs:   ans.OptionIDs,
	})
}

func (a *App) showVoters(ctx context.Context, chatID int64) error {
	names, err := a.st.VoterNamesByGame(ctx, chatID)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return a.SendText(chatID, "Голосов пока нет.")
	}
	games, err := a.st.UpcomingGames(ctx, chatID, defaultDaysAhead)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("🗳 Кто за что голосовал:\n\n")
	listed := 0
	for _, g := range games {
		voters := names[g.ExternalID]
		if len(voters) == 0 {
			continue
		}
		listed++
		sb.WriteString(fmt.Sprintf("%s — %s:\n", util.FormatDateTime(g.DateTime, a.cfg.CivilOffset), g.Title))
		for _, v := range voters {
			sb.WriteString("  • " + v + "\n")
		}
	}
	if listed == 0 {
		return a.SendText(chatID, "Голосов по будущим играм нет.")
	}
	return a.SendText(chatID, sb.String())
}

// ---------- Maintenance ----------

func (a *App) prune(ctx context.Context, chatID int64) error {
	n, err := a.st.PruneExpired(ctx, chatID)
	if err != nil {
		return err
	}
	return a.SendText(chatID, fmt.Sprintf("🧹 Удалено прошедших игр: %d", n))
}

func (a *App) reset(ctx context.Context, chatID int64) error {
	if err := a.st.ResetChat(ctx, chatID); err != nil {
		return err
	}
	a.selector.Cancel(chatID)
	a.teamCap.Delete(chatID)
	a.lastGames.Delete(chatID)
	return a.SendText(chatID, "♻️ Данные чата очищены.")
}

func (a *App) showStatus(chatID int64) error {
	running, queued := a.queue.Status()
	return a.SendText(chatID, fmt.Sprintf("Синхронизаций выполняется: %d, в очереди: %d", running, queued))
}
