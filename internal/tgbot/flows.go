package tgbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"quizbot/internal/models"
	"quizbot/internal/regsvc"
	"quizbot/internal/util"
)

// teamCapture walks the chat through team fields one message at a time,
// the same way the profile questionnaire works.
type teamCapture struct {
	step int
	info models.TeamInfo
}

var teamPrompts = []string{
	"Название команды?",
	"Имя капитана?",
	"Email для подтверждения?",
	"Телефон?",
	"Сколько игроков? (число)",
}

func (a *App) startTeamCapture(ctx context.Context, chatID int64) error {
	existing, err := a.st.TeamInfo(ctx, chatID)
	if err != nil {
		return err
	}
	tc := &teamCapture{}
	if existing != nil {
		tc.info = *existing
	}
	a.teamCap.Put(chatID, tc)
	return a.SendText(chatID, teamPrompts[0])
}

func (a *App) handleTeamInput(ctx context.Context, chatID int64, txt string, tc *teamCapture) error {
	switch tc.step {
	case 0:
		tc.info.TeamName = txt
	case 1:
		tc.info.CaptainName = txt
	case 2:
		if !strings.Contains(txt, "@") {
			return a.SendText(chatID, "Не похоже на email, попробуй ещё раз.")
		}
		tc.info.Email = txt
	case 3:
		tc.info.Phone = txt
	case 4:
		n, err := strconv.Atoi(txt)
		if err != nil || n < 1 {
			return a.SendText(chatID, "Нужно число игроков, например 6.")
		}
		tc.info.PlayerCount = n
	}
	tc.step++
	if tc.step < len(teamPrompts) {
		return a.SendText(chatID, teamPrompts[tc.step])
	}

	a.teamCap.Delete(chatID)
	tc.info.ChatID = chatID
	if err := a.st.SaveTeamInfo(ctx, &tc.info); err != nil {
		return err
	}
	return a.SendText(chatID, fmt.Sprintf(
		"✅ Команда сохранена: %s, капитан %s, игроков: %d",
		tc.info.TeamName, tc.info.CaptainName, tc.info.PlayerCount))
}

// ---------- Registration wizard ----------

func (a *App) startRegistration(ctx context.Context, chatID int64) error {
	team, err := a.st.TeamInfo(ctx, chatID)
	if err != nil {
		return err
	}
	if team == nil || !team.Complete() {
		return a.SendText(chatID, "Сначала заполни данные команды: /team")
	}

	polls, err := a.st.UnprocessedPolls(ctx, chatID)
	if err != nil {
		return err
	}
	if len(polls) == 0 {
		return a.SendText(chatID, "Необработанных опросов нет. Сначала /polls")
	}

	a.selector.Cancel(chatID)
	return a.sendPollChoices(chatID, polls)
}

func (a *App) pollChoiceMarkup(chatID int64, polls []models.Poll) tgbotapi.InlineKeyboardMarkup {
	sel := a.selector.Selection(chatID)
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(polls)+1)
	for _, p := range polls {
		mark := "▫️"
		if sel.SelectedPolls[p.PollID] {
			mark = "☑️"
		}
		token := a.buttons.Put(p.PollID)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark+" "+util.Truncate(p.Title, 48), cbPollToggle+token),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("➡️ Дальше", cbPollsDone),
		tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", cbRegCancel),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (a *App) sendPollChoices(chatID int64, polls []models.Poll) error {
	msg := tgbotapi.NewMessage(chatID, "Выбери опросы, по которым регистрируемся:")
	msg.ReplyMarkup = a.pollChoiceMarkup(chatID, polls)
	_, err := a.bot.Send(msg)
	return err
}

func (a *App) gameChoiceMarkup(chatID int64, games []regsvc.WinningGame) tgbotapi.InlineKeyboardMarkup {
	sel := a.selector.Selection(chatID)
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(games)+1)
	for _, wg := range games {
		mark := "▫️"
		if sel.SelectedGames[wg.Game.ExternalID] {
			mark = "☑️"
		}
		label := fmt.Sprintf("%s %s (голосов: %d)",
			util.FormatDayMonth(wg.Game.DateTime, a.cfg.CivilOffset), util.Truncate(wg.Game.Title, 30), wg.Votes)
		token := a.buttons.Put(wg.Game.ExternalID)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark+" "+label, cbGameToggle+token),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🚀 Зарегистрировать", cbRegSubmit),
		tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", cbRegCancel),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (a *App) sendGameChoices(chatID int64, games []regsvc.WinningGame) error {
	a.lastGames.Put(chatID, games)
	msg := tgbotapi.NewMessage(chatID, "Игры-победители. Отметь нужные:")
	msg.ReplyMarkup = a.gameChoiceMarkup(chatID, games)
	_, err := a.bot.Send(msg)
	return err
}

// ---------- Callbacks ----------

func (a *App) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.Message == nil {
		return nil
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data

	ack := func(text string) {
		// stale callbacks after restarts are expected, nothing to do on error
		_, _ = a.bot.Request(tgbotapi.NewCallback(cb.ID, text))
	}

	resolve := func(prefix string) (string, bool) {
		v, ok := a.buttons.Get(strings.TrimPrefix(data, prefix))
		if !ok {
			ack("Кнопка устарела, открой список заново")
		}
		return v, ok
	}

	switch {
	case strings.HasPrefix(data, cbGroupPlayed):
		key, ok := resolve(cbGroupPlayed)
		if !ok {
			return nil
		}
		if err := a.st.MarkGroupPlayed(ctx, chatID, key); err != nil {
			return err
		}
		ack("Пакет отмечен сыгранным")
	case strings.HasPrefix(data, cbGroupUnplayed):
		key, ok := resolve(cbGroupUnplayed)
		if !ok {
			return nil
		}
		if err := a.st.UnmarkGroupPlayed(ctx, chatID, key); err != nil {
			return err
		}
		ack("Отметка снята")
	case strings.HasPrefix(data, cbGroupExclude):
		key, ok := resolve(cbGroupExclude)
		if !ok {
			return nil
		}
		if err := a.st.ExcludeGroup(ctx, chatID, key); err != nil {
			return err
		}
		ack("Пакет исключён")
	case strings.HasPrefix(data, cbGroupInclude):
		key, ok := resolve(cbGroupInclude)
		if !ok {
			return nil
		}
		if err := a.st.UnexcludeGroup(ctx, chatID, key); err != nil {
			return err
		}
		ack("Пакет возвращён")
	case strings.HasPrefix(data, cbTypeExclude):
		name, ok := resolve(cbTypeExclude)
		if !ok {
			return nil
		}
		if err := a.st.ExcludeType(ctx, chatID, name); err != nil {
			return err
		}
		ack("Тип исключён: " + name)
	case strings.HasPrefix(data, cbTypeInclude):
		name, ok := resolve(cbTypeInclude)
		if !ok {
			return nil
		}
		if err := a.st.UnexcludeType(ctx, chatID, name); err != nil {
			return err
		}
		ack("Тип возвращён: " + name)

	case strings.HasPrefix(data, cbPollToggle):
		pollID, ok := resolve(cbPollToggle)
		if !ok {
			return nil
		}
		a.selector.TogglePoll(chatID, pollID)
		ack("")
		polls, err := a.st.UnprocessedPolls(ctx, chatID)
		if err != nil {
			return err
		}
		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, cb.Message.MessageID, a.pollChoiceMarkup(chatID, polls))
		_, err = a.bot.Send(edit)
		return err
	case data == cbPollsDone:
		ack("")
		games, err := a.selector.ChooseGames(ctx, chatID)
		if err != nil {
			if errors.Is(err, regsvc.ErrNoPollsSelected) {
				return a.SendText(chatID, "Ни один опрос не выбран.")
			}
			return err
		}
		if len(games) == 0 {
			a.selector.Cancel(chatID)
			return a.SendText(chatID, "В выбранных опросах нет игр-победителей (мало голосов).")
		}
		return a.sendGameChoices(chatID, games)
	case strings.HasPrefix(data, cbGameToggle):
		extID, ok := resolve(cbGameToggle)
		if !ok {
			return nil
		}
		a.selector.ToggleGame(chatID, extID)
		ack("")
		games, ok := a.lastGames.Get(chatID)
		if !ok {
			return nil
		}
		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, cb.Message.MessageID, a.gameChoiceMarkup(chatID, games))
		_, err := a.bot.Send(edit)
		return err
	case data == cbRegSubmit:
		ack("")
		return a.submitRegistration(ctx, chatID)
	case data == cbRegCancel:
		a.selector.Cancel(chatID)
		a.lastGames.Delete(chatID)
		ack("Отменено")
		return a.SendText(chatID, "Регистрация отменена.")

	case data == cbSourceOK:
		ack("")
		return a.confirmSource(ctx, chatID, true)
	case data == cbSourceNo:
		ack("")
		return a.confirmSource(ctx, chatID, false)
	}
	return nil
}

func (a *App) submitRegistration(ctx context.Context, chatID int64) error {
	if err := a.SendText(chatID, "⏳ Регистрирую..."); err != nil {
		return err
	}

	subCtx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	report, err := a.selector.Submit(subCtx, chatID)
	a.lastGames.Delete(chatID)
	if err != nil {
		switch {
		case errors.Is(err, regsvc.ErrNoGamesSelected):
			return a.SendText(chatID, "Ни одна игра не выбрана.")
		case errors.Is(err, regsvc.ErrTeamIncomplete):
			return a.SendText(chatID, "Данные команды неполные, заполни заново: /team")
		}
		return a.SendText(chatID, "❌ Регистрация не удалась: "+err.Error())
	}

	var sb strings.Builder
	if report.Registered > 0 {
		sb.WriteString(fmt.Sprintf("✅ Зарегистрировано игр: %d\n", report.Registered))
	}
	if report.Failed > 0 {
		sb.WriteString(fmt.Sprintf("❌ Не удалось: %d\n", report.Failed))
	}
	if sb.Len() == 0 {
		sb.WriteString("Нечего было регистрировать.")
	}
	return a.SendText(chatID, sb.String())
}
