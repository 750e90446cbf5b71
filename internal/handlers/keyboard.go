package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"nai-prompt-bot/internal/preset"
	"nai-prompt-bot/internal/session"
)

const (
	callbackPrefix = "rp"
	// Telegram rejects callback data longer than this.
	maxCallbackData = 64
)

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.From == nil {
		return nil
	}
	data := strings.TrimSpace(q.Data)
	if !strings.HasPrefix(data, callbackPrefix+":") {
		return nil
	}

	parts := strings.Split(data, ":")
	if len(parts) < 3 {
		return nil
	}

	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	if ownerID != q.From.ID {
		_ = h.tg.AnswerCallback(q.ID, "This menu belongs to someone else.", true)
		return nil
	}

	action := parts[2]
	args := parts[3:]
	chatID := q.Message.Chat.ID
	username := q.From.UserName
	cmd := Command{ChatID: chatID, UserID: ownerID, Username: username}

	switch action {
	case "preset", "gender", "scope":
		if len(args) < 1 {
			return nil
		}
		value := strings.Join(args, ":")
		ok := true
		h.sessions.Update(ownerID, username, func(st *session.Settings) {
			switch action {
			case "preset":
				if p, err := h.presets.Get(value); err == nil {
					st.PresetID = p.ID
				} else {
					ok = false
				}
			case "gender":
				if g, err := parseGender(value); err == nil {
					st.Gender = g
				} else {
					ok = false
				}
			case "scope":
				if sc, err := parseScope(value); err == nil {
					st.Scope = sc
				} else {
					ok = false
				}
			}
		})
		if !ok {
			_ = h.tg.AnswerCallback(q.ID, "That option is gone.", true)
			return nil
		}
		_ = h.tg.AnswerCallback(q.ID, "OK", false)

		st := h.sessions.Settings(ownerID, username)
		list := h.presets.List()
		// Telegram reports an error when nothing changed; the menu is still valid.
		if err := h.tg.EditTextWithKeyboard(chatID, q.Message.MessageID, settingsText(st, list), settingsKeyboard(ownerID, st, list)); err != nil {
			h.logger.Debug("settings menu edit failed", "err", err)
		}
		return nil
	case "reroll":
		_ = h.tg.AnswerCallback(q.ID, "Rolling…", false)
		return h.random(ctx, cmd, h.newSeed())
	case "trace":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.HandleCommand(ctx, Command{ChatID: chatID, UserID: ownerID, Username: username, Name: "trace"})
	case "image":
		if len(args) < 1 {
			return nil
		}
		seed, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return nil
		}
		_ = h.tg.AnswerCallback(q.ID, "Rendering…", false)
		return h.image(ctx, cmd, seed)
	case "close":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return nil
	default:
		_ = h.tg.AnswerCallback(q.ID, "OK", false)
		return nil
	}
}

func settingsText(st session.Settings, list []*preset.Preset) string {
	var b strings.Builder
	b.WriteString("⚙️ Settings\n\n")

	current := "(first available)"
	for _, p := range list {
		if p.ID == st.PresetID {
			current = presetLabel(p)
		}
	}
	fmt.Fprintf(&b, "Preset: %s\n", current)
	fmt.Fprintf(&b, "Gender: %s\n", genderLabel(st.Gender))
	scope := st.Scope
	if scope == "" {
		scope = preset.ScopeAll
	}
	fmt.Fprintf(&b, "Scope: %s\n", scope)

	if len(list) == 0 {
		b.WriteString("\nNo presets loaded.")
	} else {
		fmt.Fprintf(&b, "\n%d preset(s) available.", len(list))
	}
	return b.String()
}

func settingsKeyboard(ownerID int64, st session.Settings, list []*preset.Preset) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	for _, p := range list {
		data := cb(ownerID, "preset", p.ID)
		if len(data) > maxCallbackData {
			continue
		}
		label := truncateLine(presetLabel(p), 40)
		if p.ID == st.PresetID {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}

	genders := []struct {
		value preset.Gender
		key   string
	}{
		{preset.GenderFemale, "female"},
		{preset.GenderMale, "male"},
		{preset.GenderOther, "other"},
		{preset.GenderNone, "none"},
	}
	var genderRow []tgbotapi.InlineKeyboardButton
	for _, g := range genders {
		genderRow = append(genderRow, tgbotapi.NewInlineKeyboardButtonData(checked(genderLabel(g.value), st.Gender == g.value), cb(ownerID, "gender", g.key)))
	}
	rows = append(rows, genderRow)

	var scopeRow []tgbotapi.InlineKeyboardButton
	for _, sc := range []preset.Scope{preset.ScopeAll, preset.ScopeCharacter, preset.ScopeScene} {
		active := st.Scope == sc || (st.Scope == "" && sc == preset.ScopeAll)
		scopeRow = append(scopeRow, tgbotapi.NewInlineKeyboardButtonData(checked(string(sc), active), cb(ownerID, "scope", string(sc))))
	}
	rows = append(rows, scopeRow)

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🎲 Random", cb(ownerID, "reroll")),
		tgbotapi.NewInlineKeyboardButtonData("Close", cb(ownerID, "close")),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func resultKeyboard(ownerID int64, seed uint64, withImage bool) tgbotapi.InlineKeyboardMarkup {
	row := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("🎲 Reroll", cb(ownerID, "reroll")),
		tgbotapi.NewInlineKeyboardButtonData("🔎 Trace", cb(ownerID, "trace")),
	}
	if withImage {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("🎨 Image", cb(ownerID, "image", strconv.FormatUint(seed, 10))))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func cb(ownerID int64, parts ...string) string {
	return fmt.Sprintf("%s:%d:%s", callbackPrefix, ownerID, strings.Join(parts, ":"))
}

func checked(label string, v bool) string {
	if v {
		return "✅ " + label
	}
	return label
}

func truncateLine(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len([]rune(s)) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max])) + "…"
}
