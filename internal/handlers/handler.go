package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"nai-prompt-bot/internal/compose"
	"nai-prompt-bot/internal/engine"
	"nai-prompt-bot/internal/gemini"
	"nai-prompt-bot/internal/pool"
	"nai-prompt-bot/internal/preset"
	"nai-prompt-bot/internal/session"
	"nai-prompt-bot/internal/telegram"
)

// Messenger is the subset of the Telegram client the handler talks to.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendCode(chatID int64, text string) error
	SendPhotoDataURL(chatID int64, dataURL string, caption string) error
	SendTextWithKeyboard(chatID int64, text string, kb telegram.InlineKeyboard) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb telegram.InlineKeyboard) error
	AnswerCallback(callbackID string, text string, alert bool) error
	SendTyping(chatID int64)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, opts gemini.ImageOptions) ([]string, error)
}

type PresetSource interface {
	Get(idOrName string) (*preset.Preset, error)
	List() []*preset.Preset
}

type Options struct {
	Messenger Messenger
	// Images is optional; without it /image is disabled.
	Images   ImageGenerator
	Presets  PresetSource
	Engine   *engine.Engine
	Composer *compose.Composer
	// Pools is optional; without it /pool is disabled.
	Pools    pool.Previewer
	Sessions *session.Store
	Logger   *slog.Logger
	// NewSeed draws a seed when the user gives none.
	NewSeed func() uint64
}

type Handler struct {
	tg       Messenger
	images   ImageGenerator
	presets  PresetSource
	engine   *engine.Engine
	composer *compose.Composer
	pools    pool.Previewer
	sessions *session.Store
	logger   *slog.Logger
	newSeed  func() uint64
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	eng := opts.Engine
	if eng == nil {
		eng = engine.New(engine.Options{Logger: logger})
	}
	composer := opts.Composer
	if composer == nil {
		composer = compose.New(compose.Options{Engine: eng, Logger: logger})
	}
	newSeed := opts.NewSeed
	if newSeed == nil {
		newSeed = rand.Uint64
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewStore(session.Options{})
	}

	return &Handler{
		tg:       opts.Messenger,
		images:   opts.Images,
		presets:  opts.Presets,
		engine:   eng,
		composer: composer,
		pools:    opts.Pools,
		sessions: sessions,
		logger:   logger,
		newSeed:  newSeed,
	}
}

// Command is one slash command, independent of the transport.
type Command struct {
	ChatID   int64
	UserID   int64
	Username string
	Name     string
	Args     string
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	msg := update.Message
	cmd := Command{
		ChatID:   msg.Chat.ID,
		UserID:   msg.From.ID,
		Username: msg.From.UserName,
	}
	switch {
	case msg.IsCommand():
		cmd.Name = msg.Command()
		cmd.Args = msg.CommandArguments()
	case strings.TrimSpace(msg.Text) != "":
		// Plain text picks a preset by name or ID.
		cmd.Name = "preset"
		cmd.Args = msg.Text
	default:
		return nil
	}
	return h.HandleCommand(ctx, cmd)
}

func (h *Handler) HandleCommand(ctx context.Context, cmd Command) error {
	args := strings.TrimSpace(cmd.Args)

	switch cmd.Name {
	case "start", "help":
		return h.tg.SendText(cmd.ChatID, helpText)
	case "presets":
		return h.sendSettings(cmd.ChatID, cmd.UserID, cmd.Username)
	case "preset":
		return h.selectPreset(cmd, args)
	case "gender":
		g, err := parseGender(args)
		if err != nil {
			return h.tg.SendText(cmd.ChatID, "❌ "+err.Error())
		}
		h.sessions.Update(cmd.UserID, cmd.Username, func(s *session.Settings) { s.Gender = g })
		return h.tg.SendText(cmd.ChatID, "✅ Gender: "+genderLabel(g))
	case "scope":
		sc, err := parseScope(args)
		if err != nil {
			return h.tg.SendText(cmd.ChatID, "❌ "+err.Error())
		}
		h.sessions.Update(cmd.UserID, cmd.Username, func(s *session.Settings) { s.Scope = sc })
		return h.tg.SendText(cmd.ChatID, "✅ Scope: "+string(sc))
	case "random":
		seed, err := parseSeed(args, h.newSeed)
		if err != nil {
			return h.tg.SendText(cmd.ChatID, "❌ "+err.Error())
		}
		return h.random(ctx, cmd, seed)
	case "compose":
		seed, err := parseSeed(args, h.newSeed)
		if err != nil {
			return h.tg.SendText(cmd.ChatID, "❌ "+err.Error())
		}
		return h.compose(ctx, cmd, seed)
	case "trace":
		res, ok := h.sessions.LastResult(cmd.UserID)
		if !ok {
			return h.tg.SendText(cmd.ChatID, "Nothing generated yet. Try /random.")
		}
		return h.tg.SendCode(cmd.ChatID, formatTrace(res.Trace))
	case "pool":
		return h.previewPool(ctx, cmd.ChatID, args)
	case "image":
		seed, err := parseSeed(args, h.newSeed)
		if err != nil {
			return h.tg.SendText(cmd.ChatID, "❌ "+err.Error())
		}
		return h.image(ctx, cmd, seed)
	case "clear":
		h.sessions.Clear(cmd.UserID)
		return h.tg.SendText(cmd.ChatID, "✅ Settings and history cleared.")
	default:
		return h.tg.SendText(cmd.ChatID, "❌ Unknown command. See /help.")
	}
}

const helpText = "🎲 Random prompt generator\n\n" +
	"/presets - list presets and settings\n" +
	"/preset <id|name> - choose a preset\n" +
	"/gender <female|male|other|none> - target gender\n" +
	"/scope <all|character|scene> - requested scope\n" +
	"/random [seed] - expand the preset\n" +
	"/compose [seed] - multi-character prompt\n" +
	"/trace - decisions of the last expansion\n" +
	"/pool <id> - preview a tag pool\n" +
	"/image [seed] - expand and render an image\n" +
	"/clear - reset settings"

func (h *Handler) selectPreset(cmd Command, args string) error {
	if args == "" {
		return h.sendSettings(cmd.ChatID, cmd.UserID, cmd.Username)
	}
	p, err := h.presets.Get(args)
	if err != nil {
		if errors.Is(err, preset.ErrNotFound) {
			return h.tg.SendText(cmd.ChatID, fmt.Sprintf("❌ No preset %q. See /presets.", args))
		}
		return err
	}
	h.sessions.Update(cmd.UserID, cmd.Username, func(s *session.Settings) { s.PresetID = p.ID })
	return h.tg.SendText(cmd.ChatID, "✅ Preset: "+presetLabel(p))
}

// currentPreset resolves the user's preset, falling back to the first one
// in the library.
func (h *Handler) currentPreset(userID int64, username string) (*preset.Preset, session.Settings, error) {
	st := h.sessions.Settings(userID, username)
	if st.PresetID != "" {
		p, err := h.presets.Get(st.PresetID)
		if err == nil {
			return p, st, nil
		}
		if !errors.Is(err, preset.ErrNotFound) {
			return nil, st, err
		}
	}

	all := h.presets.List()
	if len(all) == 0 {
		return nil, st, preset.ErrNotFound
	}
	st = h.sessions.Update(userID, username, func(s *session.Settings) { s.PresetID = all[0].ID })
	return all[0], st, nil
}

func (h *Handler) expand(ctx context.Context, cmd Command, seed uint64) (engine.Result, bool, error) {
	p, st, err := h.currentPreset(cmd.UserID, cmd.Username)
	if err != nil {
		if errors.Is(err, preset.ErrNotFound) {
			return engine.Result{}, false, h.tg.SendText(cmd.ChatID, "❌ No presets loaded.")
		}
		return engine.Result{}, false, err
	}

	res, err := h.engine.Expand(ctx, p, st.Context(), seed)
	if err != nil {
		h.logger.Warn("expand failed", "preset", p.ID, "err", err)
		return engine.Result{}, false, h.tg.SendText(cmd.ChatID, "❌ "+err.Error())
	}
	h.sessions.AppendResult(cmd.UserID, cmd.Username, res)
	return res, true, nil
}

func (h *Handler) random(ctx context.Context, cmd Command, seed uint64) error {
	res, ok, err := h.expand(ctx, cmd, seed)
	if !ok {
		return err
	}
	if err := h.tg.SendCode(cmd.ChatID, displayText(res.Text)); err != nil {
		return err
	}
	_, err = h.tg.SendTextWithKeyboard(cmd.ChatID, resultSummary(res), resultKeyboard(cmd.UserID, res.Seed, h.images != nil))
	return err
}

func (h *Handler) compose(ctx context.Context, cmd Command, seed uint64) error {
	p, _, err := h.currentPreset(cmd.UserID, cmd.Username)
	if err != nil {
		if errors.Is(err, preset.ErrNotFound) {
			return h.tg.SendText(cmd.ChatID, "❌ No presets loaded.")
		}
		return err
	}

	comp, err := h.composer.Compose(ctx, p, seed)
	if err != nil {
		h.logger.Warn("compose failed", "preset", p.ID, "err", err)
		return h.tg.SendText(cmd.ChatID, "❌ "+err.Error())
	}
	h.sessions.AppendResult(cmd.UserID, cmd.Username, comp.Main)
	return h.tg.SendCode(cmd.ChatID, formatComposition(comp))
}

func (h *Handler) previewPool(ctx context.Context, chatID int64, poolID string) error {
	if h.pools == nil {
		return h.tg.SendText(chatID, "❌ Tag pools are not configured.")
	}
	if poolID == "" {
		return h.tg.SendText(chatID, "Usage: /pool <id>")
	}

	tags, err := h.pools.Preview(ctx, poolID, previewLimit)
	if err != nil {
		h.logger.Warn("pool preview failed", "pool", poolID, "err", err)
		return h.tg.SendText(chatID, fmt.Sprintf("❌ Pool %q unavailable: %v", poolID, err))
	}
	return h.tg.SendCode(chatID, strings.Join(tags, ", "))
}

const previewLimit = 20

func (h *Handler) image(ctx context.Context, cmd Command, seed uint64) error {
	if h.images == nil {
		return h.tg.SendText(cmd.ChatID, "❌ Image generation is not configured.")
	}

	res, ok, err := h.expand(ctx, cmd, seed)
	if !ok {
		return err
	}
	if strings.TrimSpace(res.Text) == "" {
		return h.tg.SendText(cmd.ChatID, "❌ The expansion came out empty, nothing to render.")
	}

	h.tg.SendTyping(cmd.ChatID)
	_ = h.tg.SendText(cmd.ChatID, "🎨 Rendering, please wait...")

	images, err := h.images.GenerateImage(ctx, res.Text, gemini.ImageOptions{})
	if err != nil {
		h.logger.Error("image generation failed", "err", err)
		return h.tg.SendText(cmd.ChatID, "❌ Image generation failed. Try again.")
	}

	caption := truncateLine(fmt.Sprintf("seed %d: %s", res.Seed, res.Text), 1000)
	for i, img := range images {
		sendCaption := ""
		if i == 0 {
			sendCaption = caption
		}
		if err := h.tg.SendPhotoDataURL(cmd.ChatID, img, sendCaption); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) sendSettings(chatID, userID int64, username string) error {
	st := h.sessions.Settings(userID, username)
	list := h.presets.List()
	_, err := h.tg.SendTextWithKeyboard(chatID, settingsText(st, list), settingsKeyboard(userID, st, list))
	return err
}
