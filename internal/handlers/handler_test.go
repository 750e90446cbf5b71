package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nai-prompt-bot/internal/gemini"
	"nai-prompt-bot/internal/preset"
	"nai-prompt-bot/internal/session"
	"nai-prompt-bot/internal/telegram"
)

type sent struct {
	kind string
	text string
	kb   *telegram.InlineKeyboard
}

type fakeMessenger struct {
	mu        sync.Mutex
	sent      []sent
	callbacks []string
	alerts    []bool
	edits     int
}

func (f *fakeMessenger) add(s sent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, s)
}

func (f *fakeMessenger) SendText(_ int64, text string) error {
	f.add(sent{kind: "text", text: text})
	return nil
}

func (f *fakeMessenger) SendCode(_ int64, text string) error {
	f.add(sent{kind: "code", text: text})
	return nil
}

func (f *fakeMessenger) SendPhotoDataURL(_ int64, dataURL string, caption string) error {
	f.add(sent{kind: "photo", text: dataURL + "|" + caption})
	return nil
}

func (f *fakeMessenger) SendTextWithKeyboard(_ int64, text string, kb telegram.InlineKeyboard) (int, error) {
	f.add(sent{kind: "keyboard", text: text, kb: &kb})
	return 1, nil
}

func (f *fakeMessenger) EditTextWithKeyboard(_ int64, _ int, text string, kb telegram.InlineKeyboard) error {
	f.mu.Lock()
	f.edits++
	f.mu.Unlock()
	f.add(sent{kind: "edit", text: text, kb: &kb})
	return nil
}

func (f *fakeMessenger) AnswerCallback(_ string, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, text)
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeMessenger) SendTyping(int64) {}

func (f *fakeMessenger) last(kind string) (sent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].kind == kind {
			return f.sent[i], true
		}
	}
	return sent{}, false
}

type fakeImages struct {
	prompt string
	err    error
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt string, _ gemini.ImageOptions) ([]string, error) {
	f.prompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return []string{"data:image/png;base64,AAAA"}, nil
}

const scenario = `
id: scenario
name: Scenario
categories:
  - id: C
    groups:
      - id: G
        children:
          - {id: cat, text: cat, weight: 1}
          - {id: dog, text: dog, weight: 3}
`

const gendered = `
id: gendered
name: Gendered
categories:
  - id: body
    groups:
      - id: beard
        gender_restriction: {enabled: true, applicable_genders: [male]}
        children: [beard]
`

func newTestHandler(t *testing.T, images ImageGenerator, docs ...string) (*Handler, *fakeMessenger) {
	t.Helper()

	lib := preset.NewLibrary(preset.LibraryOptions{})
	for _, doc := range docs {
		p, err := preset.Parse([]byte(doc))
		require.NoError(t, err)
		require.NoError(t, lib.Put(p))
	}

	tg := &fakeMessenger{}
	opts := Options{
		Messenger: tg,
		Presets:   lib,
		Sessions:  session.NewStore(session.Options{}),
		NewSeed:   func() uint64 { return 42 },
	}
	if images != nil {
		opts.Images = images
	}
	return New(opts), tg
}

func run(t *testing.T, h *Handler, name, args string) {
	t.Helper()
	require.NoError(t, h.HandleCommand(context.Background(), Command{ChatID: 10, UserID: 1, Name: name, Args: args}))
}

func TestHandler_RandomUsesSeed(t *testing.T) {
	h, tg := newTestHandler(t, nil, scenario)

	run(t, h, "random", "42")

	code, ok := tg.last("code")
	require.True(t, ok)
	assert.Equal(t, "dog", code.text)

	summary, ok := tg.last("keyboard")
	require.True(t, ok)
	assert.Contains(t, summary.text, "seed 42")
	require.NotNil(t, summary.kb)
	require.Len(t, summary.kb.InlineKeyboard, 1)
	assert.Len(t, summary.kb.InlineKeyboard[0], 2, "no image button without a generator")
}

func TestHandler_RandomDrawsSeed(t *testing.T) {
	h, tg := newTestHandler(t, nil, scenario)

	run(t, h, "random", "")

	code, _ := tg.last("code")
	assert.Equal(t, "dog", code.text)
}

func TestHandler_RandomBadSeed(t *testing.T) {
	h, tg := newTestHandler(t, nil, scenario)

	run(t, h, "random", "-3")

	msg, _ := tg.last("text")
	assert.Contains(t, msg.text, "seed must be")
}

func TestHandler_NoPresets(t *testing.T) {
	h, tg := newTestHandler(t, nil)

	run(t, h, "random", "1")

	msg, _ := tg.last("text")
	assert.Contains(t, msg.text, "No presets loaded")
}

func TestHandler_SelectPreset(t *testing.T) {
	h, tg := newTestHandler(t, nil, scenario, gendered)

	run(t, h, "preset", "gendered")
	msg, _ := tg.last("text")
	assert.Equal(t, "✅ Preset: Gendered", msg.text)
	assert.Equal(t, "gendered", h.sessions.Settings(1, "").PresetID)

	run(t, h, "preset", "missing")
	msg, _ = tg.last("text")
	assert.Contains(t, msg.text, `No preset "missing"`)
	assert.Equal(t, "gendered", h.sessions.Settings(1, "").PresetID)
}

func TestHandler_PlainTextSelectsPreset(t *testing.T) {
	h, _ := newTestHandler(t, nil, scenario, gendered)

	update := telegram.Update{Message: &tgbotapi.Message{
		Text: "Gendered",
		From: &tgbotapi.User{ID: 1},
		Chat: &tgbotapi.Chat{ID: 10},
	}}
	require.NoError(t, h.HandleUpdate(context.Background(), update))
	assert.Equal(t, "gendered", h.sessions.Settings(1, "").PresetID)
}

func TestHandler_GenderChangesOutput(t *testing.T) {
	h, tg := newTestHandler(t, nil, gendered)

	run(t, h, "random", "5")
	code, _ := tg.last("code")
	assert.Equal(t, "(empty)", code.text)

	run(t, h, "gender", "male")
	run(t, h, "random", "5")
	code, _ = tg.last("code")
	assert.Equal(t, "beard", code.text)

	run(t, h, "gender", "robot")
	msg, _ := tg.last("text")
	assert.Contains(t, msg.text, "unknown gender")
}

func TestHandler_Trace(t *testing.T) {
	h, tg := newTestHandler(t, nil, scenario)

	run(t, h, "trace", "")
	msg, _ := tg.last("text")
	assert.Contains(t, msg.text, "Nothing generated yet")

	run(t, h, "random", "42")
	run(t, h, "trace", "")
	code, _ := tg.last("code")
	assert.Equal(t, "+ category C: included [G]\n+ group G: included [dog]", code.text)
}

func TestHandler_Image(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h, tg := newTestHandler(t, nil, scenario)
		run(t, h, "image", "42")
		msg, _ := tg.last("text")
		assert.Contains(t, msg.text, "not configured")
	})

	t.Run("renders expansion", func(t *testing.T) {
		images := &fakeImages{}
		h, tg := newTestHandler(t, images, scenario)
		run(t, h, "image", "42")

		assert.Equal(t, "dog", images.prompt)
		photo, ok := tg.last("photo")
		require.True(t, ok)
		assert.Equal(t, "data:image/png;base64,AAAA|seed 42: dog", photo.text)
	})

	t.Run("generator error", func(t *testing.T) {
		h, tg := newTestHandler(t, &fakeImages{err: errors.New("boom")}, scenario)
		run(t, h, "image", "42")
		msg, _ := tg.last("text")
		assert.Contains(t, msg.text, "Image generation failed")
	})
}

func TestHandler_PoolDisabled(t *testing.T) {
	h, tg := newTestHandler(t, nil, scenario)

	run(t, h, "pool", "hair")
	msg, _ := tg.last("text")
	assert.Contains(t, msg.text, "not configured")
}

func TestHandler_Clear(t *testing.T) {
	h, _ := newTestHandler(t, nil, scenario)

	run(t, h, "gender", "female")
	run(t, h, "clear", "")
	assert.Equal(t, preset.GenderNone, h.sessions.Settings(1, "").Gender)
}

func callback(userID, ownerID int64, parts ...string) telegram.Update {
	return telegram.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: 10}},
		Data:    cb(ownerID, parts...),
	}}
}

func TestHandler_CallbackOwnerCheck(t *testing.T) {
	h, tg := newTestHandler(t, nil, scenario)

	require.NoError(t, h.HandleUpdate(context.Background(), callback(2, 1, "gender", "male")))

	require.Len(t, tg.alerts, 1)
	assert.True(t, tg.alerts[0])
	assert.Equal(t, preset.GenderNone, h.sessions.Settings(1, "").Gender)
	assert.Equal(t, preset.GenderNone, h.sessions.Settings(2, "").Gender)
}

func TestHandler_CallbackUpdatesSettings(t *testing.T) {
	h, tg := newTestHandler(t, nil, scenario, gendered)

	require.NoError(t, h.HandleUpdate(context.Background(), callback(1, 1, "gender", "female")))
	require.NoError(t, h.HandleUpdate(context.Background(), callback(1, 1, "scope", "scene")))
	require.NoError(t, h.HandleUpdate(context.Background(), callback(1, 1, "preset", "gendered")))

	st := h.sessions.Settings(1, "")
	assert.Equal(t, preset.GenderFemale, st.Gender)
	assert.Equal(t, preset.ScopeScene, st.Scope)
	assert.Equal(t, "gendered", st.PresetID)
	assert.Equal(t, 3, tg.edits)

	edit, _ := tg.last("edit")
	assert.Contains(t, edit.text, "Preset: Gendered")
	assert.Contains(t, edit.text, "Scope: scene")
}

func TestHandler_CallbackUnknownPreset(t *testing.T) {
	h, tg := newTestHandler(t, nil, scenario)

	require.NoError(t, h.HandleUpdate(context.Background(), callback(1, 1, "preset", "gone")))
	require.Len(t, tg.alerts, 1)
	assert.True(t, tg.alerts[0])
	assert.Zero(t, tg.edits)
}

func TestHandler_CallbackReroll(t *testing.T) {
	h, tg := newTestHandler(t, nil, scenario)

	require.NoError(t, h.HandleUpdate(context.Background(), callback(1, 1, "reroll")))
	code, ok := tg.last("code")
	require.True(t, ok)
	assert.Equal(t, "dog", code.text)
}

func TestSettingsKeyboard_MarksActive(t *testing.T) {
	lib := preset.NewLibrary(preset.LibraryOptions{})
	p, err := preset.Parse([]byte(scenario))
	require.NoError(t, err)
	require.NoError(t, lib.Put(p))

	kb := settingsKeyboard(1, session.Settings{PresetID: "scenario", Gender: preset.GenderMale}, lib.List())

	var labels []string
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			labels = append(labels, b.Text)
			require.NotNil(t, b.CallbackData)
			assert.LessOrEqual(t, len(*b.CallbackData), maxCallbackData)
			assert.True(t, strings.HasPrefix(*b.CallbackData, "rp:1:"))
		}
	}
	assert.Contains(t, labels, "✅ Scenario")
	assert.Contains(t, labels, "✅ male")
	assert.Contains(t, labels, "✅ all")
}

func TestParseArgs(t *testing.T) {
	seed, err := parseSeed(" 123 ", func() uint64 { return 9 })
	require.NoError(t, err)
	assert.Equal(t, uint64(123), seed)

	seed, err = parseSeed("", func() uint64 { return 9 })
	require.NoError(t, err)
	assert.Equal(t, uint64(9), seed)

	_, err = parseSeed("abc", func() uint64 { return 9 })
	assert.Error(t, err)

	for in, want := range map[string]preset.Gender{
		"":       preset.GenderNone,
		"Female": preset.GenderFemale,
		"m":      preset.GenderMale,
		"other":  preset.GenderOther,
	} {
		got, err := parseGender(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	sc, err := parseScope("CHARACTER")
	require.NoError(t, err)
	assert.Equal(t, preset.ScopeCharacter, sc)
	_, err = parseScope("room")
	assert.Error(t, err)
}

func TestTruncateLine(t *testing.T) {
	assert.Equal(t, "abc", truncateLine("abc", 5))
	assert.Equal(t, "ab…", truncateLine("abcdef", 2))
}
