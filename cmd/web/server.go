package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nai-prompt-bot/internal/compose"
	"nai-prompt-bot/internal/engine"
	"nai-prompt-bot/internal/gemini"
	"nai-prompt-bot/internal/pool"
	"nai-prompt-bot/internal/preset"
)

const (
	maxBodyBytes        = 1 << 20
	defaultPreviewLimit = 50
)

type imageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, opts gemini.ImageOptions) ([]string, error)
}

type presetSource interface {
	Get(idOrName string) (*preset.Preset, error)
	List() []*preset.Preset
}

type server struct {
	presets        presetSource
	engine         *engine.Engine
	composer       *compose.Composer
	pools          pool.Previewer
	images         imageGenerator
	newSeed        func() uint64
	requestTimeout time.Duration
	logger         *slog.Logger
}

type apiError struct {
	Error string `json:"error"`
}

type presetSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Categories int    `json:"categories"`
	Variables  int    `json:"variables"`
}

type expandRequest struct {
	Preset string `json:"preset"`
	// Seed is drawn at random when omitted.
	Seed   *uint64       `json:"seed,omitempty"`
	Gender preset.Gender `json:"gender,omitempty"`
	Scope  preset.Scope  `json:"scope,omitempty"`
}

type generateRequest struct {
	expandRequest
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

type generateResponse struct {
	Result engine.Result `json:"result"`
	Images []string      `json:"images"`
}

type poolPreviewResponse struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/presets", s.handlePresets)
	mux.HandleFunc("POST /api/expand", s.handleExpand)
	mux.HandleFunc("POST /api/compose", s.handleCompose)
	mux.HandleFunc("GET /api/pools/{id}/preview", s.handlePoolPreview)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	return withLogging(mux, s.logger)
}

func (s *server) handlePresets(w http.ResponseWriter, _ *http.Request) {
	list := s.presets.List()
	out := make([]presetSummary, 0, len(list))
	for _, p := range list {
		out = append(out, presetSummary{
			ID:         p.ID,
			Name:       p.Name,
			Categories: len(p.Categories),
			Variables:  len(p.Variables),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, ok := s.lookup(w, req.Preset)
	if !ok {
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	res, err := s.engine.Expand(ctx, p, engine.Context{TargetGender: req.Gender, RequestedScope: req.Scope}, s.seed(req.Seed))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleCompose(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, ok := s.lookup(w, req.Preset)
	if !ok {
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	comp, err := s.composer.Compose(ctx, p, s.seed(req.Seed))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		compose.Composition
		Prompt string `json:"prompt"`
	}{comp, comp.Prompt()})
}

func (s *server) handlePoolPreview(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		writeJSON(w, http.StatusNotImplemented, apiError{Error: "tag pools are not configured"})
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	limit := defaultPreviewLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	tags, err := s.pools.Preview(ctx, id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolPreviewResponse{ID: id, Tags: tags})
}

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		writeJSON(w, http.StatusNotImplemented, apiError{Error: "image generation is not configured"})
		return
	}

	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AspectRatio != "" && !gemini.ValidAspectRatio(req.AspectRatio) {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "unsupported aspect ratio"})
		return
	}
	p, ok := s.lookup(w, req.Preset)
	if !ok {
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	res, err := s.engine.Expand(ctx, p, engine.Context{TargetGender: req.Gender, RequestedScope: req.Scope}, s.seed(req.Seed))
	if err != nil {
		writeError(w, err)
		return
	}

	images, err := s.images.GenerateImage(ctx, res.Text, gemini.ImageOptions{AspectRatio: req.AspectRatio})
	if err != nil {
		s.logger.Error("image generation failed", "preset", p.ID, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Result: res, Images: images})
}

func (s *server) lookup(w http.ResponseWriter, idOrName string) (*preset.Preset, bool) {
	if strings.TrimSpace(idOrName) == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "preset is required"})
		return nil, false
	}
	p, err := s.presets.Get(idOrName)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return p, true
}

func (s *server) seed(v *uint64) uint64 {
	if v != nil {
		return *v
	}
	return s.newSeed()
}

func (s *server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.requestTimeout)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json body: " + err.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, preset.ErrNotFound), errors.Is(err, pool.ErrPoolNotFound):
		status = http.StatusNotFound
	case errors.Is(err, preset.ErrInvalidPreset), errors.Is(err, engine.ErrInvalidContext),
		errors.Is(err, compose.ErrNoCountCategory), errors.Is(err, gemini.ErrEmptyPrompt):
		status = http.StatusBadRequest
	case errors.Is(err, pool.ErrSourceUnavailable), errors.Is(err, gemini.ErrNoImage):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, apiError{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}
