package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

type HTTPOptions struct {
	BaseURL string
	Client  *http.Client
	// RatePerSecond limits outbound requests. Zero disables the limit.
	RatePerSecond float64
	Attempts      uint
	RetryDelay    time.Duration
	Logger        *slog.Logger
}

// HTTPSource fetches pools from a tag-pool service exposing
// GET {base}/pools/{id} -> {"id": "...", "tags": ["...", ...]}.
type HTTPSource struct {
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

type poolResponse struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
}

func NewHTTPSource(opts HTTPOptions) (*HTTPSource, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("pool base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("pool base url: %w", err)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	attempts := opts.Attempts
	if attempts == 0 {
		attempts = 3
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &HTTPSource{
		baseURL:  base,
		client:   client,
		limiter:  limiter,
		attempts: attempts,
		delay:    delay,
		logger:   logger,
	}, nil
}

func (s *HTTPSource) Resolve(ctx context.Context, poolID string) ([]string, error) {
	poolID = strings.TrimSpace(poolID)
	if poolID == "" {
		return nil, fmt.Errorf("%w: empty pool id", ErrPoolNotFound)
	}

	tags, err := retry.DoWithData(
		func() ([]string, error) {
			return s.fetch(ctx, poolID)
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("pool fetch retry", "pool", poolID, "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		if errors.Is(err, ErrPoolNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return tags, nil
}

func (s *HTTPSource) fetch(ctx context.Context, poolID string) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, retry.Unrecoverable(err)
	}

	endpoint := s.baseURL + "/pools/" + url.PathEscape(poolID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Unrecoverable(fmt.Errorf("%w: %q", ErrPoolNotFound, poolID))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("pool service status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, retry.Unrecoverable(fmt.Errorf("pool service status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var out poolResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("decode pool %q: %w", poolID, err))
	}
	return out.Tags, nil
}
