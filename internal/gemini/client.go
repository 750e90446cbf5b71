package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const modelImage = "gemini-2.5-flash-image"

const systemInstruction = `You render illustrations from comma-separated tag prompts.
Treat every tag as a visual requirement. Tags wrapped in {braces} carry more weight,
one level per pair of braces. Return only the image.`

var (
	ErrEmptyPrompt = errors.New("gemini: prompt is empty")
	ErrNoImage     = errors.New("gemini: response contained no image")
)

var aspectRatios = map[string]bool{
	"1:1": true, "2:3": true, "3:2": true, "3:4": true, "4:3": true,
	"4:5": true, "5:4": true, "9:16": true, "16:9": true, "21:9": true,
}

// ValidAspectRatio reports whether ratio is accepted by ImageOptions.
func ValidAspectRatio(ratio string) bool {
	return aspectRatios[ratio]
}

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type ImageOptions struct {
	// AspectRatio such as "2:3"; unknown values fall back to "1:1".
	AspectRatio string
	// Characters are per-character prompts appended after the main prompt.
	Characters []string
}

type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		httpClient: opts.HTTPClient,
		logger:     logger,
	}
}

// GenerateImage renders prompt and returns the images as data URLs.
func (c *Client) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) ([]string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	ratio := opts.AspectRatio
	if !ValidAspectRatio(ratio) {
		ratio = "1:1"
	}

	req := generateContentRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: buildImagePrompt(prompt, opts.Characters)}}},
		},
		SystemInstruction: &content{Role: "user", Parts: []part{{Text: systemInstruction}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &imageConfig{AspectRatio: ratio},
		},
	}

	resp, err := c.generateContent(ctx, modelImage, req)
	if err != nil && isUnknownFieldError(err, "imageConfig") {
		c.logger.Warn("imageConfig rejected, retrying without it", "model", modelImage)
		req.GenerationConfig.ImageConfig = nil
		resp, err = c.generateContent(ctx, modelImage, req)
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Images) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoImage, strings.TrimSpace(resp.Text))
	}
	return resp.Images, nil
}

func buildImagePrompt(prompt string, characters []string) string {
	var b strings.Builder
	b.WriteString("Generate a high quality image: ")
	b.WriteString(prompt)
	n := 0
	for _, ch := range characters {
		if ch = strings.TrimSpace(ch); ch == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "\nCharacter %d: %s", n, ch)
	}
	return b.String()
}

func (c *Client) generateContent(ctx context.Context, model string, payload generateContentRequest) (Response, error) {
	if c.httpClient == nil {
		return Response{}, errors.New("http client is nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("gemini API %s: %s", httpResp.Status, strings.TrimSpace(string(rawBody)))
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}

	text, images := extractParts(decoded)
	return Response{
		Text:   text,
		Images: images,
	}, nil
}

func extractParts(resp generateContentResponse) (string, []string) {
	if len(resp.Candidates) == 0 {
		return "", nil
	}

	var textBuilder strings.Builder
	var images []string

	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			textBuilder.WriteString(p.Text)
		}
		if p.InlineData != nil && p.InlineData.Data != "" && p.InlineData.MimeType != "" {
			images = append(images, fmt.Sprintf("data:%s;base64,%s", p.InlineData.MimeType, p.InlineData.Data))
		}
	}

	return textBuilder.String(), images
}

func isUnknownFieldError(err error, field string) bool {
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}
