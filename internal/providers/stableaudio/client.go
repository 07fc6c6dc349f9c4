// Package stableaudio wraps the Stable Audio generation API. The client owns
// the retry policy around the unreliable remote call; callers see either
// audio bytes or a terminal failure carrying the last observed error.
package stableaudio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sona/internal/domain"
	"sona/internal/infra"
)

// Options controls how the Stable Audio client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
	MaxRetries int
	RetryDelay time.Duration
}

// Client calls the Stable Audio API with bounded linear-backoff retries.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
	maxRetries int
	retryDelay time.Duration
}

// Request represents one generation attempt's input.
type Request struct {
	Prompt   string         `json:"prompt"`
	Duration int            `json:"duration"`
	Quality  domain.Quality `json:"quality,omitempty"`
}

// Audio is the normalized generation result.
type Audio struct {
	Data   []byte
	Format string
}

// NewClient constructs a Stable Audio client with sane defaults. Callers may
// provide a nil HTTP client; a reusable one with a request timeout will be
// created.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("stable audio: api key is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stability.ai/v2beta/stable-audio"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}, nil
}

// Generate runs up to 1+maxRetries attempts against the API. Attempt 0 runs
// immediately; attempt n sleeps retryDelay*n first. Each attempt is
// all-or-nothing; after exhausting every attempt the last error is returned
// wrapped in domain.ErrProviderFailure.
func (c *Client) Generate(ctx context.Context, req Request) (*Audio, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Info().
				Int("attempt", attempt).
				Int("max_retries", c.maxRetries).
				Msg("stableaudio: retrying generation")
			if err := sleepCtx(ctx, c.retryDelay*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}

		audio, err := c.call(ctx, req)
		if err == nil {
			return audio, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("stableaudio: attempt failed")
	}

	return nil, fmt.Errorf("%w: %d attempts exhausted: %s", domain.ErrProviderFailure, c.maxRetries+1, lastErr)
}

func (c *Client) call(ctx context.Context, req Request) (*Audio, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("invoke stable audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil, fmt.Errorf("stable audio status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("stable audio status %d: %s", resp.StatusCode, text)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio body: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.ErrEmptyAudio
	}

	format := formatFromContentType(resp.Header.Get("Content-Type"))
	c.logger.Debug().
		Int("bytes", len(data)).
		Str("format", format).
		Msg("stableaudio: received audio")

	return &Audio{Data: data, Format: format}, nil
}

// formatFromContentType maps the response content type onto an audio format
// label, defaulting to wav when ambiguous.
func formatFromContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "audio/mpeg"), strings.Contains(ct, "audio/mp3"):
		return "mp3"
	case strings.Contains(ct, "audio/wav"), strings.Contains(ct, "audio/wave"):
		return "wav"
	default:
		return "wav"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
