// Package libretranslate is a small client for a LibreTranslate server.
package libretranslate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var ErrEmptyTranslation = errors.New("empty translation")

// FallbackLanguages is served when the backend cannot list its own.
var FallbackLanguages = []domain.Language{
	{Code: "en", Name: "English"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "it", Name: "Italian"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "ru", Name: "Russian"},
	{Code: "ja", Name: "Japanese"},
	{Code: "ko", Name: "Korean"},
	{Code: "zh", Name: "Chinese"},
}

const languagesTTL = 10 * time.Minute

type Client struct {
	base    string
	apiKey  string
	timeout time.Duration
	http    *http.Client

	group     singleflight.Group
	mu        sync.Mutex
	langs     []domain.Language
	fetchedAt time.Time
}

func NewClient(cfg config.Translation, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		base:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		http:    httpClient,
	}
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// Translate returns text rendered from source into target.
func (c *Client) Translate(ctx context.Context, text, source, target string) (string, error) {
	body, err := json.Marshal(translateRequest{
		Q:      text,
		Source: source,
		Target: target,
		Format: "text",
		APIKey: c.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("encode translate request: %w", err)
	}

	var out translateResponse
	if err := c.do(ctx, http.MethodPost, "/translate", body, &out); err != nil {
		return "", fmt.Errorf("translate %s->%s: %w", source, target, err)
	}
	if out.TranslatedText == "" {
		return "", ErrEmptyTranslation
	}
	return out.TranslatedText, nil
}

// Languages never fails: a backend error yields FallbackLanguages.
// Successful listings are cached and concurrent fetches share one request.
func (c *Client) Languages(ctx context.Context) []domain.Language {
	c.mu.Lock()
	if c.langs != nil && time.Since(c.fetchedAt) < languagesTTL {
		langs := c.langs
		c.mu.Unlock()
		return langs
	}
	c.mu.Unlock()

	// One caller giving up must not fail the others sharing this fetch;
	// do still bounds it by the client timeout.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do("languages", func() (any, error) {
		var out []domain.Language
		if err := c.do(fetchCtx, http.MethodGet, "/languages", nil, &out); err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, errors.New("empty language list")
		}
		c.mu.Lock()
		c.langs, c.fetchedAt = out, time.Now()
		c.mu.Unlock()
		return out, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "libretranslate").Msg("language list unavailable, using fallback")
		return FallbackLanguages
	}
	return v.([]domain.Language)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}
