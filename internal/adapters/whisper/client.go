// Package whisper talks to a Whisper-compatible transcription backend
// (OpenAI API shape: POST <base>/audio/transcriptions, multipart).
package whisper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Client struct {
	api      openai.Client
	model    string
	language string
	timeout  time.Duration
}

func NewClient(cfg config.Transcription, httpClient *http.Client) *Client {
	base := cfg.Endpoint
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	opts := []option.RequestOption{
		option.WithBaseURL(base),
		// The flush loop retries on the next tick anyway.
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &Client{
		api:      openai.NewClient(opts...),
		model:    cfg.Model,
		language: cfg.SourceLanguage,
		timeout:  cfg.Timeout,
	}
}

// Transcribe uploads one audio blob and returns the trimmed transcript.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	params := openai.AudioTranscriptionNewParams{
		File:           openai.File(bytes.NewReader(audio), "audio.webm", "audio/webm"),
		Model:          openai.AudioModel(c.model),
		ResponseFormat: openai.AudioResponseFormatJSON,
	}
	if c.language != "" {
		params.Language = openai.String(c.language)
	}
	res, err := c.api.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}
