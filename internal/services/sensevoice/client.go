// Package sensevoice is the speech recognition client. It talks to any
// OpenAI-compatible audio transcription endpoint hosting a SenseVoice style
// model.
package sensevoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"subgen/internal/config"
	"subgen/internal/logging"
	"subgen/internal/services"
)

const requestTimeout = 2 * time.Minute

// Result is one recognized utterance.
type Result struct {
	Text       string
	Language   string
	Confidence float64
}

// Client recognizes speech in WAV clips.
type Client struct {
	http     *resty.Client
	model    string
	language string
	logger   *slog.Logger
}

// New builds a client from ASR configuration.
func New(cfg config.ASR, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(requestTimeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:     httpClient,
		model:    cfg.Model,
		language: cfg.Language,
		logger:   logging.NewComponentLogger(logger, "sensevoice"),
	}
}

type transcriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe uploads a WAV clip and returns the recognized text. Empty
// recognition is not an error; silence clips legitimately produce nothing.
func (c *Client) Transcribe(ctx context.Context, wavPath string) (Result, error) {
	if strings.TrimSpace(wavPath) == "" {
		return Result{}, services.Wrap(services.ErrInvalidInput, "transcribe", "request", "empty audio path", nil)
	}

	var (
		parsed  transcriptionResponse
		failure apiError
	)
	req := c.http.R().
		SetContext(ctx).
		SetFile("file", wavPath).
		SetFormData(map[string]string{"model": c.model}).
		SetResult(&parsed).
		SetError(&failure)
	if c.language != "" {
		req.SetFormData(map[string]string{"language": c.language})
	}

	resp, err := req.Post("/audio/transcriptions")
	if err != nil {
		return Result{}, classifyTransport(ctx, "transcribe", err)
	}
	if resp.IsError() {
		return Result{}, classifyStatus("transcribe", resp.StatusCode(), failure.Error.Message)
	}

	text := cleanTranscript(parsed.Text)
	return Result{Text: text, Language: parsed.Language, Confidence: confidenceFor(text)}, nil
}

// CheckAPIKey verifies the configured credentials with a cheap request.
func (c *Client) CheckAPIKey(ctx context.Context) error {
	var failure apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&failure).
		Get("/models")
	if err != nil {
		return classifyTransport(ctx, "check api key", err)
	}
	if resp.IsError() {
		return classifyStatus("check api key", resp.StatusCode(), failure.Error.Message)
	}
	return nil
}

// cleanTranscript strips the SenseVoice inline tags like <|zh|> and
// <|EMO_UNKNOWN|> that some deployments leave in the text.
func cleanTranscript(text string) string {
	out := text
	for {
		start := strings.Index(out, "<|")
		if start < 0 {
			break
		}
		end := strings.Index(out[start:], "|>")
		if end < 0 {
			break
		}
		out = out[:start] + out[start+end+2:]
	}
	return strings.TrimSpace(out)
}

func confidenceFor(text string) float64 {
	if text == "" {
		return 0
	}
	return 1
}

func classifyTransport(ctx context.Context, operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "transcribing", operation, "request deadline exceeded", err)
	}
	return services.Wrap(services.ErrTransient, "transcribing", operation, "transport failure", err)
}

func classifyStatus(operation string, status int, message string) error {
	detail := strings.TrimSpace(message)
	if detail == "" {
		detail = fmt.Sprintf("http %d", status)
	} else {
		detail = fmt.Sprintf("http %d: %s", status, detail)
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusBadRequest:
		return services.Wrap(services.ErrFatal, "transcribing", operation, detail, nil)
	case status == http.StatusRequestTimeout:
		return services.Wrap(services.ErrTimeout, "transcribing", operation, detail, nil)
	case status == http.StatusTooManyRequests, status >= 500:
		return services.Wrap(services.ErrTransient, "transcribing", operation, detail, nil)
	default:
		return services.Wrap(services.ErrFatal, "transcribing", operation, detail, nil)
	}
}
