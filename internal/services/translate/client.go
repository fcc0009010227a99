// Package translate is the batch translation client. It sends numbered lists
// of subtitle lines to an OpenAI-compatible chat completion endpoint and
// parses the numbered response back into per-line translations.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"subgen/internal/config"
	"subgen/internal/logging"
	"subgen/internal/services"
)

const requestTimeout = 90 * time.Second

// Client translates subtitle text in batches.
type Client struct {
	http   *resty.Client
	model  string
	logger *slog.Logger
}

// New builds a client from translation configuration.
func New(cfg config.Translation, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		model:  cfg.Model,
		logger: logging.NewComponentLogger(logger, "translate"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// TranslateBatch translates lines into targetLang, preserving order. The
// returned slice always has the same length as the input.
func (c *Client) TranslateBatch(ctx context.Context, lines []string, targetLang string) ([]string, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	var numbered strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&numbered, "%d. %s\n", i+1, strings.ReplaceAll(line, "\n", " "))
	}

	body := chatRequest{
		Model:       c.model,
		Temperature: 0.3,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(targetLang, len(lines))},
			{Role: "user", Content: numbered.String()},
		},
	}

	var (
		parsed  chatResponse
		failure apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&parsed).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	if resp.IsError() {
		return nil, classifyStatus(resp.StatusCode(), failure.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, services.Wrap(services.ErrTransient, "translating", "batch", "empty completion", nil)
	}

	translations, err := parseNumbered(parsed.Choices[0].Message.Content, len(lines))
	if err != nil {
		// A malformed completion is worth one more attempt; models
		// occasionally break the numbering.
		return nil, services.Wrap(services.ErrTransient, "translating", "batch", err.Error(), nil)
	}
	return translations, nil
}

func systemPrompt(targetLang string, count int) string {
	return fmt.Sprintf(
		"You are a subtitle translator. Translate each numbered line into %s. "+
			"Reply with exactly %d numbered lines in the same order, one translation per line, "+
			"with no extra commentary.",
		LanguageName(targetLang), count)
}

// LanguageName resolves a BCP 47 tag or common shorthand into an English
// language name for the prompt. Unknown tags pass through unchanged.
func LanguageName(tag string) string {
	trimmed := strings.TrimSpace(tag)
	if trimmed == "" {
		return "Chinese"
	}
	parsed, err := language.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	name := display.English.Languages().Name(parsed)
	if name == "" {
		return trimmed
	}
	return name
}

// parseNumbered pulls want translations out of a numbered-list completion.
func parseNumbered(content string, want int) ([]string, error) {
	out := make([]string, want)
	found := 0
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		dot := strings.IndexAny(line, ".:")
		if dot <= 0 {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSpace(line[:dot]))
		if err != nil || index < 1 || index > want {
			continue
		}
		text := strings.TrimSpace(line[dot+1:])
		if out[index-1] == "" && text != "" {
			out[index-1] = text
			found++
		}
	}
	if found != want {
		return nil, fmt.Errorf("completion had %d of %d numbered lines", found, want)
	}
	return out, nil
}

func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "translating", "batch", "request deadline exceeded", err)
	}
	return services.Wrap(services.ErrTransient, "translating", "batch", "transport failure", err)
}

func classifyStatus(status int, message string) error {
	detail := strings.TrimSpace(message)
	if detail == "" {
		detail = fmt.Sprintf("http %d", status)
	} else {
		detail = fmt.Sprintf("http %d: %s", status, detail)
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusBadRequest:
		return services.Wrap(services.ErrFatal, "translating", "batch", detail, nil)
	case status == http.StatusRequestTimeout:
		return services.Wrap(services.ErrTimeout, "translating", "batch", detail, nil)
	case status == http.StatusTooManyRequests, status >= 500:
		return services.Wrap(services.ErrTransient, "translating", "batch", detail, nil)
	default:
		return services.Wrap(services.ErrFatal, "translating", "batch", detail, nil)
	}
}
