// Package client is the HTTP client for the daemon API, used by the CLI.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"subgen/internal/api"
)

// Client talks to a running daemon over its HTTP API.
type Client struct {
	http *resty.Client
}

// New builds a client for the given address. A bare host:port gets an http
// scheme.
func New(address string) *Client {
	base := strings.TrimSpace(address)
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(30 * time.Second)
	return &Client{http: httpClient}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.http.BaseURL, err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("unexpected response (%s): %s", resp.Status(), strings.TrimSpace(string(resp.Body())))
	}
	if !env.Success {
		if env.Error != "" {
			return fmt.Errorf("%s", env.Error)
		}
		return fmt.Errorf("request failed: %s", resp.Status())
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Health checks that the daemon answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// CheckAPIKey asks the daemon to verify the configured provider credentials.
func (c *Client) CheckAPIKey(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/check-api-key", nil, nil)
}

// CreateTaskRequest mirrors the task creation payload.
type CreateTaskRequest struct {
	FilePath       string  `json:"filePath"`
	Language       string  `json:"language,omitempty"`
	TargetLang     string  `json:"targetLang,omitempty"`
	Synthesize     bool    `json:"synthesize,omitempty"`
	SubtitleStyle  string  `json:"subtitleStyle,omitempty"`
	OriginalVolume float64 `json:"originalVolume,omitempty"`
	DubVolume      float64 `json:"dubVolume,omitempty"`
	AutoStart      bool    `json:"autoStart,omitempty"`
}

// CreateTask enqueues one file.
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (api.TaskView, error) {
	var view api.TaskView
	err := c.do(ctx, http.MethodPost, "/api/tasks", req, &view)
	return view, err
}

// ListTasks fetches tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, statuses []string) ([]api.TaskView, error) {
	path := "/api/tasks"
	if len(statuses) > 0 {
		params := make([]string, 0, len(statuses))
		for _, status := range statuses {
			params = append(params, "status="+status)
		}
		path += "?" + strings.Join(params, "&")
	}
	var views []api.TaskView
	err := c.do(ctx, http.MethodGet, path, nil, &views)
	return views, err
}

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, id string) (api.TaskView, error) {
	var view api.TaskView
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+id, nil, &view)
	return view, err
}

// DeleteTask cancels and removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+id, nil, nil)
}

func (c *Client) taskAction(ctx context.Context, id, action string) (api.TaskView, error) {
	var view api.TaskView
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+id+"/"+action, nil, &view)
	return view, err
}

// StartTask submits a pending task for processing.
func (c *Client) StartTask(ctx context.Context, id string) (api.TaskView, error) {
	return c.taskAction(ctx, id, "start")
}

// PauseTask pauses a running task.
func (c *Client) PauseTask(ctx context.Context, id string) (api.TaskView, error) {
	return c.taskAction(ctx, id, "pause")
}

// ResumeTask resumes a paused task.
func (c *Client) ResumeTask(ctx context.Context, id string) (api.TaskView, error) {
	return c.taskAction(ctx, id, "resume")
}

// CancelTask cancels a task.
func (c *Client) CancelTask(ctx context.Context, id string) (api.TaskView, error) {
	return c.taskAction(ctx, id, "cancel")
}

// RetryTask resets a failed task to pending.
func (c *Client) RetryTask(ctx context.Context, id string) (api.TaskView, error) {
	return c.taskAction(ctx, id, "retry")
}

// QueueStatus fetches scheduler and task counts.
func (c *Client) QueueStatus(ctx context.Context) (api.QueueStatus, error) {
	var status api.QueueStatus
	err := c.do(ctx, http.MethodGet, "/api/queue/status", nil, &status)
	return status, err
}

// QueueStart submits every pending task, returning how many were queued.
func (c *Client) QueueStart(ctx context.Context) (int, error) {
	var result map[string]int
	if err := c.do(ctx, http.MethodPost, "/api/queue/start", nil, &result); err != nil {
		return 0, err
	}
	return result["submitted"], nil
}

// QueuePause pauses admission and every running task.
func (c *Client) QueuePause(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/queue/pause", nil, nil)
}

// QueueResume restarts admission and re-queues paused tasks.
func (c *Client) QueueResume(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/queue/resume", nil, nil)
}

// QueueCancel cancels every non-terminal task.
func (c *Client) QueueCancel(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/queue/cancel", nil, nil)
}

// Export downloads a task's subtitles in the requested format.
func (c *Client) Export(ctx context.Context, id, format, mode string, timestamps bool) (string, error) {
	req := c.http.R().SetContext(ctx).
		SetQueryParam("format", format)
	if mode != "" {
		req.SetQueryParam("mode", mode)
	}
	if timestamps {
		req.SetQueryParam("timestamps", "true")
	}
	resp, err := req.Get("/api/tasks/" + id + "/export")
	if err != nil {
		return "", fmt.Errorf("daemon not reachable at %s: %w", c.http.BaseURL, err)
	}
	if resp.IsError() {
		var env envelope
		if jsonErr := json.Unmarshal(resp.Body(), &env); jsonErr == nil && env.Error != "" {
			return "", fmt.Errorf("%s", env.Error)
		}
		return "", fmt.Errorf("export failed: %s", resp.Status())
	}
	return string(resp.Body()), nil
}
