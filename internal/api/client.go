// Package api is the HTTP client for the Tasker REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/tasker/internal/logging"
	"github.com/tOgg1/tasker/internal/models"
)

const (
	defaultBaseURL   = "http://localhost:8000"
	defaultTimeout   = 10 * time.Second
	defaultTasksPath = "/tasks/user/my-tasks"
	maxErrorBody     = 64 << 10

	// RequestIDHeader carries a per-request id for log correlation.
	RequestIDHeader = "X-Request-ID"
)

// Config controls how the client reaches the backend.
type Config struct {
	BaseURL string
	// Token is sent as a bearer credential; empty sends no Authorization header.
	Token string
	// Timeout bounds each request, on top of any context deadline.
	Timeout   time.Duration
	TasksPath string
	// HTTPClient overrides the transport. Its own Timeout is left untouched.
	HTTPClient *http.Client
}

func normalizeConfig(cfg Config) Config {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.TasksPath) == "" {
		cfg.TasksPath = defaultTasksPath
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return cfg
}

// Client talks to the message and task endpoints.
type Client struct {
	base       *url.URL
	token      string
	timeout    time.Duration
	tasksPath  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config) (*Client, error) {
	cfg = normalizeConfig(cfg)
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", cfg.BaseURL)
	}
	return &Client{
		base:       base,
		token:      strings.TrimSpace(cfg.Token),
		timeout:    cfg.Timeout,
		tasksPath:  cfg.TasksPath,
		httpClient: cfg.HTTPClient,
		logger:     logging.Component("api-client"),
	}, nil
}

// ListMessages returns every message visible to the caller, newest first.
func (c *Client) ListMessages(ctx context.Context) ([]models.Message, error) {
	var messages []models.Message
	if err := c.do(ctx, "list messages", http.MethodGet, "/messages", nil, &messages); err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// SendMessage creates a message and returns the stored record.
func (c *Client) SendMessage(ctx context.Context, req models.SendRequest) (*models.Message, error) {
	var created models.Message
	if err := c.do(ctx, "send message", http.MethodPost, "/messages", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// MarkRead marks one message read. The backend treats repeats as no-ops.
func (c *Client) MarkRead(ctx context.Context, messageID int64) error {
	path := "/messages/" + strconv.FormatInt(messageID, 10) + "/read"
	return c.do(ctx, "mark read", http.MethodPut, path, nil, nil)
}

// ListUserTasks returns the tasks shown in the conversation filter.
func (c *Client) ListUserTasks(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	if err := c.do(ctx, "list tasks", http.MethodGet, c.tasksPath, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) endpoint(path string) *url.URL {
	ref := &url.URL{Path: strings.TrimRight(c.base.Path, "/") + path}
	return c.base.ResolveReference(ref)
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindDecode, Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	target := c.endpoint(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("request_id", requestID).
			Str("method", method).
			Str("url", logging.RedactURL(target)).
			Interface("headers", logging.RedactHeader(req.Header)).
			Msg("request failed")
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("url", logging.RedactURL(target)).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("request complete")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &Error{Kind: KindDecode, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// errorPayload matches the backend's {"detail": ...} error body. Detail is a
// string for handled errors and a list of field errors for validation failures.
type errorPayload struct {
	Detail json.RawMessage `json:"detail"`
}

type fieldError struct {
	Msg string `json:"msg"`
}

func responseError(op string, resp *http.Response) error {
	kind := KindServer
	if resp.StatusCode == http.StatusUnauthorized {
		kind = KindUnauthorized
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &Error{
		Kind:       kind,
		Op:         op,
		StatusCode: resp.StatusCode,
		Detail:     parseDetail(raw),
	}
}

func parseDetail(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var fields []fieldError
	if err := json.Unmarshal(payload.Detail, &fields); err == nil {
		msgs := make([]string, 0, len(fields))
		for _, f := range fields {
			if strings.TrimSpace(f.Msg) != "" {
				msgs = append(msgs, strings.TrimSpace(f.Msg))
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
