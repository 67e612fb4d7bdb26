package demopilotsdk

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
)

// Client is a minimal demopilot HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. Generation runs synchronously on
// the server, so the timeout is generous.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  5 * time.Minute,
	}
}

// GenerateResult mirrors the generate response.
type GenerateResult struct {
	Success      bool    `json:"success"`
	RunID        string  `json:"run_id"`
	Generator    string  `json:"generator"`
	Kind         string  `json:"kind"`
	Count        int     `json:"count"`
	GeneratedIDs []int64 `json:"generated_ids"`
	Batches      int     `json:"batches"`
	Untracked    int     `json:"untracked,omitempty"`
}

// CleanupResult mirrors the cleanup response.
type CleanupResult struct {
	Success   bool    `json:"success"`
	Generator string  `json:"generator"`
	Kind      string  `json:"kind"`
	Count     int     `json:"count"`
	Untracked int64   `json:"untracked"`
	Failed    []int64 `json:"failed,omitempty"`
}

// Progress is a progress snapshot.
type Progress struct {
	Generator    string  `json:"generator"`
	Kind         string  `json:"kind"`
	RunID        string  `json:"run_id,omitempty"`
	CurrentBatch int     `json:"current_batch"`
	TotalBatches int     `json:"total_batches"`
	Generated    int     `json:"generated"`
	Percentage   float64 `json:"percentage"`
	Timestamp    string  `json:"timestamp"`
}

// Stats counts tracked records.
type Stats struct {
	Total  int `json:"total"`
	ByKind []struct {
		Kind  string `json:"kind"`
		Count int    `json:"count"`
	} `json:"by_kind"`
}

// Generator describes a registered generator.
type Generator struct {
	Slug           string            `json:"slug"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Icon           string            `json:"icon,omitempty"`
	IsActive       bool              `json:"is_active"`
	SupportedKinds map[string]string `json:"supported_kinds"`
	Stats          Stats             `json:"stats"`
}

// LogEntry is one activity log entry.
type LogEntry struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Generator string `json:"generator,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Generate creates count records of kind. A zero count uses the server
// default.
func (c *Client) Generate(ctx context.Context, generator, kind string, count int, args map[string]any) (GenerateResult, error) {
	body := map[string]any{
		"generator": generator,
		"kind":      kind,
	}
	if count > 0 {
		body["count"] = count
	}
	if len(args) > 0 {
		body["args"] = args
	}
	var resp GenerateResult
	err := c.do(ctx, http.MethodPost, "generate", body, &resp)
	return resp, err
}

// Cleanup deletes the tracked records of kind, or only ids when given.
func (c *Client) Cleanup(ctx context.Context, generator, kind string, ids ...int64) (CleanupResult, error) {
	body := map[string]any{
		"generator": generator,
		"kind":      kind,
	}
	if len(ids) > 0 {
		body["ids"] = ids
	}
	var resp CleanupResult
	err := c.do(ctx, http.MethodPost, "cleanup", body, &resp)
	return resp, err
}

// Progress returns the latest snapshot for the pair.
func (c *Client) Progress(ctx context.Context, generator, kind string) (Progress, error) {
	var resp Progress
	endpoint := fmt.Sprintf("progress/%s/%s", url.PathEscape(generator), url.PathEscape(kind))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// WaitProgress polls until a snapshot reaches 100% or ctx is done. Missing
// snapshots are retried, since a run may not have started yet.
func (c *Client) WaitProgress(ctx context.Context, generator, kind string, every time.Duration, fn func(Progress)) (Progress, error) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		p, err := c.Progress(ctx, generator, kind)
		switch {
		case err == nil:
			if fn != nil {
				fn(p)
			}
			if p.Percentage >= 100 {
				return p, nil
			}
		case !IsNotFound(err):
			return Progress{}, err
		}
		select {
		case <-ctx.Done():
			return p, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Generators lists registered generators.
func (c *Client) Generators(ctx context.Context, activeOnly bool) ([]Generator, error) {
	var resp struct {
		Items []Generator `json:"items"`
	}
	endpoint := "generators"
	if activeOnly {
		endpoint += "?active=true"
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Stats returns tracked counts, for one generator when given.
func (c *Client) Stats(ctx context.Context, generator string) (Stats, error) {
	var resp Stats
	endpoint := "stats"
	if generator != "" {
		endpoint += "?generator=" + url.QueryEscape(generator)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Logs returns recent entries, newest first.
func (c *Client) Logs(ctx context.Context, limit int, level, generator string) ([]LogEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if level != "" {
		q.Set("level", level)
	}
	if generator != "" {
		q.Set("generator", generator)
	}
	endpoint := "logs"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []LogEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// ClearLogs empties the activity log.
func (c *Client) ClearLogs(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "logs", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
