// Package apiclient is a small HTTP client for the apply orchestrator API,
// used by applyctl.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/apply-orchestrator/internal/api"
	"github.com/phrazzld/apply-orchestrator/internal/api/shared"
)

// ErrMissingToken is returned before any request when no bearer token is set.
var ErrMissingToken = errors.New("no API token configured")

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	StatusCode    int
	Message       string
	Category      string
	MissingFields []string
	TraceID       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s (HTTP %d", e.Message, e.StatusCode)
	if e.Category != "" {
		msg += ", " + e.Category
	}
	msg += ")"
	if len(e.MissingFields) > 0 {
		msg += ": missing " + strings.Join(e.MissingFields, ", ")
	}
	return msg
}

// Client calls the orchestrator API with a bearer token.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// New creates a Client for baseURL. httpClient may be nil.
func New(baseURL, token string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: u, token: token, http: httpClient}, nil
}

// Submit starts an application run.
func (c *Client) Submit(ctx context.Context, req api.SubmitApplicationRequest) (*api.SubmitApplicationResponse, error) {
	var resp api.SubmitApplicationResponse
	if err := c.do(ctx, http.MethodPost, "/api/applications", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTask returns the reconciled status of taskID.
func (c *Client) GetTask(ctx context.Context, taskID string) (*api.TaskResponse, error) {
	var resp api.TaskResponse
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refetch forces a fresh observation of taskID.
func (c *Client) Refetch(ctx context.Context, taskID string) (*api.TaskResponse, error) {
	var resp api.TaskResponse
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/refetch", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel stops taskID. Cancelling a finished task succeeds.
func (c *Client) Cancel(ctx context.Context, taskID string) (*api.CancelTaskResponse, error) {
	var resp api.CancelTaskResponse
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.token == "" {
		return ErrMissingToken
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errBody shared.ErrorResponse
		if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
			apiErr.Message = errBody.Error
			apiErr.Category = errBody.Category
			apiErr.MissingFields = errBody.MissingFields
			apiErr.TraceID = errBody.TraceID
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
