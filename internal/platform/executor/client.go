package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/phrazzld/apply-orchestrator/internal/platform/logger"
	"github.com/phrazzld/apply-orchestrator/internal/redact"
)

const (
	maxErrorBodyBytes = 4096
	maxErrorBodyChars = 512
)

// Config holds the executor endpoint and credentials. It is passed in
// explicitly; the client never reads the environment.
type Config struct {
	BaseURL           string
	APIKey            string
	RequestTimeout    time.Duration
	AwaitPollInterval time.Duration
	MaxRetries        int
}

// CallObserver is notified after every remote call.
type CallObserver interface {
	ObserveRemoteCall(op, outcome string, elapsed time.Duration)
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithObserver registers a CallObserver.
func WithObserver(o CallObserver) Option {
	return func(c *Client) { c.observer = o }
}

// WithBackOff replaces the retry policy used for idempotent calls.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = factory }
}

// Client talks to the remote execution service.
type Client struct {
	baseURL       *url.URL
	apiKey        string
	http          *http.Client
	awaitInterval time.Duration
	logger        *slog.Logger
	observer      CallObserver
	newBackOff    func() backoff.BackOff
}

// NewClient builds a client. A missing API key is not an error here; Ready
// reports it so callers can reject work before any remote call is made.
func NewClient(cfg Config, log *slog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid executor base URL: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	interval := cfg.AwaitPollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	c := &Client{
		baseURL:       base,
		apiKey:        cfg.APIKey,
		http:          &http.Client{Timeout: timeout},
		awaitInterval: interval,
		logger:        log.With("component", "executor_client"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return backoff.WithMaxRetries(b, uint64(maxRetries))
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ready returns ErrMissingAPIKey when the client has no credentials.
func (c *Client) Ready() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// CreateSession opens an ephemeral session and returns its live-view URL
// when the executor already knows it.
func (c *Client) CreateSession(ctx context.Context) (Session, error) {
	var s Session
	if err := c.doJSON(ctx, "create_session", http.MethodPost, "sessions", struct{}{}, &s); err != nil {
		return Session{}, err
	}
	if s.ID == "" {
		return Session{}, fmt.Errorf("%w: session id missing", ErrMalformedResponse)
	}
	return s, nil
}

// RequestUploadSlot asks for a presigned upload target inside sessionID.
func (c *Client) RequestUploadSlot(ctx context.Context, sessionID string, req UploadSlotRequest) (UploadSlot, error) {
	var slot UploadSlot
	path := "files/sessions/" + url.PathEscape(sessionID) + "/presigned-url"
	if err := c.doJSON(ctx, "request_upload_slot", http.MethodPost, path, req, &slot); err != nil {
		return UploadSlot{}, err
	}
	if slot.URL == "" || slot.Fields == nil {
		return UploadSlot{}, fmt.Errorf("%w: upload slot missing url or fields", ErrMalformedResponse)
	}
	if slot.FileName == "" {
		slot.FileName = req.FileName
	}
	return slot, nil
}

// UploadFile pushes content to a presigned slot: the slot's form fields in
// key order, then the file part.
func (c *Client) UploadFile(ctx context.Context, slot UploadSlot, contentType string, content []byte) error {
	start := time.Now()
	err := c.upload(ctx, slot, contentType, content)
	c.observe("upload_file", err, start)
	return err
}

func (c *Client) upload(ctx context.Context, slot UploadSlot, contentType string, content []byte) error {
	var (
		body        bytes.Buffer
		requestType string
	)
	method := strings.ToUpper(slot.Method)
	if method == "" {
		method = http.MethodPost
	}

	if method == http.MethodPut {
		body.Write(content)
		requestType = contentType
	} else {
		mw := multipart.NewWriter(&body)
		keys := make([]string, 0, len(slot.Fields))
		for k := range slot.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := mw.WriteField(k, slot.Fields[k]); err != nil {
				return fmt.Errorf("write upload field %s: %w", k, err)
			}
		}
		part, err := mw.CreateFormFile("file", slot.FileName)
		if err != nil {
			return fmt.Errorf("create upload file part: %w", err)
		}
		if _, err := part.Write(content); err != nil {
			return fmt.Errorf("write upload file part: %w", err)
		}
		if err := mw.Close(); err != nil {
			return fmt.Errorf("close upload body: %w", err)
		}
		requestType = mw.FormDataContentType()
	}

	req, err := http.NewRequestWithContext(ctx, method, slot.URL, &body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", requestType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload to %s: %w", hostOf(slot.URL), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError("upload_file", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// CreateTask submits a task. It is not retried: a retry could start a
// second run.
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (CreatedTask, error) {
	var created CreatedTask
	if err := c.doJSON(ctx, "create_task", http.MethodPost, "tasks", req, &created); err != nil {
		return CreatedTask{}, err
	}
	if created.ID == "" {
		return CreatedTask{}, fmt.Errorf("%w: task id missing", ErrMalformedResponse)
	}
	if created.SessionID == "" {
		created.SessionID = req.SessionID
	}
	return created, nil
}

// GetTask fetches a task snapshot, retrying transient failures.
func (c *Client) GetTask(ctx context.Context, taskID string) (TaskView, error) {
	var view TaskView
	err := c.retry(ctx, func() error {
		return c.doJSON(ctx, "get_task", http.MethodGet, "tasks/"+url.PathEscape(taskID), nil, &view)
	})
	if err != nil {
		return TaskView{}, err
	}
	view.Status = MapStatus(view.RawStatus)
	return view, nil
}

// AwaitTask blocks until the task is terminal or ctx ends.
func (c *Client) AwaitTask(ctx context.Context, taskID string) (TaskView, error) {
	ticker := time.NewTicker(c.awaitInterval)
	defer ticker.Stop()

	for {
		view, err := c.GetTask(ctx, taskID)
		if err != nil {
			return TaskView{}, err
		}
		if view.IsTerminal() {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, fmt.Errorf("waiting for task %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// StopTask asks the executor to stop a running task. A rejection because the
// task already finished is reported as ErrTaskFinished, and so is a task the
// executor no longer knows: finished tasks are purged after a while.
func (c *Client) StopTask(ctx context.Context, taskID string) error {
	body := map[string]string{"action": "stop"}
	err := c.retry(ctx, func() error {
		return c.doJSON(ctx, "stop_task", http.MethodPatch, "tasks/"+url.PathEscape(taskID), body, nil)
	})
	if errors.Is(err, ErrTaskNotFound) {
		return fmt.Errorf("%w: %w", ErrTaskFinished, err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusConflict, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s", ErrTaskFinished, apiErr.Body)
		}
	}
	return err
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	start := time.Now()
	err := c.roundTrip(ctx, op, method, path, in, out)
	c.observe(op, err, start)
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, in, out any) error {
	if err := c.Ready(); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("executor %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "tasks/") {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrMalformedResponse, op, err)
	}
	return nil
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil || !retryable(err) {
			if err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}
		logger.FromContextOrDefault(ctx, c.logger).Debug("retrying executor call",
			"attempt", attempt,
			"error", redact.Error(err))
		return err
	}, backoff.WithContext(c.newBackOff(), ctx))
}

func (c *Client) observe(op string, err error, start time.Time) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.observer.ObserveRemoteCall(op, outcome, time.Since(start))
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func apiError(op string, resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	text := redact.String(strings.TrimSpace(string(raw)))
	if len(text) > maxErrorBodyChars {
		text = text[:maxErrorBodyChars] + "..."
	}
	return &APIError{Op: op, StatusCode: resp.StatusCode, Body: text}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "upload target"
	}
	return u.Host
}
