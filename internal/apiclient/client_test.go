package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/apply-orchestrator/internal/api"
	"github.com/phrazzld/apply-orchestrator/internal/api/shared"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsInvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "://bad"} {
		_, err := New(raw, "t", nil)
		assert.Error(t, err, raw)
	}
}

func TestClient_Submit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/applications", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		var req api.SubmitApplicationRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "job-9", req.JobID)
		assert.Equal(t, "be brief", req.Notes)

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"task_id":"abc","status":"pending","created_at":"2026-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/", "tok", srv.Client())
	require.NoError(t, err)

	resp, err := c.Submit(context.Background(), api.SubmitApplicationRequest{JobID: "job-9", Notes: "be brief"})
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.TaskID)
	assert.Equal(t, "pending", resp.Status)
}

func TestClient_GetTaskDecodesTristate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks/t-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"task_id":"t-1","status":"completed","is_success":false,"outcome":"failed","staged_files":[],"logs":["done"],"error":null,"completed_at":null}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "tok", srv.Client())
	require.NoError(t, err)

	task, err := c.GetTask(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", task.Status)
	assert.Equal(t, domain.False, task.IsSuccess)
	assert.Equal(t, "failed", task.Outcome)
	assert.Equal(t, []string{"done"}, task.Logs)
}

func TestClient_RefetchAndCancelPaths(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.URL.Path == "/api/tasks/t-2/cancel" {
			_, _ = w.Write([]byte(`{"task_id":"t-2","cancelled":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"task_id":"t-2","status":"running"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "tok", srv.Client())
	require.NoError(t, err)

	task, err := c.Refetch(context.Background(), "t-2")
	require.NoError(t, err)
	assert.Equal(t, "running", task.Status)

	cancelled, err := c.Cancel(context.Background(), "t-2")
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled)

	assert.Equal(t, []string{"POST /api/tasks/t-2/refetch", "POST /api/tasks/t-2/cancel"}, paths)
}

func TestClient_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(shared.ErrorResponse{
			Error:         "Your profile is missing required fields: email",
			Category:      "incomplete_profile",
			MissingFields: []string{"email"},
			TraceID:       "trace-1",
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL, "tok", srv.Client())
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), api.SubmitApplicationRequest{JobID: "j"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "incomplete_profile", apiErr.Category)
	assert.Equal(t, []string{"email"}, apiErr.MissingFields)
	assert.Equal(t, "trace-1", apiErr.TraceID)
	assert.Equal(t,
		"Your profile is missing required fields: email (HTTP 422, incomplete_profile): missing email",
		apiErr.Error())
}

func TestClient_ErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "tok", srv.Client())
	require.NoError(t, err)

	_, err = c.GetTask(context.Background(), "x")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}

func TestClient_MissingToken(t *testing.T) {
	c, err := New("http://127.0.0.1:1", "", nil)
	require.NoError(t, err)

	_, err = c.GetTask(context.Background(), "x")
	assert.ErrorIs(t, err, ErrMissingToken)
}
