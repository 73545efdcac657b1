package httprequest_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/actflow/pkg/actions/httprequest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		params   map[string]string
		expected *httprequest.Action
		wantErr  error
	}{
		{
			name:   "defaults",
			params: map[string]string{"url": "https://api.example.com/data"},
			expected: &httprequest.Action{
				Method:  "GET",
				URL:     "https://api.example.com/data",
				Headers: map[string]string{},
				Timeout: 30 * time.Second,
				Retry:   httprequest.RetryConfig{Attempts: 1},
			},
		},
		{
			name: "post with headers and retries",
			params: map[string]string{
				"url":           "http://api.example.com/create",
				"method":        "post",
				"headers":       `{"Authorization": "Bearer token123"}`,
				"body":          `{"key": "value"}`,
				"retryAttempts": "3",
				"retryDelay":    "250",
				"timeout":       "5",
			},
			expected: &httprequest.Action{
				Method:  "POST",
				URL:     "http://api.example.com/create",
				Headers: map[string]string{"Authorization": "Bearer token123"},
				Body:    `{"key": "value"}`,
				Timeout: 5 * time.Second,
				Retry:   httprequest.RetryConfig{Attempts: 3, Delay: 250 * time.Millisecond},
			},
		},
		{
			name:    "relative url",
			params:  map[string]string{"url": "/data"},
			wantErr: httprequest.ErrHTTPRequestURLInvalid,
		},
		{
			name:    "headers not json",
			params:  map[string]string{"url": "https://x", "headers": "Authorization: x"},
			wantErr: httprequest.ErrHTTPHeadersInvalid,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			action, err := httprequest.NewAction(testCase.params)
			if testCase.wantErr != nil {
				require.ErrorIs(t, err, testCase.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, testCase.expected, action)
		})
	}
}

func TestAction_Execute_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "GET", request.Method)
		assert.Equal(t, "Bearer abc", request.Header.Get("Authorization"))

		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"user": {"name": "ada"}}`))
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]string{
		"url":     server.URL + "/users/1",
		"headers": `{"Authorization": "Bearer abc"}`,
	})
	require.NoError(t, err)

	result, err := action.Execute(t.Context(), nil, testLogger())
	require.NoError(t, err)
	assert.JSONEq(t, `{"user": {"name": "ada"}}`, result.Content)
	assert.Equal(t, http.StatusOK, result.Fields["statusCode"])
	assert.Equal(t, map[string]any{"user": map[string]any{"name": "ada"}}, result.Fields["body"])
	assert.Equal(t, "application/json", result.Fields["headers"].(map[string]any)["Content-Type"])
}

func TestAction_Execute_InputsBecomeBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		data, _ := io.ReadAll(request.Body)
		assert.JSONEq(t, `{"in": "hello"}`, string(data))
		writer.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]string{"url": server.URL, "method": "POST"})
	require.NoError(t, err)

	result, err := action.Execute(t.Context(), map[string]string{"in": "hello"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, result.Fields["statusCode"])
}

func TestAction_Execute_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			writer.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = writer.Write([]byte("ok"))
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]string{"url": server.URL, "retryAttempts": "3", "retryDelay": "1"})
	require.NoError(t, err)

	result, err := action.Execute(t.Context(), nil, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	assert.Equal(t, "ok", result.Fields["body"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestAction_Execute_ErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
		_, _ = writer.Write([]byte("no such user"))
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]string{"url": server.URL})
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), nil, testLogger())
	require.ErrorIs(t, err, httprequest.ErrHTTPStatus)
	assert.Contains(t, err.Error(), "no such user")
}

func TestAction_Execute_CancelledDuringRetry(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]string{"url": server.URL, "retryAttempts": "5", "retryDelay": "60000"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err = action.Execute(ctx, nil, testLogger())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestActionFactory(t *testing.T) {
	t.Parallel()

	factory := httprequest.NewActionFactory()
	assert.Equal(t, "http", factory.ID())
	assert.Equal(t, "object", factory.Schema()["type"])

	_, err := factory.Create(t.Context(), "download", map[string]string{"url": "https://x"})
	require.ErrorIs(t, err, httprequest.ErrUnsupportedAction)

	action, err := factory.Create(t.Context(), httprequest.ActionIDRequest, map[string]string{"url": "https://x"})
	require.NoError(t, err)
	assert.IsType(t, &httprequest.Action{}, action)
}
