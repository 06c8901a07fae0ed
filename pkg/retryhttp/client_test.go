package retryhttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(rec *sleepRecorder) *Client {
	return New(zap.NewNop(), WithSleep(rec.sleep))
}

func TestPost_RetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer svr.Close()

	rec := &sleepRecorder{}
	resp, err := newTestClient(rec).Post(context.Background(), svr.URL, nil, []byte(`{}`), time.Second)

	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestPost_ServerErrorExhaustsBudget(t *testing.T) {
	var calls int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"backend overloaded"}}`))
	}))
	defer svr.Close()

	rec := &sleepRecorder{}
	_, err := newTestClient(rec).Post(context.Background(), svr.URL, nil, nil, time.Second)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "backend overloaded", apiErr.Message)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Len(t, rec.delays, 3)
}

func TestPost_ClientErrorIsNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"upstream message", `{"error":{"message":"API key not valid"}}`, "API key not valid"},
		{"no message", `not json`, "Unknown API error"},
		{"empty error object", `{"error":{}}`, "Unknown API error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer svr.Close()

			rec := &sleepRecorder{}
			_, err := newTestClient(rec).Post(context.Background(), svr.URL, nil, nil, time.Second)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
			assert.Empty(t, rec.delays)
		})
	}
}

func TestPost_TransportErrorAfterRetries(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := svr.URL
	svr.Close()

	rec := &sleepRecorder{}
	_, err := newTestClient(rec).Post(context.Background(), url, nil, nil, time.Second)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, 4, transportErr.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestPost_SendsHeadersAndBody(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"value":42}`))
	}))
	defer svr.Close()

	resp, err := newTestClient(&sleepRecorder{}).Post(context.Background(), svr.URL,
		map[string]string{"x-goog-api-key": "secret"}, []byte(`{"a":1}`), time.Second)
	require.NoError(t, err)

	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, 42, out.Value)
}

func TestPost_PerAttemptTimeoutCountsAsTransportFailure(t *testing.T) {
	var calls int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer svr.Close()

	rec := &sleepRecorder{}
	_, err := newTestClient(rec).Post(context.Background(), svr.URL, nil, nil, 50*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
}

func TestContextSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, contextSleep(ctx, time.Hour), context.Canceled)
}
