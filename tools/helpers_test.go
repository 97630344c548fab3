package tools

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/lexandro/embedsearch-mcp/backend"
)

// mockBackend is an httptest embed-server that counts and records requests.
type mockBackend struct {
	calls atomic.Int32

	mu       sync.Mutex
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

func (m *mockBackend) Calls() int {
	return int(m.calls.Load())
}

func (m *mockBackend) Requests() []recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedRequest(nil), m.requests...)
}

// newMockBackend starts a mock server and returns a real client pointed at it.
func newMockBackend(t *testing.T, timeout time.Duration, handler http.HandlerFunc) (*backend.Client, *mockBackend) {
	t.Helper()
	mock := &mockBackend{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		mock.mu.Lock()
		mock.requests = append(mock.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   string(body),
		})
		mock.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := backend.NewClient(backend.ClientOptions{BaseURL: srv.URL, Timeout: timeout})
	require.NoError(t, err)
	return client, mock
}

// respond returns a handler that always writes status and body.
func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}
