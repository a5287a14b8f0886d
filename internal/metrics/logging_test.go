package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingMiddleware_Fields(t *testing.T) {
	tests := []struct {
		name      string
		remote    string
		forwarded string
		requestID string
		status    int
		wantIP    string
	}{
		{name: "remote address", remote: "10.0.0.1:54321", status: http.StatusOK, wantIP: "10.0.0.1:54321"},
		{name: "forwarded chain", remote: "10.0.0.1:54321", forwarded: "203.0.113.50, 10.0.0.7", status: http.StatusOK, wantIP: "203.0.113.50"},
		{name: "caller request id", remote: "192.168.1.1:1000", requestID: "scrape-7", status: http.StatusServiceUnavailable, wantIP: "192.168.1.1:1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, logs := observer.New(zap.InfoLevel)
			wrapped := LoggingMiddleware(zap.New(obs))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.requestID != "" {
				req.Header.Set("X-Request-ID", tt.requestID)
			}
			w := httptest.NewRecorder()
			wrapped.ServeHTTP(w, req)

			require.Equal(t, 1, logs.Len())
			fields := logs.All()[0].ContextMap()
			assert.Equal(t, "GET", fields["method"])
			assert.Equal(t, "/metrics", fields["path"])
			assert.EqualValues(t, tt.status, fields["status"])
			assert.Equal(t, tt.wantIP, fields["client_ip"])
			assert.Contains(t, fields, "duration_ms")

			id := w.Header().Get("X-Request-ID")
			require.NotEmpty(t, id)
			assert.Equal(t, id, fields["request_id"])
			if tt.requestID != "" {
				assert.Equal(t, tt.requestID, id)
			}
		})
	}
}

func TestHandler_LogsScrape(t *testing.T) {
	obs, logs := observer.New(zap.InfoLevel)
	reg := NewRegistry()
	reg.RecordDecision("aggressive", "bull", 0.7, false)

	w := httptest.NewRecorder()
	Handler(reg, zap.New(obs)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "aporte_decisions_total")
	require.Equal(t, 1, logs.FilterMessage("http request").Len())
}
