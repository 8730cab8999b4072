package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
)

type statusMetrics struct {
	metrics.Nop
	statuses []int
}

func (m *statusMetrics) RecordHTTPStatus(code int) { m.statuses = append(m.statuses, code) }

func parseLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	m := &statusMetrics{}

	handler := NewLoggingMiddleware(logger, m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/checkout", nil))

	entry := parseLogEntry(t, &buf)
	if entry["msg"] != "http_request" || entry["method"] != "POST" || entry["path"] != "/api/checkout" {
		t.Errorf("ログ項目が不正: %v", entry)
	}
	if entry["status"] != float64(201) {
		t.Errorf("status = %v, want 201", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("duration_ms がない")
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("未ログインなのに user_id が出力された")
	}
	if len(m.statuses) != 1 || m.statuses[0] != 201 {
		t.Errorf("RecordHTTPStatus = %v, want [201]", m.statuses)
	}
}

// 内側のセッションミドルウェアで判明したユーザーIDが外側のログに出力されること
func TestLoggingMiddleware_UserIDFromInnerSession(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	loader := &mockSessionLoader{
		loadOrCreateFn: func(_ context.Context, id string) (*model.Session, bool, error) {
			return &model.Session{ID: id, AccountID: "user-123"}, false, nil
		},
	}
	chain := NewLoggingMiddleware(logger, nil)(
		NewSessionMiddleware(loader, SessionConfig{})(okHandler()),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})
	chain.ServeHTTP(httptest.NewRecorder(), req)

	if entry := parseLogEntry(t, &buf); entry["user_id"] != "user-123" {
		t.Errorf("user_id = %v, want user-123", entry["user_id"])
	}
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusTooManyRequests, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			handler := NewLoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			if entry := parseLogEntry(t, &buf); entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
		})
	}
}

func TestLoggingMiddleware_ImplicitOK(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := NewLoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if entry := parseLogEntry(t, &buf); entry["status"] != float64(200) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
}
