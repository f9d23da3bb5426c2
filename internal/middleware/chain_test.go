package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// recordingStatus はStatusRecorderのモック実装。
type recordingStatus struct {
	codes []int
}

func (r *recordingStatus) RecordHTTPStatus(statusCode int) {
	r.codes = append(r.codes, statusCode)
}

// TestRecoveryMiddleware_ReturnsJSON500 はpanicを500の統一エラーに変換することを検証する。
func TestRecoveryMiddleware_ReturnsJSON500(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
}

// TestSecurityHeadersMiddleware_SetsHeaders はセキュリティヘッダーの付与を検証する。
func TestSecurityHeadersMiddleware_SetsHeaders(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

// TestStatusMetricsMiddleware_RecordsStatus はステータスコードの記録を検証する。
func TestStatusMetricsMiddleware_RecordsStatus(t *testing.T) {
	rec := &recordingStatus{}
	handler := NewStatusMetricsMiddleware(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	if len(rec.codes) != 2 {
		t.Fatalf("recorded %d codes, want 2", len(rec.codes))
	}
	if rec.codes[0] != http.StatusOK || rec.codes[1] != http.StatusUnauthorized {
		t.Errorf("codes = %v, want [200 401]", rec.codes)
	}
}

// TestMiddlewareChain_ProtectedRoute はchi.Router上でミドルウェアを組み合わせた動作を検証する。
func TestMiddlewareChain_ProtectedRoute(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	status := &recordingStatus{}

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewStatusMetricsMiddleware(status))
	r.Use(NewSecurityHeadersMiddleware())
	r.Group(func(r chi.Router) {
		r.Use(NewBearerMiddleware(validatorAccepting("good-token", testClaims("acc-chain"))))
		r.Get("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
			id, _ := AccountIDFromContext(r.Context())
			w.Write([]byte(id))
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "acc-chain" {
		t.Errorf("body = %q, want %q", w.Body.String(), "acc-chain")
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected Cache-Control: no-store")
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}
	if entry["account_id"] != "acc-chain" {
		t.Errorf("account_id = %v, want %q", entry["account_id"], "acc-chain")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if len(status.codes) != 2 || status.codes[1] != http.StatusUnauthorized {
		t.Errorf("recorded codes = %v, want [200 401]", status.codes)
	}
}
