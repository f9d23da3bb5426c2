package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue は指定名（とラベル値）のカウンタ値を返す。見つからない場合はfound=false。
func counterValue(t *testing.T, reg *prometheus.Registry, name, labelValue string) (float64, bool) {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue == "" {
				return m.GetCounter().GetValue(), true
			}
			for _, l := range m.GetLabel() {
				if l.GetValue() == labelValue {
					return m.GetCounter().GetValue(), true
				}
			}
		}
	}
	return 0, false
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordAttempt_IncrementsCounterWithOutcome は結果ラベル付きで試行数が増加することを検証する。
func TestRecordAttempt_IncrementsCounterWithOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAttempt(OutcomeSuccess)
	c.RecordAttempt(OutcomeInvalidCredentials)
	c.RecordAttempt(OutcomeInvalidCredentials)
	c.RecordAttempt(OutcomeLocked)

	tests := []struct {
		outcome string
		want    float64
	}{
		{OutcomeSuccess, 1},
		{OutcomeInvalidCredentials, 2},
		{OutcomeLocked, 1},
	}
	for _, tt := range tests {
		val, found := counterValue(t, reg, "authgate_login_attempts_total", tt.outcome)
		if !found {
			t.Errorf("login_attempts_total{outcome=%s} not found", tt.outcome)
			continue
		}
		if val != tt.want {
			t.Errorf("login_attempts_total{outcome=%s} = %v, want %v", tt.outcome, val, tt.want)
		}
	}
}

func TestRecordLockoutAndRecovery_IncrementCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLockout()
	c.RecordLockout()
	c.RecordRecovery()

	if val, _ := counterValue(t, reg, "authgate_lockouts_total", ""); val != 2 {
		t.Errorf("lockouts_total = %v, want 2", val)
	}
	if val, _ := counterValue(t, reg, "authgate_lockout_recoveries_total", ""); val != 1 {
		t.Errorf("lockout_recoveries_total = %v, want 1", val)
	}
}

func TestRecordAuditFailureAndDropped_IncrementCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuditFailure()
	c.RecordAuditDropped()
	c.RecordAuditDropped()
	c.RecordAuditDropped()

	if val, _ := counterValue(t, reg, "authgate_audit_failures_total", ""); val != 1 {
		t.Errorf("audit_failures_total = %v, want 1", val)
	}
	if val, _ := counterValue(t, reg, "authgate_audit_dropped_total", ""); val != 3 {
		t.Errorf("audit_dropped_total = %v, want 3", val)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(401)

	if val, _ := counterValue(t, reg, "authgate_http_status_total", "200"); val != 2 {
		t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
	}
	if val, _ := counterValue(t, reg, "authgate_http_status_total", "401"); val != 1 {
		t.Errorf("http_status_total{status_code=401} = %v, want 1", val)
	}
}

// TestRecordAuthLatency_ObservesHistogram はレイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordAuthLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthLatency(100 * time.Millisecond)
	c.RecordAuthLatency(250 * time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range families {
		if mf.GetName() == "authgate_authenticate_duration_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample count = %d, want 2", h.GetSampleCount())
			}
			if h.GetSampleSum() < 0.34 || h.GetSampleSum() > 0.36 {
				t.Errorf("sample sum = %v, want ~0.35", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("authgate_authenticate_duration_seconds metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAttempt(OutcomeSuccess)
	c.RecordLockout()
	c.RecordHTTPStatus(200)
	c.RecordAuthLatency(500 * time.Millisecond)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"authgate_login_attempts_total",
		"authgate_lockouts_total",
		"authgate_http_status_total",
		"authgate_authenticate_duration_seconds",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
	var _ MetricsCollector = Nop{}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordLockout()
	c2.RecordLockout()
	c2.RecordLockout()

	val1, _ := counterValue(t, reg1, "authgate_lockouts_total", "")
	val2, _ := counterValue(t, reg2, "authgate_lockouts_total", "")

	if val1 != 1 {
		t.Errorf("reg1 lockouts = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 lockouts = %v, want 2", val2)
	}
}
