package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func TestCollector(t *testing.T) {
	t.Run("upstream requests by status", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		c := NewCollector(reg)

		c.RecordUpstreamRequest("/me/tracks", 200, 10*time.Millisecond)
		c.RecordUpstreamRequest("/me/tracks", 200, 20*time.Millisecond)
		c.RecordUpstreamRequest("/me/tracks", 503, 5*time.Millisecond)

		mf := findMetric(t, reg, "incommon_upstream_requests_total")
		if len(mf.GetMetric()) != 2 {
			t.Fatalf("expected 2 label sets, got %d", len(mf.GetMetric()))
		}

		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		if total != 3 {
			t.Errorf("upstream_requests_total = %v, want 3", total)
		}
	})

	t.Run("token refresh results", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		c := NewCollector(reg)

		c.RecordTokenRefresh("ok")
		c.RecordTokenRefresh("revoked")

		mf := findMetric(t, reg, "incommon_token_refresh_total")
		if len(mf.GetMetric()) != 2 {
			t.Errorf("expected 2 results, got %d", len(mf.GetMetric()))
		}
	})

	t.Run("comparisons observe common count", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		c := NewCollector(reg)

		c.RecordComparison("tracks", 42)

		mf := findMetric(t, reg, "incommon_common_items")
		if got := mf.GetMetric()[0].GetHistogram().GetSampleSum(); got != 42 {
			t.Errorf("common_items sum = %v, want 42", got)
		}
	})

	t.Run("playlist batches", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		c := NewCollector(reg)

		c.RecordPlaylistBatch(true)
		c.RecordPlaylistBatch(true)
		c.RecordPlaylistBatch(false)

		mf := findMetric(t, reg, "incommon_playlist_batches_total")
		for _, m := range mf.GetMetric() {
			label := m.GetLabel()[0].GetValue()
			want := map[string]float64{"ok": 2, "failed": 1}[label]
			if m.GetCounter().GetValue() != want {
				t.Errorf("%s batches = %v, want %v", label, m.GetCounter().GetValue(), want)
			}
		}
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordHTTPRequest("/common-tracks", 200, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "incommon_http_requests_total") {
		t.Error("response should contain incommon_http_requests_total")
	}
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordUpstreamRequest("/me", 200, time.Millisecond)
	r.RecordComparison("artists", 3)
}
