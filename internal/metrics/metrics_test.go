package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TickPublished("AAA")
	m.TickPublished("BBB")
	m.PublishFailed("stocks")
	m.Persisted("warm", time.Millisecond)
	m.Persisted("cold", time.Millisecond)
	m.Persisted("cold", time.Millisecond)
	m.Dropped("warm")
	m.LatestServed("cold")
	m.TailOpened()
	m.TailOpened()
	m.TailClosed()

	if got := testutil.ToFloat64(m.ticksPublished); got != 2 {
		t.Errorf("ticks_published_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.publishErrors); got != 1 {
		t.Errorf("publish_errors_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.fillerPersisted.WithLabelValues("cold")); got != 2 {
		t.Errorf("filler_persisted_total{sink=cold} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.fillerDropped.WithLabelValues("warm")); got != 1 {
		t.Errorf("filler_dropped_total{sink=warm} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.latestSource.WithLabelValues("cold")); got != 1 {
		t.Errorf("latest_reads_total{source=cold} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tailSessions); got != 1 {
		t.Errorf("tail_sessions = %v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	m.TickPublished("AAA")
	m.PublishFailed("stocks")
	m.Persisted("warm", time.Second)
	m.Dropped("warm")
	m.PersistFailed("warm")
	m.LatestServed("warm")
	m.TailOpened()
	m.TailClosed()
	m.ScrapeCycle(time.Second, 3)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ScrapeCycle(10*time.Millisecond, 2)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tickstream_scrape_errors_total 2") {
		t.Errorf("scrape errors not exported:\n%s", rec.Body.String())
	}
}

func TestNewServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).TailOpened()

	srv := NewServer(9090, "/metrics", reg)
	if srv.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", srv.Addr)
	}

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "tickstream_tail_sessions 1") {
		t.Errorf("tail sessions not exported:\n%s", rec.Body.String())
	}
}
