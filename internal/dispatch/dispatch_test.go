package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/beacon-agent/internal/record"
	"github.com/tjfontaine/beacon-agent/internal/testutil"
)

// countingCollector records every request the dispatcher ships.
type countingCollector struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
}

func (c *countingCollector) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
}

func (c *countingCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

func testEnv() Env {
	return Env{
		SessionID: func() string { return "sess_test" },
		PageURL:   func() string { return "https://app.example.com/orders" },
		UserAgent: "test-agent",
	}
}

func TestDeliverAlwaysAtFullRate(t *testing.T) {
	collector := &countingCollector{}
	srv := httptest.NewServer(collector.handler())
	defer srv.Close()

	d := New(Options{
		Endpoint:   srv.URL,
		SampleRate: 1.0,
		Env:        testEnv(),
	})

	for i := 0; i < 10; i++ {
		d.Deliver(context.Background(), ClassEvents, record.CustomEvent{Name: fmt.Sprintf("e%d", i)})
	}

	if got := collector.count(); got != 10 {
		t.Errorf("delivered = %d, want 10 at sample rate 1.0", got)
	}
	if stats := d.Stats(); stats.Delivered != 10 || stats.Sampled != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDeliverNeverAtZeroRate(t *testing.T) {
	collector := &countingCollector{}
	srv := httptest.NewServer(collector.handler())
	defer srv.Close()

	d := New(Options{
		Endpoint:   srv.URL,
		SampleRate: 0,
		Env:        testEnv(),
	})

	for i := 0; i < 10; i++ {
		d.Enqueue(ClassEvents, record.CustomEvent{Name: fmt.Sprintf("e%d", i)})
		d.Deliver(context.Background(), ClassEvents, record.CustomEvent{Name: fmt.Sprintf("e%d", i)})
	}

	if got := collector.count(); got != 0 {
		t.Errorf("delivered = %d, want 0 at sample rate 0", got)
	}
	// Sampling gates delivery only; the local queue still holds everything.
	if got := len(d.Snapshot(ClassEvents)); got != 10 {
		t.Errorf("queued = %d, want 10", got)
	}
	if stats := d.Stats(); stats.Sampled != 10 {
		t.Errorf("sampled out = %d, want 10", stats.Sampled)
	}
}

func TestDeliverWithoutEndpoint(t *testing.T) {
	d := New(Options{SampleRate: 1.0, Env: testEnv()})

	// No endpoint means no network activity at all, not an error.
	d.Deliver(context.Background(), ClassErrors, record.ErrorRecord{Message: "boom"})
	d.DeliverSummary(map[string]any{"LCP": 1200})
	d.Flush(context.Background(), ClassErrors)

	if stats := d.Stats(); stats.Delivered != 0 || stats.Sampled != 0 {
		t.Errorf("stats = %+v, want all zero", stats)
	}
}

func TestEnvelopeFields(t *testing.T) {
	collector := &countingCollector{}
	srv := httptest.NewServer(collector.handler())
	defer srv.Close()

	d := New(Options{
		Endpoint:   srv.URL,
		SampleRate: 1.0,
		Env:        testEnv(),
		Now:        func() time.Time { return time.UnixMilli(1700000000000) },
	})

	d.Deliver(context.Background(), ClassEvents, record.CustomEvent{Name: "checkout"})

	collector.mu.Lock()
	defer collector.mu.Unlock()
	if len(collector.bodies) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(collector.bodies))
	}
	if collector.paths[0] != "/events" {
		t.Errorf("path = %q, want /events", collector.paths[0])
	}
	body := collector.bodies[0]
	if body["session_id"] != "sess_test" {
		t.Errorf("session_id = %v", body["session_id"])
	}
	if body["url"] != "https://app.example.com/orders" {
		t.Errorf("url = %v", body["url"])
	}
	if body["user_agent"] != "test-agent" {
		t.Errorf("user_agent = %v", body["user_agent"])
	}
	if body["name"] != "checkout" {
		t.Errorf("name = %v", body["name"])
	}
	if body["timestamp"] == nil {
		t.Error("timestamp missing from envelope")
	}
}

func TestDeliverSummaryBypassesSampling(t *testing.T) {
	collector := &countingCollector{}
	srv := httptest.NewServer(collector.handler())
	defer srv.Close()

	d := New(Options{Endpoint: srv.URL, SampleRate: 0, Env: testEnv()})
	d.DeliverSummary(map[string]any{"LCP": 1200.0})

	if got := collector.count(); got != 1 {
		t.Fatalf("summary deliveries = %d, want 1", got)
	}
	collector.mu.Lock()
	defer collector.mu.Unlock()
	if collector.paths[0] != "/web-vitals-summary" {
		t.Errorf("path = %q, want /web-vitals-summary", collector.paths[0])
	}
}

func TestEnqueueAndSnapshot(t *testing.T) {
	d := New(Options{Env: testEnv()})

	d.Enqueue(ClassMetrics, record.MetricRecord{Name: "LCP", Value: 1200})
	d.Enqueue(ClassMetrics, record.MetricRecord{Name: "CLS", Value: 0.02})
	d.Enqueue(ClassEvents, record.CustomEvent{Name: "checkout"})

	metrics := d.Snapshot(ClassMetrics)
	if len(metrics) != 2 {
		t.Fatalf("metrics queued = %d, want 2", len(metrics))
	}
	var first record.MetricRecord
	if err := json.Unmarshal(metrics[0], &first); err != nil {
		t.Fatalf("unmarshal queued metric: %v", err)
	}
	if first.Name != "LCP" {
		t.Errorf("first queued = %q, want LCP (arrival order)", first.Name)
	}
	if got := len(d.Snapshot(ClassEvents)); got != 1 {
		t.Errorf("events queued = %d, want 1", got)
	}
}

func TestCompact(t *testing.T) {
	d := New(Options{Env: testEnv()})

	for i := 0; i < 130; i++ {
		d.Enqueue(ClassEvents, record.CustomEvent{Name: fmt.Sprintf("e%d", i)})
	}
	d.Compact()

	queue := d.Snapshot(ClassEvents)
	if len(queue) != compactKeep {
		t.Fatalf("queue after compact = %d, want %d", len(queue), compactKeep)
	}
	var oldest record.CustomEvent
	if err := json.Unmarshal(queue[0], &oldest); err != nil {
		t.Fatalf("unmarshal queued event: %v", err)
	}
	if oldest.Name != "e30" {
		t.Errorf("oldest after compact = %q, want e30", oldest.Name)
	}
	if stats := d.Stats(); stats.Evicted["events"] != 30 {
		t.Errorf("evicted = %v, want events:30", stats.Evicted)
	}
}

func TestFlushKeepsQueue(t *testing.T) {
	collector := &countingCollector{}
	srv := httptest.NewServer(collector.handler())
	defer srv.Close()

	d := New(Options{Endpoint: srv.URL, SampleRate: 1.0, Env: testEnv()})

	for i := 0; i < 3; i++ {
		d.Enqueue(ClassErrors, record.ErrorRecord{Message: fmt.Sprintf("boom %d", i)})
	}
	d.Flush(context.Background(), ClassErrors)

	if got := collector.count(); got != 3 {
		t.Errorf("flush deliveries = %d, want 3", got)
	}
	// Flush is not a drain: the dashboard queue is untouched.
	if got := len(d.Snapshot(ClassErrors)); got != 3 {
		t.Errorf("queue after flush = %d, want 3", got)
	}
}

func TestDeliveryFailureSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := New(Options{Endpoint: srv.URL, SampleRate: 1.0, Env: testEnv()})
	d.Deliver(context.Background(), ClassErrors, record.ErrorRecord{Message: "boom"})

	if stats := d.Stats(); stats.Delivered != 0 {
		t.Errorf("delivered = %d, want 0 on collector rejection", stats.Delivered)
	}
}

func TestDeliverAgainstRecordedCollector(t *testing.T) {
	r, cleanup := testutil.NewVCRRecorder(t, "collector")
	defer cleanup()

	d := New(Options{
		Endpoint:   "http://collector.example/ingest",
		SampleRate: 1.0,
		Client:     testutil.VCRHTTPClient(r),
		Env:        testEnv(),
	})

	d.Deliver(context.Background(), ClassErrors, record.ErrorRecord{
		Message:        "Cannot read property x of undefined",
		Classification: record.ClassificationJavascriptError,
	})

	if stats := d.Stats(); stats.Delivered != 1 {
		t.Errorf("delivered = %d, want 1 against recorded collector", stats.Delivered)
	}
}
