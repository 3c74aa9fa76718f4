// Package dispatch owns the per-class telemetry queues and best-effort HTTP
// delivery to the remote collector. Local queues exist for the dashboard
// snapshot API and are independent of delivery: a send failure never removes
// or retries anything, and sampling never hides records from the queues.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// Class names a delivery route. The collector exposes one POST endpoint per
// class under the configured base URL.
type Class string

const (
	ClassErrors    Class = "errors"
	ClassMetrics   Class = "metrics"
	ClassEvents    Class = "events"
	ClassWebVitals Class = "web-vitals"

	// classWebVitalsSummary is the unload-time summary route; it bypasses
	// sampling because it is sent at most once per page lifetime.
	classWebVitalsSummary Class = "web-vitals-summary"
)

// compactKeep is how many records per local queue survive a compaction pass.
const compactKeep = 100

// finalDeliveryTimeout bounds the synchronous unload-path send.
const finalDeliveryTimeout = 2 * time.Second

// Env supplies the envelope fields attached to every delivered payload.
type Env struct {
	SessionID func() string
	PageURL   func() string
	UserAgent string
}

// Options configures a Dispatcher. Client, Now, and Rand are injectable for
// tests; nil means the production defaults.
type Options struct {
	Endpoint   string
	SampleRate float64
	Client     *http.Client
	Env        Env
	Logger     *slog.Logger
	Now        func() time.Time
	Rand       func() float64
}

// Dispatcher batches records locally and ships them remotely. All methods
// are safe for concurrent use; snapshot reads return copies.
type Dispatcher struct {
	endpoint   string
	sampleRate float64
	client     *http.Client
	env        Env
	logger     *slog.Logger
	now        func() time.Time
	randFloat  func() float64

	mu             sync.Mutex
	queues         map[Class][]json.RawMessage
	evicted        map[Class]int
	deliveredCount int
	sampledOut     int
}

func New(opts Options) *Dispatcher {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &Dispatcher{
		endpoint:   opts.Endpoint,
		sampleRate: opts.SampleRate,
		client:     opts.Client,
		env:        opts.Env,
		logger:     opts.Logger,
		now:        opts.Now,
		randFloat:  opts.Rand,
		queues:     make(map[Class][]json.RawMessage),
		evicted:    make(map[Class]int),
	}
}

// Enqueue appends a record to the class queue. Non-blocking; marshal
// failures are logged and dropped. The queue sees every captured record
// regardless of the sampling outcome at delivery time.
func (d *Dispatcher) Enqueue(class Class, rec any) {
	raw, err := json.Marshal(rec)
	if err != nil {
		d.logger.Debug("failed to marshal record for queue",
			slog.String("class", string(class)), slog.String("error", err.Error()))
		return
	}
	d.mu.Lock()
	d.queues[class] = append(d.queues[class], raw)
	d.mu.Unlock()
}

// Snapshot returns a copy of the class queue in arrival order.
func (d *Dispatcher) Snapshot(class Class) []json.RawMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]json.RawMessage, len(d.queues[class]))
	copy(out, d.queues[class])
	return out
}

// Compact trims every local queue to its most recent records, bounding
// steady-state memory for the long-lived classes.
func (d *Dispatcher) Compact() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for class, q := range d.queues {
		if len(q) > compactKeep {
			d.evicted[class] += len(q) - compactKeep
			d.queues[class] = append([]json.RawMessage(nil), q[len(q)-compactKeep:]...)
		}
	}
}

// QueueStats reports per-class queue depth and lifetime evictions.
type QueueStats struct {
	Depth     map[string]int `json:"depth"`
	Evicted   map[string]int `json:"evicted"`
	Delivered int            `json:"delivered"`
	Sampled   int            `json:"sampled_out"`
}

func (d *Dispatcher) Stats() QueueStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats := QueueStats{
		Depth:     make(map[string]int, len(d.queues)),
		Evicted:   make(map[string]int, len(d.evicted)),
		Delivered: d.deliveredCount,
		Sampled:   d.sampledOut,
	}
	for class, q := range d.queues {
		stats.Depth[string(class)] = len(q)
	}
	for class, n := range d.evicted {
		stats.Evicted[string(class)] = n
	}
	return stats
}

// Deliver ships one record to the collector. No call is attempted when no
// endpoint is configured or when the sampling gate rejects the record.
// Failures are logged and swallowed; there are no retries.
func (d *Dispatcher) Deliver(ctx context.Context, class Class, rec any) {
	if d.endpoint == "" {
		return
	}
	if d.randFloat() >= d.sampleRate {
		d.mu.Lock()
		d.sampledOut++
		d.mu.Unlock()
		return
	}
	d.post(ctx, class, rec)
}

// DeliverSummary sends the vitals summary over the unload-safe path: a
// synchronous POST with a short hard timeout, independent of the caller's
// context so page teardown cannot cancel it mid-flight. Not sampled.
func (d *Dispatcher) DeliverSummary(summary any) {
	if d.endpoint == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalDeliveryTimeout)
	defer cancel()
	d.post(ctx, classWebVitalsSummary, summary)
}

// Flush attempts delivery of everything currently queued for the class.
// Queued records stay in place afterwards; the queue is a dashboard buffer,
// not a delivery retry buffer.
func (d *Dispatcher) Flush(ctx context.Context, class Class) {
	if d.endpoint == "" {
		return
	}
	for _, raw := range d.Snapshot(class) {
		d.Deliver(ctx, class, raw)
	}
}

func (d *Dispatcher) post(ctx context.Context, class Class, rec any) {
	body, err := json.Marshal(d.envelope(rec))
	if err != nil {
		d.logger.Debug("failed to marshal delivery payload",
			slog.String("class", string(class)), slog.String("error", err.Error()))
		return
	}

	url := fmt.Sprintf("%s/%s", d.endpoint, class)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.logger.Debug("failed to build delivery request",
			slog.String("url", url), slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Debug("telemetry delivery failed",
			slog.String("class", string(class)), slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.logger.Debug("collector rejected telemetry",
			slog.String("class", string(class)), slog.Int("status", resp.StatusCode))
		return
	}

	d.mu.Lock()
	d.deliveredCount++
	d.mu.Unlock()
}

// envelope flattens the record into a JSON object and attaches the common
// fields every delivered payload carries: session_id, url, user_agent, and
// a delivery timestamp.
func (d *Dispatcher) envelope(rec any) map[string]any {
	fields := make(map[string]any)
	if raw, err := json.Marshal(rec); err == nil {
		// Best effort: records are structs or objects; anything else
		// ships under a payload key.
		if err := json.Unmarshal(raw, &fields); err != nil {
			fields = map[string]any{"payload": json.RawMessage(raw)}
		}
	}
	if v, ok := fields["session_id"]; !ok || v == "" {
		if d.env.SessionID != nil {
			fields["session_id"] = d.env.SessionID()
		}
	}
	if d.env.PageURL != nil {
		fields["url"] = d.env.PageURL()
	}
	fields["user_agent"] = d.env.UserAgent
	if _, ok := fields["timestamp"]; !ok {
		fields["timestamp"] = d.now().UnixMilli()
	}
	return fields
}
