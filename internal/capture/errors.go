// Package capture turns raw runtime failure signals into normalized error
// records: uncaught exceptions, unhandled rejections, failed network calls,
// and failed resource loads. Every candidate passes the ignore filter before
// it touches the session or the queue.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tjfontaine/beacon-agent/internal/filter"
	"github.com/tjfontaine/beacon-agent/internal/record"
	"github.com/tjfontaine/beacon-agent/internal/session"
)

const (
	// queueCap bounds the error queue; insertion past it evicts oldest-first.
	queueCap = 100
	// compactTo is the retention target of the periodic compaction pass.
	compactTo = 50
	// CompactionInterval is how often the owner should call Compact.
	CompactionInterval = time.Minute
	// recentStatsCount is how many recent records Stats exposes.
	recentStatsCount = 10
)

// ExceptionSignal carries an uncaught exception as reported by the host
// runtime's error hook.
type ExceptionSignal struct {
	Message  string
	Filename string
	Line     int
	Col      int
	Stack    string
}

// ResourceSignal carries a failed load of an image, script, stylesheet, or
// similar element.
type ResourceSignal struct {
	TagName   string
	SourceURL string
}

// Sink receives the channel's outbound telemetry. ForwardError is the
// immediate-remote-report path used for serious failures; Event carries
// derived custom events. Implementations must not block.
type Sink interface {
	ForwardError(rec record.ErrorRecord)
	Event(name string, props record.Properties)
}

// Sessions is the slice of the session tracker the channel needs.
type Sessions interface {
	Current(ctx context.Context) *session.Session
	Record(ctx context.Context, kind session.Kind)
}

// Stats is the dashboard view of captured errors.
type Stats struct {
	Total            int                  `json:"total"`
	ByClassification map[string]int       `json:"by_classification"`
	Recent           []record.ErrorRecord `json:"recent"`
}

// Errors is the error capture channel. It owns a bounded FIFO of recent
// records; reads return copies.
type Errors struct {
	filter     *filter.Filter
	sessions   Sessions
	sink       Sink
	now        func() time.Time
	pageURL    func() string
	userAgent  string
	production bool

	mu        sync.Mutex
	queue     []record.ErrorRecord
	total     int
	byClass   map[string]int
	compacted int
}

// Config wires an Errors channel.
type Config struct {
	Filter    *filter.Filter
	Sessions  Sessions
	Sink      Sink
	Now       func() time.Time
	PageURL   func() string
	UserAgent string
	// Production switches on duplicate-noise suppression behavior for
	// accepted rejections (HandleRejection's return value).
	Production bool
}

func New(cfg Config) *Errors {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PageURL == nil {
		cfg.PageURL = func() string { return "" }
	}
	return &Errors{
		filter:     cfg.Filter,
		sessions:   cfg.Sessions,
		sink:       cfg.Sink,
		now:        cfg.Now,
		pageURL:    cfg.PageURL,
		userAgent:  cfg.UserAgent,
		production: cfg.Production,
		byClass:    make(map[string]int),
	}
}

// HandleException captures an uncaught exception. When no stack is
// available, a synthetic locator built from the source position stands in
// for the component context.
func (e *Errors) HandleException(sig ExceptionSignal) {
	if e.filter.ShouldIgnore(sig.Message, sig.Filename) {
		return
	}

	rec := record.ErrorRecord{
		Message:        sig.Message,
		Stack:          sig.Stack,
		Classification: record.ClassificationJavascriptError,
	}
	if sig.Stack == "" {
		rec.ComponentContext = fmt.Sprintf("at %s:%d:%d", sig.Filename, sig.Line, sig.Col)
	}
	e.process(rec, true)
}

// HandleRejection captures an unhandled promise rejection. Non-error reasons
// are coerced to their string form; that loses structure for object reasons
// and is intentional for compatibility with the recorded wire format. The
// return value tells the host whether the record was accepted, so it can
// suppress its own default logging in production and avoid duplicate noise.
func (e *Errors) HandleRejection(reason any) bool {
	var message, stack string
	if err, ok := reason.(error); ok {
		message = err.Error()
	} else {
		message = fmt.Sprintf("%v", reason)
	}

	if e.filter.ShouldIgnore(message, "") {
		return false
	}

	e.process(record.ErrorRecord{
		Message:        message,
		Stack:          stack,
		Classification: record.ClassificationUnhandledRejection,
	}, true)
	return e.production
}

// HandleNetworkError captures one failed HTTP call from the instrumented
// transport. Server-side failures (5xx) and transport failures are
// forwarded for immediate remote reporting; client errors are queued only.
func (e *Errors) HandleNetworkError(netErr record.NetworkErrorRecord) {
	if e.filter.ShouldIgnore(netErr.StatusText, netErr.URL) {
		return
	}

	message := fmt.Sprintf("HTTP %d %s: %s %s", netErr.Status, netErr.StatusText, netErr.Method, netErr.URL)
	if netErr.Status == 0 {
		message = fmt.Sprintf("Network failure: %s %s", netErr.Method, netErr.URL)
	}

	e.process(record.ErrorRecord{
		Message:          message,
		ComponentContext: fmt.Sprintf("%s %s", netErr.Method, netErr.URL),
		Classification:   record.ClassificationNetworkError,
	}, netErr.Status >= 500)
}

// HandleResourceError captures a failed element load as a resource_error
// event. Resource failures carry no stack and are not queued as errors.
func (e *Errors) HandleResourceError(sig ResourceSignal) {
	if e.filter.ShouldIgnore("", sig.SourceURL) {
		return
	}
	e.sink.Event("resource_error", record.Properties{
		"tag_name":   sig.TagName,
		"source_url": sig.SourceURL,
	})
}

// Report is the manual reporting path. It runs the same pipeline as the
// listeners, including the filter.
func (e *Errors) Report(err error, componentContext string) {
	if err == nil {
		return
	}
	if e.filter.ShouldIgnore(err.Error(), "") {
		return
	}
	e.process(record.ErrorRecord{
		Message:          err.Error(),
		ComponentContext: componentContext,
		Classification:   record.ClassificationManualReport,
	}, false)
}

// process is the shared tail of every listener: resolve the session, count
// the error against it, queue the record, and optionally forward it for
// immediate remote reporting.
func (e *Errors) process(rec record.ErrorRecord, forward bool) {
	ctx := context.Background()
	sess := e.sessions.Current(ctx)
	e.sessions.Record(ctx, session.Error)

	rec.SessionID = sess.ID
	rec.Timestamp = record.Millis(e.now())
	rec.SourceURL = e.pageURL()
	rec.UserAgent = e.userAgent

	e.mu.Lock()
	e.queue = append(e.queue, rec)
	if len(e.queue) > queueCap {
		e.queue = e.queue[len(e.queue)-queueCap:]
	}
	e.total++
	e.byClass[string(rec.Classification)]++
	e.mu.Unlock()

	if forward {
		e.sink.ForwardError(rec)
	}
}

// Compact trims the queue to the most recent records, bounding steady-state
// memory below the hard cap. Called periodically by the owner.
func (e *Errors) Compact() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) > compactTo {
		e.compacted += len(e.queue) - compactTo
		e.queue = append([]record.ErrorRecord(nil), e.queue[len(e.queue)-compactTo:]...)
	}
}

// QueueLen reports the current queue depth.
func (e *Errors) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Queue returns a copy of the queued records, oldest first.
func (e *Errors) Queue() []record.ErrorRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]record.ErrorRecord, len(e.queue))
	copy(out, e.queue)
	return out
}

// Stats returns the dashboard error summary: lifetime total, counts by
// classification, and the most recent records (newest last).
func (e *Errors) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	byClass := make(map[string]int, len(e.byClass))
	for k, v := range e.byClass {
		byClass[k] = v
	}

	start := len(e.queue) - recentStatsCount
	if start < 0 {
		start = 0
	}
	recent := make([]record.ErrorRecord, len(e.queue)-start)
	copy(recent, e.queue[start:])

	return Stats{Total: e.total, ByClassification: byClass, Recent: recent}
}
