package agent

import (
	"context"

	"github.com/tjfontaine/beacon-agent/internal/capture"
	"github.com/tjfontaine/beacon-agent/internal/dispatch"
	"github.com/tjfontaine/beacon-agent/internal/record"
	"github.com/tjfontaine/beacon-agent/internal/vitals"
)

// HandleException feeds an uncaught-exception signal from the host runtime
// into the error capture channel.
func (a *Agent) HandleException(sig capture.ExceptionSignal) {
	if !a.cfg.EnableErrorTracking {
		return
	}
	a.errors.HandleException(sig)
}

// HandleRejection feeds an unhandled rejection. The return value reports
// whether the record was accepted and the host should suppress its own
// default logging (true only in the production environment).
func (a *Agent) HandleRejection(reason any) bool {
	if !a.cfg.EnableErrorTracking {
		return false
	}
	return a.errors.HandleRejection(reason)
}

// HandleResourceError feeds a failed element load.
func (a *Agent) HandleResourceError(sig capture.ResourceSignal) {
	if !a.cfg.EnableErrorTracking {
		return
	}
	a.errors.HandleResourceError(sig)
}

// ReportError is the manual reporting path. Never panics, never returns an
// error to the caller.
func (a *Agent) ReportError(err error, componentContext string) {
	if !a.cfg.EnableErrorTracking {
		return
	}
	a.errors.Report(err, componentContext)
}

// CaptureException reports an error with no component context.
func (a *Agent) CaptureException(err error) {
	a.ReportError(err, "")
}

// CaptureMessage records a leveled message as a breadcrumb and a custom
// event.
func (a *Agent) CaptureMessage(text string, level record.Level) {
	a.AddBreadcrumb(record.Breadcrumb{
		Category: "message",
		Message:  text,
		Level:    level,
	})
	a.TrackEvent("message", record.Properties{
		"message": text,
		"level":   string(level),
	})
}

// TrackEvent records a custom application event and ships it best-effort.
func (a *Agent) TrackEvent(name string, props map[string]any) {
	evt := record.CustomEvent{
		Name:       name,
		Properties: record.Sanitize(props),
		Timestamp:  record.Millis(a.now()),
		SessionID:  a.sessions.Current(context.Background()).ID,
	}
	a.dispatcher.Enqueue(dispatch.ClassEvents, evt)
	a.deliverAsync(dispatch.ClassEvents, evt)
}

// TrackMetric records a custom performance measurement.
func (a *Agent) TrackMetric(name string, value float64) {
	if !a.cfg.EnablePerformanceTracking {
		return
	}
	rec := record.MetricRecord{
		Name:      name,
		Value:     value,
		Timestamp: record.Millis(a.now()),
	}
	a.dispatcher.Enqueue(dispatch.ClassMetrics, rec)
	a.deliverAsync(dispatch.ClassMetrics, rec)
}

// ObserveVital feeds one Web Vitals sample.
func (a *Agent) ObserveVital(s vitals.Sample) {
	if !a.cfg.EnableWebVitals {
		return
	}
	a.vitals.Observe(s)
}

// ObserveNavigation records the page-load phase breakdown.
func (a *Agent) ObserveNavigation(nav vitals.NavigationTiming) {
	if !a.cfg.EnablePerformanceTracking {
		return
	}
	a.vitals.ObserveNavigation(nav)
}

// ObserveResource records one resource-load measurement.
func (a *Agent) ObserveResource(res vitals.ResourceTiming) {
	if !a.cfg.EnablePerformanceTracking {
		return
	}
	a.vitals.ObserveResource(res)
}

// FlushVitalsSummary serializes the current metrics summary and sends it
// over the unload-safe path. Called from Shutdown and from the host's
// page-hidden hook.
func (a *Agent) FlushVitalsSummary() {
	if !a.cfg.EnableWebVitals {
		return
	}
	summary := a.vitals.MetricsSummary()
	if len(summary) == 0 {
		return
	}
	a.dispatcher.DeliverSummary(map[string]any{
		"summary":    summary,
		"session_id": a.sessions.Current(context.Background()).ID,
		"url":        a.currentPageURL(),
		"timestamp":  record.Millis(a.now()),
	})
}

// SetUser attaches user identity to subsequent error reports.
func (a *Agent) SetUser(u record.User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = &u
}

// SetTag attaches a key/value tag to subsequent error reports.
func (a *Agent) SetTag(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tags[key] = value
}

// SetContext attaches a named structured context to subsequent error
// reports. Values are sanitized to JSON-safe kinds.
func (a *Agent) SetContext(key string, values map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.contexts[key] = record.Sanitize(values)
}

// AddBreadcrumb appends to the breadcrumb trail, evicting the oldest entry
// past capacity.
func (a *Agent) AddBreadcrumb(b record.Breadcrumb) {
	if b.Timestamp == 0 {
		b.Timestamp = record.Millis(a.now())
	}
	if b.Level == "" {
		b.Level = record.LevelInfo
	}
	b.Data = record.Sanitize(b.Data)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.breadcrumbs = append(a.breadcrumbs, b)
	if len(a.breadcrumbs) > breadcrumbCapacity {
		a.breadcrumbs = a.breadcrumbs[len(a.breadcrumbs)-breadcrumbCapacity:]
	}
}

// Breadcrumbs returns a copy of the trail, oldest first.
func (a *Agent) Breadcrumbs() []record.Breadcrumb {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]record.Breadcrumb, len(a.breadcrumbs))
	copy(out, a.breadcrumbs)
	return out
}

// MetricsSummary exposes the vitals summary for the dashboard.
func (a *Agent) MetricsSummary() map[string]vitals.Summary {
	return a.vitals.MetricsSummary()
}

// ErrorStats exposes the captured-error summary for the dashboard.
func (a *Agent) ErrorStats() capture.Stats {
	return a.errors.Stats()
}

// PagePerformance exposes the navigation-timing snapshot for the dashboard.
func (a *Agent) PagePerformance() map[string]float64 {
	return a.vitals.PagePerformance()
}

// Status is the monitoring-status snapshot.
type Status struct {
	Initialized   bool                `json:"initialized"`
	Version       string              `json:"version"`
	Environment   string              `json:"environment"`
	SampleRate    float64             `json:"sample_rate"`
	Endpoint      bool                `json:"endpoint_configured"`
	DSN           bool                `json:"dsn_configured"`
	ErrorTracking bool                `json:"error_tracking"`
	Performance   bool                `json:"performance_tracking"`
	WebVitals     bool                `json:"web_vitals"`
	SessionID     string              `json:"session_id"`
	UptimeMS      int64               `json:"uptime_ms"`
	Queues        dispatch.QueueStats `json:"queues"`
}

// Status returns the current configuration snapshot and queue state.
func (a *Agent) Status() Status {
	return Status{
		Initialized:   true,
		Version:       Version,
		Environment:   a.cfg.Environment,
		SampleRate:    a.cfg.SampleRate,
		Endpoint:      a.cfg.Endpoint != "",
		DSN:           a.cfg.ErrorTrackingDSN != "",
		ErrorTracking: a.cfg.EnableErrorTracking,
		Performance:   a.cfg.EnablePerformanceTracking,
		WebVitals:     a.cfg.EnableWebVitals,
		SessionID:     a.sessions.Current(context.Background()).ID,
		UptimeMS:      a.now().Sub(a.startedAt).Milliseconds(),
		Queues:        a.dispatcher.Stats(),
	}
}

func (a *Agent) snapshotUser() *record.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user == nil {
		return nil
	}
	u := *a.user
	return &u
}

func (a *Agent) snapshotTags() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(a.tags))
	for k, v := range a.tags {
		out[k] = v
	}
	return out
}

func (a *Agent) snapshotContexts() map[string]record.Properties {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.contexts) == 0 {
		return nil
	}
	out := make(map[string]record.Properties, len(a.contexts))
	for k, v := range a.contexts {
		out[k] = v
	}
	return out
}
