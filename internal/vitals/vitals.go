// Package vitals collects page-performance signals: the five Web Vitals,
// navigation timing, and resource timing. Each sample is normalized into a
// MetricRecord and rated against fixed thresholds.
package vitals

import (
	"sync"
	"time"

	"github.com/tjfontaine/beacon-agent/internal/record"
)

// Rating is the qualitative bucket for a metric value.
type Rating string

const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs-improvement"
	RatingPoor             Rating = "poor"
)

// threshold holds the inclusive upper bounds for good and needs-improvement.
type threshold struct {
	good             float64
	needsImprovement float64
}

// Timing metrics are in milliseconds; CLS is a unitless score.
var thresholds = map[string]threshold{
	"LCP":  {good: 2500, needsImprovement: 4000},
	"FID":  {good: 100, needsImprovement: 300},
	"CLS":  {good: 0.1, needsImprovement: 0.25},
	"FCP":  {good: 1800, needsImprovement: 3000},
	"TTFB": {good: 800, needsImprovement: 1800},
}

// Rate buckets a metric value. Boundaries are inclusive on the better side:
// an LCP of exactly 2500 is still good. Metrics without a threshold table
// entry (custom names) rate as good.
func Rate(name string, value float64) Rating {
	t, ok := thresholds[name]
	if !ok {
		return RatingGood
	}
	switch {
	case value <= t.good:
		return RatingGood
	case value <= t.needsImprovement:
		return RatingNeedsImprovement
	default:
		return RatingPoor
	}
}

// Sample is one callback payload from the underlying timing source. ID is
// stable per metric instance within a page load; the same ID may fire
// repeatedly as the value is refined.
type Sample struct {
	Name  string
	Value float64
	Delta float64
	ID    string
}

// Summary is the latest value and rating for one metric name.
type Summary struct {
	Value  float64 `json:"value"`
	Rating Rating  `json:"rating"`
}

// NavigationTiming is the page-load phase breakdown, all in milliseconds.
type NavigationTiming struct {
	DNS      float64 `json:"dns"`
	TCP      float64 `json:"tcp"`
	TTFB     float64 `json:"ttfb"`
	DOMParse float64 `json:"dom_parse"`
	DOMReady float64 `json:"dom_ready"`
	Load     float64 `json:"load"`
}

// ResourceTiming is one resource-load measurement.
type ResourceTiming struct {
	URL        string  `json:"url"`
	Initiator  string  `json:"initiator"`
	DurationMS float64 `json:"duration_ms"`
}

// slowResourceThreshold flags resource loads worth a telemetry event.
const slowResourceThreshold = 1000 * time.Millisecond

// Sink receives the channel's output: rated vitals records for remote
// delivery and derived custom events. Implementations must not block.
type Sink interface {
	Vital(rec record.MetricRecord, rating Rating)
	Event(name string, props record.Properties)
}

// Channel accumulates metric records for the lifetime of a page. Records for
// the same ID are retained, not replaced; the summary picks the most recent
// by timestamp. Reads return copies.
type Channel struct {
	sink Sink
	now  func() time.Time

	mu      sync.Mutex
	records []record.MetricRecord
	nav     *NavigationTiming
}

// New creates a channel reporting into sink. now is injectable for tests;
// nil means time.Now.
func New(sink Sink, now func() time.Time) *Channel {
	if now == nil {
		now = time.Now
	}
	return &Channel{sink: sink, now: now}
}

// Observe normalizes one sample, stores it, and reports it. A poor rating
// additionally emits a performance_issue event naming the exceeded
// threshold.
func (c *Channel) Observe(s Sample) {
	rec := record.MetricRecord{
		Name:      s.Name,
		Value:     s.Value,
		Delta:     s.Delta,
		ID:        s.ID,
		Timestamp: record.Millis(c.now()),
	}

	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()

	rating := Rate(s.Name, s.Value)
	if rating == RatingPoor {
		c.sink.Event("performance_issue", record.Properties{
			"metric":    s.Name,
			"value":     s.Value,
			"threshold": thresholds[s.Name].needsImprovement,
		})
	}
	c.sink.Vital(rec, rating)
}

// MetricsSummary returns the most recent value and rating per metric name.
// Later timestamps supersede earlier ones; on equal timestamps the later
// arrival wins, since the underlying signals refine monotonically.
func (c *Channel) MetricsSummary() map[string]Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	latest := make(map[string]record.MetricRecord)
	for _, rec := range c.records {
		if prev, ok := latest[rec.Name]; !ok || rec.Timestamp >= prev.Timestamp {
			latest[rec.Name] = rec
		}
	}

	out := make(map[string]Summary, len(latest))
	for name, rec := range latest {
		out[name] = Summary{Value: rec.Value, Rating: Rate(name, rec.Value)}
	}
	return out
}

// ObserveNavigation records the page-load phase breakdown.
func (c *Channel) ObserveNavigation(nav NavigationTiming) {
	c.mu.Lock()
	c.nav = &nav
	c.mu.Unlock()
}

// PagePerformance returns the navigation-timing snapshot as a name-to-ms
// mapping, or an empty map when none was observed.
func (c *Channel) PagePerformance() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nav == nil {
		return map[string]float64{}
	}
	return map[string]float64{
		"dns":       c.nav.DNS,
		"tcp":       c.nav.TCP,
		"ttfb":      c.nav.TTFB,
		"dom_parse": c.nav.DOMParse,
		"dom_ready": c.nav.DOMReady,
		"load":      c.nav.Load,
	}
}

// ObserveResource records one resource-load measurement. Loads slower than
// one second emit a slow_resource event.
func (c *Channel) ObserveResource(res ResourceTiming) {
	if res.DurationMS > float64(slowResourceThreshold.Milliseconds()) {
		c.sink.Event("slow_resource", record.Properties{
			"url":         res.URL,
			"initiator":   res.Initiator,
			"duration_ms": res.DurationMS,
		})
	}
}

// Clear drops all accumulated metrics and the navigation snapshot. Called on
// page navigation.
func (c *Channel) Clear() {
	c.mu.Lock()
	c.records = nil
	c.nav = nil
	c.mu.Unlock()
}
