package agent

import (
	"time"

	"github.com/tjfontaine/beacon-agent/internal/dispatch"
	"github.com/tjfontaine/beacon-agent/internal/record"
	"github.com/tjfontaine/beacon-agent/internal/vitals"
)

// The capture channels report through narrow sink interfaces. The agent
// implements each one on a distinct named type so the wiring stays explicit
// and none of the sink methods leak into the public API.

// erroredPayload is the remote error report: the record plus whatever
// identity and context the host attached.
type erroredPayload struct {
	record.ErrorRecord
	User     *record.User                 `json:"user,omitempty"`
	Tags     map[string]string            `json:"tags,omitempty"`
	Contexts map[string]record.Properties `json:"contexts,omitempty"`
}

type captureSink Agent

func (s *captureSink) ForwardError(rec record.ErrorRecord) {
	a := (*Agent)(s)
	a.deliverAsync(dispatch.ClassErrors, erroredPayload{
		ErrorRecord: rec,
		User:        a.snapshotUser(),
		Tags:        a.snapshotTags(),
		Contexts:    a.snapshotContexts(),
	})
}

func (s *captureSink) Event(name string, props record.Properties) {
	(*Agent)(s).TrackEvent(name, props)
}

// vitalPayload is the remote web-vitals report: the metric record plus its
// derived rating.
type vitalPayload struct {
	record.MetricRecord
	Rating vitals.Rating `json:"rating"`
}

type vitalsSink Agent

func (s *vitalsSink) Vital(rec record.MetricRecord, rating vitals.Rating) {
	a := (*Agent)(s)
	payload := vitalPayload{MetricRecord: rec, Rating: rating}
	a.dispatcher.Enqueue(dispatch.ClassWebVitals, payload)
	a.deliverAsync(dispatch.ClassWebVitals, payload)
}

func (s *vitalsSink) Event(name string, props record.Properties) {
	(*Agent)(s).TrackEvent(name, props)
}

type transportSink Agent

func (s *transportSink) NetworkError(rec record.NetworkErrorRecord) {
	a := (*Agent)(s)
	if !a.cfg.EnableErrorTracking {
		return
	}
	a.errors.HandleNetworkError(rec)
}

func (s *transportSink) SlowRequest(method, url string, duration time.Duration) {
	(*Agent)(s).TrackEvent("slow_request", record.Properties{
		"method":      method,
		"url":         url,
		"duration_ms": duration.Milliseconds(),
	})
}
