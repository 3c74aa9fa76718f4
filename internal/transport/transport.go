// Package transport provides an instrumented HTTP client for the host
// application. Instead of monkey-patching a global primitive, call sites are
// routed through an explicit RoundTripper that times every call and reports
// failures, leaving the call's observable behavior unchanged.
package transport

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/beacon-agent/internal/record"
)

// SlowRequestThreshold is the duration past which a call is reported as a
// slow_request event regardless of its outcome.
const SlowRequestThreshold = 5 * time.Second

// Sink receives network observations. Implementations must return quickly;
// the transport calls them on the request goroutine after the response (or
// failure) is already determined.
type Sink interface {
	NetworkError(rec record.NetworkErrorRecord)
	SlowRequest(method, url string, duration time.Duration)
}

type roundTripper struct {
	base http.RoundTripper
	sink Sink
	now  func() time.Time
}

// Instrument wraps base with timing and failure observation, layered over
// OpenTelemetry HTTP instrumentation. A nil base means http.DefaultTransport.
// The wrapper is transparent: same response, same error, same body semantics.
func Instrument(base http.RoundTripper, sink Sink) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &roundTripper{
		base: otelhttp.NewTransport(base),
		sink: sink,
		now:  time.Now,
	}
}

// Client returns an http.Client whose transport is instrumented.
func Client(base http.RoundTripper, sink Sink) *http.Client {
	return &http.Client{Transport: Instrument(base, sink)}
}

func (t *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := t.now()
	resp, err := t.base.RoundTrip(req)
	duration := t.now().Sub(start)

	if duration > SlowRequestThreshold {
		t.sink.SlowRequest(req.Method, req.URL.String(), duration)
	}

	if err != nil {
		// Transport-level failure: no response was received.
		t.sink.NetworkError(record.NetworkErrorRecord{
			URL:        req.URL.String(),
			Method:     req.Method,
			Status:     0,
			StatusText: err.Error(),
			DurationMS: duration.Milliseconds(),
			Timestamp:  record.Millis(t.now()),
		})
		return nil, err
	}

	if resp.StatusCode >= 400 {
		t.sink.NetworkError(record.NetworkErrorRecord{
			URL:        req.URL.String(),
			Method:     req.Method,
			Status:     resp.StatusCode,
			StatusText: resp.Status,
			DurationMS: duration.Milliseconds(),
			Timestamp:  record.Millis(t.now()),
		})
	}

	return resp, nil
}
