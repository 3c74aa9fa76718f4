package agent

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"runtime"
	"time"

	"github.com/tjfontaine/beacon-agent/internal/config"
	"github.com/tjfontaine/beacon-agent/internal/session"
)

type options struct {
	cfg           *config.Config
	logger        *slog.Logger
	store         session.Store
	storePath     string
	client        *http.Client
	baseTransport http.RoundTripper
	now           func() time.Time
	rand          func() float64
	userAgent     string
}

func defaultOptions() *options {
	return &options{
		logger:    slog.Default(),
		now:       time.Now,
		rand:      rand.Float64,
		userAgent: fmt.Sprintf("beacon-agent/%s %s", Version, runtime.Version()),
	}
}

// Option is a functional option for configuring an Agent.
type Option func(*options)

// WithConfig supplies configuration directly instead of loading it from the
// environment.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the diagnostic logger for the agent's internal channel.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStore supplies a session store, overriding the config-driven choice.
func WithStore(store session.Store) Option {
	return func(o *options) { o.store = store }
}

// WithSQLite stores sessions in the SQLite database at path, overriding the
// config-driven choice.
func WithSQLite(path string) Option {
	return func(o *options) { o.storePath = path }
}

// WithMemoryStore forces in-memory session storage regardless of config.
func WithMemoryStore() Option {
	return func(o *options) { o.store = session.NewMemoryStore() }
}

// WithHTTPClient sets the client used for telemetry delivery. This is the
// outbound path to the collector, not the instrumented client handed to the
// host.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.client = client }
}

// WithBaseTransport sets the RoundTripper underneath the instrumented
// client. Defaults to http.DefaultTransport.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.baseTransport = rt }
}

// WithClock injects the time source. Tests use this to make timestamps and
// sweep cutoffs deterministic.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRand injects the sampling source. Tests use this to force delivery
// decisions.
func WithRand(r func() float64) Option {
	return func(o *options) { o.rand = r }
}

// WithUserAgent overrides the user agent attached to every record.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}
