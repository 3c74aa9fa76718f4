// Package agent wires the monitoring components together behind a single
// facade: session tracking, the error and performance capture channels, the
// ignore filter, the instrumented HTTP client, and the dispatcher. One Agent
// is constructed at host startup and passed to everything that emits
// telemetry; there is no hidden module-level state beyond the optional
// guarded default instance.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tjfontaine/beacon-agent/internal/capture"
	"github.com/tjfontaine/beacon-agent/internal/config"
	"github.com/tjfontaine/beacon-agent/internal/dispatch"
	"github.com/tjfontaine/beacon-agent/internal/filter"
	"github.com/tjfontaine/beacon-agent/internal/record"
	"github.com/tjfontaine/beacon-agent/internal/session"
	"github.com/tjfontaine/beacon-agent/internal/transport"
	"github.com/tjfontaine/beacon-agent/internal/vitals"
)

// Version is reported in the default user agent and the status snapshot.
const Version = "0.3.0"

const (
	sweepInterval      = time.Hour
	memoryInterval     = 30 * time.Second
	breadcrumbCapacity = 100
	// memoryPressureRatio is the used/limit ratio above which a warning
	// message is captured.
	memoryPressureRatio = 0.9
)

// Agent is the monitoring facade. All methods are safe for concurrent use
// and never propagate internal failures to the caller: monitoring degrades
// silently rather than crashing the host.
type Agent struct {
	cfg        *config.Config
	logger     *slog.Logger
	filter     *filter.Filter
	sessions   *session.Tracker
	errors     *capture.Errors
	vitals     *vitals.Channel
	dispatcher *dispatch.Dispatcher
	store      session.Store
	client     *http.Client
	now        func() time.Time
	userAgent  string
	startedAt  time.Time

	mu          sync.Mutex
	pageURL     string
	user        *record.User
	tags        map[string]string
	contexts    map[string]record.Properties
	breadcrumbs []record.Breadcrumb

	wg   sync.WaitGroup
	done chan struct{}
	stop sync.Once
}

// New constructs and starts an Agent. Configuration comes from the
// environment unless WithConfig supplies it. Background timers (session
// sweep, queue compaction, memory-pressure check) run until Shutdown.
func New(opts ...Option) (*Agent, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	f, err := filter.New(cfg.Filter)
	if err != nil {
		return nil, err
	}

	store := o.store
	if store == nil && o.storePath != "" {
		sqlStore, err := session.NewSQLiteStore(o.storePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		store = sqlStore
	}
	if store == nil {
		if cfg.Storage.Path != "" {
			sqlStore, err := session.NewSQLiteStore(cfg.Storage.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to open session store: %w", err)
			}
			store = sqlStore
		} else {
			store = session.NewMemoryStore()
		}
	}

	a := &Agent{
		cfg:       cfg,
		logger:    o.logger,
		filter:    f,
		store:     store,
		now:       o.now,
		userAgent: o.userAgent,
		startedAt: o.now(),
		tags:      make(map[string]string),
		contexts:  make(map[string]record.Properties),
		done:      make(chan struct{}),
	}

	a.sessions = session.NewTracker(store, o.logger, o.now)

	a.dispatcher = dispatch.New(dispatch.Options{
		Endpoint:   cfg.Endpoint,
		SampleRate: cfg.SampleRate,
		Client:     o.client,
		Env: dispatch.Env{
			SessionID: func() string { return a.sessions.Current(context.Background()).ID },
			PageURL:   a.currentPageURL,
			UserAgent: o.userAgent,
		},
		Logger: o.logger,
		Now:    o.now,
		Rand:   o.rand,
	})

	a.errors = capture.New(capture.Config{
		Filter:     f,
		Sessions:   a.sessions,
		Sink:       (*captureSink)(a),
		Now:        o.now,
		PageURL:    a.currentPageURL,
		UserAgent:  o.userAgent,
		Production: cfg.Environment == config.EnvProduction,
	})

	a.vitals = vitals.New((*vitalsSink)(a), o.now)

	a.client = transport.Client(o.baseTransport, (*transportSink)(a))

	a.wg.Add(1)
	go a.run()

	return a, nil
}

// run drives the background timers for the lifetime of the agent.
func (a *Agent) run() {
	defer a.wg.Done()

	sweep := time.NewTicker(sweepInterval)
	compact := time.NewTicker(capture.CompactionInterval)
	memory := time.NewTicker(memoryInterval)
	defer sweep.Stop()
	defer compact.Stop()
	defer memory.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-sweep.C:
			a.sessions.SweepExpired(context.Background(), session.DefaultMaxAge)
		case <-compact.C:
			a.errors.Compact()
			a.dispatcher.Compact()
		case <-memory.C:
			a.checkMemoryPressure()
		}
	}
}

// checkMemoryPressure captures a warning when heap usage approaches the
// runtime's configured memory limit. Skipped when no limit is set.
func (a *Agent) checkMemoryPressure() {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	ratio := float64(m.HeapAlloc) / float64(limit)
	if ratio > memoryPressureRatio {
		a.CaptureMessage(fmt.Sprintf("high memory usage: %.0f%% of limit", ratio*100), record.LevelWarning)
	}
}

// Shutdown stops the timers, runs a final session sweep, flushes the vitals
// summary over the unload-safe path, waits for in-flight deliveries, and
// closes the session store.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.stop.Do(func() { close(a.done) })

	a.sessions.SweepExpired(ctx, session.DefaultMaxAge)
	a.FlushVitalsSummary()

	finished := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		a.logger.Warn("shutdown timed out waiting for telemetry delivery")
	}

	return a.store.Close()
}

// HTTPClient returns the instrumented client the host should route its
// outbound calls through. Responses and errors pass through unchanged while
// failures and slow calls are observed.
func (a *Agent) HTTPClient() *http.Client {
	return a.client
}

// Navigate tells the agent the user moved to a new page: the page-view
// counter is incremented and the per-page performance state is cleared.
func (a *Agent) Navigate(url string) {
	a.mu.Lock()
	a.pageURL = url
	a.mu.Unlock()

	a.sessions.Record(context.Background(), session.PageView)
	a.vitals.Clear()
}

func (a *Agent) currentPageURL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pageURL
}

// deliverAsync ships one record without blocking the caller.
func (a *Agent) deliverAsync(class dispatch.Class, rec any) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatcher.Deliver(context.Background(), class, rec)
	}()
}
