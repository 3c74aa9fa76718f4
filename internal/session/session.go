// Package session tracks one continuous browsing visit per agent instance:
// an opaque token, activity timestamps, and page-view/error counters. The
// tracker key is volatile (held in process memory, one per agent), while the
// session record itself lives in durable storage shared across instances.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAge is the inactivity threshold after which a session is
// considered expired and removed by the sweep.
const DefaultMaxAge = 24 * time.Hour

// Session identifies one continuous visit. Timestamps are milliseconds since
// the Unix epoch; LastActivity is monotonically non-decreasing.
type Session struct {
	ID            string `json:"session_id" db:"id"`
	StartTime     int64  `json:"start_time" db:"start_time"`
	LastActivity  int64  `json:"last_activity" db:"last_activity"`
	PageViewCount int    `json:"page_view_count" db:"page_view_count"`
	ErrorCount    int    `json:"error_count" db:"error_count"`
}

// Kind selects which counter Record increments.
type Kind int

const (
	PageView Kind = iota
	Error
)

// ErrNotFound is returned by Store.Get when no session exists for the id.
var ErrNotFound = errors.New("session not found")

// Store persists sessions. Implementations are last-writer-wins at the
// granularity of a whole session row: concurrent writers for the same id
// overwrite each other without coordination. That mirrors the shared
// browser-storage model this design comes from and is an accepted gap.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes sessions whose last activity is older than
	// cutoff (milliseconds since epoch) and returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff int64) (int, error)
	Close() error
}

// Tracker owns the current session for one agent instance. All mutation goes
// through Record, serialized by a mutex so concurrent capture channels never
// lose increments. Storage failures are logged and swallowed: the tracker
// degrades to an unpersisted in-memory session rather than surfacing errors
// to the host application.
type Tracker struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *Session
}

// NewTracker creates a tracker backed by store. now is the clock, injectable
// for tests; nil means time.Now.
func NewTracker(store Store, logger *slog.Logger, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, logger: logger, now: now}
}

// NewID returns a fresh opaque session token.
func NewID() string {
	return "sess_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Current returns the tracked session, creating and persisting one if this
// tracker has none yet. Consecutive calls return the same session id unless
// the persisted record was swept in between.
func (t *Tracker) Current(ctx context.Context) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentLocked(ctx)
}

func (t *Tracker) currentLocked(ctx context.Context) *Session {
	if t.current != nil {
		stored, err := t.store.Get(ctx, t.current.ID)
		switch {
		case err == nil:
			t.current = stored
			return t.current
		case errors.Is(err, ErrNotFound):
			// Swept from durable storage; fall through and start over.
		default:
			t.logger.Debug("session read failed, using in-memory copy",
				slog.String("error", err.Error()))
			return t.current
		}
	}

	now := t.now().UnixMilli()
	t.current = &Session{
		ID:            NewID(),
		StartTime:     now,
		LastActivity:  now,
		PageViewCount: 1,
		ErrorCount:    0,
	}
	if err := t.store.Put(ctx, t.current); err != nil {
		t.logger.Debug("session persist failed", slog.String("error", err.Error()))
	}
	return t.current
}

// Record increments the counter for kind, bumps LastActivity, and persists.
func (t *Tracker) Record(ctx context.Context, kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.currentLocked(ctx)
	switch kind {
	case PageView:
		s.PageViewCount++
	case Error:
		s.ErrorCount++
	}
	if now := t.now().UnixMilli(); now > s.LastActivity {
		s.LastActivity = now
	}
	if err := t.store.Put(ctx, s); err != nil {
		t.logger.Debug("session persist failed", slog.String("error", err.Error()))
	}
}

// SweepExpired deletes sessions inactive for longer than maxAge and returns
// how many were removed. Storage failures are swallowed and reported as 0.
func (t *Tracker) SweepExpired(ctx context.Context, maxAge time.Duration) int {
	cutoff := t.now().Add(-maxAge).UnixMilli()
	n, err := t.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		t.logger.Debug("session sweep failed", slog.String("error", err.Error()))
		return 0
	}
	return n
}
