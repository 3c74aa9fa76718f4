package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1700000000000)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCurrentIdempotent(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store, nil, newFakeClock().Now)

	first := tracker.Current(context.Background())
	second := tracker.Current(context.Background())

	if first.ID == "" {
		t.Fatal("session id is empty")
	}
	if first.ID != second.ID {
		t.Errorf("consecutive Current() ids differ: %s vs %s", first.ID, second.ID)
	}
	if first.PageViewCount != 1 {
		t.Errorf("new session page_view_count = %d, want 1", first.PageViewCount)
	}
	if first.ErrorCount != 0 {
		t.Errorf("new session error_count = %d, want 0", first.ErrorCount)
	}
	if first.StartTime != first.LastActivity {
		t.Errorf("start_time %d != last_activity %d on creation", first.StartTime, first.LastActivity)
	}
}

func TestCurrentRecreatesAfterSweep(t *testing.T) {
	store := NewMemoryStore()
	clock := newFakeClock()
	tracker := NewTracker(store, nil, clock.Now)

	first := tracker.Current(context.Background())

	clock.Advance(25 * time.Hour)
	if n := tracker.SweepExpired(context.Background(), DefaultMaxAge); n != 1 {
		t.Fatalf("SweepExpired() = %d, want 1", n)
	}

	second := tracker.Current(context.Background())
	if second.ID == first.ID {
		t.Error("Current() returned swept session id")
	}
}

func TestRecord(t *testing.T) {
	store := NewMemoryStore()
	clock := newFakeClock()
	tracker := NewTracker(store, nil, clock.Now)

	before := tracker.Current(context.Background())

	clock.Advance(time.Minute)
	tracker.Record(context.Background(), Error)

	after := tracker.Current(context.Background())
	if after.ErrorCount != before.ErrorCount+1 {
		t.Errorf("error_count = %d, want %d", after.ErrorCount, before.ErrorCount+1)
	}
	if after.PageViewCount != before.PageViewCount {
		t.Errorf("page_view_count changed: %d -> %d", before.PageViewCount, after.PageViewCount)
	}
	if after.LastActivity <= before.LastActivity {
		t.Errorf("last_activity not advanced: %d -> %d", before.LastActivity, after.LastActivity)
	}

	tracker.Record(context.Background(), PageView)
	final := tracker.Current(context.Background())
	if final.PageViewCount != after.PageViewCount+1 {
		t.Errorf("page_view_count = %d, want %d", final.PageViewCount, after.PageViewCount+1)
	}
	if final.ErrorCount != after.ErrorCount {
		t.Errorf("error_count changed on page view: %d -> %d", after.ErrorCount, final.ErrorCount)
	}
}

func TestRecordPersists(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store, nil, newFakeClock().Now)

	sess := tracker.Current(context.Background())
	tracker.Record(context.Background(), Error)

	stored, err := store.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.ErrorCount != 1 {
		t.Errorf("persisted error_count = %d, want 1", stored.ErrorCount)
	}
}

func TestSweepExpired(t *testing.T) {
	store := NewMemoryStore()
	clock := newFakeClock()
	now := clock.Now().UnixMilli()

	stale := &Session{ID: NewID(), StartTime: now, LastActivity: now - (25 * time.Hour).Milliseconds(), PageViewCount: 1}
	fresh := &Session{ID: NewID(), StartTime: now, LastActivity: now - time.Hour.Milliseconds(), PageViewCount: 1}
	for _, s := range []*Session{stale, fresh} {
		if err := store.Put(context.Background(), s); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	tracker := NewTracker(store, nil, clock.Now)
	if n := tracker.SweepExpired(context.Background(), DefaultMaxAge); n != 1 {
		t.Fatalf("SweepExpired() = %d, want 1", n)
	}

	if _, err := store.Get(context.Background(), stale.ID); !errors.Is(err, ErrNotFound) {
		t.Error("stale session survived sweep")
	}
	if _, err := store.Get(context.Background(), fresh.ID); err != nil {
		t.Errorf("fresh session swept: %v", err)
	}
}

// failingStore simulates storage unavailability.
type failingStore struct{}

var errStorage = errors.New("storage unavailable")

func (failingStore) Get(context.Context, string) (*Session, error)  { return nil, errStorage }
func (failingStore) Put(context.Context, *Session) error            { return errStorage }
func (failingStore) Delete(context.Context, string) error           { return errStorage }
func (failingStore) DeleteExpired(context.Context, int64) (int, error) {
	return 0, errStorage
}
func (failingStore) Close() error { return nil }

func TestStorageFailuresSwallowed(t *testing.T) {
	tracker := NewTracker(failingStore{}, nil, newFakeClock().Now)

	// The tracker degrades to an in-memory session rather than failing.
	sess := tracker.Current(context.Background())
	if sess == nil || sess.ID == "" {
		t.Fatal("Current() returned no session under storage failure")
	}

	tracker.Record(context.Background(), Error)
	again := tracker.Current(context.Background())
	if again.ID != sess.ID {
		t.Error("in-memory session identity lost under storage failure")
	}
	if again.ErrorCount != 1 {
		t.Errorf("error_count = %d, want 1", again.ErrorCount)
	}

	if n := tracker.SweepExpired(context.Background(), DefaultMaxAge); n != 0 {
		t.Errorf("SweepExpired() under failure = %d, want 0", n)
	}
}
