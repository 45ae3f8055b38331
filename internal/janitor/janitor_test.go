package janitor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haukened/onetimeview/internal/app"
	"github.com/haukened/onetimeview/internal/domain"
	"github.com/haukened/onetimeview/internal/store"
	"github.com/haukened/onetimeview/internal/store/filesystem"
	"github.com/haukened/onetimeview/internal/store/memory"
)

// --- Fakes / Mocks ---

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }

type fakeStore struct {
	mu         sync.Mutex
	expired    []domain.Secret
	expireErr  error
	removeErr  error
	orphans    int
	reconErr   error
	removed    []string
	callsRecon int
}

func (fs *fakeStore) Expired(context.Context, time.Time) ([]domain.Secret, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.expired, fs.expireErr
}

func (fs *fakeStore) Remove(_ context.Context, id string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.removeErr != nil {
		return false, fs.removeErr
	}
	fs.removed = append(fs.removed, id)
	return true, nil
}

func (fs *fakeStore) Reconcile(context.Context) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.callsRecon++
	return fs.orphans, fs.reconErr
}

func secretAt(t *testing.T, kind domain.ContentKind, views, maxViews int, expires time.Time) domain.Secret {
	t.Helper()
	id, err := domain.NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	return domain.Secret{ID: id, Kind: kind, ViewCount: views, MaxViews: maxViews, ExpiresAt: &expires}
}

func TestRunOnceSkipsGraceWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	timeExpired := secretAt(t, domain.KindText, 0, 3, now.Add(-time.Minute))
	exhaustedText := secretAt(t, domain.KindText, 1, 1, now.Add(time.Hour))
	inGrace := secretAt(t, domain.KindVideo, 1, 1, now.Add(2*time.Minute))
	graceLapsed := secretAt(t, domain.KindImage, 1, 1, now.Add(-time.Second))
	fs := &fakeStore{expired: []domain.Secret{timeExpired, exhaustedText, inGrace, graceLapsed}, orphans: 2}
	j := New(fs, nil, Config{Interval: time.Hour, Clock: fixedClock{now}})

	res, err := j.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res != (Result{Deleted: 3, Skipped: 1, Orphans: 2}) {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, id := range fs.removed {
		if id == inGrace.ID.String() {
			t.Fatalf("binary inside its grace window was removed")
		}
	}
}

func TestRunOnceErrors(t *testing.T) {
	now := time.Now().UTC()
	fs := &fakeStore{expireErr: errors.New("boom"), reconErr: errors.New("r")}
	j := New(fs, nil, Config{Clock: fixedClock{now}})
	if _, err := j.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected joined error")
	}
	if fs.callsRecon != 1 {
		t.Fatalf("expected reconcile even on listing error")
	}

	fs = &fakeStore{expired: []domain.Secret{secretAt(t, domain.KindText, 1, 1, now)}, removeErr: errors.New("locked")}
	j = New(fs, nil, Config{Clock: fixedClock{now}})
	res, err := j.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("per-record failures should not fail the sweep: %v", err)
	}
	if res.Deleted != 0 {
		t.Fatalf("expected nothing deleted, got %+v", res)
	}
}

func TestRunCycleRecordsMetrics(t *testing.T) {
	now := time.Now().UTC()
	fs := &fakeStore{expired: []domain.Secret{secretAt(t, domain.KindText, 1, 1, now)}, orphans: 1}
	ec := newExternalCollector()
	j := New(fs, ec, Config{Interval: time.Hour, Clock: fixedClock{now}, Logger: slog.Default()})
	j.runCycle(context.Background())
	mv := j.MetricsSnapshot()
	if mv.Cycles != 1 || mv.Deleted != 1 || mv.Orphans != 1 {
		t.Fatalf("unexpected metrics %+v", mv)
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.counters["secrets_expired_deleted_total"] != 1 || ec.counters["orphan_blobs_deleted_total"] != 1 {
		t.Fatalf("unexpected external counters %+v", ec.counters)
	}
	if obs := ec.observes["janitor_deleted_per_cycle"]; len(obs) != 1 || obs[0] != 1 {
		t.Fatalf("unexpected observations %+v", obs)
	}
}

func TestStartStopLoop(t *testing.T) {
	fs := &fakeStore{}
	j := New(fs, nil, Config{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j.Start(ctx)
	tkr := j.ticker
	j.Start(ctx)
	if j.ticker != tkr {
		t.Fatalf("ticker replaced unexpectedly")
	}
	time.Sleep(20 * time.Millisecond)
	j.Stop()
	j.Stop()
	if j.MetricsSnapshot().Cycles == 0 {
		t.Fatalf("expected at least one cycle")
	}
}

func TestStopWithoutStart(t *testing.T) {
	j := New(&fakeStore{}, nil, Config{})
	j.Stop() // must not block
}

func TestNewDefaults(t *testing.T) {
	j := New(&fakeStore{}, nil, Config{})
	if j.cfg.Interval <= 0 || j.cfg.Logger == nil || j.cfg.Clock == nil {
		t.Fatalf("defaults not applied %+v", j.cfg)
	}
}

func TestPurgeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	dir := t.TempDir()
	bs, err := filesystem.New(dir)
	if err != nil {
		t.Fatalf("filesystem.New: %v", err)
	}
	st := store.New(memory.New(), bs, fixedClock{now}, time.Minute)
	sec := secretAt(t, domain.KindFile, 0, 1, now.Add(time.Hour))
	sec.FileName = "a.pdf"
	stored, err := st.Create(ctx, sec, &app.BlobUpload{Reader: strings.NewReader("pdf"), Size: 3, FileName: "a.pdf", Kind: domain.KindFile})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	j := New(st, nil, Config{Clock: fixedClock{now}})
	if err := j.Purge(ctx, stored.ID.String()); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if err := j.Purge(ctx, stored.ID.String()); err != nil {
		t.Fatalf("second Purge: %v", err)
	}
	blobs, _ := bs.List(ctx)
	if len(blobs) != 0 {
		t.Fatalf("blob left after purge: %+v", blobs)
	}
}

// TestSweepAfterADay creates secrets against a real store and sweeps with the
// clock moved 24 hours ahead.
func TestSweepAfterADay(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	ix := memory.New()
	st := store.New(ix, nil, fixedClock{now}, time.Minute)
	for i := 0; i < 3; i++ {
		s := secretAt(t, domain.KindText, 0, 2, now.Add(time.Hour))
		if _, err := st.Create(ctx, s, nil); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	forever := secretAt(t, domain.KindText, 0, 2, now)
	forever.ExpiresAt = nil
	forever.Premium = true
	_, _ = st.Create(ctx, forever, nil)

	j := New(st, nil, Config{Clock: fixedClock{now.Add(24 * time.Hour)}})
	res, err := j.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Deleted != 3 || ix.Len() != 1 {
		t.Fatalf("expected the 3 timed secrets swept, got %+v (remaining %d)", res, ix.Len())
	}
}

// externalCollector captures emitted metrics for verification.
type externalCollector struct {
	mu       sync.Mutex
	counters map[string]int64
	observes map[string][]int64
}

func newExternalCollector() *externalCollector {
	return &externalCollector{counters: make(map[string]int64), observes: make(map[string][]int64)}
}

func (e *externalCollector) Inc(name string, delta int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters[name] += delta
}

func (e *externalCollector) Observe(name string, v int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observes[name] = append(e.observes[name], v)
}
