package metrics

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// openTempDB creates an isolated sqlite database file for tests.
func openTempDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newManager(t *testing.T, db *sql.DB, cfg Config) *Manager {
	t.Helper()
	m := New(db, cfg)
	if err := m.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return m
}

func persistedCounter(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	var v int64
	if err := db.QueryRow(`SELECT value FROM metrics_counters WHERE name=?`, name).Scan(&v); err != nil {
		t.Fatalf("scan %s: %v", name, err)
	}
	return v
}

func TestManagerIncFlush(t *testing.T) {
	db := openTempDB(t)
	m := newManager(t, db, Config{FlushInterval: time.Hour})
	m.Inc(CounterSecretsCreated, 1)
	m.Inc(CounterSecretsCreated, 2)
	m.drain()
	if err := m.flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if v := persistedCounter(t, db, CounterSecretsCreated); v != 3 {
		t.Fatalf("expected 3 got %d", v)
	}
}

func TestManagerSummaryLayering(t *testing.T) {
	db := openTempDB(t)
	m := newManager(t, db, Config{FlushInterval: time.Hour})
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `INSERT INTO metrics_summaries(name,count,sum,min,max) VALUES(?,?,?,?,?)`, SummaryJanitorDeletedPerCycle, 3, 30, 5, 20); err != nil {
		t.Fatalf("seed summary: %v", err)
	}
	for _, v := range []int64{4, 25, 6} {
		m.Observe(SummaryJanitorDeletedPerCycle, v)
	}
	m.drain()
	counters, summaries, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(counters) != 0 {
		t.Fatalf("unexpected counters %+v", counters)
	}
	want := Summary{Count: 6, Sum: 65, Min: 4, Max: 25}
	if got := summaries[SummaryJanitorDeletedPerCycle]; got != want {
		t.Fatalf("layered summary %+v want %+v", got, want)
	}
	// Flushing must persist the same merged values.
	if err := m.flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	_, summaries, _ = m.Snapshot(ctx)
	if got := summaries[SummaryJanitorDeletedPerCycle]; got != want {
		t.Fatalf("persisted summary %+v want %+v", got, want)
	}
}

func TestManagerStopFinalFlush(t *testing.T) {
	db := openTempDB(t)
	m := newManager(t, db, Config{FlushInterval: time.Hour})
	m.Start(context.Background())
	m.Inc(CounterSecretsViewed, 4)
	m.Stop(context.Background())
	if v := persistedCounter(t, db, CounterSecretsViewed); v != 4 {
		t.Fatalf("expected 4 got %d", v)
	}
}

func TestManagerStopWithoutStart(t *testing.T) {
	db := openTempDB(t)
	m := newManager(t, db, Config{})
	m.Inc(CounterSecretsCreated, 2)
	m.Stop(context.Background())
	if v := persistedCounter(t, db, CounterSecretsCreated); v != 2 {
		t.Fatalf("expected 2 got %d", v)
	}
}

func TestManagerStartIdempotent(t *testing.T) {
	db := openTempDB(t)
	m := newManager(t, db, Config{FlushInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	m.Start(ctx)
	m.Inc(CounterSecretsCreated, 1)
	time.Sleep(30 * time.Millisecond)
	m.Stop(context.Background())
	if v := persistedCounter(t, db, CounterSecretsCreated); v != 1 {
		t.Fatalf("expected 1 got %d", v)
	}
}

func TestManagerChannelFullDrop(t *testing.T) {
	db := openTempDB(t)
	m := newManager(t, db, Config{})
	m.events = make(chan event, 1)
	m.Inc(CounterSecretsCreated, 1)
	m.Inc(CounterSecretsCreated, 100) // dropped
	m.Observe(SummaryJanitorDeletedPerCycle, 9) // dropped
	m.drain()
	if err := m.flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if v := persistedCounter(t, db, CounterSecretsCreated); v != 1 {
		t.Fatalf("expected only first event persisted got %d", v)
	}
}

func TestManagerIncNegativeIgnored(t *testing.T) {
	m := New(nil, Config{})
	m.Inc(CounterSecretsCreated, -5)
	m.Inc(CounterSecretsCreated, 0)
	select {
	case ev := <-m.events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestManagerWithoutDatabase(t *testing.T) {
	m := New(nil, Config{})
	ctx := context.Background()
	if err := m.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema without db: %v", err)
	}
	m.Inc(CounterSecretsBurned, 2)
	m.Observe(SummaryJanitorDeletedPerCycle, 3)
	m.drain()
	if err := m.flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	m.Inc(CounterSecretsBurned, 1)
	m.drain()
	counters, summaries, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if counters[CounterSecretsBurned] != 3 {
		t.Fatalf("expected flushed and pending totals to add up, got %d", counters[CounterSecretsBurned])
	}
	if s := summaries[SummaryJanitorDeletedPerCycle]; s.Count != 1 || s.Sum != 3 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestManagerFlushEmpty(t *testing.T) {
	m := newManager(t, openTempDB(t), Config{})
	if err := m.flush(context.Background()); err != nil {
		t.Fatalf("flush empty: %v", err)
	}
}
