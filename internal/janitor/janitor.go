// Package janitor implements background cleanup of expired secrets and orphan
// blobs, plus the immediate purge primitive used on the request path. It keeps
// lifecycle deletion isolated from the request handling in app.Service.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haukened/onetimeview/internal/app"
	"github.com/haukened/onetimeview/internal/domain"
	"github.com/haukened/onetimeview/internal/metrics"
)

// Store abstracts the store operations the Janitor requires.
type Store interface {
	// Expired returns records that are exhausted or past their expiry at now.
	Expired(ctx context.Context, now time.Time) ([]domain.Secret, error)
	// Remove claims and deletes a record and its blob. Absent ids report false.
	Remove(ctx context.Context, id string) (bool, error)
	// Reconcile removes orphan blobs and returns how many it deleted.
	Reconcile(ctx context.Context) (int, error)
}

// MetricsSink receives counters and observations. Satisfied by *metrics.Manager.
type MetricsSink interface {
	Inc(name string, delta int64)
	Observe(name string, v int64)
}

// Config holds tunables for the Janitor.
type Config struct {
	Interval time.Duration // how often a cycle begins
	Clock    app.Clock     // optional; defaults to the system clock
	Logger   *slog.Logger  // optional logger (defaults to slog.Default())
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Metrics accumulates counters (in-memory) for operational insight.
type Metrics struct {
	mu                  sync.Mutex
	Cycles              uint64
	Deleted             uint64
	Skipped             uint64
	Orphans             uint64
	CycleLastDurationMS int64
}

// MetricsView is a read-only snapshot safe to copy.
type MetricsView struct {
	Cycles              uint64
	Deleted             uint64
	Skipped             uint64
	Orphans             uint64
	CycleLastDurationMS int64
}

func (m *Metrics) record(r Result, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cycles++
	m.Deleted += uint64(r.Deleted)
	m.Skipped += uint64(r.Skipped)
	m.Orphans += uint64(r.Orphans)
	m.CycleLastDurationMS = d.Milliseconds()
}

// Result summarizes one sweep.
type Result struct {
	Deleted int // records removed by this sweep
	Skipped int // exhausted binaries still inside their grace window
	Orphans int // unreferenced blobs removed
}

// Janitor encapsulates the background cleanup loop.
type Janitor struct {
	store   Store
	sink    MetricsSink
	cfg     Config
	metrics *Metrics

	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

var _ app.Reclaimer = (*Janitor)(nil)

// New constructs but does not start a Janitor. sink may be nil.
func New(store Store, sink MetricsSink, cfg Config) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Janitor{
		store:   store,
		sink:    sink,
		cfg:     cfg,
		metrics: &Metrics{},
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the janitor loop in a new goroutine.
func (j *Janitor) Start(ctx context.Context) {
	if j.ticker != nil {
		return
	} // already started
	j.ticker = time.NewTicker(j.cfg.Interval)
	go j.loop(ctx)
}

// Stop signals the loop to exit and waits for completion. It is a no-op if
// the loop was never started.
func (j *Janitor) Stop() {
	if j.ticker == nil {
		return
	}
	j.once.Do(func() { close(j.stopCh) })
	<-j.doneCh
}

// MetricsSnapshot returns a copy of current metrics.
func (j *Janitor) MetricsSnapshot() MetricsView {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()
	return MetricsView{
		Cycles:              j.metrics.Cycles,
		Deleted:             j.metrics.Deleted,
		Skipped:             j.metrics.Skipped,
		Orphans:             j.metrics.Orphans,
		CycleLastDurationMS: j.metrics.CycleLastDurationMS,
	}
}

// Purge deletes a secret and its blob immediately. Purging an absent id is a
// no-op.
func (j *Janitor) Purge(ctx context.Context, id string) error {
	_, err := j.store.Remove(ctx, id)
	return err
}

func (j *Janitor) loop(ctx context.Context) {
	log := j.cfg.Logger.With("domain", "janitor")
	defer func() {
		j.ticker.Stop()
		close(j.doneCh)
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info("janitor stop", "reason", "context_cancel")
			return
		case <-j.stopCh:
			log.Info("janitor stop", "reason", "stop_signal")
			return
		case <-j.ticker.C:
			j.runCycle(ctx)
		}
	}
}

// RunOnce performs one sweep: every reclaimable record is removed, then orphan
// blobs are reconciled. Exhausted binaries still inside their grace window are
// left for the content fetch. Per-record failures are logged and skipped; the
// returned error reports a failed listing or reconciliation.
func (j *Janitor) RunOnce(ctx context.Context) (Result, error) {
	log := j.cfg.Logger.With("domain", "janitor", "action", "sweep")
	now := j.cfg.Clock.Now()
	var res Result
	candidates, err := j.store.Expired(ctx, now)
	if err != nil {
		err = errors.Join(errors.New("list expired"), err)
	}
	for _, s := range candidates {
		if !domain.IsReclaimable(s, now) {
			res.Skipped++
			continue
		}
		removed, rErr := j.store.Remove(ctx, s.ID.String())
		if rErr != nil {
			log.Warn("remove failed", "kind", s.Kind, "error", rErr)
			continue
		}
		if removed {
			res.Deleted++
		}
	}
	orphans, rErr := j.store.Reconcile(ctx)
	if rErr != nil {
		err = errors.Join(err, rErr)
	}
	res.Orphans = orphans
	return res, err
}

// runCycle runs a sweep and records its outcome.
func (j *Janitor) runCycle(ctx context.Context) {
	start := time.Now()
	log := j.cfg.Logger.With("domain", "janitor", "action", "cycle")
	res, err := j.RunOnce(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("cycle", "error", err)
	}
	j.metrics.record(res, time.Since(start))
	if j.sink != nil {
		j.sink.Inc(metrics.CounterSecretsExpiredDelete, int64(res.Deleted))
		j.sink.Inc(metrics.CounterOrphanBlobsDeleted, int64(res.Orphans))
		j.sink.Observe(metrics.SummaryJanitorDeletedPerCycle, int64(res.Deleted))
	}
	log.Info("cycle complete", "deleted", res.Deleted, "skipped", res.Skipped, "orphans", res.Orphans, "ms", time.Since(start).Milliseconds())
}
