// Package main provides the onetimeview binary entry point that starts the
// HTTP server for self-destructing secret sharing. It loads configuration from
// defaults and environment variables, validates it, opens the configured index
// and blob backends, and serves until interrupted.
//
// The application flow:
//  1. Load and validate configuration.
//  2. Open the index (sqlite, redis or memory) and blob storage (filesystem or minio).
//  3. Start the metrics manager and the expiry janitor.
//  4. Serve HTTP until SIGINT/SIGTERM, then drain in-flight work.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	goredis "github.com/redis/go-redis/v9"

	"github.com/haukened/onetimeview/internal/app"
	"github.com/haukened/onetimeview/internal/config"
	"github.com/haukened/onetimeview/internal/httpx"
	"github.com/haukened/onetimeview/internal/janitor"
	"github.com/haukened/onetimeview/internal/metrics"
	"github.com/haukened/onetimeview/internal/password"
	"github.com/haukened/onetimeview/internal/store"
	"github.com/haukened/onetimeview/internal/store/filesystem"
	"github.com/haukened/onetimeview/internal/store/memory"
	"github.com/haukened/onetimeview/internal/store/objectstore"
	"github.com/haukened/onetimeview/internal/store/redis"
	"github.com/haukened/onetimeview/internal/store/sqlite"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 30 * time.Second

// realClock implements app.Clock using time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// probe is a readiness check for one backend.
type probe func(context.Context) error

// backends holds the opened storage adapters and their lifecycle hooks.
type backends struct {
	index   store.Index
	blobs   store.BlobStorage
	db      *sql.DB // non-nil when the index is sqlite; shared with metrics
	probes  []probe
	closers []func() error
}

func (b *backends) ready(ctx context.Context) error {
	for _, p := range b.probes {
		if err := p(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Warn("close backend", "err", err)
		}
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func ensureDataDir(dir string) (string, string, error) {
	if st, err := os.Stat(dir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", "", fmt.Errorf("stat data directory: %w", err)
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", "", fmt.Errorf("create data directory: %w", err)
		}
	} else if !st.IsDir() {
		return "", "", fmt.Errorf("data path %q is not a directory", dir)
	}
	cfg := config.Config{DataDir: dir}
	blobDir := cfg.BlobDir()
	if err := os.MkdirAll(blobDir, 0o700); err != nil {
		return "", "", fmt.Errorf("create blobs dir: %w", err)
	}
	return dir, blobDir, nil
}

func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite driver: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func openIndex(ctx context.Context, cfg *config.Config, b *backends) error {
	switch cfg.IndexBackend {
	case "sqlite":
		db, err := openDatabase(ctx, cfg.SQLiteDSN())
		if err != nil {
			return err
		}
		idx, err := sqlite.New(db)
		if err != nil {
			_ = db.Close()
			return fmt.Errorf("init sqlite schema: %w", err)
		}
		b.index, b.db = idx, db
		b.probes = append(b.probes, db.PingContext)
		b.closers = append(b.closers, db.Close)
	case "redis":
		idx, err := redis.Dial(ctx, &goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		b.index = idx
		b.probes = append(b.probes, idx.Ping)
		b.closers = append(b.closers, idx.Close)
	case "memory":
		b.index = memory.New()
	default:
		return fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}
	return nil
}

func openBlobs(ctx context.Context, cfg *config.Config, blobDir string, b *backends) error {
	switch cfg.BlobBackend {
	case "filesystem":
		blobs, err := filesystem.New(blobDir)
		if err != nil {
			return fmt.Errorf("init blob storage: %w", err)
		}
		b.blobs = blobs
		b.probes = append(b.probes, func(context.Context) error {
			_, err := os.ReadDir(blobDir)
			return err
		})
	case "minio":
		blobs, err := objectstore.New(ctx, objectstore.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
		b.blobs = blobs
		b.probes = append(b.probes, blobs.Ping)
	default:
		return fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
	return nil
}

func buildLimits(cfg *config.Config) app.Limits {
	return app.Limits{
		MaxViewsCeiling:       cfg.MaxViewsCeiling,
		DefaultExpiry:         cfg.DefaultExpiry,
		MaxExpiry:             cfg.MaxExpiry,
		GraceWindow:           cfg.GraceWindow,
		MaxTextLength:         cfg.MaxTextLength,
		MaxUploadBytes:        int64(cfg.MaxUploadBytes),
		MaxUploadBytesPremium: int64(cfg.MaxUploadBytesPremium),
	}
}

func buildService(st app.SecretStore, reclaimer app.Reclaimer, rec app.Recorder, cfg *config.Config, clock app.Clock) *app.Service {
	return &app.Service{
		Store:     st,
		Reclaimer: reclaimer,
		Hasher:    password.New(cfg.BcryptCost),
		Clock:     clock,
		Metrics:   rec,
		Limits:    buildLimits(cfg),
	}
}

func buildHandler(cfg *config.Config, svc httpx.ServicePort, readiness func(context.Context) error, mgr metrics.SnapshotProvider) http.Handler {
	h := httpx.New(svc, int64(cfg.MaxUploadBytesPremium), readiness)
	h.PremiumToken = cfg.PremiumToken
	h.BaseURL = cfg.BaseURL
	if mgr != nil {
		h.Metrics = metrics.Handler(mgr, cfg.MetricsToken)
	}
	return h.Router()
}

func newServer(cfg *config.Config, handler http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Minute,
		WriteTimeout:      15 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		BaseContext: func(net.Listener) context.Context {
			return clog.WithLogger(context.Background(), clog.NewLogger(logger))
		},
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, blobDir, err := ensureDataDir(cfg.DataDir)
	if err != nil {
		return err
	}
	b := &backends{}
	defer b.close()
	if err := openIndex(ctx, cfg, b); err != nil {
		return err
	}
	if err := openBlobs(ctx, cfg, blobDir, b); err != nil {
		return err
	}

	clock := realClock{}
	mgr := metrics.New(b.db, metrics.Config{Logger: logger})
	if err := mgr.InitSchema(ctx); err != nil {
		return fmt.Errorf("init metrics schema: %w", err)
	}
	mgr.Start(ctx)

	st := store.New(b.index, b.blobs, clock, cfg.OrphanMinAge)
	jan := janitor.New(st, mgr, janitor.Config{Interval: cfg.SweepInterval, Clock: clock, Logger: logger})
	jan.Start(ctx)

	svc := buildService(st, jan, mgr, cfg, clock)
	srv := newServer(cfg, buildHandler(cfg, svc, b.ready, mgr), logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr, "pid", os.Getpid(), "index", cfg.IndexBackend, "blobs", cfg.BlobBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if sErr := srv.Shutdown(shutdownCtx); sErr != nil {
		logger.Error("server shutdown", "err", sErr)
	}
	jan.Stop()
	svc.Wait()
	mgr.Stop(shutdownCtx)
	return err
}

func main() {
	if err := run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
