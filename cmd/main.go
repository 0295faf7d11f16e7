package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/rampart/internal/adapters/http/api"
	"github.com/okian/rampart/internal/adapters/http/swagger"
	"github.com/okian/rampart/internal/adapters/repository"
	"github.com/okian/rampart/internal/adapters/settings"
	app "github.com/okian/rampart/internal/app"
	"github.com/okian/rampart/internal/config"
	"github.com/okian/rampart/internal/simulate"
	"github.com/okian/rampart/pkg/logger"
	"github.com/okian/rampart/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
	redisPingTimeout       = 2 * time.Second
)

func main() {
	// The /metrics endpoint serves its own registry; drop the default Go collectors
	// so nothing else exports duplicates of the system gauges.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}
	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		os.Stderr.WriteString("invalid log_format: " + err.Error() + "\n")
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	metrics.Configure(metricsOptions(cfg)...)

	a, err := setup(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", logger.Error(err))
		return
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, a.svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := a.close(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "service shutdown failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
}

// metricsOptions maps the metrics section of cfg onto manager options.
func metricsOptions(cfg *config.Config) []metrics.Option {
	opts := []metrics.Option{
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(cfg.MetricsBuckets),
	}
	if cfg.Competition != "" {
		opts = append(opts, metrics.WithConstLabels(map[string]string{"competition": cfg.Competition}))
	}
	return opts
}

// application holds everything main has to tear down.
type application struct {
	db    *sql.DB
	redis *redis.Client
	svc   *app.Service
	mux   *http.ServeMux
	log   logger.Logger
}

// setup opens storage, wires the settings provider, starts the recompute
// pipeline and registers the HTTP routes. Background work it starts stops with ctx.
func setup(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	db, dialect, err := repository.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	a := &application{db: db, log: log}

	store, err := repository.NewSQLStore(ctx, db,
		repository.WithDialect(dialect),
		repository.WithLogger(log.Named("repository")))
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	source, fileSource, err := settingsSource(ctx, cfg, db, dialect, log)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	provider := settings.NewProvider(source,
		settings.WithCache(a.settingsCache(ctx, cfg)),
		settings.WithTTL(cfg.SettingsCacheTTL()),
		settings.WithLogger(log.Named("settings")))

	if cfg.SeedDemo {
		if err := seedDemo(ctx, store, log); err != nil {
			_ = a.close(ctx)
			return nil, err
		}
	}

	a.svc = app.New(store, provider,
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithRoundWindow(cfg.MaxRoundWindow))
	if err := a.svc.Start(ctx); err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	if ids, err := a.svc.RecomputeQueuedTeams(ctx); err != nil {
		log.Warn(ctx, "startup recompute of queued teams failed", logger.Error(err))
	} else if len(ids) > 0 {
		log.Info(ctx, "recomputed queued teams", logger.Any("team_ids", ids))
	}

	if fileSource != nil {
		go a.watchSettings(ctx, fileSource, provider)
	}

	a.mux = http.NewServeMux()
	swagger.Register(ctx, a.mux)
	api.NewServer(a.svc).Register(ctx, a.mux)
	return a, nil
}

// settingsSource serves settings from the configured YAML file when one is
// set and from the settings table otherwise.
func settingsSource(ctx context.Context, cfg *config.Config, db *sql.DB, dialect repository.Dialect, log logger.Logger) (settings.Source, *settings.FileSource, error) {
	if cfg.SettingsFile != "" {
		fs, err := settings.NewFileSource(cfg.SettingsFile, log.Named("settings"))
		if err != nil {
			return nil, nil, err
		}
		return fs, fs, nil
	}
	src, err := settings.NewSQLSource(ctx, db, dialect)
	if err != nil {
		return nil, nil, err
	}
	return src, nil, nil
}

// settingsCache returns a Redis cache when Redis is configured and reachable,
// and a process-local cache otherwise.
func (a *application) settingsCache(ctx context.Context, cfg *config.Config) settings.Cache {
	if cfg.RedisAddr == "" {
		return settings.NewLocalCache()
	}
	client := settings.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.log.Warn(ctx, "redis unreachable, using local settings cache",
			logger.String("addr", cfg.RedisAddr), logger.Error(err))
		_ = client.Close()
		return settings.NewLocalCache()
	}
	a.redis = client
	return settings.NewRedisCache(client, "")
}

func (a *application) watchSettings(ctx context.Context, fs *settings.FileSource, provider *settings.Provider) {
	err := fs.Watch(ctx, func() {
		if err := provider.Invalidate(ctx); err != nil {
			a.log.Warn(ctx, "settings cache purge failed", logger.Error(err))
		}
		if err := a.svc.ReplayAll(ctx, "settings file changed"); err != nil {
			a.log.Warn(ctx, "replay after settings change failed", logger.Error(err))
		}
	})
	if err != nil {
		a.log.Error(ctx, "settings watcher stopped", logger.Error(err))
	}
}

// seedDemo fills an empty store with a simulated competition.
func seedDemo(ctx context.Context, store repository.Store, log logger.Logger) error {
	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	if counts.Teams > 0 {
		log.Info(ctx, "store not empty, skipping demo seed", logger.Int("teams", counts.Teams))
		return nil
	}
	res, err := simulate.Generate(ctx, store, simulate.DefaultConfig(), log.Named("simulate"))
	if err != nil {
		return err
	}
	log.Info(ctx, "demo competition seeded",
		logger.Int("blue_teams", len(res.BlueTeams)),
		logger.Int("rounds", res.Rounds),
		logger.Int("checks", res.Checks))
	return nil
}

func (a *application) close(ctx context.Context) error {
	var errs []error
	if a.svc != nil {
		errs = append(errs, a.svc.Stop(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// startSystemMetricsUpdater refreshes process gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes pipeline gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
