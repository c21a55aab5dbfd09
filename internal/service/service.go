// Package service wires configuration, market data, the signal engine,
// notification channels, persistence and the HTTP surface into one process.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"volsignal/config"
	"volsignal/internal/gateway"
	"volsignal/internal/indicator"
	"volsignal/internal/logger"
	"volsignal/internal/marketdata"
	"volsignal/internal/markethours"
	"volsignal/internal/metrics"
	"volsignal/internal/model"
	"volsignal/internal/notification"
	"volsignal/internal/scale"
	"volsignal/internal/scheduler"
	"volsignal/internal/signal"
	redisstore "volsignal/internal/store/redis"
	sqlitestore "volsignal/internal/store/sqlite"
)

const (
	notifyTimeout  = 15 * time.Second
	persistTimeout = 5 * time.Second
)

// Deps overrides collaborators that are otherwise built from Config.
type Deps struct {
	Provider  model.SeriesProvider   // default: from DATA_SOURCE
	Notifiers []notification.Channel // default: log plus configured telegram/webhook
	Clock     func() time.Time
}

// Service is the top-level orchestrator for the volatility signal service.
// It wires all dependencies, manages lifecycle, and serializes refresh cycles.
type Service struct {
	cfg *config.Config

	engine   *signal.Engine
	provider model.SeriesProvider
	notifier *notification.Multi
	session  markethours.Session
	scale    scale.Scale

	prom   *metrics.Metrics
	health *metrics.HealthStatus
	hub    *gateway.Hub

	rdb       *goredis.Client
	state     *redisstore.StateStore
	publisher *redisstore.Publisher
	following atomic.Bool // hub is fed by the Redis channel
	journal   *sqlitestore.Journal

	cycleMu sync.Mutex // one cycle at a time

	mu          sync.RWMutex
	instruments []model.InstrumentConfig
	last        *model.CycleReport

	now func() time.Time
	log *slog.Logger
}

// New builds a Service. Redis and SQLite are optional: when they cannot be
// reached the service logs a warning and runs without them.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Service, error) {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	svc := &Service{
		cfg:    cfg,
		scale:  scale.Ten,
		prom:   metrics.NewMetrics(nil),
		health: metrics.NewHealthStatus(),
		hub:    gateway.NewHub(gateway.DefaultAlertBacklog),
		now:    deps.Clock,
		log:    logger.Component("service"),
	}

	instruments, err := config.LoadInstruments(cfg.InstrumentsFile, cfg.DefaultThreshold)
	if err != nil {
		return nil, err
	}
	svc.instruments = instruments

	svc.session, err = buildSession(cfg)
	if err != nil {
		return nil, err
	}

	svc.engine, err = signal.New(signal.Options{
		ATRMethod:    indicator.ATRMethod(cfg.ATRMethod),
		ADXMethod:    indicator.ADXMethod(cfg.ADXMethod),
		Cooldown:     cfg.Cooldown,
		ExitRatio:    cfg.ExitRatio,
		Workers:      cfg.Workers,
		FetchTimeout: cfg.FetchTimeout,
		Lookback:     cfg.Lookback,
		Deliverable:  svc.deliverable,
		Clock:        deps.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	svc.provider = deps.Provider
	if svc.provider == nil {
		if svc.provider, err = buildProvider(cfg, deps.Clock); err != nil {
			return nil, err
		}
	}

	channels := deps.Notifiers
	if channels == nil {
		channels = svc.buildChannels()
	}
	svc.notifier = notification.NewMulti(channels...)
	svc.notifier.OnError = func(channel string, err error) {
		svc.prom.NotifyFailures.WithLabelValues(channel).Inc()
		svc.log.Warn("notification failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}

	// ---- Redis (optional) ----
	if cfg.RedisAddr != "" {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			svc.log.Warn("redis unavailable, continuing without episode persistence", slog.String("error", err.Error()))
			svc.health.SetRedis(true, false)
		} else {
			svc.rdb = rdb
			breaker := redisstore.NewCircuitBreaker(5, 10*time.Second)
			breaker.OnStateChange = func(from, to redisstore.State) {
				svc.prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					svc.prom.RedisCircuitBreakerTrips.Inc()
				}
				svc.log.Warn("redis circuit breaker", slog.String("from", from.String()), slog.String("to", to.String()))
			}
			svc.state = redisstore.NewStateStore(rdb, cfg.StateKey, breaker)
			svc.publisher = redisstore.NewPublisher(rdb, breaker)
			svc.health.SetRedis(true, true)
		}
	}

	// ---- SQLite (optional) ----
	if cfg.SQLitePath != "" {
		j, err := sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			svc.log.Warn("sqlite journal init failed, continuing without history", slog.String("error", err.Error()))
			svc.health.SetSQLite(true, false)
		} else {
			svc.journal = j
			svc.health.SetSQLite(true, true)
		}
	}

	return svc, nil
}

// deliverable reports whether an alert for c raised at t may be notified.
// Always-open instruments ignore the session.
func (svc *Service) deliverable(c model.InstrumentConfig, t time.Time) bool {
	return c.AlwaysOpen || svc.session.IsOpen(t)
}

func buildSession(cfg *config.Config) (markethours.Session, error) {
	if !cfg.MarketHoursOnly {
		return markethours.AlwaysOpen(), nil
	}
	s := markethours.Default()
	h, err := markethours.ParseHolidays(cfg.MarketHolidays)
	if err != nil {
		return s, fmt.Errorf("MARKET_HOLIDAYS: %w", err)
	}
	s.Holidays = h
	return s, nil
}

func buildProvider(cfg *config.Config, clock func() time.Time) (model.SeriesProvider, error) {
	switch cfg.DataSource {
	case config.SourceSynthetic:
		interval, err := marketdata.ParseInterval(cfg.BarInterval)
		if err != nil {
			return nil, err
		}
		return marketdata.NewSynthetic(marketdata.SyntheticConfig{
			Seed:     cfg.SyntheticSeed,
			Interval: interval,
			Clock:    clock,
		}), nil
	default:
		return marketdata.NewTwelveData(marketdata.TwelveDataConfig{
			BaseURL:  cfg.TwelveDataBaseURL,
			APIKey:   cfg.TwelveDataAPIKey,
			Interval: cfg.BarInterval,
			Timeout:  cfg.FetchTimeout,
		})
	}
}

func (svc *Service) buildChannels() []notification.Channel {
	channels := []notification.Channel{
		{Name: "log", Notifier: notification.NewLogNotifier(logger.Component("notify"))},
	}
	if svc.cfg.TelegramToken != "" {
		tg, err := notification.NewTelegramNotifier(svc.cfg.TelegramToken, svc.cfg.TelegramChatID)
		if err != nil {
			svc.log.Warn("telegram disabled", slog.String("error", err.Error()))
		} else {
			channels = append(channels, notification.Channel{Name: "telegram", Notifier: tg})
		}
	}
	if svc.cfg.WebhookURL != "" {
		channels = append(channels, notification.Channel{Name: "webhook", Notifier: notification.NewWebhookNotifier(svc.cfg.WebhookURL)})
	}
	return channels
}

// Instruments returns the current instrument list.
func (svc *Service) Instruments() []model.InstrumentConfig {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return append([]model.InstrumentConfig(nil), svc.instruments...)
}

// Latest returns the last cycle report, or nil before the first cycle.
func (svc *Service) Latest() *model.CycleReport {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.last
}

// Run restores state, starts the scheduler and HTTP server, runs an initial
// cycle and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	svc.log.Info("starting volatility signal service",
		slog.Int("instruments", len(svc.Instruments())),
		slog.String("schedule", svc.cfg.Schedule),
		slog.String("session", svc.session.Describe()),
		slog.Int("notifiers", svc.notifier.Len()))

	svc.restoreEpisodes(ctx)

	var sqlDB *sql.DB
	if svc.journal != nil {
		sqlDB = svc.journal.DB()
	}
	if svc.rdb != nil || sqlDB != nil {
		svc.health.StartLivenessChecker(ctx, svc.rdb, sqlDB, 15*time.Second)
	}
	if svc.rdb != nil {
		sub, err := svc.hub.Subscribe(ctx, svc.rdb, redisstore.SnapshotChannel)
		if err != nil {
			svc.log.Warn("hub broadcasts directly", slog.String("error", err.Error()))
		} else {
			svc.following.Store(true)
			go svc.hub.Follow(ctx, sub)
		}
	}

	sched, err := scheduler.New(svc.cfg.Schedule, func(jobCtx context.Context) {
		svc.RunCycle(jobCtx)
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              svc.cfg.HTTPAddr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		svc.log.Info("http server listening", slog.String("addr", svc.cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	svc.RunCycle(ctx)
	sched.Start()

	select {
	case <-ctx.Done():
	case err = <-serverErr:
		svc.log.Error("http server failed", slog.String("error", err.Error()))
	}

	// ---- Graceful shutdown ----
	svc.log.Info("shutdown signal received")
	sched.Stop(svc.cfg.CycleTimeout)

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutCtx); err != nil {
		svc.log.Warn("http shutdown", slog.String("error", err.Error()))
	}
	svc.saveEpisodes(shutCtx)
	svc.Close()
	svc.log.Info("shutdown complete")
	return err
}

// Close releases store connections.
func (svc *Service) Close() {
	if svc.journal != nil {
		svc.journal.Close()
	}
	if svc.rdb != nil {
		svc.rdb.Close()
	}
}
