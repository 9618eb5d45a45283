package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roomshare/browserd/internal/api"
	"github.com/roomshare/browserd/internal/config"
	"github.com/roomshare/browserd/internal/coordinator"
	"github.com/roomshare/browserd/internal/driver"
	"github.com/roomshare/browserd/internal/event"
	"github.com/roomshare/browserd/internal/logging"
	"github.com/roomshare/browserd/internal/maintenance"
	"github.com/roomshare/browserd/internal/pool"
	"github.com/roomshare/browserd/internal/queue"
	"github.com/roomshare/browserd/internal/session"
	"github.com/roomshare/browserd/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the browserd daemon",
	Long: `Provision the slot pool, restore persisted queue and session state,
and serve the admission API until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()

	// Log level is the one setting that applies without a restart.
	config.Watch(func(next *config.Config) {
		logger.SetLevel(next.Logging.Level)
		logger.Info("config reloaded", "log_level", next.Logging.Level)
	})

	ctx := context.Background()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	drv := buildDriver(cfg, logger)
	bus := event.NewBus()

	q, err := queue.Load(ctx, cfg.Queue.OfferTTL(), st)
	if err != nil {
		return fmt.Errorf("restore queue: %w", err)
	}
	reg, err := session.Load(ctx, st)
	if err != nil {
		return fmt.Errorf("restore sessions: %w", err)
	}

	p := pool.New(drv, cfg.Pool.Size, bus, logger)
	coord := coordinator.New(coordinator.Options{
		Pool:             p,
		Queue:            q,
		Registry:         reg,
		Cooldowns:        coordinator.NewRoomCooldowns(st, cfg.Session.Cooldown()),
		Driver:           drv,
		Bus:              bus,
		Logger:           logger,
		SessionTTL:       cfg.Session.TTL(),
		ReleaseGrace:     cfg.Session.ReleaseGrace(),
		AdmissionTimeout: cfg.Maintenance.AdmissionTimeout(),
	})

	// The scheduler owns the coordinator's deferred jobs so failed grace
	// returns are retried on the sweep cadence.
	sched := maintenance.New(coord, cfg.Maintenance.SweepInterval(), logger)
	coord.SetScheduler(sched)

	logger.Info("starting browserd", "slots", cfg.Pool.Size, "driver", cfg.Pool.Driver, "store", cfg.Store.Backend)
	if err := coord.Startup(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	sched.Start(ctx)
	defer sched.Stop()

	hub := api.NewHub(bus, logger)
	server := api.NewServer(cfg.API, coord, hub, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := p.Shutdown(shutdownCtx); err != nil {
		logger.Warn("pool shutdown incomplete", "error", err)
	}
	return nil
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return store.NewRedisStore(rdb, store.WithKeyPrefix(cfg.Store.KeyPrefix)), nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func buildDriver(cfg *config.Config, logger *logging.Logger) driver.Driver {
	if cfg.Pool.Driver == "fake" {
		return driver.NewFakeDriver()
	}
	return driver.NewDockerDriver(driver.DockerConfig{
		Image:    cfg.Pool.Image,
		BasePort: cfg.Pool.BasePort,
		Host:     "localhost",
	}, logger)
}
