package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dukkanapp/syncengine/internal/api"
	"github.com/dukkanapp/syncengine/internal/app"
	"github.com/dukkanapp/syncengine/internal/cache"
	"github.com/dukkanapp/syncengine/internal/database"
	"github.com/dukkanapp/syncengine/internal/remote"
	"github.com/dukkanapp/syncengine/internal/store"
	syncengine "github.com/dukkanapp/syncengine/internal/sync"
	"github.com/dukkanapp/syncengine/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, stop, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, args []string) error {
	fs := flag.NewFlagSet("syncd", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	durable, err := store.New(db)
	if err != nil {
		return fmt.Errorf("initialise durable store: %w", err)
	}

	freshness := cache.New(cfg.Cache.TTL, cache.WithSweepSchedule(cfg.Cache.SweepSchedule))
	if err := freshness.Start(); err != nil {
		return fmt.Errorf("start cache sweeper: %w", err)
	}
	defer func() {
		<-freshness.Stop().Done()
	}()

	remoteClient, err := remote.NewClient(remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		APIKey:  cfg.Remote.APIKey,
		Timeout: cfg.Remote.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initialise remote client: %w", err)
	}

	connectivity := syncengine.NewOnlineFlag(true)
	identity := syncengine.StaticIdentity(cfg.Sync.UserID)

	recovery := syncengine.NewRecovery(freshness, durable, requestRestart(ctx, stop),
		syncengine.WithSettleDelay(cfg.Recovery.SettleDelay))

	engine := syncengine.NewEngine(freshness, durable, remoteClient, identity, connectivity, recovery,
		syncengine.WithReadOptions(
			syncengine.WithMaxRetries(cfg.Retry.MaxRetries),
			syncengine.WithBackoffBase(cfg.Retry.BackoffBase),
		),
		syncengine.OnQueueCountChange(func(count int64) {
			log.Debug("offline queue count changed", zap.Int64("pending", count))
		}))
	engine.RefreshQueueCount(ctx)

	router := api.NewRouter(db, engine, api.Config{
		MetricsEnabled:  cfg.Monitoring.Prometheus.Enabled,
		MetricsEndpoint: cfg.Monitoring.Prometheus.Endpoint,
		HealthEnabled:   cfg.Monitoring.Health.Enabled,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

// requestRestart turns a recovery reload into a daemon shutdown; the process
// supervisor (systemd, container runtime) brings the daemon back up against
// the cleared state.
func requestRestart(ctx context.Context, stop context.CancelFunc) syncengine.Reloader {
	return func() {
		logger.WithModule("recovery").Info("requesting process restart after recovery")
		stop()
		<-ctx.Done()
	}
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.DatabaseConfig()
	dbCfg.Driver = strings.ToLower(strings.TrimSpace(dbCfg.Driver))
	if dbCfg.Driver == "" {
		dbCfg.Driver = "sqlite"
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
