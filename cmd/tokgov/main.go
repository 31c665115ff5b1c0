package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/tokgov/internal/config"
	dbRedis "github.com/kailas-cloud/tokgov/internal/db/redis"
	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
	logpkg "github.com/kailas-cloud/tokgov/internal/logger"
	"github.com/kailas-cloud/tokgov/internal/metrics"
	budgetrepo "github.com/kailas-cloud/tokgov/internal/repository/budget"
	chiTransport "github.com/kailas-cloud/tokgov/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/tokgov/internal/transport/openai"
	completionuc "github.com/kailas-cloud/tokgov/internal/usecase/completion"
	governoruc "github.com/kailas-cloud/tokgov/internal/usecase/governor"
	healthuc "github.com/kailas-cloud/tokgov/internal/usecase/health"
	usageuc "github.com/kailas-cloud/tokgov/internal/usecase/usage"
	"github.com/kailas-cloud/tokgov/internal/version"
)

// stateStore is what every storage driver provides.
type stateStore interface {
	governoruc.Store
	healthuc.StorePinger
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting tokgov API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Int64("daily_budget", cfg.Governor.DailyBudget),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterGovernorMetrics()
	metrics.RegisterHTTPMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to open state store", zap.Error(err))
	}
	defer closeStore()

	loc, err := cfg.Governor.Location()
	if err != nil {
		logger.Fatal("Invalid governor timezone", zap.Error(err))
	}

	gov, err := governoruc.New(ctx, domgov.Config{
		DailyBudget:          cfg.Governor.DailyBudget,
		CostPerThousandUnits: cfg.Governor.CostPerThousandTokens,
		LowPriorityFraction:  cfg.Governor.LowPriorityFraction,
		SaverModeThreshold:   cfg.Governor.SaverModeThreshold,
	}, store, logger,
		governoruc.WithLocation(loc),
		governoruc.WithWriteTimeout(time.Duration(cfg.Storage.WriteTimeoutMs)*time.Millisecond),
		governoruc.WithReservationTTL(time.Duration(cfg.Governor.ReservationTTLSec)*time.Second),
	)
	if err != nil {
		logger.Fatal("Failed to create governor", zap.Error(err))
	}

	// Completion provider is optional: without it /v1/completions answers 501.
	var (
		serverOpts      []chiTransport.Option
		providerChecker healthuc.ProviderChecker
	)
	if cfg.Provider.Enabled() {
		completer := openaiTransport.NewCompleter(&openaiTransport.Config{
			APIKey:   cfg.Provider.APIKey,
			BaseURL:  cfg.Provider.BaseURL,
			Model:    cfg.Provider.Model,
			Provider: cfg.Provider.Name,
			Logger:   logger,
		})
		completionSvc := completionuc.New(completer, gov, completionuc.Config{
			Provider:         cfg.Provider.Name,
			Model:            cfg.Provider.Model,
			DefaultMaxTokens: cfg.Provider.DefaultMaxTokens,
			SaverModel:       cfg.Provider.SaverModel,
			SaverMaxTokens:   cfg.Provider.SaverMaxTokens,
		}, logger)
		serverOpts = append(serverOpts, chiTransport.WithCompleter(completionSvc))
		providerChecker = completer
		logger.Info("Completion provider configured",
			zap.String("provider", cfg.Provider.Name),
			zap.String("model", cfg.Provider.Model),
			zap.String("saver_model", cfg.Provider.SaverModel),
		)
	}

	usageSvc := usageuc.New(gov)
	healthSvc := healthuc.New(store, gov, providerChecker)

	server := chiTransport.NewServer(gov, usageSvc, healthSvc, logger, serverOpts...)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Handle("/metrics", promhttp.Handler())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		gov.Watch(gctx, time.Duration(cfg.Governor.WatchIntervalSec)*time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
		// Flush a rollover that happened while idle.
		if err := gov.EnsureCurrentPeriod(shutdownCtx); err != nil {
			logger.Warn("Failed to persist period on shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}

	st := gov.Status(context.Background())
	logger.Info("Server stopped gracefully",
		zap.Int64("tokens_used", st.TokensUsed),
		zap.String("period", string(st.PeriodStart)),
		zap.Int("outstanding_reservations", gov.Outstanding()),
	)
}

// openStore builds the state store for the configured driver.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (stateStore, func(), error) {
	switch cfg.Driver {
	case config.DriverFile:
		logger.Info("Using file state store", zap.String("path", cfg.Path))
		return budgetrepo.NewFileStore(cfg.Path), func() {}, nil

	case config.DriverBadger:
		bdb, err := budgetrepo.OpenBadger(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using badger state store", zap.String("dir", cfg.Path))
		closeFn := func() {
			if err := bdb.Close(); err != nil {
				logger.Warn("Failed to close badger", zap.Error(err))
			}
		}
		return budgetrepo.NewBadgerStore(bdb, ""), closeFn, nil

	case config.DriverRedis, config.DriverValkey:
		// Valkey speaks the same protocol; one client serves both.
		rs, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := rs.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
			rs.Close()
			return nil, nil, fmt.Errorf("%s not ready: %w", cfg.Driver, err)
		}
		kv := budgetrepo.NewKVStore(rs, cfg.KeyPrefix)
		logger.Info("Connected to database",
			zap.String("driver", cfg.Driver),
			zap.Strings("addrs", cfg.Addrs),
			zap.String("key", kv.Key()),
		)
		return kv, rs.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
