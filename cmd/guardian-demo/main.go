package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/guardian-demo/internal/audit"
	"github.com/xela07ax/guardian-demo/internal/demo/handler"
	"github.com/xela07ax/guardian-demo/internal/demo/server"
	"github.com/xela07ax/guardian-demo/internal/demo/service"
	"github.com/xela07ax/guardian-demo/internal/domain"
	"github.com/xela07ax/guardian-demo/internal/engine"
	"github.com/xela07ax/guardian-demo/internal/eventlog"
	"github.com/xela07ax/guardian-demo/internal/infra"
	"github.com/xela07ax/guardian-demo/internal/infra/auth"
	"github.com/xela07ax/guardian-demo/internal/notify"
	"github.com/xela07ax/guardian-demo/internal/policy"
	"github.com/xela07ax/guardian-demo/internal/repository/postgres"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("guardian demo failed", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Ядро: состояние живет в памяти и сбрасывается при рестарте
	store := policy.NewStore(seedFromConfig(cfg.Demo, time.Now()),
		policy.WithEventLog(eventlog.New(cfg.Demo.EventCapacity)),
		policy.WithLogger(logger))

	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	var observers []engine.CheckObserver

	// 2. Аудит в PostgreSQL (опционально)
	var auditReader handler.AuditReader
	if cfg.Database.URL != "" {
		repo, err := postgres.NewAuditRepo(cfg.Database.URL, int(cfg.Database.MaxConns), int(cfg.Database.MinConns))
		if err != nil {
			return fmt.Errorf("audit repo: %w", err)
		}
		defer repo.Close()

		ctx, cancel := context.WithTimeout(appCtx, 5*time.Second)
		err = repo.Ping(ctx)
		if err == nil {
			err = repo.Migrate(ctx)
		}
		cancel()
		if err != nil {
			return fmt.Errorf("database unreachable: %w", err)
		}

		writer := audit.NewWriter(repo, logger,
			audit.WithBufferSize(cfg.Demo.AuditBufferSize),
			audit.WithFlushInterval(cfg.Demo.AuditFlushInterval),
			audit.WithBufferGauge(metrics.AuditBufferFill))
		writer.Start()
		defer writer.Stop()

		store.AddSink(writer)
		auditReader = repo
		logger.Info("audit sink enabled")
	}

	// 3. Уведомления через Redis Pub/Sub (опционально)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(appCtx, 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}

		pub := notify.NewPublisher(notify.NewRedisBroker(rdb), infra.RedisChanNotifications, store.Child(), logger)
		pub.Start()
		defer pub.Stop()

		store.AddSink(pub)
		observers = append(observers, pub)
		logger.Info("notifications enabled", zap.String("chan", infra.RedisChanNotifications))
	}

	sim := engine.NewSimulator(store, engine.SimulatorConfig{
		MinDelay:        cfg.Demo.MinDelay,
		MaxDelay:        cfg.Demo.MaxDelay,
		SimulatedAmount: domain.Balance(cfg.Demo.SimulatedAmount),
	},
		engine.WithMetrics(metrics),
		engine.WithCheckObservers(observers...),
		engine.WithSimulatorLogger(logger))

	// 4. Авторизация гардиана (опционально)
	var (
		validator auth.TokenValidator
		authH     *handler.AuthHandler
	)
	if cfg.Auth.Enabled {
		pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			return fmt.Errorf("auth public key: %w", err)
		}
		validator = auth.NewBaseValidator(pubKey)

		if len(cfg.Auth.PrivateKey) > 0 {
			privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
			if err != nil {
				return fmt.Errorf("auth private key: %w", err)
			}
			issuer := auth.NewTokenIssuer(privKey, cfg.Auth.TokenTTL)
			authH = handler.NewAuthHandler(service.NewAuthService(store.Guardian(), cfg.Auth.GuardianPasswordHash, issuer), logger)
		} else {
			logger.Warn("auth private key is not set, /auth/token disabled")
		}
	}

	panel := service.NewPanelService(sim,
		service.WithGuardianOnly(cfg.Auth.Enabled),
		service.WithLogger(logger))

	// 5. HTTP API
	api := server.NewDemoServer(logger, validator, authH,
		handler.NewPanelHandler(panel, logger),
		handler.NewAuditHandler(auditReader, logger))

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 6. gRPC
	grpcSrv := server.NewGRPCServer(panel, validator, logger)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("listen gRPC: %w", err)
	}

	// 7. Метрики
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("gRPC server started", zap.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("serve gRPC: %w", err)
		}
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve metrics: %w", err)
		}
	}()
	go func() {
		logger.Info("guardian demo started",
			zap.String("addr", srv.Addr),
			zap.String("guardian", store.Guardian()),
			zap.Bool("auth", cfg.Auth.Enabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve HTTP: %w", err)
		}
	}()

	// 8. Graceful Shutdown
	select {
	case <-appCtx.Done():
		logger.Info("guardian demo stopping...")
	case err = <-errCh:
		logger.Error("server failed, stopping", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()

	// отложенные Stop допишут аудит и уведомления
	logger.Info("guardian demo exited properly")
	return err
}

// seedFromConfig накладывает переопределения из конфигурации на демо-данные.
func seedFromConfig(c infra.DemoConfig, now time.Time) policy.Seed {
	seed := policy.DefaultSeed(now)
	if c.Guardian != "" {
		seed.Guardian = c.Guardian
	}
	if c.Child != "" {
		seed.Child = c.Child
	}
	if c.SpendCap > 0 {
		seed.SpendCap = domain.Balance(c.SpendCap)
	}
	if len(c.Allowlist) > 0 {
		seed.Allowlist = c.Allowlist
	}
	return seed
}
