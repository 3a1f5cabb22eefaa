package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/orgs"
	"github.com/platinummonkey/gatehouse/pkg/provisioning"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cm, err := postgres.NewConnectionManager(cfg.Database)
	if err != nil {
		return err
	}
	defer cm.Close()

	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := authz.RunMigrations(migrateCtx, cm.Primary()); err != nil {
		return err
	}

	registry := authz.NewRegistry(cm.Primary())
	if err := authz.InitializeBuiltInRoles(migrateCtx, registry); err != nil {
		return err
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
		metrics.CollectDBStats(cm.Primary())
	}

	cache, redisClient, err := buildDecisionCache(cfg.Cache, metrics, logger)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	assignments := authz.NewAssignmentStore(cm.Primary())
	evaluator := authz.NewEvaluator(cm.Reader(), cache, metrics)
	orgService := orgs.NewService(cm.Primary())
	invitations := provisioning.NewInvitationStore(cm.Primary(), assignments, orgService, metrics, logger)
	provisioner := provisioning.NewProvisioner(cm.Primary(), orgService, registry, assignments, invitations, metrics, logger)

	boundary := authz.NewEnforcementBoundary(evaluator, logger)

	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		middleware.NewAuthMiddleware(true).Handler,
	)

	api := router.PathPrefix("/api/v1").Subrouter()
	authz.NewHandlers(registry, assignments, evaluator, cache, metrics).RegisterRoutes(api, boundary)
	orgs.NewHandlers(orgService, cache).RegisterRoutes(api, boundary)
	provisioning.NewHandlers(provisioner, invitations).RegisterRoutes(api, boundary)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(cm.Primary(), redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	var janitor *provisioning.Janitor
	if cfg.Provisioning.JanitorSchedule != "" {
		janitor = provisioning.NewJanitor(cm.Primary(), cfg.Provisioning.JanitorSchedule,
			cfg.Provisioning.InvitationRetention, metrics, logger)
		if err := janitor.Start(); err != nil {
			return err
		}
		defer janitor.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := apiServer.Shutdown(shutdownCtx)
		if herr := healthServer.Shutdown(shutdownCtx); err == nil {
			err = herr
		}
		return err
	})

	return g.Wait()
}

func buildDecisionCache(cfg config.CacheConfig, metrics *observability.Metrics, logger *observability.Logger) (authz.DecisionCache, *redis.Client, error) {
	switch cfg.Backend {
	case config.CacheBackendLRU:
		return authz.NewLRUDecisionCache(cfg.MaxItems, cfg.TTL, metrics), nil, nil
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, nil, err
		}
		return authz.NewRedisDecisionCache(client, cfg.TTL, metrics, logger), client, nil
	default:
		return nil, nil, nil
	}
}
