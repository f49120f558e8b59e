package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"pinksync/internal/automation"
	"pinksync/internal/broker"
	"pinksync/internal/compliance"
	"pinksync/internal/contract"
	jwttoken "pinksync/internal/jwt_token"
	"pinksync/internal/ledger"
	"pinksync/internal/platform/config"
	"pinksync/internal/platform/httpserver"
	"pinksync/internal/platform/logger"
	"pinksync/internal/platform/metrics"
	"pinksync/internal/platform/redis"
	"pinksync/internal/ratelimit"
	"pinksync/internal/registry"
	"pinksync/internal/subscription"
	transporthttp "pinksync/internal/transport/http"
	"pinksync/internal/trust"
)

const (
	shutdownGrace  = 10 * time.Second
	sweepInterval  = time.Minute
	mirrorInitial  = 200 * time.Millisecond
	mirrorMax      = 30 * time.Second
	mirrorElapsed  = 2 * time.Minute
	indexCacheSize = 4096
)

// main wires stores, services, and the HTTP surface. All policy lives in the
// internal packages; this file only decides which implementation backs each
// port based on configuration.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Stores: postgres when configured, in-memory otherwise. The ledger uses
	// database/sql, the row-shaped stores share one pgx pool.
	var (
		ledgerStore   ledger.Store
		registryStore registry.Store
		trustStore    trust.Store
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		ledgerStore = ledger.NewPostgresStore(db)
		registryStore = registry.NewPostgresStore(pool)
		trustStore = trust.NewPostgresStore(pool)
		log.Info("using postgres stores")
	} else {
		ledgerStore = ledger.NewInMemoryStore()
		registryStore = registry.NewInMemoryStore()
		trustStore = trust.NewInMemoryStore()
		log.Warn("no postgres configured, state is process-local")
	}

	ledgerSvc, err := ledger.NewService(ctx, ledgerStore, log)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	// Best-effort mirror to the external distributed ledger.
	if len(cfg.Kafka.Brokers) > 0 {
		mirror, err := ledger.NewKafkaMirror(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer mirror.Close()
		worker := ledger.NewMirrorWorker(ledgerSvc, mirror, log,
			mirrorInitial, mirrorMax, mirrorElapsed,
			func() { m.MirrorFailures.Inc() })
		g.Go(func() error { return worker.Run(ctx) })
		log.Info("ledger mirror enabled", "topic", cfg.Kafka.Topic)
	}

	registrySvc := registry.NewService(registryStore, ledgerSvc, log)

	index, err := contract.NewCachedIndex(contract.NewInMemoryIndex(), indexCacheSize)
	if err != nil {
		return err
	}
	validator := contract.NewValidator(registrySvc, index, cfg.ClockSkewTolerance, cfg.MetadataMaxBytes)

	complianceEngine := compliance.NewEngine(
		compliance.NewInMemoryStore(), registrySvc, ledgerSvc, log,
		cfg.WarningLimit, cfg.WarningWindow,
	)

	trustSvc := trust.NewService(trustStore, ledgerSvc, log)

	subscriptionSvc := subscription.NewService(
		subscription.NewWebhookDeliverer(nil), ledgerSvc, log,
		subscription.DeliveryConfig{
			AckSLA:         cfg.AckSLA,
			MaxAttempts:    cfg.DeliveryAttempts,
			BackoffInitial: cfg.BackoffInitial,
			BackoffMax:     cfg.BackoffMax,
		},
		subscription.WithMetrics(m),
	)
	defer subscriptionSvc.Shutdown()

	governance := automation.NewGovernance(
		automation.NewInMemoryProposalStore(), ledgerSvc, log, cfg.VotingWindow,
	)

	var deployer automation.Deployer = automation.NewLogDeployer(log)
	if cfg.DeployAPIURL != "" {
		deployer = automation.NewHTTPDeployer(nil, cfg.DeployAPIURL)
	}
	var collab automation.Collaborator = automation.NewLogCollaborator(log)
	if cfg.RepoHostURL != "" {
		collab = automation.NewHTTPCollaborator(nil, cfg.RepoHostURL, cfg.RepoHostToken)
	}

	pipeline := automation.NewPipeline(
		trustSvc, trustSvc,
		automation.NewInMemoryDeploymentStore(),
		automation.NewInMemoryTaskStore(),
		governance, ledgerSvc, deployer, collab, log,
		automation.PipelineConfig{
			TrustThreshold:  cfg.TrustThreshold,
			ProtectedBranch: cfg.ProtectedBranch,
			GovernanceMajor: cfg.GovernanceMajor,
			DeployAttempts:  cfg.DeliveryAttempts,
			BackoffInitial:  cfg.BackoffInitial,
			BackoffMax:      cfg.BackoffMax,
		},
		automation.WithPipelineMetrics(m),
	)
	defer pipeline.Wait()

	brokerSvc := broker.NewService(
		validator, index, ledgerSvc, complianceEngine, subscriptionSvc,
		[]byte(cfg.SigningKey), log,
		broker.WithMetrics(m),
	)
	// The row-shaped stores above are projections of the chain; rebuild them
	// all before the intake surface opens or the sweep loop runs.
	if err := brokerSvc.ReplayIndex(ctx); err != nil {
		return err
	}
	if err := complianceEngine.Replay(ctx, ledgerSvc); err != nil {
		return err
	}
	if err := governance.Replay(ctx, ledgerSvc); err != nil {
		return err
	}
	if err := pipeline.ReplayDeployments(ctx, ledgerSvc); err != nil {
		return err
	}
	g.Go(func() error { return governance.Run(ctx, sweepInterval) })

	var limitStore ratelimit.Store = ratelimit.NewInMemoryStore()
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		limitStore = ratelimit.NewRedisStore(redisClient.Client)
		log.Info("using redis rate-limit store")
	}

	jwtSvc := jwttoken.NewJWTService(cfg.JWTSecret, "pinksync")

	router := transporthttp.NewRouter(transporthttp.RouterDeps{
		Logger:       log,
		Metrics:      m,
		JWTValidator: jwttoken.NewMiddlewareAdapter(jwtSvc),
		RateLimit:    ratelimit.NewMiddleware(limitStore, log, cfg.RateLimit, cfg.RateLimitWindow),

		Events:        transporthttp.NewEventsHandler(brokerSvc, log),
		Capabilities:  transporthttp.NewCapabilitiesHandler(registrySvc, log),
		Subscriptions: transporthttp.NewSubscriptionsHandler(subscriptionSvc, log),
		Compliance:    transporthttp.NewComplianceHandler(complianceEngine, log),
		Trust:         transporthttp.NewTrustHandler(trustSvc, m, log),
		Webhooks:      transporthttp.NewWebhooksHandler(pipeline, log),
		Governance:    transporthttp.NewGovernanceHandler(governance, log),
		Ledger:        transporthttp.NewLedgerHandler(ledgerSvc, log),
	})

	srv := httpserver.New(cfg.Addr, router)
	g.Go(func() error {
		log.Info("starting pinksync broker", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
