// Command server assembles and runs the soulbind ledger: state backend,
// height source, settlement client, audit pipeline, and the HTTP surface.
// All policy lives in the internal services; main only wires and supervises.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	adminhandler "soulbind/internal/admin/handler"
	authhandler "soulbind/internal/auth/handler"
	authservice "soulbind/internal/auth/service"
	"soulbind/internal/chain"
	jwttoken "soulbind/internal/jwt_token"
	"soulbind/internal/platform/config"
	"soulbind/internal/platform/httpserver"
	"soulbind/internal/platform/logger"
	"soulbind/internal/platform/metrics"
	"soulbind/internal/platform/postgres"
	"soulbind/internal/platform/redis"
	"soulbind/internal/settlement"
	"soulbind/internal/state"
	tokenhandler "soulbind/internal/token/handler"
	tokenservice "soulbind/internal/token/service"
	httptransport "soulbind/internal/transport/http"
	wraphandler "soulbind/internal/wrap/handler"
	wrapservice "soulbind/internal/wrap/service"
	"soulbind/pkg/domain"
	"soulbind/pkg/platform/audit"
	"soulbind/pkg/platform/audit/kafka"
	"soulbind/pkg/platform/audit/publisher"
	auditmem "soulbind/pkg/platform/audit/store/memory"
	auditpg "soulbind/pkg/platform/audit/store/postgres"
	"soulbind/pkg/platform/audit/worker"
	"soulbind/pkg/platform/circuit"
	"soulbind/pkg/secrets"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log.Level)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	owner, err := domain.ParsePrincipal(cfg.Genesis.ContractOwner)
	if err != nil {
		return fmt.Errorf("contract owner: %w", err)
	}
	genesis := state.Genesis{
		ContractOwner: owner,
		MaxTokens:     cfg.Genesis.MaxTokens,
		MintFee:       cfg.Genesis.MintFee,
	}

	var (
		store      state.Store
		auditStore audit.Store
		checks     []httptransport.ReadyCheck
	)
	switch cfg.Store.Backend {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		if err := state.MigratePostgres(ctx, db); err != nil {
			return fmt.Errorf("migrate state: %w", err)
		}
		if err := state.SeedGenesis(ctx, db, genesis); err != nil {
			return fmt.Errorf("seed genesis: %w", err)
		}
		if err := auditpg.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate audit: %w", err)
		}
		store = state.NewPostgres(db)
		auditStore = auditpg.New(db)
		checks = append(checks, httptransport.ReadyCheck{Name: "postgres", Check: db.PingContext})
	case "memory":
		store = state.NewMemory(genesis)
		auditStore = auditmem.NewInMemoryStore()
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	cacheClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var cache *state.Cache
	if cacheClient != nil {
		defer cacheClient.Close()
		cache = state.NewCache(cacheClient.Client, cfg.Redis.CacheTTL, log)
		checks = append(checks, httptransport.ReadyCheck{Name: "redis", Check: cacheClient.Health})
	}

	// The Kafka sink hangs off a tee so ledger writes never wait on the
	// broker; the delivery worker forwards teed events in the background.
	var (
		pubOpts []publisher.Option
		tee     *worker.Tee
		sink    *kafka.Sink
	)
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err = kafka.NewSink(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		defer sink.Close()
		tee = worker.NewTee(256)
		pubOpts = append(pubOpts, publisher.WithSink(tee))
	}
	events := publisher.NewPublisher(auditStore, pubOpts...)

	var settle tokenservice.Settlement
	if cfg.Settlement.URL == "" {
		log.Warn("no settlement URL configured, fee transfers use the in-process mock")
		settle = &settlement.Mock{}
	} else {
		breaker := circuit.New("settlement",
			circuit.WithFailureThreshold(cfg.Settlement.BreakerThreshold))
		settle = settlement.NewHTTPClient(cfg.Settlement.URL,
			settlement.WithHTTPClient(&http.Client{Timeout: cfg.Settlement.Timeout}),
			settlement.WithBreaker(breaker),
			settlement.WithClientLogger(log),
			settlement.WithProbeInterval(cfg.Settlement.ProbeInterval),
		)
	}

	var heights chain.HeightSource
	switch cfg.Chain.Mode {
	case "manual":
		heights = chain.NewManual(domain.Height(cfg.Chain.Start))
	default:
		heights = chain.NewInterval(cfg.Chain.GenesisTime, cfg.Chain.Step)
	}

	m := metrics.New()

	jwtService := jwttoken.New(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)
	validator := jwttoken.NewServiceAdapter(jwtService)

	secretHash, err := secrets.Hash(cfg.Auth.BootstrapSecret)
	if err != nil {
		return fmt.Errorf("hash bootstrap secret: %w", err)
	}
	authSvc := authservice.New(secretHash, jwtService, cfg.JWT.TTL,
		authservice.WithLogger(log))

	wrapOpts := []wrapservice.Option{
		wrapservice.WithLogger(log),
		wrapservice.WithAuditPublisher(events),
		wrapservice.WithMetrics(m),
	}
	tokenOpts := []tokenservice.Option{
		tokenservice.WithLogger(log),
		tokenservice.WithAuditPublisher(events),
		tokenservice.WithMetrics(m),
	}
	if cache != nil {
		wrapOpts = append(wrapOpts, wrapservice.WithCache(cache))
		tokenOpts = append(tokenOpts, tokenservice.WithCache(cache))
	}
	wrapSvc := wrapservice.New(store, heights, wrapOpts...)
	tokenSvc := tokenservice.New(store, heights, settle, tokenOpts...)

	router := httptransport.NewRouter(log, checks,
		authhandler.New(authSvc, log),
		wraphandler.New(wrapSvc, validator, log),
		tokenhandler.New(tokenSvc, validator, log),
		adminhandler.New(wrapSvc, tokenSvc, auditStore, validator, cfg.Auth.OperatorToken, log),
	)
	srv := httpserver.New(cfg.HTTP.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("soulbind listening",
			"addr", cfg.HTTP.Addr,
			"store", cfg.Store.Backend,
			"chain_mode", cfg.Chain.Mode,
			"cache", cacheClient != nil,
			"audit_sink", sink != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if tee != nil {
		deliver := worker.NewWorker(sink, tee.Events(), log)
		g.Go(func() error {
			// The worker drains on channel close, not context cancel, so
			// teed events still reach the broker during shutdown.
			return deliver.Run(context.Background())
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		events.Close()
		if tee != nil {
			tee.Close()
		}
		return err
	})

	return g.Wait()
}
