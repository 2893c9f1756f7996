package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/stagepass/stagepass/pkg/api"
	"github.com/stagepass/stagepass/pkg/audit"
	"github.com/stagepass/stagepass/pkg/authz"
	"github.com/stagepass/stagepass/pkg/config"
	"github.com/stagepass/stagepass/pkg/identity"
	"github.com/stagepass/stagepass/pkg/observability"
	"github.com/stagepass/stagepass/pkg/rules"
	"github.com/stagepass/stagepass/pkg/store"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	health := observability.NewHealthChecker()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores. Postgres in production; memory when no URL is configured.
	var (
		permStore    store.PermissionStore
		participants store.ParticipantStore
		recorder     audit.Recorder
	)
	if cfg.Store.PostgresURL != "" {
		db, err := store.Open(ctx, cfg.Store.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Store.PostgresMaxConns)

		if err := store.RunMigrations(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		pg := store.NewPostgresStore(db)
		permStore = pg
		participants = pg
		health.Register("postgres", pg.Ping)

		recorder, err = audit.NewPostgresRecorder(db)
		if err != nil {
			log.Fatalf("Failed to create audit recorder: %v", err)
		}
		log.Info("Connected to postgres")
	} else {
		mem := store.NewMemoryStore()
		permStore = mem
		participants = mem
		recorder = audit.NewMemoryRecorder()
		log.Warn("No postgres URL configured, using in-memory store")
	}

	if cfg.Store.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			log.Fatalf("Invalid redis URL: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to ping redis: %v", err)
		}
		cached := store.NewCachedStore(permStore, client, cfg.Store.CacheTTL, logger)
		permStore = cached
		health.Register("redis", cached.Ping)
		log.Info("Permission record cache enabled")
	}

	// Identity provider.
	var provider identity.Provider
	if cfg.Identity.UseFake {
		provider = identity.NewFakeProvider()
		log.Warn("Using fake identity provider")
	} else {
		verifier, err := identity.NewOIDCVerifier(ctx, identity.OIDCConfig{
			IssuerURL: cfg.Identity.IssuerURL,
			ClientID:  cfg.Identity.ClientID,
		})
		if err != nil {
			log.Fatalf("Failed to initialize OIDC verifier: %v", err)
		}
		admin, err := identity.NewAdminClient(identity.AdminConfig{
			BaseURL:      cfg.Identity.AdminBaseURL,
			TokenURL:     cfg.Identity.AdminTokenURL,
			ClientID:     cfg.Identity.AdminClientID,
			ClientSecret: cfg.Identity.AdminClientSecret,
			Timeout:      cfg.Identity.AdminTimeout,
		})
		if err != nil {
			log.Fatalf("Failed to initialize identity admin client: %v", err)
		}
		provider = identity.NewProvider(verifier, admin)
		health.Register("identity", admin.Healthy)
	}

	// Store rules policy, hot-reloaded from disk when a path is given.
	rulesEngine, err := rules.NewEngine(cfg.Rules.Path, logger)
	if err != nil {
		log.Fatalf("Failed to load store rules: %v", err)
	}
	defer rulesEngine.Close()

	// Audit retention.
	sweeper, err := audit.NewRetentionSweeper(recorder, cfg.Audit.Retention, cfg.Audit.SweepSchedule, logger)
	if err != nil {
		log.Fatalf("Failed to create audit retention sweeper: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	resolver := authz.NewResolver(permStore, provider, logger)
	server := api.NewServer(permStore, participants, provider, resolver, recorder, rulesEngine, logger)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.Handle("/healthz", health.LivenessHandler())
	healthMux.Handle("/readyz", health.ReadinessHandler())
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.MetricsHandler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		log.Infof("Health server listening on :%s", cfg.Server.HealthPort)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Health server error: %v", err)
		}
	}()

	go func() {
		log.Infof("API server listening on :%s", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("API server shutdown error: %v", err)
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Health server shutdown error: %v", err)
	}
}
