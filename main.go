package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cccs-paul/rcbudget/pkg/acl"
	"github.com/cccs-paul/rcbudget/pkg/api"
	"github.com/cccs-paul/rcbudget/pkg/centre"
	"github.com/cccs-paul/rcbudget/pkg/config"
	"github.com/cccs-paul/rcbudget/pkg/directory"
	"github.com/cccs-paul/rcbudget/pkg/observability"
	"github.com/cccs-paul/rcbudget/pkg/principal"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.PingTimeout)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		logger.WithError(err).Error("database is not reachable")
		os.Exit(1)
	}

	var redisClient *redis.Client
	var cache *acl.AccessCache
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.WithError(err).Error("invalid redis URL")
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis is not reachable, access cache disabled")
			redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
			cache = acl.NewAccessCache(redisClient, cfg.Redis.CacheTTL)
		}
	}

	var lookup directory.Lookup
	if cfg.Directory.BaseURL != "" {
		client, err := directory.NewClient(directory.ClientConfig{
			BaseURL:      cfg.Directory.BaseURL,
			TokenURL:     cfg.Directory.TokenURL,
			ClientID:     cfg.Directory.ClientID,
			ClientSecret: cfg.Directory.ClientSecret,
			Timeout:      cfg.Directory.Timeout,
			CacheSize:    cfg.Directory.CacheSize,
			CacheTTL:     cfg.Directory.CacheTTL,
		})
		if err != nil {
			logger.WithError(err).Error("failed to build directory client")
			os.Exit(1)
		}
		lookup = client
	} else {
		logger.Warn("directory lookup not configured, grants are limited to local users")
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	if cfg.Observability.OTelEnabled {
		providers, err := observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("failed to initialize telemetry")
			os.Exit(1)
		}
		defer func() {
			if err := observability.ShutdownOTel(context.Background(), providers, logger); err != nil {
				logger.WithError(err).Warn("telemetry shutdown failed")
			}
		}()
	}

	engine := acl.NewEngine(acl.EngineConfig{
		Centres:              centre.NewStore(db),
		Principals:           principal.NewResolver(principal.NewStore(db)),
		Grants:               acl.NewStore(db),
		Directory:            lookup,
		DirectorySearchLimit: cfg.Directory.SearchLimit,
		Cache:                cache,
		Logger:               logger,
		Metrics:              metrics,
	})

	server := api.NewServer(cfg, db, redisClient, engine, lookup, logger, metrics)
	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("server stopped")
}
