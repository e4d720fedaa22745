package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	zlog "github.com/rs/zerolog/log"

	"github.com/baechuer/content-platform/internal/bootstrap"
	"github.com/baechuer/content-platform/internal/config"
	"github.com/baechuer/content-platform/internal/contracts/event"
	"github.com/baechuer/content-platform/internal/logger"
	sharedh "github.com/baechuer/content-platform/internal/transport/http/handlers"
	"github.com/baechuer/content-platform/services/media-service/internal/cleanup"
	"github.com/baechuer/content-platform/services/media-service/internal/handler"
	"github.com/baechuer/content-platform/services/media-service/internal/repository"
	"github.com/baechuer/content-platform/services/media-service/internal/router"
	"github.com/baechuer/content-platform/services/media-service/internal/storage"
)

func main() {
	logger.Init(config.ServiceMedia)

	cfg, err := config.Load(config.ServiceMedia)
	if err != nil {
		zlog.Fatal().Err(err).Msg("config load failed")
	}
	zlog.Info().Str("addr", cfg.HTTPAddr).Msg("starting media-service")

	ctx := context.Background()
	shutdownTracing := bootstrap.Tracing(ctx, cfg)

	// Connect to PostgreSQL
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to connect to database")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = pool.Ping(pingCtx)
	cancel()
	if err != nil {
		zlog.Fatal().Err(err).Msg("database not reachable")
	}

	s3Client, err := storage.NewS3Client(ctx, cfg, logger.Component("s3"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to create S3 client")
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		zlog.Error().Err(err).Msg("failed to ensure bucket exists")
	}

	rc := bootstrap.Cache(cfg)
	store := bootstrap.Store(rc)
	repo := repository.NewMediaRepository(pool)

	broker, err := bootstrap.Broker(ctx, cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("broker unavailable, refusing to start")
	}

	cleaner := cleanup.NewCleaner(repo, s3Client, store)
	if err := broker.Subscribe(event.RoutingPostDeleted, event.Typed(cleaner.HandlePostDeleted)); err != nil {
		zlog.Fatal().Err(err).Str("routing_key", event.RoutingPostDeleted).Msg("subscribe failed")
	}

	health := sharedh.NewHealthHandler(map[string]sharedh.Check{
		"postgres": pool.Ping,
		"s3":       s3Client.Ping,
		"redis":    bootstrap.CacheCheck(rc),
		"rabbitmq": bootstrap.BrokerCheck(broker),
	})
	mediaHandler := handler.NewMediaHandler(repo, s3Client, store, cfg.CacheTTLMedia, cfg.CacheTTLMediaList)
	srv := bootstrap.NewServer(cfg, router.New(mediaHandler, health, cfg))

	err = bootstrap.Serve(cfg, srv, broker,
		bootstrap.CacheCloser(rc),
		bootstrap.Closer{Name: "postgres", Close: func(context.Context) error { pool.Close(); return nil }},
		bootstrap.Closer{Name: "tracing", Close: shutdownTracing},
	)
	if err != nil {
		zlog.Fatal().Err(err).Msg("media-service stopped")
	}
	zlog.Info().Msg("media-service stopped")
}
