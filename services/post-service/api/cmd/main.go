package main

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	zlog "github.com/rs/zerolog/log"

	"github.com/baechuer/content-platform/internal/bootstrap"
	"github.com/baechuer/content-platform/internal/config"
	"github.com/baechuer/content-platform/internal/logger"
	sharedh "github.com/baechuer/content-platform/internal/transport/http/handlers"
	"github.com/baechuer/content-platform/services/post-service/internal/application/post"
	"github.com/baechuer/content-platform/services/post-service/internal/infrastructure/db/postgres"
	"github.com/baechuer/content-platform/services/post-service/internal/transport/http/handlers"
	"github.com/baechuer/content-platform/services/post-service/internal/transport/http/router"
)

type sysClock struct{}

func (sysClock) Now() time.Time { return time.Now().UTC() }

func main() {
	logger.Init(config.ServicePost)

	cfg, err := config.Load(config.ServicePost)
	if err != nil {
		zlog.Fatal().Err(err).Msg("config load failed")
	}

	ctx := context.Background()
	shutdownTracing := bootstrap.Tracing(ctx, cfg)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal().Err(err).Msg("db open failed")
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		zlog.Fatal().Err(err).Msg("db ping failed")
	}

	rc := bootstrap.Cache(cfg)

	broker, err := bootstrap.Broker(ctx, cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("broker unavailable, refusing to start")
	}

	svc := post.New(
		postgres.New(db),
		sysClock{},
		broker,
		bootstrap.Store(rc),
		cfg.CacheTTLPost,
		cfg.CacheTTLPostList,
	)

	health := sharedh.NewHealthHandler(map[string]sharedh.Check{
		"postgres": db.PingContext,
		"redis":    bootstrap.CacheCheck(rc),
		"rabbitmq": bootstrap.BrokerCheck(broker),
	})

	srv := bootstrap.NewServer(cfg, router.New(handlers.NewPostsHandler(svc), health, cfg))

	err = bootstrap.Serve(cfg, srv, broker,
		bootstrap.CacheCloser(rc),
		bootstrap.Closer{Name: "postgres", Close: func(context.Context) error { return db.Close() }},
		bootstrap.Closer{Name: "tracing", Close: shutdownTracing},
	)
	if err != nil {
		zlog.Fatal().Err(err).Msg("post-service stopped")
	}
	zlog.Info().Msg("post-service stopped")
}
