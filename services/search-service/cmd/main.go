package main

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/baechuer/content-platform/internal/bootstrap"
	"github.com/baechuer/content-platform/internal/config"
	"github.com/baechuer/content-platform/internal/logger"
	sharedh "github.com/baechuer/content-platform/internal/transport/http/handlers"
	"github.com/baechuer/content-platform/services/search-service/internal/handler"
	"github.com/baechuer/content-platform/services/search-service/internal/index"
	"github.com/baechuer/content-platform/services/search-service/internal/indexer"
	"github.com/baechuer/content-platform/services/search-service/internal/router"
)

func main() {
	logger.Init(config.ServiceSearch)

	cfg, err := config.Load(config.ServiceSearch)
	if err != nil {
		zlog.Fatal().Err(err).Msg("config load failed")
	}

	ctx := context.Background()
	shutdownTracing := bootstrap.Tracing(ctx, cfg)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		zlog.Fatal().Err(err).Msg("mongo connect failed")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = client.Ping(pingCtx, readpref.Primary())
	cancel()
	if err != nil {
		zlog.Fatal().Err(err).Msg("mongo not reachable")
	}

	postIndex := index.NewPostIndex(client.Database(cfg.MongoDB).Collection(index.CollectionName))
	if err := postIndex.EnsureIndexes(ctx); err != nil {
		zlog.Warn().Err(err).Msg("ensure indexes failed")
	}

	rc := bootstrap.Cache(cfg)
	store := bootstrap.Store(rc)

	broker, err := bootstrap.Broker(ctx, cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("broker unavailable, refusing to start")
	}
	if err := broker.Subscribe(indexer.BindingKey, indexer.New(postIndex, store).Handle); err != nil {
		zlog.Fatal().Err(err).Str("binding_key", indexer.BindingKey).Msg("subscribe failed")
	}

	health := sharedh.NewHealthHandler(map[string]sharedh.Check{
		"mongodb":  func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
		"redis":    bootstrap.CacheCheck(rc),
		"rabbitmq": bootstrap.BrokerCheck(broker),
	})
	srv := bootstrap.NewServer(cfg, router.New(handler.NewSearchHandler(postIndex, store, cfg.CacheTTLSearch), health, cfg))

	err = bootstrap.Serve(cfg, srv, broker,
		bootstrap.CacheCloser(rc),
		bootstrap.Closer{Name: "mongodb", Close: client.Disconnect},
		bootstrap.Closer{Name: "tracing", Close: shutdownTracing},
	)
	if err != nil {
		zlog.Fatal().Err(err).Msg("search-service stopped")
	}
	zlog.Info().Msg("search-service stopped")
}
