// Package bootstrap wires the pieces every service main needs: broker
// client, cache, tracing, the HTTP server and an ordered shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/baechuer/content-platform/internal/cache"
	"github.com/baechuer/content-platform/internal/config"
	"github.com/baechuer/content-platform/internal/infrastructure/caching/redis"
	"github.com/baechuer/content-platform/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/content-platform/internal/logger"
	"github.com/baechuer/content-platform/internal/tracing"
	"github.com/baechuer/content-platform/internal/transport/http/handlers"
)

// BrokerOptions maps the service config onto broker client options.
func BrokerOptions(cfg *config.Config) rabbitmq.Options {
	return rabbitmq.Options{
		URL:         cfg.RabbitURL,
		Exchange:    cfg.RabbitExchange,
		Service:     cfg.Service,
		Prefetch:    cfg.RabbitPrefetch,
		DialTimeout: cfg.RabbitDialTimeout,
		MaxAttempts: cfg.RabbitMaxAttempts,
		Failure:     rabbitmq.FailurePolicy(cfg.RabbitFailure),
		BackoffMin:  cfg.RabbitBackoffMin,
		BackoffMax:  cfg.RabbitBackoffMax,
		Logger:      logger.Component("rabbitmq"),
	}
}

// Broker connects the broker client. A failure here must stop the process.
func Broker(ctx context.Context, cfg *config.Config) (*rabbitmq.Client, error) {
	c := rabbitmq.NewClient(BrokerOptions(cfg))
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("broker connect: %w", err)
	}
	return c, nil
}

// Cache returns the redis client, or nil when redis is unreachable: reads then
// go straight to the authoritative store.
func Cache(cfg *config.Config) *redis.Client {
	c, err := redis.New(cfg.RedisURL)
	if err != nil {
		zlog.Warn().Err(err).Msg("redis unavailable, caching disabled")
		return nil
	}
	return c
}

// Store adapts the optional redis client to cache.Store, keeping a missing
// client a nil interface.
func Store(c *redis.Client) cache.Store {
	if c == nil {
		return nil
	}
	return c
}

// CacheCheck reports redis health. A disabled cache is not a readiness
// failure.
func CacheCheck(c *redis.Client) handlers.Check {
	return func(ctx context.Context) error {
		if c == nil {
			return nil
		}
		return c.Ping(ctx)
	}
}

// CacheCloser closes the optional redis client.
func CacheCloser(c *redis.Client) Closer {
	return Closer{Name: "redis", Close: func(context.Context) error {
		if c == nil {
			return nil
		}
		return c.Close()
	}}
}

func Tracing(ctx context.Context, cfg *config.Config) func(context.Context) error {
	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  cfg.Service,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSampleRatio,
	})
	if err != nil {
		zlog.Warn().Err(err).Msg("tracing setup failed, continuing without export")
		return func(context.Context) error { return nil }
	}
	return shutdown
}

// BrokerCheck reports the broker client as ready only while it can publish.
func BrokerCheck(c *rabbitmq.Client) handlers.Check {
	return func(context.Context) error {
		if !c.Ready() {
			return fmt.Errorf("state=%s", c.State())
		}
		return nil
	}
}

func NewServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      h,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}
}

// Closer is one shutdown step.
type Closer struct {
	Name  string
	Close func(ctx context.Context) error
}

// Serve runs the HTTP server and the broker supervisor until SIGINT/SIGTERM
// or a fatal broker error, then runs closers in order within the grace
// period. The HTTP server is always stopped first.
func Serve(cfg *config.Config, srv *http.Server, broker *rabbitmq.Client, closers ...Closer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)

	go func() {
		zlog.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := broker.Run(ctx); err != nil {
			errCh <- fmt.Errorf("broker supervisor: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		zlog.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		zlog.Error().Err(runErr).Msg("fatal error, shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	steps := append([]Closer{
		{Name: "http", Close: srv.Shutdown},
		{Name: "broker", Close: broker.Close},
	}, closers...)

	for _, s := range steps {
		start := time.Now()
		if err := s.Close(sctx); err != nil {
			zlog.Warn().Err(err).Str("step", s.Name).Msg("shutdown step failed")
			continue
		}
		zlog.Info().Str("step", s.Name).Dur("took", time.Since(start)).Msg("shutdown step done")
	}
	return runErr
}
