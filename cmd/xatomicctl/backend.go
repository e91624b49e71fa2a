//go:build !windows

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/omeyang/xatomic/pkg/distributed/xdlock"
	"github.com/omeyang/xatomic/pkg/observability/xlog"
	"github.com/omeyang/xatomic/pkg/observability/xmetrics"
)

// newLogger 按配置创建日志器，返回的 cleanup 关闭日志文件。
func newLogger(cfg LogConfig, stderr io.Writer) (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().
		SetOutput(stderr).
		SetLevelString(cfg.Level).
		SetFormat(cfg.Format)
	if cfg.File != "" {
		b.SetRotation(cfg.File)
	}
	return b.Build()
}

// newObserver 启用 trace 时创建输出到 w 的 TracerProvider，
// 返回的 shutdown 刷新并关闭它。未启用时返回 NoopObserver。
func newObserver(enabled bool, w io.Writer) (xmetrics.Observer, func(context.Context) error, error) {
	if !enabled {
		return xmetrics.NoopObserver{}, func(context.Context) error { return nil }, nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	observer, err := xmetrics.NewOTelObserver(xmetrics.WithTracerProvider(tp))
	if err != nil {
		return nil, nil, errors.Join(err, tp.Shutdown(context.Background()))
	}
	return observer, tp.Shutdown, nil
}

// newFactory 按配置创建锁工厂，返回的 cleanup 关闭后端连接。
func newFactory(ctx context.Context, cfg *Config, logger xlog.Logger) (xdlock.Factory, func() error, error) {
	var (
		factory xdlock.Factory
		cleanup func() error
		err     error
	)
	switch cfg.Backend {
	case backendRedis:
		factory, cleanup, err = newRedisFactory(cfg.Redis)
	case backendEtcd:
		factory, cleanup, err = newEtcdFactory(ctx, cfg.Etcd)
	case backendLocal:
		factory = xdlock.NewLocalFactory()
		cleanup = func() error { return factory.Close(context.Background()) }
	default:
		return nil, nil, &usageError{msg: "unknown backend " + cfg.Backend}
	}
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Breaker.Enabled {
		return factory, cleanup, nil
	}
	breaker, err := xdlock.WithBreaker(factory,
		xdlock.WithBreakerName(cfg.Backend),
		xdlock.WithBreakerFailures(cfg.Breaker.Failures),
		xdlock.WithBreakerTimeout(cfg.Breaker.Timeout),
		xdlock.WithBreakerStateChange(func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "lock backend breaker state changed",
				slog.String("backend", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		}),
	)
	if err != nil {
		return nil, nil, errors.Join(err, cleanup())
	}
	return breaker, cleanup, nil
}

func newRedisFactory(cfg RedisConfig) (xdlock.Factory, func() error, error) {
	clients := make([]redis.UniversalClient, 0, len(cfg.Addrs))
	for _, addr := range cfg.Addrs {
		clients = append(clients, redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}))
	}
	cleanup := func() error {
		var errs []error
		for _, c := range clients {
			errs = append(errs, c.Close())
		}
		return errors.Join(errs...)
	}

	factory, err := xdlock.NewRedisFactory(clients...)
	if err != nil {
		return nil, nil, errors.Join(err, cleanup())
	}
	return factory, cleanup, nil
}

func newEtcdFactory(ctx context.Context, cfg EtcdConfig) (xdlock.Factory, func() error, error) {
	factory, client, err := xdlock.NewEtcdFactoryFromConfig(&cfg.EtcdConfig,
		[]xdlock.EtcdClientOption{
			xdlock.WithEtcdClientContext(ctx),
			xdlock.WithEtcdHealthCheck(true, cfg.DialTimeout),
		},
		xdlock.WithEtcdTTL(cfg.TTL),
	)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error {
		return errors.Join(factory.Close(context.Background()), client.Close())
	}
	return factory, cleanup, nil
}
