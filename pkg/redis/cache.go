// Пакет redis реализует Storage поверх go-redis с ретраями и метриками.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/backoff"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

var (
	redisMetrics = struct {
		SetErrors        prometheus.Counter
		OperationLatency *prometheus.HistogramVec
	}{
		SetErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "venue", Subsystem: "redis", Name: "set_errors_total",
			Help: "Total number of errors on Redis SET",
		}),
		OperationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "venue", Subsystem: "redis", Name: "operation_latency_seconds",
			Help:    "Latency of Redis operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	registerOnce sync.Once

	tracer = otel.Tracer("redis-storage")
)

// RegisterMetrics регистрирует метрики Redis (nil → DefaultRegisterer).
func RegisterMetrics(r prometheus.Registerer) {
	registerOnce.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		r.MustRegister(redisMetrics.SetErrors, redisMetrics.OperationLatency)
	})
}

// Config хранит параметры подключения к Redis.
type Config struct {
	URL     string         `mapstructure:"url"` // e.g. "redis://host:6379/0"
	TTL     time.Duration  `mapstructure:"ttl"` // default: 1m
	Backoff backoff.Config `mapstructure:"backoff"`
}

func (c *Config) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = time.Minute
	}
}

func (c *Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("redis: URL required")
	}
	return nil
}

type redisStorage struct {
	client     *redis.Client
	ttl        time.Duration
	log        *logger.Logger
	backoffCfg backoff.Config
}

// New создает Storage и проверяет соединение с retry.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Storage, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("redis")

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse URL: %w", err)
	}
	client := redis.NewClient(opts)

	op := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	ctxConn, span := tracer.Start(ctx, "Connect", trace.WithAttributes(attribute.String("addr", opts.Addr)))
	if err := backoff.Execute(ctxConn, "redis-connect", cfg.Backoff, log, op); err != nil {
		span.RecordError(err)
		span.End()
		_ = client.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	span.End()
	log.Info("redis: connected", zap.String("addr", opts.Addr))

	return &redisStorage{
		client:     client,
		ttl:        cfg.TTL,
		log:        log,
		backoffCfg: cfg.Backoff,
	}, nil
}

func (r *redisStorage) Set(ctx context.Context, key string, value []byte) error {
	ctxOp, span := tracer.Start(ctx, "Set", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()
	start := time.Now()

	op := func(ctx context.Context) error {
		return r.client.Set(ctx, key, value, r.ttl).Err()
	}
	err := backoff.Execute(ctxOp, "redis-set", r.backoffCfg, r.log, op)
	redisMetrics.OperationLatency.WithLabelValues("set").Observe(time.Since(start).Seconds())
	if err != nil {
		redisMetrics.SetErrors.Inc()
		span.RecordError(err)
		r.log.WithContext(ctx).Error("redis SET failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (r *redisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.log.Error("redis close failed", zap.Error(err))
		return err
	}
	r.log.Info("redis: closed")
	return nil
}
