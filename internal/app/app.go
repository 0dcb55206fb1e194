package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/client"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/clock"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/config"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/loop"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/marketdata"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/sink"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/transport/ws"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/backoff"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/httpserver"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/kafka"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/redis"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/telemetry"
)

// ErrDisconnected — сессия потеряла соединение; перезапуск остаётся
// за супервизором процесса.
var ErrDisconnected = errors.New("venue session disconnected")

func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	registerMetrics(prometheus.DefaultRegisterer)

	ctx = logger.ContextWithSessionID(ctx, uuid.NewString())
	log = log.WithContext(ctx)

	// Трассировка
	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Insecure:       cfg.Telemetry.Insecure,
		SamplerRatio:   cfg.Telemetry.SamplerRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownSafe("telemetry", func() error { return shutdownTracer(context.Background()) }, log)

	// Sink'и
	var (
		sinks  []sink.Sink
		checks []func(context.Context) error
	)
	if cfg.Kafka.Enabled {
		prod, err := kafka.New(ctx, cfg.Kafka.Config, log)
		if err != nil {
			return fmt.Errorf("kafka producer init: %w", err)
		}
		defer shutdownSafe("kafka-producer", prod.Close, log)
		sinks = append(sinks, sink.NewKafka(prod, cfg.Kafka.Topic))
		checks = append(checks, prod.Ping)
	}
	if cfg.Redis.Enabled {
		store, err := redis.New(ctx, cfg.Redis.Config, log)
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		defer shutdownSafe("redis", store.Close, log)
		sinks = append(sinks, sink.NewRedis(store, cfg.Redis.KeyPrefix))
		checks = append(checks, store.Ping)
	}

	// Сессия
	lp := loop.New(clock.Real{}, log)
	newTransport := func(h ws.Handler) (client.Transport, error) {
		tr, err := ws.New(cfg.Price.WS, h, log)
		if err != nil {
			return nil, err
		}
		return tr, nil
	}
	cl, err := client.New(lp, newTransport, cfg.Price.Session, log)
	if err != nil {
		return fmt.Errorf("client init: %w", err)
	}

	var dispatcher *sink.Dispatcher
	if len(sinks) > 0 {
		dispatcher = sink.NewDispatcher(cfg.SinkBuffer, log, sinks...)
		cl.ObservePrices(dispatcher.Observe)
	}

	// HTTP-сервер
	readiness := func() error {
		ok, err := cl.Connected(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("venue: not connected")
		}
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	httpSrv, err := httpserver.New(cfg.HTTP, readiness, nil, log)
	if err != nil {
		return fmt.Errorf("httpserver init: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return lp.Run(ctx) })
	g.Go(func() error { return httpSrv.Start(ctx) })
	if dispatcher != nil {
		g.Go(func() error { return dispatcher.Run(ctx) })
	}
	g.Go(func() error { return runSession(ctx, cl, cfg, log) })

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("venue-client stopped by context")
			return nil
		}
		return err
	}
	return nil
}

// runSession подключается, авторизуется, подписывается на инструменты
// из конфигурации и держит сессию до отмены ctx или разрыва.
func runSession(ctx context.Context, cl *client.Client, cfg *config.Config, log *logger.Logger) error {
	lost := make(chan string, 1)
	cl.OnDisconnected(func(reason string) {
		select {
		case lost <- reason:
		default:
		}
	})
	cl.OnError(func(err error) {
		log.Warn("session error", zap.Error(err))
	})
	defer shutdownSafe("venue-session", cl.Close, log)

	if err := cl.Connect(ctx, ""); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	log.Info("venue session connected", zap.String("url", cfg.Price.WS.URL))

	price := client.NewPriceAPI(cl)
	if cfg.Price.UserID > 0 {
		if _, err := price.Login(ctx, cfg.Price.UserID); err != nil {
			return fmt.Errorf("price login: %w", err)
		}
		if cfg.Price.Account != "" {
			h, err := price.ChangeAccount(ctx, cfg.Price.Account)
			if err != nil {
				return fmt.Errorf("change account: %w", err)
			}
			if _, err := h.Wait(ctx); err != nil {
				return fmt.Errorf("change account: %w", err)
			}
		}
	}

	for i, ins := range cfg.Instruments {
		class, err := ins.AssetClass()
		if err != nil {
			return err
		}
		id := ins.ID
		price.Subscribe(id, class, i, "app", func(rec marketdata.Instrument) {
			log.Debug("price update",
				zap.Int64("instrument_id", id),
				zap.Int("stream_type", int(rec.Stream())),
			)
		})
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case reason := <-lost:
		log.Warn("venue session lost", zap.String("reason", reason))
		return fmt.Errorf("%w: %s", ErrDisconnected, reason)
	}
}

func registerMetrics(r prometheus.Registerer) {
	metrics.Register(r)
	backoff.RegisterMetrics(r)
	kafka.RegisterMetrics(r)
	redis.RegisterMetrics(r)
	httpserver.RegisterMetrics(r)
}

// shutdownSafe оборачивает вызов Close()/Shutdown() с логированием
func shutdownSafe(name string, fn func() error, log *logger.Logger) {
	log.Info(fmt.Sprintf("%s: shutting down", name))
	if err := fn(); err != nil {
		log.Error(fmt.Sprintf("%s shutdown error", name), zap.Error(err))
	} else {
		log.Info(fmt.Sprintf("%s: shutdown complete", name))
	}
}
