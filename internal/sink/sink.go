// Пакет sink выносит обновления цен из event loop во внешние хранилища.
// Observe не блокирует вызывающего: при переполнении буфера обновление
// отбрасывается и учитывается в метриках.
package sink

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/marketdata"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/subscription"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

var tracer = otel.Tracer("venue-client/sink")

// Update — одно обновление цены, готовое к публикации.
type Update struct {
	Instrument marketdata.Instrument  `json:"record"`
	Price      subscription.LivePrice `json:"price"`
	ReceivedAt time.Time              `json:"receivedAt"`
}

// Sink определяет контракт на запись обновления во внешнее хранилище.
type Sink interface {
	Name() string
	Write(ctx context.Context, u Update) error
}

// Dispatcher буферизует обновления и раздаёт их всем sink'ам
// в отдельной горутине.
type Dispatcher struct {
	in    chan Update
	sinks []Sink
	now   func() time.Time
	log   *logger.Logger
}

// NewDispatcher создает диспетчер с буфером на size обновлений.
func NewDispatcher(size int, log *logger.Logger, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = 1024
	}
	return &Dispatcher{
		in:    make(chan Update, size),
		sinks: sinks,
		now:   time.Now,
		log:   log.Named("sink"),
	}
}

// Observe подходит в качестве subscription.Observer.
func (d *Dispatcher) Observe(ins marketdata.Instrument, lp subscription.LivePrice) {
	select {
	case d.in <- Update{Instrument: ins, Price: lp, ReceivedAt: d.now()}:
	default:
		metrics.SinkDropped.Inc()
		d.log.Warn("sink: buffer full, dropping update",
			zap.Int64("instrument_id", ins.InstrumentID()))
	}
}

// Run раздаёт обновления до отмены ctx. Ошибки sink'ов не прерывают цикл.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-d.in:
			d.write(ctx, u)
		}
	}
}

func (d *Dispatcher) write(ctx context.Context, u Update) {
	ctx, span := tracer.Start(ctx, "Dispatch")
	defer span.End()

	for _, s := range d.sinks {
		if err := s.Write(ctx, u); err != nil {
			metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			span.RecordError(err)
			d.log.WithContext(ctx).Error("sink write failed",
				zap.String("sink", s.Name()),
				zap.Int64("instrument_id", u.Instrument.InstrumentID()),
				zap.Error(err),
			)
		}
	}
}
