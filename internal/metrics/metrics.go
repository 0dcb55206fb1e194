package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// RequestsSubmitted считает запросы, отправленные через Submit.
	RequestsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "venue",
		Subsystem: "correlation",
		Name:      "requests_submitted_total",
		Help:      "Total number of correlated requests submitted",
	})

	// RequestsSettled считает завершённые запросы по исходу (ok, rejected, cancelled).
	RequestsSettled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "venue",
		Subsystem: "correlation",
		Name:      "requests_settled_total",
		Help:      "Total number of settled requests by outcome",
	}, []string{"outcome"})

	PendingRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "venue",
		Subsystem: "correlation",
		Name:      "pending_requests",
		Help:      "Number of requests awaiting a response",
	})

	OutboundSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "venue",
		Subsystem: "pacer",
		Name:      "messages_sent_total",
		Help:      "Total number of outbound messages written to the transport",
	})

	// OutboundFailed: сообщения, которые не удалось записать в транспорт.
	OutboundFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "venue",
		Subsystem: "pacer",
		Name:      "messages_failed_total",
		Help:      "Total number of outbound messages the transport failed to write",
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "venue",
		Subsystem: "pacer",
		Name:      "queue_depth",
		Help:      "Number of outbound messages waiting to be sent",
	})

	// DecodeErrors считает отклонённые буферы цен.
	DecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "venue",
		Subsystem: "marketdata",
		Name:      "decode_errors_total",
		Help:      "Total number of price buffers that failed to decode",
	})

	InstrumentsDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "venue",
		Subsystem: "marketdata",
		Name:      "instruments_decoded_total",
		Help:      "Total number of decoded instrument updates by kind",
	}, []string{"kind"})

	// SubscriptionBatches считает пакеты подписки/отписки по виду и классу актива.
	SubscriptionBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "venue",
		Subsystem: "subscription",
		Name:      "batches_total",
		Help:      "Total number of subscribe/unsubscribe batches by kind and asset class",
	}, []string{"kind", "class"})

	CallbacksInvoked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "venue",
		Subsystem: "subscription",
		Name:      "callbacks_invoked_total",
		Help:      "Total number of subscriber callbacks invoked",
	})

	Connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "venue",
		Subsystem: "ws",
		Name:      "connected",
		Help:      "1 while the venue WebSocket is connected",
	})

	SinkDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "venue",
		Subsystem: "sink",
		Name:      "dropped_total",
		Help:      "Price updates dropped because the sink buffer was full",
	})

	// SinkErrors: ошибки записи во внешние хранилища (kafka, redis).
	SinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "venue",
		Subsystem: "sink",
		Name:      "errors_total",
		Help:      "Total number of sink publish errors",
	}, []string{"sink"})
)

// Register регистрирует все метрики в заданном реестре.
// Можно вызвать без аргументов, чтобы зарегистрировать в DefaultRegisterer.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		var reg prometheus.Registerer
		if len(registerers) > 0 && registerers[0] != nil {
			reg = registerers[0]
		} else {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			RequestsSubmitted,
			RequestsSettled,
			PendingRequests,
			OutboundSent,
			OutboundFailed,
			QueueDepth,
			DecodeErrors,
			InstrumentsDecoded,
			SubscriptionBatches,
			CallbacksInvoked,
			Connected,
			SinkErrors,
			SinkDropped,
		)
	})
}
