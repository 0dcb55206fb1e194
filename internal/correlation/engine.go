// Package correlation сопоставляет запросы и ответы в одном дуплексном
// канале и выдерживает темп исходящих сообщений.
//
// Engine и Pacer не синхронизированы: все вызовы должны идти из одной
// горутины (см. internal/loop).
package correlation

import (
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/protocol"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

// Outbound принимает конверты на отправку (обычно *Pacer).
type Outbound interface {
	Enqueue(env protocol.Envelope)
}

// Engine назначает messageId, хранит ожидающие запросы и завершает их
// по ответам или при разрыве соединения.
type Engine struct {
	out Outbound
	log *logger.Logger

	nextID    int64
	pending   map[int64]*Handle
	connected bool
}

func NewEngine(out Outbound, log *logger.Logger) *Engine {
	return &Engine{
		out:     out,
		log:     log.Named("correlation"),
		nextID:  1,
		pending: make(map[int64]*Handle),
	}
}

// Submit назначает запросу следующий id, регистрирует его и передаёт
// в очередь отправки. Не блокирует. Без соединения handle отклоняется
// сразу с причиной "cancellation": ответа на такой запрос не будет.
func (e *Engine) Submit(env protocol.Envelope) *Handle {
	id := e.nextID
	e.nextID++

	msg := env.Clone()
	msg.SetMessageID(id)

	h := newHandle(id)
	metrics.RequestsSubmitted.Inc()
	if !e.connected {
		e.log.Debug("request cancelled: not connected", zap.Int64("message_id", id))
		e.cancel(h)
		return h
	}
	e.pending[id] = h
	metrics.PendingRequests.Set(float64(len(e.pending)))

	mti, _ := msg.MessageType()
	e.log.Debug("request submitted", zap.Int64("message_id", id), zap.Int("mti", mti))

	e.out.Enqueue(msg)
	return h
}

// HandleInbound завершает запрос, если конверт является ответом на него.
// false: сообщение незапрошенное и должно быть маршрутизировано дальше.
func (e *Engine) HandleInbound(env protocol.Envelope) bool {
	resp, ok := protocol.AsResponse(env)
	if !ok {
		return false
	}
	h, ok := e.pending[resp.ID]
	if !ok {
		return false
	}
	delete(e.pending, resp.ID)
	metrics.PendingRequests.Set(float64(len(e.pending)))

	if resp.OK() {
		metrics.RequestsSettled.WithLabelValues("ok").Inc()
		h.resolve(resp.Payload)
		return true
	}

	reason := protocol.Reason(resp.ResultCode)
	metrics.RequestsSettled.WithLabelValues("rejected").Inc()
	e.log.Debug("request rejected",
		zap.Int64("message_id", resp.ID),
		zap.Int("result_code", resp.ResultCode),
		zap.String("reason", reason),
	)
	h.reject(&RejectError{Code: resp.ResultCode, Reason: reason, Payload: resp.Payload})
	return true
}

// HandleSendFailure отклоняет запрос, чей конверт транспорт не принял.
// Конверты без messageId или уже завершённые игнорируются.
func (e *Engine) HandleSendFailure(env protocol.Envelope, err error) {
	id, ok := env.MessageID()
	if !ok {
		return
	}
	h, ok := e.pending[id]
	if !ok {
		return
	}
	delete(e.pending, id)
	metrics.PendingRequests.Set(float64(len(e.pending)))

	e.log.Info("request cancelled: send failed", zap.Int64("message_id", id), zap.Error(err))
	e.cancel(h)
}

func (e *Engine) OnConnected() {
	e.connected = true
}

// OnDisconnected отклоняет все ожидающие запросы с причиной "cancellation"
// и пустым payload.
func (e *Engine) OnDisconnected(reason string) {
	e.connected = false
	if len(e.pending) == 0 {
		return
	}

	pending := e.pending
	e.pending = make(map[int64]*Handle)
	metrics.PendingRequests.Set(0)

	e.log.Info("cancelling pending requests",
		zap.Int("count", len(pending)),
		zap.String("reason", reason),
	)
	for _, h := range pending {
		e.cancel(h)
	}
}

func (e *Engine) cancel(h *Handle) {
	metrics.RequestsSettled.WithLabelValues("cancelled").Inc()
	h.reject(&RejectError{Reason: protocol.ReasonCancellation, Payload: protocol.Envelope{}})
}

func (e *Engine) Connected() bool { return e.connected }

// Pending — число запросов без ответа.
func (e *Engine) Pending() int { return len(e.pending) }
