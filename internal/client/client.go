// Package client собирает сессию площадки: транспорт, корреляцию запросов,
// очередь отправки, декодер цен и мультиплексор подписок в одном цикле.
package client

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/correlation"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/loop"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/marketdata"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/protocol"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/subscription"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/transport/ws"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

var tracer = otel.Tracer("client")

// Transport — канал до площадки. События отдаются через ws.Handler,
// переданный в фабрику.
type Transport interface {
	Open(ctx context.Context, address string) error
	Send(payload []byte) error
	Close() error
}

// TransportFactory создаёт транспорт, который сообщает события в h.
type TransportFactory func(h ws.Handler) (Transport, error)

// Config — параметры сессии.
type Config struct {
	Pacing       correlation.PacerConfig `mapstructure:"pacing"`
	Subscription subscription.Config     `mapstructure:"subscription"`
}

// Client — одна сессия с площадкой. Все методы безопасны для вызова
// из любых горутин; колбэки выполняются в цикле сессии.
type Client struct {
	lp  *loop.Loop
	tr  Transport
	log *logger.Logger

	engine  *correlation.Engine
	pacer   *correlation.Pacer
	mux     *subscription.Multiplexer
	decoder *marketdata.Decoder

	// доступны только из цикла
	onConnected    []func()
	onDisconnected []func(reason string)
	onError        []func(err error)
	onPush         map[int][]func(protocol.Envelope)
}

// New создаёт клиента. Цикл lp должен быть запущен вызывающим (lp.Run).
func New(lp *loop.Loop, newTransport TransportFactory, cfg Config, log *logger.Logger) (*Client, error) {
	c := &Client{
		lp:      lp,
		log:     log.Named("client"),
		decoder: marketdata.NewDecoder(lp.Now),
		onPush:  make(map[int][]func(protocol.Envelope)),
	}

	tr, err := newTransport(ws.Handler{
		OnConnected:    func() { lp.Post(c.handleConnected) },
		OnDisconnected: func(reason string) { lp.Post(func() { c.handleDisconnected(reason) }) },
		OnMessage:      func(text []byte) { lp.Post(func() { c.handleMessage(text) }) },
		OnError:        func(err error) { lp.Post(func() { c.emitError(err) }) },
	})
	if err != nil {
		return nil, fmt.Errorf("client: transport: %w", err)
	}
	c.tr = tr

	c.pacer = correlation.NewPacer(lp, tr.Send, cfg.Pacing, log)
	c.engine = correlation.NewEngine(c.pacer, log)
	c.pacer.OnSendFailed(c.engine.HandleSendFailure)
	c.mux = subscription.New(lp, c.pacer, cfg.Subscription, log)
	return c, nil
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Connect открывает транспорт (пустой address → адрес из конфигурации).
func (c *Client) Connect(ctx context.Context, address string) error {
	return c.tr.Open(ctx, address)
}

// Close закрывает транспорт и сбрасывает подписки и кеш цен.
func (c *Client) Close() error {
	err := c.tr.Close()
	c.lp.Post(c.mux.Reset)
	return err
}

// Connected сообщает состояние с точки зрения движка корреляции.
func (c *Client) Connected(ctx context.Context) (bool, error) {
	var ok bool
	err := c.lp.Call(ctx, func() { ok = c.engine.Connected() })
	return ok, err
}

// -----------------------------------------------------------------------------
// Requests
// -----------------------------------------------------------------------------

// Submit отправляет запрос и возвращает handle без ожидания ответа.
func (c *Client) Submit(ctx context.Context, env protocol.Envelope) (*correlation.Handle, error) {
	var h *correlation.Handle
	if err := c.lp.Call(ctx, func() { h = c.engine.Submit(env) }); err != nil {
		return nil, err
	}
	return h, nil
}

// Request отправляет запрос и ждёт ответ. Отказ возвращается как *correlation.RejectError.
func (c *Client) Request(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error) {
	mti, _ := env.MessageType()
	ctx, span := tracer.Start(ctx, "Request", trace.WithAttributes(attribute.Int("mti", mti)))
	defer span.End()

	h, err := c.Submit(ctx, env)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	resp, err := h.Wait(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return resp, err
}

// Send ставит сообщение в очередь отправки без корреляции.
func (c *Client) Send(env protocol.Envelope) {
	c.lp.Post(func() { c.pacer.Enqueue(env) })
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

func (c *Client) Subscribe(instrumentID int64, class subscription.AssetClass, callbackID int, owner string, cb subscription.Callback) {
	c.lp.Post(func() { c.mux.Subscribe(instrumentID, class, callbackID, owner, cb) })
}

func (c *Client) Unsubscribe(instrumentID int64, callbackID int, owner string) {
	c.lp.Post(func() { c.mux.Unsubscribe(instrumentID, callbackID, owner) })
}

// Resubscribe повторно отправляет подписки на все инструменты с подписчиками.
func (c *Client) Resubscribe() {
	c.lp.Post(c.mux.Resubscribe)
}

// Snapshot возвращает кеш цены инструмента.
func (c *Client) Snapshot(ctx context.Context, instrumentID int64) (subscription.LivePrice, bool, error) {
	var (
		lp subscription.LivePrice
		ok bool
	)
	err := c.lp.Call(ctx, func() { lp, ok = c.mux.Snapshot(instrumentID) })
	return lp, ok, err
}

// ObservePrices подключает наблюдателя всех обновлений цен (для sink'ов).
func (c *Client) ObservePrices(o subscription.Observer) {
	c.lp.Post(func() { c.mux.SetObserver(o) })
}

// -----------------------------------------------------------------------------
// Event registration
// -----------------------------------------------------------------------------

func (c *Client) OnConnected(fn func()) {
	c.lp.Post(func() { c.onConnected = append(c.onConnected, fn) })
}

func (c *Client) OnDisconnected(fn func(reason string)) {
	c.lp.Post(func() { c.onDisconnected = append(c.onDisconnected, fn) })
}

func (c *Client) OnError(fn func(err error)) {
	c.lp.Post(func() { c.onError = append(c.onError, fn) })
}

// OnPush подписывает fn на незапрошенные сообщения с данным MTI.
func (c *Client) OnPush(mti int, fn func(protocol.Envelope)) {
	c.lp.Post(func() { c.onPush[mti] = append(c.onPush[mti], fn) })
}

// -----------------------------------------------------------------------------
// Loop-side handlers
// -----------------------------------------------------------------------------

func (c *Client) handleConnected() {
	c.engine.OnConnected()
	for _, fn := range c.onConnected {
		fn()
	}
}

func (c *Client) handleDisconnected(reason string) {
	c.engine.OnDisconnected(reason)
	for _, fn := range c.onDisconnected {
		fn(reason)
	}
}

func (c *Client) emitError(err error) {
	for _, fn := range c.onError {
		fn(err)
	}
}

func (c *Client) handleMessage(text []byte) {
	env, err := protocol.Unmarshal(text)
	if err != nil {
		c.log.Warn("malformed message", zap.Error(err), zap.Int("bytes", len(text)))
		c.emitError(err)
		return
	}
	if c.engine.HandleInbound(env) {
		return
	}

	msg, err := protocol.Decode(env)
	if err != nil {
		c.log.Debug("unroutable message", zap.Error(err))
		c.emitError(err)
		return
	}
	if ps, ok := msg.(*protocol.PriceStream); ok {
		c.handlePrices(ps)
	}
	for _, fn := range c.onPush[msg.MTI()] {
		fn(env)
	}
}

func (c *Client) handlePrices(ps *protocol.PriceStream) {
	_, span := tracer.Start(context.Background(), "DecodePrices",
		trace.WithAttributes(
			attribute.Int("mti", ps.Type),
			attribute.Bool("binary", ps.HasBinary()),
		))
	defer span.End()

	var (
		updates []marketdata.Instrument
		err     error
	)
	if ps.HasBinary() {
		updates, err = c.decoder.Decode(ps.NetData)
	} else {
		updates, err = marketdata.DecodeList(ps.List)
	}
	if err != nil {
		metrics.DecodeErrors.Inc()
		span.RecordError(err)

		var de *marketdata.DecodeError
		if errors.As(err, &de) {
			c.log.Warn("price buffer rejected", zap.Int("offset", de.Offset), zap.Error(de.Err))
		} else {
			c.log.Warn("price list rejected", zap.Error(err))
		}
		c.emitError(err)
		return
	}

	span.SetAttributes(attribute.Int("instruments", len(updates)))
	for _, ins := range updates {
		metrics.InstrumentsDecoded.WithLabelValues(kindOf(ins)).Inc()
		c.mux.Update(ins)
	}
}

func kindOf(ins marketdata.Instrument) string {
	if ins.Stream().IsCFD() {
		return "cfd"
	}
	return "fx"
}
