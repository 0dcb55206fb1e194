package correlation

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/clock"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/protocol"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

// PacerConfig — задержки отправки.
type PacerConfig struct {
	// InitialDelay — задержка первого сообщения после простоя.
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	// Interval — пауза между сообщениями, пока очередь не пуста.
	Interval time.Duration `mapstructure:"interval"`
}

func (c *PacerConfig) applyDefaults() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 200 * time.Millisecond
	}
	if c.Interval <= 0 {
		c.Interval = 100 * time.Millisecond
	}
}

// SendFunc записывает сериализованное сообщение в транспорт.
type SendFunc func(payload []byte) error

// FailFunc получает конверт, который не удалось отправить.
type FailFunc func(env protocol.Envelope, err error)

// Pacer — FIFO исходящих сообщений с ограничением темпа:
// первое после простоя через InitialDelay, далее по одному раз в Interval.
// Сообщения не отбрасываются; Enqueue не блокирует.
type Pacer struct {
	clk    clock.Clock
	send   SendFunc
	onFail FailFunc
	cfg    PacerConfig
	log    *logger.Logger

	queue []protocol.Envelope
	timer clock.Timer
}

func NewPacer(clk clock.Clock, send SendFunc, cfg PacerConfig, log *logger.Logger) *Pacer {
	cfg.applyDefaults()
	return &Pacer{
		clk:  clk,
		send: send,
		cfg:  cfg,
		log:  log.Named("pacer"),
	}
}

// OnSendFailed задаёт обработчик неотправленных конвертов. Сообщение
// повторно в очередь не ставится.
func (p *Pacer) OnSendFailed(fn FailFunc) { p.onFail = fn }

func (p *Pacer) Enqueue(env protocol.Envelope) {
	p.queue = append(p.queue, env)
	metrics.QueueDepth.Set(float64(len(p.queue)))
	if p.timer == nil {
		p.timer = p.clk.AfterFunc(p.cfg.InitialDelay, p.fire)
	}
}

// Len — число сообщений в очереди.
func (p *Pacer) Len() int { return len(p.queue) }

func (p *Pacer) fire() {
	p.timer = nil
	if len(p.queue) == 0 {
		return
	}

	head := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	metrics.QueueDepth.Set(float64(len(p.queue)))

	if err := p.transmit(head); err != nil {
		metrics.OutboundFailed.Inc()
		mti, _ := head.MessageType()
		p.log.Warn("send failed", zap.Int("mti", mti), zap.Error(err))
		if p.onFail != nil {
			p.onFail(head, err)
		}
	} else {
		metrics.OutboundSent.Inc()
	}

	if len(p.queue) > 0 {
		p.timer = p.clk.AfterFunc(p.cfg.Interval, p.fire)
	}
}

func (p *Pacer) transmit(env protocol.Envelope) error {
	payload, err := protocol.Marshal(env)
	if err != nil {
		return err
	}
	if err := p.send(payload); err != nil {
		return fmt.Errorf("pacer: send: %w", err)
	}
	return nil
}
