// Package ws реализует транспорт поверх gorilla/websocket: одно соединение,
// ping по таймеру, цикл чтения и четыре события.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/backoff"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

var (
	ErrNotConnected     = errors.New("ws: not connected")
	ErrAlreadyConnected = errors.New("ws: already connected")
)

// Handler — получатели событий транспорта. Любое поле может быть nil.
// События приходят из горутин транспорта, каждое ровно один раз.
type Handler struct {
	OnConnected    func()
	OnDisconnected func(reason string)
	OnMessage      func(text []byte)
	OnError        func(err error)
}

// Transport держит не более одного соединения. Повторное подключение
// после разрыва остаётся заботой вызывающего.
type Transport struct {
	cfg    Config
	h      Handler
	log    *logger.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex // conn, cancel, dialing
	writeMu sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	dialing bool
	wg      sync.WaitGroup
}

func New(cfg Config, h Handler, log *logger.Logger) (*Transport, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Transport{
		cfg:    cfg,
		h:      h,
		log:    log.Named("ws"),
		dialer: websocket.DefaultDialer,
	}, nil
}

// Open подключается к address (пусто → cfg.URL) с back-off на установку
// соединения и запускает чтение. Возвращается после OnConnected.
func (t *Transport) Open(ctx context.Context, address string) error {
	if address == "" {
		address = t.cfg.URL
	}

	// dialing занимает транспорт на всё время установки соединения:
	// второй Open не должен дозваниваться параллельно.
	t.mu.Lock()
	if t.conn != nil || t.dialing {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.dialing = true
	t.mu.Unlock()

	var conn *websocket.Conn
	err := backoff.Execute(ctx, "ws-dial", t.cfg.DialBackoff, t.log, func(ctxTry context.Context) error {
		c, _, dialErr := t.dialer.DialContext(ctxTry, address, nil)
		if dialErr != nil {
			return dialErr
		}
		conn = c
		return nil
	})
	if err != nil {
		t.mu.Lock()
		t.dialing = false
		t.mu.Unlock()
		return fmt.Errorf("ws: dial %s: %w", address, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.conn, t.cancel = conn, cancel
	t.dialing = false
	t.mu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
	})

	t.log.Info("connected", zap.String("url", address))
	metrics.Connected.Set(1)
	if t.h.OnConnected != nil {
		t.h.OnConnected()
	}

	t.wg.Add(2)
	go t.pingLoop(connCtx, conn)
	go t.readLoop(conn, cancel)
	return nil
}

// Send пишет текстовый кадр.
func (t *Transport) Send(payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.emitError(fmt.Errorf("ws: write: %w", err))
		return err
	}
	return nil
}

// Close закрывает соединение; OnDisconnected придёт из цикла чтения.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing"),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()

	err := conn.Close()
	t.wg.Wait()
	return err
}

// Connected сообщает, есть ли активное соединение.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

func (t *Transport) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer t.wg.Done()

	var reason string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			reason = closeReason(err)
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
		if t.h.OnMessage != nil {
			t.h.OnMessage(data)
		}
	}

	cancel()
	_ = conn.Close()
	t.mu.Lock()
	t.conn, t.cancel = nil, nil
	t.mu.Unlock()

	metrics.Connected.Set(0)
	t.log.Info("disconnected", zap.String("reason", reason))
	if t.h.OnDisconnected != nil {
		t.h.OnDisconnected(reason)
	}
}

func (t *Transport) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.ReadTimeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			t.writeMu.Unlock()
			if err != nil {
				t.log.Warn("ping failed", zap.Error(err))
				t.emitError(fmt.Errorf("ws: ping: %w", err))
			}
		}
	}
}

func (t *Transport) emitError(err error) {
	if t.h.OnError != nil {
		t.h.OnError(err)
	}
}

func closeReason(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Text != "" {
			return ce.Text
		}
		return fmt.Sprintf("close %d", ce.Code)
	}
	return err.Error()
}
