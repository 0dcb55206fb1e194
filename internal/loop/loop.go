// Package loop реализует однопоточный исполнитель: все изменения состояния сессии
// (pending-запросы, очередь отправки, подписки, кеш цен) выполняются
// в одной горутине, поэтому сами компоненты обходятся без блокировок.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/clock"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

// ErrStopped возвращается Call, если цикл уже завершён.
var ErrStopped = errors.New("loop: stopped")

// Loop — очередь замыканий, которую разбирает одна горутина Run.
// Loop реализует clock.Clock: его таймеры срабатывают внутри цикла.
type Loop struct {
	clk clock.Clock
	log *logger.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// New создаёт цикл. clk задаёт источник реального времени (clock.Real{} в проде).
func New(clk clock.Clock, log *logger.Logger) *Loop {
	return &Loop{
		clk:  clk,
		log:  log.Named("loop"),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post ставит f в очередь. Никогда не блокирует; false, если цикл остановлен.
func (l *Loop) Post(f func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call выполняет f внутри цикла и ждёт завершения.
// Нельзя вызывать из самого цикла.
func (l *Loop) Call(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	if !l.Post(func() { f(); close(finished) }) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run разбирает очередь до отмены ctx.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, f := range batch {
			l.exec(f)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Done закрывается после выхода из Run.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) exec(f func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("panic recovered", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
		}
	}()
	f()
}

// -----------------------------------------------------------------------------
// clock.Clock
// -----------------------------------------------------------------------------

func (l *Loop) Now() time.Time { return l.clk.Now() }

// AfterFunc планирует f внутри цикла. Stop возвращённого таймера нужно
// вызывать из цикла: тогда уже поставленный в очередь вызов будет пропущен.
func (l *Loop) AfterFunc(d time.Duration, f func()) clock.Timer {
	t := &timer{}
	t.inner = l.clk.AfterFunc(d, func() {
		l.Post(func() {
			if t.fired {
				return
			}
			t.fired = true
			f()
		})
	})
	return t
}

type timer struct {
	inner clock.Timer
	fired bool
}

func (t *timer) Stop() bool {
	if t.fired {
		return false
	}
	t.fired = true
	t.inner.Stop()
	return true
}
