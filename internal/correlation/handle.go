package correlation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/protocol"
)

// ErrCancelled — запрос снят из-за потери соединения.
// Проверяйте через errors.Is: фактическая ошибка имеет тип *RejectError.
var ErrCancelled = errors.New("correlation: " + protocol.ReasonCancellation)

// RejectError — сервер (или разрыв соединения) отклонил запрос.
type RejectError struct {
	Code    int
	Reason  string
	Payload protocol.Envelope
}

func (e *RejectError) Error() string {
	if e.Reason == protocol.ReasonCancellation {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("correlation: rejected with code %d: %s", e.Code, e.Reason)
}

func (e *RejectError) Is(target error) bool {
	return target == ErrCancelled && e.Reason == protocol.ReasonCancellation
}

// Handle — результат запроса; завершается ровно один раз.
type Handle struct {
	id int64

	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	payload   protocol.Envelope
	err       error
	onSuccess func(protocol.Envelope)
	onFailure func(*RejectError)
}

func newHandle(id int64) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

// ID — messageId, назначенный запросу.
func (h *Handle) ID() int64 { return h.id }

// Done закрывается при завершении запроса.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait блокирует до ответа или отмены ctx. Ошибка ответа имеет тип *RejectError.
func (h *Handle) Wait(ctx context.Context) (protocol.Envelope, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.payload, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then регистрирует обработчики. Если запрос уже завершён, соответствующий
// обработчик вызывается сразу. Повторный вызов заменяет обработчики.
func (h *Handle) Then(success func(protocol.Envelope), failure func(*RejectError)) {
	h.mu.Lock()
	if !h.settled {
		h.onSuccess, h.onFailure = success, failure
		h.mu.Unlock()
		return
	}
	payload, err := h.payload, h.err
	h.mu.Unlock()
	dispatch(payload, err, success, failure)
}

func (h *Handle) resolve(payload protocol.Envelope) bool {
	return h.settle(payload, nil)
}

func (h *Handle) reject(rej *RejectError) bool {
	return h.settle(rej.Payload, rej)
}

func (h *Handle) settle(payload protocol.Envelope, rej *RejectError) bool {
	h.mu.Lock()
	if h.settled {
		h.mu.Unlock()
		return false
	}
	h.settled = true
	h.payload = payload
	if rej != nil {
		h.err = rej
	}
	success, failure := h.onSuccess, h.onFailure
	h.onSuccess, h.onFailure = nil, nil
	close(h.done)
	h.mu.Unlock()

	dispatch(payload, h.err, success, failure)
	return true
}

func dispatch(payload protocol.Envelope, err error, success func(protocol.Envelope), failure func(*RejectError)) {
	if err == nil {
		if success != nil {
			success(payload)
		}
		return
	}
	var rej *RejectError
	if failure != nil && errors.As(err, &rej) {
		failure(rej)
	}
}
