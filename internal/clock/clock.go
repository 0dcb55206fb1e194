// Package clock абстрагирует время и таймеры, чтобы pacing и debounce
// можно было детерминированно проверять в тестах.
package clock

import "time"

// Timer — отменяемый одноразовый таймер.
type Timer interface {
	// Stop отменяет таймер. Возвращает false, если он уже сработал или был остановлен.
	Stop() bool
}

// Clock выдаёт текущее время и планирует отложенные вызовы.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real — Clock поверх пакета time. f вызывается в отдельной горутине.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
