// Package hexbuf читает бинарные значения, закодированные ASCII-hex
// (два символа на байт, регистр не важен, little-endian).
package hexbuf

import (
	"errors"
	"fmt"
	"math"
)

// MaxWidth — максимальная ширина одного значения в байтах.
const MaxWidth = 8

var (
	// ErrTruncated — в буфере меньше символов, чем требует чтение.
	ErrTruncated = errors.New("hexbuf: truncated buffer")
	// ErrInvalidDigit — символ вне [0-9a-fA-F].
	ErrInvalidDigit = errors.New("hexbuf: invalid hex digit")
	// ErrWidth — запрошена ширина вне [1, MaxWidth].
	ErrWidth = errors.New("hexbuf: invalid width")
)

// Reader — курсор по hex-строке. Нулевое значение не пригодно; используйте New.
type Reader struct {
	buf string
	off int
}

func New(buf string) *Reader {
	return &Reader{buf: buf}
}

// Offset — позиция курсора в символах.
func (r *Reader) Offset() int { return r.off }

// Remaining — сколько символов осталось.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Uint читает n байт (2n символов) как беззнаковое little-endian число.
// При ошибке курсор не сдвигается.
func (r *Reader) Uint(n int) (uint64, error) {
	if n < 1 || n > MaxWidth {
		return 0, fmt.Errorf("%w: %d", ErrWidth, n)
	}
	end := r.off + 2*n
	if end > len(r.buf) {
		return 0, fmt.Errorf("%w: need %d chars at offset %d, have %d",
			ErrTruncated, 2*n, r.off, len(r.buf)-r.off)
	}

	var v uint64
	for i := 0; i < n; i++ {
		pos := r.off + 2*i
		hi, ok1 := nibble(r.buf[pos])
		lo, ok2 := nibble(r.buf[pos+1])
		if !ok1 || !ok2 {
			return 0, fmt.Errorf("%w at offset %d", ErrInvalidDigit, pos)
		}
		v |= uint64(hi<<4|lo) << (8 * i)
	}
	r.off = end
	return v, nil
}

// Byte читает один байт.
func (r *Reader) Byte() (byte, error) {
	v, err := r.Uint(1)
	return byte(v), err
}

// Int64 читает 8 байт как знаковое число (дополнительный код).
func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint(8)
	return int64(v), err
}

// Float64 читает 8 байт как IEEE-754 double.
func (r *Reader) Float64() (float64, error) {
	v, err := r.Uint(8)
	return math.Float64frombits(v), err
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
