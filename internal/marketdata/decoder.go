package marketdata

import (
	"errors"
	"fmt"
	"time"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/hexbuf"
)

// ErrUnknownStreamType — тип блока не распознан, курсор нельзя продвинуть дальше.
var ErrUnknownStreamType = errors.New("marketdata: unknown stream type")

// DecodeError — буфер не удалось разобрать. Фатальна для всего вызова Decode.
type DecodeError struct {
	Offset int // позиция в символах, где начался сбойный блок
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("marketdata: decode at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Флаги уровня: STIVVVVV (side, tradable, indicative, value-date day).
const (
	flagBid        = 0x80
	flagTradable   = 0x40
	flagIndicative = 0x20
	flagDayMask    = 0x1f
	extendedIDBit  = 0x80
	extendedIDMask = 0x7f
)

// Decoder разбирает hex-буферы цен. Состояния между вызовами не хранит.
type Decoder struct {
	now func() time.Time
}

// NewDecoder создаёт декодер; now используется для дат валютирования
// (nil → time.Now).
func NewDecoder(now func() time.Time) *Decoder {
	if now == nil {
		now = time.Now
	}
	return &Decoder{now: now}
}

// Decode разбирает все блоки инструментов до конца буфера.
func (d *Decoder) Decode(buf string) ([]Instrument, error) {
	r := hexbuf.New(buf)
	today := d.now().UTC()

	var out []Instrument
	for r.Remaining() > 0 {
		start := r.Offset()
		ins, err := decodeBlock(r, today)
		if err != nil {
			return nil, &DecodeError{Offset: start, Err: err}
		}
		out = append(out, ins)
	}
	return out, nil
}

func decodeBlock(r *hexbuf.Reader, today time.Time) (Instrument, error) {
	idByte, err := r.Byte()
	if err != nil {
		return nil, fmt.Errorf("instrument id: %w", err)
	}
	id := int64(idByte)
	if idByte&extendedIDBit != 0 {
		// Длина расширенного id: (b & 0x7f) * 2 hex-символов.
		width := int(idByte & extendedIDMask)
		v, err := r.Uint(width)
		if err != nil {
			return nil, fmt.Errorf("extended instrument id: %w", err)
		}
		id = int64(v)
	}

	st, err := r.Byte()
	if err != nil {
		return nil, fmt.Errorf("stream type: %w", err)
	}
	stream := StreamType(st)

	switch {
	case stream.IsFX():
		return decodeFX(r, id, stream, today)
	case stream.IsCFD():
		return decodeCFD(r, id, stream)
	default:
		return nil, fmt.Errorf("%w: %d (instrument %d)", ErrUnknownStreamType, st, id)
	}
}

// sideQueues восстанавливает пары bid/ask из односторонних записей.
// Хранит индексы уровней, ожидающих противоположную сторону.
type sideQueues struct {
	bids []int
	asks []int
}

// slot возвращает индекс уровня для записи стороны bid; create == true,
// если уровень нужно добавить в конец списка.
func (q *sideQueues) slot(bid bool, next int) (idx int, create bool) {
	waiting, own := &q.asks, &q.bids
	if !bid {
		waiting, own = &q.bids, &q.asks
	}
	if len(*waiting) > 0 {
		idx = (*waiting)[0]
		*waiting = (*waiting)[1:]
		return idx, false
	}
	*own = append(*own, next)
	return next, true
}

func decodeFX(r *hexbuf.Reader, id int64, stream StreamType, today time.Time) (*FXInstrument, error) {
	base := stream.Base()
	ins := &FXInstrument{ID: id, StreamType: stream}

	if base == StreamFXSizeAgg || base == StreamFXSizeFull {
		size, err := r.Int64()
		if err != nil {
			return nil, fmt.Errorf("fx size: %w", err)
		}
		ins.Size = &size
	}

	count, err := r.Byte()
	if err != nil {
		return nil, fmt.Errorf("fx band count: %w", err)
	}
	ins.Bands = make([]FXBand, 0, count)

	var q sideQueues
	for n := 0; n < int(count); n++ {
		bankID := int64(-1)
		if base == StreamFXMultiLP {
			b, err := r.Byte()
			if err != nil {
				return nil, fmt.Errorf("fx band %d bank id: %w", n, err)
			}
			bankID = int64(b)
		}

		flags, err := r.Byte()
		if err != nil {
			return nil, fmt.Errorf("fx band %d flags: %w", n, err)
		}
		isBid := flags&flagBid != 0
		tradable := flags&flagTradable != 0 && flags&flagIndicative == 0
		valueDate := ValueDate(int(flags&flagDayMask), today)

		rate, err := r.Float64()
		if err != nil {
			return nil, fmt.Errorf("fx band %d rate: %w", n, err)
		}
		var size int64
		if base != StreamFXBest {
			if size, err = r.Int64(); err != nil {
				return nil, fmt.Errorf("fx band %d size: %w", n, err)
			}
		}
		var vwap float64
		if base == StreamFXSizeAgg {
			if vwap, err = r.Float64(); err != nil {
				return nil, fmt.Errorf("fx band %d vwap: %w", n, err)
			}
		}

		idx, create := q.slot(isBid, len(ins.Bands))
		if create {
			ins.Bands = append(ins.Bands, NewFXBand())
		}
		band := &ins.Bands[idx]
		if isBid {
			band.BidBankID = bankID
			band.BidTradable = Flag(tradable)
			band.BidSize = size
			band.BidRate = Rate(rate)
			band.BidVwap = Rate(vwap)
			band.BidValueDate = valueDate
		} else {
			band.AskBankID = bankID
			band.AskTradable = Flag(tradable)
			band.AskSize = size
			band.AskRate = Rate(rate)
			band.AskVwap = Rate(vwap)
			band.AskValueDate = valueDate
		}
	}
	return ins, nil
}

func decodeCFD(r *hexbuf.Reader, id int64, stream StreamType) (*CFDInstrument, error) {
	ins := &CFDInstrument{ID: id, StreamType: stream}

	count, err := r.Byte()
	if err != nil {
		return nil, fmt.Errorf("cfd band count: %w", err)
	}

	// Порядок на проводе: close, open, low, high.
	for _, dst := range []*Rate{&ins.Close, &ins.Open, &ins.Low, &ins.High} {
		v, err := r.Float64()
		if err != nil {
			return nil, fmt.Errorf("cfd ohlc: %w", err)
		}
		*dst = Rate(v)
	}

	ins.Bands = make([]CFDBand, 0, count)
	var q sideQueues
	for n := 0; n < int(count); n++ {
		flags, err := r.Byte()
		if err != nil {
			return nil, fmt.Errorf("cfd band %d flags: %w", n, err)
		}
		rate, err := r.Float64()
		if err != nil {
			return nil, fmt.Errorf("cfd band %d rate: %w", n, err)
		}
		size, err := r.Int64()
		if err != nil {
			return nil, fmt.Errorf("cfd band %d size: %w", n, err)
		}

		isBid := flags&flagBid != 0
		tradable := Flag(flags&flagTradable != 0)

		idx, create := q.slot(isBid, len(ins.Bands))
		if create {
			ins.Bands = append(ins.Bands, CFDBand{})
		}
		band := &ins.Bands[idx]
		if isBid {
			band.BidTradable, band.BidRate, band.BidSize = tradable, Rate(rate), size
		} else {
			band.AskTradable, band.AskRate, band.AskSize = tradable, Rate(rate), size
		}
	}
	return ins, nil
}

// ValueDate строит дату валютирования YYYYMMDD по дню месяца из флагов.
// day == 0: даты нет.
//
// Месяц всегда берётся следующий за текущим; если day меньше текущего дня,
// добавляется ещё один, и только тогда год переносится на 13-м месяце.
// Поэтому в декабре без перехода получается месяц 13: так ведёт себя сервер,
// поведение сохранено как есть.
func ValueDate(day int, today time.Time) string {
	if day == 0 {
		return ""
	}
	year, month := today.Year(), int(today.Month())+1
	if day < today.Day() {
		month++
		if month > 12 {
			month = 1
			year++
		}
	}
	return fmt.Sprintf("%04d%02d%02d", year, month, day)
}
