// Package marketdata содержит модель котировок площадки и декодер бинарного
// hex-потока цен (FX и CFD).
package marketdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// StreamType — форма агрегации цен инструмента.
type StreamType int

// FX stream types.
const (
	StreamFXBest          StreamType = 1  // B0, лучшая цена
	StreamFXSizeAgg       StreamType = 10 // sA, агрегировано по объёму
	StreamFXSizeFull      StreamType = 20 // sF
	StreamFXAgg           StreamType = 30 // A
	StreamFXFullPrice     StreamType = 40 // FP
	StreamFXMultiLP       StreamType = 50 // MLP
	StreamFXFull          StreamType = 51 // F
	flippedOffset         StreamType = 5
	StreamFXFlipBest      StreamType = StreamFXBest + flippedOffset
	StreamFXFlipSizeAgg   StreamType = StreamFXSizeAgg + flippedOffset
	StreamFXFlipSizeFull  StreamType = StreamFXSizeFull + flippedOffset
	StreamFXFlipAgg       StreamType = StreamFXAgg + flippedOffset
	StreamFXFlipFullPrice StreamType = StreamFXFullPrice + flippedOffset
	StreamFXFlipMultiLP   StreamType = StreamFXMultiLP + flippedOffset
	StreamFXFlipFull      StreamType = StreamFXFull + flippedOffset
)

// CFD stream types.
const (
	StreamCFDTop  StreamType = 80
	StreamCFDFull StreamType = 90
)

// IsFX сообщает, относится ли тип к FX (включая перевёрнутые варианты).
func (s StreamType) IsFX() bool {
	switch s {
	case StreamFXBest, StreamFXSizeAgg, StreamFXSizeFull, StreamFXAgg,
		StreamFXFullPrice, StreamFXMultiLP, StreamFXFull,
		StreamFXFlipBest, StreamFXFlipSizeAgg, StreamFXFlipSizeFull, StreamFXFlipAgg,
		StreamFXFlipFullPrice, StreamFXFlipMultiLP, StreamFXFlipFull:
		return true
	}
	return false
}

func (s StreamType) IsCFD() bool {
	return s == StreamCFDTop || s == StreamCFDFull
}

// Flipped — котировка в обратной валютной паре.
func (s StreamType) Flipped() bool {
	switch s {
	case StreamFXFlipBest, StreamFXFlipSizeAgg, StreamFXFlipSizeFull, StreamFXFlipAgg,
		StreamFXFlipFullPrice, StreamFXFlipMultiLP, StreamFXFlipFull:
		return true
	}
	return false
}

// Base приводит перевёрнутый FX-тип к базовому; остальные возвращает как есть.
func (s StreamType) Base() StreamType {
	if s.Flipped() {
		return s - flippedOffset
	}
	return s
}

// -----------------------------------------------------------------------------
// JSON-скаляры
// -----------------------------------------------------------------------------

// Rate — цена. На проводе встречается и строкой, и числом; пишем строкой.
type Rate float64

func (r Rate) Float64() float64 { return float64(r) }

func (r Rate) String() string {
	return strconv.FormatFloat(float64(r), 'f', -1, 64)
}

func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(r.String())), nil
}

func (r *Rate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = 0
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		var err error
		if s, err = strconv.Unquote(s); err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		if s == "" {
			*r = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("rate: %w", err)
	}
	*r = Rate(f)
	return nil
}

// Flag — признак торгуемости; на проводе 0/1, иногда bool.
type Flag bool

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "1", "true", `"1"`:
		*f = true
	case "0", "false", `"0"`, "null", `""`:
		*f = false
	default:
		return fmt.Errorf("flag: unexpected value %s", b)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Instruments
// -----------------------------------------------------------------------------

// Quote — верх стакана, достаточный для кеша живых цен.
type Quote struct {
	BidRate      Rate
	AskRate      Rate
	BidTradable  bool
	AskTradable  bool
	BidValueDate string
	AskValueDate string
}

// Instrument — общий вид декодированного обновления цены.
type Instrument interface {
	InstrumentID() int64
	Stream() StreamType
	// TopOfBook возвращает первый уровень; false, если уровней нет.
	TopOfBook() (Quote, bool)
}

// FXBand — один уровень FX-стакана. Незаполненная сторона сохраняет
// значения по умолчанию (BankID = -1).
type FXBand struct {
	BidBankID    int64  `json:"bidBankId"`
	BidTradable  Flag   `json:"bidTradable"`
	BidSize      int64  `json:"bidSize"`
	BidRate      Rate   `json:"bidRate"`
	BidVwap      Rate   `json:"bidVwap"`
	BidValueDate string `json:"bidValueDate"`
	AskBankID    int64  `json:"askBankId"`
	AskTradable  Flag   `json:"askTradable"`
	AskSize      int64  `json:"askSize"`
	AskRate      Rate   `json:"askRate"`
	AskVwap      Rate   `json:"askVwap"`
	AskValueDate string `json:"askValueDate"`
}

// NewFXBand возвращает уровень со значениями по умолчанию.
func NewFXBand() FXBand {
	return FXBand{BidBankID: -1, AskBankID: -1}
}

type FXInstrument struct {
	ID         int64      `json:"instrumentId"`
	StreamType StreamType `json:"streamType"`
	// Size есть только у sA/sF.
	Size  *int64   `json:"size,omitempty"`
	Bands []FXBand `json:"bandList"`
}

func (i *FXInstrument) InstrumentID() int64 { return i.ID }
func (i *FXInstrument) Stream() StreamType  { return i.StreamType }

func (i *FXInstrument) TopOfBook() (Quote, bool) {
	if len(i.Bands) == 0 {
		return Quote{}, false
	}
	b := i.Bands[0]
	return Quote{
		BidRate:      b.BidRate,
		AskRate:      b.AskRate,
		BidTradable:  bool(b.BidTradable),
		AskTradable:  bool(b.AskTradable),
		BidValueDate: b.BidValueDate,
		AskValueDate: b.AskValueDate,
	}, true
}

// UnmarshalJSON применяет значения по умолчанию к уровням без bankId.
func (i *FXInstrument) UnmarshalJSON(b []byte) error {
	type plain FXInstrument
	var raw struct {
		plain
		Bands []json.RawMessage `json:"bandList"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*i = FXInstrument(raw.plain)
	i.Bands = make([]FXBand, 0, len(raw.Bands))
	for _, rb := range raw.Bands {
		band := NewFXBand()
		if err := json.Unmarshal(rb, &band); err != nil {
			return fmt.Errorf("bandList: %w", err)
		}
		i.Bands = append(i.Bands, band)
	}
	return nil
}

type CFDBand struct {
	BidTradable Flag  `json:"bidTradable"`
	BidRate     Rate  `json:"bidRate"`
	BidSize     int64 `json:"bidSize"`
	AskTradable Flag  `json:"askTradable"`
	AskRate     Rate  `json:"askRate"`
	AskSize     int64 `json:"askSize"`
}

type CFDInstrument struct {
	ID         int64      `json:"instrumentId"`
	StreamType StreamType `json:"streamType"`
	Open       Rate       `json:"open"`
	High       Rate       `json:"high"`
	Low        Rate       `json:"low"`
	Close      Rate       `json:"close"`
	Bands      []CFDBand  `json:"bandList"`
}

func (i *CFDInstrument) InstrumentID() int64 { return i.ID }
func (i *CFDInstrument) Stream() StreamType  { return i.StreamType }

func (i *CFDInstrument) TopOfBook() (Quote, bool) {
	if len(i.Bands) == 0 {
		return Quote{}, false
	}
	b := i.Bands[0]
	return Quote{
		BidRate:     b.BidRate,
		AskRate:     b.AskRate,
		BidTradable: bool(b.BidTradable),
		AskTradable: bool(b.AskTradable),
	}, true
}

var (
	_ Instrument = (*FXInstrument)(nil)
	_ Instrument = (*CFDInstrument)(nil)
)
