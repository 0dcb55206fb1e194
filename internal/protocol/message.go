package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoMessageType — в конверте нет MTI.
var ErrNoMessageType = errors.New("protocol: missing MTI")

// Message — типизированный вариант входящего незапрошенного сообщения.
type Message interface {
	MTI() int
}

// PriceStream — обновление цен (3000/3200/3500): либо hex-буфер netData,
// либо JSON-список instrumentList.
type PriceStream struct {
	Type    int
	NetData string
	List    []json.RawMessage
}

// SubscriptionAck — ответ на пакет подписки (5010..5512).
type SubscriptionAck struct {
	Type    int
	Payload Envelope
}

// Push — любое другое незапрошенное сообщение.
type Push struct {
	Type    int
	Payload Envelope
}

func (m *PriceStream) MTI() int     { return m.Type }
func (m *SubscriptionAck) MTI() int { return m.Type }
func (m *Push) MTI() int            { return m.Type }

// HasBinary — цены пришли в hex-виде.
func (m *PriceStream) HasBinary() bool { return m.NetData != "" }

// Response — ответ на запрос с messageId.
type Response struct {
	ID         int64
	ResultCode int
	// Payload — конверт без messageId.
	Payload Envelope
}

// OK — resultCode == 0.
func (r Response) OK() bool { return r.ResultCode == ResultOK }

// AsResponse выделяет коррелируемый ответ. Отсутствующий resultCode
// считается неизвестной ошибкой.
func AsResponse(e Envelope) (Response, bool) {
	id, ok := e.MessageID()
	if !ok {
		return Response{}, false
	}
	code, ok := e.ResultCode()
	if !ok {
		code = -1
	}
	return Response{ID: id, ResultCode: code, Payload: e.Without(KeyMessageID)}, true
}

// Decode превращает незапрошенный конверт в типизированный вариант.
func Decode(e Envelope) (Message, error) {
	mti, ok := e.MessageType()
	if !ok {
		return nil, ErrNoMessageType
	}

	switch {
	case IsPriceStream(mti):
		ps := &PriceStream{Type: mti}
		if s, ok := e.Text("netData"); ok {
			ps.NetData = s
			return ps, nil
		}
		list, err := rawList(e["instrumentList"])
		if err != nil {
			return nil, fmt.Errorf("protocol: MTI %d instrumentList: %w", mti, err)
		}
		ps.List = list
		return ps, nil
	case IsSubscriptionAck(mti):
		return &SubscriptionAck{Type: mti, Payload: e}, nil
	default:
		return &Push{Type: mti, Payload: e}, nil
	}
}

func rawList(v any) ([]json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", v)
	}
	out := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
