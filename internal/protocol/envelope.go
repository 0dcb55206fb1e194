// Package protocol описывает проводной формат площадки: JSON-конверт
// с зарезервированными полями, коды MTI, таблицу кодов результата
// и типизированные варианты входящих сообщений.
package protocol

import (
	"encoding/json"
	"math"
	"strconv"
)

// Зарезервированные ключи конверта.
const (
	KeyMessageType = "MTI"
	KeyMessageID   = "messageId"
	KeyResultCode  = "resultCode"
)

// Envelope — конверт сообщения: имя поля → значение. Числа после
// Unmarshal хранятся как json.Number, поэтому целые не превращаются во float.
type Envelope map[string]any

// New создаёт конверт с заданным MTI.
func New(mti int) Envelope {
	return Envelope{KeyMessageType: mti}
}

// With добавляет поле и возвращает конверт для цепочки вызовов.
func (e Envelope) With(key string, value any) Envelope {
	e[key] = value
	return e
}

func (e Envelope) MessageType() (int, bool) {
	v, ok := e.Int(KeyMessageType)
	return int(v), ok
}

func (e Envelope) MessageID() (int64, bool) {
	return e.Int(KeyMessageID)
}

func (e Envelope) SetMessageID(id int64) {
	e[KeyMessageID] = id
}

func (e Envelope) ResultCode() (int, bool) {
	v, ok := e.Int(KeyResultCode)
	return int(v), ok
}

// Int читает целое поле независимо от того, как оно было получено:
// из JSON (json.Number) или собрано в коде.
func (e Envelope) Int(key string) (int64, bool) {
	return toInt(e[key])
}

// Text читает строковое поле.
func (e Envelope) Text(key string) (string, bool) {
	s, ok := e[key].(string)
	return s, ok
}

// Clone — поверхностная копия.
func (e Envelope) Clone() Envelope {
	out := make(Envelope, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Without возвращает копию без указанного поля.
func (e Envelope) Without(key string) Envelope {
	out := e.Clone()
	delete(out, key)
	return out
}

// Decode перекладывает конверт в структуру через JSON-теги.
func (e Envelope) Decode(dst any) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(string(n), 64); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}
