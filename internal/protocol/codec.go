package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject — входящий текст не является JSON-объектом.
var ErrNotObject = errors.New("protocol: message is not a JSON object")

// Marshal сериализует конверт для отправки.
func Marshal(e Envelope) ([]byte, error) {
	b, err := json.Marshal(map[string]any(e))
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal: %w", err)
	}
	return b, nil
}

// Unmarshal разбирает входящий текст. Числа остаются json.Number.
func Unmarshal(data []byte) (Envelope, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrNotObject
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal: %w", err)
	}
	return env, nil
}
