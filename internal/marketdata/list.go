package marketdata

import (
	"encoding/json"
	"fmt"
)

// DecodeList разбирает JSON-список инструментов из push-сообщения
// (поле instrumentList). CFD-типы дают CFDInstrument, остальные FXInstrument.
func DecodeList(raw []json.RawMessage) ([]Instrument, error) {
	out := make([]Instrument, 0, len(raw))
	for i, item := range raw {
		var head struct {
			StreamType StreamType `json:"streamType"`
		}
		if err := json.Unmarshal(item, &head); err != nil {
			return nil, fmt.Errorf("marketdata: list item %d: %w", i, err)
		}

		var ins Instrument
		if head.StreamType.IsCFD() {
			ins = &CFDInstrument{}
		} else {
			ins = &FXInstrument{}
		}
		if err := json.Unmarshal(item, ins); err != nil {
			return nil, fmt.Errorf("marketdata: list item %d: %w", i, err)
		}
		out = append(out, ins)
	}
	return out, nil
}
