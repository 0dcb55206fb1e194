package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestUnmarshal_KeepsIntegers(t *testing.T) {
	env, err := Unmarshal([]byte(`{"MTI": 5008, "messageId": 9007199254740993, "resultCode": 0, "rate": 1.25}`))
	if err != nil {
		t.Fatal(err)
	}
	if mti, _ := env.MessageType(); mti != 5008 {
		t.Errorf("MTI = %d", mti)
	}
	// 2^53+1 теряется при разборе во float64.
	if id, _ := env.MessageID(); id != 9007199254740993 {
		t.Errorf("messageId = %d", id)
	}
	if code, ok := env.ResultCode(); !ok || code != 0 {
		t.Errorf("resultCode = %d, %v", code, ok)
	}
	if _, ok := env.Int("rate"); ok {
		t.Error("fractional value must not read as int")
	}

	b, err := Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]json.RawMessage
	_ = json.Unmarshal(b, &back)
	if string(back["messageId"]) != "9007199254740993" {
		t.Errorf("round trip messageId = %s", back["messageId"])
	}
}

func TestUnmarshal_RejectsNonObject(t *testing.T) {
	for _, in := range []string{"", "[1]", "42", "  "} {
		if _, err := Unmarshal([]byte(in)); !errors.Is(err, ErrNotObject) {
			t.Errorf("%q: err = %v", in, err)
		}
	}
	if _, err := Unmarshal([]byte(`{"MTI":`)); err == nil {
		t.Error("broken JSON must fail")
	}
}

func TestReason(t *testing.T) {
	tests := map[int]string{
		1003: "Invalid MTI",
		1008: "No connection tries left",
		1014: "Must change password",
		5000: "Invalid old password",
		2104: "Technical error abort",
		2105: "Technical error routing",
		4242: "unknown reason",
		-1:   "unknown reason",
	}
	for code, want := range tests {
		if got := Reason(code); got != want {
			t.Errorf("Reason(%d) = %q; want %q", code, got, want)
		}
	}
	if len(resultCodes) != 16 {
		t.Errorf("result code table has %d entries; want 16", len(resultCodes))
	}
}

func TestAsResponse(t *testing.T) {
	env := New(1031).With(KeyMessageID, int64(4)).With(KeyResultCode, 1006).With("x", 1)
	resp, ok := AsResponse(env)
	if !ok {
		t.Fatal("expected response")
	}
	if resp.ID != 4 || resp.ResultCode != 1006 || resp.OK() {
		t.Errorf("resp = %+v", resp)
	}
	if _, has := resp.Payload[KeyMessageID]; has {
		t.Error("payload must not carry messageId")
	}
	if _, has := env[KeyMessageID]; !has {
		t.Error("source envelope must not be mutated")
	}

	if _, ok := AsResponse(New(3000)); ok {
		t.Error("push must not be a response")
	}

	missing, _ := AsResponse(New(1).With(KeyMessageID, 1))
	if missing.OK() {
		t.Error("missing resultCode must not be success")
	}
}

func TestDecode_Variants(t *testing.T) {
	env, _ := Unmarshal([]byte(`{"MTI": 3000, "netData": "0a1e00"}`))
	m, err := Decode(env)
	if err != nil {
		t.Fatal(err)
	}
	ps, ok := m.(*PriceStream)
	if !ok || !ps.HasBinary() || ps.NetData != "0a1e00" {
		t.Fatalf("got %#v", m)
	}

	env, _ = Unmarshal([]byte(`{"MTI": 3200, "instrumentList": [{"instrumentId": 5, "streamType": 80}]}`))
	m, err = Decode(env)
	if err != nil {
		t.Fatal(err)
	}
	ps = m.(*PriceStream)
	if ps.HasBinary() || len(ps.List) != 1 {
		t.Fatalf("got %#v", ps)
	}
	var item struct {
		ID int64 `json:"instrumentId"`
	}
	if err := json.Unmarshal(ps.List[0], &item); err != nil || item.ID != 5 {
		t.Fatalf("item = %+v, %v", item, err)
	}

	env, _ = Unmarshal([]byte(`{"MTI": 5210}`))
	if m, _ = Decode(env); m.MTI() != MTICFDSubscribe {
		t.Fatalf("got %#v", m)
	}
	if _, ok := m.(*SubscriptionAck); !ok {
		t.Fatalf("got %T", m)
	}

	env, _ = Unmarshal([]byte(`{"MTI": 1182}`))
	if m, _ = Decode(env); m.(*Push).Type != MTINotifyNewOrder {
		t.Fatalf("got %#v", m)
	}

	if _, err := Decode(Envelope{}); !errors.Is(err, ErrNoMessageType) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Decode(Envelope{KeyMessageType: 3500, "instrumentList": "x"}); err == nil {
		t.Fatal("bad instrumentList must fail")
	}
}
