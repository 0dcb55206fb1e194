package client

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/protocol"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/subscription"
)

func TestLoginEnvelope_HashesPassword(t *testing.T) {
	env := loginEnvelope(Credentials{Login: "trader", Password: "secret", Version: "API-1-APP-2", OSType: 5})

	sum := sha256.Sum256([]byte("secret"))
	if env["password"] != hex.EncodeToString(sum[:]) {
		t.Fatalf("password = %v", env["password"])
	}
	if mti, _ := env.MessageType(); mti != protocol.MTITradeLogin {
		t.Fatalf("MTI = %d", mti)
	}
	if env["stationTypeName"] != "Trader" || env["login"] != "trader" {
		t.Fatalf("env = %v", env)
	}
}

func TestOrderEnvelope_MTIByClass(t *testing.T) {
	tests := []struct {
		class subscription.AssetClass
		op    orderOp
		want  int
	}{
		{subscription.FX, opPlace, 2000},
		{subscription.FX, opPlaceStrategy, 2003},
		{subscription.FX, opModify, 2008},
		{subscription.FX, opCancel, 2009},
		{subscription.CFD, opPlace, 2300},
		{subscription.CFD, opCancel, 2309},
		{subscription.SB, opModify, 2508},
		{subscription.SB, opPlaceStrategy, 2503},
	}
	for _, tt := range tests {
		env, err := orderEnvelope(tt.class, tt.op, map[string]any{"qty": 1, "MTI": 1, "messageId": 5})
		if err != nil {
			t.Fatal(err)
		}
		if mti, _ := env.MessageType(); mti != tt.want {
			t.Errorf("%v/%d: MTI = %d; want %d", tt.class, tt.op, mti, tt.want)
		}
		if _, has := env[protocol.KeyMessageID]; has {
			t.Errorf("%v/%d: caller messageId leaked", tt.class, tt.op)
		}
		if env["qty"] != 1 {
			t.Errorf("%v/%d: fields not copied", tt.class, tt.op)
		}
	}
	if _, err := orderEnvelope(subscription.AssetClass(99), opPlace, nil); err == nil {
		t.Fatal("unknown class must fail")
	}
}

func TestCancelFields_OptionalFields(t *testing.T) {
	f := cancelFields(CancelRequest{Account: "A", OrderID: 10, RetailSLTP: -1})
	if len(f) != 2 {
		t.Fatalf("fields = %v", f)
	}

	f = cancelFields(CancelRequest{Account: "A", OrderID: 10, InstrumentID: 20, RetailSLTP: 0, CancelReason: "r", CustomerOrderID: "c"})
	for _, k := range []string{"instrumentId", "retailSLTP", "cancelReason", "customerOrderId"} {
		if _, ok := f[k]; !ok {
			t.Errorf("missing %s", k)
		}
	}
}

func TestInstrumentListEnvelope(t *testing.T) {
	env, _ := instrumentListEnvelope(subscription.FX, "ignored")
	if mti, _ := env.MessageType(); mti != 1002 || env["category"] != "FX" {
		t.Fatalf("fx = %v", env)
	}
	env, _ = instrumentListEnvelope(subscription.CFD, "20240101000000")
	if mti, _ := env.MessageType(); mti != 1202 || env["lastCFDUpdate"] != "20240101000000" {
		t.Fatalf("cfd = %v", env)
	}
	env, _ = instrumentListEnvelope(subscription.SB, "")
	if _, has := env["lastSBUpdate"]; has {
		t.Fatalf("sb = %v", env)
	}
}
