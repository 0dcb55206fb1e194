package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/correlation"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/protocol"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/subscription"
)

// -----------------------------------------------------------------------------
// Price
// -----------------------------------------------------------------------------

// PriceAPI — запросы к ценовому серверу.
type PriceAPI struct{ c *Client }

func NewPriceAPI(c *Client) PriceAPI { return PriceAPI{c: c} }

// Login авторизует сессию цен по идентификатору пользователя.
func (p PriceAPI) Login(ctx context.Context, userID int64) (protocol.Envelope, error) {
	return p.c.Request(ctx, protocol.New(protocol.MTIPriceLogin).With("userId", userID))
}

// ChangeAccount переключает счёт. После успеха подписки отправляются заново:
// сервер сбрасывает их при смене счёта.
func (p PriceAPI) ChangeAccount(ctx context.Context, account string) (*correlation.Handle, error) {
	h, err := p.c.Submit(ctx, protocol.New(protocol.MTIChangeAccount).With("accountNumber", account))
	if err != nil {
		return nil, err
	}
	h.Then(func(protocol.Envelope) {
		p.c.Resubscribe()
	}, func(rej *correlation.RejectError) {
		p.c.log.Warn("change account rejected", zap.String("reason", rej.Reason))
	})
	return h, nil
}

// Subscribe — сокращение для Client.Subscribe.
func (p PriceAPI) Subscribe(instrumentID int64, class subscription.AssetClass, callbackID int, owner string, cb subscription.Callback) {
	p.c.Subscribe(instrumentID, class, callbackID, owner, cb)
}

func (p PriceAPI) Unsubscribe(instrumentID int64, callbackID int, owner string) {
	p.c.Unsubscribe(instrumentID, callbackID, owner)
}

// -----------------------------------------------------------------------------
// Trade
// -----------------------------------------------------------------------------

// TradeAPI — запросы к торговому серверу.
type TradeAPI struct{ c *Client }

func NewTradeAPI(c *Client) TradeAPI { return TradeAPI{c: c} }

// Credentials — данные входа трейдера. Пароль уходит на сервер как SHA-256 hex.
type Credentials struct {
	Login        string
	Password     string
	Version      string
	DeviceID     string
	GUIOS        string
	GUIOSVersion string
	OSType       int
}

const stationTypeTrader = "Trader"

// Login выполняет вход трейдера.
func (t TradeAPI) Login(ctx context.Context, cr Credentials) (protocol.Envelope, error) {
	return t.c.Request(ctx, loginEnvelope(cr))
}

func loginEnvelope(cr Credentials) protocol.Envelope {
	sum := sha256.Sum256([]byte(cr.Password))
	return protocol.New(protocol.MTITradeLogin).
		With("stationTypeName", stationTypeTrader).
		With("login", cr.Login).
		With("password", hex.EncodeToString(sum[:])).
		With("osType", cr.OSType).
		With("version", cr.Version).
		With("deviceId", cr.DeviceID).
		With("guiOs", cr.GUIOS).
		With("guiOsVersion", cr.GUIOSVersion)
}

func (t TradeAPI) AccountList(ctx context.Context) (protocol.Envelope, error) {
	return t.c.Request(ctx, protocol.New(protocol.MTIAccountList))
}

// InstrumentList запрашивает справочник инструментов класса. lastUpdate
// (YYYYMMDDHHMMSS) учитывается для CFD и SB; пустая строка → полный список.
func (t TradeAPI) InstrumentList(ctx context.Context, class subscription.AssetClass, lastUpdate string) (protocol.Envelope, error) {
	env, err := instrumentListEnvelope(class, lastUpdate)
	if err != nil {
		return nil, err
	}
	return t.c.Request(ctx, env)
}

func instrumentListEnvelope(class subscription.AssetClass, lastUpdate string) (protocol.Envelope, error) {
	switch class {
	case subscription.FX:
		return protocol.New(protocol.MTIFXInstrumentList).With("category", "FX"), nil
	case subscription.CFD:
		env := protocol.New(protocol.MTICFDInstrumentList)
		if lastUpdate != "" {
			env["lastCFDUpdate"] = lastUpdate
		}
		return env, nil
	case subscription.SB:
		env := protocol.New(protocol.MTISBInstrumentList)
		if lastUpdate != "" {
			env["lastSBUpdate"] = lastUpdate
		}
		return env, nil
	}
	return nil, fmt.Errorf("client: instrument list: unsupported class %v", class)
}

// Positions запрашивает открытые позиции счёта по классу.
func (t TradeAPI) Positions(ctx context.Context, account string, class subscription.AssetClass) (protocol.Envelope, error) {
	return t.c.Request(ctx, protocol.New(protocol.MTIPositions).
		With("accountNumber", account).
		With("instrumentType", class.String()))
}

type orderOp int

const (
	opPlace orderOp = iota
	opPlaceStrategy
	opModify
	opCancel
)

var orderMTI = map[subscription.AssetClass][4]int{
	subscription.FX:  {protocol.MTIFXPlaceOrder, protocol.MTIFXPlaceStrategy, protocol.MTIFXModifyOrder, protocol.MTIFXCancelOrder},
	subscription.CFD: {protocol.MTICFDPlaceOrder, protocol.MTICFDPlaceStrategy, protocol.MTICFDModifyOrder, protocol.MTICFDCancelOrder},
	subscription.SB:  {protocol.MTISBPlaceOrder, protocol.MTISBPlaceStrategy, protocol.MTISBModifyOrder, protocol.MTISBCancelOrder},
}

func orderEnvelope(class subscription.AssetClass, op orderOp, fields map[string]any) (protocol.Envelope, error) {
	mtis, ok := orderMTI[class]
	if !ok {
		return nil, fmt.Errorf("client: order: unsupported class %v", class)
	}
	env := protocol.New(mtis[op])
	for k, v := range fields {
		if k == protocol.KeyMessageType || k == protocol.KeyMessageID {
			continue
		}
		env[k] = v
	}
	return env, nil
}

// PlaceOrder отправляет заявку; поля заявки передаются как есть.
func (t TradeAPI) PlaceOrder(ctx context.Context, class subscription.AssetClass, order map[string]any) (protocol.Envelope, error) {
	return t.order(ctx, class, opPlace, order)
}

// PlaceStrategy отправляет связанную стратегию заявок.
func (t TradeAPI) PlaceStrategy(ctx context.Context, class subscription.AssetClass, order map[string]any) (protocol.Envelope, error) {
	return t.order(ctx, class, opPlaceStrategy, order)
}

func (t TradeAPI) ModifyOrder(ctx context.Context, class subscription.AssetClass, order map[string]any) (protocol.Envelope, error) {
	return t.order(ctx, class, opModify, order)
}

// CancelRequest — параметры отмены. Необязательные поля опускаются,
// если пусты (InstrumentID <= 0, RetailSLTP < 0).
type CancelRequest struct {
	Account         string
	OrderID         int64
	InstrumentID    int64
	RetailSLTP      int
	CancelReason    string
	CustomerOrderID string
}

func (t TradeAPI) CancelOrder(ctx context.Context, class subscription.AssetClass, req CancelRequest) (protocol.Envelope, error) {
	return t.order(ctx, class, opCancel, cancelFields(req))
}

func cancelFields(req CancelRequest) map[string]any {
	f := map[string]any{
		"accountNumber": req.Account,
		"orderId":       req.OrderID,
	}
	if req.CustomerOrderID != "" {
		f["customerOrderId"] = req.CustomerOrderID
	}
	if req.InstrumentID > 0 {
		f["instrumentId"] = req.InstrumentID
	}
	if req.RetailSLTP >= 0 {
		f["retailSLTP"] = req.RetailSLTP
	}
	if req.CancelReason != "" {
		f["cancelReason"] = req.CancelReason
	}
	return f
}

func (t TradeAPI) order(ctx context.Context, class subscription.AssetClass, op orderOp, fields map[string]any) (protocol.Envelope, error) {
	env, err := orderEnvelope(class, op, fields)
	if err != nil {
		return nil, err
	}
	return t.c.Request(ctx, env)
}

// -----------------------------------------------------------------------------
// Signals
// -----------------------------------------------------------------------------

// SignalsAPI — торговые сигналы.
type SignalsAPI struct{ c *Client }

func NewSignalsAPI(c *Client) SignalsAPI { return SignalsAPI{c: c} }

// List запрашивает список сигналов. deviceTokenID может быть пустым.
func (s SignalsAPI) List(ctx context.Context, deviceTokenID string) (protocol.Envelope, error) {
	env := protocol.New(protocol.MTISignalList)
	if deviceTokenID != "" {
		env["deviceTokenId"] = deviceTokenID
	}
	return s.c.Request(ctx, env)
}

// NotifyNewOrder сообщает о заявке по сигналу; ответа не ждёт.
func (s SignalsAPI) NotifyNewOrder(userID, signalID int64) {
	s.c.Send(protocol.New(protocol.MTINotifyNewOrder).
		With("userId", userID).
		With("signalId", signalID))
}
