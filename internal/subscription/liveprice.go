package subscription

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/marketdata"
)

// LivePrice — кеш верха стакана по инструменту с направлением движения.
// Trend: 1 — цена улучшилась, -1 — ухудшилась, 0 — без изменений.
type LivePrice struct {
	InstrumentID int64           `json:"instrumentId"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	BidTradable  bool            `json:"bidTradable"`
	AskTradable  bool            `json:"askTradable"`
	BidTrend     int             `json:"bidTrend"`
	AskTrend     int             `json:"askTrend"`
	BidValueDate string          `json:"bidValueDate"`
	AskValueDate string          `json:"askValueDate"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// apply обновляет кеш по первому уровню. Без уровней сбрасываются
// флаги торгуемости и тренды, цены остаются прежними.
func (p *LivePrice) apply(ins marketdata.Instrument, now time.Time) {
	p.UpdatedAt = now

	q, ok := ins.TopOfBook()
	if !ok {
		p.BidTradable, p.AskTradable = false, false
		p.BidTrend, p.AskTrend = 0, 0
		return
	}

	bid := decimal.NewFromFloat(q.BidRate.Float64())
	ask := decimal.NewFromFloat(q.AskRate.Float64())

	// Для bid улучшение означает рост, для ask снижение.
	p.BidTrend = bid.Cmp(p.Bid)
	p.AskTrend = p.Ask.Cmp(ask)

	p.Bid, p.Ask = bid, ask
	p.BidTradable, p.AskTradable = q.BidTradable, q.AskTradable
	p.BidValueDate, p.AskValueDate = q.BidValueDate, q.AskValueDate
}
