// Package subscription сводит подписки многих потребителей к минимальному
// числу серверных сообщений и раздаёт им обновления цен.
//
// Multiplexer не синхронизирован: вызывать только из цикла сессии.
package subscription

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/clock"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/correlation"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/marketdata"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/protocol"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

// Config — тайминги пакетов подписки.
type Config struct {
	// Debounce — окно, в котором изменения подписок сворачиваются в одно.
	Debounce time.Duration `mapstructure:"debounce"`
	// Stagger — шаг задержки между пакетами подписки разных классов.
	Stagger time.Duration `mapstructure:"stagger"`
}

func (c *Config) applyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = 500 * time.Millisecond
	}
	if c.Stagger <= 0 {
		c.Stagger = 100 * time.Millisecond
	}
}

// Callback получает исходное обновление инструмента.
type Callback func(marketdata.Instrument)

// Observer видит каждое обновление вместе с пересчитанным кешем.
type Observer func(marketdata.Instrument, LivePrice)

// BatchItem — элемент instrumentList в пакете подписки.
type BatchItem struct {
	InstrumentID int64 `json:"instrumentId"`
	StreamType   int   `json:"streamType"`
}

// KeyInstrumentList — поле конверта со списком инструментов.
const KeyInstrumentList = "instrumentList"

type entry struct {
	callbackID int
	owner      string
	cb         Callback
}

type delta struct {
	net   int
	class AssetClass
}

type Multiplexer struct {
	clk clock.Clock
	out correlation.Outbound
	cfg Config
	log *logger.Logger

	subs    map[int64][]entry
	classes map[int64]AssetClass
	prices  map[int64]*LivePrice

	deltas     map[int64]*delta
	deltaOrder []int64
	timer      clock.Timer

	staggerSeq int
	staggered  map[int]clock.Timer

	observer Observer
}

func New(clk clock.Clock, out correlation.Outbound, cfg Config, log *logger.Logger) *Multiplexer {
	cfg.applyDefaults()
	return &Multiplexer{
		clk:       clk,
		out:       out,
		cfg:       cfg,
		log:       log.Named("subscription"),
		subs:      make(map[int64][]entry),
		classes:   make(map[int64]AssetClass),
		prices:    make(map[int64]*LivePrice),
		deltas:    make(map[int64]*delta),
		staggered: make(map[int]clock.Timer),
	}
}

// SetObserver задаёт наблюдателя обновлений (nil отключает).
func (m *Multiplexer) SetObserver(o Observer) { m.observer = o }

// Subscribe добавляет подписчика. Повтор той же пары (callbackID, owner)
// заменяет callback. Первый подписчик инструмента даёт +1 в окно debounce.
func (m *Multiplexer) Subscribe(instrumentID int64, class AssetClass, callbackID int, owner string, cb Callback) {
	list := m.subs[instrumentID]
	for i := range list {
		if list[i].callbackID == callbackID && list[i].owner == owner {
			list[i].cb = cb
			return
		}
	}

	m.subs[instrumentID] = append(list, entry{callbackID: callbackID, owner: owner, cb: cb})
	if len(list) == 0 {
		m.classes[instrumentID] = class
		m.record(instrumentID, class, +1)
	}
}

// Unsubscribe удаляет подписчика (callbackID, owner). Последний ушедший
// подписчик даёт -1 в окно debounce.
func (m *Multiplexer) Unsubscribe(instrumentID int64, callbackID int, owner string) {
	list, ok := m.subs[instrumentID]
	if !ok {
		return
	}

	kept := list[:0]
	for _, e := range list {
		if e.callbackID == callbackID && e.owner == owner {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) > 0 {
		m.subs[instrumentID] = kept
		return
	}

	class := m.classes[instrumentID]
	delete(m.subs, instrumentID)
	delete(m.classes, instrumentID)
	m.record(instrumentID, class, -1)
}

func (m *Multiplexer) record(instrumentID int64, class AssetClass, d int) {
	if acc, ok := m.deltas[instrumentID]; ok {
		acc.net += d
	} else {
		m.deltas[instrumentID] = &delta{net: d, class: class}
		m.deltaOrder = append(m.deltaOrder, instrumentID)
	}
	if m.timer == nil {
		m.timer = m.clk.AfterFunc(m.cfg.Debounce, m.flush)
	}
}

// flush отправляет накопленные за окно изменения: отписки сразу,
// подписки со ступенчатой задержкой по классам. Нулевой итог ничего не шлёт.
func (m *Multiplexer) flush() {
	m.timer = nil

	subscribe := make(map[AssetClass][]BatchItem)
	unsubscribe := make(map[AssetClass][]BatchItem)
	for _, id := range m.deltaOrder {
		acc := m.deltas[id]
		item := BatchItem{InstrumentID: id, StreamType: acc.class.StreamTag()}
		switch {
		case acc.net < 0:
			unsubscribe[acc.class] = append(unsubscribe[acc.class], item)
		case acc.net > 0:
			subscribe[acc.class] = append(subscribe[acc.class], item)
		}
	}
	m.deltas = make(map[int64]*delta)
	m.deltaOrder = nil

	for _, class := range classOrder {
		if items := unsubscribe[class]; len(items) > 0 {
			m.sendBatch("unsubscribe", class, class.UnsubscribeMTI(), items)
		}
	}
	m.sendStaggered(subscribe)
}

func (m *Multiplexer) sendStaggered(batches map[AssetClass][]BatchItem) {
	k := 0
	for _, class := range classOrder {
		items := batches[class]
		if len(items) == 0 {
			continue
		}
		class := class
		if k == 0 {
			m.sendBatch("subscribe", class, class.SubscribeMTI(), items)
		} else {
			m.staggerSeq++
			seq := m.staggerSeq
			m.staggered[seq] = m.clk.AfterFunc(time.Duration(k)*m.cfg.Stagger, func() {
				delete(m.staggered, seq)
				m.sendBatch("subscribe", class, class.SubscribeMTI(), items)
			})
		}
		k++
	}
}

func (m *Multiplexer) sendBatch(kind string, class AssetClass, mti int, items []BatchItem) {
	metrics.SubscriptionBatches.WithLabelValues(kind, class.String()).Inc()
	m.log.Debug("subscription batch",
		zap.String("kind", kind),
		zap.Stringer("class", class),
		zap.Int("instruments", len(items)),
	)
	m.out.Enqueue(protocol.New(mti).With(KeyInstrumentList, items))
}

// Resubscribe заново подписывает все инструменты с подписчиками
// (после смены счёта сервер забывает подписки).
func (m *Multiplexer) Resubscribe() {
	ids := make([]int64, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	batches := make(map[AssetClass][]BatchItem)
	for _, id := range ids {
		class := m.classes[id]
		batches[class] = append(batches[class], BatchItem{InstrumentID: id, StreamType: class.StreamTag()})
	}
	m.sendStaggered(batches)
}

// Update обновляет кеш цены и вызывает всех подписчиков инструмента
// с исходной записью.
func (m *Multiplexer) Update(ins marketdata.Instrument) {
	id := ins.InstrumentID()
	lp, ok := m.prices[id]
	if !ok {
		lp = &LivePrice{InstrumentID: id}
		m.prices[id] = lp
	}
	lp.apply(ins, m.clk.Now())

	if m.observer != nil {
		m.observer(ins, *lp)
	}

	// Копия: callback может отписаться.
	list := append([]entry(nil), m.subs[id]...)
	for _, e := range list {
		e.cb(ins)
	}
	metrics.CallbacksInvoked.Add(float64(len(list)))
}

// Snapshot возвращает копию кеша цены.
func (m *Multiplexer) Snapshot(instrumentID int64) (LivePrice, bool) {
	lp, ok := m.prices[instrumentID]
	if !ok {
		return LivePrice{}, false
	}
	return *lp, true
}

// Subscribers — число подписчиков инструмента.
func (m *Multiplexer) Subscribers(instrumentID int64) int {
	return len(m.subs[instrumentID])
}

// Reset сбрасывает подписчиков, окно debounce, отложенные пакеты и кеш цен.
func (m *Multiplexer) Reset() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	for seq, t := range m.staggered {
		t.Stop()
		delete(m.staggered, seq)
	}
	m.subs = make(map[int64][]entry)
	m.classes = make(map[int64]AssetClass)
	m.prices = make(map[int64]*LivePrice)
	m.deltas = make(map[int64]*delta)
	m.deltaOrder = nil
}
