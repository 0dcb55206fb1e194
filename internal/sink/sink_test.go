package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/marketdata"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/subscription"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/kafka"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

// ----------------------------------------------------------------------------
// helpers
// ----------------------------------------------------------------------------

type recordingSink struct {
	name string
	err  error
	got  chan Update
}

func newRecordingSink(name string, err error) *recordingSink {
	return &recordingSink{name: name, err: err, got: make(chan Update, 8)}
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Write(_ context.Context, u Update) error {
	r.got <- u
	return r.err
}

type memStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

// stored читает значение напрямую, минуя Storage.
func (m *memStorage) stored(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

func (m *memStorage) Ping(context.Context) error { return nil }
func (m *memStorage) Close() error               { return nil }

func sampleUpdate(id int64) Update {
	band := marketdata.NewFXBand()
	band.BidRate, band.AskRate = 1.1, 1.2
	return Update{
		Instrument: &marketdata.FXInstrument{ID: id, StreamType: marketdata.StreamFXBest, Bands: []marketdata.FXBand{band}},
		Price: subscription.LivePrice{
			InstrumentID: id,
			Bid:          decimal.RequireFromString("1.1"),
			Ask:          decimal.RequireFromString("1.2"),
		},
		ReceivedAt: time.Unix(1700000000, 0).UTC(),
	}
}

// ----------------------------------------------------------------------------
// Dispatcher
// ----------------------------------------------------------------------------

func TestDispatcher_FansOutToAllSinks(t *testing.T) {
	a := newRecordingSink("a", nil)
	b := newRecordingSink("b", fmt.Errorf("boom"))
	d := NewDispatcher(4, logger.NewNop(), a, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	u := sampleUpdate(7)
	d.Observe(u.Instrument, u.Price)

	for _, s := range []*recordingSink{a, b} {
		select {
		case got := <-s.got:
			if got.Instrument.InstrumentID() != 7 {
				t.Fatalf("%s got instrument %d", s.name, got.Instrument.InstrumentID())
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: no update", s.name)
		}
	}

	// Ошибка одного sink'а не останавливает диспетчер.
	d.Observe(u.Instrument, u.Price)
	select {
	case <-a.got:
	case <-time.After(time.Second):
		t.Fatal("dispatcher stopped after sink error")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, logger.NewNop())
	u := sampleUpdate(1)

	d.Observe(u.Instrument, u.Price)
	d.Observe(u.Instrument, u.Price) // буфер полон, не должно блокировать

	if len(d.in) != 1 {
		t.Fatalf("buffered = %d", len(d.in))
	}
}

// ----------------------------------------------------------------------------
// Kafka / Redis sinks
// ----------------------------------------------------------------------------

func TestKafkaSink_PublishesRecord(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got struct {
			Record struct {
				ID int64 `json:"instrumentId"`
			} `json:"record"`
			Price struct {
				Bid string `json:"bid"`
			} `json:"price"`
		}
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Record.ID != 42 || got.Price.Bid != "1.1" {
			return fmt.Errorf("unexpected payload %s", val)
		}
		return nil
	})
	p := kafka.NewFromSyncProducer(mp, kafka.Config{}, logger.NewNop())

	s := NewKafka(p, "venue.prices")
	if s.Name() != "kafka" {
		t.Fatalf("name = %q", s.Name())
	}
	if err := s.Write(context.Background(), sampleUpdate(42)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = p.Close()
}

func TestRedisSink_StoresLivePrice(t *testing.T) {
	st := &memStorage{}
	s := NewRedis(st, "")

	if err := s.Write(context.Background(), sampleUpdate(9)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw, ok := st.stored(DefaultKeyPrefix + "9")
	if !ok {
		t.Fatal("snapshot not stored")
	}
	var lp subscription.LivePrice
	if err := json.Unmarshal(raw, &lp); err != nil {
		t.Fatal(err)
	}
	if lp.InstrumentID != 9 || !lp.Ask.Equal(decimal.RequireFromString("1.2")) {
		t.Fatalf("stored %+v", lp)
	}
}
