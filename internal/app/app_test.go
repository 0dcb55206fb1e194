package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/client"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/clock"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/config"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/correlation"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/loop"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/subscription"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/transport/ws"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

// venueServer отвечает успехом на вход (5008) и пересылает остальные
// сообщения в received. dropAfter > 0 означает разрыв после стольких сообщений.
func venueServer(t *testing.T, dropAfter int) (*httptest.Server, <-chan map[string]any) {
	t.Helper()
	received := make(chan map[string]any, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for n := 1; ; n++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				return
			}
			if msg["MTI"] == float64(5008) {
				_ = conn.WriteJSON(map[string]any{"MTI": 5008, "messageId": msg["messageId"], "resultCode": 0})
			} else {
				received <- msg
			}
			if dropAfter > 0 && n >= dropAfter {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func newSession(t *testing.T, ctx context.Context, url string) (*client.Client, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		Price: config.PriceConfig{
			WS: ws.Config{URL: url},
			Session: client.Config{
				Pacing:       correlation.PacerConfig{InitialDelay: 10 * time.Millisecond, Interval: 10 * time.Millisecond},
				Subscription: subscription.Config{Debounce: 10 * time.Millisecond, Stagger: 10 * time.Millisecond},
			},
			UserID: 17,
		},
		Instruments: []config.InstrumentConfig{{ID: 1001, Class: "FX"}},
	}

	log := logger.NewNop()
	lp := loop.New(clock.Real{}, log)
	go func() { _ = lp.Run(ctx) }()

	cl, err := client.New(lp, func(h ws.Handler) (client.Transport, error) {
		tr, err := ws.New(cfg.Price.WS, h, log)
		if err != nil {
			return nil, err
		}
		return tr, nil
	}, cfg.Price.Session, log)
	if err != nil {
		t.Fatal(err)
	}
	return cl, cfg
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRunSession_LoginAndSubscribe(t *testing.T) {
	srv, received := venueServer(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cl, cfg := newSession(t, ctx, wsURL(srv))
	done := make(chan error, 1)
	go func() { done <- runSession(ctx, cl, cfg, logger.NewNop()) }()

	select {
	case msg := <-received:
		if msg["MTI"] != float64(5010) {
			t.Fatalf("expected FX subscribe, got %v", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no subscribe request")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("runSession: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("runSession did not stop")
	}
}

func TestRunSession_ServerDrop(t *testing.T) {
	srv, _ := venueServer(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cl, cfg := newSession(t, ctx, wsURL(srv))
	done := make(chan error, 1)
	go func() { done <- runSession(ctx, cl, cfg, logger.NewNop()) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrDisconnected) {
			t.Fatalf("runSession: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session drop not detected")
	}
}
