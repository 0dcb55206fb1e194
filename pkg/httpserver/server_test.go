package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

func newTestServer(t *testing.T, check ReadyChecker) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "t"}))
	s, err := New(Config{Addr: ":0"}, check, reg, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestEndpoints(t *testing.T) {
	ready := errors.New("ws disconnected")
	s := newTestServer(t, func() error { return ready })
	h := s.Handler()

	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	rec := get(t, h, "/readyz")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "ws disconnected") {
		t.Fatalf("readyz = %d %q", rec.Code, rec.Body.String())
	}

	ready = nil
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("readyz after connect = %d", rec.Code)
	}
	if rec := get(t, h, "/metrics"); !strings.Contains(rec.Body.String(), "test_total") {
		t.Fatalf("metrics body missing counter: %q", rec.Body.String())
	}
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(Config{}, func() error { return nil }, nil, logger.NewNop()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRecover(t *testing.T) {
	h := Recover(logger.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	if rec := get(t, h, "/"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
	}))

	rec := get(t, h, "/")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != "abc" || seen != "abc" {
		t.Fatalf("request id = %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestCompose_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Compose(mw("a"), mw("b"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	get(t, h, "/")
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("order = %v", order)
	}
}
