package telemetry

import (
	"context"
	"testing"

	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

func TestInitTracer_Validation(t *testing.T) {
	cases := []Config{
		{ServiceVersion: "v1"},
		{ServiceName: "svc"},
		{ServiceName: "svc", ServiceVersion: "v1", SamplerRatio: 1.5},
	}
	for _, c := range cases {
		if _, err := InitTracer(context.Background(), c, logger.NewNop()); err == nil {
			t.Errorf("expected error for %+v", c)
		}
	}
}

func TestInitTracer_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{ServiceName: "svc", ServiceVersion: "v1"}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
