package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/backoff"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

func TestPublish_Success(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"x":1}` {
			return errors.New("unexpected value " + string(val))
		}
		return nil
	})

	p := NewFromSyncProducer(mp, Config{}, logger.NewNop())
	if err := p.Publish(context.Background(), "prices", []byte("7"), []byte(`{"x":1}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublish_PermanentErrorNotRetried(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageAndFail(sarama.ErrMessageSizeTooLarge)

	cfg := Config{Backoff: backoff.Config{InitialInterval: time.Millisecond}}
	p := NewFromSyncProducer(mp, cfg, logger.NewNop())

	err := p.Publish(context.Background(), "prices", nil, []byte("v"))
	if !errors.Is(err, sarama.ErrMessageSizeTooLarge) {
		t.Fatalf("err = %v", err)
	}
	_ = p.Close()
}

func TestBuildSaramaConfig(t *testing.T) {
	sc, err := BuildSaramaConfig(Config{Brokers: []string{"b:9092"}, RequiredAcks: "leader", Compression: "zstd"})
	if err != nil {
		t.Fatal(err)
	}
	if sc.Producer.RequiredAcks != sarama.WaitForLocal || sc.Producer.Compression != sarama.CompressionZSTD {
		t.Fatalf("config = %+v", sc.Producer)
	}
	if sc.Producer.Idempotent {
		t.Fatal("idempotence requires acks=all")
	}

	if _, err := BuildSaramaConfig(Config{RequiredAcks: "some"}); err == nil {
		t.Fatal("invalid acks must fail")
	}
	if _, err := BuildSaramaConfig(Config{Compression: "brotli"}); err == nil {
		t.Fatal("invalid compression must fail")
	}
}

func TestNew_RequiresBrokers(t *testing.T) {
	if _, err := New(context.Background(), Config{}, logger.NewNop()); err == nil {
		t.Fatal("expected validation error")
	}
}
