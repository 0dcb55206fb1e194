package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/kafka"
)

type kafkaSink struct {
	producer kafka.Producer
	topic    string
}

// NewKafka публикует обновления в topic; ключом служит id инструмента,
// так что обновления одного инструмента попадают в одну партицию.
func NewKafka(p kafka.Producer, topic string) Sink {
	return &kafkaSink{producer: p, topic: topic}
}

func (k *kafkaSink) Name() string { return "kafka" }

func (k *kafkaSink) Write(ctx context.Context, u Update) error {
	value, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("kafka sink: marshal: %w", err)
	}
	key := strconv.FormatInt(u.Instrument.InstrumentID(), 10)
	return k.producer.Publish(ctx, k.topic, []byte(key), value)
}
