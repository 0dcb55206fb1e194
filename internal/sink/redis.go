package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/redis"
)

// DefaultKeyPrefix используется, если префикс не задан.
const DefaultKeyPrefix = "venue:price:"

type redisSink struct {
	storage redis.Storage
	prefix  string
}

// NewRedis хранит последний LivePrice каждого инструмента под ключом prefix+id.
func NewRedis(s redis.Storage, prefix string) Sink {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &redisSink{storage: s, prefix: prefix}
}

func (r *redisSink) Name() string { return "redis" }

// Key возвращает ключ кеша для инструмента.
func (r *redisSink) Key(instrumentID int64) string {
	return r.prefix + strconv.FormatInt(instrumentID, 10)
}

func (r *redisSink) Write(ctx context.Context, u Update) error {
	value, err := json.Marshal(u.Price)
	if err != nil {
		return fmt.Errorf("redis sink: marshal: %w", err)
	}
	return r.storage.Set(ctx, r.Key(u.Instrument.InstrumentID()), value)
}
