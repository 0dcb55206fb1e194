package redis

import "context"

// Storage — запись последних котировок; обратно сервис их не читает.
type Storage interface {
	// Set сохраняет value с TTL из конфигурации.
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}
