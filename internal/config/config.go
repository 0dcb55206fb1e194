package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/client"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/subscription"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/transport/ws"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/httpserver"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/kafka"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/redis"
)

/*
   --------------------------------------------------------------------------
   СТРУКТУРЫ
   --------------------------------------------------------------------------
*/

// Config — все настройки сервиса.
type Config struct {
	ServiceName    string             `mapstructure:"service_name"`
	ServiceVersion string             `mapstructure:"service_version"`
	Price          PriceConfig        `mapstructure:"price"`
	Instruments    []InstrumentConfig `mapstructure:"instruments"`
	Kafka          KafkaConfig        `mapstructure:"kafka"`
	Redis          RedisConfig        `mapstructure:"redis"`
	SinkBuffer     int                `mapstructure:"sink_buffer"`
	Telemetry      Telemetry          `mapstructure:"telemetry"`
	Logging        logger.Config      `mapstructure:"logging"`
	HTTP           httpserver.Config  `mapstructure:"http"`
}

// PriceConfig — сессия ценового потока.
type PriceConfig struct {
	WS      ws.Config     `mapstructure:",squash"`
	Session client.Config `mapstructure:",squash"`

	// UserID > 0: после подключения выполняется вход (MTI 5008).
	UserID int64 `mapstructure:"user_id"`
	// Account — торговый счёт для ChangeAccount после входа.
	Account string `mapstructure:"account"`
}

// InstrumentConfig — инструмент, на который сервис подписывается при старте.
type InstrumentConfig struct {
	ID    int64  `mapstructure:"id"`
	Class string `mapstructure:"class"`
}

// AssetClass разбирает Class.
func (i InstrumentConfig) AssetClass() (subscription.AssetClass, error) {
	return subscription.ParseAssetClass(i.Class)
}

// KafkaConfig хранит настройки Kafka-sink'а.
type KafkaConfig struct {
	kafka.Config `mapstructure:",squash"`
	Enabled      bool   `mapstructure:"enabled"`
	Topic        string `mapstructure:"topic"`
}

// RedisConfig хранит настройки Redis-sink'а.
type RedisConfig struct {
	redis.Config `mapstructure:",squash"`
	Enabled      bool   `mapstructure:"enabled"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

// Telemetry хранит настройки OpenTelemetry. Пустой endpoint отключает экспорт.
type Telemetry struct {
	OTLPEndpoint string  `mapstructure:"otel_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SamplerRatio float64 `mapstructure:"sampler_ratio"`
}

/*
   --------------------------------------------------------------------------
   LOADER
   --------------------------------------------------------------------------
*/

// Load загружает и валидирует конфиг. Если path пустой, читаются только ENV и defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	// ---------- 1) Defaults ----------
	v.SetDefault("service_name", "venue-client")
	v.SetDefault("service_version", "v1.0.0")

	// Price session
	v.SetDefault("price.ws_url", "ws://localhost:8443/price")
	v.SetDefault("price.read_timeout", "30s")
	v.SetDefault("price.write_timeout", "5s")
	v.SetDefault("price.pacing.initial_delay", "200ms")
	v.SetDefault("price.pacing.interval", "100ms")
	v.SetDefault("price.subscription.debounce", "500ms")
	v.SetDefault("price.subscription.stagger", "100ms")
	v.SetDefault("price.user_id", 0)
	v.SetDefault("price.account", "")

	// Kafka
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "venue.prices")
	v.SetDefault("kafka.required_acks", "all")
	v.SetDefault("kafka.timeout", "15s")
	v.SetDefault("kafka.compression", "none")

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", "1m")
	v.SetDefault("redis.key_prefix", "venue:price:")

	v.SetDefault("sink_buffer", 1024)

	// Telemetry
	v.SetDefault("telemetry.otel_endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sampler_ratio", 1.0)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dev_mode", false)
	v.SetDefault("logging.encoding", "") // json, в dev_mode console
	v.SetDefault("logging.sampling.initial", 100)
	v.SetDefault("logging.sampling.thereafter", 100)

	// HTTP
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("http.metrics_path", "/metrics")
	v.SetDefault("http.healthz_path", "/healthz")
	v.SetDefault("http.readyz_path", "/readyz")

	// ---------- 2) ENV ----------
	v.SetEnvPrefix("VENUE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ---------- 3) Optional file ----------
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", v.ConfigFileUsed(), err)
		}
	}

	// ---------- 4) Decode ----------
	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToBoolHook,
	)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           &cfg,
		DecodeHook:       decodeHook,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// ---------- 5) Validation ----------
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// stringToBoolHook разбирает true/false, иначе отдает исходные данные.
func stringToBoolHook(f, t reflect.Kind, data interface{}) (interface{}, error) {
	if f == reflect.String && t == reflect.Bool {
		return strconv.ParseBool(data.(string))
	}
	return data, nil
}

/*
   --------------------------------------------------------------------------
   VALIDATION
   --------------------------------------------------------------------------
*/

func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required")
	}

	// Price
	if err := c.Price.WS.Validate(); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	durations := map[string]time.Duration{
		"price.pacing.initial_delay":  c.Price.Session.Pacing.InitialDelay,
		"price.pacing.interval":       c.Price.Session.Pacing.Interval,
		"price.subscription.debounce": c.Price.Session.Subscription.Debounce,
		"price.subscription.stagger":  c.Price.Session.Subscription.Stagger,
	}
	for k, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must be >= 0", k)
		}
	}
	if c.Price.Account != "" && c.Price.UserID <= 0 {
		return fmt.Errorf("price.account requires price.user_id")
	}

	// Instruments
	for i, ins := range c.Instruments {
		if ins.ID <= 0 {
			return fmt.Errorf("instruments[%d].id must be > 0", i)
		}
		if _, err := ins.AssetClass(); err != nil {
			return fmt.Errorf("instruments[%d]: %w", i, err)
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required")
		}
		if _, err := kafka.BuildSaramaConfig(c.Kafka.Config); err != nil {
			return err
		}
	}

	// Redis
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}

	if c.SinkBuffer <= 0 {
		return fmt.Errorf("sink_buffer must be > 0")
	}
	if c.Telemetry.SamplerRatio < 0 || c.Telemetry.SamplerRatio > 1 {
		return fmt.Errorf("telemetry.sampler_ratio must be in [0,1]")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.encoding must be json or console")
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}

/*
   --------------------------------------------------------------------------
   DEBUG PRINT
   --------------------------------------------------------------------------
*/

// Print выводит текущий конфиг в JSON (удобно в DevMode).
func (c *Config) Print() {
	b, _ := json.MarshalIndent(c, "", "  ")
	fmt.Println("Loaded configuration:\n", string(b))
}
