package ws

import (
	"fmt"
	"time"

	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/backoff"
)

// Config holds WebSocket settings for the venue price/trade endpoints.
type Config struct {
	URL          string         `mapstructure:"ws_url"`
	ReadTimeout  time.Duration  `mapstructure:"read_timeout"`
	WriteTimeout time.Duration  `mapstructure:"write_timeout"`
	DialBackoff  backoff.Config `mapstructure:"backoff"`
}

// ApplyDefaults applies fallback defaults if values are unset.
func (c *Config) ApplyDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.DialBackoff.MaxElapsedTime <= 0 {
		c.DialBackoff.MaxElapsedTime = time.Minute
	}
}

// Validate checks config for required fields.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("ws: URL is required")
	}
	return nil
}
