// Package config loads service configuration from the environment using
// go-envconfig.
package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the full configuration of the registry services.
type Config struct {
	Addr       string `env:"D2D_ADDR, default=:5051"`
	PublicURL  string `env:"D2D_PUBLIC_URL, default=http://localhost:5051"`
	PGDSN      string `env:"D2D_PG_DSN"`
	AuthSecret string `env:"D2D_AUTH_SECRET"`

	RateBurst  int `env:"D2D_RATE_BURST, default=20"`
	RatePerSec int `env:"D2D_RATE_PER_SEC, default=10"`

	Watch WatchConfig

	FingerprintTimeout time.Duration `env:"D2D_FINGERPRINT_TIMEOUT, default=2m"`
}

// WatchConfig configures the auto-registration watcher.
type WatchConfig struct {
	Dir         string        `env:"D2D_WATCH_DIR"`
	SettleDelay time.Duration `env:"D2D_WATCH_SETTLE, default=2s"`
}

// Load reads configuration from environment variables.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
