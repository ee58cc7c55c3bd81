package dunning

import (
	"time"

	appconfig "github.com/smallbiznis/payline/internal/config"
)

// Config controls the dunning run cadence and batch size.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 24 * time.Hour,
		BatchSize:   200,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}

func ProvideConfig(cfg appconfig.Config) Config {
	return Config{
		RunInterval: cfg.Dunning.RunInterval,
	}
}
