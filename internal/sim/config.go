package sim

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the runtime configuration, read from the environment.
type Config struct {
	DBPath       string        `env:"WORLDSIM_DB" envDefault:"worldsim.db"`
	Seed         int64         `env:"WORLDSIM_SEED" envDefault:"1337"`
	Speed        float64       `env:"WORLDSIM_SPEED" envDefault:"1.0"`
	TickInterval time.Duration `env:"WORLDSIM_TICK_INTERVAL" envDefault:"1s"`
	LogLevel     string        `env:"WORLDSIM_LOG_LEVEL" envDefault:"info"`
	SaveEvery    int           `env:"WORLDSIM_SAVE_EVERY" envDefault:"7"` // days between saves
}

// LoadConfig parses configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.SaveEvery < 1 {
		cfg.SaveEvery = 1
	}
	return cfg, nil
}
