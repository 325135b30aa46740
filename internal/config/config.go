// Package config loads the run configuration from the environment.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`

	Run struct {
		// Dir is the run directory holding the trials database and the
		// optimizer snapshots.
		Dir string `env:"RUN_DIR" envDefault:"data/run"`

		// Epochs fixes the run length; 0 lets the engine adapt.
		Epochs int `env:"EPOCHS" envDefault:"0"`

		// Effort scales how long an adaptive run keeps going.
		Effort float64 `env:"EFFORT" envDefault:"1"`

		// Jobs is the evaluation parallelism; 0 derives it from the CPU
		// count.
		Jobs int `env:"JOBS" envDefault:"0"`

		// Mode is the optimizer topology: single, multi or shared.
		Mode string `env:"MODE" envDefault:"single"`

		// Points is how many candidates each ask emits.
		Points int `env:"ASK_POINTS" envDefault:"1"`

		// LieStrategy fabricates outcomes for multi-point asks: cl_min,
		// cl_mean, cl_max, random or default.
		LieStrategy string `env:"LIE_STRATEGY" envDefault:"default"`

		// Refine polishes each suggested point with a local search before
		// it is evaluated.
		Refine bool `env:"ACQ_REFINE" envDefault:"true"`

		// RandomState seeds the search; 0 draws a random seed.
		RandomState int64 `env:"RANDOM_STATE" envDefault:"0"`

		// MinTrades voids evaluations that trade less than this.
		MinTrades int `env:"MIN_TRADES" envDefault:"1"`

		// Spaces selects the dimension groups to search.
		Spaces []string `env:"SPACES" envSeparator:"," envDefault:"default"`
	}

	HTTP struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Run.Jobs < 1 {
		cfg.Run.Jobs = runtime.NumCPU() / 2
		if cfg.Run.Jobs < 1 {
			cfg.Run.Jobs = 1
		}
	}
	if cfg.Run.Points < 1 {
		cfg.Run.Points = 1
	}
	if cfg.Run.Effort <= 0 {
		return nil, fmt.Errorf("config: EFFORT must be positive, got %v", cfg.Run.Effort)
	}
	if cfg.Run.Epochs < 0 {
		return nil, fmt.Errorf("config: EPOCHS must not be negative, got %d", cfg.Run.Epochs)
	}
	if cfg.Run.MinTrades < 0 {
		return nil, fmt.Errorf("config: MIN_TRADES must not be negative, got %d", cfg.Run.MinTrades)
	}
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}
