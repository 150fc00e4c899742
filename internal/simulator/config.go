package simulator

import (
	"time"

	"github.com/smallbiznis/mrrlab/internal/config"
)

// Config controls concurrency and pacing of a simulation run.
type Config struct {
	Workers           int
	SettleDelay       time.Duration
	ClockReadyTimeout time.Duration
	ClockPollInterval time.Duration
	// DaysUntilDue applies to send-invoice subscriptions of past-due scenarios.
	DaysUntilDue int64
}

func DefaultConfig() Config {
	return Config{
		Workers:           8,
		SettleDelay:       2 * time.Second,
		ClockReadyTimeout: 2 * time.Minute,
		ClockPollInterval: time.Second,
		DaysUntilDue:      7,
	}
}

func FromAppConfig(cfg config.SimulatorConfig) Config {
	return Config{
		Workers:           cfg.Workers,
		SettleDelay:       cfg.SettleDelay,
		ClockReadyTimeout: cfg.ClockReadyTimeout,
		ClockPollInterval: cfg.ClockPollInterval,
	}
}

// withDefaults fills unset limits. Zero settle and poll delays are kept so tests run without sleeping.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
	if c.ClockReadyTimeout <= 0 {
		c.ClockReadyTimeout = defaults.ClockReadyTimeout
	}
	if c.DaysUntilDue <= 0 {
		c.DaysUntilDue = defaults.DaysUntilDue
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.ClockPollInterval < 0 {
		c.ClockPollInterval = 0
	}
	return c
}
