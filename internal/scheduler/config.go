package scheduler

import (
	"time"

	"github.com/smallbiznis/storefront-ledger/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval  time.Duration
	BatchSize    int
	EnabledJobs  []string
	DecayTimeout time.Duration
	LockTTL      time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Minute,
		BatchSize:    200,
		DecayTimeout: 30 * time.Minute,
		LockTTL:      35 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		BatchSize:   cfg.Scheduler.BatchSize,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
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
	if c.DecayTimeout <= 0 {
		c.DecayTimeout = defaults.DecayTimeout
	}
	// the lease must outlive the job it guards
	if c.LockTTL <= c.DecayTimeout {
		c.LockTTL = c.DecayTimeout + 5*time.Minute
	}
	return c
}
