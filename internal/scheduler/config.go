// Package scheduler runs a development scheduler against the scheduler
// tables so the dashboard has live executions to show.
package scheduler

import "time"

// Config defines the scheduler configuration.
type Config struct {
	// Workers is the maximum number of tasks executing at once.
	Workers int `yaml:"workers"`
	// PollInterval is how often due tasks are looked for.
	PollInterval time.Duration `yaml:"poll_interval"`
	// Interval is how far ahead a finished task is rescheduled.
	Interval time.Duration `yaml:"interval"`
	// FailureRate is the share of executions of the default handler that fail.
	FailureRate float64 `yaml:"failure_rate"`
	// Duration is how long the default handler runs.
	Duration time.Duration `yaml:"duration"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:      4,
		PollInterval: 1 * time.Second,
		Interval:     30 * time.Second,
		FailureRate:  0.2,
		Duration:     2 * time.Second,
	}
}
