package janitor

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// defaultSchedule runs the sweep nightly at 03:00.
const defaultSchedule = "0 3 * * *"

// Config controls the maintenance sweep.
type Config struct {
	// Enabled turns the scheduled sweep on. Nil means enabled.
	Enabled *bool `yaml:"enabled"`

	// Schedule is a 5-field cron expression. Defaults to "0 3 * * *".
	Schedule string `yaml:"schedule"`
}

func (c *Config) defaults() {
	if c.Schedule == "" {
		c.Schedule = defaultSchedule
	}
}

func (c *Config) enabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate checks the schedule expression without starting a scheduler.
func (c *Config) Validate() error {
	expr := c.Schedule
	if expr == "" {
		expr = defaultSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("janitor: invalid schedule %q: %w", expr, err)
	}
	return nil
}
