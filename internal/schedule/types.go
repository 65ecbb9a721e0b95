// Package schedule fires the daily backup.
//
// The Service holds the configured time of day and the running flag and
// computes the next fire instant from the injected clock. It does not sleep:
// something external calls Tick, normally the cron-driven Ticker. Ticks may
// arrive late or irregularly; a due fire that is discovered more than the
// catch-up window after its time is skipped rather than run late.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"haccpkit/internal/backup"
	"haccpkit/internal/envelope"
)

const (
	DefaultDailyAt       = "18:00"
	DefaultCatchUpWindow = time.Hour
	DefaultTickInterval  = 30 * time.Second

	configKey = "schedule/config"
)

var ErrInvalidTime = errors.New("invalid schedule time")

// InvalidTimeError reports an out-of-range hour or minute. It matches ErrInvalidTime.
type InvalidTimeError struct {
	Hour   int
	Minute int
}

func (e *InvalidTimeError) Error() string {
	return fmt.Sprintf("invalid schedule time %02d:%02d: hour must be 0-23 and minute 0-59", e.Hour, e.Minute)
}

func (e *InvalidTimeError) Is(target error) bool { return target == ErrInvalidTime }

// ScheduleConfig is the persisted schedule.
type ScheduleConfig struct {
	Hour    int  `json:"hour"`
	Minute  int  `json:"minute"`
	Enabled bool `json:"enabled"`
}

func (c ScheduleConfig) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Runner is the backup job runner.
type Runner interface {
	Run(ctx context.Context, trigger backup.Trigger) envelope.Envelope
}

type Config struct {
	// DailyAt is the HH:MM used when nothing is persisted yet.
	DailyAt string
	// Enabled is the initial running flag when nothing is persisted yet.
	Enabled       bool
	CatchUpWindow time.Duration
	Location      *time.Location
}

func (c Config) withDefaults() Config {
	if c.DailyAt == "" {
		c.DailyAt = DefaultDailyAt
	}
	if c.CatchUpWindow <= 0 {
		c.CatchUpWindow = DefaultCatchUpWindow
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

// TickResult describes what one Tick did.
type TickResult string

const (
	TickIdle    TickResult = "idle"
	TickWaiting TickResult = "waiting"
	TickFired   TickResult = "fired"
	TickSkipped TickResult = "skipped_late"
)
