package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Settings is Config with durations parsed and defaults applied.
type Settings struct {
	RequestTimeout      time.Duration
	StartupProbeTimeout time.Duration
	StatusProbeTimeout  time.Duration
	BackupTimeout       time.Duration
	TickInterval        time.Duration
	CatchUpWindow       time.Duration
	StorageBusyTimeout  time.Duration
	DiagReadTimeout     time.Duration
	DiagWriteTimeout    time.Duration
	DiagIdleTimeout     time.Duration
	Location            *time.Location
}

// Resolve validates cfg and parses its durations.
func Resolve(cfg *Config) (Settings, error) {
	if cfg == nil {
		cfg = Default()
	}
	var (
		s    Settings
		errs []error
	)
	parse := func(dst *time.Duration, path, raw string, def time.Duration) {
		d, err := parseDuration(path, raw, def)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = d
	}
	parse(&s.RequestTimeout, "client.request_timeout", cfg.Client.RequestTimeout, 30*time.Second)
	parse(&s.StartupProbeTimeout, "client.startup_probe_timeout", cfg.Client.StartupProbeTimeout, 3*time.Second)
	parse(&s.StatusProbeTimeout, "client.status_probe_timeout", cfg.Client.StatusProbeTimeout, 5*time.Second)
	parse(&s.BackupTimeout, "backup.timeout", cfg.Backup.Timeout, 2*time.Minute)
	parse(&s.TickInterval, "schedule.tick_interval", cfg.Schedule.TickInterval, 30*time.Second)
	parse(&s.CatchUpWindow, "schedule.catch_up_window", cfg.Schedule.CatchUpWindow, time.Hour)
	parse(&s.StorageBusyTimeout, "storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	parse(&s.DiagReadTimeout, "diag.read_timeout", cfg.Diag.ReadTimeout, 10*time.Second)
	parse(&s.DiagWriteTimeout, "diag.write_timeout", cfg.Diag.WriteTimeout, 10*time.Second)
	parse(&s.DiagIdleTimeout, "diag.idle_timeout", cfg.Diag.IdleTimeout, 60*time.Second)

	if s.TickInterval > 0 && s.TickInterval < time.Second {
		errs = append(errs, fmt.Errorf("schedule.tick_interval: must be at least 1s"))
	}
	if at := strings.TrimSpace(cfg.Schedule.DailyAt); at != "" {
		if err := checkHHMM(at); err != nil {
			errs = append(errs, fmt.Errorf("schedule.daily_at: %w", err))
		}
	}

	s.Location = time.Local
	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
		} else {
			s.Location = loc
		}
	}

	if cfg.Backup.LogRetention < 0 {
		errs = append(errs, fmt.Errorf("backup.log_retention: must be >= 0"))
	}
	if cfg.Mock.SensorHistoryCap < 0 {
		errs = append(errs, fmt.Errorf("mock.sensor_history_cap: must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "memory", "none":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path: required for driver %q", cfg.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if !cfg.Client.MockMode && strings.TrimSpace(cfg.Client.BaseURL) == "" {
		errs = append(errs, fmt.Errorf("client.base_url: required unless client.mock_mode is set"))
	}

	if err := errors.Join(errs...); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func checkHHMM(s string) error {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return fmt.Errorf("invalid minute in %q", s)
	}
	return nil
}

// parseDuration reads a Go duration string. Empty or zero means def.
func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	case d == 0:
		return def, nil
	}
	return d, nil
}
