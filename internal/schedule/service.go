package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"haccpkit/internal/backup"
	"haccpkit/internal/clock"
	"haccpkit/internal/metrics"
	"haccpkit/internal/storage"
	logx "haccpkit/pkg/logx"
)

type Service struct {
	mu      sync.Mutex
	cfg     Config
	store   storage.Store
	runner  Runner
	clock   clock.Clock
	log     logx.Logger
	metrics *metrics.Metrics

	sc   ScheduleConfig
	next time.Time
}

// New loads the persisted schedule, or seeds it from cfg on first use. A
// persisted enabled schedule resumes with a fresh next fire time.
func New(ctx context.Context, cfg Config, store storage.Store, runner Runner, clk clock.Clock, log logx.Logger, m *metrics.Metrics) (*Service, error) {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:     cfg,
		store:   store,
		runner:  runner,
		clock:   clock.OrReal(clk),
		log:     log,
		metrics: m,
	}

	var sc ScheduleConfig
	found, err := storage.GetJSON(ctx, store, configKey, &sc)
	if err != nil {
		return nil, fmt.Errorf("schedule: load config: %w", err)
	}
	if !found || validate(sc.Hour, sc.Minute) != nil {
		h, mi, err := parseHHMM(cfg.DailyAt)
		if err != nil {
			return nil, fmt.Errorf("schedule: daily_at: %w", err)
		}
		sc = ScheduleConfig{Hour: h, Minute: mi, Enabled: cfg.Enabled}
		if err := storage.PutJSON(ctx, store, configKey, sc); err != nil {
			return nil, fmt.Errorf("schedule: save config: %w", err)
		}
	}
	s.sc = sc
	if sc.Enabled {
		s.next = s.nextOccurrenceLocked(s.clock.Now())
	}
	return s, nil
}

// SetScheduleTime changes the daily fire time. Out-of-range values return
// *InvalidTimeError and leave the schedule untouched.
func (s *Service) SetScheduleTime(hour, minute int) error {
	if err := validate(hour, minute); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.sc
	sc.Hour, sc.Minute = hour, minute
	if err := s.saveLocked(sc); err != nil {
		return err
	}
	s.sc = sc
	if sc.Enabled {
		s.next = s.nextOccurrenceLocked(s.clock.Now())
	}
	s.log.Info("backup schedule updated", logx.String("at", sc.String()), logx.Bool("enabled", sc.Enabled))
	return nil
}

// SetScheduleAt accepts "HH:MM".
func (s *Service) SetScheduleAt(hhmm string) error {
	h, m, err := parseHHMM(hhmm)
	if err != nil {
		return err
	}
	return s.SetScheduleTime(h, m)
}

// Start enables the schedule. Calling it while running changes nothing.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sc.Enabled && !s.next.IsZero() {
		return nil
	}
	sc := s.sc
	sc.Enabled = true
	if err := s.saveLocked(sc); err != nil {
		return err
	}
	s.sc = sc
	s.next = s.nextOccurrenceLocked(s.clock.Now())
	s.log.Info("backup schedule started", logx.String("at", sc.String()), logx.Time("next", s.next))
	return nil
}

func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.sc
	sc.Enabled = false
	if err := s.saveLocked(sc); err != nil {
		return err
	}
	s.sc = sc
	s.next = time.Time{}
	s.log.Info("backup schedule stopped")
	return nil
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sc.Enabled
}

// NextFireTime returns the pending fire instant; ok is false when stopped.
func (s *Service) NextFireTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sc.Enabled || s.next.IsZero() {
		return time.Time{}, false
	}
	return s.next, true
}

func (s *Service) Config() ScheduleConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sc
}

// Tick fires the backup when it is due. The next fire time is always
// recomputed from the current time, so a missed day is not made up.
func (s *Service) Tick(ctx context.Context) TickResult {
	res := s.tick(ctx)
	s.metrics.ObserveTick(string(res))
	return res
}

func (s *Service) tick(ctx context.Context) TickResult {
	s.mu.Lock()
	if !s.sc.Enabled || s.next.IsZero() {
		s.mu.Unlock()
		return TickIdle
	}
	now := s.clock.Now()
	if now.Before(s.next) {
		s.mu.Unlock()
		return TickWaiting
	}
	due := s.next
	s.next = s.nextOccurrenceLocked(now)
	next := s.next
	window := s.cfg.CatchUpWindow
	s.mu.Unlock()

	late := now.Sub(due)
	if late > window {
		s.log.Warn("scheduled backup missed; skipping to next day",
			logx.Time("due", due),
			logx.Duration("late", late),
			logx.Time("next", next),
		)
		return TickSkipped
	}

	s.log.Info("scheduled backup due", logx.Time("due", due), logx.Time("next", next))
	if s.runner == nil {
		s.log.Warn("no backup runner configured")
		return TickFired
	}
	res := s.runner.Run(ctx, backup.TriggerScheduled)
	if !res.Success {
		s.log.Warn("scheduled backup did not succeed", logx.String("error", res.Error))
	}
	return TickFired
}

func (s *Service) saveLocked(sc ScheduleConfig) error {
	if err := storage.PutJSON(context.Background(), s.store, configKey, sc); err != nil {
		return fmt.Errorf("schedule: save config: %w", err)
	}
	return nil
}

// nextOccurrenceLocked returns the first hour:minute strictly after now in
// the configured location.
func (s *Service) nextOccurrenceLocked(now time.Time) time.Time {
	return nextOccurrence(now, s.sc.Hour, s.sc.Minute, s.cfg.Location)
}

func nextOccurrence(now time.Time, hour, minute int, loc *time.Location) time.Time {
	n := now.In(loc)
	t := time.Date(n.Year(), n.Month(), n.Day(), hour, minute, 0, 0, loc)
	if !t.After(n) {
		t = time.Date(n.Year(), n.Month(), n.Day()+1, hour, minute, 0, 0, loc)
	}
	return t
}

func validate(hour, minute int) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return &InvalidTimeError{Hour: hour, Minute: minute}
	}
	return nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q, expected HH:MM", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad hour in %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad minute in %q", ErrInvalidTime, s)
	}
	if err := validate(h, m); err != nil {
		return 0, 0, err
	}
	return h, m, nil
}
