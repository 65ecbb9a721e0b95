package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haccpkit/internal/backup"
	"haccpkit/internal/clock"
	"haccpkit/internal/envelope"
	"haccpkit/internal/storage"
	logx "haccpkit/pkg/logx"
)

type countingRunner struct {
	calls    atomic.Int32
	triggers chan backup.Trigger
}

func (r *countingRunner) Run(ctx context.Context, trigger backup.Trigger) envelope.Envelope {
	r.calls.Add(1)
	if r.triggers != nil {
		r.triggers <- trigger
	}
	return envelope.Ok(nil)
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 7, day, hour, minute, 0, 0, time.UTC)
}

func newService(t *testing.T, now time.Time, store storage.Store, cfg Config) (*Service, *clock.Fake, *countingRunner) {
	t.Helper()
	if store == nil {
		store = storage.NewMemory()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	clk := clock.NewFake(now)
	r := &countingRunner{}
	s, err := New(context.Background(), cfg, store, r, clk, logx.Nop(), nil)
	require.NoError(t, err)
	return s, clk, r
}

func TestDefaultsOnFirstUse(t *testing.T) {
	s, _, _ := newService(t, at(1, 9, 0), nil, Config{})
	assert.Equal(t, ScheduleConfig{Hour: 18, Minute: 0}, s.Config())
	assert.False(t, s.IsRunning())
	_, ok := s.NextFireTime()
	assert.False(t, ok)
}

func TestStartComputesTodayOrTomorrow(t *testing.T) {
	s, _, _ := newService(t, at(1, 17, 59), nil, Config{})
	require.NoError(t, s.Start())
	next, ok := s.NextFireTime()
	require.True(t, ok)
	assert.Equal(t, at(1, 18, 0), next)

	s, _, _ = newService(t, at(1, 18, 1), nil, Config{})
	require.NoError(t, s.Start())
	next, _ = s.NextFireTime()
	assert.Equal(t, at(2, 18, 0), next)

	// Exactly at the fire time is not "in the future".
	s, _, _ = newService(t, at(1, 18, 0), nil, Config{})
	require.NoError(t, s.Start())
	next, _ = s.NextFireTime()
	assert.Equal(t, at(2, 18, 0), next)
}

func TestStartIsIdempotent(t *testing.T) {
	s, clk, _ := newService(t, at(1, 10, 0), nil, Config{})
	require.NoError(t, s.Start())
	first, _ := s.NextFireTime()

	clk.Advance(3 * time.Hour)
	require.NoError(t, s.Start())
	second, _ := s.NextFireTime()
	assert.Equal(t, first, second)
	assert.True(t, s.IsRunning())
}

func TestStopClearsNextFire(t *testing.T) {
	s, _, _ := newService(t, at(1, 10, 0), nil, Config{})
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	_, ok := s.NextFireTime()
	assert.False(t, ok)
}

func TestSetScheduleTimeAllValidValues(t *testing.T) {
	now := at(1, 12, 34)
	s, _, _ := newService(t, now, nil, Config{})
	require.NoError(t, s.Start())
	for h := 0; h <= 23; h++ {
		for m := 0; m <= 59; m++ {
			require.NoError(t, s.SetScheduleTime(h, m))
			next, ok := s.NextFireTime()
			require.True(t, ok)
			require.True(t, next.After(now), "%02d:%02d -> %s", h, m, next)
			require.Equal(t, h, next.Hour())
			require.Equal(t, m, next.Minute())
		}
	}
}

func TestSetScheduleTimeRejectsOutOfRange(t *testing.T) {
	s, _, _ := newService(t, at(1, 9, 0), nil, Config{})
	require.NoError(t, s.SetScheduleTime(7, 30))
	require.NoError(t, s.Start())
	before, _ := s.NextFireTime()

	for _, tc := range [][2]int{{24, 0}, {0, 60}, {-1, 0}, {0, -1}} {
		err := s.SetScheduleTime(tc[0], tc[1])
		var ite *InvalidTimeError
		require.ErrorAs(t, err, &ite)
		assert.True(t, errors.Is(err, ErrInvalidTime))
	}
	assert.Equal(t, ScheduleConfig{Hour: 7, Minute: 30, Enabled: true}, s.Config())
	after, _ := s.NextFireTime()
	assert.Equal(t, before, after)
}

func TestSetScheduleAt(t *testing.T) {
	s, _, _ := newService(t, at(1, 9, 0), nil, Config{})
	require.NoError(t, s.SetScheduleAt(" 06:05 "))
	assert.Equal(t, 6, s.Config().Hour)
	assert.Equal(t, 5, s.Config().Minute)

	for _, bad := range []string{"6", "aa:10", "10:bb", "24:00", "12:60"} {
		assert.ErrorIs(t, s.SetScheduleAt(bad), ErrInvalidTime, bad)
	}
}

func TestScheduleSurvivesReload(t *testing.T) {
	store := storage.NewMemory()
	s, _, _ := newService(t, at(1, 9, 0), store, Config{})
	require.NoError(t, s.SetScheduleTime(21, 15))
	require.NoError(t, s.Start())

	reloaded, _, _ := newService(t, at(3, 22, 0), store, Config{DailyAt: "05:00"})
	assert.Equal(t, ScheduleConfig{Hour: 21, Minute: 15, Enabled: true}, reloaded.Config())
	next, ok := reloaded.NextFireTime()
	require.True(t, ok)
	assert.Equal(t, at(4, 21, 15), next)
}

func TestTickFiresOnceWhenDue(t *testing.T) {
	s, clk, r := newService(t, at(1, 17, 0), nil, Config{})
	require.NoError(t, s.Start())

	assert.Equal(t, TickWaiting, s.Tick(context.Background()))
	assert.Zero(t, r.calls.Load())

	clk.Set(at(1, 18, 0).Add(20 * time.Second))
	assert.Equal(t, TickFired, s.Tick(context.Background()))
	assert.EqualValues(t, 1, r.calls.Load())

	next, _ := s.NextFireTime()
	assert.Equal(t, at(2, 18, 0), next)

	clk.Advance(30 * time.Second)
	assert.Equal(t, TickWaiting, s.Tick(context.Background()))
	assert.EqualValues(t, 1, r.calls.Load())
}

func TestTickSkipsWhenTooLate(t *testing.T) {
	s, clk, r := newService(t, at(1, 17, 0), nil, Config{CatchUpWindow: 30 * time.Minute})
	require.NoError(t, s.Start())

	// Host was suspended for most of a day.
	clk.Set(at(2, 9, 0))
	assert.Equal(t, TickSkipped, s.Tick(context.Background()))
	assert.Zero(t, r.calls.Load())

	next, _ := s.NextFireTime()
	assert.Equal(t, at(2, 18, 0), next)
}

func TestTickIdleWhenStopped(t *testing.T) {
	s, clk, r := newService(t, at(1, 17, 0), nil, Config{})
	clk.Set(at(1, 18, 5))
	assert.Equal(t, TickIdle, s.Tick(context.Background()))
	assert.Zero(t, r.calls.Load())
}

func TestNextOccurrenceHonoursLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	// 15:30 UTC is 17:30 local.
	got := nextOccurrence(time.Date(2026, 7, 1, 15, 30, 0, 0, time.UTC), 18, 0, loc)
	assert.Equal(t, time.Date(2026, 7, 1, 16, 0, 0, 0, time.UTC), got.UTC())
}

func TestTickerDrivesTick(t *testing.T) {
	s, clk, r := newService(t, at(1, 17, 0), nil, Config{})
	r.triggers = make(chan backup.Trigger, 4)
	require.NoError(t, s.Start())
	clk.Set(at(1, 18, 0))

	tk := NewTicker(s, time.Second, logx.Nop())
	tk.Start(context.Background())
	tk.Start(context.Background())
	assert.True(t, tk.Running())

	select {
	case trig := <-r.triggers:
		assert.Equal(t, backup.TriggerScheduled, trig)
	case <-time.After(5 * time.Second):
		t.Fatal("ticker never fired")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tk.Stop(ctx))
	assert.False(t, tk.Running())
	require.NoError(t, tk.Stop(ctx))
}
