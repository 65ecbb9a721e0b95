package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "haccpkit/pkg/logx"
)

// Ticker calls Service.Tick on a fixed interval. Ticks never overlap: a tick
// that finds the previous one (and its backup) still running is dropped.
type Ticker struct {
	mu       sync.Mutex
	svc      *Service
	interval time.Duration
	log      logx.Logger

	c      *cron.Cron
	cancel context.CancelFunc
}

func NewTicker(svc *Service, interval time.Duration, log logx.Logger) *Ticker {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ticker{svc: svc, interval: interval, log: log}
}

// Start begins ticking. Ticks run with a context derived from ctx that is
// canceled by Stop. Starting a running ticker is a no-op.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	cl := cronLogger{log: t.log}
	c := cron.New(
		cron.WithLocation(t.svc.cfg.Location),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(cron.Every(t.interval), cron.FuncJob(func() {
		t.svc.Tick(runCtx)
	}))
	c.Start()
	t.c, t.cancel = c, cancel
	t.log.Info("schedule ticker started", logx.Duration("interval", t.interval))
}

// Stop halts ticking and waits for an in-flight tick until ctx expires.
func (t *Ticker) Stop(ctx context.Context) error {
	t.mu.Lock()
	c, cancel := t.c, t.cancel
	t.c, t.cancel = nil, nil
	t.mu.Unlock()
	if c == nil {
		return nil
	}
	done := c.Stop()
	defer cancel()
	select {
	case <-done.Done():
		t.log.Info("schedule ticker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the ticker is started.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c != nil
}

// cronLogger routes cron's own diagnostics into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
