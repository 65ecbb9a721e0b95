package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"haccpkit/internal/clock"
	"haccpkit/internal/envelope"
	"haccpkit/internal/metrics"
	logx "haccpkit/pkg/logx"
)

const DefaultTimeout = 2 * time.Minute

// runState gates a single in-flight run. Concurrent callers are rejected,
// not queued.
type runState struct {
	mu       sync.Mutex
	inflight bool
}

func (s *runState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight {
		return false
	}
	s.inflight = true
	return true
}

func (s *runState) release() {
	s.mu.Lock()
	s.inflight = false
	s.mu.Unlock()
}

func (s *runState) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

type Runner struct {
	op      Operation
	logs    *LogStore
	timeout time.Duration
	clock   clock.Clock
	log     logx.Logger
	metrics *metrics.Metrics
	state   runState
}

func NewRunner(op Operation, logs *LogStore, timeout time.Duration, clk clock.Clock, log logx.Logger, m *metrics.Metrics) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		op:      op,
		logs:    logs,
		timeout: timeout,
		clock:   clock.OrReal(clk),
		log:     log,
		metrics: m,
	}
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool { return r.state.running() }

// Run performs one backup attempt and records it. A call made while another
// run is active returns a Concurrency failure without invoking the operation.
//
// On timeout the gate is released even though the operation may still be
// completing remotely.
func (r *Runner) Run(ctx context.Context, trigger Trigger) envelope.Envelope {
	if !r.state.tryAcquire() {
		r.log.Info("backup skipped; another run is in progress", logx.String("trigger", string(trigger)))
		r.metrics.ObserveBackup(string(trigger), "rejected", 0)
		return envelope.Fail(envelope.KindConcurrency, ErrAlreadyInProgress.Error())
	}
	defer r.state.release()

	started := r.clock.Now()
	res := r.execute(ctx)
	took := r.clock.Now().Sub(started)

	entry := Entry{Timestamp: r.clock.Now(), Trigger: trigger, TookMs: took.Milliseconds()}
	if res.Success {
		entry.Status = StatusSuccess
		entry.Data = res.Data
	} else {
		entry.Status = StatusFailed
		entry.Error = res.Error
		entry.Step = res.Step
	}
	// The run may have been cut short by ctx; the record must still land.
	if _, err := r.logs.Append(context.WithoutCancel(ctx), entry); err != nil {
		r.log.Error("backup log append failed", logx.Err(err))
	}
	r.metrics.ObserveBackup(string(trigger), string(entry.Status), took)

	if res.Success {
		r.log.Info("backup completed", logx.String("trigger", string(trigger)), logx.Duration("took", took))
		return res
	}
	r.log.Warn("backup failed",
		logx.String("trigger", string(trigger)),
		logx.String("error", res.Error),
		logx.String("step", res.Step),
	)
	kind := res.Kind
	if kind == envelope.KindNone {
		kind = envelope.KindRemote
	}
	return envelope.FailStep(kind, res.Error, res.Step)
}

func (r *Runner) execute(parent context.Context) envelope.Envelope {
	if r.op == nil {
		return envelope.Fail(envelope.KindInternal, "no backup operation configured")
	}
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	done := make(chan envelope.Envelope, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- envelope.Fail(envelope.KindInternal, fmt.Sprintf("backup panicked: %v", p))
			}
		}()
		done <- r.op(ctx)
	}()

	select {
	case res := <-done:
		if !res.Success && res.Error == "" {
			res.Error = "backup failed"
		}
		return res
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			return envelope.Fail(envelope.KindConnectivity, fmt.Sprintf("backup timed out after %s", r.timeout))
		}
		return envelope.Fail(envelope.KindConnectivity, "backup canceled: "+ctx.Err().Error())
	}
}
