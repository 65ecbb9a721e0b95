package connectivity

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"haccpkit/internal/clock"
	"haccpkit/internal/metrics"
	logx "haccpkit/pkg/logx"
)

var ErrNoChecker = errors.New("connectivity: no health checker configured")

type Probe struct {
	cfg     Config
	checker Checker
	clock   clock.Clock
	log     logx.Logger
	metrics *metrics.Metrics

	sf singleflight.Group

	mu          sync.Mutex
	st          Status
	initialized bool
	// gen is bumped by ForceInitialize; results of probes started under an
	// older generation are discarded.
	gen uint64
}

func New(cfg Config, checker Checker, clk clock.Clock, log logx.Logger, m *metrics.Metrics) *Probe {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Probe{
		cfg:     cfg.withDefaults(),
		checker: checker,
		clock:   clock.OrReal(clk),
		log:     log,
		metrics: m,
	}
}

// Status returns a copy of the current state.
func (p *Probe) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st
}

// Initialized reports whether the startup probe has completed.
func (p *Probe) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// Initialize runs the startup probe once. Concurrent callers share the
// in-flight probe; later callers get the memoized state.
func (p *Probe) Initialize(ctx context.Context) Status {
	p.mu.Lock()
	if p.initialized {
		st := p.st
		p.mu.Unlock()
		return st
	}
	gen := p.gen
	p.mu.Unlock()

	v, _, _ := p.sf.Do("init:"+strconv.FormatUint(gen, 10), func() (any, error) {
		return p.startup(ctx, gen), nil
	})
	return v.(Status)
}

// ForceInitialize discards the current state and probes again.
func (p *Probe) ForceInitialize(ctx context.Context) Status {
	p.mu.Lock()
	p.gen++
	p.st = Status{}
	p.initialized = false
	p.mu.Unlock()
	p.metrics.SetMockMode(false)
	p.log.Info("connectivity re-initializing")
	return p.Initialize(ctx)
}

// CheckStatus runs an on-demand probe. Success sets IsConnected but never
// clears mock mode.
func (p *Probe) CheckStatus(ctx context.Context) Status {
	v, _, _ := p.sf.Do("status", func() (any, error) {
		p.mu.Lock()
		gen := p.gen
		p.mu.Unlock()

		err := p.check(ctx, p.cfg.CheckTimeout)
		p.metrics.ObserveProbe("status", err == nil)

		p.mu.Lock()
		defer p.mu.Unlock()
		if gen != p.gen {
			return p.st, nil
		}
		p.st.LastChecked = p.clock.Now()
		if err == nil {
			p.st.IsConnected = true
			return p.st, nil
		}
		p.st.IsConnected = false
		p.st.RetryCount++
		p.enterMockLocked("status probe failed", err)
		return p.st, nil
	})
	return v.(Status)
}

// MarkOffline records a failed live call and switches to mock mode for the
// rest of the session.
func (p *Probe) MarkOffline(cause error) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st.IsConnected = false
	p.st.RetryCount++
	p.st.LastChecked = p.clock.Now()
	p.initialized = true
	p.enterMockLocked("live request failed", cause)
	return p.st
}

func (p *Probe) startup(ctx context.Context, gen uint64) Status {
	if p.cfg.ForceMock {
		p.mu.Lock()
		defer p.mu.Unlock()
		if gen == p.gen {
			p.st.IsConnected = false
			p.st.LastChecked = p.clock.Now()
			p.initialized = true
			p.enterMockLocked("mock mode forced by config", nil)
		}
		return p.st
	}

	err := p.check(ctx, p.cfg.StartupTimeout)
	p.metrics.ObserveProbe("startup", err == nil)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return p.st
	}
	p.st.LastChecked = p.clock.Now()
	p.initialized = true
	if err == nil {
		p.st.IsConnected = true
		p.log.Info("connectivity established", logx.Bool("mock", p.st.MockModeEnabled))
		return p.st
	}
	p.st.IsConnected = false
	p.st.RetryCount++
	p.enterMockLocked("startup probe failed", err)
	return p.st
}

// check runs the health checker under its own timeout. The parent's
// cancellation is dropped so that one caller giving up does not fail the
// probe shared with other callers.
func (p *Probe) check(ctx context.Context, timeout time.Duration) error {
	if p.checker == nil {
		return ErrNoChecker
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return p.checker.Check(cctx)
}

func (p *Probe) enterMockLocked(reason string, cause error) {
	if p.st.MockModeEnabled {
		return
	}
	p.st.MockModeEnabled = true
	p.metrics.SetMockMode(true)
	p.log.Warn("switched to mock mode", logx.String("reason", reason), logx.Err(cause))
}
