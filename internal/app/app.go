// Package app wires the request layer, the backup scheduler and the ambient
// services (logging, storage, config reload, diagnostics) into a host process.
//
// Client is the library surface for the dashboard; App owns its lifecycle
// when it runs headless.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"haccpkit/internal/config"
	"haccpkit/internal/observability/diag"
	"haccpkit/internal/runtime/supervisor"
	"haccpkit/internal/storage"
	logx "haccpkit/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store
	reg   *prometheus.Registry

	client *Client
	diag   *diag.Service
}

// NewApp loads the config at cfgPath (empty means defaults plus env) and
// builds every component. Nothing runs until Start.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	set, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	sc := mapStorageConfig(cfg, set)
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := NewClient(ctx, cfg, Deps{Store: store, Log: log, Registerer: reg})
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		reg:     reg,
		client:  client,
	}
	a.diag = diag.New(mapDiagConfig(cfg, set), reg, a.status, log.With(logx.String("comp", "diag")))
	return a, nil
}

func (a *App) Client() *Client { return a.client }

// SetNoticeHook forwards warn-and-above log records (per logging.notice) to fn.
func (a *App) SetNoticeHook(fn logx.NoticeFunc) { a.logs.SetNoticeHook(fn) }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		_, err := config.Resolve(cfg)
		return err
	})

	st := a.client.Start(a.sup.Context())
	a.log.Info("connectivity initialized",
		logx.String("state", st.State().String()),
		logx.Bool("mock_mode", st.MockModeEnabled),
	)

	a.diag.Start(a.sup.Context())

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)

	a.log.Info("app started")
	return nil
}

// ReloadConfig re-reads the config file immediately, as on SIGHUP. Accepted
// changes reach the running components through the reload loop.
func (a *App) ReloadConfig(ctx context.Context) error {
	changed, err := a.cfgm.Reload(ctx)
	if err != nil {
		a.log.Warn("config reload rejected", logx.Err(err))
		return err
	}
	if !changed {
		a.log.Info("config reload requested; file unchanged")
	}
	return nil
}

func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(c context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLoggingConfig(next))
	if set, err := config.Resolve(next); err == nil {
		a.diag.Reconfigure(c, mapDiagConfig(next, set))
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) status(ctx context.Context) any {
	out := map[string]any{"client": a.client.Status(ctx)}
	if a.sup != nil {
		out["supervisor"] = a.sup.Snapshot()
	}
	return out
}

// Stop shuts everything down. On an app that was never started it only
// releases storage and logging.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		_ = a.store.Close()
		return a.logs.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Each step is bounded so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// A running backup keeps the ticker busy; give it a moment to record its log entry.
	step("schedule", 5*time.Second, a.client.Stop)
	step("diag", time.Second, func(c context.Context) error { a.diag.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Stop)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

func mapDiagConfig(cfg *config.Config, s config.Settings) diag.Config {
	return diag.Config{
		Enabled:       cfg.Diag.Enabled,
		Addr:          cfg.Diag.Addr,
		Token:         cfg.Diag.Token,
		AllowInsecure: cfg.Diag.AllowInsecure,
		ReadTimeout:   s.DiagReadTimeout,
		WriteTimeout:  s.DiagWriteTimeout,
		IdleTimeout:   s.DiagIdleTimeout,
	}
}
