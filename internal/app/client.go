package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"haccpkit/internal/backup"
	"haccpkit/internal/clock"
	"haccpkit/internal/config"
	"haccpkit/internal/connectivity"
	"haccpkit/internal/dispatch"
	"haccpkit/internal/envelope"
	"haccpkit/internal/metrics"
	"haccpkit/internal/mock"
	"haccpkit/internal/schedule"
	"haccpkit/internal/storage"
	logx "haccpkit/pkg/logx"
)

const (
	storeNamespace = "haccp"
	draftPrefix    = "drafts/"

	defaultBackupEndpoint = "/backup/execute-ccp"
)

var ErrInvalidDraftName = errors.New("invalid draft name")

// Deps are the collaborators a Client is built on. Store is required.
type Deps struct {
	Store storage.Store
	Log   logx.Logger
	Clock clock.Clock
	// Registerer receives the client metrics; nil disables registration.
	Registerer prometheus.Registerer
	// Transport overrides the HTTP transport (tests).
	Transport interface {
		dispatch.Transport
		connectivity.Checker
	}
}

// Client is the request and backup API consumed by the dashboard.
type Client struct {
	log     logx.Logger
	store   storage.Store
	metrics *metrics.Metrics

	probe    *connectivity.Probe
	disp     *dispatch.Dispatcher
	mock     *mock.Responder
	logs     *backup.LogStore
	runner   *backup.Runner
	schedule *schedule.Service
	ticker   *schedule.Ticker
}

// NewClient wires the request layer and the backup scheduler from cfg.
func NewClient(ctx context.Context, cfg *config.Config, deps Deps) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Store == nil {
		return nil, errors.New("app: store is required")
	}
	set, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	clk := clock.OrReal(deps.Clock)
	m := metrics.New(deps.Registerer)
	store := storage.WithNamespace(deps.Store, storeNamespace)

	var live interface {
		dispatch.Transport
		connectivity.Checker
	} = deps.Transport
	if live == nil && !cfg.Client.MockMode {
		live = dispatch.NewHTTPTransport(dispatch.HTTPConfig{
			BaseURL:    cfg.Client.BaseURL,
			HealthPath: cfg.Client.HealthPath,
			Timeout:    set.RequestTimeout,
		})
	}

	var checker connectivity.Checker
	var transport dispatch.Transport
	if live != nil {
		checker, transport = live, live
	}
	probe := connectivity.New(connectivity.Config{
		StartupTimeout: set.StartupProbeTimeout,
		CheckTimeout:   set.StatusProbeTimeout,
		ForceMock:      cfg.Client.MockMode,
	}, checker, clk, log.With(logx.String("comp", "connectivity")), m)

	responder := mock.New(mock.Config{
		SensorHistoryCap: cfg.Mock.SensorHistoryCap,
		Resources:        cfg.Mock.Resources,
	}, store, clk, log.With(logx.String("comp", "mock")))

	disp := dispatch.New(dispatch.Config{
		RequestTimeout: set.RequestTimeout,
		AlwaysMock:     cfg.Client.AlwaysMock,
	}, probe, transport, responder, log.With(logx.String("comp", "dispatch")), m)

	logs := backup.NewLogStore(store, cfg.Backup.LogRetention,
		backup.RemoteLogs{Client: disp}, clk, log.With(logx.String("comp", "backup")))

	endpoint := strings.TrimSpace(cfg.Backup.Endpoint)
	if endpoint == "" {
		endpoint = defaultBackupEndpoint
	}
	op := func(ctx context.Context) envelope.Envelope {
		return disp.Post(ctx, endpoint, nil)
	}
	runner := backup.NewRunner(op, logs, set.BackupTimeout, clk, log.With(logx.String("comp", "backup")), m)

	sched, err := schedule.New(ctx, schedule.Config{
		DailyAt:       cfg.Schedule.DailyAt,
		Enabled:       cfg.Schedule.Enabled,
		CatchUpWindow: set.CatchUpWindow,
		Location:      set.Location,
	}, store, runner, clk, log.With(logx.String("comp", "schedule")), m)
	if err != nil {
		return nil, err
	}

	return &Client{
		log:      log,
		store:    store,
		metrics:  m,
		probe:    probe,
		disp:     disp,
		mock:     responder,
		logs:     logs,
		runner:   runner,
		schedule: sched,
		ticker:   schedule.NewTicker(sched, set.TickInterval, log.With(logx.String("comp", "schedule"))),
	}, nil
}

// Start runs the startup probe and begins evaluating the schedule.
func (c *Client) Start(ctx context.Context) connectivity.Status {
	st := c.probe.Initialize(ctx)
	c.ticker.Start(ctx)
	return st
}

// Stop halts the schedule ticker, waiting for an in-flight tick until ctx expires.
func (c *Client) Stop(ctx context.Context) error {
	return c.ticker.Stop(ctx)
}

// ---- Requests ----

func (c *Client) Request(ctx context.Context, endpoint string, opt dispatch.Options) envelope.Envelope {
	return c.disp.Request(ctx, endpoint, opt)
}

func (c *Client) Get(ctx context.Context, endpoint string) envelope.Envelope {
	return c.disp.Get(ctx, endpoint)
}

func (c *Client) Post(ctx context.Context, endpoint string, body any) envelope.Envelope {
	return c.disp.Post(ctx, endpoint, body)
}

func (c *Client) Put(ctx context.Context, endpoint string, body any) envelope.Envelope {
	return c.disp.Put(ctx, endpoint, body)
}

func (c *Client) Delete(ctx context.Context, endpoint string) envelope.Envelope {
	return c.disp.Delete(ctx, endpoint)
}

// ---- Connectivity ----

func (c *Client) ConnectionStatus() connectivity.Status { return c.probe.Status() }

func (c *Client) CheckStatus(ctx context.Context) connectivity.Status {
	return c.probe.CheckStatus(ctx)
}

// ForceInitialize leaves mock mode if the service answers again.
func (c *Client) ForceInitialize(ctx context.Context) connectivity.Status {
	return c.probe.ForceInitialize(ctx)
}

// ---- Backups ----

// BackupNow runs a manual backup.
func (c *Client) BackupNow(ctx context.Context) envelope.Envelope {
	return c.runner.Run(ctx, backup.TriggerManual)
}

func (c *Client) BackupRunning() bool { return c.runner.Running() }

func (c *Client) BackupLogs(ctx context.Context) ([]backup.Entry, error) {
	return c.logs.All(ctx)
}

func (c *Client) ClearBackupLogs(ctx context.Context) error {
	return c.logs.Clear(ctx)
}

// ---- Schedule ----

func (c *Client) SetScheduleTime(hour, minute int) error {
	return c.schedule.SetScheduleTime(hour, minute)
}

func (c *Client) SetScheduleAt(hhmm string) error { return c.schedule.SetScheduleAt(hhmm) }

func (c *Client) StartSchedule() error { return c.schedule.Start() }

func (c *Client) StopSchedule() error { return c.schedule.Stop() }

func (c *Client) ScheduleRunning() bool { return c.schedule.IsRunning() }

func (c *Client) NextFireTime() (time.Time, bool) { return c.schedule.NextFireTime() }

func (c *Client) ScheduleConfig() schedule.ScheduleConfig { return c.schedule.Config() }

// Tick evaluates the schedule once, outside the ticker.
func (c *Client) Tick(ctx context.Context) schedule.TickResult { return c.schedule.Tick(ctx) }

// ---- Drafts ----

// SaveDraft caches an in-progress form under name.
func (c *Client) SaveDraft(ctx context.Context, name string, v any) error {
	key, err := draftKey(name)
	if err != nil {
		return err
	}
	return storage.PutJSON(ctx, c.store, key, v)
}

// LoadDraft decodes the draft into v and reports whether it existed.
func (c *Client) LoadDraft(ctx context.Context, name string, v any) (bool, error) {
	key, err := draftKey(name)
	if err != nil {
		return false, err
	}
	return storage.GetJSON(ctx, c.store, key, v)
}

func (c *Client) DeleteDraft(ctx context.Context, name string) error {
	key, err := draftKey(name)
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, key)
}

// Drafts lists saved draft names in order.
func (c *Client) Drafts(ctx context.Context) ([]string, error) {
	keys, err := c.store.Keys(ctx, draftPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, draftPrefix))
	}
	return out, nil
}

func draftKey(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" || strings.ContainsAny(n, "/:") {
		return "", fmt.Errorf("%w: %q", ErrInvalidDraftName, name)
	}
	return draftPrefix + n, nil
}

// ---- Status ----

// Status is the combined state shown by /status and `haccpd status`.
type Status struct {
	Connectivity  connectivity.Status     `json:"connectivity"`
	State         string                  `json:"state"`
	Schedule      schedule.ScheduleConfig `json:"schedule"`
	NextFireTime  *time.Time              `json:"nextFireTime,omitempty"`
	BackupRunning bool                    `json:"backupRunning"`
	TickerRunning bool                    `json:"tickerRunning"`
	LastBackup    *backup.Entry           `json:"lastBackup,omitempty"`
	LogsAvailable int                     `json:"logsAvailable"`
}

// Status reports local state only; it never calls the remote service.
func (c *Client) Status(ctx context.Context) Status {
	cs := c.probe.Status()
	st := Status{
		Connectivity:  cs,
		State:         cs.State().String(),
		Schedule:      c.schedule.Config(),
		BackupRunning: c.runner.Running(),
		TickerRunning: c.ticker.Running(),
	}
	if next, ok := c.schedule.NextFireTime(); ok {
		st.NextFireTime = &next
	}
	if local, err := c.logs.Local(ctx); err == nil {
		st.LogsAvailable = len(local)
		if len(local) > 0 {
			last := local[0]
			st.LastBackup = &last
		}
	}
	return st
}
