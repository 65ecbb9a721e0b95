package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haccpkit/internal/backup"
	"haccpkit/internal/clock"
	"haccpkit/internal/config"
	"haccpkit/internal/envelope"
	"haccpkit/internal/storage"
)

// fakeRemote stands in for the HTTP transport.
type fakeRemote struct {
	mu       sync.Mutex
	checkErr error
	replies  map[string]envelope.Envelope
	calls    []string
}

func (f *fakeRemote) Check(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkErr
}

func (f *fakeRemote) Do(ctx context.Context, method, endpoint string, body json.RawMessage) (envelope.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + endpoint
	f.calls = append(f.calls, key)
	if env, ok := f.replies[key]; ok {
		return env, nil
	}
	return envelope.Envelope{}, errors.New("connection refused")
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestClient(t *testing.T, cfg *config.Config, remote *fakeRemote) (*Client, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 14, 17, 59, 0, 0, time.UTC))
	deps := Deps{
		Store:      storage.NewMemory(),
		Clock:      clk,
		Registerer: prometheus.NewRegistry(),
	}
	if remote != nil {
		deps.Transport = remote
	}
	c, err := NewClient(context.Background(), cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
	return c, clk
}

func liveConfig() *config.Config {
	cfg := config.Default()
	cfg.Client.BaseURL = "http://remote.test"
	cfg.Schedule.Timezone = "UTC"
	return cfg
}

func TestClientMockModeBackup(t *testing.T) {
	cfg := config.Default()
	cfg.Client.MockMode = true
	cfg.Schedule.Timezone = "UTC"
	c, _ := newTestClient(t, cfg, nil)
	ctx := context.Background()

	st := c.Start(ctx)
	assert.True(t, st.MockModeEnabled)
	assert.False(t, st.IsConnected)

	res := c.BackupNow(ctx)
	require.True(t, res.Success, res.Error)
	var data struct {
		RecordCount int    `json:"recordCount"`
		BackupID    string `json:"backupId"`
		Mocked      bool   `json:"mocked"`
	}
	require.NoError(t, res.Decode(&data))
	assert.True(t, data.Mocked)
	assert.Contains(t, data.BackupID, "mock-")

	logs, err := c.BackupLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, backup.TriggerManual, logs[0].Trigger)
	assert.Equal(t, backup.StatusSuccess, logs[0].Status)
	assert.NotEmpty(t, logs[0].ID)

	require.NoError(t, c.ClearBackupLogs(ctx))
	logs, err = c.BackupLogs(ctx)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestClientLiveBackupRecordsRemoteResult(t *testing.T) {
	remote := &fakeRemote{replies: map[string]envelope.Envelope{
		"POST /backup/execute-ccp": envelope.Ok(map[string]any{"recordCount": 42}),
		"GET /backup/logs":         envelope.Ok(map[string]any{"logs": []any{}}),
	}}
	c, _ := newTestClient(t, liveConfig(), remote)
	ctx := context.Background()

	st := c.Start(ctx)
	require.True(t, st.IsConnected)
	require.False(t, st.MockModeEnabled)

	res := c.BackupNow(ctx)
	require.True(t, res.Success, res.Error)
	var data struct {
		RecordCount int `json:"recordCount"`
	}
	require.NoError(t, res.Decode(&data))
	assert.Equal(t, 42, data.RecordCount)

	logs, err := c.BackupLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.JSONEq(t, `{"recordCount":42}`, string(logs[0].Data))
	assert.Contains(t, remote.Calls(), "POST /backup/execute-ccp")
	assert.False(t, c.BackupRunning())
}

func TestClientRemoteBackupFailureIsLogged(t *testing.T) {
	remote := &fakeRemote{replies: map[string]envelope.Envelope{
		"POST /backup/execute-ccp": envelope.FailStep(envelope.KindRemote, "upload rejected", "upload"),
		"GET /backup/logs":         envelope.Ok([]any{}),
	}}
	c, _ := newTestClient(t, liveConfig(), remote)
	ctx := context.Background()
	c.Start(ctx)

	res := c.BackupNow(ctx)
	assert.False(t, res.Success)
	assert.Equal(t, "upload", res.Step)

	logs, err := c.BackupLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, backup.StatusFailed, logs[0].Status)
	assert.Equal(t, "upload rejected", logs[0].Error)
	// A business failure is not a connectivity failure.
	assert.False(t, c.ConnectionStatus().MockModeEnabled)
}

func TestClientOfflineStartupServesMock(t *testing.T) {
	remote := &fakeRemote{checkErr: errors.New("dial tcp: connection refused")}
	c, _ := newTestClient(t, liveConfig(), remote)
	ctx := context.Background()

	st := c.Start(ctx)
	assert.True(t, st.MockModeEnabled)

	for _, ep := range []string{"/dashboard/stats", "/ccp", "/backup/config", "/health"} {
		res := c.Get(ctx, ep)
		assert.True(t, res.Success, "%s: %s", ep, res.Error)
	}
	res := c.Post(ctx, "/backup/test-connection", map[string]any{"host": "nas.local"})
	assert.True(t, res.Success, res.Error)
	assert.Empty(t, remote.Calls())
}

func TestClientFallsBackAfterLiveFailure(t *testing.T) {
	remote := &fakeRemote{replies: map[string]envelope.Envelope{}}
	c, _ := newTestClient(t, liveConfig(), remote)
	ctx := context.Background()
	require.True(t, c.Start(ctx).IsConnected)

	res := c.Get(ctx, "/suppliers")
	assert.True(t, res.Success, res.Error)
	assert.True(t, c.ConnectionStatus().MockModeEnabled)

	// Sticky until an explicit re-initialize.
	n := len(remote.Calls())
	c.Get(ctx, "/suppliers")
	assert.Len(t, remote.Calls(), n)

	st := c.ForceInitialize(ctx)
	assert.False(t, st.MockModeEnabled)
	assert.True(t, st.IsConnected)
}

func TestClientDrafts(t *testing.T) {
	cfg := config.Default()
	cfg.Client.MockMode = true
	c, _ := newTestClient(t, cfg, nil)
	ctx := context.Background()

	type form struct {
		Product string  `json:"product"`
		TempC   float64 `json:"tempC"`
	}
	require.NoError(t, c.SaveDraft(ctx, "ccp-check", form{Product: "chicken", TempC: 74.5}))
	require.NoError(t, c.SaveDraft(ctx, "cleaning", form{Product: "line 2"}))

	var got form
	ok, err := c.LoadDraft(ctx, "ccp-check", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 74.5, got.TempC)

	names, err := c.Drafts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ccp-check", "cleaning"}, names)

	require.NoError(t, c.DeleteDraft(ctx, "cleaning"))
	ok, err = c.LoadDraft(ctx, "cleaning", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, bad := range []string{"", "  ", "a/b", "x:y"} {
		assert.ErrorIs(t, c.SaveDraft(ctx, bad, form{}), ErrInvalidDraftName, bad)
	}
}

func TestClientScheduleAndStatus(t *testing.T) {
	cfg := config.Default()
	cfg.Client.MockMode = true
	cfg.Schedule.Timezone = "UTC"
	c, clk := newTestClient(t, cfg, nil)
	ctx := context.Background()

	assert.Error(t, c.SetScheduleTime(24, 0))
	assert.Error(t, c.SetScheduleAt("7:75"))
	require.NoError(t, c.SetScheduleTime(18, 0))
	require.NoError(t, c.StartSchedule())
	assert.True(t, c.ScheduleRunning())

	next, ok := c.NextFireTime()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC), next)

	st := c.Status(ctx)
	assert.True(t, st.Schedule.Enabled)
	require.NotNil(t, st.NextFireTime)
	assert.Nil(t, st.LastBackup)

	clk.Set(time.Date(2026, 3, 14, 18, 0, 5, 0, time.UTC))
	c.Tick(ctx)

	st = c.Status(ctx)
	require.NotNil(t, st.LastBackup)
	assert.Equal(t, backup.TriggerScheduled, st.LastBackup.Trigger)
	assert.Equal(t, 1, st.LogsAvailable)
	assert.Equal(t, time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC), *st.NextFireTime)

	require.NoError(t, c.StopSchedule())
	_, ok = c.NextFireTime()
	assert.False(t, ok)
}
