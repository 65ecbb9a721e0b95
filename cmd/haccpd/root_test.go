package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haccpkit/internal/config"
)

func writeMockConfig(t *testing.T) string {
	t.Helper()
	t.Setenv(config.EnvBaseURL, "")
	t.Setenv(config.EnvMockMode, "")
	t.Setenv(config.EnvStoragePath, "")

	dir := t.TempDir()
	body := `
logging:
  level: error
storage:
  driver: sqlite
  path: ` + filepath.ToSlash(filepath.Join(dir, "haccp.db")) + `
client:
  mock_mode: true
schedule:
  timezone: UTC
`
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"run", "backup", "status", "logs", "schedule"} {
		assert.Contains(t, out, sub)
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := execute(t, "restore")
	assert.Error(t, err)
}

func TestBackupThenLogs(t *testing.T) {
	p := writeMockConfig(t)

	out, err := execute(t, "--config", p, "backup")
	require.NoError(t, err)
	var res struct {
		Success bool `json:"success"`
		Data    struct {
			Mocked bool `json:"mocked"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.True(t, res.Data.Mocked)

	out, err = execute(t, "--config", p, "logs")
	require.NoError(t, err)
	var logs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "manual", logs[0]["trigger"])
}

func TestScheduleCommandPersists(t *testing.T) {
	p := writeMockConfig(t)

	_, err := execute(t, "--config", p, "schedule", "--at", "25:00")
	assert.Error(t, err)

	_, err = execute(t, "--config", p, "schedule", "--enable", "--disable")
	assert.Error(t, err)

	_, err = execute(t, "--config", p, "schedule", "--at", "07:15", "--enable")
	require.NoError(t, err)

	out, err := execute(t, "--config", p, "schedule")
	require.NoError(t, err)
	var got struct {
		Schedule struct {
			Hour    int  `json:"hour"`
			Minute  int  `json:"minute"`
			Enabled bool `json:"enabled"`
		} `json:"schedule"`
		NextFireTime string `json:"nextFireTime"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 7, got.Schedule.Hour)
	assert.Equal(t, 15, got.Schedule.Minute)
	assert.True(t, got.Schedule.Enabled)
	assert.NotEmpty(t, got.NextFireTime)
}

func TestStatusCommand(t *testing.T) {
	p := writeMockConfig(t)
	out, err := execute(t, "--config", p, "status")
	require.NoError(t, err)
	var st struct {
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "mock", st.State)
}
