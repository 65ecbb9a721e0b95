package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Info("hello", Int("n", 3), Bool("ok", true))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "hello", m["message"])
	assert.Equal(t, "test", m["comp"])
	assert.EqualValues(t, 3, m["n"])
	assert.Equal(t, true, m["ok"])
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	log.Info("nothing happens")
	assert.False(t, Nop().IsZero())
}

func TestNoticeHookReceivesWarnings(t *testing.T) {
	svc, log := New(Config{
		Level:  "debug",
		Notice: NoticeConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10},
	})
	defer svc.Close()

	got := make(chan Notice, 4)
	svc.SetNoticeHook(func(n Notice) { got <- n })

	log.Info("ignored")
	log.Warn("offline", String("endpoint", "/health"))

	select {
	case n := <-got:
		assert.Equal(t, "offline", n.Message)
		assert.Equal(t, LevelWarn, n.Level)
		assert.Equal(t, "/health", n.Fields["endpoint"])
	case <-time.After(2 * time.Second):
		t.Fatal("notice not delivered")
	}
}

func TestParseLevelDefaults(t *testing.T) {
	assert.Equal(t, LevelWarn, parseLevel("warning", LevelInfo))
	assert.Equal(t, LevelInfo, parseLevel("bogus", LevelInfo))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestNoticeCarriesComponentAndRespectsLevel(t *testing.T) {
	svc, log := New(Config{
		Level:  "debug",
		Notice: NoticeConfig{Enabled: true, MinLevel: "error", RatePerSec: 10},
	})
	defer svc.Close()

	got := make(chan Notice, 4)
	svc.SetNoticeHook(func(n Notice) { got <- n })

	dlog := log.With(String("comp", "dispatch"))
	dlog.Warn("below threshold")
	dlog.Error("backup failed", String("step", "upload"))

	select {
	case n := <-got:
		assert.Equal(t, "backup failed", n.Message)
		assert.Equal(t, "dispatch", n.Component)
		assert.Equal(t, "upload", n.Fields["step"])
		_, hasComp := n.Fields["comp"]
		assert.False(t, hasComp)
		assert.False(t, n.Time.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("notice not delivered")
	}
}

func TestApplyDisablesNotices(t *testing.T) {
	cfg := Config{Level: "info", Notice: NoticeConfig{Enabled: true, RatePerSec: 10}}
	svc, log := New(cfg)
	defer svc.Close()

	got := make(chan Notice, 4)
	svc.SetNoticeHook(func(n Notice) { got <- n })

	cfg.Notice.Enabled = false
	svc.Apply(cfg)
	log.Error("should not be forwarded")

	select {
	case n := <-got:
		t.Fatalf("unexpected notice %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestApplyKeepsWritingAcrossFileSwap(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})
	defer svc.Close()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				log.Info("tick")
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: second}})
	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()

	log.Info("after swap")
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Contains(t, string(b), "after swap")

	b, err = os.ReadFile(first)
	require.NoError(t, err)
	assert.Contains(t, string(b), "tick")
}
