package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "30s", "2m"); empty means "use the default".
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Client   ClientConfig   `json:"client"`
	Backup   BackupConfig   `json:"backup"`
	Schedule ScheduleConfig `json:"schedule"`
	Mock     MockConfig     `json:"mock"`
	Diag     DiagConfig     `json:"diag,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Notice  LoggingNotice `json:"notice"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingNotice forwards records at or above MinLevel to the UI notice hook.
type LoggingNotice struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the local key-value store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./haccp.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// ClientConfig controls the request layer.
//
// Defaults:
//   - request_timeout: "30s"
//   - startup_probe_timeout: "3s"
//   - status_probe_timeout: "5s"
//   - always_mock: /sensors/data, /sensors/latest, /dashboard/stats
type ClientConfig struct {
	BaseURL             string   `json:"base_url"`
	HealthPath          string   `json:"health_path,omitempty"`
	RequestTimeout      string   `json:"request_timeout,omitempty"`
	StartupProbeTimeout string   `json:"startup_probe_timeout,omitempty"`
	StatusProbeTimeout  string   `json:"status_probe_timeout,omitempty"`
	MockMode            bool     `json:"mock_mode,omitempty"`
	AlwaysMock          []string `json:"always_mock,omitempty"`
}

type BackupConfig struct {
	Endpoint     string `json:"endpoint,omitempty"` // default "/backup/execute-ccp"
	Timeout      string `json:"timeout,omitempty"`  // default "2m"
	LogRetention int    `json:"log_retention,omitempty"`
}

// ScheduleConfig seeds the daily backup schedule on first use. Once the
// schedule has been changed at runtime, the persisted value wins.
type ScheduleConfig struct {
	DailyAt       string `json:"daily_at,omitempty"` // "HH:MM", default "18:00"
	Enabled       bool   `json:"enabled"`
	TickInterval  string `json:"tick_interval,omitempty"`   // default "30s"
	CatchUpWindow string `json:"catch_up_window,omitempty"` // default "1h"
	Timezone      string `json:"timezone,omitempty"`        // IANA name, default local
}

type MockConfig struct {
	SensorHistoryCap int      `json:"sensor_history_cap,omitempty"`
	Resources        []string `json:"resources,omitempty"`
}

// DiagConfig controls the optional diagnostics HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:7070").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DiagConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Driver: "memory"},
	}
}
