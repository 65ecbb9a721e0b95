package config

import (
	"reflect"
	"sort"
	"strings"

	logx "haccpkit/pkg/logx"
)

// LiveSections can be applied without restarting the process.
var LiveSections = map[string]bool{"logging": true, "diag": true}

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging (never includes tokens or URLs with
// credentials).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.notice_enabled", newCfg.Logging.Notice.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Client, newCfg.Client) {
		changed = append(changed, "client")
		attrs = append(attrs,
			logx.Bool("client.base_url_set", strings.TrimSpace(newCfg.Client.BaseURL) != ""),
			logx.Bool("client.mock_mode", newCfg.Client.MockMode),
			logx.Int("client.always_mock_count", len(newCfg.Client.AlwaysMock)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Backup, newCfg.Backup) {
		changed = append(changed, "backup")
		attrs = append(attrs,
			logx.String("backup.timeout", strings.TrimSpace(newCfg.Backup.Timeout)),
			logx.Int("backup.log_retention", newCfg.Backup.LogRetention),
		)
	}

	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.daily_at", strings.TrimSpace(newCfg.Schedule.DailyAt)),
			logx.Bool("schedule.enabled", newCfg.Schedule.Enabled),
			logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Mock, newCfg.Mock) {
		changed = append(changed, "mock")
		attrs = append(attrs, logx.Int("mock.sensor_history_cap", newCfg.Mock.SensorHistoryCap))
	}

	// Diag (never log token)
	oldD, newD := oldCfg.Diag, newCfg.Diag
	tokenChanged := strings.TrimSpace(oldD.Token) != strings.TrimSpace(newD.Token)
	oldD.Token, newD.Token = "", ""
	if tokenChanged || oldD != newD {
		changed = append(changed, "diag")
		attrs = append(attrs,
			logx.Bool("diag.enabled", newD.Enabled),
			logx.String("diag.addr", strings.TrimSpace(newD.Addr)),
			logx.Bool("diag.token_set", strings.TrimSpace(newCfg.Diag.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters sections that only take effect on restart.
func RestartRequired(changed []string) []string {
	out := make([]string, 0, len(changed))
	for _, s := range changed {
		if !LiveSections[s] {
			out = append(out, s)
		}
	}
	return out
}
