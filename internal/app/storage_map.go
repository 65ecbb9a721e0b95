package app

import (
	"strings"

	"haccpkit/internal/config"
	"haccpkit/internal/storage"
	logx "haccpkit/pkg/logx"
)

func mapStorageConfig(cfg *config.Config, s config.Settings) storage.Config {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		driver = "memory"
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: s.StorageBusyTimeout,
	}
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Notice: logx.NoticeConfig{
			Enabled:    cfg.Logging.Notice.Enabled,
			MinLevel:   cfg.Logging.Notice.MinLevel,
			RatePerSec: cfg.Logging.Notice.RatePerSec,
		},
	}
}
