package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvBaseURL     = "HACCP_API_BASE_URL"
	EnvMockMode    = "HACCP_MOCK_MODE"
	EnvStoragePath = "HACCP_STORAGE_PATH"
)

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are ignored; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overlays HACCP_* environment variables on cfg.
func ApplyEnv(cfg *Config) {
	applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	if v, ok := lookup(EnvBaseURL); ok && strings.TrimSpace(v) != "" {
		cfg.Client.BaseURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvMockMode); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Client.MockMode = b
		}
	}
	if v, ok := lookup(EnvStoragePath); ok && strings.TrimSpace(v) != "" {
		cfg.Storage.Path = strings.TrimSpace(v)
		if d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d == "" || d == "memory" || d == "none" {
			cfg.Storage.Driver = "file"
		}
	}
}
