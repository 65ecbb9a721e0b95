package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	defaultLogFile    = "./haccpd.log"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Notice  NoticeConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// NoticeConfig controls the notice sink: records at or above MinLevel are
// handed to the NoticeFunc registered with SetNoticeHook.
type NoticeConfig struct {
	Enabled    bool
	MinLevel   string // default warn
	RatePerSec int    // default 1
}

// Service owns the log outputs. Apply swaps them at runtime; Loggers created
// from the Service pick up the change on their next record.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	file *os.File

	zl atomic.Pointer[zerolog.Logger]

	notices noticeSink
}

// New builds the service with cfg applied and returns it with a root Logger.
func New(cfg Config) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	s := &Service{}
	s.notices.init()
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.zl.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// SetNoticeHook registers the receiver of notice records. Passing nil detaches it.
func (s *Service) SetNoticeHook(fn NoticeFunc) { s.notices.setHook(fn) }

// Apply replaces outputs and level. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	prevFile := s.file
	s.file = nil

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, newConsoleWriter(os.Stderr))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Notice.Enabled {
		s.notices.configure(parseLevel(cfg.Notice.MinLevel, zerolog.WarnLevel), cfg.Notice.RatePerSec)
		writers = append(writers, &s.notices)
	} else {
		s.notices.configure(zerolog.Disabled, 0)
	}
	if len(writers) == 0 {
		// something must see errors
		writers = append(writers, newConsoleWriter(os.Stderr))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.zl.Store(&zl)

	// old root is no longer reachable by new records
	if prevFile != nil {
		_ = prevFile.Close()
	}
}

// Close stops the notice worker and closes the log file.
func (s *Service) Close() error {
	s.notices.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func newConsoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	cw.FormatCaller = func(i any) string {
		s, _ := i.(string)
		return s
	}
	return cw
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return def
}
