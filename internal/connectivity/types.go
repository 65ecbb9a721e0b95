package connectivity

import (
	"context"
	"time"
)

type State int

const (
	StateUnknown State = iota
	StateConnected
	StateMock
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateMock:
		return "mock"
	default:
		return "unknown"
	}
}

// Status is the connectivity state visible to callers.
type Status struct {
	IsConnected     bool      `json:"isConnected"`
	LastChecked     time.Time `json:"lastChecked"`
	MockModeEnabled bool      `json:"mockModeEnabled"`
	RetryCount      int       `json:"retryCount"`
}

// State derives the routing state. Mock mode wins over IsConnected.
func (s Status) State() State {
	switch {
	case s.MockModeEnabled:
		return StateMock
	case s.IsConnected:
		return StateConnected
	default:
		return StateUnknown
	}
}

// Checker performs one health check against the remote service.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// Config controls probe timeouts.
type Config struct {
	StartupTimeout time.Duration // default 3s
	CheckTimeout   time.Duration // default 5s
	// ForceMock skips probing and starts in mock mode.
	ForceMock bool
}

func (c Config) withDefaults() Config {
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 3 * time.Second
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 5 * time.Second
	}
	return c
}
