package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"haccpkit/internal/envelope"
)

var ErrHTTPStatus = errors.New("unexpected http status")

// HTTPConfig configures the live transport.
type HTTPConfig struct {
	BaseURL    string
	HealthPath string // default "/health"
	// Timeout is a hard upper bound on any single HTTP exchange; the
	// dispatcher and probe apply tighter per-call deadlines via context.
	Timeout time.Duration
	Headers map[string]string
}

// HTTPTransport talks to the live API. It performs no retries: a failed call
// is answered once from the mock responder by the dispatcher.
type HTTPTransport struct {
	client     *resty.Client
	healthPath string
}

func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	c := resty.New().
		SetBaseURL(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	for k, v := range cfg.Headers {
		c.SetHeader(k, v)
	}
	hp := strings.TrimSpace(cfg.HealthPath)
	if hp == "" {
		hp = "/health"
	}
	return &HTTPTransport{client: c, healthPath: hp}
}

// Do performs one request and decodes the response envelope. Non-2xx
// statuses and undecodable bodies are errors.
func (t *HTTPTransport) Do(ctx context.Context, method, endpoint string, body json.RawMessage) (envelope.Envelope, error) {
	req := t.client.R().SetContext(ctx)
	if len(body) > 0 {
		req.SetHeader("Content-Type", "application/json").SetBody([]byte(body))
	}
	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return envelope.Envelope{}, err
	}
	if !resp.IsSuccess() {
		return envelope.Envelope{}, fmt.Errorf("%w: %s %s -> %d", ErrHTTPStatus, method, endpoint, resp.StatusCode())
	}
	return envelope.Parse(resp.Body())
}

// Check implements connectivity.Checker against the health endpoint.
func (t *HTTPTransport) Check(ctx context.Context) error {
	env, err := t.Do(ctx, "GET", t.healthPath, nil)
	if err != nil {
		return err
	}
	if !env.Success {
		return env.Err()
	}
	return nil
}
