// Package dispatch is the single chokepoint for outbound calls.
//
// Every call returns an envelope; transport failures never reach the caller.
// A failed live call switches the client to mock mode for the rest of the
// session and is answered from the mock responder. Business failures
// reported by the remote side (success=false) are passed through verbatim.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"haccpkit/internal/connectivity"
	"haccpkit/internal/envelope"
	"haccpkit/internal/metrics"
	"haccpkit/internal/mock"
	logx "haccpkit/pkg/logx"
)

const (
	routeLive = "live"
	routeMock = "mock"
)

// DefaultAlwaysMock lists endpoints that only exist in the simulation.
var DefaultAlwaysMock = []string{"/sensors/data", "/sensors/latest", "/dashboard/stats"}

// Transport performs live calls.
type Transport interface {
	Do(ctx context.Context, method, endpoint string, body json.RawMessage) (envelope.Envelope, error)
}

// Responder answers calls locally.
type Responder interface {
	Respond(ctx context.Context, req mock.Request) envelope.Envelope
}

// Connectivity is the part of connectivity.Probe the dispatcher needs.
type Connectivity interface {
	Initialize(ctx context.Context) connectivity.Status
	MarkOffline(cause error) connectivity.Status
}

type Config struct {
	RequestTimeout time.Duration // default 30s
	AlwaysMock     []string
}

// Options describes one request.
type Options struct {
	Method string
	// Body is sent as JSON. json.RawMessage and []byte are sent as-is.
	Body  any
	Query url.Values
}

type Dispatcher struct {
	cfg     Config
	probe   Connectivity
	live    Transport
	mock    Responder
	log     logx.Logger
	metrics *metrics.Metrics
	always  map[string]bool
}

func New(cfg Config, probe Connectivity, live Transport, responder Responder, log logx.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.AlwaysMock == nil {
		cfg.AlwaysMock = DefaultAlwaysMock
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	always := make(map[string]bool, len(cfg.AlwaysMock))
	for _, p := range cfg.AlwaysMock {
		always[routePath(p)] = true
	}
	return &Dispatcher{
		cfg:     cfg,
		probe:   probe,
		live:    live,
		mock:    responder,
		log:     log,
		metrics: m,
		always:  always,
	}
}

// Request routes one call to the live service or the mock responder.
func (d *Dispatcher) Request(ctx context.Context, endpoint string, opt Options) envelope.Envelope {
	if ctx == nil {
		ctx = context.Background()
	}
	method := strings.ToUpper(strings.TrimSpace(opt.Method))
	if method == "" {
		method = "GET"
	}
	body, err := encodeBody(opt.Body)
	if err != nil {
		return envelope.Fail(envelope.KindValidation, "encode request body: "+err.Error())
	}
	target := withQuery(endpoint, opt.Query)
	path := routePath(endpoint)

	st := d.probe.Initialize(ctx)
	if st.MockModeEnabled || d.always[path] || d.live == nil {
		return d.mocked(ctx, target, method, body)
	}

	lctx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	env, err := d.live.Do(lctx, method, target, body)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			// The caller gave up; that says nothing about the service.
			d.metrics.ObserveRequest(routeLive, method, false)
			return envelope.Fail(envelope.KindConnectivity, "request canceled: "+ctx.Err().Error())
		}
		d.probe.MarkOffline(err)
		d.metrics.ObserveFallback()
		d.log.Warn("live request failed; answering from mock",
			logx.String("method", method),
			logx.String("endpoint", path),
			logx.Err(err),
		)
		return d.mocked(ctx, target, method, body)
	}
	d.metrics.ObserveRequest(routeLive, method, env.Success)
	return env
}

func (d *Dispatcher) Get(ctx context.Context, endpoint string) envelope.Envelope {
	return d.Request(ctx, endpoint, Options{Method: "GET"})
}

func (d *Dispatcher) Post(ctx context.Context, endpoint string, body any) envelope.Envelope {
	return d.guard(func() envelope.Envelope {
		return d.Request(ctx, endpoint, Options{Method: "POST", Body: body})
	})
}

func (d *Dispatcher) Put(ctx context.Context, endpoint string, body any) envelope.Envelope {
	return d.guard(func() envelope.Envelope {
		return d.Request(ctx, endpoint, Options{Method: "PUT", Body: body})
	})
}

func (d *Dispatcher) Delete(ctx context.Context, endpoint string) envelope.Envelope {
	return d.guard(func() envelope.Envelope {
		return d.Request(ctx, endpoint, Options{Method: "DELETE"})
	})
}

func (d *Dispatcher) mocked(ctx context.Context, target, method string, body json.RawMessage) envelope.Envelope {
	if d.mock == nil {
		d.metrics.ObserveRequest(routeMock, method, false)
		return envelope.Fail(envelope.KindConnectivity, "service unreachable and no mock responder configured")
	}
	env := d.mock.Respond(ctx, mock.Request{Endpoint: target, Method: method, Body: body})
	d.metrics.ObserveRequest(routeMock, method, env.Success)
	return env
}

// guard converts a panic anywhere below into a failure envelope.
func (d *Dispatcher) guard(fn func() envelope.Envelope) (env envelope.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("request panicked", logx.Any("panic", r))
			env = envelope.Fail(envelope.KindInternal, fmt.Sprint(r))
		}
	}()
	return fn()
}

func encodeBody(body any) (json.RawMessage, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + q.Encode()
}

func routePath(endpoint string) string {
	p := strings.TrimSpace(endpoint)
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	return "/" + strings.Trim(p, "/")
}
