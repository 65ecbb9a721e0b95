// Package mock simulates the remote API when the live service is unreachable.
//
// Responses depend only on the request and the record store, so the same
// sequence of calls always yields the same answers for a given clock.
// Unknown endpoints get a templated success envelope instead of an error so
// the dashboard degrades gracefully.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"haccpkit/internal/clock"
	"haccpkit/internal/envelope"
	"haccpkit/internal/storage"
	logx "haccpkit/pkg/logx"
)

const (
	DefaultSensorHistoryCap = 1000

	sensorResource   = "sensor_data"
	backupConfigKey  = "mock/backup-config"
	maskedSecretText = "********"
)

// DefaultResources are the CRUD collections the dashboard edits.
var DefaultResources = []string{"suppliers", "ccp", "checklists", "reports", "production-logs"}

type Config struct {
	SensorHistoryCap int
	Resources        []string
}

// Request is one simulated call.
type Request struct {
	Endpoint string
	Method   string
	Body     json.RawMessage
}

type handler func(ctx context.Context, req Request) envelope.Envelope

type Responder struct {
	cfg       Config
	records   *RecordStore
	clock     clock.Clock
	log       logx.Logger
	resources map[string]bool
	routes    map[string]handler
}

func New(cfg Config, store storage.Store, clk clock.Clock, log logx.Logger) *Responder {
	if cfg.SensorHistoryCap <= 0 {
		cfg.SensorHistoryCap = DefaultSensorHistoryCap
	}
	if len(cfg.Resources) == 0 {
		cfg.Resources = DefaultResources
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Responder{
		cfg:       cfg,
		records:   NewRecordStore(store),
		clock:     clock.OrReal(clk),
		log:       log,
		resources: map[string]bool{},
	}
	for _, res := range cfg.Resources {
		res = strings.Trim(strings.TrimSpace(res), "/")
		if res != "" {
			r.resources[res] = true
		}
	}
	r.routes = map[string]handler{
		"GET /health":                  r.health,
		"POST /sensors/data":           r.ingestSensor,
		"GET /sensors/latest":          r.latestSensors,
		"GET /dashboard/stats":         r.dashboardStats,
		"POST /backup/execute-ccp":     r.executeBackup,
		"GET /backup/logs":             r.backupLogs,
		"GET /backup/config":           r.getBackupConfig,
		"POST /backup/config":          r.saveBackupConfig,
		"POST /backup/test-connection": r.testConnection,
	}
	return r
}

// Records exposes the underlying record store.
func (r *Responder) Records() *RecordStore { return r.records }

// Respond answers req. It never returns a transport-level failure.
func (r *Responder) Respond(ctx context.Context, req Request) envelope.Envelope {
	path := normalizePath(req.Endpoint)
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = "GET"
	}
	req.Endpoint = path
	req.Method = method

	if h, ok := r.routes[method+" "+path]; ok {
		return h(ctx, req)
	}
	if res, id, ok := r.crudTarget(path); ok {
		return r.crud(ctx, req, res, id)
	}
	r.log.Debug("mock fallback response", logx.String("endpoint", path), logx.String("method", method))
	return envelope.Ok(map[string]any{
		"endpoint": path,
		"method":   method,
		"mocked":   true,
	})
}

func (r *Responder) now() time.Time { return r.clock.Now().UTC() }

func (r *Responder) health(ctx context.Context, req Request) envelope.Envelope {
	return envelope.Ok(map[string]any{
		"status":    "healthy",
		"timestamp": r.now().Format(time.RFC3339Nano),
		"server":    "mock",
	})
}

func (r *Responder) executeBackup(ctx context.Context, req Request) envelope.Envelope {
	ccp, err := r.records.List(ctx, "ccp")
	if err != nil {
		return envelope.FromError(envelope.KindInternal, err)
	}
	now := r.now()
	return envelope.Ok(map[string]any{
		"recordCount": len(ccp),
		"backupId":    fmt.Sprintf("mock-%d", now.UnixMilli()),
		"timestamp":   now.Format(time.RFC3339Nano),
		"mocked":      true,
	})
}

func (r *Responder) backupLogs(ctx context.Context, req Request) envelope.Envelope {
	return envelope.Ok(map[string]any{"logs": []any{}})
}

func (r *Responder) getBackupConfig(ctx context.Context, req Request) envelope.Envelope {
	doc, ok, err := r.records.Doc(ctx, backupConfigKey)
	if err != nil {
		return envelope.FromError(envelope.KindInternal, err)
	}
	if !ok {
		return envelope.Ok(map[string]any{"configured": false})
	}
	out := Record{"configured": true}
	for k, v := range doc {
		if isSecretField(k) {
			out[k] = maskedSecretText
			continue
		}
		out[k] = v
	}
	return envelope.Ok(out)
}

func (r *Responder) saveBackupConfig(ctx context.Context, req Request) envelope.Envelope {
	rec, err := decodeRecord(req.Body)
	if err != nil {
		return envelope.Fail(envelope.KindValidation, "backup config must be a JSON object")
	}
	// Keep secrets that the UI echoes back masked.
	prev, _, _ := r.records.Doc(ctx, backupConfigKey)
	for k, v := range rec {
		if s, _ := v.(string); s != maskedSecretText {
			continue
		}
		pv, ok := prev[k]
		if !ok {
			return envelope.Fail(envelope.KindValidation, fmt.Sprintf("backup config: %s has no stored value to keep", k))
		}
		rec[k] = pv
	}
	rec["updatedAt"] = r.now().Format(time.RFC3339Nano)
	if err := r.records.PutDoc(ctx, backupConfigKey, rec); err != nil {
		return envelope.FromError(envelope.KindInternal, err)
	}
	return envelope.Ok(map[string]any{"saved": true})
}

func (r *Responder) testConnection(ctx context.Context, req Request) envelope.Envelope {
	return envelope.Ok(map[string]any{
		"step":    "complete",
		"message": "mock destination reachable",
		"mocked":  true,
	})
}

func (r *Responder) crudTarget(path string) (resource, id string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || len(parts) > 2 || !r.resources[parts[0]] {
		return "", "", false
	}
	if len(parts) == 2 {
		id = parts[1]
	}
	return parts[0], id, true
}

func (r *Responder) crud(ctx context.Context, req Request, resource, id string) envelope.Envelope {
	switch {
	case req.Method == "GET" && id == "":
		list, err := r.records.List(ctx, resource)
		if err != nil {
			return envelope.FromError(envelope.KindInternal, err)
		}
		if list == nil {
			list = []Record{}
		}
		return envelope.Ok(list)
	case req.Method == "GET":
		list, err := r.records.List(ctx, resource)
		if err != nil {
			return envelope.FromError(envelope.KindInternal, err)
		}
		if i := indexByID(list, id); i >= 0 {
			return envelope.Ok(list[i])
		}
		return notFound(resource, id)
	case req.Method == "POST" && id == "":
		return r.create(ctx, req, resource)
	case req.Method == "PUT" && id != "":
		return r.update(ctx, req, resource, id)
	case req.Method == "DELETE" && id != "":
		return r.remove(ctx, resource, id)
	default:
		return envelope.Fail(envelope.KindValidation, fmt.Sprintf("%s not supported on %s", req.Method, req.Endpoint))
	}
}

func (r *Responder) create(ctx context.Context, req Request, resource string) envelope.Envelope {
	rec, err := decodeRecord(req.Body)
	if err != nil {
		return envelope.Fail(envelope.KindValidation, resource+": body must be a JSON object")
	}
	if id := recordID(rec); id != "" {
		list, err := r.records.List(ctx, resource)
		if err != nil {
			return envelope.FromError(envelope.KindInternal, err)
		}
		if indexByID(list, id) >= 0 {
			return envelope.Fail(envelope.KindValidation, fmt.Sprintf("%s: id %q already exists", resource, id))
		}
	} else {
		seq, err := r.records.NextSeq(ctx, resource)
		if err != nil {
			return envelope.FromError(envelope.KindInternal, err)
		}
		rec["id"] = fmt.Sprintf("%s-%d", resource, seq)
	}
	rec["createdAt"] = r.now().Format(time.RFC3339Nano)
	if err := r.records.Append(ctx, resource, rec, 0); err != nil {
		return envelope.FromError(envelope.KindInternal, err)
	}
	return envelope.Ok(rec)
}

func (r *Responder) update(ctx context.Context, req Request, resource, id string) envelope.Envelope {
	patch, err := decodeRecord(req.Body)
	if err != nil {
		return envelope.Fail(envelope.KindValidation, resource+": body must be a JSON object")
	}
	var updated Record
	err = r.records.Update(ctx, resource, func(list []Record) ([]Record, error) {
		i := indexByID(list, id)
		if i < 0 {
			return nil, errNotFound
		}
		next := Record{}
		for k, v := range list[i] {
			next[k] = v
		}
		for k, v := range patch {
			next[k] = v
		}
		next["id"] = id
		next["updatedAt"] = r.now().Format(time.RFC3339Nano)
		list[i] = next
		updated = next
		return list, nil
	})
	if errors.Is(err, errNotFound) {
		return notFound(resource, id)
	}
	if err != nil {
		return envelope.FromError(envelope.KindInternal, err)
	}
	return envelope.Ok(updated)
}

func (r *Responder) remove(ctx context.Context, resource, id string) envelope.Envelope {
	err := r.records.Update(ctx, resource, func(list []Record) ([]Record, error) {
		i := indexByID(list, id)
		if i < 0 {
			return nil, errNotFound
		}
		return append(list[:i], list[i+1:]...), nil
	})
	if errors.Is(err, errNotFound) {
		return notFound(resource, id)
	}
	if err != nil {
		return envelope.FromError(envelope.KindInternal, err)
	}
	return envelope.Ok(map[string]any{"id": id, "deleted": true})
}

func notFound(resource, id string) envelope.Envelope {
	return envelope.Fail(envelope.KindRemote, fmt.Sprintf("%s/%s not found", resource, id))
}

func indexByID(list []Record, id string) int {
	for i, rec := range list {
		if recordID(rec) == id {
			return i
		}
	}
	return -1
}

func recordID(rec Record) string {
	switch v := rec["id"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func isSecretField(k string) bool {
	k = strings.ToLower(k)
	for _, s := range []string{"key", "secret", "password", "token", "credential"} {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// normalizePath strips scheme/host and query, and trims trailing slashes.
func normalizePath(endpoint string) string {
	p := strings.TrimSpace(endpoint)
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	p = "/" + strings.Trim(p, "/")
	return p
}
