package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"haccpkit/internal/envelope"
)

// ingestSensor validates and appends one sample, keeping the most recent
// SensorHistoryCap samples.
func (r *Responder) ingestSensor(ctx context.Context, req Request) envelope.Envelope {
	rec, err := decodeRecord(req.Body)
	if err != nil {
		return envelope.Fail(envelope.KindValidation, "sensor sample must be a JSON object")
	}
	var missing []string
	if sensorID(rec) == "" {
		missing = append(missing, "sensorId")
	}
	if _, ok := number(rec["value"]); !ok {
		missing = append(missing, "value")
	}
	if len(missing) > 0 {
		return envelope.Fail(envelope.KindValidation, "missing required fields: "+strings.Join(missing, ", "))
	}
	if _, ok := sampleTime(rec); !ok {
		rec["timestamp"] = r.now().Format(time.RFC3339Nano)
	}
	if err := r.records.Append(ctx, sensorResource, rec, r.cfg.SensorHistoryCap); err != nil {
		return envelope.FromError(envelope.KindInternal, err)
	}
	return envelope.Ok(rec)
}

// latestSensors reduces the history to the most recent sample per sensor,
// ordered by sensor id.
func (r *Responder) latestSensors(ctx context.Context, req Request) envelope.Envelope {
	list, err := r.records.List(ctx, sensorResource)
	if err != nil {
		return envelope.FromError(envelope.KindInternal, err)
	}
	latest := latestBySensor(list)
	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, latest[id])
	}
	return envelope.Ok(out)
}

type dashboardStats struct {
	TotalSamples int            `json:"totalSamples"`
	SensorCount  int            `json:"sensorCount"`
	Alerts       int            `json:"alerts"`
	LastSampleAt *time.Time     `json:"lastSampleAt"`
	Records      map[string]int `json:"records"`
}

func (r *Responder) dashboardStats(ctx context.Context, req Request) envelope.Envelope {
	list, err := r.records.List(ctx, sensorResource)
	if err != nil {
		return envelope.FromError(envelope.KindInternal, err)
	}
	st := dashboardStats{
		TotalSamples: len(list),
		SensorCount:  len(latestBySensor(list)),
		Records:      map[string]int{},
	}
	for _, rec := range list {
		if outOfRange(rec) {
			st.Alerts++
		}
		if ts, ok := sampleTime(rec); ok && (st.LastSampleAt == nil || ts.After(*st.LastSampleAt)) {
			t := ts
			st.LastSampleAt = &t
		}
	}
	for res := range r.resources {
		recs, err := r.records.List(ctx, res)
		if err != nil {
			return envelope.FromError(envelope.KindInternal, fmt.Errorf("%s: %w", res, err))
		}
		st.Records[res] = len(recs)
	}
	return envelope.Ok(st)
}

func latestBySensor(list []Record) map[string]Record {
	out := map[string]Record{}
	stamp := map[string]time.Time{}
	for _, rec := range list {
		id := sensorID(rec)
		if id == "" {
			continue
		}
		ts, _ := sampleTime(rec)
		// History is oldest first; on equal (or missing) timestamps the later entry wins.
		if prev, ok := stamp[id]; ok && ts.Before(prev) {
			continue
		}
		out[id] = rec
		stamp[id] = ts
	}
	return out
}

func outOfRange(rec Record) bool {
	v, ok := number(rec["value"])
	if !ok {
		return false
	}
	if lo, ok := number(rec["min"]); ok && v < lo {
		return true
	}
	if hi, ok := number(rec["max"]); ok && v > hi {
		return true
	}
	return false
}

func sensorID(rec Record) string {
	switch v := rec["sensorId"].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func sampleTime(rec Record) (time.Time, bool) {
	s, ok := rec["timestamp"].(string)
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	default:
		return 0, false
	}
}
