package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haccpkit/internal/clock"
	"haccpkit/internal/envelope"
	"haccpkit/internal/storage"
	logx "haccpkit/pkg/logx"
)

func newResponder(t *testing.T, cfg Config) (*Responder, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC))
	return New(cfg, storage.NewMemory(), clk, logx.Nop()), clk
}

func call(r *Responder, method, endpoint string, body any) envelope.Envelope {
	var raw json.RawMessage
	if body != nil {
		b, _ := json.Marshal(body)
		raw = b
	}
	return r.Respond(context.Background(), Request{Endpoint: endpoint, Method: method, Body: raw})
}

func TestHealth(t *testing.T) {
	r, _ := newResponder(t, Config{})
	e := call(r, "GET", "/health", nil)
	require.True(t, e.Success)

	var got map[string]string
	require.NoError(t, e.Decode(&got))
	assert.Equal(t, "healthy", got["status"])
	assert.Equal(t, "mock", got["server"])
	assert.Equal(t, "2026-05-04T08:30:00Z", got["timestamp"])
}

func TestSensorIngestValidation(t *testing.T) {
	r, _ := newResponder(t, Config{})
	e := call(r, "POST", "/sensors/data", map[string]any{"unit": "C"})
	assert.False(t, e.Success)
	assert.Equal(t, envelope.KindValidation, e.Kind)
	assert.Equal(t, "missing required fields: sensorId, value", e.Error)

	e = call(r, "POST", "/sensors/data", map[string]any{"sensorId": "fridge-1", "value": 3.5})
	require.True(t, e.Success)
	var rec map[string]any
	require.NoError(t, e.Decode(&rec))
	assert.Equal(t, "2026-05-04T08:30:00Z", rec["timestamp"])
}

func TestSensorHistoryCapped(t *testing.T) {
	r, clk := newResponder(t, Config{SensorHistoryCap: 5})
	for i := 0; i < 8; i++ {
		clk.Advance(time.Second)
		e := call(r, "POST", "/sensors/data", map[string]any{"sensorId": "s", "value": i})
		require.True(t, e.Success)
	}
	list, err := r.Records().List(context.Background(), sensorResource)
	require.NoError(t, err)
	require.Len(t, list, 5)
	v, _ := number(list[0]["value"])
	assert.Equal(t, 3.0, v)
}

func TestSensorsLatest(t *testing.T) {
	r, clk := newResponder(t, Config{})
	samples := []map[string]any{
		{"sensorId": "b", "value": 1},
		{"sensorId": "a", "value": 2},
		{"sensorId": "b", "value": 3},
	}
	for _, s := range samples {
		clk.Advance(time.Minute)
		require.True(t, call(r, "POST", "/sensors/data", s).Success)
	}
	// Late-arriving sample with an older timestamp must not win.
	require.True(t, call(r, "POST", "/sensors/data", map[string]any{
		"sensorId": "a", "value": 99, "timestamp": "2026-05-04T08:00:00Z",
	}).Success)

	e := call(r, "GET", "/sensors/latest", nil)
	require.True(t, e.Success)
	var got []map[string]any
	require.NoError(t, e.Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0]["sensorId"])
	assert.EqualValues(t, 2, got[0]["value"])
	assert.Equal(t, "b", got[1]["sensorId"])
	assert.EqualValues(t, 3, got[1]["value"])
}

func TestDashboardStats(t *testing.T) {
	r, clk := newResponder(t, Config{Resources: []string{"ccp"}})
	require.True(t, call(r, "POST", "/sensors/data", map[string]any{"sensorId": "f1", "value": 9, "max": 5}).Success)
	clk.Advance(time.Minute)
	require.True(t, call(r, "POST", "/sensors/data", map[string]any{"sensorId": "f2", "value": 4, "min": 0, "max": 5}).Success)
	require.True(t, call(r, "POST", "/ccp", map[string]any{"name": "cooling"}).Success)

	e := call(r, "GET", "/dashboard/stats", nil)
	require.True(t, e.Success)
	var st dashboardStats
	require.NoError(t, e.Decode(&st))
	assert.Equal(t, 2, st.TotalSamples)
	assert.Equal(t, 2, st.SensorCount)
	assert.Equal(t, 1, st.Alerts)
	assert.Equal(t, map[string]int{"ccp": 1}, st.Records)
	require.NotNil(t, st.LastSampleAt)
	assert.True(t, st.LastSampleAt.Equal(clk.Now()))
}

func TestCRUDLifecycle(t *testing.T) {
	r, _ := newResponder(t, Config{})

	e := call(r, "POST", "/suppliers", map[string]any{"name": "Acme"})
	require.True(t, e.Success)
	var created map[string]any
	require.NoError(t, e.Decode(&created))
	assert.Equal(t, "suppliers-1", created["id"])

	e = call(r, "PUT", "/suppliers/suppliers-1", map[string]any{"name": "Acme Foods"})
	require.True(t, e.Success)

	e = call(r, "GET", "/suppliers/suppliers-1", nil)
	require.True(t, e.Success)
	var got map[string]any
	require.NoError(t, e.Decode(&got))
	assert.Equal(t, "Acme Foods", got["name"])

	e = call(r, "DELETE", "/suppliers/suppliers-1", nil)
	require.True(t, e.Success)

	e = call(r, "GET", "/suppliers/suppliers-1", nil)
	assert.False(t, e.Success)
	assert.Equal(t, envelope.KindRemote, e.Kind)

	e = call(r, "GET", "/suppliers", nil)
	require.True(t, e.Success)
	assert.JSONEq(t, `[]`, string(e.Data))
}

func TestCRUDIDsAreDeterministic(t *testing.T) {
	r, _ := newResponder(t, Config{})
	for i := 1; i <= 3; i++ {
		e := call(r, "POST", "/checklists", map[string]any{"n": i})
		var rec map[string]any
		require.NoError(t, e.Decode(&rec))
		assert.Equal(t, fmt.Sprintf("checklists-%d", i), rec["id"])
	}
}

func TestBackupEndpoints(t *testing.T) {
	r, _ := newResponder(t, Config{})
	require.True(t, call(r, "POST", "/ccp", map[string]any{"name": "cooking"}).Success)
	require.True(t, call(r, "POST", "/ccp", map[string]any{"name": "cooling"}).Success)

	e := call(r, "POST", "/backup/execute-ccp", nil)
	require.True(t, e.Success)
	var res struct {
		RecordCount int `json:"recordCount"`
	}
	require.NoError(t, e.Decode(&res))
	assert.Equal(t, 2, res.RecordCount)

	e = call(r, "POST", "/backup/test-connection", map[string]any{"sheetId": "x"})
	require.True(t, e.Success)
	assert.Equal(t, e, call(r, "POST", "/backup/test-connection", nil))

	e = call(r, "GET", "/backup/logs", nil)
	require.True(t, e.Success)
	assert.JSONEq(t, `{"logs":[]}`, string(e.Data))
}

func TestBackupConfigMasksSecrets(t *testing.T) {
	r, _ := newResponder(t, Config{})
	e := call(r, "GET", "/backup/config", nil)
	require.True(t, e.Success)
	assert.JSONEq(t, `{"configured":false}`, string(e.Data))

	require.True(t, call(r, "POST", "/backup/config", map[string]any{
		"sheetId": "sheet-1", "privateKey": "s3cr3t",
	}).Success)

	var got map[string]any
	require.NoError(t, call(r, "GET", "/backup/config", nil).Decode(&got))
	assert.Equal(t, "sheet-1", got["sheetId"])
	assert.Equal(t, maskedSecretText, got["privateKey"])

	// Saving the masked value back keeps the stored secret.
	require.True(t, call(r, "POST", "/backup/config", map[string]any{
		"sheetId": "sheet-2", "privateKey": maskedSecretText,
	}).Success)
	doc, ok, err := r.Records().Doc(context.Background(), backupConfigKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s3cr3t", doc["privateKey"])
}

func TestBackupConfigRejectsMaskedSecretWithoutStoredValue(t *testing.T) {
	r, _ := newResponder(t, Config{})
	e := call(r, "POST", "/backup/config", map[string]any{
		"sheetId": "sheet-1", "privateKey": maskedSecretText,
	})
	assert.False(t, e.Success)
	assert.Equal(t, envelope.KindValidation, e.Kind)

	_, ok, err := r.Records().Doc(context.Background(), backupConfigKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCRUDRejectsDuplicateID(t *testing.T) {
	r, _ := newResponder(t, Config{})
	require.True(t, call(r, "POST", "/suppliers", map[string]any{"id": "acme", "name": "Acme"}).Success)

	e := call(r, "POST", "/suppliers", map[string]any{"id": "acme", "name": "Other"})
	assert.False(t, e.Success)
	assert.Equal(t, envelope.KindValidation, e.Kind)

	e = call(r, "GET", "/suppliers", nil)
	require.True(t, e.Success)
	var list []map[string]any
	require.NoError(t, e.Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "Acme", list[0]["name"])
}

func TestUnknownEndpointFallsThrough(t *testing.T) {
	r, _ := newResponder(t, Config{})
	e := call(r, "patch", "https://api.example.com/widgets/7/parts?x=1", nil)
	require.True(t, e.Success)
	assert.JSONEq(t, `{"endpoint":"/widgets/7/parts","method":"PATCH","mocked":true}`, string(e.Data))
}
