package backup

import (
	"context"
	"encoding/json"
	"fmt"

	"haccpkit/internal/envelope"
)

const DefaultRemoteLogsEndpoint = "/backup/logs"

// Getter is satisfied by the request dispatcher.
type Getter interface {
	Get(ctx context.Context, endpoint string) envelope.Envelope
}

// RemoteLogs reads remote history through the dispatcher. The payload may be
// either {"logs": [...]} or a bare array.
type RemoteLogs struct {
	Client   Getter
	Endpoint string
}

func (r RemoteLogs) Logs(ctx context.Context) ([]Entry, error) {
	ep := r.Endpoint
	if ep == "" {
		ep = DefaultRemoteLogsEndpoint
	}
	env := r.Client.Get(ctx, ep)
	if !env.Success {
		return nil, env.Err()
	}
	if len(env.Data) == 0 {
		return nil, nil
	}
	var wrapped struct {
		Logs []Entry `json:"logs"`
	}
	if err := json.Unmarshal(env.Data, &wrapped); err == nil {
		return wrapped.Logs, nil
	}
	var bare []Entry
	if err := json.Unmarshal(env.Data, &bare); err != nil {
		return nil, fmt.Errorf("backup: decode remote logs: %w", err)
	}
	return bare, nil
}
