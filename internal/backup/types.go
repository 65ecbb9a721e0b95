// Package backup runs backup attempts and keeps their history.
//
// The Runner admits one attempt at a time and never retries: the backup
// destination write is not idempotent, so recovery is a manual re-trigger.
// Every attempt that runs produces exactly one immutable log Entry.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"haccpkit/internal/envelope"
)

// ErrAlreadyInProgress is reported when a run is requested while another is active.
var ErrAlreadyInProgress = errors.New("BackupAlreadyInProgress")

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
)

// Entry is one backup attempt. Entries are never modified after Append.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Trigger   Trigger         `json:"trigger"`
	Status    Status          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
	Step      string          `json:"step,omitempty"`
	TookMs    int64           `json:"tookMs,omitempty"`
}

// Operation performs one backup. It is expected to honour ctx.
type Operation func(ctx context.Context) envelope.Envelope

// RemoteSource supplies backup history recorded by the remote side.
type RemoteSource interface {
	Logs(ctx context.Context) ([]Entry, error)
}
