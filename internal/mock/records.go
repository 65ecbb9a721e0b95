package mock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"haccpkit/internal/storage"
)

const (
	recordsPrefix = "mock/records/"
	seqPrefix     = "mock/seq/"
)

var errNotFound = errors.New("record not found")

// Record is one JSON object held by the record store. Numbers are kept as
// json.Number so ids and counters round-trip unchanged.
type Record map[string]any

// RecordStore maps a resource name to an ordered (oldest first) list of
// records, persisted in the key-value store.
type RecordStore struct {
	mu    sync.Mutex
	store storage.Store
}

func NewRecordStore(s storage.Store) *RecordStore {
	return &RecordStore{store: s}
}

// List returns the records of resource, oldest first.
func (s *RecordStore) List(ctx context.Context, resource string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(ctx, resource)
}

// Append adds rec at the end. When limit > 0 only the most recent limit
// records are kept.
func (s *RecordStore) Append(ctx context.Context, resource string, rec Record, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.listLocked(ctx, resource)
	if err != nil {
		return err
	}
	list = append(list, rec)
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return storage.PutJSON(ctx, s.store, recordsPrefix+resource, list)
}

// Update applies fn to the list under the store lock and persists the result.
func (s *RecordStore) Update(ctx context.Context, resource string, fn func([]Record) ([]Record, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.listLocked(ctx, resource)
	if err != nil {
		return err
	}
	out, err := fn(list)
	if err != nil {
		return err
	}
	return storage.PutJSON(ctx, s.store, recordsPrefix+resource, out)
}

// NextSeq returns the next value of the per-resource id sequence, starting at 1.
func (s *RecordStore) NextSeq(ctx context.Context, resource string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	if _, err := storage.GetJSON(ctx, s.store, seqPrefix+resource, &n); err != nil {
		return 0, err
	}
	n++
	if err := storage.PutJSON(ctx, s.store, seqPrefix+resource, n); err != nil {
		return 0, err
	}
	return n, nil
}

// Doc reads a single JSON document stored under key.
func (s *RecordStore) Doc(ctx context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err := decodeRecord(b)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, true, nil
}

func (s *RecordStore) PutDoc(ctx context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storage.PutJSON(ctx, s.store, key, rec)
}

func (s *RecordStore) listLocked(ctx context.Context, resource string) ([]Record, error) {
	b, ok, err := s.store.Get(ctx, recordsPrefix+resource)
	if err != nil || !ok {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode %s records: %w", resource, err)
	}
	out := make([]Record, 0, len(raw))
	for _, r := range raw {
		rec, err := decodeRecord(r)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeRecord(b []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("record is not an object")
	}
	return rec, nil
}
