package backup

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"haccpkit/internal/clock"
	"haccpkit/internal/storage"
	logx "haccpkit/pkg/logx"
)

const (
	DefaultRetention = 100

	logsKey = "backup/logs"
)

type LogStore struct {
	mu        sync.Mutex
	store     storage.Store
	retention int
	remote    RemoteSource
	clock     clock.Clock
	log       logx.Logger
}

// NewLogStore returns a log store persisted in s. remote may be nil.
func NewLogStore(s storage.Store, retention int, remote RemoteSource, clk clock.Clock, log logx.Logger) *LogStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogStore{
		store:     s,
		retention: retention,
		remote:    remote,
		clock:     clock.OrReal(clk),
		log:       log,
	}
}

// Append stores e as the newest entry, assigning an id and timestamp when
// missing, and drops the oldest entries beyond the retention cap.
func (s *LogStore) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now()
	}
	e.Timestamp = e.Timestamp.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.localLocked(ctx)
	if err != nil {
		return Entry{}, err
	}
	list = append([]Entry{e}, list...)
	if len(list) > s.retention {
		list = list[:s.retention]
	}
	if err := storage.PutJSON(ctx, s.store, logsKey, list); err != nil {
		return Entry{}, fmt.Errorf("backup: save logs: %w", err)
	}
	return e, nil
}

// Local returns the locally cached entries, newest first.
func (s *LogStore) Local(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localLocked(ctx)
}

// All merges local and remote history. Remote failures are logged and the
// local view is returned alone.
func (s *LogStore) All(ctx context.Context) ([]Entry, error) {
	local, err := s.Local(ctx)
	if err != nil {
		return nil, err
	}
	var remote []Entry
	if s.remote != nil {
		remote, err = s.remote.Logs(ctx)
		if err != nil {
			s.log.Warn("remote backup logs unavailable", logx.Err(err))
			remote = nil
		}
	}
	return Merge(local, remote), nil
}

func (s *LogStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, logsKey)
}

func (s *LogStore) localLocked(ctx context.Context) ([]Entry, error) {
	var list []Entry
	if _, err := storage.GetJSON(ctx, s.store, logsKey, &list); err != nil {
		return nil, fmt.Errorf("backup: load logs: %w", err)
	}
	return list, nil
}

// Merge concatenates the sources in order, keeps the first entry seen for
// each id and sorts newest first. Entries with equal timestamps keep their
// scan order.
func Merge(sources ...[]Entry) []Entry {
	seen := map[string]bool{}
	out := []Entry{}
	for _, src := range sources {
		for _, e := range src {
			if e.ID != "" {
				if seen[e.ID] {
					continue
				}
				seen[e.ID] = true
			}
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
