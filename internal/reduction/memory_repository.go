package reduction

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is a process-local Repository, used in tests and as
// the reference implementation the pgx-backed one mirrors.
type InMemoryRepository struct {
	mu      sync.RWMutex
	streams map[Key][]Entry
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{streams: make(map[Key][]Entry)}
}

func (r *InMemoryRepository) Stream(ctx context.Context, key Key) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.streams[key]
	out := make([]Entry, len(src))
	copy(out, src)
	return out, nil
}

func (r *InMemoryRepository) ReplaceStream(ctx context.Context, key Key, entries []Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	r.streams[key] = cp
	return nil
}

func (r *InMemoryRepository) AllStreamsForClient(clientID string) []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []Key
	for k := range r.streams {
		if k.ClientID == clientID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ProjectID != keys[j].ProjectID {
			return keys[i].ProjectID < keys[j].ProjectID
		}
		return keys[i].Methodology < keys[j].Methodology
	})
	return keys
}

// EntriesInRange returns every entry for clientID whose timestamp falls in
// [from, to), across all of that client's streams, for the summariser to
// fold into a period's reductionSummary.
func (r *InMemoryRepository) EntriesInRange(ctx context.Context, clientID string, from, to int64) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for k, entries := range r.streams {
		if k.ClientID != clientID {
			continue
		}
		for _, e := range entries {
			ns := e.Timestamp.UnixNano()
			if ns >= from && ns < to {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
