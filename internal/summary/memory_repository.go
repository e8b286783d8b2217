package summary

import (
	"context"
	"sync"

	"github.com/paulwilltell/carbonplane/internal/core"
)

type docKey struct {
	ClientID   string
	PeriodType core.PeriodType
	Period     core.Period
}

// InMemoryRepository is a process-local Repository, used in tests and as
// the reference implementation the pgx-backed one mirrors.
type InMemoryRepository struct {
	mu   sync.RWMutex
	docs map[docKey]EmissionSummary
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{docs: make(map[docKey]EmissionSummary)}
}

func (r *InMemoryRepository) Get(ctx context.Context, clientID string, periodType core.PeriodType, period core.Period) (EmissionSummary, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[docKey{clientID, periodType, period}]
	return doc, ok, nil
}

func (r *InMemoryRepository) Upsert(ctx context.Context, s EmissionSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[docKey{s.ClientID, s.PeriodType, s.Period}] = s
	return nil
}

func (r *InMemoryRepository) ListByClient(ctx context.Context, clientID string) ([]EmissionSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []EmissionSummary
	for k, doc := range r.docs {
		if k.ClientID == clientID {
			out = append(out, doc)
		}
	}
	return out, nil
}

// DeleteByClient drops every summary document for a client. Used by the
// restore path when a caller wants a clean slate before re-importing a
// full backup.
func (r *InMemoryRepository) DeleteByClient(ctx context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.docs {
		if k.ClientID == clientID {
			delete(r.docs, k)
		}
	}
	return nil
}
