package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/paulwilltell/carbonplane/internal/measurement"
)

// CollectionConfig is the per-stream collection bookkeeping document:
// the expected cadence, when data last arrived, when the next entry is
// due, and when the stream was last alerted on. Persisting it keeps the
// at-most-one-alert-per-overdue-window guarantee across process restarts.
type CollectionConfig struct {
	Key            measurement.Key
	Cadence        time.Duration
	LastCollection time.Time
	NextDue        time.Time
	AlertThreshold float64 // fraction of the cadence to wait past NextDue before alerting
	LastAlertedAt  time.Time
}

// CollectionConfigStore persists one CollectionConfig per stream.
type CollectionConfigStore interface {
	Get(ctx context.Context, key measurement.Key) (CollectionConfig, bool, error)
	Upsert(ctx context.Context, cfg CollectionConfig) error
}

// InMemoryCollectionConfigStore is the process-local store used in tests
// and database-less deployments.
type InMemoryCollectionConfigStore struct {
	mu   sync.RWMutex
	docs map[measurement.Key]CollectionConfig
}

func NewInMemoryCollectionConfigStore() *InMemoryCollectionConfigStore {
	return &InMemoryCollectionConfigStore{docs: make(map[measurement.Key]CollectionConfig)}
}

func (s *InMemoryCollectionConfigStore) Get(ctx context.Context, key measurement.Key) (CollectionConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.docs[key]
	return cfg, ok, nil
}

func (s *InMemoryCollectionConfigStore) Upsert(ctx context.Context, cfg CollectionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[cfg.Key] = cfg
	return nil
}
