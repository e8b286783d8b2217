package ingestion

import (
	"context"
	"sync"
	"time"
)

// ConnectorStatusStore records connector status/last run.
type ConnectorStatusStore interface {
	SetStatus(ctx context.Context, name, orgID, status, lastError string, runAt *time.Time) error
	LastError(ctx context.Context, name, orgID string, err error) error
}

type connectorStatusEntry struct {
	Status    string
	LastError string
	RunAt     *time.Time
}

// InMemoryConnectorStatusStore is a process-local ConnectorStatusStore,
// matching InMemoryActivityStore and InMemoryLogStore: suitable for
// development and for a single worker instance, not for a multi-replica
// deployment that needs connector health shared across processes.
type InMemoryConnectorStatusStore struct {
	mu      sync.RWMutex
	entries map[string]connectorStatusEntry
}

// NewInMemoryConnectorStatusStore creates an empty in-memory connector status store.
func NewInMemoryConnectorStatusStore() *InMemoryConnectorStatusStore {
	return &InMemoryConnectorStatusStore{entries: make(map[string]connectorStatusEntry)}
}

func connectorStatusKey(name, orgID string) string {
	return orgID + "/" + name
}

// SetStatus records the status of a connector.
func (s *InMemoryConnectorStatusStore) SetStatus(ctx context.Context, name, orgID, status, lastError string, runAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[connectorStatusKey(name, orgID)] = connectorStatusEntry{
		Status:    status,
		LastError: lastError,
		RunAt:     runAt,
	}
	return nil
}

// LastError records an error for a connector.
func (s *InMemoryConnectorStatusStore) LastError(ctx context.Context, name, orgID string, err error) error {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	now := time.Now()
	return s.SetStatus(ctx, name, orgID, "error", errMsg, &now)
}

// Status returns the last recorded status for a connector, if any.
func (s *InMemoryConnectorStatusStore) Status(name, orgID string) (status string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[connectorStatusKey(name, orgID)]
	return entry.Status, ok
}
