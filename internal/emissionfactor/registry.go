package emissionfactor

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry looks up and registers catalogue factors. Resolve (in
// factor.go) is the higher-level entry point the calculation engine calls.
type Registry interface {
	Get(id string) (Factor, error)
	Find(q Query) (Factor, error)
	List(q Query) []Factor
	Register(f Factor) error
}

// MemoryRegistry stores factors in memory behind a RWMutex. It is the only
// Registry implementation: the catalogue is small, changes rarely (annual
// grid-factor refresh), and is read on every measurement calculation, so a
// full in-process copy avoids a storage round trip per entry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	factors map[string]Factor
}

// NewMemoryRegistry creates an empty registry. Callers typically follow it
// with SeedDefaults to populate the illustrative standards bundle.
func NewMemoryRegistry(logger *slog.Logger) *MemoryRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryRegistry{
		logger:  logger,
		factors: make(map[string]Factor),
	}
}

func (r *MemoryRegistry) Get(id string) (Factor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factors[id]
	if !ok {
		return Factor{}, fmt.Errorf("factor %q: %w", id, ErrNotFound)
	}
	return f, nil
}

func (r *MemoryRegistry) Find(q Query) (Factor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []Factor
	for _, f := range r.factors {
		if q.matches(f) {
			matches = append(matches, f)
		}
	}
	if len(matches) == 0 {
		return Factor{}, fmt.Errorf(
			"no factor matching standard=%s scope=%s category=%s activity=%s region=%q: %w",
			q.Standard, q.Scope, q.Category, q.Activity, q.Region, ErrNotFound,
		)
	}

	sort.Slice(matches, func(i, j int) bool {
		return specificity(matches[i], q) > specificity(matches[j], q)
	})
	return matches[0], nil
}

func (r *MemoryRegistry) List(q Query) []Factor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []Factor
	for _, f := range r.factors {
		if q.matches(f) {
			matches = append(matches, f)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches
}

func (r *MemoryRegistry) Register(f Factor) error {
	if f.ID == "" || f.Unit == "" || f.Gases.IsZero() {
		return fmt.Errorf("emissionfactor: invalid factor %q: missing id, unit or gas values", f.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factors[f.ID] = f

	r.logger.Info("registered emission factor",
		"factor_id", f.ID,
		"standard", f.Standard,
		"scope", f.Scope,
		"category", f.Category,
		"region", f.Region,
	)
	return nil
}

// Count reports how many factors the registry holds.
func (r *MemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factors)
}
