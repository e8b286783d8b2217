package flowchart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulwilltell/carbonplane/internal/core"
	"github.com/paulwilltell/carbonplane/internal/events"
)

// Repository persists flowcharts. The storage adapter implements this over
// core.Storage's upsert-by-key/conditional-update document contract,
// keyed by clientId.
type Repository interface {
	Get(ctx context.Context, clientID string) (Flowchart, error)
	Save(ctx context.Context, fc Flowchart) error
	// All returns every stored flowchart, for the scheduler's "every active
	// client" enumeration.
	All(ctx context.Context) ([]Flowchart, error)
}

// ServiceConfig configures the flowchart service.
type ServiceConfig struct {
	Repository Repository
	Bus        events.Bus // change-notification bus; nil is allowed
	Logger     *slog.Logger
}

// Service is the flowchart mutation surface: upsertFlowchart, getFlowchart,
// softDelete, restore, deleteNode, updateNode, assignHead, setAllocation.
//
// Mutations for a given client are serialised through a per-client mutex.
// Flowchart edits are rare, operator-driven writes where a lost update
// (two concurrent renames racing) is far costlier than brief contention.
type Service struct {
	repo   Repository
	bus    events.Bus
	logger *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewService constructs a flowchart service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   cfg.Repository,
		bus:    cfg.Bus,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// allocationSnapshot flattens every scope's allocation percentage so two
// flowchart states can be compared for allocation changes.
func allocationSnapshot(fc Flowchart) map[string]float64 {
	snap := make(map[string]float64)
	for nodeID, node := range fc.Nodes {
		for _, sc := range node.Scopes {
			snap[nodeID+"/"+sc.ScopeUID+"/"+sc.ScopeIdentifier] = sc.AllocationPct
		}
	}
	return snap
}

func allocationChanged(before, after map[string]float64) bool {
	if len(before) != len(after) {
		return true
	}
	for k, v := range after {
		prev, ok := before[k]
		if !ok || prev != v {
			return true
		}
	}
	return false
}

// publishAllocationUpdated emits the allocation-updated event so the
// summary materialiser's targeted recomputation and external push
// collaborators learn about the configuration change.
func (s *Service) publishAllocationUpdated(ctx context.Context, fc Flowchart) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, events.NewEvent(events.EventAllocationUpdated, map[string]any{
		"clientId": fc.ClientID,
		"version":  fc.Version,
	}).WithSource("flowchart"))
}

func (s *Service) lockFor(clientID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[clientID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[clientID] = l
	}
	return l
}

func (s *Service) withClient(ctx context.Context, clientID string, fn func(Flowchart) (Flowchart, error)) (Flowchart, error) {
	if err := core.CheckClientAccess(ctx, clientID); err != nil {
		return Flowchart{}, err
	}
	lock := s.lockFor(clientID)
	lock.Lock()
	defer lock.Unlock()

	fc, err := s.repo.Get(ctx, clientID)
	if err != nil && core.KindOf(err) != core.KindValidation {
		return Flowchart{}, fmt.Errorf("flowchart: load %q: %w", clientID, err)
	}
	if fc.ClientID == "" {
		fc = NewFlowchart(clientID)
	}

	next, err := fn(fc)
	if err != nil {
		return Flowchart{}, err
	}

	next.Version = fc.Version + 1
	next.UpdatedAt = time.Now().UTC()

	if err := s.repo.Save(ctx, next); err != nil {
		return Flowchart{}, fmt.Errorf("flowchart: save %q: %w", clientID, err)
	}
	return next, nil
}

// NodeUpsert is a single node's worth of an upsert payload.
type NodeUpsert struct {
	ID         string
	Label      string
	Department string
	Location   string
	ParentID   string
	Scopes     []IncomingScope
}

// UpsertFlowchart merges incoming nodes into the client's flowchart,
// running the scope-merge algorithm per node, bumping the version
// monotonically, and returning any over-allocation warnings. A merge
// conflict (duplicate scopeIdentifier within a node) fails the whole
// request rather than partially applying it.
func (s *Service) UpsertFlowchart(ctx context.Context, clientID string, nodes []NodeUpsert) (Flowchart, []Warning, error) {
	var warnings []Warning
	var before map[string]float64

	fc, err := s.withClient(ctx, clientID, func(fc Flowchart) (Flowchart, error) {
		if !fc.Active {
			return Flowchart{}, flowchartInactiveError(clientID)
		}
		before = allocationSnapshot(fc)
		for _, in := range nodes {
			existing := fc.Nodes[in.ID]
			merged, err := mergeScopes(existing.Scopes, in.Scopes)
			if err != nil {
				return Flowchart{}, fmt.Errorf("flowchart: node %q: %w", in.ID, err)
			}

			node := Node{
				ID:         in.ID,
				Label:      firstNonEmpty(in.Label, existing.Label),
				Department: firstNonEmpty(in.Department, existing.Department),
				Location:   firstNonEmpty(in.Location, existing.Location),
				ParentID:   firstNonEmpty(in.ParentID, existing.ParentID),
				HeadID:     existing.HeadID,
				Scopes:     merged,
			}
			fc.Nodes[node.ID] = node
		}
		return fc, nil
	})
	if err != nil {
		return Flowchart{}, nil, err
	}

	warnings = fc.ValidateAllocation()
	for _, w := range warnings {
		s.logger.Warn("scope allocation exceeds 100%",
			"client_id", clientID, "scope_identifier", w.ScopeIdentifier)
	}
	if allocationChanged(before, allocationSnapshot(fc)) {
		s.publishAllocationUpdated(ctx, fc)
	}
	return fc, warnings, nil
}

// GetFlowchart returns the client's current flowchart as stored (active or
// soft-deleted).
func (s *Service) GetFlowchart(ctx context.Context, clientID string) (Flowchart, error) {
	if err := core.CheckClientAccess(ctx, clientID); err != nil {
		return Flowchart{}, err
	}
	return s.repo.Get(ctx, clientID)
}

// ListActive returns every flowchart with Active=true, for the scheduler's
// monthly-aggregation and overdue-detection enumeration.
func (s *Service) ListActive(ctx context.Context) ([]Flowchart, error) {
	all, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]Flowchart, 0, len(all))
	for _, fc := range all {
		if fc.Active {
			active = append(active, fc)
		}
	}
	return active, nil
}

// SoftDelete marks the flowchart inactive without discarding its nodes.
func (s *Service) SoftDelete(ctx context.Context, clientID string) (Flowchart, error) {
	return s.withClient(ctx, clientID, func(fc Flowchart) (Flowchart, error) {
		fc.Active = false
		fc.DeletedAt = time.Now().UTC()
		return fc, nil
	})
}

// Restore reactivates a soft-deleted flowchart. Each client stores exactly
// one flowchart document, so "an active flowchart exists" means the
// client's document is already active; restoring it is a conflict, not a
// no-op, so the caller learns its soft-delete assumption was stale.
func (s *Service) Restore(ctx context.Context, clientID string) (Flowchart, error) {
	return s.withClient(ctx, clientID, func(fc Flowchart) (Flowchart, error) {
		if fc.Active {
			return Flowchart{}, activeFlowchartError(clientID)
		}
		fc.Active = true
		fc.DeletedAt = time.Time{}
		return fc, nil
	})
}

// DeleteNode removes a single node. Children referencing it as ParentID are
// reparented to the deleted node's own parent so the tree stays connected.
func (s *Service) DeleteNode(ctx context.Context, clientID, nodeID string) (Flowchart, error) {
	return s.withClient(ctx, clientID, func(fc Flowchart) (Flowchart, error) {
		node, ok := fc.Nodes[nodeID]
		if !ok {
			return Flowchart{}, nodeNotFoundError(nodeID)
		}
		delete(fc.Nodes, nodeID)
		for id, n := range fc.Nodes {
			if n.ParentID == nodeID {
				n.ParentID = node.ParentID
				fc.Nodes[id] = n
			}
		}
		return fc, nil
	})
}

// UpdateNode applies a shallow overlay to a single existing node, merging
// any incoming scopes with the same algorithm UpsertFlowchart uses.
func (s *Service) UpdateNode(ctx context.Context, clientID string, update NodeUpsert) (Flowchart, []Warning, error) {
	fc, err := s.withClient(ctx, clientID, func(fc Flowchart) (Flowchart, error) {
		existing, ok := fc.Nodes[update.ID]
		if !ok {
			return Flowchart{}, nodeNotFoundError(update.ID)
		}
		merged, err := mergeScopes(existing.Scopes, update.Scopes)
		if err != nil {
			return Flowchart{}, fmt.Errorf("flowchart: node %q: %w", update.ID, err)
		}
		existing.Label = firstNonEmpty(update.Label, existing.Label)
		existing.Department = firstNonEmpty(update.Department, existing.Department)
		existing.Location = firstNonEmpty(update.Location, existing.Location)
		existing.ParentID = firstNonEmpty(update.ParentID, existing.ParentID)
		existing.Scopes = merged
		fc.Nodes[update.ID] = existing
		return fc, nil
	})
	if err != nil {
		return Flowchart{}, nil, err
	}
	return fc, fc.ValidateAllocation(), nil
}

// AssignHead sets a node's process owner.
func (s *Service) AssignHead(ctx context.Context, clientID, nodeID, headID string) (Flowchart, error) {
	return s.withClient(ctx, clientID, func(fc Flowchart) (Flowchart, error) {
		node, ok := fc.Nodes[nodeID]
		if !ok {
			return Flowchart{}, nodeNotFoundError(nodeID)
		}
		node.HeadID = headID
		fc.Nodes[nodeID] = node
		return fc, nil
	})
}

// SetAllocation sets a single scope's allocation percentage on a node. The
// caller is responsible for acting on the returned warnings; SetAllocation
// itself never rejects an over-allocated result.
func (s *Service) SetAllocation(ctx context.Context, clientID, nodeID, scopeUID string, pct float64) (Flowchart, []Warning, error) {
	var changed bool
	fc, err := s.withClient(ctx, clientID, func(fc Flowchart) (Flowchart, error) {
		node, ok := fc.Nodes[nodeID]
		if !ok {
			return Flowchart{}, nodeNotFoundError(nodeID)
		}
		idx, ok := node.scopeByUID(scopeUID)
		if !ok {
			return Flowchart{}, core.NewError(core.KindValidation,
				fmt.Sprintf("scope %q not found on node %q", scopeUID, nodeID), core.ErrNotFound)
		}
		changed = node.Scopes[idx].AllocationPct != pct
		node.Scopes[idx].AllocationPct = pct
		node.Scopes[idx].UpdatedAt = time.Now().UTC()
		fc.Nodes[nodeID] = node
		return fc, nil
	})
	if err != nil {
		return Flowchart{}, nil, err
	}
	if changed {
		s.publishAllocationUpdated(ctx, fc)
	}
	return fc, fc.ValidateAllocation(), nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
