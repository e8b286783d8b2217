package summary

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulwilltell/carbonplane/internal/flowchart"
)

// scopeMeta is the per-scope metadata the materialiser folds entries
// against: which node owns it, its category/activity for the breakdown
// axes, and the allocation claims across every node that references it.
type scopeMeta struct {
	CategoryName string
	Activity     string
	InputType    string
	FactorSource string
	Claims       []nodeClaim // every node referencing this scopeIdentifier, with its share
}

type nodeClaim struct {
	NodeID   string
	Pct      float64
	IsShared bool // true when more than one node claims this scopeIdentifier
}

// nodeMeta is a node's descriptive axes.
type nodeMeta struct {
	Label      string
	Department string
	Location   string
}

// NodeIndex is the flowchart reshaped for the materialiser's fold: scope lookup by
// identifier, node lookup by ID, built once per flowchart version and
// reused until the version changes.
type NodeIndex struct {
	Version int
	Scopes  map[string]scopeMeta
	Nodes   map[string]nodeMeta
}

func buildIndex(fc flowchart.Flowchart) NodeIndex {
	idx := NodeIndex{
		Version: fc.Version,
		Scopes:  make(map[string]scopeMeta),
		Nodes:   make(map[string]nodeMeta),
	}

	claimsByScope := make(map[string][]nodeClaim)
	for nodeID, node := range fc.Nodes {
		idx.Nodes[nodeID] = nodeMeta{Label: node.Label, Department: node.Department, Location: node.Location}
		for _, s := range node.Scopes {
			pct := s.AllocationPct
			if pct == 0 {
				pct = 100
			}
			claimsByScope[s.ScopeIdentifier] = append(claimsByScope[s.ScopeIdentifier], nodeClaim{NodeID: nodeID, Pct: pct})
		}
	}
	for scopeID, claims := range claimsByScope {
		shared := len(claims) > 1
		for i := range claims {
			claims[i].IsShared = shared
		}
		claimsByScope[scopeID] = claims
	}

	for _, node := range fc.Nodes {
		for _, s := range node.Scopes {
			idx.Scopes[s.ScopeIdentifier] = scopeMeta{
				CategoryName: s.CategoryName,
				Activity:     s.Activity,
				InputType:    string(s.InputType),
				FactorSource: string(s.FactorSource),
				Claims:       claimsByScope[s.ScopeIdentifier],
			}
		}
	}
	return idx
}

// nodeIndexCache is the materialiser's view of its node-metadata cache:
// rebuild-on-version-change lookup keyed by clientID. The in-process cache
// below is the default, single-replica implementation; see
// internal/summary/redis_cache.go (build tag summary_redis) for the
// distributed one multi-process deployments use instead.
type nodeIndexCache interface {
	get(ctx context.Context, clientID string) (NodeIndex, error)
}

// cache is a per-client cache of the last-built NodeIndex, invalidated by
// comparing the flowchart's Version rather than by explicit eviction.
type cache struct {
	lookup FlowchartLookup

	mu      sync.Mutex
	indexes map[string]NodeIndex
}

var _ nodeIndexCache = (*cache)(nil)

func newCache(lookup FlowchartLookup) *cache {
	return &cache{lookup: lookup, indexes: make(map[string]NodeIndex)}
}

func (c *cache) get(ctx context.Context, clientID string) (NodeIndex, error) {
	fc, err := c.lookup.GetFlowchart(ctx, clientID)
	if err != nil {
		return NodeIndex{}, fmt.Errorf("summary: load flowchart %q: %w", clientID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.indexes[clientID]; ok && idx.Version == fc.Version {
		return idx, nil
	}
	idx := buildIndex(fc)
	c.indexes[clientID] = idx
	return idx, nil
}
