package measurement

import (
	"context"

	"github.com/paulwilltell/carbonplane/internal/flowchart"
)

// Repository persists measurement entries. Implementations back this with
// core.Storage, compound-indexed on (clientId, nodeId, scopeIdentifier,
// timestamp) as the storage collaborator contract requires.
type Repository interface {
	// Stream returns every entry for key in ascending timestamp order.
	Stream(ctx context.Context, key Key) ([]Entry, error)
	// ReplaceStream atomically rewrites key's entire entry set. Ingestion
	// uses this to apply the out-of-order recomputation as a single write rather than N individual updates.
	ReplaceStream(ctx context.Context, key Key, entries []Entry) error
	// DeleteRange removes every non-summary entry for key whose timestamp
	// falls within [from, to); used by the monthly archival job.
	DeleteRange(ctx context.Context, key Key, from, to int64) error
}

// FlowchartLookup is the narrow view of the flowchart registry the
// ingestion pipeline needs: resolving a scope descriptor and its process
// claims. Defined here (consumer side) so measurement does not import the
// full flowchart.Service surface.
type FlowchartLookup interface {
	Scope(ctx context.Context, clientID, nodeID, scopeIdentifier string) (flowchart.ScopeDescriptor, bool, error)
	// Claims returns every (nodeID, allocationPct) pair across the active
	// flowchart that references scopeIdentifier, for the allocation engine.
	Claims(ctx context.Context, clientID, scopeIdentifier string) ([]Claim, error)
}

// Claim mirrors allocation.Claim without importing the allocation package,
// keeping measurement's dependency surface to flowchart lookups only.
type Claim struct {
	NodeID string
	Pct    float64
}

// Invalidator is implemented by the summary materialiser: ingestion
// calls it after a successful calculation so the affected rollups
// regenerate. A consumer-defined interface avoids a measurement->summary
// import cycle (summary already depends on measurement to read entries).
type Invalidator interface {
	Invalidate(ctx context.Context, clientID string, nodeID, scopeIdentifier string, at int64) error
}
