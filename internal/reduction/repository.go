package reduction

import "context"

// Repository persists reduction entries, one append-only stream per Key,
// mirroring internal/measurement.Repository's Stream/ReplaceStream shape so
// the ledger can apply the same serialized-recompute pattern to net
// reduction running totals.
type Repository interface {
	Stream(ctx context.Context, key Key) ([]Entry, error)
	ReplaceStream(ctx context.Context, key Key, entries []Entry) error
	// AllStreamsForClient lists every (projectId, methodology) stream known
	// for a client, for the summariser to fold.
	AllStreamsForClient(clientID string) []Key
}

// Invalidator is implemented by the summary materialiser: the ledger calls
// it after a successful Record so the affected period summaries
// regenerate their reductionSummary. A consumer-defined interface, same
// rationale as measurement.Invalidator.
type Invalidator interface {
	InvalidateReduction(ctx context.Context, clientID string, at int64) error
}
