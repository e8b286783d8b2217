package allocation

import (
	"context"
	"log/slog"

	"github.com/paulwilltell/carbonplane/internal/calc"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
)

// ServiceConfig configures the allocation service.
type ServiceConfig struct {
	Logger *slog.Logger
}

// Service is the allocation entry point the measurement and summary
// pipelines call once a scope's raw emission has been calculated.
type Service struct {
	logger *slog.Logger
}

// NewService constructs an allocation service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// AllocateForFlowchart distributes raw across every node in fc that claims
// scopeIdentifier, using each node's allocationPct for that scope.
func (s *Service) AllocateForFlowchart(ctx context.Context, fc flowchart.Flowchart, scopeIdentifier string, raw calc.Result) (Allocation, []Warning, error) {
	if err := ctx.Err(); err != nil {
		return Allocation{}, nil, err
	}

	var claims []Claim
	for nodeID, node := range fc.Nodes {
		for _, scope := range node.Scopes {
			if scope.ScopeIdentifier != scopeIdentifier {
				continue
			}
			pct := scope.AllocationPct
			if pct == 0 {
				pct = 100
			}
			claims = append(claims, Claim{NodeID: nodeID, Pct: pct})
		}
	}

	alloc, warnings := Allocate(scopeIdentifier, raw, claims)
	for _, w := range warnings {
		s.logger.Warn("allocation warning",
			"scope_identifier", w.ScopeIdentifier, "message", w.Message, "is_shared", alloc.IsShared)
	}
	return alloc, warnings, nil
}
