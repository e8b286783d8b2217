package measurement

import (
	"context"

	"github.com/paulwilltell/carbonplane/internal/core"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
)

// FlowchartAdapter implements FlowchartLookup over a live *flowchart.Service,
// so the ingestion service depends only on the narrow interface it needs.
type FlowchartAdapter struct {
	Service *flowchart.Service
}

func (a FlowchartAdapter) Scope(ctx context.Context, clientID, nodeID, scopeIdentifier string) (flowchart.ScopeDescriptor, bool, error) {
	fc, err := a.Service.GetFlowchart(ctx, clientID)
	if err != nil {
		return flowchart.ScopeDescriptor{}, false, err
	}
	if !fc.Active {
		return flowchart.ScopeDescriptor{}, false, core.NewError(core.KindPrerequisite, "flowchart is not active", nil)
	}
	node, ok := fc.Nodes[nodeID]
	if !ok {
		return flowchart.ScopeDescriptor{}, false, nil
	}
	for _, s := range node.Scopes {
		if s.ScopeIdentifier == scopeIdentifier {
			return s, true, nil
		}
	}
	return flowchart.ScopeDescriptor{}, false, nil
}

func (a FlowchartAdapter) Claims(ctx context.Context, clientID, scopeIdentifier string) ([]Claim, error) {
	fc, err := a.Service.GetFlowchart(ctx, clientID)
	if err != nil {
		return nil, err
	}
	var claims []Claim
	for _, node := range fc.Nodes {
		for _, s := range node.Scopes {
			if s.ScopeIdentifier == scopeIdentifier {
				pct := s.AllocationPct
				if pct == 0 {
					pct = 100
				}
				claims = append(claims, Claim{NodeID: node.ID, Pct: pct})
			}
		}
	}
	return claims, nil
}
