package flowchart

// IncomingScope is a scope as presented in an upsert/update payload.
// PreviousIdentifier is an optional caller-supplied hint used by the third
// resolution tier of the merge algorithm (a rename the caller already knows
// about, e.g. from an upstream rename event it is replaying).
type IncomingScope struct {
	ScopeDescriptor
	PreviousIdentifier string
}

// mergeScopes resolves each incoming scope against the node's existing
// scopes and produces the node's new scope list.
//
// Resolution order for each incoming scope, first match wins:
//  1. scopeUid match
//  2. current scopeIdentifier match
//  3. caller-supplied previousScopeIdentifier match
//  4. heuristic match on identical (scopeType, categoryName, activity)
//     among existing scopes not yet consumed by an earlier incoming scope
//
// A match is overlaid shallowly onto the existing scope (the incoming
// fields win, zero-valued incoming fields keep the existing value) so a
// partial update payload doesn't blow away untouched fields. Scopes with no
// existing counterpart are inserted as new. Existing scopes untouched by
// any incoming scope are carried forward unchanged.
func mergeScopes(existing []ScopeDescriptor, incoming []IncomingScope) ([]ScopeDescriptor, error) {
	consumed := make([]bool, len(existing))
	merged := make([]ScopeDescriptor, 0, len(existing)+len(incoming))

	for _, in := range incoming {
		idx := resolveExisting(existing, consumed, in)
		if idx >= 0 {
			consumed[idx] = true
			merged = append(merged, overlay(existing[idx], in.ScopeDescriptor))
			continue
		}
		merged = append(merged, withDefaultAllocation(in.ScopeDescriptor))
	}

	for i, was := range consumed {
		if !was {
			merged = append(merged, existing[i])
		}
	}

	if dup := firstDuplicateIdentifier(merged); dup != "" {
		return nil, duplicateScopeIdentifierError(dup)
	}

	return merged, nil
}

func resolveExisting(existing []ScopeDescriptor, consumed []bool, in IncomingScope) int {
	if in.ScopeUID != "" {
		for i, e := range existing {
			if !consumed[i] && e.ScopeUID == in.ScopeUID {
				return i
			}
		}
	}
	if in.ScopeIdentifier != "" {
		for i, e := range existing {
			if !consumed[i] && e.ScopeIdentifier == in.ScopeIdentifier {
				return i
			}
		}
	}
	if in.PreviousIdentifier != "" {
		for i, e := range existing {
			if !consumed[i] && e.ScopeIdentifier == in.PreviousIdentifier {
				return i
			}
		}
	}
	for i, e := range existing {
		if consumed[i] {
			continue
		}
		if e.ScopeType == in.ScopeType && e.CategoryName == in.CategoryName && e.Activity == in.Activity {
			return i
		}
	}
	return -1
}

// overlay applies non-zero-valued fields from in onto base, keeping base's
// values wherever in leaves a field at its zero value.
func overlay(base, in ScopeDescriptor) ScopeDescriptor {
	out := base

	if in.ScopeUID != "" {
		out.ScopeUID = in.ScopeUID
	}
	if in.ScopeIdentifier != "" {
		out.ScopeIdentifier = in.ScopeIdentifier
	}
	if in.ScopeType != "" {
		out.ScopeType = in.ScopeType
	}
	if in.CategoryName != "" {
		out.CategoryName = in.CategoryName
	}
	if in.Activity != "" {
		out.Activity = in.Activity
	}
	if in.CalculationModel != "" {
		out.CalculationModel = in.CalculationModel
	}
	if in.InputType != "" {
		out.InputType = in.InputType
	}
	if in.APIEndpoint != "" {
		out.APIEndpoint = in.APIEndpoint
	}
	if in.IOTDeviceID != "" {
		out.IOTDeviceID = in.IOTDeviceID
	}
	if in.FactorSource != "" {
		out.FactorSource = in.FactorSource
	}
	if in.Fuel != "" {
		out.Fuel = in.Fuel
	}
	if in.Region != "" {
		out.Region = in.Region
	}
	if in.Unit != "" {
		out.Unit = in.Unit
	}
	if !in.CustomFactor.IsZero() {
		out.CustomFactor = in.CustomFactor
	}
	if in.UAD != 0 {
		out.UAD = in.UAD
	}
	if in.UEF != 0 {
		out.UEF = in.UEF
	}
	if in.AllocationPct != 0 {
		out.AllocationPct = in.AllocationPct
	}
	if in.CollectionFrequency != 0 {
		out.CollectionFrequency = in.CollectionFrequency
	}
	if !in.UpdatedAt.IsZero() {
		out.UpdatedAt = in.UpdatedAt
	}

	return out
}

func withDefaultAllocation(s ScopeDescriptor) ScopeDescriptor {
	if s.AllocationPct == 0 {
		s.AllocationPct = 100
	}
	return s
}

func firstDuplicateIdentifier(scopes []ScopeDescriptor) string {
	seen := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		if s.ScopeIdentifier == "" {
			continue
		}
		if seen[s.ScopeIdentifier] {
			return s.ScopeIdentifier
		}
		seen[s.ScopeIdentifier] = true
	}
	return ""
}
