package flowchart

import (
	"fmt"

	"github.com/paulwilltell/carbonplane/internal/core"
)

// duplicateScopeIdentifierError classifies a merge conflict as a
// validation failure: it fails the single request, never poisons the
// flowchart.
func duplicateScopeIdentifierError(identifier string) error {
	return core.NewError(core.KindValidation,
		fmt.Sprintf("duplicate scopeIdentifier %q within node", identifier),
		core.ErrDuplicateScope)
}

func nodeNotFoundError(nodeID string) error {
	return core.NewError(core.KindValidation,
		fmt.Sprintf("node %q not found in flowchart", nodeID),
		core.ErrNotFound)
}

func flowchartInactiveError(clientID string) error {
	return core.NewError(core.KindPrerequisite,
		fmt.Sprintf("flowchart for client %q is soft-deleted", clientID),
		core.ErrNotFound)
}

func activeFlowchartError(clientID string) error {
	return core.NewError(core.KindConflict,
		fmt.Sprintf("flowchart for client %q is already active", clientID),
		core.ErrActiveFlowchart)
}
