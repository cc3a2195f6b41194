package definition

import "github.com/BaSui01/voiceflow/types"

var (
	// ErrDuplicateAgent two definitions share a name (fatal at start-up)
	ErrDuplicateAgent = types.NewError(types.ErrDuplicateAgent, "duplicate agent definition")

	// ErrInvalidDefinition a definition violates a structural constraint
	ErrInvalidDefinition = types.NewError(types.ErrInvalidRequest, "invalid agent definition")
)
