package handoff

import (
	"net/http"

	"github.com/BaSui01/voiceflow/types"
)

var (
	// ErrUnknownHandoffTarget the token is not in the session's handoff map
	ErrUnknownHandoffTarget = types.NewError(types.ErrUnknownHandoffTarget, "unknown handoff target").WithHTTPStatus(http.StatusNotFound)

	// ErrHandoffNotAllowed the scenario has no edge for a generic handoff
	ErrHandoffNotAllowed = types.NewError(types.ErrHandoffNotAllowed, "handoff not allowed").WithHTTPStatus(http.StatusForbidden)

	// ErrInvalidScenario the scenario file is malformed
	ErrInvalidScenario = types.NewError(types.ErrInvalidRequest, "invalid handoff scenario")
)
