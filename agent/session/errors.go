package session

import (
	"net/http"

	"github.com/BaSui01/voiceflow/types"
)

var (
	// ErrUnknownAgent the name is neither a base nor a custom agent
	ErrUnknownAgent = types.NewError(types.ErrUnknownAgent, "unknown agent").WithHTTPStatus(http.StatusNotFound)

	// ErrUnknownSession the session is not loaded in this process
	ErrUnknownSession = types.NewError(types.ErrUnknownSession, "unknown session").WithHTTPStatus(http.StatusNotFound)

	// ErrAgentExists a custom agent would shadow an existing agent
	ErrAgentExists = types.NewError(types.ErrAgentExists, "agent already exists").WithHTTPStatus(http.StatusConflict)

	// ErrCustomAgentConflict a custom agent trigger replaced an existing mapping (logged only)
	ErrCustomAgentConflict = types.NewError(types.ErrCustomAgentConflict, "handoff trigger already mapped")

	// ErrInvalidOverride the override payload is malformed
	ErrInvalidOverride = types.NewError(types.ErrInvalidRequest, "invalid override").WithHTTPStatus(http.StatusBadRequest)

	// ErrPersistence loading or saving a session snapshot failed
	ErrPersistence = types.NewError(types.ErrPersistenceFailure, "session persistence failed").WithHTTPStatus(http.StatusServiceUnavailable).WithRetryable(true)
)
