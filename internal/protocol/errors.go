package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Dispatch layer (never enters the commit path).
	ErrUnknownAction = "E_UNKNOWN_ACTION"
	ErrBadRequest    = "E_BAD_REQUEST"

	// Rule/reducer layer.
	ErrNoResource    = "E_NO_RESOURCE"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrConflict      = "E_CONFLICT"
	ErrRateLimit     = "E_RATE_LIMIT"

	// Turn scheduler.
	ErrTurnBusy     = "E_TURN_BUSY"
	ErrTurnCooldown = "E_TURN_COOLDOWN"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrUnknownAction:   {},
	ErrBadRequest:      {},
	ErrNoResource:      {},
	ErrNoPermission:    {},
	ErrInvalidTarget:   {},
	ErrConflict:        {},
	ErrRateLimit:       {},
	ErrTurnBusy:        {},
	ErrTurnCooldown:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
