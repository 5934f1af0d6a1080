package protocol

const (
	// Pathing.
	ErrUnreachable = "E_UNREACHABLE"
	ErrBlocked     = "E_BLOCKED"

	// Claims / resources.
	ErrConflict   = "E_CONFLICT"
	ErrNoResource = "E_NO_RESOURCE"

	// Targets vanished or changed under the task.
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrCanceled      = "E_CANCELED"

	ErrBadRequest = "E_BAD_REQUEST"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrUnreachable:   {},
	ErrBlocked:       {},
	ErrConflict:      {},
	ErrNoResource:    {},
	ErrInvalidTarget: {},
	ErrCanceled:      {},
	ErrBadRequest:    {},
	ErrInternal:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
