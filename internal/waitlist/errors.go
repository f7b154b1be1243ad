package waitlist

import "errors"

// Domain errors returned to callers. Validation failures are never
// retried; ErrConcurrentModification is safe to retry a bounded number
// of times; ErrStorageUnavailable signals a transient storage fault.
var (
	ErrAlreadyOnWaitlist      = errors.New("already on waitlist for this ticket type")
	ErrEntryNotFound          = errors.New("waitlist entry not found")
	ErrForbidden              = errors.New("waitlist entry belongs to another user")
	ErrInvalidState           = errors.New("waitlist entry is not in the required state")
	ErrConcurrentModification = errors.New("waitlist entry was modified concurrently")
	ErrStorageUnavailable     = errors.New("waitlist storage unavailable")
)

// IsDomainError reports whether err is a caller-facing domain violation
// rather than a transient fault.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrAlreadyOnWaitlist) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidState)
}
