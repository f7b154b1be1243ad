package waitlist

import (
	"time"

	"github.com/google/uuid"
)

// WaitlistStatus represents the lifecycle state of a waitlist entry
type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "WAITING"
	WaitlistStatusNotified  WaitlistStatus = "NOTIFIED"
	WaitlistStatusPurchased WaitlistStatus = "PURCHASED"
	WaitlistStatusExpired   WaitlistStatus = "EXPIRED"
)

// WaitlistEntry represents one user's standing request for one
// (event, ticket type) pair. The (event_id, user_id, ticket_type_id)
// triple is unique among WAITING/NOTIFIED entries; the partial unique
// index in shared/database/constraints.go enforces this at the storage
// layer so concurrent joins cannot both succeed.
type WaitlistEntry struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()" db:"id"`
	EventID      uuid.UUID `json:"event_id" gorm:"type:uuid;not null;index" db:"event_id"`
	UserID       uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index" db:"user_id"`
	TicketTypeID uuid.UUID `json:"ticket_type_id" gorm:"type:uuid;not null;index" db:"ticket_type_id"`

	// MembershipTier is a snapshot of the user's tier at join time
	// (0 = no membership). Immutable except through priority reorder.
	MembershipTier int `json:"membership_tier" gorm:"not null;default:0" db:"membership_tier"`

	// PriorityScore is a derived 0-100 ranking; see priority.go.
	PriorityScore int `json:"priority_score" gorm:"not null;index" db:"priority_score"`

	Status WaitlistStatus `json:"status" gorm:"type:varchar(20);not null;index" db:"status"`

	// NotifiedAt and ExpiresAt are both null or both set, stamped
	// together on the WAITING -> NOTIFIED transition.
	NotifiedAt  *time.Time `json:"notified_at,omitempty" db:"notified_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" gorm:"index" db:"expires_at"`
	PurchasedAt *time.Time `json:"purchased_at,omitempty" db:"purchased_at"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime" db:"updated_at"`
}

// TableName overrides the default table name
func (WaitlistEntry) TableName() string {
	return "event_waitlist"
}

// IsValid checks if the waitlist status is valid
func (ws WaitlistStatus) IsValid() bool {
	switch ws {
	case WaitlistStatusWaiting, WaitlistStatusNotified, WaitlistStatusPurchased, WaitlistStatusExpired:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if the status can transition to the target status
func (ws WaitlistStatus) CanTransitionTo(target WaitlistStatus) bool {
	validTransitions := map[WaitlistStatus][]WaitlistStatus{
		WaitlistStatusWaiting:   {WaitlistStatusNotified},
		WaitlistStatusNotified:  {WaitlistStatusPurchased, WaitlistStatusExpired},
		WaitlistStatusPurchased: {}, // Terminal state
		WaitlistStatusExpired:   {}, // Terminal state
	}

	for _, allowed := range validTransitions[ws] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsWaiting returns true if the entry is still queued
func (we *WaitlistEntry) IsWaiting() bool {
	return we.Status == WaitlistStatusWaiting
}

// IsNotified returns true if the user has been notified of availability
func (we *WaitlistEntry) IsNotified() bool {
	return we.Status == WaitlistStatusNotified
}

// RedemptionExpired returns true if the entry's redemption window has passed
func (we *WaitlistEntry) RedemptionExpired(now time.Time) bool {
	return we.Status == WaitlistStatusNotified && we.ExpiresAt != nil && now.After(*we.ExpiresAt)
}

// Configuration Constants

const (
	// NotifyWindowDuration is the redemption window a notified user has
	// to complete a purchase before the entry expires
	NotifyWindowDuration = 24 * time.Hour

	// ExpiredRetention is how long EXPIRED entries are kept before the
	// cleanup routine hard-deletes them (keyed on created_at)
	ExpiredRetention = 30 * 24 * time.Hour

	// PurchasedRetention is how long PURCHASED entries are kept before
	// cleanup (keyed on purchased_at)
	PurchasedRetention = 7 * 24 * time.Hour

	// SweepBatchSize is the number of expired notifications processed
	// per batch by the expiry sweep
	SweepBatchSize = 100

	// MaxBatchJoinRequests caps a single administrative bulk join
	MaxBatchJoinRequests = 100

	// maxCASRetries bounds retries after a failed compare-and-swap
	maxCASRetries = 3
)
