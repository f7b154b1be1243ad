package memberships

import (
	"time"

	"github.com/google/uuid"
)

// MembershipStatus represents the status of a user's membership
type MembershipStatus string

const (
	MembershipStatusActive    MembershipStatus = "ACTIVE"
	MembershipStatusPaused    MembershipStatus = "PAUSED"
	MembershipStatusCancelled MembershipStatus = "CANCELLED"
	MembershipStatusExpired   MembershipStatus = "EXPIRED"
)

// MembershipTier is a purchasable membership level. TierLevel feeds the
// waitlist priority calculator: 1 Extra, 2 Main, 3 First Class,
// 4 Business.
type MembershipTier struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name        string    `json:"name" gorm:"not null;size:100"`
	TierLevel   int       `json:"tier_level" gorm:"not null;uniqueIndex"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// UserMembership links a user to a tier for a period
type UserMembership struct {
	ID        uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID    uuid.UUID        `json:"user_id" gorm:"type:uuid;not null;index"`
	TierID    uuid.UUID        `json:"tier_id" gorm:"type:uuid;not null"`
	Status    MembershipStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	StartsAt  time.Time        `json:"starts_at" gorm:"not null"`
	EndsAt    *time.Time       `json:"ends_at,omitempty"`
	CreatedAt time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName overrides the default table name
func (UserMembership) TableName() string {
	return "user_memberships"
}
