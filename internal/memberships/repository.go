package memberships

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository interface defines the contract for membership data access
type Repository interface {
	GetActiveTierLevel(ctx context.Context, userID uuid.UUID) (int, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new memberships repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// GetActiveTierLevel resolves the tier level of the user's ACTIVE
// membership, 0 when the user holds none
func (r *repository) GetActiveTierLevel(ctx context.Context, userID uuid.UUID) (int, error) {
	var tierLevel int
	err := r.db.WithContext(ctx).
		Model(&UserMembership{}).
		Select("membership_tiers.tier_level").
		Joins("JOIN membership_tiers ON membership_tiers.id = user_memberships.tier_id").
		Where("user_memberships.user_id = ? AND user_memberships.status = ?", userID, MembershipStatusActive).
		Order("membership_tiers.tier_level DESC").
		Limit(1).
		Scan(&tierLevel).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to look up membership tier: %w", err)
	}

	return tierLevel, nil
}
