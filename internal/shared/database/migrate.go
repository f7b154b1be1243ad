package database

import (
	"gvteway/internal/events"
	"gvteway/internal/memberships"
	"gvteway/internal/notifications"
	"gvteway/internal/users"
	"gvteway/internal/waitlist"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&users.User{},
		&memberships.MembershipTier{},
		&memberships.UserMembership{},
		&events.Event{},
		&events.TicketType{},
		&waitlist.WaitlistEntry{},
		&notifications.Notification{},
	)
	if err != nil {
		return err
	}

	return MigrateConstraints(db)
}
