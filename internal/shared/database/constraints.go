package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds critical database constraints for concurrency control
func MigrateConstraints(db *gorm.DB) error {
	// One active waitlist entry per (event, user, ticket type). The
	// partial index closes the concurrent-join race while still
	// allowing a user to rejoin after their entry expired or converted.
	err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uq_waitlist_active_entry
		ON event_waitlist (event_id, user_id, ticket_type_id)
		WHERE status IN ('WAITING', 'NOTIFIED');
	`).Error
	if err != nil {
		return err
	}

	// Selection order scans: waiting entries per queue by score
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_waitlist_queue_order
		ON event_waitlist (event_id, ticket_type_id, status, priority_score DESC, created_at ASC);
	`).Error
	if err != nil {
		return err
	}

	// Expiry sweeps: notified entries past their redemption window
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_waitlist_notified_expiry
		ON event_waitlist (expires_at)
		WHERE status = 'NOTIFIED';
	`).Error
	if err != nil {
		return err
	}

	return nil
}
