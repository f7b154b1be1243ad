package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository interface defines the storage contract the engine requires.
// Correctness under concurrency rests on this layer's atomic primitives
// (unique index on insert, compare-and-swap on status), not on in-memory
// locks: multiple engine instances may run against the same database.
type Repository interface {
	// Entry access
	InsertEntry(ctx context.Context, entry *WaitlistEntry) error
	FindActiveEntry(ctx context.Context, eventID, userID, ticketTypeID uuid.UUID) (*WaitlistEntry, error)
	FindEntry(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error)
	ListByStatus(ctx context.Context, eventID, ticketTypeID uuid.UUID, status WaitlistStatus, limit int) ([]WaitlistEntry, error)
	CountByStatus(ctx context.Context, eventID, ticketTypeID uuid.UUID, status WaitlistStatus) (int64, error)
	CountWaitingWithHigherPriority(ctx context.Context, eventID, ticketTypeID uuid.UUID, score int) (int64, error)

	// Mutations
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to WaitlistStatus, fields map[string]interface{}) error
	UpdatePriorityScore(ctx context.Context, id uuid.UUID, score int) error
	DeleteEntry(ctx context.Context, id uuid.UUID) error

	// Batch queries
	ListExpiredNotified(ctx context.Context, now time.Time, limit int) ([]WaitlistEntry, error)
	DeleteExpiredBefore(ctx context.Context, eventID uuid.UUID, cutoff time.Time) (int64, error)
	DeletePurchasedBefore(ctx context.Context, eventID uuid.UUID, cutoff time.Time) (int64, error)
	EventsDueForCleanup(ctx context.Context, expiredCutoff, purchasedCutoff time.Time) ([]uuid.UUID, error)

	// Analytics
	AggregateStats(ctx context.Context, eventID uuid.UUID) (map[WaitlistStatus]int, map[int]int, error)
	ListNotifiedHistory(ctx context.Context, eventID uuid.UUID) ([]WaitlistEntry, error)
}

// repository implements the Repository interface on GORM/PostgreSQL
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new waitlist repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// storageErr wraps non-domain database failures so callers can
// distinguish transient storage faults from domain violations.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}

// InsertEntry persists a new entry. The partial unique index on
// (event_id, user_id, ticket_type_id) for active entries turns a
// concurrent duplicate join into ErrAlreadyOnWaitlist here, closing the
// check-then-insert race window.
func (r *repository) InsertEntry(ctx context.Context, entry *WaitlistEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	err := r.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyOnWaitlist
		}
		return storageErr("insert entry", err)
	}

	return nil
}

// FindActiveEntry returns the WAITING or NOTIFIED entry for the triple,
// or nil when the user has no active entry.
func (r *repository) FindActiveEntry(ctx context.Context, eventID, userID, ticketTypeID uuid.UUID) (*WaitlistEntry, error) {
	var entry WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ? AND ticket_type_id = ? AND status IN ?",
			eventID, userID, ticketTypeID,
			[]WaitlistStatus{WaitlistStatusWaiting, WaitlistStatusNotified}).
		First(&entry).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("find active entry", err)
	}

	return &entry, nil
}

// FindEntry returns the entry with the given id, or nil when absent
func (r *repository) FindEntry(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	var entry WaitlistEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("find entry", err)
	}

	return &entry, nil
}

// ListByStatus lists entries in the canonical selection order:
// priority_score descending, created_at ascending (earlier joiners win
// ties). limit <= 0 means no limit.
func (r *repository) ListByStatus(ctx context.Context, eventID, ticketTypeID uuid.UUID, status WaitlistStatus, limit int) ([]WaitlistEntry, error) {
	var entries []WaitlistEntry
	query := r.db.WithContext(ctx).
		Where("event_id = ? AND ticket_type_id = ? AND status = ?", eventID, ticketTypeID, status).
		Order("priority_score DESC, created_at ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&entries).Error; err != nil {
		return nil, storageErr("list by status", err)
	}

	return entries, nil
}

// CountByStatus counts entries for the (event, ticket type) pair in the given status
func (r *repository) CountByStatus(ctx context.Context, eventID, ticketTypeID uuid.UUID, status WaitlistStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Where("event_id = ? AND ticket_type_id = ? AND status = ?", eventID, ticketTypeID, status).
		Count(&count).Error

	if err != nil {
		return 0, storageErr("count by status", err)
	}

	return count, nil
}

// CountWaitingWithHigherPriority counts WAITING entries whose score is
// strictly greater than the given score. Position is always computed
// live from this count rather than a stored rank, so it cannot drift.
func (r *repository) CountWaitingWithHigherPriority(ctx context.Context, eventID, ticketTypeID uuid.UUID, score int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Where("event_id = ? AND ticket_type_id = ? AND status = ? AND priority_score > ?",
			eventID, ticketTypeID, WaitlistStatusWaiting, score).
		Count(&count).Error

	if err != nil {
		return 0, storageErr("count higher priority", err)
	}

	return count, nil
}

// UpdateStatus transitions an entry from one status to another as a
// compare-and-swap: the update only applies while the entry is still in
// the expected status. Zero rows affected means a concurrent writer got
// there first (or the entry was deleted) and the caller must decide
// whether to retry or skip.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to WaitlistStatus, fields map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)

	if result.Error != nil {
		return storageErr("update status", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentModification
	}

	return nil
}

// UpdatePriorityScore persists a recomputed priority score
func (r *repository) UpdatePriorityScore(ctx context.Context, id uuid.UUID, score int) error {
	err := r.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"priority_score": score,
			"updated_at":     time.Now().UTC(),
		}).Error

	if err != nil {
		return storageErr("update priority score", err)
	}

	return nil
}

// DeleteEntry hard-deletes a waitlist entry
func (r *repository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&WaitlistEntry{}).Error

	if err != nil {
		return storageErr("delete entry", err)
	}

	return nil
}

// ListExpiredNotified lists NOTIFIED entries whose redemption window
// has already passed
func (r *repository) ListExpiredNotified(ctx context.Context, now time.Time, limit int) ([]WaitlistEntry, error) {
	var entries []WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", WaitlistStatusNotified, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&entries).Error

	if err != nil {
		return nil, storageErr("list expired notified", err)
	}

	return entries, nil
}

// DeleteExpiredBefore removes EXPIRED entries created before the cutoff
func (r *repository) DeleteExpiredBefore(ctx context.Context, eventID uuid.UUID, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("event_id = ? AND status = ? AND created_at < ?", eventID, WaitlistStatusExpired, cutoff).
		Delete(&WaitlistEntry{})

	if result.Error != nil {
		return 0, storageErr("delete expired", result.Error)
	}

	return result.RowsAffected, nil
}

// DeletePurchasedBefore removes PURCHASED entries whose purchase
// happened before the cutoff
func (r *repository) DeletePurchasedBefore(ctx context.Context, eventID uuid.UUID, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("event_id = ? AND status = ? AND purchased_at IS NOT NULL AND purchased_at < ?",
			eventID, WaitlistStatusPurchased, cutoff).
		Delete(&WaitlistEntry{})

	if result.Error != nil {
		return 0, storageErr("delete purchased", result.Error)
	}

	return result.RowsAffected, nil
}

// EventsDueForCleanup returns the distinct events holding entries past
// their retention window, so the scheduled job knows what to clean
func (r *repository) EventsDueForCleanup(ctx context.Context, expiredCutoff, purchasedCutoff time.Time) ([]uuid.UUID, error) {
	var eventIDs []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Distinct("event_id").
		Where("(status = ? AND created_at < ?) OR (status = ? AND purchased_at IS NOT NULL AND purchased_at < ?)",
			WaitlistStatusExpired, expiredCutoff, WaitlistStatusPurchased, purchasedCutoff).
		Pluck("event_id", &eventIDs).Error

	if err != nil {
		return nil, storageErr("events due for cleanup", err)
	}

	return eventIDs, nil
}

// AggregateStats returns per-status and per-tier entry counts for an
// event, across every ticket type and every lifecycle state
func (r *repository) AggregateStats(ctx context.Context, eventID uuid.UUID) (map[WaitlistStatus]int, map[int]int, error) {
	type statusCount struct {
		Status WaitlistStatus
		Count  int
	}
	type tierCount struct {
		MembershipTier int
		Count          int
	}

	var statusCounts []statusCount
	err := r.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Select("status, COUNT(*) as count").
		Where("event_id = ?", eventID).
		Group("status").
		Scan(&statusCounts).Error
	if err != nil {
		return nil, nil, storageErr("aggregate by status", err)
	}

	var tierCounts []tierCount
	err = r.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Select("membership_tier, COUNT(*) as count").
		Where("event_id = ?", eventID).
		Group("membership_tier").
		Scan(&tierCounts).Error
	if err != nil {
		return nil, nil, storageErr("aggregate by tier", err)
	}

	byStatus := make(map[WaitlistStatus]int, len(statusCounts))
	for _, sc := range statusCounts {
		byStatus[sc.Status] = sc.Count
	}
	byTier := make(map[int]int, len(tierCounts))
	for _, tc := range tierCounts {
		byTier[tc.MembershipTier] = tc.Count
	}

	return byStatus, byTier, nil
}

// ListNotifiedHistory lists every entry for the event that has ever
// been notified (including those that went on to purchase or expire),
// for conversion analytics
func (r *repository) ListNotifiedHistory(ctx context.Context, eventID uuid.UUID) ([]WaitlistEntry, error) {
	var entries []WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND notified_at IS NOT NULL", eventID).
		Find(&entries).Error

	if err != nil {
		return nil, storageErr("list notified history", err)
	}

	return entries, nil
}
