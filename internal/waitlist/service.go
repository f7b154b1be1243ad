package waitlist

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"gvteway/internal/clock"
	"gvteway/internal/shared/constants"
	"gvteway/pkg/cache"
	"gvteway/pkg/logger"

	"github.com/google/uuid"
)

// NotificationGateway delivers "tickets available" messages. Delivery is
// deliberately decoupled from the state transition: the transition is
// committed first and delivery is best effort, with the redemption
// window acting as the safety net for missed messages.
type NotificationGateway interface {
	SendTicketsAvailable(ctx context.Context, notification TicketsAvailableNotification) error
}

// TicketsAvailableNotification carries everything the gateway needs to
// reach a notified user
type TicketsAvailableNotification struct {
	EntryID        uuid.UUID
	UserID         uuid.UUID
	EventID        uuid.UUID
	TicketTypeID   uuid.UUID
	EventTitle     string
	TicketTypeName string
	ExpiresAt      time.Time
}

// TierLookup resolves a user's active membership tier at join time
// (0 = no membership)
type TierLookup interface {
	GetActiveTier(ctx context.Context, userID uuid.UUID) (int, error)
}

// EventCatalog resolves display names for notifications
type EventCatalog interface {
	ResolveTitles(ctx context.Context, eventID, ticketTypeID uuid.UUID) (eventTitle, ticketTypeName string, err error)
}

// Service interface defines the contract for waitlist business operations
type Service interface {
	// Core queue operations
	JoinWaitlist(ctx context.Context, eventID, userID, ticketTypeID uuid.UUID) (*JoinWaitlistResponse, error)
	LeaveWaitlist(ctx context.Context, entryID, userID uuid.UUID) error
	GetPosition(ctx context.Context, userID, eventID, ticketTypeID uuid.UUID) (*WaitlistPositionResponse, error)

	// Inventory-triggered operations
	NotifyWaitlist(ctx context.Context, eventID, ticketTypeID uuid.UUID, availableCount int) (*NotifyWaitlistResult, error)
	MarkPurchased(ctx context.Context, userID, eventID, ticketTypeID uuid.UUID) error

	// Scheduled operations (idempotent, safe to re-run)
	ExpireNotifications(ctx context.Context) (int, error)
	CleanupWaitlist(ctx context.Context, eventID uuid.UUID) (*CleanupResult, error)

	// Administrative operations
	ReorderPriorities(ctx context.Context, eventID, ticketTypeID uuid.UUID) (int, error)
	BatchJoin(ctx context.Context, requests []BatchJoinItem) (*BatchJoinResult, error)

	// Analytics
	GetStats(ctx context.Context, eventID uuid.UUID) (*WaitlistStatsResponse, error)
	GetConversionRate(ctx context.Context, eventID uuid.UUID) (*ConversionRateResponse, error)
}

// ServiceConfig contains configuration for the waitlist service
type ServiceConfig struct {
	NotifyWindow       time.Duration
	ExpiredRetention   time.Duration
	PurchasedRetention time.Duration
	SweepBatchSize     int
	StatsCacheTTL      time.Duration
}

// DefaultServiceConfig returns default service configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		NotifyWindow:       NotifyWindowDuration,
		ExpiredRetention:   ExpiredRetention,
		PurchasedRetention: PurchasedRetention,
		SweepBatchSize:     SweepBatchSize,
		StatsCacheTTL:      constants.TTL_WAITLIST_STATS,
	}
}

// service implements the Service interface
type service struct {
	repo         Repository
	gateway      NotificationGateway
	tiers        TierLookup
	catalog      EventCatalog
	clock        clock.Clock
	cacheService cache.Service
	config       *ServiceConfig
	log          *logger.Logger
}

// NewService creates a new waitlist service. cacheService may be nil;
// stats and conversion queries then always hit storage.
func NewService(repo Repository, gateway NotificationGateway, tiers TierLookup, catalog EventCatalog, clk clock.Clock, cacheService cache.Service, config *ServiceConfig) Service {
	if config == nil {
		config = DefaultServiceConfig()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}

	return &service{
		repo:         repo,
		gateway:      gateway,
		tiers:        tiers,
		catalog:      catalog,
		clock:        clk,
		cacheService: cacheService,
		config:       config,
		log:          logger.GetDefault(),
	}
}

// JoinWaitlist queues a user for a sold-out ticket type. The storage
// layer's unique index rejects a second active entry for the same
// (event, user, ticket type) triple, so two concurrent joins cannot
// both succeed.
func (s *service) JoinWaitlist(ctx context.Context, eventID, userID, ticketTypeID uuid.UUID) (*JoinWaitlistResponse, error) {
	now := s.clock.Now()

	tier, err := s.tiers.GetActiveTier(ctx, userID)
	if err != nil {
		// A tier lookup failure must not block joining; the user just
		// queues without a membership boost.
		s.log.Warn("tier lookup failed, joining with tier 0",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		tier = 0
	}

	score := CalculatePriorityScore(tier, now, now)

	entry := &WaitlistEntry{
		EventID:        eventID,
		UserID:         userID,
		TicketTypeID:   ticketTypeID,
		MembershipTier: tier,
		PriorityScore:  score,
		Status:         WaitlistStatusWaiting,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}

	higher, err := s.repo.CountWaitingWithHigherPriority(ctx, eventID, ticketTypeID, score)
	if err != nil {
		return nil, err
	}

	s.invalidateAnalytics(ctx, eventID)

	s.log.LogWaitlistJoined(ctx, entry.ID.String(), userID.String(), eventID.String(), score)

	return &JoinWaitlistResponse{
		EntryID:       entry.ID,
		Position:      int(higher) + 1,
		PriorityScore: score,
	}, nil
}

// LeaveWaitlist removes the caller's own WAITING entry. Leaving is a
// hard delete, not a lifecycle state.
func (s *service) LeaveWaitlist(ctx context.Context, entryID, userID uuid.UUID) error {
	entry, err := s.repo.FindEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrEntryNotFound
	}
	if entry.UserID != userID {
		return ErrForbidden
	}
	if entry.Status != WaitlistStatusWaiting {
		return ErrInvalidState
	}

	if err := s.repo.DeleteEntry(ctx, entryID); err != nil {
		return err
	}

	s.invalidateAnalytics(ctx, entry.EventID)

	s.log.Info("user left waitlist",
		slog.String("entry_id", entryID.String()),
		slog.String("user_id", userID.String()),
		slog.String("event_id", entry.EventID.String()),
	)

	return nil
}

// GetPosition returns the user's 1-based position among WAITING entries
// and the total queue length, or nil when the user has no WAITING entry
// for the triple.
func (s *service) GetPosition(ctx context.Context, userID, eventID, ticketTypeID uuid.UUID) (*WaitlistPositionResponse, error) {
	entry, err := s.repo.FindActiveEntry(ctx, eventID, userID, ticketTypeID)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Status != WaitlistStatusWaiting {
		return nil, nil
	}

	higher, err := s.repo.CountWaitingWithHigherPriority(ctx, eventID, ticketTypeID, entry.PriorityScore)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.CountByStatus(ctx, eventID, ticketTypeID, WaitlistStatusWaiting)
	if err != nil {
		return nil, err
	}

	return &WaitlistPositionResponse{
		Position: int(higher) + 1,
		Total:    int(total),
	}, nil
}

// NotifyWaitlist selects up to availableCount WAITING entries in
// canonical order (priority desc, created_at asc), transitions each to
// NOTIFIED with a redemption window, then best-effort-delivers the
// notification. The returned Notified count reflects successful state
// transitions; delivery failures are reported separately and never
// undo a transition.
func (s *service) NotifyWaitlist(ctx context.Context, eventID, ticketTypeID uuid.UUID, availableCount int) (*NotifyWaitlistResult, error) {
	result := &NotifyWaitlistResult{}
	if availableCount <= 0 {
		return result, nil
	}

	entries, err := s.repo.ListByStatus(ctx, eventID, ticketTypeID, WaitlistStatusWaiting, availableCount)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return result, nil
	}

	eventTitle, ticketTypeName, err := s.catalog.ResolveTitles(ctx, eventID, ticketTypeID)
	if err != nil {
		// Display names are cosmetic; deliver with placeholders rather
		// than leave inventory unoffered.
		s.log.Warn("could not resolve event titles for notification",
			slog.String("event_id", eventID.String()),
			slog.String("error", err.Error()),
		)
		eventTitle, ticketTypeName = "your event", "your ticket"
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.config.NotifyWindow)

	for _, entry := range entries {
		err := s.repo.UpdateStatus(ctx, entry.ID, WaitlistStatusWaiting, WaitlistStatusNotified, map[string]interface{}{
			"notified_at": now,
			"expires_at":  expiresAt,
		})
		if errors.Is(err, ErrConcurrentModification) {
			// Entry left or was otherwise mutated between selection and
			// transition; skip it, never double-count.
			result.Skipped++
			continue
		}
		if err != nil {
			s.log.ErrorWithContext(ctx, "failed to transition waitlist entry", err, map[string]interface{}{
				"entry_id": entry.ID.String(),
			})
			result.Skipped++
			continue
		}

		result.Notified++

		if s.gateway == nil {
			// Deployments without a notification pipeline still reserve
			// inventory; the expiry sweep reclaims it if unredeemed.
			result.DeliveryFailures = append(result.DeliveryFailures, DeliveryFailure{
				EntryID: entry.ID,
				UserID:  entry.UserID,
				Error:   "notification gateway not configured",
			})
			continue
		}

		err = s.gateway.SendTicketsAvailable(ctx, TicketsAvailableNotification{
			EntryID:        entry.ID,
			UserID:         entry.UserID,
			EventID:        eventID,
			TicketTypeID:   ticketTypeID,
			EventTitle:     eventTitle,
			TicketTypeName: ticketTypeName,
			ExpiresAt:      expiresAt,
		})
		if err != nil {
			// The entry stays NOTIFIED with no message out; the expiry
			// sweep reclaims the inventory after the window lapses.
			s.log.LogNotificationGap(ctx, entry.ID.String(), entry.UserID.String(), err)
			result.DeliveryFailures = append(result.DeliveryFailures, DeliveryFailure{
				EntryID: entry.ID,
				UserID:  entry.UserID,
				Error:   err.Error(),
			})
			continue
		}

		result.Delivered++
	}

	if result.Notified > 0 {
		s.invalidateAnalytics(ctx, eventID)
	}

	s.log.LogWaitlistNotified(ctx, eventID.String(), ticketTypeID.String(), result.Notified, len(result.DeliveryFailures))

	return result, nil
}

// MarkPurchased transitions the caller's NOTIFIED entry to PURCHASED.
// Calling it for an entry in any other state (or no entry at all) is a
// deliberate no-op, mirroring idempotent-update semantics.
func (s *service) MarkPurchased(ctx context.Context, userID, eventID, ticketTypeID uuid.UUID) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		entry, err := s.repo.FindActiveEntry(ctx, eventID, userID, ticketTypeID)
		if err != nil {
			return err
		}
		if entry == nil || entry.Status != WaitlistStatusNotified {
			s.log.Debug("mark purchased skipped, no notified entry",
				slog.String("user_id", userID.String()),
				slog.String("event_id", eventID.String()),
			)
			return nil
		}

		err = s.repo.UpdateStatus(ctx, entry.ID, WaitlistStatusNotified, WaitlistStatusPurchased, map[string]interface{}{
			"purchased_at": s.clock.Now(),
		})
		if errors.Is(err, ErrConcurrentModification) {
			// Expiry sweep may have raced us; re-read and re-decide.
			continue
		}
		if err != nil {
			return err
		}

		s.invalidateAnalytics(ctx, eventID)

		s.log.Info("waitlist entry converted to purchase",
			slog.String("entry_id", entry.ID.String()),
			slog.String("user_id", userID.String()),
			slog.String("event_id", eventID.String()),
		)
		return nil
	}

	return ErrConcurrentModification
}

// ExpireNotifications flips every NOTIFIED entry past its redemption
// window to EXPIRED. Idempotent: a second run right after a successful
// pass finds nothing to do. Safe to run concurrently with purchases;
// the CAS loses against a concurrent MarkPurchased and skips the entry.
func (s *service) ExpireNotifications(ctx context.Context) (int, error) {
	expired := 0
	touched := make(map[uuid.UUID]struct{})

	for {
		select {
		case <-ctx.Done():
			return expired, ctx.Err()
		default:
		}

		entries, err := s.repo.ListExpiredNotified(ctx, s.clock.Now(), s.config.SweepBatchSize)
		if err != nil {
			return expired, err
		}
		if len(entries) == 0 {
			break
		}

		progressed := false
		for _, entry := range entries {
			err := s.repo.UpdateStatus(ctx, entry.ID, WaitlistStatusNotified, WaitlistStatusExpired, nil)
			if errors.Is(err, ErrConcurrentModification) {
				continue
			}
			if err != nil {
				s.log.ErrorWithContext(ctx, "failed to expire waitlist entry", err, map[string]interface{}{
					"entry_id": entry.ID.String(),
				})
				continue
			}
			expired++
			progressed = true
			touched[entry.EventID] = struct{}{}
		}

		// Every CAS lost or errored; bail rather than spin on the same batch.
		if !progressed {
			break
		}
		if len(entries) < s.config.SweepBatchSize {
			break
		}
	}

	for eventID := range touched {
		s.invalidateAnalytics(ctx, eventID)
	}

	if expired > 0 {
		s.log.Info("expired waitlist notifications", slog.Int("count", expired))
	}

	return expired, nil
}

// CleanupWaitlist hard-deletes entries past their retention window:
// EXPIRED entries older than 30 days and PURCHASED entries older than
// 7 days. WAITING and recently NOTIFIED entries are never touched.
func (s *service) CleanupWaitlist(ctx context.Context, eventID uuid.UUID) (*CleanupResult, error) {
	now := s.clock.Now()

	expiredRemoved, err := s.repo.DeleteExpiredBefore(ctx, eventID, now.Add(-s.config.ExpiredRetention))
	if err != nil {
		return nil, err
	}

	completedRemoved, err := s.repo.DeletePurchasedBefore(ctx, eventID, now.Add(-s.config.PurchasedRetention))
	if err != nil {
		// Partial completion is fine; re-running finishes the job.
		return &CleanupResult{ExpiredRemoved: int(expiredRemoved)}, err
	}

	if expiredRemoved > 0 || completedRemoved > 0 {
		s.invalidateAnalytics(ctx, eventID)
		s.log.Info("waitlist cleanup finished",
			slog.String("event_id", eventID.String()),
			slog.Int64("expired_removed", expiredRemoved),
			slog.Int64("completed_removed", completedRemoved),
		)
	}

	return &CleanupResult{
		ExpiredRemoved:   int(expiredRemoved),
		CompletedRemoved: int(completedRemoved),
	}, nil
}

// ReorderPriorities recomputes every WAITING entry's score from its
// stored tier snapshot and join time. Run after the tier weight table
// or recency window changes so users don't have to rejoin. Entry-by-
// entry and tolerant of partial completion; re-running converges.
func (s *service) ReorderPriorities(ctx context.Context, eventID, ticketTypeID uuid.UUID) (int, error) {
	entries, err := s.repo.ListByStatus(ctx, eventID, ticketTypeID, WaitlistStatusWaiting, 0)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	updated := 0
	skipped := 0

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return updated, ctx.Err()
		default:
		}

		newScore := CalculatePriorityScore(entry.MembershipTier, entry.CreatedAt, now)
		if newScore == entry.PriorityScore {
			continue
		}

		if err := s.repo.UpdatePriorityScore(ctx, entry.ID, newScore); err != nil {
			s.log.ErrorWithContext(ctx, "failed to update priority score", err, map[string]interface{}{
				"entry_id": entry.ID.String(),
			})
			skipped++
			continue
		}
		updated++
	}

	if updated > 0 {
		s.invalidateAnalytics(ctx, eventID)
	}

	s.log.Info("waitlist priorities reordered",
		slog.String("event_id", eventID.String()),
		slog.String("ticket_type_id", ticketTypeID.String()),
		slog.Int("updated", updated),
		slog.Int("skipped", skipped),
	)

	return updated, nil
}

// BatchJoin applies JoinWaitlist to each request independently. One
// request failing (for example AlreadyOnWaitlist) never aborts the
// rest; the result carries per-item outcomes.
func (s *service) BatchJoin(ctx context.Context, requests []BatchJoinItem) (*BatchJoinResult, error) {
	result := &BatchJoinResult{
		Results: make([]BatchJoinItemResult, 0, len(requests)),
	}

	for _, req := range requests {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		itemResult := BatchJoinItemResult{
			EventID:      req.EventID,
			UserID:       req.UserID,
			TicketTypeID: req.TicketTypeID,
		}

		joined, err := s.JoinWaitlist(ctx, req.EventID, req.UserID, req.TicketTypeID)
		if err != nil {
			itemResult.Error = err.Error()
			result.Failed++
		} else {
			itemResult.Success = true
			itemResult.Position = joined.Position
			itemResult.PriorityScore = joined.PriorityScore
			result.Successful++
		}

		result.Results = append(result.Results, itemResult)
	}

	return result, nil
}

// GetStats aggregates entry counts by status and membership tier over
// all entries for the event, in any lifecycle state
func (s *service) GetStats(ctx context.Context, eventID uuid.UUID) (*WaitlistStatsResponse, error) {
	cacheKey := constants.BuildWaitlistStatsKey(eventID.String())

	if s.cacheService != nil {
		var cached WaitlistStatsResponse
		if err := s.cacheService.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	byStatus, byTier, err := s.repo.AggregateStats(ctx, eventID)
	if err != nil {
		return nil, err
	}

	stats := &WaitlistStatsResponse{
		EventID:   eventID,
		Waiting:   byStatus[WaitlistStatusWaiting],
		Notified:  byStatus[WaitlistStatusNotified],
		Purchased: byStatus[WaitlistStatusPurchased],
		Expired:   byStatus[WaitlistStatusExpired],
		ByTier:    byTier,
	}
	stats.Total = stats.Waiting + stats.Notified + stats.Purchased + stats.Expired
	if stats.ByTier == nil {
		stats.ByTier = map[int]int{}
	}

	if s.cacheService != nil {
		if err := s.cacheService.Set(ctx, cacheKey, stats, s.config.StatsCacheTTL); err != nil {
			s.log.Warn("failed to cache waitlist stats", slog.String("error", err.Error()))
		}
	}

	return stats, nil
}

// GetConversionRate reports, over every entry ever notified for the
// event, how many converted to a purchase and how quickly
func (s *service) GetConversionRate(ctx context.Context, eventID uuid.UUID) (*ConversionRateResponse, error) {
	cacheKey := constants.BuildWaitlistConversionKey(eventID.String())

	if s.cacheService != nil {
		var cached ConversionRateResponse
		if err := s.cacheService.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	history, err := s.repo.ListNotifiedHistory(ctx, eventID)
	if err != nil {
		return nil, err
	}

	resp := &ConversionRateResponse{EventID: eventID}

	var totalConvertHours float64
	var convertedWithTimestamps int

	for _, entry := range history {
		if entry.NotifiedAt == nil {
			continue
		}
		resp.TotalNotified++

		if entry.Status == WaitlistStatusPurchased {
			resp.TotalPurchased++
			if entry.PurchasedAt != nil {
				totalConvertHours += entry.PurchasedAt.Sub(*entry.NotifiedAt).Hours()
				convertedWithTimestamps++
			}
		}
	}

	if resp.TotalNotified > 0 {
		rate := float64(resp.TotalPurchased) / float64(resp.TotalNotified) * 100
		resp.ConversionRate = math.Round(rate*10) / 10
	}
	if convertedWithTimestamps > 0 {
		avg := totalConvertHours / float64(convertedWithTimestamps)
		resp.AverageTimeToConvertHours = math.Round(avg*10) / 10
	}

	if s.cacheService != nil {
		if err := s.cacheService.Set(ctx, cacheKey, resp, constants.TTL_WAITLIST_CONVERSION); err != nil {
			s.log.Warn("failed to cache conversion rate", slog.String("error", err.Error()))
		}
	}

	return resp, nil
}

// invalidateAnalytics drops cached stats after any mutation so reads
// never serve stale aggregates longer than one fetch
func (s *service) invalidateAnalytics(ctx context.Context, eventID uuid.UUID) {
	if s.cacheService == nil {
		return
	}
	if err := s.cacheService.Delete(ctx, constants.BuildWaitlistStatsKey(eventID.String())); err != nil {
		s.log.Debug("stats cache invalidation failed", slog.String("error", err.Error()))
	}
	if err := s.cacheService.Delete(ctx, constants.BuildWaitlistConversionKey(eventID.String())); err != nil {
		s.log.Debug("conversion cache invalidation failed", slog.String("error", err.Error()))
	}
}
