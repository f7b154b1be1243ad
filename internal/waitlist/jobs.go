package waitlist

import (
	"context"
	"log/slog"
	"time"

	"gvteway/pkg/logger"
)

// JobProcessor periodically triggers the idempotent maintenance
// operations. The operations themselves are independently invocable
// (see the admin routes); this is just the in-process trigger for
// deployments without an external scheduler.
type JobProcessor struct {
	service Service
	repo    Repository
	config  *JobConfig
	log     *logger.Logger
	done    chan struct{}
}

// JobConfig contains configuration for background jobs
type JobConfig struct {
	ExpiryCheckInterval time.Duration
	CleanupInterval     time.Duration
	ExpiredRetention    time.Duration
	PurchasedRetention  time.Duration
}

// DefaultJobConfig returns default job configuration
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		ExpiryCheckInterval: 1 * time.Minute,
		CleanupInterval:     24 * time.Hour,
		ExpiredRetention:    ExpiredRetention,
		PurchasedRetention:  PurchasedRetention,
	}
}

// NewJobProcessor creates a new job processor
func NewJobProcessor(service Service, repo Repository, config *JobConfig) *JobProcessor {
	if config == nil {
		config = DefaultJobConfig()
	}

	return &JobProcessor{
		service: service,
		repo:    repo,
		config:  config,
		log:     logger.GetDefault(),
		done:    make(chan struct{}),
	}
}

// Start starts all background jobs
func (jp *JobProcessor) Start(ctx context.Context) {
	jp.log.Info("starting waitlist background jobs",
		slog.Duration("expiry_interval", jp.config.ExpiryCheckInterval),
		slog.Duration("cleanup_interval", jp.config.CleanupInterval),
	)

	go jp.runExpirySweep(ctx)
	go jp.runCleanup(ctx)
}

// Stop stops all background jobs
func (jp *JobProcessor) Stop() {
	close(jp.done)
	jp.log.Info("waitlist background jobs stopped")
}

func (jp *JobProcessor) runExpirySweep(ctx context.Context) {
	ticker := time.NewTicker(jp.config.ExpiryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			expired, err := jp.service.ExpireNotifications(ctx)
			if err != nil {
				jp.log.Error("expiry sweep failed", slog.Any("error", err))
				continue
			}
			if expired > 0 {
				jp.log.Info("expiry sweep finished", slog.Int("expired", expired))
			}
		case <-jp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (jp *JobProcessor) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(jp.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			jp.cleanupOnce(ctx)
		case <-jp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanupOnce finds events with entries past retention and cleans each.
// Entry-by-entry deletes tolerate a crash mid-run; the next tick
// finishes the rest.
func (jp *JobProcessor) cleanupOnce(ctx context.Context) {
	now := time.Now().UTC()
	eventIDs, err := jp.repo.EventsDueForCleanup(ctx,
		now.Add(-jp.config.ExpiredRetention),
		now.Add(-jp.config.PurchasedRetention),
	)
	if err != nil {
		jp.log.Error("cleanup scan failed", slog.Any("error", err))
		return
	}

	for _, eventID := range eventIDs {
		result, err := jp.service.CleanupWaitlist(ctx, eventID)
		if err != nil {
			jp.log.Error("cleanup failed for event",
				slog.String("event_id", eventID.String()),
				slog.Any("error", err),
			)
			continue
		}
		jp.log.Info("cleanup finished for event",
			slog.String("event_id", eventID.String()),
			slog.Int("expired_removed", result.ExpiredRemoved),
			slog.Int("completed_removed", result.CompletedRemoved),
		)
	}
}
