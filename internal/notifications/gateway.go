package notifications

import (
	"context"
	"fmt"
	"time"

	"gvteway/internal/users"
	"gvteway/internal/waitlist"
	"gvteway/pkg/logger"
)

// Gateway bridges the waitlist service to the notification pipeline.
// It records the notification and publishes it to Kafka; actual email
// delivery happens asynchronously in the consumer workers.
type Gateway struct {
	repo     Repository
	users    users.Repository
	producer Producer
	log      *logger.Logger
}

// NewGateway creates a gateway satisfying waitlist.NotificationGateway
func NewGateway(repo Repository, usersRepo users.Repository, producer Producer) *Gateway {
	return &Gateway{
		repo:     repo,
		users:    usersRepo,
		producer: producer,
		log:      logger.GetDefault(),
	}
}

func (g *Gateway) SendTicketsAvailable(ctx context.Context, n waitlist.TicketsAvailableNotification) error {
	recipient, err := g.users.GetByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve notification recipient: %w", err)
	}
	if recipient == nil {
		return fmt.Errorf("notification recipient %s not found", n.UserID)
	}

	record := &Notification{
		Type:           NotificationTypeTicketsAvailable,
		Channel:        NotificationChannelEmail,
		Status:         NotificationStatusQueued,
		RecipientID:    recipient.ID,
		RecipientEmail: recipient.Email,
		Subject:        fmt.Sprintf("Tickets available for %s", n.EventTitle),
		Payload: JSONMap{
			"event_title":      n.EventTitle,
			"ticket_type_name": n.TicketTypeName,
			"expires_at":       n.ExpiresAt.Format(time.RFC3339),
		},
		EventID:         &n.EventID,
		WaitlistEntryID: &n.EntryID,
	}

	if err := g.repo.Create(ctx, record); err != nil {
		return err
	}

	message := &TicketsAvailableMessage{
		NotificationID: record.ID,
		EntryID:        n.EntryID,
		UserID:         n.UserID,
		EventID:        n.EventID,
		TicketTypeID:   n.TicketTypeID,
		RecipientEmail: recipient.Email,
		RecipientName:  recipient.FullName(),
		EventTitle:     n.EventTitle,
		TicketTypeName: n.TicketTypeName,
		ExpiresAt:      n.ExpiresAt,
		CreatedAt:      time.Now().UTC(),
	}

	if err := g.producer.PublishTicketsAvailable(ctx, message); err != nil {
		if markErr := g.repo.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			g.log.Warn("failed to record publish failure", "error", markErr.Error())
		}
		return err
	}

	return nil
}
