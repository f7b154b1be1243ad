package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service exposes event catalog lookups to other modules. It satisfies
// the waitlist package's EventCatalog interface.
type Service interface {
	ResolveTitles(ctx context.Context, eventID, ticketTypeID uuid.UUID) (eventTitle, ticketTypeName string, err error)
}

type service struct {
	repo Repository
}

// NewService creates a new events service
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// ResolveTitles fetches the display names used in waitlist
// notifications
func (s *service) ResolveTitles(ctx context.Context, eventID, ticketTypeID uuid.UUID) (string, string, error) {
	event, err := s.repo.FindEvent(ctx, eventID)
	if err != nil {
		return "", "", err
	}
	if event == nil {
		return "", "", fmt.Errorf("event %s not found", eventID)
	}

	ticketType, err := s.repo.FindTicketType(ctx, ticketTypeID)
	if err != nil {
		return "", "", err
	}
	if ticketType == nil {
		return "", "", fmt.Errorf("ticket type %s not found", ticketTypeID)
	}

	return event.Title, ticketType.Name, nil
}
