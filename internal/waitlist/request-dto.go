package waitlist

import "github.com/google/uuid"

type JoinWaitlistRequest struct {
	EventID      uuid.UUID `json:"event_id" binding:"required" validate:"required"`
	TicketTypeID uuid.UUID `json:"ticket_type_id" binding:"required" validate:"required"`
}

type NotifyWaitlistRequest struct {
	AvailableCount int `json:"available_count" binding:"required,min=1" validate:"required,min=1"`
}

type MarkPurchasedRequest struct {
	EventID      uuid.UUID `json:"event_id" binding:"required" validate:"required"`
	TicketTypeID uuid.UUID `json:"ticket_type_id" binding:"required" validate:"required"`
}

// BatchJoinItem is one entry of an administrative bulk join
type BatchJoinItem struct {
	EventID      uuid.UUID `json:"event_id" binding:"required" validate:"required"`
	UserID       uuid.UUID `json:"user_id" binding:"required" validate:"required"`
	TicketTypeID uuid.UUID `json:"ticket_type_id" binding:"required" validate:"required"`
}

type BatchJoinRequest struct {
	Requests []BatchJoinItem `json:"requests" binding:"required,min=1,max=100,dive" validate:"required,min=1,max=100,dive"`
}
