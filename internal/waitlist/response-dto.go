package waitlist

import "github.com/google/uuid"

type JoinWaitlistResponse struct {
	EntryID       uuid.UUID `json:"entry_id"`
	Position      int       `json:"position"`
	PriorityScore int       `json:"priority_score"`
}

type WaitlistPositionResponse struct {
	Position int `json:"position"`
	Total    int `json:"total"`
}

type WaitlistStatsResponse struct {
	EventID   uuid.UUID   `json:"event_id"`
	Total     int         `json:"total"`
	Waiting   int         `json:"waiting"`
	Notified  int         `json:"notified"`
	Purchased int         `json:"purchased"`
	Expired   int         `json:"expired"`
	ByTier    map[int]int `json:"by_tier"`
}

// DeliveryFailure records a notification that could not be handed to
// the gateway after its entry was already transitioned
type DeliveryFailure struct {
	EntryID uuid.UUID `json:"entry_id"`
	UserID  uuid.UUID `json:"user_id"`
	Error   string    `json:"error"`
}

// NotifyWaitlistResult separates "entries transitioned to NOTIFIED"
// from "messages actually handed to the gateway"; the two counts can
// legitimately differ
type NotifyWaitlistResult struct {
	Notified         int               `json:"notified"`
	Delivered        int               `json:"delivered"`
	Skipped          int               `json:"skipped"`
	DeliveryFailures []DeliveryFailure `json:"delivery_failures,omitempty"`
}

type ConversionRateResponse struct {
	EventID                   uuid.UUID `json:"event_id"`
	TotalNotified             int       `json:"total_notified"`
	TotalPurchased            int       `json:"total_purchased"`
	ConversionRate            float64   `json:"conversion_rate"`
	AverageTimeToConvertHours float64   `json:"average_time_to_convert_hours"`
}

type CleanupResult struct {
	ExpiredRemoved   int `json:"expired_removed"`
	CompletedRemoved int `json:"completed_removed"`
}

type BatchJoinItemResult struct {
	EventID       uuid.UUID `json:"event_id"`
	UserID        uuid.UUID `json:"user_id"`
	TicketTypeID  uuid.UUID `json:"ticket_type_id"`
	Success       bool      `json:"success"`
	Position      int       `json:"position,omitempty"`
	PriorityScore int       `json:"priority_score,omitempty"`
	Error         string    `json:"error,omitempty"`
}

type BatchJoinResult struct {
	Successful int                   `json:"successful"`
	Failed     int                   `json:"failed"`
	Results    []BatchJoinItemResult `json:"results"`
}
