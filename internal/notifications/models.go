package notifications

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeTicketsAvailable NotificationType = "TICKETS_AVAILABLE"
)

type NotificationChannel string

const (
	NotificationChannelEmail NotificationChannel = "EMAIL"
)

type NotificationStatus string

const (
	NotificationStatusQueued NotificationStatus = "QUEUED"
	NotificationStatusSent   NotificationStatus = "SENT"
	NotificationStatusFailed NotificationStatus = "FAILED"
)

// JSONMap stores arbitrary notification payload data as a jsonb column
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONMap: expected []byte, got %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Notification is the persisted record of every notification the system
// queued, kept for auditing and the admin recent-notifications listing
type Notification struct {
	ID              uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Type            NotificationType    `json:"type" gorm:"type:varchar(40);not null;index"`
	Channel         NotificationChannel `json:"channel" gorm:"type:varchar(20);not null;default:'EMAIL'"`
	Status          NotificationStatus  `json:"status" gorm:"type:varchar(20);not null;default:'QUEUED'"`
	RecipientID     uuid.UUID           `json:"recipient_id" gorm:"type:uuid;not null;index"`
	RecipientEmail  string              `json:"recipient_email" gorm:"not null"`
	Subject         string              `json:"subject" gorm:"not null"`
	Payload         JSONMap             `json:"payload" gorm:"type:jsonb"`
	EventID         *uuid.UUID          `json:"event_id,omitempty" gorm:"type:uuid;index"`
	WaitlistEntryID *uuid.UUID          `json:"waitlist_entry_id,omitempty" gorm:"type:uuid"`
	LastError       *string             `json:"last_error,omitempty"`
	CreatedAt       time.Time           `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt       time.Time           `json:"updated_at" gorm:"autoUpdateTime"`
	SentAt          *time.Time          `json:"sent_at,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}

// TicketsAvailableMessage is the Kafka payload for a waitlist spot
// becoming available. The consumer turns it into an email.
type TicketsAvailableMessage struct {
	NotificationID uuid.UUID `json:"notification_id"`
	EntryID        uuid.UUID `json:"entry_id"`
	UserID         uuid.UUID `json:"user_id"`
	EventID        uuid.UUID `json:"event_id"`
	TicketTypeID   uuid.UUID `json:"ticket_type_id"`
	RecipientEmail string    `json:"recipient_email"`
	RecipientName  string    `json:"recipient_name"`
	EventTitle     string    `json:"event_title"`
	TicketTypeName string    `json:"ticket_type_name"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (m *TicketsAvailableMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PartitionKey keeps all messages for one recipient on the same
// partition so a user's notifications are delivered in order
func (m *TicketsAvailableMessage) PartitionKey() string {
	return m.UserID.String()
}
