package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EventReminderCreated        = "reminder_created"
	EventReminderPaused         = "reminder_paused"
	EventReminderResumed        = "reminder_resumed"
	EventReminderRescheduled    = "reminder_rescheduled"
	EventReminderContentEdited  = "reminder_content_edited"
	EventReminderSent           = "reminder_sent"
	EventReminderSendRetry      = "reminder_send_retry"
	EventReminderSendFailed     = "reminder_send_failed"
	EventPhoneCallAttempt       = "phone_call_attempt"
	EventPhoneCallOutcome       = "phone_call_outcome"
	EventMailCredentialInvalid  = "mail_credential_invalid"
	EventMailCredentialAttached = "mail_credential_connected"
)

// Event is an append-only audit record.
type Event struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	OrganizationID uint              `gorm:"index;not null" json:"organization_id"`
	InvoiceID      *uint             `gorm:"index" json:"invoice_id,omitempty"`
	ReminderID     *uint             `gorm:"index" json:"reminder_id,omitempty"`
	UserID         *uint             `json:"user_id,omitempty"`
	Type           string            `gorm:"type:varchar(64);index;not null" json:"type"`
	CorrelationID  string            `gorm:"type:varchar(36)" json:"correlation_id"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	CreatedAt      time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}
