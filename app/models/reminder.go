package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelPhone
}

type CompletionStatus string

const (
	CompletionPending   CompletionStatus = "pending"
	CompletionCompleted CompletionStatus = "completed"
	CompletionFailed    CompletionStatus = "failed"
)

// PhoneOutcome is what a technician records after calling the client.
type PhoneOutcome string

const (
	PhoneNoAnswer  PhoneOutcome = "no_answer"
	PhoneVoicemail PhoneOutcome = "voicemail"
	PhoneWillPay   PhoneOutcome = "will_pay"
	PhoneDispute   PhoneOutcome = "dispute"
)

func (o PhoneOutcome) Valid() bool {
	switch o {
	case PhoneNoAnswer, PhoneVoicemail, PhoneWillPay, PhoneDispute:
		return true
	}
	return false
}

// Terminal reports whether the outcome closes the reminder.
func (o PhoneOutcome) Terminal() bool {
	return o == PhoneWillPay || o == PhoneDispute
}

// ReminderData is the channel specific payload stored as JSON.
type ReminderData struct {
	Subject      string       `json:"subject,omitempty"`
	Body         string       `json:"body,omitempty"`
	PhoneNotes   string       `json:"phone_notes,omitempty"`
	PhoneOutcome PhoneOutcome `json:"phone_outcome,omitempty"`
	Attempts     int          `json:"attempts,omitempty"`
	LastError    string       `json:"last_error,omitempty"`
	MessageID    string       `json:"message_id,omitempty"`
}

// Reminder is one scheduled contact attempt for an invoice at a given step.
// At most one non-deleted reminder exists per (InvoiceID, ReminderStatus).
type Reminder struct {
	ID               uint                             `gorm:"primaryKey" json:"id"`
	OrganizationID   uint                             `gorm:"index;not null" json:"organization_id"`
	InvoiceID        uint                             `gorm:"index:idx_reminders_invoice_step;not null" json:"invoice_id"`
	ReminderStatus   string                           `gorm:"type:varchar(50);index:idx_reminders_invoice_step" json:"reminder_status"`
	CreatorID        *uint                            `gorm:"index" json:"creator_id,omitempty"`
	Channel          Channel                          `gorm:"type:varchar(10);not null" json:"channel"`
	ScheduledAt      time.Time                        `gorm:"index;not null" json:"scheduled_at"`
	CompletionStatus CompletionStatus                 `gorm:"type:varchar(20);default:'pending';index" json:"completion_status"`
	IsPaused         bool                             `gorm:"default:false" json:"is_paused"`
	CompletedAt      *time.Time                       `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	Data             datatypes.JSONType[ReminderData] `json:"data"`
	CreatedAt        time.Time                        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt                   `gorm:"index" json:"-"`
}

// Payload returns a copy of the reminder data.
func (r *Reminder) Payload() ReminderData {
	return r.Data.Data()
}

func (r *Reminder) SetPayload(d ReminderData) {
	r.Data = datatypes.NewJSONType(d)
}
