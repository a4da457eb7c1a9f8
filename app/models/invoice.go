package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	SendStatusPending = "pending"
	SendStatusSent    = "sent"

	PaymentStatusUnpaid         = "unpaid"
	PaymentStatusPartial        = "partial"
	PaymentStatusPendingPayment = "pending_payment"
	PaymentStatusPaid           = "paid"

	ReminderStatusNone           = "none"
	ReminderStatusManualFollowup = "manual_followup"
)

// Invoice is owned by the invoice CRUD; the reminder engine only writes
// SendStatus, ReminderStatus and LastReminderDate.
type Invoice struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	OrganizationID   uint            `gorm:"index;not null" json:"organization_id"`
	CreatorID        uint            `gorm:"index" json:"creator_id"`
	Number           string          `gorm:"type:varchar(64)" json:"number"`
	ClientName       string          `gorm:"type:varchar(200)" json:"client_name"`
	ContactEmail     string          `gorm:"type:varchar(200)" json:"contact_email,omitempty"`
	Amount           decimal.Decimal `gorm:"type:decimal(14,2)" json:"amount"`
	Currency         string          `gorm:"type:varchar(3);default:'EUR'" json:"currency"`
	InvoiceDate      *time.Time      `gorm:"type:date" json:"invoice_date,omitempty"`
	DueDate          *time.Time      `gorm:"type:date" json:"due_date,omitempty"`
	SendStatus       string          `gorm:"type:varchar(20);default:'pending';index" json:"send_status"`
	PaymentStatus    string          `gorm:"type:varchar(20);default:'unpaid';index" json:"payment_status"`
	ReminderStatus   string          `gorm:"type:varchar(50);default:'none'" json:"reminder_status"`
	LastReminderDate *time.Time      `gorm:"type:date" json:"last_reminder_date,omitempty"`
	PDFKey           string          `gorm:"type:varchar(255)" json:"pdf_key,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
}

// EligibleForReminders mirrors the filter used by the generation query.
func (i *Invoice) EligibleForReminders() bool {
	return i.SendStatus == SendStatusSent && !i.RemindersStopped()
}

// RemindersStopped reports whether the invoice was paid, is awaiting a payment
// or was handed to manual follow-up. Reminders created earlier must not go out.
func (i *Invoice) RemindersStopped() bool {
	if i.PaymentStatus == PaymentStatusPaid || i.PaymentStatus == PaymentStatusPendingPayment {
		return true
	}
	return i.ReminderStatus == ReminderStatusManualFollowup
}
