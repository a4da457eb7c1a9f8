package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/dateutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// invoiceRepository implements the InvoiceRepository interface
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository instance
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// Create inserts an invoice; used by imports and tests
func (r *invoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ReminderStatus == "" {
		invoice.ReminderStatus = models.ReminderStatusNone
	}
	return r.db.WithContext(ctx).Create(invoice).Error
}

// GetByID retrieves an invoice by its ID
func (r *invoiceRepository) GetByID(ctx context.Context, id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).First(&invoice, id).Error; err != nil {
		return nil, apperrors.FromDB(err, fmt.Sprintf("invoice %d", id))
	}
	return &invoice, nil
}

// GetByIDForUpdate retrieves an invoice and locks its row until the surrounding transaction ends
func (r *invoiceRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&invoice, id).Error
	if err != nil {
		return nil, apperrors.FromDB(err, fmt.Sprintf("invoice %d", id))
	}
	return &invoice, nil
}

// ListEligibleForReminders returns sent, unpaid invoices that are not on manual follow-up
func (r *invoiceRepository) ListEligibleForReminders(ctx context.Context, orgID uint) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Where("send_status = ?", models.SendStatusSent).
		Where("payment_status NOT IN ?", []string{models.PaymentStatusPaid, models.PaymentStatusPendingPayment}).
		Where("reminder_status <> ?", models.ReminderStatusManualFollowup).
		Order("id ASC").
		Find(&invoices).Error
	return invoices, err
}

// UpdateReminderProgress records the step an invoice reached and the day it was scheduled for
func (r *invoiceRepository) UpdateReminderProgress(ctx context.Context, id uint, reminderStatus string, lastReminderDate time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Invoice{}).Where("id = ?", id).Updates(map[string]any{
		"reminder_status":    reminderStatus,
		"last_reminder_date": dateutil.Day(lastReminderDate),
	}).Error
}

// MarkSent stamps the invoice as delivered to the client
func (r *invoiceRepository) MarkSent(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ?", id).
		Update("send_status", models.SendStatusSent).Error
}
