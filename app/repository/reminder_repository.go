package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultListLimit = 200

// reminderRepository implements the ReminderRepository interface
type reminderRepository struct {
	db *gorm.DB
}

// NewReminderRepository creates a new reminder repository instance
func NewReminderRepository(db *gorm.DB) ReminderRepository {
	return &reminderRepository{db: db}
}

// Create inserts a new reminder
func (r *reminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	return r.db.WithContext(ctx).Create(reminder).Error
}

// GetByID retrieves a non-deleted reminder
func (r *reminderRepository) GetByID(ctx context.Context, id uint) (*models.Reminder, error) {
	var reminder models.Reminder
	if err := r.db.WithContext(ctx).First(&reminder, id).Error; err != nil {
		return nil, apperrors.FromDB(err, fmt.Sprintf("reminder %d", id))
	}
	return &reminder, nil
}

// GetByIDForUpdate retrieves a reminder and locks its row
func (r *reminderRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Reminder, error) {
	var reminder models.Reminder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&reminder, id).Error
	if err != nil {
		return nil, apperrors.FromDB(err, fmt.Sprintf("reminder %d", id))
	}
	return &reminder, nil
}

// FindForStep returns the non-deleted reminder for (invoice, step), or nil when none exists
func (r *reminderRepository) FindForStep(ctx context.Context, invoiceID uint, step string) (*models.Reminder, error) {
	var reminder models.Reminder
	err := r.db.WithContext(ctx).
		Where("invoice_id = ? AND reminder_status = ?", invoiceID, step).
		Order("id ASC").
		First(&reminder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

// Save writes all reminder fields back
func (r *reminderRepository) Save(ctx context.Context, reminder *models.Reminder) error {
	return r.db.WithContext(ctx).Save(reminder).Error
}

// ListDueEmail returns pending, unpaused email reminders scheduled at or before
// asOf whose invoice still takes reminders
func (r *reminderRepository) ListDueEmail(ctx context.Context, orgID uint, asOf time.Time) ([]models.Reminder, error) {
	var reminders []models.Reminder
	err := r.db.WithContext(ctx).
		Joins("JOIN invoices ON invoices.id = reminders.invoice_id AND invoices.deleted_at IS NULL").
		Where("reminders.organization_id = ?", orgID).
		Where("reminders.channel = ?", models.ChannelEmail).
		Where("reminders.completion_status = ?", models.CompletionPending).
		Where("reminders.is_paused = ?", false).
		Where("reminders.scheduled_at <= ?", asOf.UTC()).
		Where("invoices.payment_status NOT IN ?", []string{models.PaymentStatusPaid, models.PaymentStatusPendingPayment}).
		Where("invoices.reminder_status <> ?", models.ReminderStatusManualFollowup).
		Order("reminders.scheduled_at ASC, reminders.id ASC").
		Find(&reminders).Error
	return reminders, err
}

// ListUpcoming returns pending, unpaused reminders ordered by schedule
func (r *reminderRepository) ListUpcoming(ctx context.Context, filter ReminderFilter) ([]models.Reminder, error) {
	var reminders []models.Reminder
	err := r.scoped(ctx, filter).
		Where("reminders.completion_status = ?", models.CompletionPending).
		Where("reminders.is_paused = ?", false).
		Order("reminders.scheduled_at ASC, reminders.id ASC").
		Find(&reminders).Error
	return reminders, err
}

// ListHistory returns completed and failed reminders, newest first
func (r *reminderRepository) ListHistory(ctx context.Context, filter ReminderFilter) ([]models.Reminder, error) {
	var reminders []models.Reminder
	err := r.scoped(ctx, filter).
		Where("reminders.completion_status IN ?", []models.CompletionStatus{models.CompletionCompleted, models.CompletionFailed}).
		Order("reminders.updated_at DESC, reminders.id DESC").
		Find(&reminders).Error
	return reminders, err
}

func (r *reminderRepository) scoped(ctx context.Context, filter ReminderFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Reminder{}).
		Where("reminders.organization_id = ?", filter.OrganizationID)
	if filter.InvoiceID != nil {
		q = q.Where("reminders.invoice_id = ?", *filter.InvoiceID)
	}
	if filter.CreatorID != nil {
		q = q.Joins("JOIN invoices ON invoices.id = reminders.invoice_id AND invoices.deleted_at IS NULL").
			Where("invoices.creator_id = ?", *filter.CreatorID)
	}
	limit := filter.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	return q.Limit(limit)
}
