package repository

import (
	"context"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// eventRepository implements the EventRepository interface
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new event repository instance
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// Append inserts an audit event. Events are never updated.
func (r *eventRepository) Append(ctx context.Context, event *models.Event) error {
	if event.CorrelationID == "" {
		event.CorrelationID = uuid.NewString()
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// ListByInvoice returns the invoice timeline, oldest first
func (r *eventRepository) ListByInvoice(ctx context.Context, invoiceID uint) ([]models.Event, error) {
	var events []models.Event
	err := r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).Order("id ASC").Find(&events).Error
	return events, err
}

// ListByReminder returns all events recorded for a reminder, oldest first
func (r *eventRepository) ListByReminder(ctx context.Context, reminderID uint) ([]models.Event, error) {
	var events []models.Event
	err := r.db.WithContext(ctx).Where("reminder_id = ?", reminderID).Order("id ASC").Find(&events).Error
	return events, err
}
