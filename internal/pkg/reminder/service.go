package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/app/repository"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/access"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
)

// View selects a reminder listing.
type View string

const (
	ViewUpcoming View = "upcoming"
	ViewHistory  View = "history"
)

// Service is the only writer of reminder lifecycle state.
type Service struct {
	repos *repository.Repositories
	now   func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, e.g. in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repos *repository.Repositories, opts ...Option) *Service {
	s := &Service{repos: repos, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs cmd against the reminder on behalf of actor. The reminder row
// stays locked until the new state and all effects are written.
func (s *Service) Execute(ctx context.Context, actor access.Actor, reminderID uint, cmd Command) (*models.Reminder, error) {
	var result *models.Reminder
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		r, err := tx.Reminder.GetByIDForUpdate(ctx, reminderID)
		if err != nil {
			return err
		}
		inv, err := tx.Invoice.GetByID(ctx, r.InvoiceID)
		if err != nil {
			return fmt.Errorf("load invoice of reminder %d: %w", r.ID, err)
		}
		if err := access.CanControlInvoice(actor, inv); err != nil {
			return err
		}

		next, effects, err := Apply(StateOf(r), cmd, s.now())
		if err != nil {
			return err
		}
		next.ApplyTo(r)
		if err := tx.Reminder.Save(ctx, r); err != nil {
			return fmt.Errorf("save reminder %d: %w", r.ID, err)
		}
		if err := applyEffects(ctx, tx, actor, r, effects); err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if actor.IsSystem() {
		log.Debugf("[Reminder] %T applied to reminder %d by the system", cmd, reminderID)
	} else {
		log.Debugf("[Reminder] %T applied to reminder %d by user %d", cmd, reminderID, actor.UserID)
	}
	return result, nil
}

func applyEffects(ctx context.Context, tx *repository.Repositories, actor access.Actor, r *models.Reminder, effects []Effect) error {
	for _, effect := range effects {
		switch e := effect.(type) {
		case AppendEvent:
			invoiceID, reminderID := r.InvoiceID, r.ID
			event := &models.Event{
				OrganizationID: r.OrganizationID,
				InvoiceID:      &invoiceID,
				ReminderID:     &reminderID,
				UserID:         actor.UserRef(),
				Type:           e.Type,
				Metadata:       datatypes.JSONMap(e.Metadata),
			}
			if err := tx.Event.Append(ctx, event); err != nil {
				return fmt.Errorf("append %s event: %w", e.Type, err)
			}
		case MarkInvoiceSent:
			if err := tx.Invoice.MarkSent(ctx, r.InvoiceID); err != nil {
				return fmt.Errorf("mark invoice %d sent: %w", r.InvoiceID, err)
			}
		default:
			return fmt.Errorf("unhandled effect %T", effect)
		}
	}
	return nil
}

func (s *Service) Pause(ctx context.Context, actor access.Actor, reminderID uint) (*models.Reminder, error) {
	return s.Execute(ctx, actor, reminderID, Pause{})
}

func (s *Service) Resume(ctx context.Context, actor access.Actor, reminderID uint) (*models.Reminder, error) {
	return s.Execute(ctx, actor, reminderID, Resume{})
}

func (s *Service) Reschedule(ctx context.Context, actor access.Actor, reminderID uint, at time.Time) (*models.Reminder, error) {
	return s.Execute(ctx, actor, reminderID, Reschedule{At: at})
}

func (s *Service) EditContent(ctx context.Context, actor access.Actor, reminderID uint, subject, body string) (*models.Reminder, error) {
	return s.Execute(ctx, actor, reminderID, EditContent{Subject: subject, Body: body})
}

func (s *Service) CompletePhoneCall(ctx context.Context, actor access.Actor, reminderID uint, outcome models.PhoneOutcome, notes string) (*models.Reminder, error) {
	return s.Execute(ctx, actor, reminderID, CompletePhoneCall{Outcome: outcome, Notes: notes})
}

func (s *Service) RecordDelivery(ctx context.Context, actor access.Actor, reminderID uint, delivery RecordDelivery) (*models.Reminder, error) {
	return s.Execute(ctx, actor, reminderID, delivery)
}

// List returns the reminders of an organization visible to actor.
// Technicians only see reminders of invoices they created.
func (s *Service) List(ctx context.Context, actor access.Actor, orgID uint, view View, invoiceID *uint) ([]models.Reminder, error) {
	creator, err := access.ListingScope(actor, orgID)
	if err != nil {
		return nil, err
	}
	filter := repository.ReminderFilter{OrganizationID: orgID, InvoiceID: invoiceID, CreatorID: creator}

	switch view {
	case ViewUpcoming, "":
		return s.repos.Reminder.ListUpcoming(ctx, filter)
	case ViewHistory:
		return s.repos.Reminder.ListHistory(ctx, filter)
	}
	return nil, apperrors.Validation("unknown view %q", view)
}

// Timeline returns the audit events of a reminder.
func (s *Service) Timeline(ctx context.Context, actor access.Actor, reminderID uint) ([]models.Event, error) {
	r, err := s.repos.Reminder.GetByID(ctx, reminderID)
	if err != nil {
		return nil, err
	}
	inv, err := s.repos.Invoice.GetByID(ctx, r.InvoiceID)
	if err != nil {
		return nil, err
	}
	if err := access.CanControlInvoice(actor, inv); err != nil {
		return nil, err
	}
	return s.repos.Event.ListByReminder(ctx, reminderID)
}
