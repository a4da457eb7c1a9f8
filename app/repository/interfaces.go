package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"gorm.io/gorm"
)

// OrganizationRepository defines the interface for organization and step configuration operations
type OrganizationRepository interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id uint) (*models.Organization, error)
	ListIDs(ctx context.Context) ([]uint, error)
	ListAutoSendIDs(ctx context.Context) ([]uint, error)
	ReplaceSteps(ctx context.Context, orgID uint, steps []models.ReminderStep) error
	UpdateReminderSettings(ctx context.Context, orgID uint, settings models.ReminderSettings) error
	ConnectMailCredential(ctx context.Context, orgID uint, cred MailCredential) error
	UpdateMailToken(ctx context.Context, orgID uint, accessToken, refreshToken string, expiresAt time.Time) error
	UpdateMailCredentialStatus(ctx context.Context, orgID uint, status string) error
}

// InvoiceRepository defines the interface for the invoice fields the reminder engine reads and writes
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, id uint) (*models.Invoice, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Invoice, error)
	ListEligibleForReminders(ctx context.Context, orgID uint) ([]models.Invoice, error)
	UpdateReminderProgress(ctx context.Context, id uint, reminderStatus string, lastReminderDate time.Time) error
	MarkSent(ctx context.Context, id uint) error
}

// ReminderRepository defines the interface for reminder records
type ReminderRepository interface {
	Create(ctx context.Context, reminder *models.Reminder) error
	GetByID(ctx context.Context, id uint) (*models.Reminder, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Reminder, error)
	FindForStep(ctx context.Context, invoiceID uint, step string) (*models.Reminder, error)
	Save(ctx context.Context, reminder *models.Reminder) error
	ListDueEmail(ctx context.Context, orgID uint, asOf time.Time) ([]models.Reminder, error)
	ListUpcoming(ctx context.Context, filter ReminderFilter) ([]models.Reminder, error)
	ListHistory(ctx context.Context, filter ReminderFilter) ([]models.Reminder, error)
}

// EventRepository defines the interface for the audit log
type EventRepository interface {
	Append(ctx context.Context, event *models.Event) error
	ListByInvoice(ctx context.Context, invoiceID uint) ([]models.Event, error)
	ListByReminder(ctx context.Context, reminderID uint) ([]models.Event, error)
}

// UserRepository defines the interface for user lookups needed by authentication
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error)
	TouchAPIKey(ctx context.Context, id uint, at time.Time) error
}

// MailCredential is what the OAuth connect flow hands over for an organization.
type MailCredential struct {
	Provider      string
	SenderAddress string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     *time.Time
}

// ReminderFilter scopes reminder listings. CreatorID restricts to invoices created by that user.
type ReminderFilter struct {
	OrganizationID uint
	InvoiceID      *uint
	CreatorID      *uint
	Limit          int
}

// Repositories struct holds all repository instances
type Repositories struct {
	db           *gorm.DB
	Organization OrganizationRepository
	Invoice      InvoiceRepository
	Reminder     ReminderRepository
	Event        EventRepository
	User         UserRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:           db,
		Organization: NewOrganizationRepository(db),
		Invoice:      NewInvoiceRepository(db),
		Reminder:     NewReminderRepository(db),
		Event:        NewEventRepository(db),
		User:         NewUserRepository(db),
	}
}

// Transaction runs fn against repositories bound to a single database transaction.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
