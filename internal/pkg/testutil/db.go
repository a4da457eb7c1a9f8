// Package testutil provides an in-memory database and fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/app/repository"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/database"
)

var dbCounter atomic.Int64

// NewDB opens a private in-memory SQLite database with the application schema.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the shared-cache database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.Models()...))
	return db
}

// NewRepositories returns repositories over a fresh in-memory database.
func NewRepositories(t *testing.T) *repository.Repositories {
	t.Helper()
	return repository.NewRepositories(NewDB(t))
}

// Day builds a midnight UTC date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DefaultSteps is the 7/14/30 ladder with two emails and a phone call.
func DefaultSteps() []models.ReminderStep {
	return []models.ReminderStep{
		{
			DelayDays:       7,
			Channel:         models.ChannelEmail,
			Name:            "First reminder",
			SubjectTemplate: "Invoice {{invoice_number}} is overdue",
			BodyTemplate:    "Dear {{client_name}}, {{amount}} is {{days_past_due}} days overdue.",
		},
		{
			DelayDays:       14,
			Channel:         models.ChannelEmail,
			Name:            "Second reminder",
			SubjectTemplate: "Second notice: invoice {{invoice_number}}",
			BodyTemplate:    "Dear {{client_name}}, please settle {{amount}} due {{due_date}}.",
		},
		{
			DelayDays: 30,
			Channel:   models.ChannelPhone,
			Name:      "Call the client",
		},
	}
}

// CreateOrganization persists an organization with the default ladder unless steps are given.
func CreateOrganization(t *testing.T, repos *repository.Repositories, mutate ...func(*models.Organization)) *models.Organization {
	t.Helper()

	org := &models.Organization{
		Name:             "Acme Plumbing",
		Locale:           "en",
		Timezone:         "UTC",
		ReminderSendTime: "09:00",
		AutoSendEnabled:  true,
		Steps:            DefaultSteps(),
	}
	for _, m := range mutate {
		m(org)
	}
	require.NoError(t, repos.Organization.Create(context.Background(), org))

	loaded, err := repos.Organization.GetByID(context.Background(), org.ID)
	require.NoError(t, err)
	return loaded
}

// ConnectMail gives the organization a connected credential valid for another hour.
func ConnectMail(t *testing.T, repos *repository.Repositories, orgID uint) {
	t.Helper()

	exp := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repos.Organization.ConnectMailCredential(context.Background(), orgID, repository.MailCredential{
		Provider:      models.MailProviderGoogle,
		SenderAddress: "billing@acme.test",
		AccessToken:   "access-token",
		RefreshToken:  "refresh-token",
		ExpiresAt:     &exp,
	}))
}

// CreateUser persists a user of the given role in the organization.
func CreateUser(t *testing.T, repos *repository.Repositories, orgID uint, role string) *models.User {
	t.Helper()

	n := dbCounter.Add(1)
	user := &models.User{
		OrganizationID: orgID,
		Name:           fmt.Sprintf("%s %d", role, n),
		Email:          fmt.Sprintf("%s%d@acme.test", role, n),
		Role:           role,
		Status:         models.STATUS_ACTIVE,
	}
	require.NoError(t, repos.User.Create(context.Background(), user))
	return user
}

// CreateInvoice persists a sent, unpaid invoice due on the given day.
func CreateInvoice(t *testing.T, repos *repository.Repositories, orgID, creatorID uint, due time.Time, mutate ...func(*models.Invoice)) *models.Invoice {
	t.Helper()

	n := dbCounter.Add(1)
	invoiceDate := due.AddDate(0, 0, -14)
	inv := &models.Invoice{
		OrganizationID: orgID,
		CreatorID:      creatorID,
		Number:         fmt.Sprintf("INV-%04d", n),
		ClientName:     "Jane Client",
		ContactEmail:   "jane@client.test",
		Amount:         decimal.RequireFromString("1234.50"),
		Currency:       "EUR",
		InvoiceDate:    &invoiceDate,
		DueDate:        &due,
		SendStatus:     models.SendStatusSent,
		PaymentStatus:  models.PaymentStatusUnpaid,
		ReminderStatus: models.ReminderStatusNone,
	}
	for _, m := range mutate {
		m(inv)
	}
	require.NoError(t, repos.Invoice.Create(context.Background(), inv))
	return inv
}

// CreateReminder persists a pending reminder for the invoice.
func CreateReminder(t *testing.T, repos *repository.Repositories, inv *models.Invoice, step string, channel models.Channel, at time.Time, mutate ...func(*models.Reminder)) *models.Reminder {
	t.Helper()

	r := &models.Reminder{
		OrganizationID:   inv.OrganizationID,
		InvoiceID:        inv.ID,
		ReminderStatus:   step,
		Channel:          channel,
		ScheduledAt:      at.UTC(),
		CompletionStatus: models.CompletionPending,
	}
	if channel == models.ChannelEmail {
		r.SetPayload(models.ReminderData{Subject: "Invoice " + inv.Number, Body: "Please pay."})
	}
	for _, m := range mutate {
		m(r)
	}
	require.NoError(t, repos.Reminder.Create(context.Background(), r))
	return r
}
