package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/app/repository"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/access"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/dateutil"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/scheduler"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/testutil"
)

type env struct {
	repos *repository.Repositories
	gen   *scheduler.Generator
	org   *models.Organization
	user  *models.User
}

func setup(t *testing.T, mutate ...func(*models.Organization)) *env {
	t.Helper()
	repos := testutil.NewRepositories(t)
	org := testutil.CreateOrganization(t, repos, mutate...)
	return &env{
		repos: repos,
		gen:   scheduler.NewGenerator(repos),
		org:   org,
		user:  testutil.CreateUser(t, repos, org.ID, models.ROLE_TECHNICIAN),
	}
}

func (e *env) generate(t *testing.T, day string) *scheduler.Report {
	t.Helper()
	asOf, err := dateutil.Parse(day)
	require.NoError(t, err)
	report, err := e.gen.Generate(context.Background(), access.System(), asOf, nil)
	require.NoError(t, err)
	return report
}

func (e *env) reminders(t *testing.T, inv *models.Invoice) []models.Reminder {
	t.Helper()
	id := inv.ID
	list, err := e.repos.Reminder.ListUpcoming(context.Background(), repository.ReminderFilter{OrganizationID: inv.OrganizationID, InvoiceID: &id})
	require.NoError(t, err)
	return list
}

func (e *env) invoice(t *testing.T, inv *models.Invoice) *models.Invoice {
	t.Helper()
	stored, err := e.repos.Invoice.GetByID(context.Background(), inv.ID)
	require.NoError(t, err)
	return stored
}

func TestNovemberLadder(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	inv := testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, testutil.Day(2025, 11, 3))

	report := e.generate(t, "2025-11-09")
	assert.True(t, report.Success)
	assert.Equal(t, 1, report.InvoicesProcessed)
	assert.Equal(t, 1, report.RemindersGenerated)

	list := e.reminders(t, inv)
	require.Len(t, list, 1)
	first := list[0]
	assert.Equal(t, "reminder_1", first.ReminderStatus)
	assert.Equal(t, models.ChannelEmail, first.Channel)
	assert.True(t, time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC).Equal(first.ScheduledAt), first.ScheduledAt.String())
	assert.Nil(t, first.CreatorID)
	assert.Equal(t, "Invoice "+inv.Number+" is overdue", first.Payload().Subject)
	assert.Equal(t, "Dear Jane Client, 1,234.50 is 7 days overdue.", first.Payload().Body)

	stored := e.invoice(t, inv)
	assert.Equal(t, "reminder_1", stored.ReminderStatus)
	require.NotNil(t, stored.LastReminderDate)
	assert.Equal(t, "2025-11-10", dateutil.Format(*stored.LastReminderDate))

	events, err := e.repos.Event.ListByReminder(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventReminderCreated, events[0].Type)

	// the first reminder went out in the meantime
	first.CompletionStatus = models.CompletionCompleted
	require.NoError(t, e.repos.Reminder.Save(ctx, &first))

	report = e.generate(t, "2025-11-16")
	assert.Equal(t, 1, report.RemindersGenerated)

	list = e.reminders(t, inv)
	require.Len(t, list, 1)
	assert.Equal(t, "reminder_2", list[0].ReminderStatus)
	assert.True(t, time.Date(2025, 11, 17, 9, 0, 0, 0, time.UTC).Equal(list[0].ScheduledAt), list[0].ScheduledAt.String())

	stored = e.invoice(t, inv)
	assert.Equal(t, "reminder_2", stored.ReminderStatus)
	assert.Equal(t, "2025-11-17", dateutil.Format(*stored.LastReminderDate))
}

func TestGenerationIsIdempotent(t *testing.T) {
	e := setup(t)
	inv := testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, testutil.Day(2025, 11, 3))

	assert.Equal(t, 1, e.generate(t, "2025-11-09").RemindersGenerated)
	for i := 0; i < 3; i++ {
		assert.Zero(t, e.generate(t, "2025-11-09").RemindersGenerated)
	}
	assert.Len(t, e.reminders(t, inv), 1)
}

func TestOnlyTheNextStepIsGenerated(t *testing.T) {
	e := setup(t)
	inv := testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, testutil.Day(2025, 1, 1))

	assert.Zero(t, e.generate(t, "2025-01-06").RemindersGenerated)

	report := e.generate(t, "2025-01-07")
	assert.Equal(t, 1, report.RemindersGenerated)

	list := e.reminders(t, inv)
	require.Len(t, list, 1)
	assert.Equal(t, "reminder_1", list[0].ReminderStatus)
	assert.Equal(t, "2025-01-08", dateutil.Format(list[0].ScheduledAt))
}

func TestMissedRunsCatchUpOneStepAtATime(t *testing.T) {
	e := setup(t)
	inv := testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, testutil.Day(2025, 1, 1))

	// every step is overdue by now, but only the first one is created
	assert.Equal(t, 1, e.generate(t, "2025-02-15").RemindersGenerated)
	list := e.reminders(t, inv)
	require.Len(t, list, 1)
	assert.Equal(t, "reminder_1", list[0].ReminderStatus)
	assert.Equal(t, "2025-02-16", dateutil.Format(list[0].ScheduledAt))

	// the next step counts from the day the previous one was scheduled
	assert.Zero(t, e.generate(t, "2025-02-16").RemindersGenerated)
	assert.Equal(t, 1, e.generate(t, "2025-02-22").RemindersGenerated)

	// the phone step is 16 days after the second email
	assert.Zero(t, e.generate(t, "2025-03-09").RemindersGenerated)
	assert.Equal(t, 1, e.generate(t, "2025-03-10").RemindersGenerated)

	stored := e.invoice(t, inv)
	assert.Equal(t, "reminder_3", stored.ReminderStatus)

	list = e.reminders(t, inv)
	require.Len(t, list, 3)
	assert.Equal(t, models.ChannelPhone, list[2].Channel)
	assert.Empty(t, list[2].Payload().Subject)

	// exhausted ladder
	assert.Zero(t, e.generate(t, "2025-12-31").RemindersGenerated)
}

func TestExcludedInvoicesNeverGetReminders(t *testing.T) {
	e := setup(t)
	due := testutil.Day(2025, 11, 3)

	excluded := []*models.Invoice{
		testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, due, func(i *models.Invoice) { i.PaymentStatus = models.PaymentStatusPaid }),
		testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, due, func(i *models.Invoice) { i.PaymentStatus = models.PaymentStatusPendingPayment }),
		testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, due, func(i *models.Invoice) { i.SendStatus = models.SendStatusPending }),
		testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, due, func(i *models.Invoice) { i.ReminderStatus = models.ReminderStatusManualFollowup }),
	}
	partial := testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, due, func(i *models.Invoice) { i.PaymentStatus = models.PaymentStatusPartial })

	for day := testutil.Day(2025, 11, 1); day.Before(testutil.Day(2026, 1, 15)); day = day.AddDate(0, 0, 1) {
		_, err := e.gen.Generate(context.Background(), access.System(), day, nil)
		require.NoError(t, err)
	}

	for _, inv := range excluded {
		assert.Empty(t, e.reminders(t, inv), "invoice %s", inv.Number)
	}
	assert.Len(t, e.reminders(t, partial), 3)
}

func TestOrganizationWithoutStepsIsSkipped(t *testing.T) {
	e := setup(t, func(o *models.Organization) { o.Steps = nil })
	testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, testutil.Day(2025, 11, 3))

	report := e.generate(t, "2025-11-09")
	assert.True(t, report.Success)
	require.Len(t, report.Organizations, 1)
	assert.Equal(t, scheduler.OrganizationReport{OrganizationID: e.org.ID}, report.Organizations[0])
}

func TestInvoiceWithoutDueDateIsSkipped(t *testing.T) {
	e := setup(t)
	broken := testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, testutil.Day(2025, 11, 3), func(i *models.Invoice) { i.DueDate = nil })
	good := testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, testutil.Day(2025, 11, 3))

	report := e.generate(t, "2025-11-09")
	assert.Equal(t, 2, report.InvoicesProcessed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.RemindersGenerated)
	assert.Empty(t, e.reminders(t, broken))
	assert.Len(t, e.reminders(t, good), 1)
}

func TestExistingReminderIsNotDuplicated(t *testing.T) {
	e := setup(t)
	inv := testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, testutil.Day(2025, 11, 3))
	testutil.CreateReminder(t, e.repos, inv, "reminder_1", models.ChannelEmail, time.Date(2025, 11, 8, 9, 0, 0, 0, time.UTC))

	report := e.generate(t, "2025-11-09")
	assert.Zero(t, report.RemindersGenerated)
	assert.Len(t, e.reminders(t, inv), 1)

	stored := e.invoice(t, inv)
	assert.Equal(t, "reminder_1", stored.ReminderStatus)
	assert.Equal(t, "2025-11-08", dateutil.Format(*stored.LastReminderDate))
}

func TestSendTimeUsesOrganizationTimezone(t *testing.T) {
	e := setup(t, func(o *models.Organization) {
		o.Timezone = "Europe/Berlin"
		o.ReminderSendTime = "10:30"
	})
	inv := testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, testutil.Day(2025, 11, 3))

	e.generate(t, "2025-11-09")
	list := e.reminders(t, inv)
	require.Len(t, list, 1)
	assert.True(t, time.Date(2025, 11, 10, 9, 30, 0, 0, time.UTC).Equal(list[0].ScheduledAt), list[0].ScheduledAt.String())
}

func TestGenerateSingleOrganization(t *testing.T) {
	e := setup(t)
	other := testutil.CreateOrganization(t, e.repos, func(o *models.Organization) { o.Name = "Other" })
	mine := testutil.CreateInvoice(t, e.repos, e.org.ID, e.user.ID, testutil.Day(2025, 11, 3))
	theirs := testutil.CreateInvoice(t, e.repos, other.ID, e.user.ID, testutil.Day(2025, 11, 3))

	admin := testutil.CreateUser(t, e.repos, e.org.ID, models.ROLE_ADMIN)
	orgID := e.org.ID
	report, err := e.gen.Generate(context.Background(), access.FromUser(admin), testutil.Day(2025, 11, 9), &orgID)
	require.NoError(t, err)

	require.Len(t, report.Organizations, 1)
	assert.Equal(t, 1, report.RemindersGenerated)
	assert.Len(t, e.reminders(t, mine), 1)
	assert.Empty(t, e.reminders(t, theirs))

	created, err := e.repos.Reminder.FindForStep(context.Background(), mine.ID, "reminder_1")
	require.NoError(t, err)
	require.NotNil(t, created.CreatorID)
	assert.Equal(t, admin.ID, *created.CreatorID)
}

func TestGenerateAccess(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.repos, e.org.ID, models.ROLE_ADMIN)
	orgID := e.org.ID
	day := testutil.Day(2025, 11, 9)

	_, err := e.gen.Generate(context.Background(), access.FromUser(admin), day, nil)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = e.gen.Generate(context.Background(), access.FromUser(e.user), day, &orgID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestUnknownOrganizationIsReported(t *testing.T) {
	e := setup(t)
	missing := uint(9999)

	report, err := e.gen.Generate(context.Background(), access.System(), testutil.Day(2025, 11, 9), &missing)
	require.NoError(t, err)
	assert.False(t, report.Success)
	require.Len(t, report.Organizations, 1)
	assert.NotEmpty(t, report.Organizations[0].Error)
}
