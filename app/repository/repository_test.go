package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/app/repository"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/testutil"
)

func TestOrganizationStepsAreStoredSorted(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	org := testutil.CreateOrganization(t, repos)

	steps := testutil.DefaultSteps()
	steps[0], steps[2] = steps[2], steps[0]
	require.NoError(t, repos.Organization.ReplaceSteps(ctx, org.ID, steps))

	loaded, err := repos.Organization.GetByID(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 3)
	for i := 1; i < len(loaded.Steps); i++ {
		assert.Less(t, loaded.Steps[i-1].DelayDays, loaded.Steps[i].DelayDays)
	}
}

func TestReplaceStepsRejectsDuplicateDelaysWithoutTouchingLadder(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	org := testutil.CreateOrganization(t, repos)

	steps := testutil.DefaultSteps()
	steps[1].DelayDays = 7
	err := repos.Organization.ReplaceSteps(ctx, org.ID, steps)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	loaded, err := repos.Organization.GetByID(ctx, org.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Steps, 3)
}

func TestReplaceStepsUnknownOrganization(t *testing.T) {
	repos := testutil.NewRepositories(t)
	err := repos.Organization.ReplaceSteps(context.Background(), 999, testutil.DefaultSteps())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConnectMailCredentialKeepsRefreshTokenWhenOmitted(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	org := testutil.CreateOrganization(t, repos)
	testutil.ConnectMail(t, repos, org.ID)

	require.NoError(t, repos.Organization.UpdateMailCredentialStatus(ctx, org.ID, models.MailCredentialReauthRequired))
	require.NoError(t, repos.Organization.ConnectMailCredential(ctx, org.ID, repository.MailCredential{
		Provider:    models.MailProviderGoogle,
		AccessToken: "second-access",
	}))

	loaded, err := repos.Organization.GetByID(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "second-access", loaded.MailAccessToken)
	assert.Equal(t, "refresh-token", loaded.MailRefreshToken)
	assert.Equal(t, models.MailCredentialConnected, loaded.MailCredentialStatus)
	assert.True(t, loaded.HasMailCredential())
}

func TestListEligibleForRemindersFiltersStatuses(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	org := testutil.CreateOrganization(t, repos)
	due := testutil.Day(2025, 11, 3)

	eligible := testutil.CreateInvoice(t, repos, org.ID, 1, due)
	partial := testutil.CreateInvoice(t, repos, org.ID, 1, due, func(i *models.Invoice) { i.PaymentStatus = models.PaymentStatusPartial })
	testutil.CreateInvoice(t, repos, org.ID, 1, due, func(i *models.Invoice) { i.PaymentStatus = models.PaymentStatusPaid })
	testutil.CreateInvoice(t, repos, org.ID, 1, due, func(i *models.Invoice) { i.PaymentStatus = models.PaymentStatusPendingPayment })
	testutil.CreateInvoice(t, repos, org.ID, 1, due, func(i *models.Invoice) { i.SendStatus = models.SendStatusPending })
	testutil.CreateInvoice(t, repos, org.ID, 1, due, func(i *models.Invoice) { i.ReminderStatus = models.ReminderStatusManualFollowup })

	other := testutil.CreateOrganization(t, repos)
	testutil.CreateInvoice(t, repos, other.ID, 1, due)

	invoices, err := repos.Invoice.ListEligibleForReminders(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, eligible.ID, invoices[0].ID)
	assert.Equal(t, partial.ID, invoices[1].ID)
}

func TestFindForStepIgnoresDeletedReminders(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repos := repository.NewRepositories(db)
	org := testutil.CreateOrganization(t, repos)
	inv := testutil.CreateInvoice(t, repos, org.ID, 1, testutil.Day(2025, 11, 3))

	found, err := repos.Reminder.FindForStep(ctx, inv.ID, "reminder_1")
	require.NoError(t, err)
	assert.Nil(t, found)

	r := testutil.CreateReminder(t, repos, inv, "reminder_1", models.ChannelEmail, time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC))
	found, err = repos.Reminder.FindForStep(ctx, inv.ID, "reminder_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, r.ID, found.ID)
	assert.Equal(t, "Invoice "+inv.Number, found.Payload().Subject)

	require.NoError(t, db.Delete(&models.Reminder{}, r.ID).Error)
	found, err = repos.Reminder.FindForStep(ctx, inv.ID, "reminder_1")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestReminderListings(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	org := testutil.CreateOrganization(t, repos)
	due := testutil.Day(2025, 11, 3)
	mine := testutil.CreateInvoice(t, repos, org.ID, 11, due)
	theirs := testutil.CreateInvoice(t, repos, org.ID, 12, due)
	at := time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC)

	pending := testutil.CreateReminder(t, repos, mine, "reminder_1", models.ChannelEmail, at)
	testutil.CreateReminder(t, repos, mine, "reminder_2", models.ChannelEmail, at.Add(time.Hour), func(r *models.Reminder) { r.IsPaused = true })
	done := testutil.CreateReminder(t, repos, theirs, "reminder_1", models.ChannelEmail, at, func(r *models.Reminder) {
		r.CompletionStatus = models.CompletionCompleted
	})

	upcoming, err := repos.Reminder.ListUpcoming(ctx, repository.ReminderFilter{OrganizationID: org.ID})
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, pending.ID, upcoming[0].ID)

	history, err := repos.Reminder.ListHistory(ctx, repository.ReminderFilter{OrganizationID: org.ID})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, done.ID, history[0].ID)

	creator := uint(12)
	history, err = repos.Reminder.ListHistory(ctx, repository.ReminderFilter{OrganizationID: org.ID, CreatorID: &creator})
	require.NoError(t, err)
	assert.Len(t, history, 1)

	creator = 11
	history, err = repos.Reminder.ListHistory(ctx, repository.ReminderFilter{OrganizationID: org.ID, CreatorID: &creator})
	require.NoError(t, err)
	assert.Empty(t, history)

	paid := testutil.CreateInvoice(t, repos, org.ID, 11, due, func(i *models.Invoice) { i.PaymentStatus = models.PaymentStatusPaid })
	testutil.CreateReminder(t, repos, paid, "reminder_1", models.ChannelEmail, at)

	due2, err := repos.Reminder.ListDueEmail(ctx, org.ID, at)
	require.NoError(t, err)
	require.Len(t, due2, 1)
	assert.Equal(t, pending.ID, due2[0].ID)

	none, err := repos.Reminder.ListDueEmail(ctx, org.ID, at.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	org := testutil.CreateOrganization(t, repos)
	inv := testutil.CreateInvoice(t, repos, org.ID, 1, testutil.Day(2025, 11, 3))

	boom := errors.New("boom")
	err := repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Invoice.UpdateReminderProgress(ctx, inv.ID, "reminder_1", testutil.Day(2025, 11, 10)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	loaded, err := repos.Invoice.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStatusNone, loaded.ReminderStatus)
	assert.Nil(t, loaded.LastReminderDate)
}

func TestUserByAPIKeyHash(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repos := repository.NewRepositories(db)
	org := testutil.CreateOrganization(t, repos)
	user := testutil.CreateUser(t, repos, org.ID, models.ROLE_ADMIN)

	raw, hash, err := models.GenerateAPIKey()
	require.NoError(t, err)
	require.NoError(t, db.Model(user).Update("api_key_hash", hash).Error)

	found, err := repos.User.GetByAPIKeyHash(ctx, models.HashAPIKey(raw))
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = repos.User.GetByAPIKeyHash(ctx, models.HashAPIKey("wrong"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = repos.User.GetByAPIKeyHash(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
