// Package dispatch delivers due email reminders through the organization's
// connected mailbox and commits every outcome through the reminder service.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/app/repository"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/access"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/blob"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/cache"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/mail"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/mailtemplate"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/reminder"
)

const deliveryLockTTL = 2 * time.Minute

// TokenSource returns a valid access token for an organization's mailbox.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, orgID uint) (string, error)
}

// AttachmentSource opens stored invoice documents.
type AttachmentSource interface {
	Open(ctx context.Context, key string, maxSize int64) (*blob.Object, error)
}

// Outcome is the result of one delivery attempt.
type Outcome struct {
	ReminderID uint   `json:"reminder_id"`
	Success    bool   `json:"success"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Dispatcher struct {
	repos       *repository.Repositories
	reminders   *reminder.Service
	tokens      TokenSource
	sender      mail.Sender
	attachments AttachmentSource
	locker      cache.Locker
}

type Option func(*Dispatcher)

// WithAttachments enables attaching the invoice PDF when the invoice has one.
func WithAttachments(src AttachmentSource) Option {
	return func(d *Dispatcher) { d.attachments = src }
}

// WithLocker shares the per reminder delivery lock across processes.
func WithLocker(l cache.Locker) Option {
	return func(d *Dispatcher) { d.locker = l }
}

func NewDispatcher(repos *repository.Repositories, reminders *reminder.Service, tokens TokenSource, sender mail.Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		repos:     repos,
		reminders: reminders,
		tokens:    tokens,
		sender:    sender,
		locker:    cache.NewMemoryLocker(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends one reminder now. Scheduling and the auto-send switch are
// ignored; every other precondition applies. A nil error means the reminder
// was delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, actor access.Actor, reminderID uint) (Outcome, error) {
	out := Outcome{ReminderID: reminderID}

	r, inv, err := d.load(ctx, reminderID)
	if err != nil {
		return fail(out, err)
	}
	out.Status = string(r.CompletionStatus)
	if err := access.CanControlInvoice(actor, inv); err != nil {
		return fail(out, err)
	}
	if err := deliverable(r, inv); err != nil {
		return fail(out, err)
	}

	release, ok, err := d.locker.TryLock(ctx, "dispatch:reminder:"+strconv.FormatUint(uint64(r.ID), 10), deliveryLockTTL)
	if err != nil {
		return fail(out, fmt.Errorf("%w: %v", apperrors.ErrTransient, err))
	}
	if !ok {
		return fail(out, apperrors.Precondition("reminder %d is already being delivered", r.ID))
	}
	defer release()

	// state may have moved between the first read and the lock
	r, inv, err = d.load(ctx, reminderID)
	if err != nil {
		return fail(out, err)
	}
	out.Status = string(r.CompletionStatus)
	if err := deliverable(r, inv); err != nil {
		return fail(out, err)
	}

	org, err := d.repos.Organization.GetByID(ctx, r.OrganizationID)
	if err != nil {
		return fail(out, err)
	}
	if !org.HasMailCredential() {
		return fail(out, fmt.Errorf("%w: organization %d has no connected mailbox", apperrors.ErrCredentialInvalid, org.ID))
	}

	if inv.ContactEmail == "" {
		return d.commit(ctx, actor, r, out, reminder.RecordDelivery{
			Result: reminder.DeliveryPermanent,
			Error:  "invoice has no contact email",
		})
	}

	token, err := d.tokens.GetValidAccessToken(ctx, org.ID)
	if err != nil {
		return d.handleSendError(ctx, actor, org, r, out, err)
	}

	msg, attachment, err := d.buildMessage(ctx, org, inv, r)
	if err != nil {
		return d.handleSendError(ctx, actor, org, r, out, err)
	}

	messageID, err := d.send(ctx, token, msg, attachment)
	if err != nil {
		return d.handleSendError(ctx, actor, org, r, out, err)
	}

	log.Infof("[Dispatch] Reminder %d for invoice %d delivered to %s", r.ID, inv.ID, inv.ContactEmail)
	return d.commit(ctx, actor, r, out, reminder.RecordDelivery{Result: reminder.DeliverySucceeded, MessageID: messageID})
}

func (d *Dispatcher) load(ctx context.Context, reminderID uint) (*models.Reminder, *models.Invoice, error) {
	r, err := d.repos.Reminder.GetByID(ctx, reminderID)
	if err != nil {
		return nil, nil, err
	}
	inv, err := d.repos.Invoice.GetByID(ctx, r.InvoiceID)
	if err != nil {
		return nil, nil, err
	}
	return r, inv, nil
}

func deliverable(r *models.Reminder, inv *models.Invoice) error {
	switch {
	case r.Channel != models.ChannelEmail:
		return apperrors.Precondition("reminder %d is a %s reminder", r.ID, r.Channel)
	case r.CompletionStatus != models.CompletionPending:
		return apperrors.Precondition("reminder %d is %s", r.ID, r.CompletionStatus)
	case r.IsPaused:
		return apperrors.Precondition("reminder %d is paused", r.ID)
	case inv.RemindersStopped():
		return apperrors.Precondition("invoice %d no longer takes reminders (payment %s, reminder status %s)", inv.ID, inv.PaymentStatus, inv.ReminderStatus)
	}
	return nil
}

// send makes the call and retries once on a transient failure.
func (d *Dispatcher) send(ctx context.Context, token string, msg *mail.Message, attachment []byte) (string, error) {
	attempt := func() (string, error) {
		if attachment != nil {
			msg.Attachment.Content = bytes.NewReader(attachment)
		}
		return d.sender.Send(ctx, token, msg)
	}

	id, err := attempt()
	if err != nil && apperrors.IsRetryable(err) && ctx.Err() == nil {
		log.Warnf("[Dispatch] Transient send failure, retrying once: %v", err)
		id, err = attempt()
	}
	return id, err
}

func (d *Dispatcher) buildMessage(ctx context.Context, org *models.Organization, inv *models.Invoice, r *models.Reminder) (*mail.Message, []byte, error) {
	data := r.Payload()
	subject, body := data.Subject, data.Body
	if subject == "" || body == "" {
		subject, body = mailtemplate.RenderOrDefault(subject, body, mailtemplate.KindStepReminder,
			mailtemplate.ContextFor(org, inv, r.ScheduledAt))
	}

	msg := &mail.Message{
		From:    org.MailSenderAddress,
		To:      inv.ContactEmail,
		Subject: subject,
		Body:    body,
	}

	content, contentType, err := d.loadAttachment(ctx, inv)
	if err != nil {
		return nil, nil, err
	}
	if content != nil {
		msg.Attachment = &mail.Attachment{Filename: inv.Number + ".pdf", ContentType: contentType}
	}
	return msg, content, nil
}

// loadAttachment reads the invoice PDF. A missing or oversized document is
// left out of the message instead of failing the delivery.
func (d *Dispatcher) loadAttachment(ctx context.Context, inv *models.Invoice) ([]byte, string, error) {
	if d.attachments == nil || inv.PDFKey == "" {
		return nil, "", nil
	}

	obj, err := d.attachments.Open(ctx, inv.PDFKey, mail.MaxAttachmentSize)
	if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrTooLarge) {
		log.Warnf("[Dispatch] Sending invoice %d without attachment: %v", inv.ID, err)
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	defer obj.Body.Close()

	content, err := io.ReadAll(io.LimitReader(obj.Body, mail.MaxAttachmentSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read attachment %s: %v", apperrors.ErrTransient, inv.PDFKey, err)
	}
	if len(content) > mail.MaxAttachmentSize {
		log.Warnf("[Dispatch] Sending invoice %d without attachment: document exceeds %d bytes", inv.ID, mail.MaxAttachmentSize)
		return nil, "", nil
	}
	return content, obj.ContentType, nil
}

func (d *Dispatcher) handleSendError(ctx context.Context, actor access.Actor, org *models.Organization, r *models.Reminder, out Outcome, err error) (Outcome, error) {
	switch {
	case errors.Is(err, apperrors.ErrCredentialInvalid):
		d.markCredentialInvalid(ctx, actor, org, r, err)
		return fail(out, err)
	case errors.Is(err, apperrors.ErrPermanent):
		return d.commit(ctx, actor, r, out, reminder.RecordDelivery{Result: reminder.DeliveryPermanent, Error: err.Error()})
	case errors.Is(err, context.Canceled):
		return fail(out, err)
	default:
		return d.commit(ctx, actor, r, out, reminder.RecordDelivery{Result: reminder.DeliveryTransient, Error: err.Error()})
	}
}

// commit records the delivery result. A failed delivery yields its error
// even when recording it succeeded.
func (d *Dispatcher) commit(ctx context.Context, actor access.Actor, r *models.Reminder, out Outcome, delivery reminder.RecordDelivery) (Outcome, error) {
	// record the attempt even if the caller gave up meanwhile
	updated, err := d.reminders.RecordDelivery(context.WithoutCancel(ctx), actor, r.ID, delivery)
	if err != nil {
		log.Errorf("[Dispatch] Failed to record %s delivery of reminder %d: %v", delivery.Result, r.ID, err)
		return fail(out, err)
	}
	out.Status = string(updated.CompletionStatus)

	switch delivery.Result {
	case reminder.DeliverySucceeded:
		out.Success = true
		return out, nil
	case reminder.DeliveryPermanent:
		log.Warnf("[Dispatch] Reminder %d failed permanently: %s", r.ID, delivery.Error)
		return fail(out, fmt.Errorf("%w: %s", apperrors.ErrPermanent, delivery.Error))
	default:
		log.Warnf("[Dispatch] Reminder %d stays pending after transient failure: %s", r.ID, delivery.Error)
		return fail(out, fmt.Errorf("%w: %s", apperrors.ErrTransient, delivery.Error))
	}
}

func (d *Dispatcher) markCredentialInvalid(ctx context.Context, actor access.Actor, org *models.Organization, r *models.Reminder, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := d.repos.Organization.UpdateMailCredentialStatus(ctx, org.ID, models.MailCredentialReauthRequired); err != nil {
		log.Errorf("[Dispatch] Failed to mark organization %d for re-authorization: %v", org.ID, err)
	}

	invoiceID, reminderID := r.InvoiceID, r.ID
	if err := d.repos.Event.Append(ctx, &models.Event{
		OrganizationID: org.ID,
		InvoiceID:      &invoiceID,
		ReminderID:     &reminderID,
		UserID:         actor.UserRef(),
		Type:           models.EventMailCredentialInvalid,
		Metadata:       map[string]any{"error": cause.Error()},
	}); err != nil {
		log.Errorf("[Dispatch] Failed to record credential failure for organization %d: %v", org.ID, err)
	}
	log.Warnf("[Dispatch] Mailbox of organization %d needs re-authorization, reminder %d stays pending", org.ID, r.ID)
}

func fail(out Outcome, err error) (Outcome, error) {
	out.Success = false
	out.Error = err.Error()
	return out, err
}
