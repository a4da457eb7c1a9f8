package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/reminder"
)

type rescheduleRequest struct {
	ScheduledAt string `json:"scheduled_at" validate:"required"`
}

type contentRequest struct {
	Subject string `json:"subject" validate:"required,max=255"`
	Body    string `json:"body" validate:"required,max=10000"`
}

type phoneOutcomeRequest struct {
	Outcome string `json:"outcome" validate:"required"`
	Notes   string `json:"notes" validate:"max=5000"`
}

type bulkSendRequest struct {
	IDs []uint `json:"ids" validate:"required,min=1,max=100,dive,gt=0"`
}

// HandleListReminders returns the upcoming or history view of the caller's organization.
func (a *API) HandleListReminders(c *fiber.Ctx) error {
	actor := currentActor(c)

	view := reminder.View(c.Query("view", string(reminder.ViewUpcoming)))
	invoiceID, err := optionalQueryID(c, "invoice_id")
	if err != nil {
		return respondError(c, err)
	}
	orgID := actor.OrganizationID
	if actor.IsSuperAdmin() {
		requested, err := optionalQueryID(c, "organization_id")
		if err != nil {
			return respondError(c, err)
		}
		if requested != nil {
			orgID = *requested
		}
	}

	reminders, err := a.Reminders.List(c.UserContext(), actor, orgID, view, invoiceID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"view":      view,
		"count":     len(reminders),
		"reminders": reminders,
	})
}

// HandleReminderEvents returns the audit timeline of one reminder.
func (a *API) HandleReminderEvents(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	events, err := a.Reminders.Timeline(c.UserContext(), currentActor(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "count": len(events), "events": events})
}

func (a *API) HandlePauseReminder(c *fiber.Ctx) error {
	return a.execute(c, func(id uint) (*models.Reminder, error) {
		return a.Reminders.Pause(c.UserContext(), currentActor(c), id)
	})
}

func (a *API) HandleResumeReminder(c *fiber.Ctx) error {
	return a.execute(c, func(id uint) (*models.Reminder, error) {
		return a.Reminders.Resume(c.UserContext(), currentActor(c), id)
	})
}

// HandleRescheduleReminder moves a pending reminder to an RFC 3339 instant.
func (a *API) HandleRescheduleReminder(c *fiber.Ctx) error {
	var req rescheduleRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	at, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		return respondError(c, apperrors.Validation("scheduled_at must be RFC 3339"))
	}
	return a.execute(c, func(id uint) (*models.Reminder, error) {
		return a.Reminders.Reschedule(c.UserContext(), currentActor(c), id, at)
	})
}

func (a *API) HandleEditReminderContent(c *fiber.Ctx) error {
	var req contentRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	return a.execute(c, func(id uint) (*models.Reminder, error) {
		return a.Reminders.EditContent(c.UserContext(), currentActor(c), id, req.Subject, req.Body)
	})
}

func (a *API) HandlePhoneOutcome(c *fiber.Ctx) error {
	var req phoneOutcomeRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	outcome := models.PhoneOutcome(req.Outcome)
	if !outcome.Valid() {
		return respondError(c, apperrors.Validation("unknown phone outcome %q", req.Outcome))
	}
	return a.execute(c, func(id uint) (*models.Reminder, error) {
		return a.Reminders.CompletePhoneCall(c.UserContext(), currentActor(c), id, outcome, req.Notes)
	})
}

// HandleSendReminder delivers one email reminder immediately.
func (a *API) HandleSendReminder(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	out, err := a.Dispatcher.Dispatch(c.UserContext(), currentActor(c), id)
	if err != nil {
		return c.Status(apperrors.HTTPStatus(err)).JSON(fiber.Map{
			"success": false,
			"error":   apperrors.Code(err),
			"message": err.Error(),
			"outcome": out,
		})
	}
	return c.JSON(fiber.Map{"success": true, "outcome": out})
}

// HandleBulkSend delivers the given reminders and reports each outcome.
func (a *API) HandleBulkSend(c *fiber.Ctx) error {
	var req bulkSendRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	outcomes, err := a.Dispatcher.DispatchMany(c.UserContext(), currentActor(c), req.IDs)
	if err != nil {
		return respondError(c, err)
	}

	sent := 0
	for _, o := range outcomes {
		if o.Success {
			sent++
		}
	}
	return c.JSON(fiber.Map{
		"success":  sent == len(outcomes),
		"sent":     sent,
		"failed":   len(outcomes) - sent,
		"outcomes": outcomes,
	})
}

func (a *API) execute(c *fiber.Ctx, op func(id uint) (*models.Reminder, error)) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	r, err := op(id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "reminder": r})
}
