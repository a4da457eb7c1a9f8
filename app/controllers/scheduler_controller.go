package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/dateutil"
)

type generateRequest struct {
	Date           string `json:"date" validate:"required"`
	OrganizationID *uint  `json:"organization_id" validate:"omitempty,gt=0"`
}

type sendPendingRequest struct {
	Date           string `json:"date"`
	OrganizationID *uint  `json:"organization_id" validate:"omitempty,gt=0"`
}

// HandleGenerateReminders runs generation for a date, for all organizations or one.
func (a *API) HandleGenerateReminders(c *fiber.Ctx) error {
	var req generateRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	day, err := dateutil.Parse(req.Date)
	if err != nil {
		return respondError(c, apperrors.Validation("%v", err))
	}

	report, err := a.Generator.Generate(c.UserContext(), currentActor(c), day, req.OrganizationID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// HandleSendPending delivers due reminders of auto-send organizations. With a
// date, everything scheduled up to the end of that day is due; without one,
// everything scheduled up to now.
func (a *API) HandleSendPending(c *fiber.Ctx) error {
	var req sendPendingRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}
	}

	asOf := time.Now().UTC()
	if req.Date != "" {
		day, err := dateutil.Parse(req.Date)
		if err != nil {
			return respondError(c, apperrors.Validation("%v", err))
		}
		asOf = dateutil.EndOfDay(day)
	}

	report, err := a.Dispatcher.SendPending(c.UserContext(), currentActor(c), asOf, req.OrganizationID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}
