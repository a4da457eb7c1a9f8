package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/access"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
)

type stepsRequest struct {
	Steps []models.ReminderStep `json:"steps"`
}

// HandleGetOrganizationSteps returns the reminder ladder of an organization.
func (a *API) HandleGetOrganizationSteps(c *fiber.Ctx) error {
	orgID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	actor := currentActor(c)
	if actor.OrganizationID != orgID && !actor.IsSuperAdmin() {
		return respondError(c, apperrors.Forbidden("user %d may not view organization %d", actor.UserID, orgID))
	}

	org, err := a.Repos.Organization.GetByID(c.UserContext(), orgID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "steps": org.Steps})
}

// HandleReplaceOrganizationSteps stores a new ladder. Steps are sorted by delay.
func (a *API) HandleReplaceOrganizationSteps(c *fiber.Ctx) error {
	orgID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := access.CanManageOrganization(currentActor(c), orgID); err != nil {
		return respondError(c, err)
	}

	var req stepsRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, invalidBody(err))
	}
	if err := a.Repos.Organization.ReplaceSteps(c.UserContext(), orgID, req.Steps); err != nil {
		return respondError(c, err)
	}

	org, err := a.Repos.Organization.GetByID(c.UserContext(), orgID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "count": len(org.Steps), "steps": org.Steps})
}

// HandleUpdateReminderSettings stores send time, time zone and the auto-send switch.
func (a *API) HandleUpdateReminderSettings(c *fiber.Ctx) error {
	orgID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := access.CanManageOrganization(currentActor(c), orgID); err != nil {
		return respondError(c, err)
	}

	var settings models.ReminderSettings
	if err := c.BodyParser(&settings); err != nil {
		return respondError(c, invalidBody(err))
	}
	if err := a.Repos.Organization.UpdateReminderSettings(c.UserContext(), orgID, settings); err != nil {
		return respondError(c, err)
	}

	org, err := a.Repos.Organization.GetByID(c.UserContext(), orgID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":            true,
		"reminder_send_time": org.ReminderSendTime,
		"timezone":           org.Timezone,
		"auto_send_enabled":  org.AutoSendEnabled,
	})
}
