package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/InvoiceFox/app/controllers"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/access"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/env"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/middleware"
)

type ApiRouter struct {
	api *controllers.API
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        env.GetInt("API_RATE_LIMIT", 120),
		Expiration: time.Minute,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware(h.api.Repos.User), middleware.RequireActor)
	admins := middleware.RequireRole(access.RoleAdmin)

	// batches
	v1.Post("/reminders/generate", admins, h.api.HandleGenerateReminders)
	v1.Post("/reminders/send-pending", admins, h.api.HandleSendPending)
	v1.Post("/reminders/bulk-send", admins, h.api.HandleBulkSend)

	// single reminders
	v1.Get("/reminders", h.api.HandleListReminders)
	v1.Get("/reminders/:id/events", h.api.HandleReminderEvents)
	v1.Post("/reminders/:id/pause", h.api.HandlePauseReminder)
	v1.Post("/reminders/:id/resume", h.api.HandleResumeReminder)
	v1.Post("/reminders/:id/send", h.api.HandleSendReminder)
	v1.Post("/reminders/:id/reschedule", h.api.HandleRescheduleReminder)
	v1.Patch("/reminders/:id/content", h.api.HandleEditReminderContent)
	v1.Post("/reminders/:id/phone-outcome", h.api.HandlePhoneOutcome)

	// organization settings
	v1.Get("/organizations/:id/steps", h.api.HandleGetOrganizationSteps)
	v1.Put("/organizations/:id/steps", admins, h.api.HandleReplaceOrganizationSteps)
	v1.Put("/organizations/:id/reminder-settings", admins, h.api.HandleUpdateReminderSettings)
	v1.Post("/organizations/:id/mail/connect", admins, h.api.HandleStartMailConnect)
}

func NewApiRouter(api *controllers.API) *ApiRouter {
	return &ApiRouter{api: api}
}
