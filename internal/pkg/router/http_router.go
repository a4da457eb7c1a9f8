package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/InvoiceFox/app/controllers"
)

// HttpRouter serves the browser side of the mailbox connect flow.
type HttpRouter struct {
	api *controllers.API
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	auth := app.Group("/auth")
	auth.Get("/:provider", h.api.HandleOAuthBegin)
	auth.Get("/:provider/callback", h.api.HandleOAuthCallback)
}

func NewHttpRouter(api *controllers.API) *HttpRouter {
	return &HttpRouter{api: api}
}
