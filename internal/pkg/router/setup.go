package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/InvoiceFox/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter registers the OAuth connect routes and the API.
func InstallRouter(app *fiber.App, api *controllers.API) {
	setup(app, NewHttpRouter(api), NewApiRouter(api))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
