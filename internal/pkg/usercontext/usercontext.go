package usercontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/access"
)

// SetUser stores the authenticated user on the request.
func SetUser(c *fiber.Ctx, u *models.User) {
	c.Locals(KeyActor, access.FromUser(u))
	c.Locals(KeyUserID, u.ID)
}

// Actor returns the authenticated actor of the request.
func Actor(c *fiber.Ctx) (access.Actor, bool) {
	a, ok := c.Locals(KeyActor).(access.Actor)
	return a, ok
}

// GetUserID returns the current user's ID, or 0 if not authenticated
func GetUserID(c *fiber.Ctx) uint {
	if id, ok := c.Locals(KeyUserID).(uint); ok {
		return id
	}
	return 0
}
