package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/access"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/usercontext"
)

// RequireActor rejects requests that did not pass API key authentication.
func RequireActor(c *fiber.Ctx) error {
	if _, ok := usercontext.Actor(c); !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "authentication required",
		})
	}
	return c.Next()
}

// RequireRole lets only the given roles through. Superadmins always pass.
func RequireRole(roles ...access.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := usercontext.Actor(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "authentication required"})
		}
		if actor.IsSuperAdmin() {
			return c.Next()
		}
		for _, r := range roles {
			if actor.Role == r {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "insufficient role"})
	}
}
