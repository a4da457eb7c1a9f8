package controllers

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/InvoiceFox/app/repository"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/access"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/dispatch"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/oauth"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/reminder"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/scheduler"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/usercontext"
)

var validate = validator.New()

// API holds the engine services behind the HTTP handlers.
type API struct {
	Repos      *repository.Repositories
	Reminders  *reminder.Service
	Generator  *scheduler.Generator
	Dispatcher *dispatch.Dispatcher
	Connect    oauth.ConnectStore
}

// currentActor returns the authenticated actor. The zero actor fails every access check.
func currentActor(c *fiber.Ctx) access.Actor {
	actor, _ := usercontext.Actor(c)
	return actor
}

func respondError(c *fiber.Ctx, err error) error {
	status := apperrors.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s failed for user %d: %v", c.Method(), c.Path(), usercontext.GetUserID(c), err)
	}
	return c.Status(status).JSON(fiber.Map{"error": apperrors.Code(err), "message": err.Error()})
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Validation("invalid %s", name)
	}
	return uint(id), nil
}

func optionalQueryID(c *fiber.Ctx, name string) (*uint, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return nil, apperrors.Validation("invalid %s", name)
	}
	v := uint(id)
	return &v, nil
}

func invalidBody(err error) error {
	return apperrors.Validation("invalid request body: %v", err)
}

// parseBody decodes and validates a JSON request body.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return invalidBody(err)
	}
	if err := validate.Struct(dst); err != nil {
		return apperrors.Validation("%v", err)
	}
	return nil
}
