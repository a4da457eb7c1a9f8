package controllers

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/app/repository"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/access"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/oauth"
)

var errConnectUnavailable = apperrors.Precondition("mailbox connect needs the cache server")

// HandleStartMailConnect issues a single use link that starts the Google
// consent flow for the organization's mailbox.
func (a *API) HandleStartMailConnect(c *fiber.Ctx) error {
	orgID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	actor := currentActor(c)
	if err := access.CanManageOrganization(actor, orgID); err != nil {
		return respondError(c, err)
	}
	if a.Connect == nil {
		return respondError(c, errConnectUnavailable)
	}
	if _, err := a.Repos.Organization.GetByID(c.UserContext(), orgID); err != nil {
		return respondError(c, err)
	}

	state, err := a.Connect.Issue(c.UserContext(), oauth.ConnectRequest{OrganizationID: orgID, UserID: actor.UserID})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"url":        "/auth/" + oauth.ProviderGoogle + "?state=" + url.QueryEscape(state),
		"expires_in": int(oauth.ConnectTTL.Seconds()),
	})
}

// HandleOAuthBegin redirects to the provider. Only connect links carry a state.
func (a *API) HandleOAuthBegin(c *fiber.Ctx) error {
	if c.Params("provider") != oauth.ProviderGoogle {
		return c.Status(fiber.StatusNotFound).SendString("unknown provider")
	}
	if strings.TrimSpace(c.Query("state")) == "" {
		return c.Status(fiber.StatusBadRequest).SendString("missing connect state")
	}
	return gothfiber.BeginAuthHandler(c)
}

// HandleOAuthCallback completes the provider flow and stores the mailbox
// tokens on the organization the connect link was issued for.
func (a *API) HandleOAuthCallback(c *fiber.Ctx) error {
	u, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("OAuth failed: %v", err))
	}

	if a.Connect == nil {
		return respondError(c, errConnectUnavailable)
	}
	req, err := a.Connect.Consume(c.UserContext(), c.Query("state"))
	if err != nil {
		return respondError(c, err)
	}
	if u.RefreshToken == "" {
		return respondError(c, apperrors.Validation("google did not return a refresh token, revoke access and connect again"))
	}

	cred := repository.MailCredential{
		Provider:      models.MailProviderGoogle,
		SenderAddress: u.Email,
		AccessToken:   u.AccessToken,
		RefreshToken:  u.RefreshToken,
	}
	if !u.ExpiresAt.IsZero() {
		exp := u.ExpiresAt.UTC()
		cred.ExpiresAt = &exp
	}

	ctx := c.UserContext()
	err = a.Repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Organization.ConnectMailCredential(ctx, req.OrganizationID, cred); err != nil {
			return err
		}
		var userID *uint
		if req.UserID != 0 {
			userID = &req.UserID
		}
		return tx.Event.Append(ctx, &models.Event{
			OrganizationID: req.OrganizationID,
			UserID:         userID,
			Type:           models.EventMailCredentialAttached,
			Metadata:       map[string]any{"provider": cred.Provider, "sender": cred.SenderAddress},
		})
	})
	if err != nil {
		return respondError(c, err)
	}

	log.Infof("[OAuth] Organization %d connected mailbox %s", req.OrganizationID, u.Email)
	return c.JSON(fiber.Map{
		"success":         true,
		"organization_id": req.OrganizationID,
		"sender":          u.Email,
	})
}
