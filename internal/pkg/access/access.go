// Package access decides which actor may mutate which organization, invoice
// and reminder. Checks run before any state is touched.
package access

import (
	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
)

type Role string

const (
	RoleAdmin      Role = models.ROLE_ADMIN
	RoleTechnician Role = models.ROLE_TECHNICIAN
	RoleSuperAdmin Role = models.ROLE_SUPERADMIN
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	UserID         uint
	OrganizationID uint
	Role           Role
}

// System is the actor used by the time triggers and the CLI.
func System() Actor {
	return Actor{Role: RoleSuperAdmin}
}

// FromUser builds an actor from a stored user.
func FromUser(u *models.User) Actor {
	return Actor{UserID: u.ID, OrganizationID: u.OrganizationID, Role: Role(u.Role)}
}

func (a Actor) IsSystem() bool {
	return a.UserID == 0 && a.Role == RoleSuperAdmin
}

func (a Actor) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}

// UserRef returns the user id for audit records, nil for the system actor.
func (a Actor) UserRef() *uint {
	if a.UserID == 0 {
		return nil
	}
	id := a.UserID
	return &id
}

// CanManageOrganization allows super-admins and admins of the organization.
func CanManageOrganization(a Actor, orgID uint) error {
	switch a.Role {
	case RoleSuperAdmin:
		return nil
	case RoleAdmin:
		if a.OrganizationID == orgID {
			return nil
		}
	}
	return apperrors.Forbidden("user %d may not manage organization %d", a.UserID, orgID)
}

// CanControlInvoice allows organization admins and the technician who created the invoice.
// Ownership always follows the invoice creator, never the reminder creator.
func CanControlInvoice(a Actor, inv *models.Invoice) error {
	switch a.Role {
	case RoleSuperAdmin:
		return nil
	case RoleAdmin:
		if a.OrganizationID == inv.OrganizationID {
			return nil
		}
	case RoleTechnician:
		if a.OrganizationID == inv.OrganizationID && a.UserID != 0 && a.UserID == inv.CreatorID {
			return nil
		}
	}
	return apperrors.Forbidden("user %d may not act on invoice %d", a.UserID, inv.ID)
}

// RequireSuperAdmin guards cross-organization operations.
func RequireSuperAdmin(a Actor) error {
	if a.Role == RoleSuperAdmin {
		return nil
	}
	return apperrors.Forbidden("operation requires a super-admin")
}

// CanTriggerBatch guards generate and send-pending runs. A nil scope means
// all organizations and needs a super-admin; a single organization may also
// be run by its admins.
func CanTriggerBatch(a Actor, orgID *uint) error {
	if orgID == nil {
		return RequireSuperAdmin(a)
	}
	return CanManageOrganization(a, *orgID)
}

// ListingScope returns the invoice creator filter for reminder listings:
// nil for admins, the caller's own id for technicians.
func ListingScope(a Actor, orgID uint) (*uint, error) {
	switch a.Role {
	case RoleSuperAdmin:
		return nil, nil
	case RoleAdmin:
		if a.OrganizationID == orgID {
			return nil, nil
		}
	case RoleTechnician:
		if a.OrganizationID == orgID && a.UserID != 0 {
			id := a.UserID
			return &id, nil
		}
	}
	return nil, apperrors.Forbidden("user %d may not view organization %d", a.UserID, orgID)
}
