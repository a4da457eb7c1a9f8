package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"gorm.io/gorm"
)

// organizationRepository implements the OrganizationRepository interface
type organizationRepository struct {
	db *gorm.DB
}

// NewOrganizationRepository creates a new organization repository instance
func NewOrganizationRepository(db *gorm.DB) OrganizationRepository {
	return &organizationRepository{db: db}
}

// Create creates a new organization together with its steps
func (r *organizationRepository) Create(ctx context.Context, org *models.Organization) error {
	steps, err := models.NormalizeSteps(org.Steps)
	if err != nil {
		return err
	}
	org.Steps = steps
	if org.MailCredentialStatus == "" {
		org.MailCredentialStatus = models.MailCredentialNone
	}
	if org.ReminderSendTime == "" {
		org.ReminderSendTime = models.DefaultReminderSendTime
	}
	return r.db.WithContext(ctx).Create(org).Error
}

// GetByID retrieves an organization with its steps sorted by delay
func (r *organizationRepository) GetByID(ctx context.Context, id uint) (*models.Organization, error) {
	var org models.Organization
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("delay_days ASC") }).
		First(&org, id).Error
	if err != nil {
		return nil, apperrors.FromDB(err, fmt.Sprintf("organization %d", id))
	}
	return &org, nil
}

// ListIDs returns all organization ids in ascending order
func (r *organizationRepository) ListIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Organization{}).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

// ListAutoSendIDs returns organizations that opted into automated delivery
func (r *organizationRepository) ListAutoSendIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Organization{}).
		Where("auto_send_enabled = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ReplaceSteps validates, sorts and stores a new ladder in one transaction
func (r *organizationRepository) ReplaceSteps(ctx context.Context, orgID uint, steps []models.ReminderStep) error {
	normalized, err := models.NormalizeSteps(steps)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureOrganization(tx, orgID); err != nil {
			return err
		}
		if err := tx.Where("organization_id = ?", orgID).Delete(&models.ReminderStep{}).Error; err != nil {
			return err
		}
		if len(normalized) == 0 {
			return nil
		}
		for i := range normalized {
			normalized[i].ID = 0
			normalized[i].OrganizationID = orgID
		}
		return tx.Create(&normalized).Error
	})
}

// UpdateReminderSettings stores send time, time zone and the auto-send switch
func (r *organizationRepository) UpdateReminderSettings(ctx context.Context, orgID uint, settings models.ReminderSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	db := r.db.WithContext(ctx)
	if err := ensureOrganization(db, orgID); err != nil {
		return err
	}
	return db.Model(&models.Organization{}).Where("id = ?", orgID).Updates(map[string]any{
		"reminder_send_time": settings.ReminderSendTime,
		"timezone":           settings.Timezone,
		"auto_send_enabled":  settings.AutoSendEnabled,
	}).Error
}

// ConnectMailCredential stores a freshly authorized mailbox and marks it connected
func (r *organizationRepository) ConnectMailCredential(ctx context.Context, orgID uint, cred MailCredential) error {
	updates := map[string]any{
		"mail_provider":          cred.Provider,
		"mail_sender_address":    cred.SenderAddress,
		"mail_access_token":      cred.AccessToken,
		"mail_token_expires_at":  cred.ExpiresAt,
		"mail_credential_status": models.MailCredentialConnected,
	}
	// providers only return a refresh token on the first consent
	if cred.RefreshToken != "" {
		updates["mail_refresh_token"] = cred.RefreshToken
	}
	db := r.db.WithContext(ctx)
	if err := ensureOrganization(db, orgID); err != nil {
		return err
	}
	return db.Model(&models.Organization{}).Where("id = ?", orgID).Updates(updates).Error
}

// UpdateMailToken persists the result of a token refresh
func (r *organizationRepository) UpdateMailToken(ctx context.Context, orgID uint, accessToken, refreshToken string, expiresAt time.Time) error {
	updates := map[string]any{
		"mail_access_token":     accessToken,
		"mail_token_expires_at": expiresAt.UTC(),
	}
	if refreshToken != "" {
		updates["mail_refresh_token"] = refreshToken
	}
	return r.db.WithContext(ctx).Model(&models.Organization{}).Where("id = ?", orgID).Updates(updates).Error
}

// UpdateMailCredentialStatus flips the credential status, e.g. to reauth_required
func (r *organizationRepository) UpdateMailCredentialStatus(ctx context.Context, orgID uint, status string) error {
	return r.db.WithContext(ctx).Model(&models.Organization{}).
		Where("id = ?", orgID).
		Update("mail_credential_status", status).Error
}

func ensureOrganization(db *gorm.DB, orgID uint) error {
	var count int64
	if err := db.Model(&models.Organization{}).Where("id = ?", orgID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperrors.NotFound("organization %d not found", orgID)
	}
	return nil
}
