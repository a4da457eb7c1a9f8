// Package credential keeps organization mail access tokens valid. Refreshes
// are serialized per organization: singleflight inside the process and a
// short lived lock across processes. A caller that loses the lock waits for
// the winner's token instead of refreshing again.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/singleflight"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/cache"
)

// Store is the organization persistence the manager needs.
type Store interface {
	GetByID(ctx context.Context, id uint) (*models.Organization, error)
	UpdateMailToken(ctx context.Context, orgID uint, accessToken, refreshToken string, expiresAt time.Time) error
	UpdateMailCredentialStatus(ctx context.Context, orgID uint, status string) error
}

// Manager hands out access tokens that stay valid for at least the refresh threshold.
type Manager struct {
	store        Store
	refresher    Refresher
	locker       cache.Locker
	group        singleflight.Group
	threshold    time.Duration
	lockTTL      time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

func NewManager(cfg Config, store Store, refresher Refresher, locker cache.Locker, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		refresher:    refresher,
		locker:       locker,
		threshold:    cfg.RefreshThreshold,
		lockTTL:      cfg.LockTTL,
		pollInterval: 250 * time.Millisecond,
		now:          time.Now,
	}
	if m.threshold <= 0 {
		m.threshold = DefaultRefreshThreshold
	}
	if m.lockTTL <= 0 {
		m.lockTTL = DefaultLockTTL
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NeedsRefresh reports whether a token expiring at expiresAt must be refreshed at now.
func NeedsRefresh(expiresAt *time.Time, now time.Time, threshold time.Duration) bool {
	return expiresAt == nil || !expiresAt.After(now.Add(threshold))
}

// GetValidAccessToken returns the organization's access token, refreshing it first when needed.
func (m *Manager) GetValidAccessToken(ctx context.Context, orgID uint) (string, error) {
	org, err := m.store.GetByID(ctx, orgID)
	if err != nil {
		return "", err
	}
	if err := usable(org); err != nil {
		return "", err
	}
	if !NeedsRefresh(org.MailTokenExpiresAt, m.now(), m.threshold) {
		return org.MailAccessToken, nil
	}

	ch := m.group.DoChan(strconv.FormatUint(uint64(orgID), 10), func() (any, error) {
		// detached so one canceled caller does not fail the others sharing the call
		return m.refresh(context.WithoutCancel(ctx), orgID)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) refresh(ctx context.Context, orgID uint) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.lockTTL)
	defer cancel()

	release, ok, err := m.locker.TryLock(ctx, lockKey(orgID), m.lockTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
	}
	if !ok {
		return m.awaitRefresh(ctx, orgID)
	}
	defer release()

	// another process may have refreshed between our read and the lock
	org, err := m.store.GetByID(ctx, orgID)
	if err != nil {
		return "", err
	}
	if err := usable(org); err != nil {
		return "", err
	}
	if !NeedsRefresh(org.MailTokenExpiresAt, m.now(), m.threshold) {
		return org.MailAccessToken, nil
	}

	tok, err := m.refresher.Refresh(ctx, org.MailRefreshToken)
	if errors.Is(err, apperrors.ErrTransient) && ctx.Err() == nil {
		log.Warnf("[Credential] Refresh for organization %d failed, retrying once: %v", orgID, err)
		tok, err = m.refresher.Refresh(ctx, org.MailRefreshToken)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrCredentialInvalid) {
			m.markReauth(ctx, orgID, err)
		}
		return "", err
	}

	if err := m.store.UpdateMailToken(ctx, orgID, tok.AccessToken, tok.RefreshToken, tok.ExpiresAt); err != nil {
		return "", fmt.Errorf("persist refreshed token for organization %d: %w", orgID, err)
	}
	log.Infof("[Credential] Refreshed mail token for organization %d, valid until %s", orgID, tok.ExpiresAt.Format(time.RFC3339))
	return tok.AccessToken, nil
}

// awaitRefresh polls the store until the lock holder has stored a fresh token.
func (m *Manager) awaitRefresh(ctx context.Context, orgID uint) (string, error) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: waiting for concurrent token refresh of organization %d", apperrors.ErrTransient, orgID)
		case <-ticker.C:
		}

		org, err := m.store.GetByID(ctx, orgID)
		if err != nil {
			return "", err
		}
		if err := usable(org); err != nil {
			return "", err
		}
		if !NeedsRefresh(org.MailTokenExpiresAt, m.now(), m.threshold) {
			return org.MailAccessToken, nil
		}
	}
}

func (m *Manager) markReauth(ctx context.Context, orgID uint, cause error) {
	if err := m.store.UpdateMailCredentialStatus(ctx, orgID, models.MailCredentialReauthRequired); err != nil {
		log.Errorf("[Credential] Failed to mark organization %d for re-authorization: %v", orgID, err)
		return
	}
	log.Warnf("[Credential] Organization %d must reconnect its mailbox: %v", orgID, cause)
}

func usable(org *models.Organization) error {
	if !org.HasMailCredential() {
		return fmt.Errorf("%w: organization %d has no connected mailbox (status %s)", apperrors.ErrCredentialInvalid, org.ID, org.MailCredentialStatus)
	}
	return nil
}

func lockKey(orgID uint) string {
	return "mail_token:" + strconv.FormatUint(uint64(orgID), 10)
}
