package credential

import (
	"time"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/env"
)

const (
	DefaultTokenURL         = "https://oauth2.googleapis.com/token"
	DefaultRefreshThreshold = 10 * time.Minute
	DefaultLockTTL          = 30 * time.Second
	DefaultHTTPTimeout      = 15 * time.Second
)

// Config holds the OAuth client used to refresh organization mail tokens.
type Config struct {
	ClientID         string
	ClientSecret     string
	TokenURL         string
	RefreshThreshold time.Duration
	LockTTL          time.Duration
	HTTPTimeout      time.Duration
}

// LoadConfig reads the Google OAuth client from the environment.
func LoadConfig() (Config, error) {
	cfg := Config{
		ClientID:         env.GetEnv("GOOGLE_KEY", ""),
		ClientSecret:     env.GetEnv("GOOGLE_SECRET", ""),
		TokenURL:         env.GetEnv("GOOGLE_TOKEN_URL", DefaultTokenURL),
		RefreshThreshold: env.GetDuration("MAIL_TOKEN_REFRESH_THRESHOLD", DefaultRefreshThreshold),
		LockTTL:          env.GetDuration("MAIL_TOKEN_LOCK_TTL", DefaultLockTTL),
		HTTPTimeout:      env.GetDuration("MAIL_HTTP_TIMEOUT", DefaultHTTPTimeout),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return apperrors.Validation("GOOGLE_KEY and GOOGLE_SECRET are required")
	}
	if c.TokenURL == "" {
		return apperrors.Validation("token url is required")
	}
	if c.RefreshThreshold <= 0 || c.LockTTL <= 0 || c.HTTPTimeout <= 0 {
		return apperrors.Validation("refresh threshold, lock ttl and http timeout must be positive")
	}
	return nil
}
