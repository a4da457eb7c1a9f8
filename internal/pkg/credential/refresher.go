package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
)

// Token is the result of one refresh grant.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Token, error)
}

// OAuth2Refresher runs the refresh_token grant against an OAuth2 token endpoint.
type OAuth2Refresher struct {
	config *oauth2.Config
	client *http.Client
}

func NewOAuth2Refresher(cfg Config) *OAuth2Refresher {
	return &OAuth2Refresher{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, fmt.Errorf("%w: no refresh token stored", apperrors.ErrCredentialInvalid)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	// an expired token forces the source to hit the endpoint
	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Token{}, classify(err)
	}

	out := Token{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry.UTC()}
	if tok.RefreshToken != refreshToken {
		out.RefreshToken = tok.RefreshToken
	}
	if tok.Expiry.IsZero() {
		// providers that omit expires_in get a conservative hour
		out.ExpiresAt = time.Now().UTC().Add(time.Hour)
	}
	return out, nil
}

// classify maps provider rejections onto ErrCredentialInvalid and everything else onto ErrTransient.
func classify(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_client" || re.ErrorCode == "unauthorized_client" {
			return fmt.Errorf("%w: %s", apperrors.ErrCredentialInvalid, re.ErrorCode)
		}
		if re.Response != nil {
			switch code := re.Response.StatusCode; {
			case code == http.StatusBadRequest || code == http.StatusUnauthorized:
				return fmt.Errorf("%w: token endpoint returned %d", apperrors.ErrCredentialInvalid, code)
			case code >= 500 || code == http.StatusTooManyRequests:
				return fmt.Errorf("%w: token endpoint returned %d", apperrors.ErrTransient, code)
			}
		}
	}
	return fmt.Errorf("%w: refresh token: %v", apperrors.ErrTransient, err)
}
