// Package mail builds reminder emails and hands them to the organization's
// mailbox provider.
package mail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
)

// Sender delivers a message with the organization's OAuth access token and
// returns the provider message id. Errors wrap ErrTransient,
// ErrCredentialInvalid or ErrPermanent.
type Sender interface {
	Send(ctx context.Context, accessToken string, msg *Message) (string, error)
}

// GmailSender sends through the Gmail REST API as the authorized user.
type GmailSender struct {
	endpoint string
	timeout  time.Duration
	now      func() time.Time
}

type GmailOption func(*GmailSender)

// WithEndpoint points the client at another base URL, e.g. a test server.
func WithEndpoint(url string) GmailOption {
	return func(g *GmailSender) { g.endpoint = url }
}

func NewGmailSender(timeout time.Duration, opts ...GmailOption) *GmailSender {
	g := &GmailSender{timeout: timeout, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GmailSender) Send(ctx context.Context, accessToken string, msg *Message) (string, error) {
	raw, err := msg.Build(g.now())
	if err != nil {
		return "", err
	}

	httpClient := &http.Client{
		Timeout: g.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   http.DefaultTransport,
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("create gmail client: %w", err)
	}

	sent, err := svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return "", Classify(err)
	}
	return sent.Id, nil
}

// Classify maps a provider or transport error onto a delivery error kind.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%w: gmail rejected the access token: %s", apperrors.ErrCredentialInvalid, gerr.Message)
		case gerr.Code == http.StatusForbidden && rateLimited(gerr):
			return fmt.Errorf("%w: gmail rate limit: %s", apperrors.ErrTransient, gerr.Message)
		case gerr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: gmail denied access: %s", apperrors.ErrCredentialInvalid, gerr.Message)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return fmt.Errorf("%w: gmail returned %d: %s", apperrors.ErrTransient, gerr.Code, gerr.Message)
		default:
			return fmt.Errorf("%w: gmail returned %d: %s", apperrors.ErrPermanent, gerr.Code, gerr.Message)
		}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	// network failures and timeouts
	return fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
}

func rateLimited(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}
