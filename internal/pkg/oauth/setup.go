// Package oauth wires the Google consent flow that connects an
// organization's Gmail mailbox.
package oauth

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/middleware/session"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
	gothfiber "github.com/shareed2k/goth_fiber"
	"google.golang.org/api/gmail/v1"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/cache"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/env"
)

const ProviderGoogle = "google"

// CallbackURL is where Google returns after consent.
func CallbackURL() string {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		base = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}
	return base + "/auth/google/callback"
}

// Setup registers the Google provider and the Redis backed OAuth state store.
// It is safe to call multiple times; providers will just be re-registered.
func Setup() {
	provider := google.New(
		env.GetEnv("GOOGLE_KEY", ""),
		env.GetEnv("GOOGLE_SECRET", ""),
		CallbackURL(),
		"email", gmail.GmailSendScope,
	)
	// a refresh token is only issued for offline access with forced consent
	provider.SetAccessType("offline")
	provider.SetPrompt("consent")
	goth.UseProviders(provider)

	// OAuth state via Redis, using same connection as the cache (separate DB)
	host, port := "127.0.0.1", 6379
	var username, password string
	if cacheClient := cache.GetClient(); cacheClient != nil {
		cacheOpts := cacheClient.Options()
		username, password = cacheOpts.Username, cacheOpts.Password
		if cacheOpts.Addr != "" {
			if h, p, err := net.SplitHostPort(cacheOpts.Addr); err == nil {
				host = h
				if parsed, e := strconv.Atoi(p); e == nil {
					port = parsed
				}
			} else {
				host = cacheOpts.Addr
			}
		}
	}

	gothfiber.SessionStore = session.New(session.Config{
		Storage: redisstorage.New(redisstorage.Config{
			Host:     host,
			Port:     port,
			Username: username,
			Password: password,
			Database: env.GetInt("OAUTH_SESSION_DB", 2),
			Reset:    false,
		}),
		KeyLookup:      "cookie:" + gothic.SessionName,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   !env.IsDev(),
		Expiration:     time.Hour,
	})
}
