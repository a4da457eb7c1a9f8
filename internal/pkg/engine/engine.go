// Package engine assembles the reminder services from configuration.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/InvoiceFox/app/controllers"
	"github.com/ManuelReschke/InvoiceFox/app/repository"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/blob"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/cache"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/credential"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/dispatch"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/mail"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/oauth"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/reminder"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/scheduler"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/trigger"
)

type Engine struct {
	Repos       *repository.Repositories
	Reminders   *reminder.Service
	Generator   *scheduler.Generator
	Dispatcher  *dispatch.Dispatcher
	Credentials *credential.Manager
	Triggers    *trigger.Manager
	Redis       *redis.Client
}

// New wires every service. Without a reachable Redis, locks stay process local.
func New(ctx context.Context, db *gorm.DB, redisClient *redis.Client) (*Engine, error) {
	credCfg, err := credential.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("mail credential config: %w", err)
	}
	triggerCfg, err := trigger.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("trigger config: %w", err)
	}

	if redisClient != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warnf("[Engine] Redis unavailable, using process local locks: %v", err)
			redisClient = nil
		}
	}

	var tokenLocker, deliveryLocker cache.Locker = cache.NewMemoryLocker(), cache.NewMemoryLocker()
	if redisClient != nil {
		tokenLocker = cache.NewRedisLocker(redisClient, "lock:")
		deliveryLocker = tokenLocker
	}

	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()
	reminders := reminder.NewService(repos)
	credentials := credential.NewManager(credCfg, repos.Organization, credential.NewOAuth2Refresher(credCfg), tokenLocker)

	opts := []dispatch.Option{dispatch.WithLocker(deliveryLocker)}
	blobCfg, err := blob.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("document storage config: %w", err)
	}
	if blobCfg.Enabled {
		docs, err := blob.NewClient(ctx, blobCfg)
		if err != nil {
			return nil, fmt.Errorf("document storage: %w", err)
		}
		opts = append(opts, dispatch.WithAttachments(docs))
	}

	e := &Engine{
		Repos:       repos,
		Reminders:   reminders,
		Generator:   scheduler.NewGenerator(repos),
		Dispatcher:  dispatch.NewDispatcher(repos, reminders, credentials, mail.NewGmailSender(credCfg.HTTPTimeout), opts...),
		Credentials: credentials,
		Redis:       redisClient,
	}

	var triggerOpts []trigger.Option
	if redisClient != nil {
		triggerOpts = append(triggerOpts, trigger.WithRedis(redisClient))
	}
	e.Triggers = trigger.NewManager(triggerCfg, e.Generator, e.Dispatcher, triggerOpts...)
	return e, nil
}

// API exposes the engine to the HTTP handlers. The mailbox connect flow needs Redis.
func (e *Engine) API() *controllers.API {
	api := &controllers.API{
		Repos:      e.Repos,
		Reminders:  e.Reminders,
		Generator:  e.Generator,
		Dispatcher: e.Dispatcher,
	}
	if e.Redis != nil {
		api.Connect = oauth.NewRedisConnectStore(e.Redis)
	}
	return api
}
