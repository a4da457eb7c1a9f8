package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/cache"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/database"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/engine"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/env"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/oauth"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/router"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/usercontext"
)

func main() {
	app, eng := NewApplication()

	eng.Triggers.Start()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		eng.Triggers.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *engine.Engine) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	oauth.Setup()

	eng, err := engine.New(context.Background(), database.GetDB(), cache.GetClient())
	if err != nil {
		log.Fatalf("engine setup failed: %v", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), requestid.New(requestid.Config{ContextKey: usercontext.KeyRequestID}), logger.New())

	// ROUTER
	router.InstallRouter(app, eng.API())

	return app, eng
}
