package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Eziox-Development/eziox-web-sub001/app/repository"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/billing"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/cache"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/database"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/env"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/mail"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/router"
)

func main() {
	app := NewApplication()

	// Shut the sweeper down cleanly before the server exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		billing.GetSweeper().Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	provider, err := billing.NewStripeProviderFromEnv()
	if err != nil {
		fiberlog.Warnf("Billing provider not configured: %v", err)
	}
	billing.Initialize(repos, provider, mail.SMTP{})
	billing.GetSweeper().Start()

	app := fiber.New(fiber.Config{
		AppName: "Eziox",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
