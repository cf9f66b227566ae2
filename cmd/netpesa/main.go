package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/netpesa/netpesa/app/controllers"
	"github.com/netpesa/netpesa/internal/pkg/billing"
	"github.com/netpesa/netpesa/internal/pkg/env"
	"github.com/netpesa/netpesa/internal/pkg/kvstore"
	"github.com/netpesa/netpesa/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	store := kvstore.SetupRedis()

	app := fiber.New(fiber.Config{
		AppName:           "netpesa",
		EnablePrintRoutes: env.IsDev(),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	svc := billing.NewService(store)
	ctrl := controllers.NewPaymentController(svc)
	router.InstallRouter(app, ctrl, store)

	return app
}
