package main

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/JonasWeber/NomadBase/app/controllers"
	"github.com/JonasWeber/NomadBase/internal/pkg/billing"
	"github.com/JonasWeber/NomadBase/internal/pkg/database"
	"github.com/JonasWeber/NomadBase/internal/pkg/env"
	"github.com/JonasWeber/NomadBase/internal/pkg/reconcile"
	"github.com/JonasWeber/NomadBase/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

// NewApplication builds the fiber app with all dependencies constructed once
// and injected down: store handle, redis client, billing config, service,
// controllers. Nothing acquires connections lazily per request.
func NewApplication() *fiber.App {
	env.SetupEnvFile()

	db, err := database.Connect()
	if err != nil {
		log.Fatalf("[Startup] %v", err)
	}

	cfg, err := billing.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("[Startup] %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
	})
	queue := reconcile.NewQueue(redisClient)

	stripeClient := billing.NewStripeClient(cfg.APIKey)
	svc := billing.NewServiceFromDB(db, stripeClient, queue)

	billingController := controllers.NewBillingController(svc, cfg)
	adminController := controllers.NewAdminBillingController(svc, queue)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20, // webhook payloads are small; 1 MiB is generous
	})

	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	router.InstallRouter(app,
		router.NewHttpRouter(billingController),
		router.NewApiRouter(adminController, env.GetEnv("ADMIN_API_TOKEN", "")),
	)

	return app
}
