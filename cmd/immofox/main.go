package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/MarkusWeidner/ImmoFox/app/repository"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/cache"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/database"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/env"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/metrics/counter"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/notify"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/plansweep"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/router"
)

func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	app := fiber.New(fiber.Config{
		BodyLimit: 10485760, // 10 MiB, JSON only
	})
	app.Use(recover.New(), logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// ROUTER
	router.InstallRouter(app)

	// background workers: sweeps, outbox delivery, counter flush
	manager := plansweep.GetManager()
	manager.Start()
	deliverer := notify.NewDeliverer(repository.GetGlobalRepositories().Notification, database.GetDB())
	deliverer.Start()
	counter.StartFlusher(5 * time.Minute)

	// graceful stop: finish running work before exiting
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		manager.Stop()
		deliverer.Stop()
		counter.StopFlusher()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}
