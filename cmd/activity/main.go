package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	natsadapter "github.com/samirrijal/parkpass/internal/adapters/nats"
	"github.com/samirrijal/parkpass/internal/core/usecases"
	"github.com/samirrijal/parkpass/internal/pkg/config"
	"github.com/samirrijal/parkpass/internal/pkg/logging"
	"github.com/samirrijal/parkpass/internal/pkg/metrics"
)

const durableName = "parkpass-activity"

// The activity consumer follows the session event stream and ranks the
// filters and parks users pick. Counts live in memory and in Prometheus.
func main() {
	cfg, err := config.Load("parkpass-activity")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker := usecases.NewActivityTracker(cfg.Session.Max, time.Duration(cfg.Session.TTL)*time.Second, slog.Default())

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer sub.Close()

	if err := sub.SubscribeSnapshots(ctx, durableName, tracker.Handle); err != nil {
		log.Fatalf("subscribe: %v", err)
	}
	slog.Info("consuming session events", "durable", durableName)

	app := fiber.New(fiber.Config{
		AppName:               "ParkPass Activity",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())
	app.Get("/v1/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/v1/activity", func(c *fiber.Ctx) error {
		n := c.QueryInt("limit", 10)
		if n <= 0 || n > 100 {
			n = 10
		}
		return c.JSON(fiber.Map{
			"filters": tracker.TopFilters(n),
			"parks":   tracker.TopParks(n),
		})
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("activity server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("received signal, shutting down activity consumer", "signal", sig.String())

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
}
