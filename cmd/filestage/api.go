package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dukex/filestage/pkg/web"
)

type API struct {
	logger    *slog.Logger
	downloads web.Downloads
	app       *fiber.App
}

func NewAPI(logger *slog.Logger, downloads web.Downloads) *API {
	return &API{
		logger:    logger,
		downloads: downloads,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.downloads, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("filestage")
	})

	e := app.Group("/executions")
	e.Get("/:id/files", handlers.GetExecutionFiles)
	e.Get("/:id/inline-images", handlers.GetInlineImages)

	app.Get(web.ResultFilesPrefix+"*", handlers.DownloadResultFile)

	return app
}

// Start serves the API until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	a.app = a.App()

	errs := make(chan error, 1)

	go func() {
		errs <- a.app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "API listening", "port", port)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "Shutting down API")

		return a.app.Shutdown()
	}
}
