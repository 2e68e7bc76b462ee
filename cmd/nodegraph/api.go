package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/nodegraph/pkg/metrics"
	"github.com/dukex/nodegraph/pkg/registry"
	"github.com/dukex/nodegraph/pkg/services"
	"github.com/dukex/nodegraph/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	sessions *services.Sessions
	registry *registry.Registry
	metrics  *metrics.Registry
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	sessions *services.Sessions,
	registry *registry.Registry,
	m *metrics.Registry,
) *API {
	return &API{
		logger:   logger,
		sessions: sessions,
		registry: registry,
		metrics:  m,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.sessions, a.validate, a.registry)

	// Session and node ids taken from the path outlive the request.
	app := fiber.New(fiber.Config{Immutable: true})
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))
	app.Use(web.Metrics(a.metrics))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.sessions.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("nodegraph API")
	})

	app.Get("/metrics", web.MetricsHandler(a.metrics))

	handlers.Routes(app)

	return app
}

// Start serves until ctx is done, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()
	errs := make(chan error, 1)

	go func() {
		errs <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "API listening", "port", port)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return app.ShutdownWithContext(context.WithoutCancel(ctx))
	}
}
