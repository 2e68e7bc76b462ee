package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/dukex/nodegraph/pkg/cmd"
	"github.com/dukex/nodegraph/pkg/eventbus"
	"github.com/dukex/nodegraph/pkg/events"
	"github.com/dukex/nodegraph/pkg/log"
	"github.com/dukex/nodegraph/pkg/metrics"
	"github.com/dukex/nodegraph/pkg/otelhelper"
	"github.com/dukex/nodegraph/pkg/services"
	"github.com/dukex/nodegraph/pkg/transport"
	cli "github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the editor API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL: a path, file://, postgres://, s3://bucket/prefix or http(s):// remote store",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Optional Redis URL caching node documents",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "registry-path",
				Usage:   "Path to the YAML node catalog",
				Sources: cli.EnvVars("REGISTRY_PATH"),
			},
			&cli.StringFlag{
				Name:    "worker-url",
				Usage:   "Base URL of the execution service",
				Sources: cli.EnvVars("WORKER_URL"),
			},
			&cli.StringFlag{
				Name:    "registry-refresh",
				Usage:   "Cron schedule re-fetching the execution service catalog",
				Value:   "@every 5m",
				Sources: cli.EnvVars("REGISTRY_REFRESH"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing nodegraph API")

			workerURL := command.String("worker-url")
			refresh := ""

			if workerURL != "" {
				refresh = command.String("registry-refresh")
			}

			registry, err := cmd.NewRegistry(ctx, logger, command.String("registry-path"), workerURL, refresh)
			if err != nil {
				return fmt.Errorf("failed to load node registry: %w", err)
			}
			defer registry.Stop()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"), command.String("redis-url"))
			if err != nil {
				return fmt.Errorf("failed to open persistence: %w", err)
			}

			defer func() {
				if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			if err := logEvents(ctx, eventBus, logger); err != nil {
				return err
			}

			opts := []services.Option{
				services.WithLogger(logger),
				services.WithMetrics(metrics.DefaultRegistry()),
				services.WithPublisher(eventBus),
			}

			if workerURL != "" {
				opts = append(opts, services.WithExecutor(transport.NewExecutor(workerURL)))
			}

			if command.Bool("otel") {
				tracer, err := otelhelper.NewTracer(ctx, "nodegraph")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				opts = append(opts, services.WithTracer(tracer))
			}

			sessions := services.NewSessions(registry, persistence, opts...)
			defer sessions.Shutdown()

			api := NewAPI(logger, sessions, registry, metrics.DefaultRegistry())

			return api.Start(ctx, int(command.Int("port")))
		},
	}
}

// logEvents subscribes a debug logger to execution events.
func logEvents(ctx context.Context, bus eventbus.EventBus, logger *slog.Logger) error {
	for _, t := range []events.EventType{
		events.SessionAssignedEvent,
		events.NodeExecutedEvent,
		events.ExecutionErrorEvent,
	} {
		err := bus.Handle(t, func(ctx context.Context, event any) error {
			logger.DebugContext(ctx, "Event received", "type", t, "event", event)

			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to register %s handler: %w", t, err)
		}
	}

	if err := bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	return nil
}
