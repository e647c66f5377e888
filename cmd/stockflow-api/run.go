package main

import (
	"context"
	"fmt"

	"github.com/dukex/stockflow/pkg/channels/kafka"
	"github.com/dukex/stockflow/pkg/cmd"
	"github.com/dukex/stockflow/pkg/config"
	"github.com/dukex/stockflow/pkg/log"
	"github.com/dukex/stockflow/pkg/metrics"
	"github.com/dukex/stockflow/pkg/otelhelper"
	"github.com/dukex/stockflow/pkg/triggers/queue"
	"github.com/dukex/stockflow/pkg/triggers/schedule"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = 9091

func RunAPICommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start api",
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
				Usage:   "Database connection URL for persistence (memory://, file://<dir>, postgres://...)",
				Value:   "memory://",
				Sources: cli.EnvVars("DATABASE_URL"),
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
			&cli.StringFlag{
				Name:    "kafka-consumer-group",
				Usage:   "Kafka consumer group suffix",
				Value:   "stockflow-api",
				Sources: cli.EnvVars("KAFKA_CONSUMER_GROUP"),
			},
			&cli.StringFlag{
				Name:    "governance-config",
				Usage:   "Path to the governance YAML file",
				Sources: cli.EnvVars("GOVERNANCE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "chains-path",
				Usage:   "Directory of chain definitions loaded at startup",
				Sources: cli.EnvVars("CHAINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL of the entity event queue; the queue consumer is disabled when empty",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-queue",
				Usage:   "Redis list holding entity events",
				Value:   "stockflow:entity-events",
				Sources: cli.EnvVars("REDIS_QUEUE"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if err := log.Setup(command.String("log-level"), command.String("log-format")); err != nil {
				return err
			}

			logger := log.WithModule("api")
			clock := clockwork.NewRealClock()

			logger.InfoContext(ctx, "Initializing Stockflow API")

			governanceConfig, err := config.LoadOrDefault(command.String("governance-config"))
			if err != nil {
				return err
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), kafka.Config{
				Brokers:       command.String("kafka-brokers"),
				ConsumerGroup: command.String("kafka-consumer-group"),
				OTELEnabled:   command.Bool("otel-enabled"),
			}, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			var tracer trace.Tracer
			if command.Bool("otel-enabled") {
				var shutdown otelhelper.ShutdownFunc

				if tracer, shutdown, err = otelhelper.NewTracer(ctx, "stockflow-api"); err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					if err := shutdown(context.Background()); err != nil {
						logger.ErrorContext(ctx, "Failed to flush traces", "error", err)
					}
				}()
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			engine := cmd.NewEngine(cmd.EngineConfig{
				Persistence: persistence,
				EventBus:    eventBus,
				Governance:  governanceConfig,
				Clock:       clock,
				Tracer:      tracer,
				Metrics:     metrics.NewRecorder(registry),
				Logger:      logger,
			})
			defer engine.Stop()

			if path := command.String("chains-path"); path != "" {
				created, err := cmd.LoadDefinitions(ctx, engine, path, logger)
				if err != nil {
					logger.WarnContext(ctx, "Some chain definitions were not loaded", "error", err)
				}

				logger.InfoContext(ctx, "Chain definitions loaded", "created", created)
			}

			if err := cmd.SubscribeEntityEvents(eventBus, engine, logger); err != nil {
				return err
			}

			if err := eventBus.Subscribe(ctx); err != nil {
				return err
			}

			scheduleTrigger := schedule.NewTrigger(engine, clock, logger)
			if err := scheduleTrigger.Start(ctx); err != nil {
				logger.WarnContext(ctx, "Some schedule triggers were not registered", "error", err)
			}

			defer func() {
				_ = scheduleTrigger.Stop(ctx)
			}()

			if redisURL := command.String("redis-url"); redisURL != "" {
				client, err := queue.NewClient(ctx, redisURL)
				if err != nil {
					return err
				}

				queueTrigger, err := queue.NewTrigger(client, command.String("redis-queue"), engine, clock, logger)
				if err != nil {
					return err
				}

				if err := queueTrigger.Start(ctx); err != nil {
					return err
				}

				defer func() {
					_ = queueTrigger.Stop(ctx)
				}()
			}

			api := NewAPI(logger, engine, clock, registry)

			return api.Start(command.Int("port"))
		},
	}
}
