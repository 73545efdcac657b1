package main

import (
	"context"
	"os"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/cmd"
	"github.com/dukex/actflow/pkg/log"
	"github.com/dukex/actflow/pkg/metrics"
	"github.com/dukex/actflow/pkg/otelhelper"
	"github.com/prometheus/client_golang/prometheus"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "actflow-api",
		Usage:                 "Serve the workspace and run API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Storage URL (memory://, redis://, postgres:// or a directory path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus for run lifecycle events (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka brokers used when the event bus is kafka",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.IntFlag{
				Name:    "max-concurrency",
				Usage:   "Maximum steps running at once within a sequence (0 is unbounded)",
				Sources: cli.EnvVars("MAX_CONCURRENCY"),
			},
			&cli.StringFlag{
				Name:    "provider-url",
				Usage:   "Base URL of the text, image and query provider gateway",
				Sources: cli.EnvVars("PROVIDER_URL"),
			},
			&cli.StringFlag{
				Name:    "provider-api-key",
				Usage:   "Bearer token for the provider gateway",
				Sources: cli.EnvVars("PROVIDER_API_KEY"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing actflow API")

			m := metrics.New(prometheus.NewRegistry())

			cfg := cmd.RuntimeConfig{
				DatabaseURL:    command.String("database-url"),
				EventBus:       command.String("event-bus"),
				KafkaBrokers:   command.StringSlice("kafka-brokers"),
				MaxConcurrency: command.Int("max-concurrency"),
				ProviderURL:    command.String("provider-url"),
				ProviderAPIKey: command.String("provider-api-key"),
				Callbacks:      []act.Callbacks{m.Callbacks()},
			}

			if command.Bool("otel") {
				tracer, shutdown, err := otelhelper.NewTracer(ctx, "actflow-api")
				if err != nil {
					return err
				}

				defer func() {
					err := shutdown(context.Background())
					if err != nil {
						logger.ErrorContext(ctx, "Failed to shut down tracer", "error", err)
					}
				}()

				cfg.Tracer = tracer
			}

			rt, err := cmd.NewRuntime(ctx, logger, cfg)
			if err != nil {
				return err
			}

			defer func() {
				err := rt.Close(context.Background())
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			api := NewAPI(logger, rt.Persistence, rt.Service, rt.Workspaces, rt.Generations, m)

			return api.Start(command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("actflow-api exited", "error", err)
		os.Exit(1)
	}
}
