// Package main provides the actflow command line for running workspaces locally.
package main

import (
	"context"
	"os"

	"github.com/dukex/actflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("cli")

	err := newCommand().Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("actflow failed", "error", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "actflow",
		Usage:                 "Run workspace graphs as leveled workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Storage URL (memory://, redis://, postgres:// or a directory path)",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
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
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "Load a workspace file, run it from a start node and print the summary",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "workspace",
						Aliases:  []string{"w"},
						Usage:    "Path to the workspace YAML file",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "start",
						Aliases:  []string{"s"},
						Usage:    "Id of the node the run starts from",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:    "param",
						Aliases: []string{"p"},
						Usage:   "Run parameter as name=value, repeatable",
					},
				},
				Action: runAction,
			},
			{
				Name:      "get",
				Usage:     "Print a run as JSON",
				ArgsUsage: "<act-id>",
				Action:    getAction,
			},
			{
				Name:      "list",
				Usage:     "List the runs of a workspace",
				ArgsUsage: "<workspace-id>",
				Action:    listAction,
			},
			{
				Name:      "retry",
				Usage:     "Re-run a finished act from a node, reusing upstream outputs",
				ArgsUsage: "<act-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "from",
						Usage:    "Id of the node to re-run from",
						Required: true,
					},
				},
				Action: retryAction,
			},
			{
				Name:  "schedule",
				Usage: "Start runs on the cron expressions of a schedule file until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the schedules YAML file",
						Required: true,
					},
				},
				Action: scheduleAction,
			},
		},
	}
}
