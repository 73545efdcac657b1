package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/cmd"
	"github.com/dukex/actflow/pkg/log"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/schedule"
	"github.com/dukex/actflow/pkg/workspace"
	cli "github.com/urfave/cli/v3"
)

const triggerTypeCLI = "cli"

var (
	errMissingArgument = errors.New("missing argument")
	errInvalidParam    = errors.New("parameter must be name=value")
	errRunNotCompleted = errors.New("run did not complete")
)

func openRuntime(ctx context.Context, command *cli.Command) (*cmd.Runtime, error) {
	return cmd.NewRuntime(ctx, log.WithModule("cli"), cmd.RuntimeConfig{
		DatabaseURL:    command.String("database-url"),
		EventBus:       command.String("event-bus"),
		KafkaBrokers:   command.StringSlice("kafka-brokers"),
		MaxConcurrency: command.Int("max-concurrency"),
		ProviderURL:    command.String("provider-url"),
		ProviderAPIKey: command.String("provider-api-key"),
	})
}

// withRuntime opens the runtime for the duration of fn.
func withRuntime(ctx context.Context, command *cli.Command, fn func(rt *cmd.Runtime) error) error {
	rt, err := openRuntime(ctx, command)
	if err != nil {
		return err
	}

	defer func() {
		err := rt.Close(context.WithoutCancel(ctx))
		if err != nil {
			log.WithModule("cli").ErrorContext(ctx, "Failed to close runtime", "error", err)
		}
	}()

	return fn(rt)
}

func runAction(ctx context.Context, command *cli.Command) error {
	ws, err := workspace.LoadFile(command.String("workspace"))
	if err != nil {
		return err
	}

	params, err := parseParams(command.StringSlice("param"))
	if err != nil {
		return err
	}

	return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
		_, err := rt.Workspaces.Save(ctx, ws)
		if err != nil {
			return err
		}

		req := act.CreateRunRequest{
			WorkspaceID: ws.ID,
			StartNodeID: command.String("start"),
			Trigger:     models.Trigger{Type: triggerTypeCLI},
		}
		if len(params.Items) > 0 {
			req.Inputs = models.Inputs{params}
		}

		created, err := rt.Service.CreateRun(ctx, req)
		if err != nil {
			return err
		}

		done, err := rt.Service.RunAndWait(ctx, created.ID)
		if err != nil {
			return err
		}

		printSummary(command.Root().Writer, done)

		if done.Status != models.ActStatusCompleted {
			return fmt.Errorf("%w: %s is %s", errRunNotCompleted, done.ID, done.Status)
		}

		return nil
	})
}

func getAction(ctx context.Context, command *cli.Command) error {
	id := command.Args().First()
	if id == "" {
		return fmt.Errorf("%w: act id", errMissingArgument)
	}

	return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
		run, err := rt.Service.GetRun(ctx, id)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(command.Root().Writer)
		enc.SetIndent("", "  ")

		return enc.Encode(run)
	})
}

func listAction(ctx context.Context, command *cli.Command) error {
	workspaceID := command.Args().First()
	if workspaceID == "" {
		return fmt.Errorf("%w: workspace id", errMissingArgument)
	}

	return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
		runs, err := rt.Service.ListRuns(ctx, workspaceID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(command.Root().Writer, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTART\tCOMPLETED\tFAILED\tCREATED")

		for _, run := range runs {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%s\n",
				run.ID, run.Status, run.StartNodeID,
				run.Steps.Completed, run.TotalSteps(), run.Steps.Failed,
				run.CreatedAt.Format(time.RFC3339))
		}

		return w.Flush()
	})
}

func retryAction(ctx context.Context, command *cli.Command) error {
	id := command.Args().First()
	if id == "" {
		return fmt.Errorf("%w: act id", errMissingArgument)
	}

	return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
		created, err := rt.Service.RetryRun(ctx, id, command.String("from"))
		if err != nil {
			return err
		}

		done, err := rt.Service.RunAndWait(ctx, created.ID)
		if err != nil {
			return err
		}

		printSummary(command.Root().Writer, done)

		return nil
	})
}

func scheduleAction(ctx context.Context, command *cli.Command) error {
	schedules, err := schedule.LoadFile(command.String("file"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
		scheduler := schedule.New(rt.Service, log.WithModule("cli"))

		for _, sched := range schedules {
			err := scheduler.Add(sched)
			if err != nil {
				return err
			}
		}

		scheduler.Start()
		_, _ = fmt.Fprintf(command.Root().Writer, "%d schedules active: %s\n",
			len(schedules), strings.Join(scheduler.IDs(), ", "))

		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		return scheduler.Stop(stopCtx)
	})
}

func parseParams(raw []string) (models.ParametersInput, error) {
	var params models.ParametersInput

	for _, p := range raw {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return params, fmt.Errorf("%w: %q", errInvalidParam, p)
		}

		params.Items = append(params.Items, models.Parameter{Name: name, Value: value})
	}

	return params, nil
}

func printSummary(w io.Writer, run models.Act) {
	_, _ = fmt.Fprintf(w, "run %s %s\n", run.ID, run.Status)
	_, _ = fmt.Fprintf(w, "  steps: %d completed, %d failed, %d cancelled, %d queued\n",
		run.Steps.Completed, run.Steps.Failed, run.Steps.Cancelled, run.Steps.Queued)
	_, _ = fmt.Fprintf(w, "  usage: %d tokens\n", run.Usage.TotalTokens)
	_, _ = fmt.Fprintf(w, "  wall clock: %dms\n", run.Duration.WallClock)

	for _, a := range run.Annotations {
		_, _ = fmt.Fprintf(w, "  [%s] %s\n", a.Level, a.Message)
	}
}
