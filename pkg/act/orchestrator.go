// Package act drives runs of a workflow and exposes the run entry points.
package act

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actflow/pkg/executor"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/otelhelper"
	"github.com/dukex/actflow/pkg/patch"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	pathQueued     = "steps.queued"
	pathInProgress = "steps.inProgress"
	pathCompleted  = "steps.completed"
	pathFailed     = "steps.failed"
	pathCancelled  = "steps.cancelled"
)

// Generations is the part of the generation manager the orchestrator drives directly.
type Generations interface {
	Get(ctx context.Context, id string) (models.Generation, error)
	Enqueue(ctx context.Context, id string) (models.Generation, error)
	Cancel(ctx context.Context, id string) (models.Generation, error)
}

// StepExecutor runs one step against its generation.
type StepExecutor interface {
	Execute(ctx context.Context, step models.Step, generationID string) (executor.StepResult, error)
}

// Orchestrator runs the sequences of an act in order with fail-fast semantics.
type Orchestrator struct {
	acts           *Store
	generations    Generations
	executor       StepExecutor
	callbacks      Callbacks
	maxConcurrency int
	tracer         trace.Tracer
	logger         *slog.Logger
	now            func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithCallbacks installs run observers; several are combined in order.
func WithCallbacks(cbs ...Callbacks) OrchestratorOption {
	return func(o *Orchestrator) {
		o.callbacks = Combine(cbs...)
	}
}

// WithMaxConcurrency bounds how many steps of one sequence run at once. Zero means unbounded.
func WithMaxConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxConcurrency = n
	}
}

// WithTracer records a span per act and per step.
func WithTracer(t trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithClock replaces the wall clock used for durations and timestamps.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator builds an orchestrator with a no-op tracer and the UTC wall clock.
func NewOrchestrator(acts *Store, generations Generations, exec StepExecutor, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		acts:        acts,
		generations: generations,
		executor:    exec,
		tracer:      otelhelper.NoopTracer(),
		logger:      logger.With("module", "act_orchestrator"),
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

type stepRun struct {
	result   executor.StepResult
	duration time.Duration
}

type sequenceOutcome struct {
	completed int
	erred     int
	cancelled int
}

// Run drives an act to a terminal status and returns the final record. Step failures
// end the act as failed; a cancelled ctx ends it as cancelled. A returned error is a
// configuration or storage failure and leaves the act as it was when the error occurred.
func (o *Orchestrator) Run(ctx context.Context, actID string) (models.Act, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "act.run", attribute.String(otelhelper.ActIDKey, actID))

	act, err := o.run(ctx, actID)
	otelhelper.End(span, err, attribute.String("actflow.act.status", string(act.Status)))

	return act, err
}

func (o *Orchestrator) run(ctx context.Context, actID string) (models.Act, error) {
	storeCtx := context.WithoutCancel(ctx)

	act, err := o.acts.Get(storeCtx, actID)
	if err != nil {
		return models.Act{}, err
	}

	if act.Status.IsTerminal() {
		return act, fmt.Errorf("%w: %s is %s", ErrActFinished, act.ID, act.Status)
	}

	logger := o.logger.With("act_id", act.ID, "workspace_id", act.WorkspaceID)
	started := o.now()

	logger.InfoContext(ctx, "Act started", "sequences", len(act.Sequences), "steps", act.TotalSteps())
	o.callbacks.actStart(ctx, act)

	status := models.ActStatusCompleted
	remaining := []models.Sequence{}

	for i, seq := range act.Sequences {
		if ctx.Err() != nil {
			status = models.ActStatusCancelled
			remaining = act.Sequences[i:]

			break
		}

		var out sequenceOutcome

		act, out, err = o.runSequence(ctx, act, seq)
		if err != nil {
			logger.ErrorContext(ctx, "Act aborted", "sequence_id", seq.ID, "error", err)

			return act, err
		}

		if ctx.Err() != nil {
			status = models.ActStatusCancelled
			remaining = act.Sequences[i+1:]

			break
		}

		if out.erred > 0 {
			status = models.ActStatusFailed

			for _, skipped := range act.Sequences[i+1:] {
				logger.InfoContext(ctx, "Sequence skipped", "sequence_id", skipped.ID)
				o.callbacks.sequenceSkip(ctx, act, skipped)
			}

			break
		}
	}

	if status == models.ActStatusCancelled {
		act, err = o.cancelSequences(storeCtx, act, remaining)
		if err != nil {
			return act, err
		}
	}

	act, err = o.acts.Patch(storeCtx, act.ID, patch.Delta{
		"status":             patch.SetString(string(status)),
		"duration.wallClock": patch.SetNumber(float64(o.now().Sub(started).Milliseconds())),
	})
	if err != nil {
		return act, err
	}

	logger.InfoContext(ctx, "Act finished",
		"status", act.Status,
		"completed", act.Steps.Completed,
		"failed", act.Steps.Failed,
		"cancelled", act.Steps.Cancelled,
		"wall_clock_ms", act.Duration.WallClock)
	o.callbacks.actComplete(storeCtx, act)

	return act, nil
}

// runSequence moves the sequence's steps to inProgress, runs them concurrently, and
// settles the counters in a single patch once every step has returned.
func (o *Orchestrator) runSequence(ctx context.Context, act models.Act, seq models.Sequence) (models.Act, sequenceOutcome, error) {
	storeCtx := context.WithoutCancel(ctx)
	n := len(seq.Steps)

	for _, step := range seq.Steps {
		_, err := o.generations.Enqueue(storeCtx, step.GenerationID)
		if err != nil {
			return act, sequenceOutcome{}, fmt.Errorf("failed to enqueue step %s: %w", step.ID, err)
		}
	}

	act, err := o.acts.Patch(storeCtx, act.ID, patch.Move(pathQueued, pathInProgress, float64(n)))
	if err != nil {
		return act, sequenceOutcome{}, err
	}

	o.callbacks.sequenceStart(ctx, act, seq)

	runs := make([]stepRun, n)

	g, gctx := errgroup.WithContext(ctx)
	if o.maxConcurrency > 0 {
		g.SetLimit(o.maxConcurrency)
	}

	for i, step := range seq.Steps {
		g.Go(func() error {
			o.callbacks.stepStart(gctx, act, seq, step)

			begin := o.now()
			res, err := o.executor.Execute(gctx, step, step.GenerationID)
			runs[i] = stepRun{result: res, duration: o.now().Sub(begin)}

			if err != nil {
				return fmt.Errorf("step %s: %w", step.ID, err)
			}

			switch {
			case res.Erred:
				o.callbacks.stepFail(gctx, act, seq, step, res)
			case !res.Cancelled:
				o.callbacks.stepComplete(gctx, act, seq, step, res)
			}

			return nil
		})
	}

	fatal := g.Wait()
	if fatal != nil {
		return act, sequenceOutcome{}, fatal
	}

	var (
		out   sequenceOutcome
		total time.Duration
		usage models.Usage
	)

	for _, r := range runs {
		total += r.duration
		usage = usage.Add(r.result.Usage)

		switch {
		case r.result.Cancelled:
			out.cancelled++
		case r.result.Erred:
			out.erred++
		default:
			out.completed++
		}
	}

	act, err = o.acts.Patch(storeCtx, act.ID, patch.Merge(
		patch.Delta{
			"duration.totalTask":     patch.Increment(float64(total.Milliseconds())),
			"usage.promptTokens":     patch.Increment(float64(usage.PromptTokens)),
			"usage.completionTokens": patch.Increment(float64(usage.CompletionTokens)),
			"usage.totalTokens":      patch.Increment(float64(usage.TotalTokens)),
		},
		patch.Move(pathInProgress, pathCompleted, float64(out.completed)),
		patch.Move(pathInProgress, pathFailed, float64(out.erred)),
		patch.Move(pathInProgress, pathCancelled, float64(out.cancelled)),
	))
	if err != nil {
		return act, out, err
	}

	for i, step := range seq.Steps {
		failure := runs[i].result.Failure
		if !runs[i].result.Erred || failure == nil {
			continue
		}

		act, err = o.acts.Annotate(storeCtx, act.ID, models.Annotation{
			Level:      models.AnnotationLevelError,
			Message:    fmt.Sprintf("%s failed: %s", stepLabel(step), failure.Message),
			SequenceID: seq.ID,
			StepID:     step.ID,
		})
		if err != nil {
			return act, out, err
		}
	}

	switch {
	case out.erred > 0:
		o.callbacks.sequenceFail(ctx, act, seq)
	case out.cancelled == 0:
		o.callbacks.sequenceComplete(ctx, act, seq)
	}

	return act, out, nil
}

// cancelSequences cancels the generations of seqs that have not finished. Steps whose
// generation never started leave queued, steps left running leave inProgress, and both
// moves are capped by the current counters so they never go negative.
func (o *Orchestrator) cancelSequences(ctx context.Context, act models.Act, seqs []models.Sequence) (models.Act, error) {
	fromQueued, fromInProgress := 0, 0

	for _, seq := range seqs {
		for _, step := range seq.Steps {
			if step.GenerationID == "" {
				fromQueued++

				continue
			}

			g, err := o.generations.Get(ctx, step.GenerationID)
			if err != nil {
				return act, fmt.Errorf("failed to load step %s: %w", step.ID, err)
			}

			if g.Status.IsTerminal() {
				continue
			}

			_, err = o.generations.Cancel(ctx, step.GenerationID)
			if errors.Is(err, models.ErrInvalidTransition) {
				continue
			}

			if err != nil {
				return act, fmt.Errorf("failed to cancel step %s: %w", step.ID, err)
			}

			if g.Status == models.GenerationStatusRunning {
				fromInProgress++
			} else {
				fromQueued++
			}
		}
	}

	fromQueued = min(fromQueued, act.Steps.Queued)
	fromInProgress = min(fromInProgress, act.Steps.InProgress)

	if fromQueued == 0 && fromInProgress == 0 {
		return act, nil
	}

	return o.acts.Patch(ctx, act.ID, patch.Merge(
		patch.Move(pathQueued, pathCancelled, float64(fromQueued)),
		patch.Move(pathInProgress, pathCancelled, float64(fromInProgress)),
	))
}

// CancelPending cancels an act that no process is driving. That is usually an act that
// was created but never started, or one left in progress by a process that stopped.
func (o *Orchestrator) CancelPending(ctx context.Context, actID string) (models.Act, error) {
	act, err := o.acts.Get(ctx, actID)
	if err != nil {
		return models.Act{}, err
	}

	if act.Status.IsTerminal() {
		return act, fmt.Errorf("%w: %s is %s", ErrActFinished, act.ID, act.Status)
	}

	act, err = o.cancelSequences(ctx, act, act.Sequences)
	if err != nil {
		return act, err
	}

	act, err = o.acts.Patch(ctx, act.ID, patch.Delta{"status": patch.SetString(string(models.ActStatusCancelled))})
	if err != nil {
		return act, err
	}

	o.logger.InfoContext(ctx, "Pending act cancelled", "act_id", act.ID)
	o.callbacks.actComplete(ctx, act)

	return act, nil
}

func stepLabel(step models.Step) string {
	if step.Node.Name != "" {
		return step.Node.Name
	}

	return step.Node.ID
}
