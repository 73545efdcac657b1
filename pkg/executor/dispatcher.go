// Package executor runs a single workflow step against the provider matching its node content.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StepResult is the outcome of one step as seen by the orchestrator.
type StepResult struct {
	Erred     bool
	Cancelled bool
	Usage     models.Usage
	Failure   *models.GenerationError
}

type outcome struct {
	outputs []models.GenerationOutput
	usage   *models.Usage
}

type call struct {
	step       models.Step
	generation models.Generation
	resolve    *resolver
}

type runFunc func(ctx context.Context, c call) (outcome, error)

// Dispatcher selects the executor for a step and drives its generation to a terminal state.
type Dispatcher struct {
	generations Generations
	text        TextGenerator
	images      ImageGenerator
	actions     ActionRunner
	queries     QueryRunner
	limit       UsageLimiter
	tracer      trace.Tracer
	logger      *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithTextGenerator(g TextGenerator) Option {
	return func(d *Dispatcher) { d.text = g }
}

func WithImageGenerator(g ImageGenerator) Option {
	return func(d *Dispatcher) { d.images = g }
}

func WithActionRunner(r ActionRunner) Option {
	return func(d *Dispatcher) { d.actions = r }
}

func WithQueryRunner(r QueryRunner) Option {
	return func(d *Dispatcher) { d.queries = r }
}

func WithUsageLimiter(l UsageLimiter) Option {
	return func(d *Dispatcher) { d.limit = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// New creates a dispatcher. Capabilities that are not supplied make the matching
// content type a configuration error.
func New(generations Generations, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		generations: generations,
		tracer:      otelhelper.NoopTracer(),
		logger:      logger.With("module", "step_executor"),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Execute runs step against the generation already queued for it. Provider failures
// are reported through StepResult.Erred; the returned error is reserved for
// configuration and storage failures that must abort the run.
func (d *Dispatcher) Execute(ctx context.Context, step models.Step, generationID string) (StepResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "executor.execute",
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.NodeIDKey, step.Node.ID),
		attribute.String(otelhelper.ContentTypeKey, string(step.Node.ContentType())),
		attribute.String(otelhelper.GenerationIDKey, generationID),
	)

	result, err := d.execute(ctx, step, generationID)
	otelhelper.End(span, err, attribute.Bool("actflow.step.erred", result.Erred))

	return result, err
}

func (d *Dispatcher) execute(ctx context.Context, step models.Step, generationID string) (StepResult, error) {
	logger := d.logger.With("step_id", step.ID, "node_id", step.Node.ID, "generation_id", generationID)
	storeCtx := context.WithoutCancel(ctx)

	gen, err := d.generations.Get(storeCtx, generationID)
	if err != nil {
		return StepResult{}, err
	}

	if ctx.Err() != nil {
		return d.cancel(storeCtx, logger, generationID)
	}

	gen, err = d.generations.Start(storeCtx, generationID)
	if err != nil {
		return StepResult{}, err
	}

	logger.DebugContext(ctx, "Step started", "content_type", step.Node.ContentType())

	run, err := d.executorFor(step.Node)
	if err == nil {
		var out outcome

		c := call{step: step, generation: gen, resolve: newResolver(d.generations, gen.Context.WorkspaceID(), step)}

		out, err = run(ctx, c)
		if err == nil {
			_, err = d.generations.Complete(storeCtx, generationID, out.outputs, out.usage)
			if err != nil {
				return StepResult{}, err
			}

			logger.DebugContext(ctx, "Step completed", "outputs", len(out.outputs))

			result := StepResult{}
			if out.usage != nil {
				result.Usage = *out.usage
			}

			return result, nil
		}
	}

	if ctx.Err() != nil && !IsConfigError(err) {
		return d.cancel(storeCtx, logger, generationID)
	}

	failure := failureOf(err)

	_, failErr := d.generations.Fail(storeCtx, generationID, failure)
	if failErr != nil {
		return StepResult{}, failErr
	}

	result := StepResult{Erred: true, Failure: &failure}

	if IsConfigError(err) {
		logger.ErrorContext(ctx, "Step misconfigured", "error", err)

		return result, err
	}

	logger.WarnContext(ctx, "Step failed", "error", err)

	return result, nil
}

func (d *Dispatcher) cancel(ctx context.Context, logger *slog.Logger, generationID string) (StepResult, error) {
	_, err := d.generations.Cancel(ctx, generationID)
	if err != nil {
		return StepResult{}, err
	}

	logger.InfoContext(ctx, "Step cancelled")

	return StepResult{Cancelled: true}, nil
}

// executorFor is the single switch from content type to executor.
func (d *Dispatcher) executorFor(node models.Node) (runFunc, error) {
	switch content := node.Content.(type) {
	case models.TextGenerationContent:
		if d.text == nil {
			return nil, configError(node.ID, fmt.Errorf("%w: text generation", ErrCapabilityUnavailable))
		}

		return func(ctx context.Context, c call) (outcome, error) {
			return d.generateText(ctx, c, content)
		}, nil
	case models.ImageGenerationContent:
		if d.images == nil {
			return nil, configError(node.ID, fmt.Errorf("%w: image generation", ErrCapabilityUnavailable))
		}

		return func(ctx context.Context, c call) (outcome, error) {
			return d.generateImages(ctx, c, content)
		}, nil
	case models.ActionContent:
		if d.actions == nil {
			return nil, configError(node.ID, fmt.Errorf("%w: actions", ErrCapabilityUnavailable))
		}

		return func(ctx context.Context, c call) (outcome, error) {
			return d.runAction(ctx, c, content)
		}, nil
	case models.TriggerContent:
		return func(_ context.Context, c call) (outcome, error) {
			return resolveTrigger(c, content)
		}, nil
	case models.QueryContent:
		if d.queries == nil {
			return nil, configError(node.ID, fmt.Errorf("%w: query", ErrCapabilityUnavailable))
		}

		return func(ctx context.Context, c call) (outcome, error) {
			return d.runQuery(ctx, c, content)
		}, nil
	default:
		return nil, configError(node.ID, fmt.Errorf("%w: %q", models.ErrUnknownContentType, node.ContentType()))
	}
}

func (d *Dispatcher) checkUsage(ctx context.Context, c call) error {
	if d.limit == nil {
		return nil
	}

	err := d.limit(ctx, c.generation.Context)
	if err != nil {
		return stepError("UsageLimitExceeded", err)
	}

	return nil
}
