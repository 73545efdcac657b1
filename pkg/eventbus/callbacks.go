package eventbus

import (
	"context"
	"log/slog"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/executor"
	"github.com/dukex/actflow/pkg/models"
)

// Callbacks publishes one event per orchestrator callback, keyed by act id so a
// partitioned transport keeps each act's events in order. Publish failures are
// logged and never affect the run.
func Callbacks(pub EventPublisher, logger *slog.Logger) act.Callbacks {
	logger = logger.With("module", "event_publisher")

	publish := func(ctx context.Context, a models.Act, event Event) {
		err := pub.Publish(ctx, a.ID, event)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to publish event", "act_id", a.ID, "event_type", event.GetType(), "error", err)
		}
	}

	stepEvent := func(eventType events.EventType, a models.Act, seq models.Sequence, step models.Step, res executor.StepResult) *events.StepEvent {
		e := events.NewStepEvent(eventType, a, seq, step)
		e.Usage = res.Usage

		if res.Failure != nil {
			e.Error = res.Failure.Message
		}

		return e
	}

	return act.Callbacks{
		OnActCreate: func(ctx context.Context, a models.Act) {
			publish(ctx, a, events.NewActEvent(events.ActCreatedEvent, a))
		},
		OnActStart: func(ctx context.Context, a models.Act) {
			publish(ctx, a, events.NewActEvent(events.ActStartedEvent, a))
		},
		OnSequenceStart: func(ctx context.Context, a models.Act, seq models.Sequence) {
			publish(ctx, a, events.NewSequenceEvent(events.SequenceStartedEvent, a, seq))
		},
		OnSequenceComplete: func(ctx context.Context, a models.Act, seq models.Sequence) {
			publish(ctx, a, events.NewSequenceEvent(events.SequenceCompletedEvent, a, seq))
		},
		OnSequenceFail: func(ctx context.Context, a models.Act, seq models.Sequence) {
			publish(ctx, a, events.NewSequenceEvent(events.SequenceFailedEvent, a, seq))
		},
		OnSequenceSkip: func(ctx context.Context, a models.Act, seq models.Sequence) {
			publish(ctx, a, events.NewSequenceEvent(events.SequenceSkippedEvent, a, seq))
		},
		OnStepStart: func(ctx context.Context, a models.Act, seq models.Sequence, step models.Step) {
			publish(ctx, a, events.NewStepEvent(events.StepStartedEvent, a, seq, step))
		},
		OnStepComplete: func(ctx context.Context, a models.Act, seq models.Sequence, step models.Step, res executor.StepResult) {
			publish(ctx, a, stepEvent(events.StepCompletedEvent, a, seq, step, res))
		},
		OnStepFail: func(ctx context.Context, a models.Act, seq models.Sequence, step models.Step, res executor.StepResult) {
			publish(ctx, a, stepEvent(events.StepFailedEvent, a, seq, step, res))
		},
		OnActComplete: func(ctx context.Context, a models.Act) {
			publish(ctx, a, events.NewActEvent(events.ActFinishedEvent(a.Status), a))
		},
	}
}
