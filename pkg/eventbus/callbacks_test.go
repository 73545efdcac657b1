package eventbus_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/actflow/pkg/eventbus"
	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/executor"
	"github.com/dukex/actflow/pkg/mocks"
	"github.com/dukex/actflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestCallbacks_PublishesKeyedByAct(t *testing.T) {
	bus := &mocks.MockEventBus{}
	ctx := t.Context()

	a := models.Act{ID: "act-1", WorkspaceID: "ws-1", Status: models.ActStatusCompleted, Steps: models.StepCounters{Completed: 1}}
	seq := models.Sequence{ID: "sqn-1"}
	step := models.Step{ID: "stp-a", Node: models.Node{ID: "a"}, GenerationID: "gen-a"}

	bus.On("Publish", mock.Anything, "act-1", mock.MatchedBy(func(e eventbus.Event) bool {
		return e.GetType() == events.ActCompletedEvent
	})).Return(nil).Once()

	bus.On("Publish", mock.Anything, "act-1", mock.MatchedBy(func(e eventbus.Event) bool {
		se, ok := e.(*events.StepEvent)

		return ok && se.Type == events.StepFailedEvent && se.Error == "boom" && se.GenerationID == "gen-a"
	})).Return(errors.New("broker down")).Once()

	cbs := eventbus.Callbacks(bus, slog.Default())
	cbs.OnActComplete(ctx, a)

	failure := models.GenerationError{Name: "ActionError", Message: "boom"}
	assert.NotPanics(t, func() {
		cbs.OnStepFail(ctx, a, seq, step, executor.StepResult{Erred: true, Failure: &failure})
	})

	bus.AssertExpectations(t)
}
