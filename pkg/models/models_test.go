package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGeneration() Generation {
	return NewGeneration("gen-1", GenerationContext{
		OperationNode: Node{ID: "n1", Content: ActionContent{Provider: "log"}},
		Origin:        Origin{Type: OriginTypeRun, ID: "act-1", WorkspaceID: "ws-1"},
	}, time.Unix(100, 0))
}

func TestGeneration_HappyPath(t *testing.T) {
	g := newTestGeneration()
	now := time.Unix(200, 0)

	queued, err := g.Queue(now)
	require.NoError(t, err)
	assert.Equal(t, GenerationStatusCreated, g.Status, "receiver must not change")
	assert.Nil(t, g.QueuedAt)
	assert.Equal(t, GenerationStatusQueued, queued.Status)
	require.NotNil(t, queued.QueuedAt)

	running, err := queued.Start(now)
	require.NoError(t, err)
	assert.Equal(t, GenerationStatusRunning, running.Status)

	done, err := running.Complete(now, []GenerationOutput{{OutputID: "o", Type: OutputTypeGeneratedText, Content: "hi"}}, &Usage{TotalTokens: 3})
	require.NoError(t, err)
	assert.Equal(t, GenerationStatusCompleted, done.Status)
	assert.Equal(t, GenerationStatusRunning, running.Status)

	out, ok := done.Output("o")
	require.True(t, ok)
	assert.Equal(t, "hi", out.Content)
}

func TestGeneration_RejectsInvalidTransitions(t *testing.T) {
	now := time.Now()
	created := newTestGeneration()

	_, err := created.Start(now)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = created.Complete(now, nil, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)

	cancelled, err := created.Cancel(now)
	require.NoError(t, err)

	for name, fn := range map[string]func() (Generation, error){
		"queue":    func() (Generation, error) { return cancelled.Queue(now) },
		"start":    func() (Generation, error) { return cancelled.Start(now) },
		"cancel":   func() (Generation, error) { return cancelled.Cancel(now) },
		"fail":     func() (Generation, error) { return cancelled.Fail(now, GenerationError{}) },
		"complete": func() (Generation, error) { return cancelled.Complete(now, nil, nil) },
	} {
		t.Run(name, func(t *testing.T) {
			g, err := fn()
			var transitionErr *TransitionError
			require.ErrorAs(t, err, &transitionErr)
			assert.Equal(t, GenerationStatusCancelled, transitionErr.From)
			assert.Equal(t, GenerationStatusCancelled, g.Status)
		})
	}
}

func TestGenerationStatus_TerminalHasNoTransitions(t *testing.T) {
	all := []GenerationStatus{
		GenerationStatusCreated, GenerationStatusQueued, GenerationStatusRunning,
		GenerationStatusCompleted, GenerationStatusFailed, GenerationStatusCancelled,
	}

	for _, from := range all {
		for _, to := range all {
			if from.IsTerminal() {
				assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
			}
		}
	}
}

func TestGenerationContext_InputsRoundTrip(t *testing.T) {
	ctx := GenerationContext{
		OperationNode: Node{ID: "t", Content: TriggerContent{Provider: "manual"}},
		Origin:        Origin{Type: OriginTypeWorkspace, ID: "ws-1"},
		Inputs: Inputs{
			ParametersInput{Items: []Parameter{{Name: "topic", Value: "go"}}},
			WebhookEventInput{Provider: "github", Event: "issue.created", Payload: map[string]any{"title": "bug"}},
		},
	}

	data, err := json.Marshal(ctx)
	require.NoError(t, err)

	var decoded GenerationContext
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Inputs, 2)

	params, ok := decoded.Inputs[0].(ParametersInput)
	require.True(t, ok)

	v, ok := params.Lookup("topic")
	require.True(t, ok)
	assert.Equal(t, "go", v)

	hook, ok := decoded.Inputs[1].(WebhookEventInput)
	require.True(t, ok)
	assert.Equal(t, "bug", hook.Payload["title"])
	assert.Equal(t, "ws-1", decoded.WorkspaceID())
}

func TestAct_JSONShape(t *testing.T) {
	act := Act{
		ID:          "act-1",
		WorkspaceID: "ws-1",
		Status:      ActStatusInProgress,
		Steps:       StepCounters{Queued: 2},
		Sequences: []Sequence{
			{ID: "s1", Steps: []Step{{ID: "a"}, {ID: "b"}}},
		},
	}

	data, err := json.Marshal(act)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "inProgress", wire["status"])
	assert.InDelta(t, 2, wire["steps"].(map[string]any)["queued"], 0)
	assert.Contains(t, wire["duration"], "wallClock")
	assert.Contains(t, wire["usage"], "promptTokens")
	assert.Equal(t, 2, act.TotalSteps())
	assert.Equal(t, 2, act.Steps.Total())
}
