package act_test

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/executor"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func createAct(t *testing.T, f *fixture, svc *act.Service, startNodeID string, nodes []models.Node, conns []models.Connection) models.Act {
	t.Helper()

	require.NoError(t, f.saveWorkspace(t.Context(), nodes, conns))

	a, err := svc.CreateRun(t.Context(), act.CreateRunRequest{WorkspaceID: workspaceID, StartNodeID: startNodeID})
	require.NoError(t, err)

	return a
}

func TestOrchestrator_Diamond(t *testing.T) {
	f := newFixture()
	svc := f.service()
	nodes, conns := testutil.Diamond()
	created := createAct(t, f, svc, "A", nodes, conns)

	require.Len(t, created.Sequences, 3)
	assert.Equal(t, 4, created.Steps.Queued)

	done, err := svc.RunAndWait(t.Context(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ActStatusCompleted, done.Status)
	assert.Equal(t, models.StepCounters{Completed: 4}, done.Steps)
	assert.Equal(t, int64(12), done.Usage.TotalTokens)
	assert.Positive(t, done.Duration.TotalTask)
	assert.GreaterOrEqual(t, done.Duration.WallClock, int64(0))
	assert.Empty(t, done.Annotations)

	ran := f.exec.ran()
	require.Len(t, ran, 4)
	assert.Equal(t, "A", ran[0])
	assert.Equal(t, "D", ran[3])
	assert.ElementsMatch(t, []string{"B", "C"}, ran[1:3])

	for _, seq := range done.Sequences {
		for _, step := range seq.Steps {
			assert.Equal(t, models.GenerationStatusCompleted, f.status(t.Context(), step.GenerationID))
		}
	}

	events := f.recorder.list()
	assert.Equal(t, "actStart:"+created.ID, events[1])
	assert.Equal(t, "actComplete:completed", events[len(events)-1])
	assert.Contains(t, events, "sequenceComplete:sqn-2")
	assert.NotContains(t, strings.Join(events, ","), "Fail")
}

func TestOrchestrator_FailFast(t *testing.T) {
	f := newFixture()
	f.exec.failing("b")

	svc := f.service()
	nodes, conns := testutil.Chain("a", "b", "c")
	created := createAct(t, f, svc, "a", nodes, conns)

	done, err := svc.RunAndWait(t.Context(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ActStatusFailed, done.Status)
	assert.Equal(t, 1, done.Steps.Completed)
	assert.Equal(t, 1, done.Steps.Failed)
	assert.Equal(t, 0, done.Steps.Cancelled)
	assert.Equal(t, 1, done.Steps.Queued, "skipped steps stay queued")
	assert.Equal(t, 0, done.Steps.InProgress)
	assert.Equal(t, []string{"a", "b"}, f.exec.ran())

	require.Len(t, done.Annotations, 1)
	assert.Equal(t, models.AnnotationLevelError, done.Annotations[0].Level)
	assert.Equal(t, "stp-b", done.Annotations[0].StepID)
	assert.Contains(t, done.Annotations[0].Message, "boom")

	events := f.recorder.list()
	assert.Contains(t, events, "stepFail:b")
	assert.Contains(t, events, "sequenceFail:sqn-1")
	assert.Contains(t, events, "sequenceSkip:sqn-2")
	assert.NotContains(t, events, "stepStart:c")

	skipped := done.Sequences[2].Steps[0]
	assert.Equal(t, models.GenerationStatusCreated, f.status(t.Context(), skipped.GenerationID))
}

func TestOrchestrator_SiblingsFinishBeforeFailing(t *testing.T) {
	f := newFixture()
	f.exec.failing("B")

	svc := f.service()
	nodes, conns := testutil.Diamond()
	created := createAct(t, f, svc, "A", nodes, conns)

	done, err := svc.RunAndWait(t.Context(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ActStatusFailed, done.Status)
	assert.Equal(t, 2, done.Steps.Completed, "A and C complete")
	assert.Equal(t, 1, done.Steps.Failed)
	assert.Equal(t, 1, done.Steps.Queued)
}

func TestOrchestrator_MaxConcurrency(t *testing.T) {
	f := newFixture()
	svc := f.service(act.WithMaxConcurrency(1))

	nodes := []models.Node{testutil.ActionNode("root")}
	conns := []models.Connection{}

	for i := range 5 {
		id := fmt.Sprintf("leaf-%d", i)
		nodes = append(nodes, testutil.ActionNode(id))
		conns = append(conns, testutil.Connect("root", id))
	}

	created := createAct(t, f, svc, "root", nodes, conns)

	done, err := svc.RunAndWait(t.Context(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, 6, done.Steps.Completed)
	assert.Equal(t, int32(1), f.exec.peak.Load())
}

func TestOrchestrator_FatalErrorAbortsRun(t *testing.T) {
	f := newFixture()
	f.exec.fatal = map[string]bool{"b": true}

	svc := f.service()
	nodes, conns := testutil.Chain("a", "b", "c")
	created := createAct(t, f, svc, "a", nodes, conns)

	done, err := svc.RunAndWait(t.Context(), created.ID)
	require.Error(t, err)
	assert.True(t, executor.IsConfigError(err))

	assert.Equal(t, models.ActStatusFailed, done.Status)
	assert.Equal(t, 1, done.Steps.Completed)
	assert.Equal(t, 1, done.Steps.InProgress, "counters stay where the run stopped")
	require.NotEmpty(t, done.Annotations)
	assert.Contains(t, done.Annotations[len(done.Annotations)-1].Message, "b")
	events := f.recorder.list()
	require.NotEmpty(t, events)
	assert.Equal(t, "actComplete:failed", events[len(events)-1])
	assert.Equal(t, 1, strings.Count(strings.Join(events, ","), "actComplete:"))
}

func TestOrchestrator_Cancel(t *testing.T) {
	f := newFixture()
	f.exec.block = map[string]bool{"b": true}
	f.exec.started = make(chan string, 3)

	svc := f.service()
	nodes, conns := testutil.Chain("a", "b", "c")
	created := createAct(t, f, svc, "a", nodes, conns)

	require.NoError(t, svc.StartRun(t.Context(), created.ID))

	for id := range f.exec.started {
		if id == "b" {
			break
		}
	}

	_, err := svc.CancelRun(t.Context(), created.ID)
	require.NoError(t, err)

	svc.Wait()

	done, err := svc.GetRun(t.Context(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ActStatusCancelled, done.Status)
	assert.Equal(t, 1, done.Steps.Completed)
	assert.Equal(t, 2, done.Steps.Cancelled)
	assert.Equal(t, 0, done.Steps.Queued)
	assert.Equal(t, 0, done.Steps.InProgress)
	assert.Equal(t, models.GenerationStatusCancelled, f.status(t.Context(), done.Sequences[1].Steps[0].GenerationID))
	assert.Equal(t, models.GenerationStatusCancelled, f.status(t.Context(), done.Sequences[2].Steps[0].GenerationID))
	assert.Contains(t, f.recorder.list(), "actComplete:cancelled")
}

func TestOrchestrator_RefusesFinishedAct(t *testing.T) {
	f := newFixture()
	svc := f.service()
	nodes, conns := testutil.Chain("a")
	created := createAct(t, f, svc, "a", nodes, conns)

	_, err := svc.RunAndWait(t.Context(), created.ID)
	require.NoError(t, err)

	_, err = f.orchestrator().Run(t.Context(), created.ID)
	require.ErrorIs(t, err, act.ErrActFinished)

	err = svc.StartRun(t.Context(), created.ID)
	require.ErrorIs(t, err, act.ErrActFinished)
}

// randomDAG draws a connected graph whose edges only point from lower to higher index.
func randomDAG(rt *rapid.T) ([]models.Node, []models.Connection, []string) {
	n := rapid.IntRange(1, 8).Draw(rt, "nodes")
	nodes := make([]models.Node, n)
	conns := []models.Connection{}
	ids := make([]string, n)

	for i := range n {
		ids[i] = fmt.Sprintf("n%d", i)
		nodes[i] = testutil.ActionNode(ids[i])

		if i == 0 {
			continue
		}

		parent := rapid.IntRange(0, i-1).Draw(rt, "parent")
		conns = append(conns, testutil.Connect(ids[parent], ids[i]))

		if extra := rapid.IntRange(-1, i-1).Draw(rt, "extra"); extra >= 0 && extra != parent {
			conns = append(conns, testutil.Connect(ids[extra], ids[i]))
		}
	}

	failing := rapid.SliceOfDistinct(rapid.SampledFrom(ids), func(s string) string { return s }).Draw(rt, "failing")

	return nodes, conns, failing
}

// counterSnapshots reloads the act from storage at every sequence and step boundary.
type counterSnapshots struct {
	acts *act.Store

	mu    sync.Mutex
	taken []models.StepCounters
	errs  []error
}

func (c *counterSnapshots) take(ctx context.Context, a models.Act) {
	loaded, err := c.acts.Get(context.WithoutCancel(ctx), a.ID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.errs = append(c.errs, err)

		return
	}

	c.taken = append(c.taken, loaded.Steps)
}

func (c *counterSnapshots) callbacks() act.Callbacks {
	return act.Callbacks{
		OnActStart: c.take,
		OnSequenceStart: func(ctx context.Context, a models.Act, _ models.Sequence) {
			c.take(ctx, a)
		},
		OnSequenceComplete: func(ctx context.Context, a models.Act, _ models.Sequence) {
			c.take(ctx, a)
		},
		OnSequenceFail: func(ctx context.Context, a models.Act, _ models.Sequence) {
			c.take(ctx, a)
		},
		OnStepComplete: func(ctx context.Context, a models.Act, _ models.Sequence, _ models.Step, _ executor.StepResult) {
			c.take(ctx, a)
		},
		OnStepFail: func(ctx context.Context, a models.Act, _ models.Sequence, _ models.Step, _ executor.StepResult) {
			c.take(ctx, a)
		},
	}
}

func hasNegative(c models.StepCounters) bool {
	return c.Queued < 0 || c.InProgress < 0 || c.Completed < 0 || c.Failed < 0 || c.Cancelled < 0
}

func TestOrchestrator_CountersAlwaysBalance(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		nodes, conns, failing := randomDAG(rt)

		f := newFixture()
		f.exec.failing(failing...)

		snapshots := &counterSnapshots{acts: f.acts}
		svc := f.service(act.WithCallbacks(f.recorder.callbacks(), snapshots.callbacks()))

		err := f.saveWorkspace(ctx, nodes, conns)
		require.NoError(rt, err)

		created, err := svc.CreateRun(ctx, act.CreateRunRequest{WorkspaceID: workspaceID, StartNodeID: "n0"})
		require.NoError(rt, err)

		done, err := svc.RunAndWait(ctx, created.ID)
		require.NoError(rt, err)

		total := created.TotalSteps()
		assert.Equal(rt, len(nodes), total)
		assert.Equal(rt, total, done.Steps.Total())
		assert.Equal(rt, 0, done.Steps.InProgress)
		assert.Equal(rt, len(f.exec.ran()), done.Steps.Completed+done.Steps.Failed)

		require.Empty(rt, snapshots.errs)
		require.NotEmpty(rt, snapshots.taken)

		for i, c := range snapshots.taken {
			assert.Equal(rt, total, c.Total(), "snapshot %d: %+v", i, c)
			assert.False(rt, hasNegative(c), "snapshot %d: %+v", i, c)
		}

		anyFailed := slices.ContainsFunc(f.exec.ran(), func(id string) bool { return slices.Contains(failing, id) })
		if anyFailed {
			assert.Equal(rt, models.ActStatusFailed, done.Status)
			assert.Positive(rt, done.Steps.Failed)
		} else {
			assert.Equal(rt, models.ActStatusCompleted, done.Status)
			assert.Equal(rt, total, done.Steps.Completed)
		}
	})
}
