package act_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/executor"
	"github.com/dukex/actflow/pkg/generation"
	"github.com/dukex/actflow/pkg/index"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/persistence/memory"
	"github.com/dukex/actflow/pkg/testutil"
	"github.com/dukex/actflow/pkg/workspace"
)

const workspaceID = "ws-1"

var errBoom = errors.New("boom")

// scriptedExecutor drives generations through the manager with per-node outcomes.
type scriptedExecutor struct {
	generations *generation.Manager

	mu       sync.Mutex
	fail     map[string]bool
	fatal    map[string]bool
	block    map[string]bool
	executed []string
	started  chan string

	active atomic.Int32
	peak   atomic.Int32
}

func (e *scriptedExecutor) failing(ids ...string) *scriptedExecutor {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.fail = map[string]bool{}
	for _, id := range ids {
		e.fail[id] = true
	}

	return e
}

func (e *scriptedExecutor) Execute(ctx context.Context, step models.Step, generationID string) (executor.StepResult, error) {
	e.mu.Lock()
	e.executed = append(e.executed, step.Node.ID)
	fail, fatal, block := e.fail[step.Node.ID], e.fatal[step.Node.ID], e.block[step.Node.ID]
	e.mu.Unlock()

	n := e.active.Add(1)
	defer e.active.Add(-1)

	for {
		peak := e.peak.Load()
		if n <= peak || e.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if fatal {
		return executor.StepResult{}, &executor.ConfigError{NodeID: step.Node.ID, Err: executor.ErrCapabilityUnavailable}
	}

	storeCtx := context.WithoutCancel(ctx)

	_, err := e.generations.Start(storeCtx, generationID)
	if err != nil {
		return executor.StepResult{}, err
	}

	if e.started != nil {
		e.started <- step.Node.ID
	}

	if block {
		<-ctx.Done()

		_, err = e.generations.Cancel(storeCtx, generationID)

		return executor.StepResult{Cancelled: true}, err
	}

	time.Sleep(5 * time.Millisecond)

	if fail {
		failure := models.GenerationError{Name: "ActionError", Message: errBoom.Error()}

		_, err = e.generations.Fail(storeCtx, generationID, failure)

		return executor.StepResult{Erred: true, Failure: &failure}, err
	}

	usage := models.Usage{PromptTokens: 2, CompletionTokens: 1, TotalTokens: 3}

	_, err = e.generations.Complete(storeCtx, generationID, []models.GenerationOutput{
		{OutputID: "out", Type: models.OutputTypeActionResult, Content: step.Node.ID},
	}, &usage)

	return executor.StepResult{Usage: usage}, err
}

func (e *scriptedExecutor) ran() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string{}, e.executed...)
}

// recorder collects callback invocations as "event:id" strings.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string{}, r.events...)
}

func (r *recorder) callbacks() act.Callbacks {
	return act.Callbacks{
		OnActCreate: func(_ context.Context, a models.Act) { r.add("actCreate:%s", a.ID) },
		OnActStart:  func(_ context.Context, a models.Act) { r.add("actStart:%s", a.ID) },
		OnSequenceStart: func(_ context.Context, _ models.Act, s models.Sequence) {
			r.add("sequenceStart:%s", s.ID)
		},
		OnSequenceComplete: func(_ context.Context, _ models.Act, s models.Sequence) {
			r.add("sequenceComplete:%s", s.ID)
		},
		OnSequenceFail: func(_ context.Context, _ models.Act, s models.Sequence) {
			r.add("sequenceFail:%s", s.ID)
		},
		OnSequenceSkip: func(_ context.Context, _ models.Act, s models.Sequence) {
			r.add("sequenceSkip:%s", s.ID)
		},
		OnStepStart: func(_ context.Context, _ models.Act, _ models.Sequence, st models.Step) {
			r.add("stepStart:%s", st.Node.ID)
		},
		OnStepComplete: func(_ context.Context, _ models.Act, _ models.Sequence, st models.Step, _ executor.StepResult) {
			r.add("stepComplete:%s", st.Node.ID)
		},
		OnStepFail: func(_ context.Context, _ models.Act, _ models.Sequence, st models.Step, _ executor.StepResult) {
			r.add("stepFail:%s", st.Node.ID)
		},
		OnActComplete: func(_ context.Context, a models.Act) { r.add("actComplete:%s", a.Status) },
	}
}

type fixture struct {
	store       *memory.Persistence
	generations *generation.Manager
	acts        *act.Store
	workspaces  *workspace.Repository
	exec        *scriptedExecutor
	recorder    *recorder
	logger      *slog.Logger
}

func newFixture() *fixture {
	store := memory.NewPersistence()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	ix := index.New(store, logger)
	gens := generation.NewManager(store, ix, logger)

	return &fixture{
		store:       store,
		generations: gens,
		acts:        act.NewStore(store, ix, logger, nil),
		workspaces:  workspace.NewRepository(store),
		exec:        &scriptedExecutor{generations: gens},
		recorder:    &recorder{},
		logger:      logger,
	}
}

func (f *fixture) orchestrator(opts ...act.OrchestratorOption) *act.Orchestrator {
	opts = append([]act.OrchestratorOption{act.WithCallbacks(f.recorder.callbacks())}, opts...)

	return act.NewOrchestrator(f.acts, f.generations, f.exec, f.logger, opts...)
}

func (f *fixture) service(opts ...act.OrchestratorOption) *act.Service {
	return act.NewService(f.acts, f.generations, f.workspaces, f.orchestrator(opts...), f.logger)
}

func (f *fixture) saveWorkspace(ctx context.Context, nodes []models.Node, conns []models.Connection) error {
	_, err := f.workspaces.Save(ctx, testutil.Workspace(workspaceID, nodes, conns))

	return err
}

func (f *fixture) status(ctx context.Context, generationID string) models.GenerationStatus {
	g, err := f.generations.Get(ctx, generationID)
	if err != nil {
		return ""
	}

	return g.Status
}
