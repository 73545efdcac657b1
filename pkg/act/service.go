package act

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/patch"
	"github.com/dukex/actflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// TriggerTypeManual marks runs started by a direct request.
const TriggerTypeManual = "manual"

// TriggerTypeRetry marks runs derived from a previous act.
const TriggerTypeRetry = "retry"

// WorkspaceSource loads workspace graphs.
type WorkspaceSource interface {
	Get(ctx context.Context, id string) (models.Workspace, error)
}

// RunGenerations is what the run service needs from the generation manager.
type RunGenerations interface {
	Generations
	Create(ctx context.Context, genCtx models.GenerationContext) (models.Generation, error)
	LatestCompleted(ctx context.Context, workspaceID, nodeID string) (models.Generation, bool, error)
}

// CreateRunRequest describes a new run.
type CreateRunRequest struct {
	WorkspaceID string         `validate:"required"`
	StartNodeID string         `validate:"required"`
	Name        string
	Inputs      models.Inputs
	Trigger     models.Trigger
}

// Service exposes the run entry points on top of the orchestrator.
type Service struct {
	acts         *Store
	generations  RunGenerations
	workspaces   WorkspaceSource
	orchestrator *Orchestrator
	validator    *validator.Validate
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewService wires the run entry points. The service shares the orchestrator's clock
// and callbacks.
func NewService(acts *Store, generations RunGenerations, workspaces WorkspaceSource, orchestrator *Orchestrator, logger *slog.Logger) *Service {
	return &Service{
		acts:         acts,
		generations:  generations,
		workspaces:   workspaces,
		orchestrator: orchestrator,
		validator:    validator.New(),
		logger:       logger.With("module", "run_service"),
		now:          orchestrator.now,
		newID:        func() string { return "act-" + uuid.New().String() },
		running:      make(map[string]context.CancelFunc),
	}
}

// CreateRun derives the workflow from the current workspace graph and stores a new
// act with one created generation per step. Nothing runs until StartRun.
func (s *Service) CreateRun(ctx context.Context, req CreateRunRequest) (models.Act, error) {
	err := s.validator.Struct(req)
	if err != nil {
		return models.Act{}, fmt.Errorf("invalid run request: %w", err)
	}

	ws, err := s.workspaces.Get(ctx, req.WorkspaceID)
	if err != nil {
		return models.Act{}, err
	}

	wf, err := buildFrom(ws, req.StartNodeID)
	if err != nil {
		return models.Act{}, err
	}

	return s.createAct(ctx, ws.ID, req, wf.Sequences)
}

// StartRun drives the act in the background and returns immediately. Progress is
// observed through GetRun.
func (s *Service) StartRun(ctx context.Context, actID string) error {
	runCtx, err := s.claim(ctx, actID)
	if err != nil {
		return err
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		_, _ = s.drive(runCtx, actID)
	}()

	return nil
}

// RunAndWait drives the act on the calling goroutine and returns its final record.
func (s *Service) RunAndWait(ctx context.Context, actID string) (models.Act, error) {
	runCtx, err := s.claim(ctx, actID)
	if err != nil {
		return models.Act{}, err
	}

	return s.drive(runCtx, actID)
}

// GetRun loads an act.
func (s *Service) GetRun(ctx context.Context, actID string) (models.Act, error) {
	return s.acts.Get(ctx, actID)
}

// ListRuns returns the acts of a workspace, oldest first.
func (s *Service) ListRuns(ctx context.Context, workspaceID string) ([]models.Act, error) {
	return s.acts.ListByWorkspace(ctx, workspaceID)
}

// CancelRun stops a running act, or cancels a pending one outright.
func (s *Service) CancelRun(ctx context.Context, actID string) (models.Act, error) {
	s.mu.Lock()
	cancel, running := s.running[actID]
	s.mu.Unlock()

	if running {
		cancel()
		s.logger.InfoContext(ctx, "Act cancellation requested", "act_id", actID)

		return s.acts.Get(ctx, actID)
	}

	return s.orchestrator.CancelPending(ctx, actID)
}

// RetryRun creates a new act that re-runs fromNodeID and everything downstream of it,
// reusing the latest completed generations of the steps that are left out. fromNodeID
// must be an operation step of the previous act. Executors are expected to tolerate
// re-execution of the retried steps.
func (s *Service) RetryRun(ctx context.Context, actID, fromNodeID string) (models.Act, error) {
	prev, err := s.acts.Get(ctx, actID)
	if err != nil {
		return models.Act{}, err
	}

	ws, err := s.workspaces.Get(ctx, prev.WorkspaceID)
	if err != nil {
		return models.Act{}, err
	}

	wf, err := buildFrom(ws, prev.StartNodeID)
	if err != nil {
		return models.Act{}, err
	}

	downstream := workflow.Downstream(ws.Nodes, ws.Connections, fromNodeID)
	if !downstream[fromNodeID] {
		return models.Act{}, &workflow.BuildError{StartNodeID: fromNodeID, Err: workflow.ErrStartNodeNotFound}
	}

	kept := make([]models.Sequence, 0, len(wf.Sequences))
	dropped := map[string]bool{}
	retried := false

	for _, seq := range wf.Sequences {
		steps := make([]models.Step, 0, len(seq.Steps))

		for _, step := range seq.Steps {
			if downstream[step.Node.ID] {
				steps = append(steps, step)
				retried = retried || step.Node.ID == fromNodeID
			} else {
				dropped[step.Node.ID] = true
			}
		}

		if len(steps) > 0 {
			kept = append(kept, models.Sequence{ID: seq.ID, Steps: steps})
		}
	}

	if !retried {
		return models.Act{}, fmt.Errorf("%w: node %s is not a step of act %s", ErrRetryUnavailable, fromNodeID, prev.ID)
	}

	err = s.requireUpstream(ctx, ws.ID, kept, dropped)
	if err != nil {
		return models.Act{}, err
	}

	return s.createAct(ctx, ws.ID, CreateRunRequest{
		WorkspaceID: ws.ID,
		StartNodeID: fromNodeID,
		Name:        prev.Name,
		Inputs:      prev.Inputs,
		Trigger:     models.Trigger{Type: TriggerTypeRetry, ID: prev.ID},
	}, kept)
}

// Wait blocks until every background run has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) requireUpstream(ctx context.Context, workspaceID string, kept []models.Sequence, dropped map[string]bool) error {
	checked := map[string]bool{}

	for _, seq := range kept {
		for _, step := range seq.Steps {
			for _, conn := range step.Connections {
				src := conn.SourceNodeID()
				if !dropped[src] || checked[src] {
					continue
				}

				checked[src] = true

				_, found, err := s.generations.LatestCompleted(ctx, workspaceID, src)
				if err != nil {
					return err
				}

				if !found {
					return fmt.Errorf("%w: node %s has never completed", ErrRetryUnavailable, src)
				}
			}
		}
	}

	return nil
}

func (s *Service) createAct(ctx context.Context, workspaceID string, req CreateRunRequest, sequences []models.Sequence) (models.Act, error) {
	now := s.now()
	id := s.newID()

	trigger := req.Trigger
	if trigger.Type == "" {
		trigger.Type = TriggerTypeManual
	}

	frozen := make([]models.Sequence, len(sequences))

	for i, seq := range sequences {
		frozen[i] = models.Sequence{ID: seq.ID, Steps: make([]models.Step, len(seq.Steps))}

		for j, step := range seq.Steps {
			g, err := s.generations.Create(ctx, models.GenerationContext{
				OperationNode: step.Node,
				Connections:   step.Connections,
				SourceNodes:   step.SourceNodes,
				Origin:        models.Origin{Type: models.OriginTypeRun, ID: id, WorkspaceID: workspaceID},
				Inputs:        req.Inputs,
			})
			if err != nil {
				return models.Act{}, fmt.Errorf("failed to create generation for step %s: %w", step.ID, err)
			}

			step.GenerationID = g.ID
			frozen[i].Steps[j] = step
		}
	}

	act := models.Act{
		ID:          id,
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Status:      models.ActStatusInProgress,
		StartNodeID: req.StartNodeID,
		Trigger:     trigger,
		Steps:       models.StepCounters{Queued: models.CountSteps(frozen)},
		Annotations: []models.Annotation{},
		Sequences:   frozen,
		Inputs:      req.Inputs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.acts.Create(ctx, act)
	if err != nil {
		return models.Act{}, err
	}

	s.logger.InfoContext(ctx, "Act created",
		"act_id", act.ID,
		"workspace_id", workspaceID,
		"start_node_id", req.StartNodeID,
		"steps", act.Steps.Queued)
	s.orchestrator.callbacks.actCreate(ctx, act)

	return act, nil
}

// claim registers a cancellable context for the act, refusing acts already running or finished.
func (s *Service) claim(ctx context.Context, actID string) (context.Context, error) {
	act, err := s.acts.Get(ctx, actID)
	if err != nil {
		return nil, err
	}

	if act.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrActFinished, actID, act.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.running[actID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrActRunning, actID)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.running[actID] = cancel

	return runCtx, nil
}

func (s *Service) drive(ctx context.Context, actID string) (models.Act, error) {
	defer func() {
		s.mu.Lock()
		cancel := s.running[actID]
		delete(s.running, actID)
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
	}()

	act, err := s.orchestrator.Run(ctx, actID)
	if err == nil || errors.Is(err, ErrActFinished) {
		return act, err
	}

	s.logger.ErrorContext(ctx, "Act run aborted", "act_id", actID, "error", err)

	storeCtx := context.WithoutCancel(ctx)

	failed, markErr := s.markFailed(storeCtx, actID, err)
	if markErr != nil {
		s.logger.ErrorContext(ctx, "Failed to mark aborted act", "act_id", actID, "error", markErr)

		return act, errors.Join(err, markErr)
	}

	// An empty act means the run stopped before it loaded the record and never announced a start.
	if act.ID != "" {
		s.orchestrator.callbacks.actComplete(storeCtx, failed)
	}

	return failed, err
}

func (s *Service) markFailed(ctx context.Context, actID string, cause error) (models.Act, error) {
	_, err := s.acts.Annotate(ctx, actID, models.Annotation{Level: models.AnnotationLevelError, Message: cause.Error()})
	if err != nil {
		return models.Act{}, err
	}

	return s.acts.Patch(ctx, actID, patch.Delta{"status": patch.SetString(string(models.ActStatusFailed))})
}

func buildFrom(ws models.Workspace, startNodeID string) (*models.Workflow, error) {
	start, ok := ws.Node(startNodeID)
	if !ok {
		return nil, &workflow.BuildError{StartNodeID: startNodeID, Err: workflow.ErrStartNodeNotFound}
	}

	return workflow.Build(start, ws.Nodes, ws.Connections)
}
