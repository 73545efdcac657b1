package models

import (
	"errors"
	"fmt"
	"time"
)

// GenerationStatus is the lifecycle state of a generation.
type GenerationStatus string

const (
	GenerationStatusCreated   GenerationStatus = "created"
	GenerationStatusQueued    GenerationStatus = "queued"
	GenerationStatusRunning   GenerationStatus = "running"
	GenerationStatusCompleted GenerationStatus = "completed"
	GenerationStatusFailed    GenerationStatus = "failed"
	GenerationStatusCancelled GenerationStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed || s == GenerationStatusCancelled
}

var allowedTransitions = map[GenerationStatus][]GenerationStatus{
	GenerationStatusCreated: {GenerationStatusQueued, GenerationStatusCancelled},
	GenerationStatusQueued:  {GenerationStatusRunning, GenerationStatusCancelled},
	GenerationStatusRunning: {GenerationStatusCompleted, GenerationStatusFailed, GenerationStatusCancelled},
}

// CanTransition reports whether a generation in status from may move to status to.
func CanTransition(from, to GenerationStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

// ErrInvalidTransition is the sentinel wrapped by every TransitionError.
var ErrInvalidTransition = errors.New("invalid generation status transition")

// TransitionError reports a rejected status change.
type TransitionError struct {
	ID   string
	From GenerationStatus
	To   GenerationStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("generation %s: cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// OriginType tells which surface produced a generation.
type OriginType string

const (
	OriginTypeWorkspace OriginType = "workspace"
	OriginTypeRun       OriginType = "run"
	OriginTypeGitHubApp OriginType = "github-app"
)

// Origin identifies the owner of a generation. ID is the act id for runs and
// the installation id for GitHub app origins.
type Origin struct {
	Type        OriginType `json:"type"                  validate:"required,oneof=workspace run github-app"`
	ID          string     `json:"id"                    validate:"required"`
	WorkspaceID string     `json:"workspaceId,omitempty"`
}

// GenerationContext is everything an executor needs to run one operation node.
type GenerationContext struct {
	OperationNode Node         `json:"operationNode"`
	Connections   []Connection `json:"connections"`
	SourceNodes   []Node       `json:"sourceNodes"`
	Origin        Origin       `json:"origin"`
	Inputs        Inputs       `json:"inputs,omitempty"`
}

// WorkspaceID resolves the owning workspace of the context.
func (c GenerationContext) WorkspaceID() string {
	if c.Origin.Type == OriginTypeWorkspace {
		return c.Origin.ID
	}

	return c.Origin.WorkspaceID
}

// Usage accumulates token consumption.
type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

// Add returns the sum of two usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// OutputType is the kind of value an executor produced.
type OutputType string

const (
	OutputTypeGeneratedText    OutputType = "generated-text"
	OutputTypeGeneratedImage   OutputType = "generated-image"
	OutputTypeQueryResult      OutputType = "query-result"
	OutputTypeActionResult     OutputType = "action-result"
	OutputTypeTriggerParameter OutputType = "trigger-parameter"
)

// Image is one generated image.
type Image struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
}

// QueryRecord is one row returned by a query.
type QueryRecord struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

// GenerationOutput is a value bound to one output port of the operation node.
type GenerationOutput struct {
	OutputID string        `json:"outputId"`
	Type     OutputType    `json:"type"`
	Content  string        `json:"content,omitempty"`
	Images   []Image       `json:"images,omitempty"`
	Records  []QueryRecord `json:"records,omitempty"`
}

// GenerationError is the failure detail of a generation.
type GenerationError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e GenerationError) Error() string {
	return e.Name + ": " + e.Message
}

// Generation is the lifecycle record of one node's single execution.
// Transition methods return a new value and leave the receiver untouched.
type Generation struct {
	ID          string             `json:"id"`
	Context     GenerationContext  `json:"context"`
	Status      GenerationStatus   `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	QueuedAt    *time.Time         `json:"queuedAt,omitempty"`
	StartedAt   *time.Time         `json:"startedAt,omitempty"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
	FailedAt    *time.Time         `json:"failedAt,omitempty"`
	CancelledAt *time.Time         `json:"cancelledAt,omitempty"`
	Outputs     []GenerationOutput `json:"outputs,omitempty"`
	Usage       *Usage             `json:"usage,omitempty"`
	Error       *GenerationError   `json:"error,omitempty"`
}

// NewGeneration creates a generation in the created state.
func NewGeneration(id string, ctx GenerationContext, now time.Time) Generation {
	return Generation{
		ID:        id,
		Context:   ctx,
		Status:    GenerationStatusCreated,
		CreatedAt: now,
	}
}

// NodeID returns the operation node the generation runs.
func (g Generation) NodeID() string {
	return g.Context.OperationNode.ID
}

// Output returns the output bound to the given output port.
func (g Generation) Output(outputID string) (GenerationOutput, bool) {
	for _, o := range g.Outputs {
		if o.OutputID == outputID {
			return o, true
		}
	}

	return GenerationOutput{}, false
}

func (g Generation) transition(to GenerationStatus) (Generation, error) {
	if !CanTransition(g.Status, to) {
		return g, &TransitionError{ID: g.ID, From: g.Status, To: to}
	}

	next := g
	next.Status = to

	return next, nil
}

// Queue moves a created generation to queued.
func (g Generation) Queue(now time.Time) (Generation, error) {
	next, err := g.transition(GenerationStatusQueued)
	if err != nil {
		return g, err
	}

	next.QueuedAt = &now

	return next, nil
}

// Start moves a queued generation to running.
func (g Generation) Start(now time.Time) (Generation, error) {
	next, err := g.transition(GenerationStatusRunning)
	if err != nil {
		return g, err
	}

	next.StartedAt = &now

	return next, nil
}

// Complete finishes a running generation with its outputs.
func (g Generation) Complete(now time.Time, outputs []GenerationOutput, usage *Usage) (Generation, error) {
	next, err := g.transition(GenerationStatusCompleted)
	if err != nil {
		return g, err
	}

	next.CompletedAt = &now
	next.Outputs = append([]GenerationOutput(nil), outputs...)
	next.Usage = usage

	return next, nil
}

// Fail finishes a running generation with an error.
func (g Generation) Fail(now time.Time, failure GenerationError) (Generation, error) {
	next, err := g.transition(GenerationStatusFailed)
	if err != nil {
		return g, err
	}

	next.FailedAt = &now
	next.Error = &failure

	return next, nil
}

// Cancel stops a generation that has not finished.
func (g Generation) Cancel(now time.Time) (Generation, error) {
	next, err := g.transition(GenerationStatusCancelled)
	if err != nil {
		return g, err
	}

	next.CancelledAt = &now

	return next, nil
}
