// Package events defines the notifications published while acts run.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/actflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every act lifecycle event.
const Topic = "actflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Act lifecycle events.
	ActCreatedEvent   EventType = "act.created"
	ActStartedEvent   EventType = "act.started"
	ActCompletedEvent EventType = "act.completed"
	ActFailedEvent    EventType = "act.failed"
	ActCancelledEvent EventType = "act.cancelled"

	// Sequence events.
	SequenceStartedEvent   EventType = "sequence.started"
	SequenceCompletedEvent EventType = "sequence.completed"
	SequenceFailedEvent    EventType = "sequence.failed"
	SequenceSkippedEvent   EventType = "sequence.skipped"

	// Step events.
	StepStartedEvent   EventType = "step.started"
	StepCompletedEvent EventType = "step.completed"
	StepFailedEvent    EventType = "step.failed"
)

// ErrUnknownEventType is returned when decoding a type this package does not define.
var ErrUnknownEventType = errors.New("unknown event type")

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ActID       string         `json:"act_id"`
	WorkspaceID string         `json:"workspace_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, act models.Act) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ActID:       act.ID,
		WorkspaceID: act.WorkspaceID,
	}
}

// ActEvent reports a change of the whole run.
type ActEvent struct {
	BaseEvent

	Status      models.ActStatus    `json:"status"`
	StartNodeID string              `json:"start_node_id"`
	Trigger     models.Trigger      `json:"trigger"`
	Steps       models.StepCounters `json:"steps"`
	Usage       models.Usage        `json:"usage"`
	WallClockMs int64               `json:"wall_clock_ms,omitempty"`
}

func (e ActEvent) GetType() EventType {
	return e.Type
}

// NewActEvent snapshots the act's status and counters.
func NewActEvent(eventType EventType, act models.Act) *ActEvent {
	return &ActEvent{
		BaseEvent:   NewBaseEvent(eventType, act),
		Status:      act.Status,
		StartNodeID: act.StartNodeID,
		Trigger:     act.Trigger,
		Steps:       act.Steps,
		Usage:       act.Usage,
		WallClockMs: act.Duration.WallClock,
	}
}

// SequenceEvent reports a change of one sequence.
type SequenceEvent struct {
	BaseEvent

	SequenceID string   `json:"sequence_id"`
	StepIDs    []string `json:"step_ids"`
}

func (e SequenceEvent) GetType() EventType {
	return e.Type
}

func NewSequenceEvent(eventType EventType, act models.Act, seq models.Sequence) *SequenceEvent {
	ids := make([]string, 0, len(seq.Steps))
	for _, s := range seq.Steps {
		ids = append(ids, s.ID)
	}

	return &SequenceEvent{
		BaseEvent:  NewBaseEvent(eventType, act),
		SequenceID: seq.ID,
		StepIDs:    ids,
	}
}

// StepEvent reports a change of one step.
type StepEvent struct {
	BaseEvent

	SequenceID   string             `json:"sequence_id"`
	StepID       string             `json:"step_id"`
	NodeID       string             `json:"node_id"`
	ContentType  models.ContentType `json:"content_type"`
	GenerationID string             `json:"generation_id"`
	Usage        models.Usage       `json:"usage"`
	Error        string             `json:"error,omitempty"`
}

func (e StepEvent) GetType() EventType {
	return e.Type
}

func NewStepEvent(eventType EventType, act models.Act, seq models.Sequence, step models.Step) *StepEvent {
	return &StepEvent{
		BaseEvent:    NewBaseEvent(eventType, act),
		SequenceID:   seq.ID,
		StepID:       step.ID,
		NodeID:       step.Node.ID,
		ContentType:  step.Node.ContentType(),
		GenerationID: step.GenerationID,
	}
}

// Event is anything published on Topic.
type Event interface {
	GetType() EventType
}

// Decode builds the concrete event for eventType from its JSON payload.
func Decode(eventType EventType, payload []byte) (Event, error) {
	var event Event

	switch {
	case strings.HasPrefix(string(eventType), "act."):
		event = &ActEvent{}
	case strings.HasPrefix(string(eventType), "sequence."):
		event = &SequenceEvent{}
	case strings.HasPrefix(string(eventType), "step."):
		event = &StepEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	err := json.Unmarshal(payload, event)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}

	return event, nil
}

// ActFinishedEvent maps a terminal status to its event type.
func ActFinishedEvent(status models.ActStatus) EventType {
	switch status {
	case models.ActStatusFailed:
		return ActFailedEvent
	case models.ActStatusCancelled:
		return ActCancelledEvent
	default:
		return ActCompletedEvent
	}
}
