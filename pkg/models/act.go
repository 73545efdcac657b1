package models

import "time"

// ActStatus is the overall state of a run.
type ActStatus string

const (
	ActStatusInProgress ActStatus = "inProgress"
	ActStatusCompleted  ActStatus = "completed"
	ActStatusFailed     ActStatus = "failed"
	ActStatusCancelled  ActStatus = "cancelled"
)

// IsTerminal reports whether the run has finished.
func (s ActStatus) IsTerminal() bool {
	return s != ActStatusInProgress
}

// StepCounters tracks how many steps of a run are in each state.
type StepCounters struct {
	Queued     int `json:"queued"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Warning    int `json:"warning"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// Total sums every counter except Warning, which overlaps the others.
func (c StepCounters) Total() int {
	return c.Queued + c.InProgress + c.Completed + c.Failed + c.Cancelled
}

// Duration accumulates timings in milliseconds.
type Duration struct {
	WallClock int64 `json:"wallClock"`
	TotalTask int64 `json:"totalTask"`
}

// AnnotationLevel is the severity of an annotation.
type AnnotationLevel string

const (
	AnnotationLevelInfo    AnnotationLevel = "info"
	AnnotationLevelWarning AnnotationLevel = "warning"
	AnnotationLevelError   AnnotationLevel = "error"
)

// Annotation is a human readable entry in the run log.
type Annotation struct {
	Level      AnnotationLevel `json:"level"`
	Message    string          `json:"message"`
	SequenceID string          `json:"sequenceId,omitempty"`
	StepID     string          `json:"stepId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Trigger describes what started a run.
type Trigger struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// Act is one end-to-end execution of a workflow. Sequences are frozen at creation.
type Act struct {
	ID          string       `json:"id"`
	WorkspaceID string       `json:"workspaceId"`
	Name        string       `json:"name,omitempty"`
	Status      ActStatus    `json:"status"`
	StartNodeID string       `json:"startNodeId"`
	Trigger     Trigger      `json:"trigger"`
	Steps       StepCounters `json:"steps"`
	Duration    Duration     `json:"duration"`
	Usage       Usage        `json:"usage"`
	Annotations []Annotation `json:"annotations"`
	Sequences   []Sequence   `json:"sequences"`
	Inputs      Inputs       `json:"inputs,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// TotalSteps counts steps across the frozen sequences.
func (a Act) TotalSteps() int {
	return CountSteps(a.Sequences)
}
