package models

// Workflow is the execution plan derived from a workspace graph: ordered
// sequences whose steps may run concurrently.
type Workflow struct {
	ID          string     `json:"id"`
	StartNodeID string     `json:"startNodeId"`
	Sequences   []Sequence `json:"sequences"`
	Nodes       []Node     `json:"nodes"`
}

// Sequence is one topological level of a workflow.
type Sequence struct {
	ID    string `json:"id"`
	Steps []Step `json:"steps"`
}

// Step runs a single operation node with its resolved upstream context.
type Step struct {
	ID           string       `json:"id"`
	Node         Node         `json:"node"`
	SourceNodes  []Node       `json:"sourceNodes"`
	Connections  []Connection `json:"connections"`
	GenerationID string       `json:"generationId,omitempty"`
}

// TotalSteps counts steps across all sequences.
func (w Workflow) TotalSteps() int {
	return CountSteps(w.Sequences)
}

// CountSteps counts steps across the given sequences.
func CountSteps(sequences []Sequence) int {
	total := 0
	for _, s := range sequences {
		total += len(s.Steps)
	}

	return total
}
