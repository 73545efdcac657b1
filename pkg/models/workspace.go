package models

import "time"

// Workspace is the editable graph runs are derived from.
type Workspace struct {
	ID          string       `json:"id"          validate:"required"`
	Name        string       `json:"name"`
	Nodes       []Node       `json:"nodes"       validate:"dive"`
	Connections []Connection `json:"connections" validate:"dive"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Node returns the node with the given id.
func (w Workspace) Node(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return Node{}, false
}
