// Package workflow derives execution plans from workspace graphs.
package workflow

import (
	"strconv"

	"github.com/dukex/actflow/pkg/models"
)

// Build levels the operation nodes connected to startNode into sequences.
//
// Only connections whose endpoints both exist are considered. Membership is the
// undirected component of startNode over every connection; ordering uses only
// operation-to-operation edges. Steps in one sequence keep the input node order.
// Build is pure and never caches.
func Build(startNode models.Node, nodes []models.Node, connections []models.Connection) (*models.Workflow, error) {
	g := newGraph(nodes, connections)

	if _, ok := g.byID[startNode.ID]; !ok {
		return nil, &BuildError{StartNodeID: startNode.ID, Err: ErrStartNodeNotFound}
	}

	component := g.component(startNode.ID)

	members := make([]models.Node, 0, len(component))
	operations := make([]models.Node, 0, len(component))

	for _, n := range g.nodes {
		if !component[n.ID] {
			continue
		}

		members = append(members, n)

		if n.IsOperation() {
			operations = append(operations, n)
		}
	}

	if len(operations) == 0 {
		return nil, &BuildError{StartNodeID: startNode.ID, Err: ErrNoOperationNodes}
	}

	levels, undrained := g.level(operations)
	if len(undrained) > 0 {
		return nil, &BuildError{StartNodeID: startNode.ID, NodeIDs: undrained, Err: ErrCycle}
	}

	wf := &models.Workflow{
		ID:          "wf-" + startNode.ID,
		StartNodeID: startNode.ID,
		Sequences:   make([]models.Sequence, 0, len(levels)),
		Nodes:       members,
	}

	for i, level := range levels {
		seq := models.Sequence{
			ID:    sequenceID(i),
			Steps: make([]models.Step, 0, len(level)),
		}

		for _, n := range level {
			seq.Steps = append(seq.Steps, models.Step{
				ID:          "stp-" + n.ID,
				Node:        n,
				SourceNodes: g.sourceNodes(n.ID),
				Connections: append([]models.Connection{}, g.incoming[n.ID]...),
			})
		}

		wf.Sequences = append(wf.Sequences, seq)
	}

	return wf, nil
}

// Downstream returns the ids of operation nodes reachable from fromNodeID over
// operation-to-operation edges, including fromNodeID itself.
func Downstream(nodes []models.Node, connections []models.Connection, fromNodeID string) map[string]bool {
	g := newGraph(nodes, connections)
	reached := map[string]bool{}

	if _, ok := g.byID[fromNodeID]; !ok {
		return reached
	}

	queue := []string{fromNodeID}
	reached[fromNodeID] = true

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, next := range g.opSuccessors(id) {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}

	return reached
}

func sequenceID(level int) string {
	return "sqn-" + strconv.Itoa(level)
}
