package workflow

import "github.com/dukex/actflow/pkg/models"

type graph struct {
	nodes       []models.Node
	byID        map[string]models.Node
	connections []models.Connection
	incoming    map[string][]models.Connection
	outgoing    map[string][]models.Connection
}

func newGraph(nodes []models.Node, connections []models.Connection) *graph {
	g := &graph{
		nodes:    nodes,
		byID:     make(map[string]models.Node, len(nodes)),
		incoming: map[string][]models.Connection{},
		outgoing: map[string][]models.Connection{},
	}

	for _, n := range nodes {
		if _, dup := g.byID[n.ID]; !dup {
			g.byID[n.ID] = n
		}
	}

	for _, c := range connections {
		source, target := c.SourceNodeID(), c.TargetNodeID()

		_, sourceOK := g.byID[source]
		_, targetOK := g.byID[target]

		if !sourceOK || !targetOK {
			continue
		}

		g.connections = append(g.connections, c)
		g.incoming[target] = append(g.incoming[target], c)
		g.outgoing[source] = append(g.outgoing[source], c)
	}

	return g
}

// component returns the ids reachable from start ignoring edge direction.
func (g *graph) component(start string) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, c := range g.outgoing[id] {
			if next := c.TargetNodeID(); !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}

		for _, c := range g.incoming[id] {
			if next := c.SourceNodeID(); !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}

	return seen
}

func (g *graph) isOperation(id string) bool {
	n, ok := g.byID[id]

	return ok && n.IsOperation()
}

func (g *graph) opSuccessors(id string) []string {
	if !g.isOperation(id) {
		return nil
	}

	out := make([]string, 0, len(g.outgoing[id]))

	for _, c := range g.outgoing[id] {
		if target := c.TargetNodeID(); g.isOperation(target) {
			out = append(out, target)
		}
	}

	return out
}

// level runs Kahn's algorithm and returns the levels plus any operation nodes
// left with a positive in-degree.
func (g *graph) level(operations []models.Node) ([][]models.Node, []string) {
	inDegree := make(map[string]int, len(operations))
	for _, n := range operations {
		inDegree[n.ID] = 0
	}

	for _, n := range operations {
		for _, next := range g.opSuccessors(n.ID) {
			if _, ok := inDegree[next]; ok {
				inDegree[next]++
			}
		}
	}

	done := make(map[string]bool, len(operations))

	var levels [][]models.Node

	for {
		var ready []models.Node

		for _, n := range operations {
			if !done[n.ID] && inDegree[n.ID] == 0 {
				ready = append(ready, n)
			}
		}

		if len(ready) == 0 {
			break
		}

		for _, n := range ready {
			done[n.ID] = true

			for _, next := range g.opSuccessors(n.ID) {
				inDegree[next]--
			}
		}

		levels = append(levels, ready)
	}

	var undrained []string

	for _, n := range operations {
		if !done[n.ID] {
			undrained = append(undrained, n.ID)
		}
	}

	return levels, undrained
}

// sourceNodes lists variable nodes wired directly into id, first connection first.
func (g *graph) sourceNodes(id string) []models.Node {
	seen := map[string]bool{}
	out := make([]models.Node, 0)

	for _, c := range g.incoming[id] {
		source := c.SourceNodeID()
		if seen[source] || g.isOperation(source) {
			continue
		}

		seen[source] = true
		out = append(out, g.byID[source])
	}

	return out
}
