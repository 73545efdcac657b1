// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"fmt"

	"github.com/dukex/actflow/pkg/models"
)

// ActionNode creates an operation node running the log action, overridable like the other builders.
func ActionNode(id string, overrides ...func(*models.Node)) models.Node {
	node := models.Node{
		ID:      id,
		Name:    "Action " + id,
		Content: models.ActionContent{Provider: "log", ActionID: "write", Parameters: map[string]string{"message": id}},
		Inputs:  []models.Input{{ID: "in", Label: "Input"}},
		Outputs: []models.Output{{ID: "out", Label: "Output"}},
	}

	for _, override := range overrides {
		override(&node)
	}

	return node
}

// TextNode creates a variable node holding literal text.
func TextNode(id, text string) models.Node {
	return models.Node{
		ID:      id,
		Name:    "Text " + id,
		Content: models.TextContent{Text: text},
		Outputs: []models.Output{{ID: "text", Label: "Text"}},
	}
}

// WithContent replaces the node content.
func WithContent(content models.Content) func(*models.Node) {
	return func(n *models.Node) {
		n.Content = content
	}
}

// WithPrompt turns the node into a text generation node with the given prompt.
func WithPrompt(prompt string) func(*models.Node) {
	return func(n *models.Node) {
		n.Content = models.TextGenerationContent{
			LLM:    models.LLM{Provider: "test", ID: "test-model"},
			Prompt: prompt,
		}
	}
}

// Connect wires from:out to to:in.
func Connect(from, to string) models.Connection {
	return ConnectPorts(from, "out", to, "in")
}

// ConnectPorts wires explicit ports.
func ConnectPorts(from, fromPort, to, toPort string) models.Connection {
	return models.Connection{
		ID:         fmt.Sprintf("cnn-%s-%s-%s-%s", from, fromPort, to, toPort),
		SourcePort: models.MakePortID(from, fromPort),
		TargetPort: models.MakePortID(to, toPort),
	}
}

// Chain builds ids[0] -> ids[1] -> ... of action nodes.
func Chain(ids ...string) ([]models.Node, []models.Connection) {
	nodes := make([]models.Node, 0, len(ids))
	conns := make([]models.Connection, 0, len(ids))

	for i, id := range ids {
		nodes = append(nodes, ActionNode(id))

		if i > 0 {
			conns = append(conns, Connect(ids[i-1], id))
		}
	}

	return nodes, conns
}

// Diamond builds A -> {B, C} -> D.
func Diamond() ([]models.Node, []models.Connection) {
	nodes := []models.Node{ActionNode("A"), ActionNode("B"), ActionNode("C"), ActionNode("D")}
	conns := []models.Connection{
		Connect("A", "B"),
		Connect("A", "C"),
		Connect("B", "D"),
		Connect("C", "D"),
	}

	return nodes, conns
}

// Workspace wraps nodes and connections into a workspace.
func Workspace(id string, nodes []models.Node, conns []models.Connection) models.Workspace {
	return models.Workspace{
		ID:          id,
		Name:        "Workspace " + id,
		Nodes:       nodes,
		Connections: conns,
	}
}
