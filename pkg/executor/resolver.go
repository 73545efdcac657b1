package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/template"
)

// resolver reads upstream values for one step. Variable source nodes answer from
// their content; operation nodes answer from their latest completed generation.
type resolver struct {
	generations Generations
	workspaceID string
	step        models.Step
	sources     map[string]models.Node
}

func newResolver(generations Generations, workspaceID string, step models.Step) *resolver {
	sources := make(map[string]models.Node, len(step.SourceNodes))
	for _, n := range step.SourceNodes {
		sources[n.ID] = n
	}

	return &resolver{
		generations: generations,
		workspaceID: workspaceID,
		step:        step,
		sources:     sources,
	}
}

// render replaces every {{nodeId:outputId}} reference in input.
func (r *resolver) render(ctx context.Context, input string) (string, error) {
	out, err := template.Render(input, func(ref template.Ref) (string, error) {
		return r.value(ctx, ref.NodeID, ref.OutputID)
	})
	if err != nil {
		return "", configError(r.step.Node.ID, err)
	}

	return out, nil
}

func (r *resolver) renderMap(ctx context.Context, params map[string]string) (map[string]string, error) {
	out, err := template.RenderMap(params, func(ref template.Ref) (string, error) {
		return r.value(ctx, ref.NodeID, ref.OutputID)
	})
	if err != nil {
		return nil, configError(r.step.Node.ID, err)
	}

	return out, nil
}

// inputs resolves every incoming connection to the value of its source port.
func (r *resolver) inputs(ctx context.Context) (map[string]string, error) {
	values := make(map[string]string, len(r.step.Connections))

	for _, conn := range r.step.Connections {
		v, err := r.value(ctx, conn.SourceNodeID(), conn.SourcePortID())
		if err != nil {
			return nil, configError(r.step.Node.ID, err)
		}

		values[conn.TargetPortID()] = v
	}

	return values, nil
}

// stores lists the vector stores wired into the step.
func (r *resolver) stores() []models.VectorStoreContent {
	var stores []models.VectorStoreContent

	for _, n := range r.step.SourceNodes {
		if vs, ok := n.Content.(models.VectorStoreContent); ok {
			stores = append(stores, vs)
		}
	}

	return stores
}

func (r *resolver) value(ctx context.Context, nodeID, outputID string) (string, error) {
	if node, ok := r.sources[nodeID]; ok {
		return variableValue(node)
	}

	g, found, err := r.generations.LatestCompleted(ctx, r.workspaceID, nodeID)
	if err != nil {
		return "", err
	}

	if !found {
		return "", fmt.Errorf("%w: node %s has no completed generation", ErrMissingUpstreamOutput, nodeID)
	}

	out, ok := g.Output(outputID)
	if !ok {
		return "", fmt.Errorf("%w: generation %s has no output %s", ErrMissingUpstreamOutput, g.ID, outputID)
	}

	return outputText(out), nil
}

func variableValue(node models.Node) (string, error) {
	switch c := node.Content.(type) {
	case models.TextContent:
		return c.Text, nil
	case models.FileContent:
		parts := make([]string, 0, len(c.Files))
		for _, f := range c.Files {
			parts = append(parts, f.Text)
		}

		return strings.Join(parts, "\n\n"), nil
	default:
		return "", fmt.Errorf("%w: node %s of type %s has no text value", ErrMissingUpstreamOutput, node.ID, node.ContentType())
	}
}

func outputText(out models.GenerationOutput) string {
	switch {
	case out.Content != "":
		return out.Content
	case len(out.Images) > 0:
		urls := make([]string, 0, len(out.Images))
		for _, img := range out.Images {
			urls = append(urls, img.URL)
		}

		return strings.Join(urls, "\n")
	case len(out.Records) > 0:
		parts := make([]string, 0, len(out.Records))
		for _, rec := range out.Records {
			parts = append(parts, rec.Content)
		}

		return strings.Join(parts, "\n\n")
	default:
		return ""
	}
}

// lookupPath walks a dot separated path through nested maps.
func lookupPath(data map[string]any, path string) (any, bool) {
	var current any = data

	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}

		return string(data)
	}
}

// outputPorts returns the declared output ports, or a single fallback port.
func outputPorts(node models.Node, fallback string) []models.Output {
	if len(node.Outputs) > 0 {
		return node.Outputs
	}

	return []models.Output{{ID: fallback}}
}
