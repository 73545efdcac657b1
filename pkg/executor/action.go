package executor

import (
	"context"

	"github.com/dukex/actflow/pkg/models"
)

const defaultActionOutput = "result"

func (d *Dispatcher) runAction(ctx context.Context, c call, content models.ActionContent) (outcome, error) {
	params, err := c.resolve.renderMap(ctx, content.Parameters)
	if err != nil {
		return outcome{}, err
	}

	inputs, err := c.resolve.inputs(ctx)
	if err != nil {
		return outcome{}, err
	}

	res, err := d.actions.RunAction(ctx, ActionRequest{
		GenerationID: c.generation.ID,
		Provider:     content.Provider,
		ActionID:     content.ActionID,
		Parameters:   params,
		Inputs:       inputs,
	})
	if err != nil {
		return outcome{}, stepError("ActionError", err)
	}

	ports := outputPorts(c.step.Node, defaultActionOutput)
	outputs := make([]models.GenerationOutput, 0, len(ports))

	for _, port := range ports {
		value := res.Content

		if port.Accessor != "" {
			v, _ := lookupPath(res.Fields, port.Accessor)
			value = stringify(v)
		}

		outputs = append(outputs, models.GenerationOutput{OutputID: port.ID, Type: models.OutputTypeActionResult, Content: value})
	}

	return outcome{outputs: outputs}, nil
}
