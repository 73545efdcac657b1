package executor

import (
	"fmt"

	"github.com/dukex/actflow/pkg/models"
)

const defaultTriggerOutput = "payload"

// resolveTrigger binds each output port to a run input. Explicit parameters win over
// the webhook payload, which wins over the defaults stored on the node.
func resolveTrigger(c call, content models.TriggerContent) (outcome, error) {
	ports := outputPorts(c.step.Node, defaultTriggerOutput)
	outputs := make([]models.GenerationOutput, 0, len(ports))

	for _, port := range ports {
		value, ok := triggerValue(c.generation.Context.Inputs, content, port)
		if !ok {
			return outcome{}, stepError("TriggerResolutionError",
				fmt.Errorf("%w: output %s of node %s", ErrMissingTriggerValue, port.ID, c.step.Node.ID))
		}

		outputs = append(outputs, models.GenerationOutput{OutputID: port.ID, Type: models.OutputTypeTriggerParameter, Content: value})
	}

	return outcome{outputs: outputs}, nil
}

func triggerValue(inputs models.Inputs, content models.TriggerContent, port models.Output) (string, bool) {
	name := port.ID
	if port.Accessor != "" {
		name = port.Accessor
	}

	for _, in := range inputs {
		if p, ok := in.(models.ParametersInput); ok {
			if v, found := p.Lookup(name); found {
				return stringify(v), true
			}
		}
	}

	for _, in := range inputs {
		if hook, ok := in.(models.WebhookEventInput); ok {
			if port.Accessor == "" && port.ID == defaultTriggerOutput {
				return stringify(hook.Payload), true
			}

			if v, found := lookupPath(hook.Payload, name); found {
				return stringify(v), true
			}
		}
	}

	if v, ok := content.Parameters[port.ID]; ok {
		return v, true
	}

	return "", false
}
