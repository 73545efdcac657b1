package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownInputType indicates a generation input with an unrecognized discriminant.
var ErrUnknownInputType = errors.New("unknown generation input type")

// InputType is the discriminant of a generation input.
type InputType string

const (
	InputTypeParameters   InputType = "parameters"
	InputTypeWebhookEvent InputType = "webhookEvent"
)

// GenerationInput is externally supplied data a run starts with.
type GenerationInput interface {
	InputType() InputType
	isGenerationInput()
}

// Parameter is a single named value supplied to a trigger.
type Parameter struct {
	Name  string `json:"name"  validate:"required"`
	Value any    `json:"value"`
}

// ParametersInput carries parameters typed in by a user or passed by the API.
type ParametersInput struct {
	Items []Parameter `json:"items" validate:"dive"`
}

// WebhookEventInput carries an already parsed inbound event.
type WebhookEventInput struct {
	Provider string         `json:"provider"`
	Event    string         `json:"event"`
	Payload  map[string]any `json:"payload"`
}

func (ParametersInput) InputType() InputType   { return InputTypeParameters }
func (WebhookEventInput) InputType() InputType { return InputTypeWebhookEvent }

func (ParametersInput) isGenerationInput()   {}
func (WebhookEventInput) isGenerationInput() {}

// Lookup returns the parameter value with the given name.
func (p ParametersInput) Lookup(name string) (any, bool) {
	for _, item := range p.Items {
		if item.Name == name {
			return item.Value, true
		}
	}

	return nil, false
}

// Inputs is a list of generation inputs that round-trips through JSON with a "type" discriminant.
type Inputs []GenerationInput

// MarshalJSON writes each input with its discriminant.
func (in Inputs) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(in))

	for _, input := range in {
		body, err := json.Marshal(input)
		if err != nil {
			return nil, err
		}

		fields := map[string]json.RawMessage{}

		err = json.Unmarshal(body, &fields)
		if err != nil {
			return nil, err
		}

		fields["type"], _ = json.Marshal(input.InputType())

		raw, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}

		out = append(out, raw)
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes each input by its discriminant.
func (in *Inputs) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage

	err := json.Unmarshal(data, &raws)
	if err != nil {
		return err
	}

	result := make(Inputs, 0, len(raws))

	for _, raw := range raws {
		var head struct {
			Type InputType `json:"type"`
		}

		err = json.Unmarshal(raw, &head)
		if err != nil {
			return err
		}

		switch head.Type {
		case InputTypeParameters:
			var p ParametersInput

			err = json.Unmarshal(raw, &p)
			if err != nil {
				return err
			}

			result = append(result, p)
		case InputTypeWebhookEvent:
			var w WebhookEventInput

			err = json.Unmarshal(raw, &w)
			if err != nil {
				return err
			}

			result = append(result, w)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownInputType, head.Type)
		}
	}

	*in = result

	return nil
}
