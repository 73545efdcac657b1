package executor

import (
	"context"
	"errors"
	"strings"

	"github.com/dukex/actflow/pkg/models"
)

const defaultTextOutput = "text"

// generateText renders the prompt, then drains the whole stream before reporting.
func (d *Dispatcher) generateText(ctx context.Context, c call, content models.TextGenerationContent) (outcome, error) {
	prompt, err := c.resolve.render(ctx, content.Prompt)
	if err != nil {
		return outcome{}, err
	}

	err = d.checkUsage(ctx, c)
	if err != nil {
		return outcome{}, err
	}

	stream, err := d.text.StreamText(ctx, TextRequest{GenerationID: c.generation.ID, LLM: content.LLM, Prompt: prompt})
	if err != nil {
		return outcome{}, stepError("TextGenerationError", err)
	}

	var (
		sb    strings.Builder
		usage *models.Usage
	)

	for {
		select {
		case <-ctx.Done():
			return outcome{}, ctx.Err()
		case chunk, ok := <-stream:
			if !ok {
				return outcome{
					outputs: textOutputs(c.step.Node, sb.String()),
					usage:   usage,
				}, nil
			}

			if chunk.Err != nil {
				if errors.Is(chunk.Err, context.Canceled) {
					return outcome{}, chunk.Err
				}

				return outcome{}, stepError("TextGenerationError", chunk.Err)
			}

			sb.WriteString(chunk.Text)

			if chunk.Usage != nil {
				u := *chunk.Usage
				usage = &u
			}
		}
	}
}

func textOutputs(node models.Node, text string) []models.GenerationOutput {
	port := outputPorts(node, defaultTextOutput)[0]

	return []models.GenerationOutput{{OutputID: port.ID, Type: models.OutputTypeGeneratedText, Content: text}}
}
