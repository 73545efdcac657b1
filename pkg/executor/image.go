package executor

import (
	"context"
	"errors"

	"github.com/dukex/actflow/pkg/models"
)

const defaultImageOutput = "image"

var errNoImages = errors.New("provider returned no images")

func (d *Dispatcher) generateImages(ctx context.Context, c call, content models.ImageGenerationContent) (outcome, error) {
	prompt, err := c.resolve.render(ctx, content.Prompt)
	if err != nil {
		return outcome{}, err
	}

	err = d.checkUsage(ctx, c)
	if err != nil {
		return outcome{}, err
	}

	count := content.Count
	if count <= 0 {
		count = 1
	}

	res, err := d.images.GenerateImages(ctx, ImageRequest{
		GenerationID: c.generation.ID,
		LLM:          content.LLM,
		Prompt:       prompt,
		Count:        count,
	})
	if err != nil {
		return outcome{}, stepError("ImageGenerationError", err)
	}

	if len(res.Images) == 0 {
		return outcome{}, stepError("ImageGenerationError", errNoImages)
	}

	port := outputPorts(c.step.Node, defaultImageOutput)[0]

	return outcome{
		outputs: []models.GenerationOutput{{OutputID: port.ID, Type: models.OutputTypeGeneratedImage, Images: res.Images}},
		usage:   res.Usage,
	}, nil
}
