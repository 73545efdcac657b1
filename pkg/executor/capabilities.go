package executor

import (
	"context"

	"github.com/dukex/actflow/pkg/models"
)

// Generations is the slice of the generation manager that executors drive.
type Generations interface {
	Get(ctx context.Context, id string) (models.Generation, error)
	Start(ctx context.Context, id string) (models.Generation, error)
	Complete(ctx context.Context, id string, outputs []models.GenerationOutput, usage *models.Usage) (models.Generation, error)
	Fail(ctx context.Context, id string, failure models.GenerationError) (models.Generation, error)
	Cancel(ctx context.Context, id string) (models.Generation, error)
	LatestCompleted(ctx context.Context, workspaceID, nodeID string) (models.Generation, bool, error)
}

// TextRequest is a single prompt sent to a language model.
type TextRequest struct {
	GenerationID string
	LLM          models.LLM
	Prompt       string
}

// TextChunk is one event of a text stream. The final chunk usually carries Usage.
type TextChunk struct {
	Text  string
	Usage *models.Usage
	Err   error
}

// TextGenerator streams generated text. The channel is closed when the stream ends.
type TextGenerator interface {
	StreamText(ctx context.Context, req TextRequest) (<-chan TextChunk, error)
}

// TextGeneratorFunc adapts a function to TextGenerator.
type TextGeneratorFunc func(ctx context.Context, req TextRequest) (<-chan TextChunk, error)

func (f TextGeneratorFunc) StreamText(ctx context.Context, req TextRequest) (<-chan TextChunk, error) {
	return f(ctx, req)
}

// ImageRequest asks for Count images for a prompt.
type ImageRequest struct {
	GenerationID string
	LLM          models.LLM
	Prompt       string
	Count        int
}

// ImageResult holds generated images.
type ImageResult struct {
	Images []models.Image
	Usage  *models.Usage
}

// ImageGenerator produces images.
type ImageGenerator interface {
	GenerateImages(ctx context.Context, req ImageRequest) (ImageResult, error)
}

// ImageGeneratorFunc adapts a function to ImageGenerator.
type ImageGeneratorFunc func(ctx context.Context, req ImageRequest) (ImageResult, error)

func (f ImageGeneratorFunc) GenerateImages(ctx context.Context, req ImageRequest) (ImageResult, error) {
	return f(ctx, req)
}

// ActionRequest invokes an action of a provider. Inputs holds the values of the
// connected input ports keyed by port id.
type ActionRequest struct {
	GenerationID string
	Provider     string
	ActionID     string
	Parameters   map[string]string
	Inputs       map[string]string
}

// ActionResult is what an action returned. Output ports with an accessor read
// from Fields; the others receive Content.
type ActionResult struct {
	Content string
	Fields  map[string]any
}

// ActionRunner runs actions.
type ActionRunner interface {
	RunAction(ctx context.Context, req ActionRequest) (ActionResult, error)
}

// ActionRunnerFunc adapts a function to ActionRunner.
type ActionRunnerFunc func(ctx context.Context, req ActionRequest) (ActionResult, error)

func (f ActionRunnerFunc) RunAction(ctx context.Context, req ActionRequest) (ActionResult, error) {
	return f(ctx, req)
}

// QueryRequest searches the given vector stores.
type QueryRequest struct {
	GenerationID string
	Query        string
	Limit        int
	Stores       []models.VectorStoreContent
}

// QueryResult holds the matched records.
type QueryResult struct {
	Records []models.QueryRecord
	Usage   *models.Usage
}

// QueryRunner executes retrieval queries.
type QueryRunner interface {
	Query(ctx context.Context, req QueryRequest) (QueryResult, error)
}

// QueryRunnerFunc adapts a function to QueryRunner.
type QueryRunnerFunc func(ctx context.Context, req QueryRequest) (QueryResult, error)

func (f QueryRunnerFunc) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	return f(ctx, req)
}

// UsageLimiter is consulted before any provider call. A non-nil error rejects the call.
type UsageLimiter func(ctx context.Context, genCtx models.GenerationContext) error
