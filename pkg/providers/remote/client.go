// Package remote talks to a model gateway over HTTP for text, image and query steps.
package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/actflow/pkg/executor"
	"github.com/dukex/actflow/pkg/models"
)

const (
	textPath  = "/v1/text"
	imagePath = "/v1/images"
	queryPath = "/v1/query"
)

// ErrGatewayStream is returned for a stream line the client cannot read.
var ErrGatewayStream = errors.New("malformed gateway stream")

// StatusError is a non-2xx gateway response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

// Client implements executor.TextGenerator, executor.ImageGenerator and executor.QueryRunner.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(cl *Client) {
		cl.apiKey = key
	}
}

func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
		logger:  logger.With("module", "remote_provider"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type textRequest struct {
	GenerationID string     `json:"generationId"`
	LLM          models.LLM `json:"llm"`
	Prompt       string     `json:"prompt"`
}

// streamLine is one NDJSON line of a text stream. Exactly one field is set.
type streamLine struct {
	Text  string        `json:"text,omitempty"`
	Usage *models.Usage `json:"usage,omitempty"`
	Error string        `json:"error,omitempty"`
}

// StreamText posts the prompt and relays the gateway's NDJSON stream.
func (c *Client) StreamText(ctx context.Context, req executor.TextRequest) (<-chan executor.TextChunk, error) {
	body, err := c.post(ctx, textPath, textRequest{GenerationID: req.GenerationID, LLM: req.LLM, Prompt: req.Prompt})
	if err != nil {
		return nil, err
	}

	ch := make(chan executor.TextChunk)

	go func() {
		defer body.Close()
		defer close(ch)

		send := func(chunk executor.TextChunk) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- chunk:
				return true
			}
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}

			var line streamLine

			err := json.Unmarshal(raw, &line)
			if err != nil {
				send(executor.TextChunk{Err: fmt.Errorf("%w: %w", ErrGatewayStream, err)})

				return
			}

			if line.Error != "" {
				send(executor.TextChunk{Err: errors.New(line.Error)})

				return
			}

			if !send(executor.TextChunk{Text: line.Text, Usage: line.Usage}) {
				return
			}
		}

		err := scanner.Err()
		if err != nil && ctx.Err() == nil {
			send(executor.TextChunk{Err: fmt.Errorf("%w: %w", ErrGatewayStream, err)})
		}
	}()

	return ch, nil
}

type imageRequest struct {
	GenerationID string     `json:"generationId"`
	LLM          models.LLM `json:"llm"`
	Prompt       string     `json:"prompt"`
	Count        int        `json:"count"`
}

type imageResponse struct {
	Images []models.Image `json:"images"`
	Usage  *models.Usage  `json:"usage,omitempty"`
}

func (c *Client) GenerateImages(ctx context.Context, req executor.ImageRequest) (executor.ImageResult, error) {
	var resp imageResponse

	err := c.call(ctx, imagePath, imageRequest{
		GenerationID: req.GenerationID,
		LLM:          req.LLM,
		Prompt:       req.Prompt,
		Count:        req.Count,
	}, &resp)
	if err != nil {
		return executor.ImageResult{}, err
	}

	return executor.ImageResult{Images: resp.Images, Usage: resp.Usage}, nil
}

type queryRequest struct {
	GenerationID string                      `json:"generationId"`
	Query        string                      `json:"query"`
	Limit        int                         `json:"limit,omitempty"`
	Stores       []models.VectorStoreContent `json:"stores"`
}

type queryResponse struct {
	Records []models.QueryRecord `json:"records"`
	Usage   *models.Usage        `json:"usage,omitempty"`
}

func (c *Client) Query(ctx context.Context, req executor.QueryRequest) (executor.QueryResult, error) {
	var resp queryResponse

	err := c.call(ctx, queryPath, queryRequest{
		GenerationID: req.GenerationID,
		Query:        req.Query,
		Limit:        req.Limit,
		Stores:       req.Stores,
	}, &resp)
	if err != nil {
		return executor.QueryResult{}, err
	}

	return executor.QueryResult{Records: resp.Records, Usage: resp.Usage}, nil
}

func (c *Client) call(ctx context.Context, path string, payload, out any) error {
	body, err := c.post(ctx, path, payload)
	if err != nil {
		return err
	}
	defer body.Close()

	err = json.NewDecoder(body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.DebugContext(ctx, "Calling gateway", "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request %s failed: %w", path, err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()

		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	return resp.Body, nil
}
