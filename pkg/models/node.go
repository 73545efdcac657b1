// Package models defines the core domain models for node-based workflow execution.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NodeKind separates nodes that perform work from nodes that only supply values.
type NodeKind string

const (
	NodeKindOperation NodeKind = "operation" // Executed as a step of a run
	NodeKindVariable  NodeKind = "variable"  // Supplies values to operation nodes
)

// ContentType is the discriminant of a node's content.
type ContentType string

const (
	ContentTypeTextGeneration  ContentType = "textGeneration"
	ContentTypeImageGeneration ContentType = "imageGeneration"
	ContentTypeTrigger         ContentType = "trigger"
	ContentTypeAction          ContentType = "action"
	ContentTypeQuery           ContentType = "query"
	ContentTypeText            ContentType = "text"
	ContentTypeFile            ContentType = "file"
	ContentTypeVectorStore     ContentType = "vectorStore"
)

var (
	// ErrUnknownContentType indicates a node carries a content type this engine does not know.
	ErrUnknownContentType = errors.New("unknown node content type")

	// ErrNodeKindMismatch indicates a stored node kind disagrees with its content.
	ErrNodeKindMismatch = errors.New("node kind does not match content type")
)

// Content is the closed set of node payloads. Only types in this package implement it.
type Content interface {
	ContentType() ContentType
	Kind() NodeKind
	isContent()
}

// LLM selects a language model and its generation parameters.
type LLM struct {
	Provider    string   `json:"provider"              validate:"required"`
	ID          string   `json:"id"                    validate:"required"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
}

// TextGenerationContent asks a language model for text.
type TextGenerationContent struct {
	LLM    LLM    `json:"llm"`
	Prompt string `json:"prompt"`
}

// ImageGenerationContent asks a model for one or more images.
type ImageGenerationContent struct {
	LLM    LLM    `json:"llm"`
	Prompt string `json:"prompt"`
	Count  int    `json:"count,omitempty"`
}

// TriggerContent starts a flow; its outputs are resolved from the run inputs.
// Parameters holds fallback values keyed by output id.
type TriggerContent struct {
	Provider   string            `json:"provider"`
	TriggerID  string            `json:"triggerId,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// ActionContent calls an external action provider.
type ActionContent struct {
	Provider   string            `json:"provider"`
	ActionID   string            `json:"actionId"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// QueryContent runs a retrieval query against connected vector stores.
type QueryContent struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// TextContent is a literal text variable.
type TextContent struct {
	Text string `json:"text"`
}

// FileRef points at an uploaded file; parsing happens outside the engine.
type FileRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// FileContent is a set of uploaded files.
type FileContent struct {
	Files []FileRef `json:"files"`
}

// VectorStoreContent references an external vector store.
type VectorStoreContent struct {
	Provider string `json:"provider"`
	StoreID  string `json:"storeId"`
}

func (TextGenerationContent) ContentType() ContentType  { return ContentTypeTextGeneration }
func (ImageGenerationContent) ContentType() ContentType { return ContentTypeImageGeneration }
func (TriggerContent) ContentType() ContentType         { return ContentTypeTrigger }
func (ActionContent) ContentType() ContentType          { return ContentTypeAction }
func (QueryContent) ContentType() ContentType           { return ContentTypeQuery }
func (TextContent) ContentType() ContentType            { return ContentTypeText }
func (FileContent) ContentType() ContentType            { return ContentTypeFile }
func (VectorStoreContent) ContentType() ContentType     { return ContentTypeVectorStore }

func (TextGenerationContent) Kind() NodeKind  { return NodeKindOperation }
func (ImageGenerationContent) Kind() NodeKind { return NodeKindOperation }
func (TriggerContent) Kind() NodeKind         { return NodeKindOperation }
func (ActionContent) Kind() NodeKind          { return NodeKindOperation }
func (QueryContent) Kind() NodeKind           { return NodeKindOperation }
func (TextContent) Kind() NodeKind            { return NodeKindVariable }
func (FileContent) Kind() NodeKind            { return NodeKindVariable }
func (VectorStoreContent) Kind() NodeKind     { return NodeKindVariable }

func (TextGenerationContent) isContent()  {}
func (ImageGenerationContent) isContent() {}
func (TriggerContent) isContent()         {}
func (ActionContent) isContent()          {}
func (QueryContent) isContent()           {}
func (TextContent) isContent()            {}
func (FileContent) isContent()            {}
func (VectorStoreContent) isContent()     {}

// Input is a named input port on a node.
type Input struct {
	ID       string `json:"id"                 validate:"required"`
	Label    string `json:"label"`
	Accessor string `json:"accessor,omitempty"`
}

// Output is a named output port on a node.
type Output struct {
	ID       string `json:"id"                 validate:"required"`
	Label    string `json:"label"`
	Accessor string `json:"accessor,omitempty"`
}

// Node is a typed vertex of a workspace graph.
type Node struct {
	ID      string   `json:"id"      validate:"required"`
	Name    string   `json:"name"`
	Content Content  `json:"content" validate:"required"`
	Inputs  []Input  `json:"inputs"  validate:"dive"`
	Outputs []Output `json:"outputs" validate:"dive"`
}

// Kind reports whether the node is an operation or a variable.
func (n Node) Kind() NodeKind {
	if n.Content == nil {
		return NodeKindVariable
	}

	return n.Content.Kind()
}

// IsOperation reports whether the node runs as a step.
func (n Node) IsOperation() bool {
	return n.Kind() == NodeKindOperation
}

// ContentType returns the content discriminant, or "" for a node without content.
func (n Node) ContentType() ContentType {
	if n.Content == nil {
		return ""
	}

	return n.Content.ContentType()
}

// Output returns the output port with the given id.
func (n Node) Output(id string) (Output, bool) {
	for _, o := range n.Outputs {
		if o.ID == id {
			return o, true
		}
	}

	return Output{}, false
}

type nodeJSON struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Type    NodeKind        `json:"type,omitempty"`
	Content json.RawMessage `json:"content"`
	Inputs  []Input         `json:"inputs"`
	Outputs []Output        `json:"outputs"`
}

// MarshalJSON writes the node with its kind and a content.type discriminant.
func (n Node) MarshalJSON() ([]byte, error) {
	content, err := MarshalContent(n.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content of node %s: %w", n.ID, err)
	}

	inputs, outputs := n.Inputs, n.Outputs
	if inputs == nil {
		inputs = []Input{}
	}

	if outputs == nil {
		outputs = []Output{}
	}

	return json.Marshal(nodeJSON{
		ID:      n.ID,
		Name:    n.Name,
		Type:    n.Kind(),
		Content: content,
		Inputs:  inputs,
		Outputs: outputs,
	})
}

// UnmarshalJSON decodes the content by its discriminant and checks the declared kind.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	content, err := UnmarshalContent(raw.Content)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}

	if raw.Type != "" && raw.Type != content.Kind() {
		return fmt.Errorf("node %s declared %q with %q content: %w", raw.ID, raw.Type, content.ContentType(), ErrNodeKindMismatch)
	}

	*n = Node{
		ID:      raw.ID,
		Name:    raw.Name,
		Content: content,
		Inputs:  raw.Inputs,
		Outputs: raw.Outputs,
	}

	return nil
}

// MarshalContent encodes content as an object carrying its "type" discriminant.
func MarshalContent(content Content) ([]byte, error) {
	if content == nil {
		return []byte("null"), nil
	}

	body, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}

	fields := map[string]json.RawMessage{}

	err = json.Unmarshal(body, &fields)
	if err != nil {
		return nil, err
	}

	discriminant, err := json.Marshal(content.ContentType())
	if err != nil {
		return nil, err
	}

	fields["type"] = discriminant

	return json.Marshal(fields)
}

// UnmarshalContent decodes content by its "type" discriminant.
func UnmarshalContent(data []byte) (Content, error) {
	var head struct {
		Type ContentType `json:"type"`
	}

	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("missing content: %w", ErrUnknownContentType)
	}

	err := json.Unmarshal(data, &head)
	if err != nil {
		return nil, fmt.Errorf("failed to read content type: %w", err)
	}

	switch head.Type {
	case ContentTypeTextGeneration:
		return decodeContent[TextGenerationContent](data)
	case ContentTypeImageGeneration:
		return decodeContent[ImageGenerationContent](data)
	case ContentTypeTrigger:
		return decodeContent[TriggerContent](data)
	case ContentTypeAction:
		return decodeContent[ActionContent](data)
	case ContentTypeQuery:
		return decodeContent[QueryContent](data)
	case ContentTypeText:
		return decodeContent[TextContent](data)
	case ContentTypeFile:
		return decodeContent[FileContent](data)
	case ContentTypeVectorStore:
		return decodeContent[VectorStoreContent](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, head.Type)
	}
}

func decodeContent[T Content](data []byte) (Content, error) {
	var content T

	err := json.Unmarshal(data, &content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s content: %w", content.ContentType(), err)
	}

	return content, nil
}
