// Package llm defines the completion client the bot talks to. The
// orchestrator depends only on Client, so backends swap without
// touching the pipeline.
package llm

import (
	"context"
	"encoding/json"
)

// Message is one turn of model input.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDef describes a callable tool offered to the model.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"input_schema,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Response is one completion. A response carries text, tool calls, or
// both; the orchestrator resolves tool calls and re-prompts until the
// model answers in text.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Client produces completions.
type Client interface {
	Complete(ctx context.Context, messages []Message, tools []ToolDef) (*Response, error)
}
