package types

import "fmt"

// ChatCompletionRequest represents an OpenAI-compatible chat completion
// request. This matches the OpenAI Chat Completions API format so existing
// SDKs and tools work unchanged.
type ChatCompletionRequest struct {
	// Model is the ID of the model to use (e.g. "gpt-4", "claude-3-opus").
	Model string `json:"model"`

	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// Temperature controls randomness (0.0 to 2.0). Optional.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate. Optional.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0). Optional.
	TopP *float64 `json:"top_p,omitempty"`

	// N is the number of completions; only 1 is supported.
	N *int `json:"n,omitempty"`

	// Stream enables server-sent events streaming.
	Stream bool `json:"stream,omitempty"`

	// Stop is a list of sequences that halt generation (maximum 4).
	Stop []string `json:"stop,omitempty"`

	// User is a unique identifier for the end user. Optional.
	User string `json:"user,omitempty"`

	// Tools is a list of tools/functions the model can call.
	Tools []Tool `json:"tools,omitempty"`

	// ToolChoice controls which tool the model should use.
	ToolChoice interface{} `json:"tool_choice,omitempty"`

	// Routing carries gateway-specific routing hints. Optional.
	Routing *RoutingHints `json:"routing,omitempty"`
}

// RoutingHints is the gateway extension for per-request routing control.
type RoutingHints struct {
	// PreferredProvider pins the request to a provider by name.
	PreferredProvider string `json:"preferred_provider,omitempty"`

	// CostWeight and LatencyWeight bias strategy scoring (0..1).
	CostWeight    float64 `json:"cost_weight,omitempty"`
	LatencyWeight float64 `json:"latency_weight,omitempty"`

	// RequiredCapabilities lists capabilities every candidate must have.
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the author ("system", "user", "assistant" or "tool").
	Role string `json:"role"`

	// Content is a string or an array of content parts (multimodal).
	Content interface{} `json:"content"`

	// Name is the optional author name.
	Name string `json:"name,omitempty"`

	// ToolCalls lists tool calls made by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID references the tool call this message answers (tool role).
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Tool represents a function the model can call.
type Tool struct {
	// Type is always "function".
	Type string `json:"type"`

	// Function describes the function.
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function.
type FunctionDefinition struct {
	// Name is the function name.
	Name string `json:"name"`

	// Description explains what the function does.
	Description string `json:"description,omitempty"`

	// Parameters is a JSON Schema object.
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolCall represents a function call made by the model.
type ToolCall struct {
	// ID is the tool call identifier.
	ID string `json:"id"`

	// Type is always "function".
	Type string `json:"type"`

	// Function carries the name and arguments.
	Function FunctionCall `json:"function"`
}

// FunctionCall is a function name plus JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ValidationError reports an invalid request field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// Validate checks required fields and value ranges.
func (r *ChatCompletionRequest) Validate() error {
	if r.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}

	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Message: "messages must contain at least one message"}
	}

	if r.Temperature != nil && (*r.Temperature < 0.0 || *r.Temperature > 2.0) {
		return &ValidationError{Field: "temperature", Message: "temperature must be between 0.0 and 2.0"}
	}

	if r.TopP != nil && (*r.TopP < 0.0 || *r.TopP > 1.0) {
		return &ValidationError{Field: "top_p", Message: "top_p must be between 0.0 and 1.0"}
	}

	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return &ValidationError{Field: "max_tokens", Message: "max_tokens must be greater than 0"}
	}

	if r.N != nil && *r.N != 1 {
		return &ValidationError{Field: "n", Message: "only n=1 is supported"}
	}

	if len(r.Stop) > 4 {
		return &ValidationError{Field: "stop", Message: "stop sequences must not exceed 4"}
	}

	for i, msg := range r.Messages {
		if !validRole(msg.Role) {
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: "role must be one of system, user, assistant, tool",
			}
		}
		if msg.Content == nil && len(msg.ToolCalls) == 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].content", i),
				Message: "message content is required when no tool_calls present",
			}
		}
	}

	if r.Routing != nil {
		if r.Routing.CostWeight < 0 || r.Routing.CostWeight > 1 {
			return &ValidationError{Field: "routing.cost_weight", Message: "cost_weight must be between 0 and 1"}
		}
		if r.Routing.LatencyWeight < 0 || r.Routing.LatencyWeight > 1 {
			return &ValidationError{Field: "routing.latency_weight", Message: "latency_weight must be between 0 and 1"}
		}
	}

	return nil
}

func validRole(role string) bool {
	switch role {
	case "system", "user", "assistant", "tool":
		return true
	}
	return false
}
