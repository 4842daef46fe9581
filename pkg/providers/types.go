package providers

import "time"

// Message represents a single message in a conversation.
// It is provider-agnostic and will be transformed to provider-specific formats.
type Message struct {
	// Role identifies the message sender (system, user, assistant, tool)
	Role string `json:"role"`

	// Content is the message text content. For multi-part messages this is
	// the concatenated text; Parts carries the structured form.
	Content string `json:"content"`

	// Parts holds multi-part content (text and image parts) for providers
	// with vision support. Empty for plain text messages.
	Parts []ContentPart `json:"parts,omitempty"`

	// Name is an optional name for the message sender
	Name string `json:"name,omitempty"`

	// ToolCalls contains function/tool calls made by the assistant (for assistant role)
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is used when role is "tool" to reference which tool call this responds to
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ContentPart is one element of a multi-part message.
type ContentPart struct {
	// Type is "text" or "image_url"
	Type string `json:"type"`

	// Text is set when Type is "text"
	Text string `json:"text,omitempty"`

	// ImageURL is set when Type is "image_url"
	ImageURL string `json:"image_url,omitempty"`
}

// ToolCall represents a function/tool call request from the model.
type ToolCall struct {
	// ID is a unique identifier for this tool call
	ID string `json:"id"`

	// Type is the type of tool call (currently always "function")
	Type string `json:"type"`

	// Function contains the function name and arguments
	Function FunctionCall `json:"function"`
}

// FunctionCall represents a specific function invocation.
type FunctionCall struct {
	// Name is the function name to call
	Name string `json:"name"`

	// Arguments is a JSON string containing the function arguments
	Arguments string `json:"arguments"`
}

// Tool represents a tool/function definition that the model can call.
type Tool struct {
	// Type is the type of tool (currently always "function")
	Type string `json:"type"`

	// Function contains the function definition
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition defines a callable function.
type FunctionDefinition struct {
	// Name is the function name
	Name string `json:"name"`

	// Description explains what the function does
	Description string `json:"description,omitempty"`

	// Parameters is a JSON Schema object describing the function parameters
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	// PromptTokens is the number of tokens in the prompt
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens used (prompt + completion)
	TotalTokens int `json:"total_tokens"`
}

// RoutingHints carries optional per-request routing preferences.
type RoutingHints struct {
	// PreferredProvider pins the request to a provider by name when set.
	PreferredProvider string `json:"preferred_provider,omitempty"`

	// CostWeight biases strategy scoring toward cheaper providers (0..1).
	CostWeight float64 `json:"cost_weight,omitempty"`

	// LatencyWeight biases strategy scoring toward faster providers (0..1).
	LatencyWeight float64 `json:"latency_weight,omitempty"`

	// RequiredCapabilities lists capabilities every candidate must declare.
	RequiredCapabilities []Capability `json:"required_capabilities,omitempty"`
}

// CompletionRequest represents a provider-agnostic completion request.
// It is transformed to provider-specific formats by each codec.
//
// A CompletionRequest is immutable once constructed and is owned by the
// dispatch pipeline for the lifetime of the request.
type CompletionRequest struct {
	// RequestID uniquely identifies this request across the gateway
	RequestID string `json:"-"`

	// TenantID identifies the tenant the request was admitted under
	TenantID string `json:"-"`

	// PrincipalID identifies the authenticated caller
	PrincipalID string `json:"-"`

	// Model is the model identifier as requested by the client
	Model string `json:"model"`

	// Messages is the conversation history; never empty for a valid request
	Messages []Message `json:"messages"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `json:"max_tokens,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0)
	TopP float64 `json:"top_p,omitempty"`

	// Stream indicates whether to stream the response
	Stream bool `json:"stream,omitempty"`

	// Tools is a list of tools the model can call
	Tools []Tool `json:"tools,omitempty"`

	// ToolChoice controls which tools can be called
	ToolChoice interface{} `json:"tool_choice,omitempty"`

	// Stop sequences that will halt generation
	Stop []string `json:"stop,omitempty"`

	// User is an optional end-user identifier passed through to the provider
	User string `json:"user,omitempty"`

	// Deadline is the absolute wall-clock deadline for the whole request.
	// Zero means no client-imposed deadline.
	Deadline time.Time `json:"-"`

	// IdempotencyKey is the opaque client-supplied idempotency token (1..255 chars)
	IdempotencyKey string `json:"-"`

	// Hints carries per-request routing preferences
	Hints RoutingHints `json:"-"`
}

// RequiresVision reports whether any message carries image content.
func (r *CompletionRequest) RequiresVision() bool {
	for _, m := range r.Messages {
		for _, p := range m.Parts {
			if p.Type == ContentPartImage {
				return true
			}
		}
	}
	return false
}

// CompletionResponse represents a provider-agnostic completion response.
// It is normalized from provider-specific response formats.
type CompletionResponse struct {
	// ID is the unique response identifier
	ID string `json:"id"`

	// Model is the model that generated the response
	Model string `json:"model"`

	// Content is the generated text content
	Content string `json:"content"`

	// FinishReason indicates why generation stopped
	// (stop, length, tool_calls, content_filter)
	FinishReason string `json:"finish_reason"`

	// Usage contains token consumption information
	Usage TokenUsage `json:"usage"`

	// ToolCalls contains any tool/function calls made by the model
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Created is the Unix timestamp when the response was created
	Created int64 `json:"created"`

	// Provider is the name of the provider that served the request
	Provider string `json:"-"`
}

// StreamChunk represents a single chunk in a streaming response.
//
// A chunk stream always ends with exactly one terminal item: either a chunk
// with Done set (normal end, FinishReason populated) or a chunk with Err set
// (failure). A consumer never observes both.
type StreamChunk struct {
	// ID is the response identifier (same across all chunks)
	ID string `json:"id"`

	// Model is the model generating the response
	Model string `json:"model"`

	// Role is set on the first chunk only ("assistant"), empty afterwards
	Role string `json:"role,omitempty"`

	// Delta is the incremental content in this chunk
	Delta string `json:"delta"`

	// FinishReason is set in the terminal chunk to indicate why generation stopped
	FinishReason string `json:"finish_reason,omitempty"`

	// ToolCalls contains incremental tool call information
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Usage is included in the terminal chunk (if supported by provider)
	Usage *TokenUsage `json:"usage,omitempty"`

	// Done marks the normal end of the stream
	Done bool `json:"-"`

	// Err is set if the stream failed; terminal when set
	Err error `json:"-"`

	// Created is the Unix timestamp when the chunk was created
	Created int64 `json:"created"`
}

// Terminal reports whether this chunk ends the stream.
func (c *StreamChunk) Terminal() bool {
	return c.Done || c.Err != nil
}

// ProbeResult is the outcome of a provider health probe.
type ProbeResult struct {
	// OK is true when the probe round-trip succeeded
	OK bool

	// Latency is the probe round-trip time
	Latency time.Duration

	// Err describes the failure when OK is false
	Err error
}

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reason constants
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// Content part type constants
const (
	ContentPartText  = "text"
	ContentPartImage = "image_url"
)

// Tool type constants
const (
	ToolTypeFunction = "function"
)
