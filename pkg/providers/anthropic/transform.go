package anthropic

import (
	"encoding/json"
	"fmt"

	"helios-hq/relay/pkg/providers"
)

// Anthropic API request/response types

// Request represents an Anthropic messages request.
type Request struct {
	Model         string    `json:"model,omitempty"`
	Messages      []Message `json:"messages"`
	System        string    `json:"system,omitempty"`
	MaxTokens     int       `json:"max_tokens"`
	Temperature   float64   `json:"temperature,omitempty"`
	TopP          float64   `json:"top_p,omitempty"`
	Stream        bool      `json:"stream,omitempty"`
	Tools         []Tool    `json:"tools,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

// Message represents a message in Anthropic format.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []ContentBlock
}

// ContentBlock represents a content block in Anthropic format.
type ContentBlock struct {
	Type string `json:"type"` // "text", "image", "tool_use" or "tool_result"
	Text string `json:"text,omitempty"`

	// For image blocks
	Source *ImageSource `json:"source,omitempty"`

	// For tool_use blocks
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`

	// For tool_result blocks
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// ImageSource references an image by URL.
type ImageSource struct {
	Type string `json:"type"` // "url"
	URL  string `json:"url"`
}

// Tool represents a tool definition in Anthropic format.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Response represents an Anthropic messages response.
type Response struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}

// Usage represents token usage in Anthropic format.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Anthropic streaming event types

// StreamEvent represents one event in Anthropic's SSE stream. The Delta
// field is kept raw because its shape depends on the event type.
type StreamEvent struct {
	Type string `json:"type"`

	// For message_start
	Message *Response `json:"message,omitempty"`

	// For content_block_start
	Index        int             `json:"index,omitempty"`
	ContentBlock *ContentBlock   `json:"content_block,omitempty"`
	Delta        json.RawMessage `json:"delta,omitempty"`

	// For message_delta
	Usage *Usage `json:"usage,omitempty"`

	// For error events
	Error *StreamEventError `json:"error,omitempty"`
}

// ContentDelta is the delta payload of content_block_delta events.
type ContentDelta struct {
	Type        string `json:"type"` // "text_delta" or "input_json_delta"
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// MessageDelta is the delta payload of message_delta events.
type MessageDelta struct {
	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
}

// StreamEventError is the payload of error events.
type StreamEventError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Transformation functions

// BuildRequest exposes the request transformation for sibling codecs that
// reuse the messages shape (Bedrock).
func BuildRequest(req *providers.CompletionRequest) (*Request, error) {
	return transformRequest(req)
}

// TransformResponse exposes the response transformation for sibling codecs.
func TransformResponse(resp *Response) (*providers.CompletionResponse, error) {
	return transformResponse(resp)
}

// NormalizeStopReason exposes the stop reason mapping for sibling codecs.
func NormalizeStopReason(reason string) string {
	return normalizeStopReason(reason)
}

// defaultMaxTokens is used when the caller did not set max_tokens; the
// Anthropic API requires the field.
const defaultMaxTokens = 4096

// transformRequest transforms a provider-agnostic request to Anthropic format.
// The system message moves to the top-level system field.
func transformRequest(req *providers.CompletionRequest) (*Request, error) {
	out := &Request{
		Model:         req.Model,
		Messages:      make([]Message, 0, len(req.Messages)),
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Stream:        req.Stream,
		StopSequences: req.Stop,
	}

	if out.MaxTokens == 0 {
		out.MaxTokens = defaultMaxTokens
	}

	var system string
	for _, msg := range req.Messages {
		switch msg.Role {
		case providers.RoleSystem:
			system = msg.Content
		case providers.RoleTool:
			out.Messages = append(out.Messages, Message{
				Role: providers.RoleUser,
				Content: []ContentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})
		case providers.RoleAssistant:
			out.Messages = append(out.Messages, transformAssistantMessage(msg))
		default:
			out.Messages = append(out.Messages, Message{
				Role:    msg.Role,
				Content: transformContent(msg),
			})
		}
	}
	out.System = system

	if len(req.Tools) > 0 {
		out.Tools = make([]Tool, len(req.Tools))
		for i, tool := range req.Tools {
			out.Tools[i] = Tool{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				InputSchema: tool.Function.Parameters,
			}
		}
	}

	if len(out.Messages) == 0 {
		return nil, fmt.Errorf("no non-system messages in request")
	}

	return out, nil
}

// transformAssistantMessage renders an assistant turn, expanding prior tool
// calls into tool_use blocks.
func transformAssistantMessage(msg providers.Message) Message {
	if len(msg.ToolCalls) == 0 {
		return Message{Role: providers.RoleAssistant, Content: msg.Content}
	}

	blocks := make([]ContentBlock, 0, len(msg.ToolCalls)+1)
	if msg.Content != "" {
		blocks = append(blocks, ContentBlock{Type: "text", Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		var input map[string]interface{}
		// Arguments arrive as a JSON string in the uniform model.
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		blocks = append(blocks, ContentBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}
	return Message{Role: providers.RoleAssistant, Content: blocks}
}

// transformContent renders user content: a plain string when the message
// has no parts, content blocks whenever it has parts (text-only included).
func transformContent(msg providers.Message) interface{} {
	if len(msg.Parts) == 0 {
		return msg.Content
	}

	blocks := make([]ContentBlock, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		switch p.Type {
		case providers.ContentPartText:
			blocks = append(blocks, ContentBlock{Type: "text", Text: p.Text})
		case providers.ContentPartImage:
			blocks = append(blocks, ContentBlock{
				Type:   "image",
				Source: &ImageSource{Type: "url", URL: p.ImageURL},
			})
		}
	}
	return blocks
}

// transformResponse transforms an Anthropic response to provider-agnostic format.
func transformResponse(resp *Response) (*providers.CompletionResponse, error) {
	result := &providers.CompletionResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		FinishReason: normalizeStopReason(resp.StopReason),
		Usage: providers.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			result.Content += block.Text
		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("marshal tool input: %w", err)
			}
			result.ToolCalls = append(result.ToolCalls, providers.ToolCall{
				ID:   block.ID,
				Type: providers.ToolTypeFunction,
				Function: providers.FunctionCall{
					Name:      block.Name,
					Arguments: string(args),
				},
			})
		}
	}

	return result, nil
}

// normalizeStopReason maps Anthropic stop reasons onto the uniform set.
func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return providers.FinishReasonStop
	case "max_tokens":
		return providers.FinishReasonLength
	case "tool_use":
		return providers.FinishReasonToolCalls
	case "":
		return ""
	default:
		return reason
	}
}
