package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"helios-hq/relay/pkg/providers"
)

// Ollama API request/response types

// Request represents an Ollama chat request.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
	Tools    []Tool    `json:"tools,omitempty"`
}

// Message represents a message in Ollama format.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Images    []string   `json:"images,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall represents a tool call in Ollama format. Arguments are a
// structured object rather than a JSON string.
type ToolCall struct {
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction is the function payload of a tool call.
type ToolCallFunction struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Tool represents a tool definition in Ollama format (OpenAI-shaped).
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction defines one callable function.
type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Options holds the sampling knobs in Ollama format.
type Options struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Response represents one Ollama chat response object. Streaming responses
// are a sequence of these as JSON lines, the last with Done set.
type Response struct {
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
	Message         Message   `json:"message"`
	Done            bool      `json:"done"`
	DoneReason      string    `json:"done_reason,omitempty"`
	PromptEvalCount int       `json:"prompt_eval_count,omitempty"`
	EvalCount       int       `json:"eval_count,omitempty"`
}

// Codec implements the Ollama chat wire format (JSON lines streaming).
type Codec struct {
	provider string
}

// NewCodec creates a codec labeled with the owning provider's name.
func NewCodec(provider string) *Codec {
	return &Codec{provider: provider}
}

// New builds a Provider for an ollama descriptor.
func New(desc *providers.Descriptor) providers.Provider {
	return providers.NewHTTPProvider(desc, NewCodec(desc.Name), providers.ProbeSpec{
		Method: http.MethodGet,
		Path:   "/api/tags",
	})
}

// EncodeRequest serializes req into the /api/chat shape.
func (c *Codec) EncodeRequest(req *providers.CompletionRequest) (*providers.EncodedRequest, error) {
	wire := &Request{
		Model:    req.Model,
		Messages: make([]Message, len(req.Messages)),
		Stream:   req.Stream,
	}

	for i, msg := range req.Messages {
		m := Message{Role: msg.Role, Content: msg.Content}
		for _, p := range msg.Parts {
			if p.Type == providers.ContentPartImage {
				m.Images = append(m.Images, p.ImageURL)
			}
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]interface{}
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			m.ToolCalls = append(m.ToolCalls, ToolCall{
				Function: ToolCallFunction{Name: tc.Function.Name, Arguments: args},
			})
		}
		wire.Messages[i] = m
	}

	if req.Temperature != 0 || req.TopP != 0 || req.MaxTokens != 0 || len(req.Stop) > 0 {
		wire.Options = &Options{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		}
	}

	for _, tool := range req.Tools {
		wire.Tools = append(wire.Tools, Tool{
			Type: tool.Type,
			Function: ToolFunction{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &providers.EncodeError{Kind: providers.KindOllama, Message: err.Error()}
	}

	return &providers.EncodedRequest{
		Method:  http.MethodPost,
		Path:    "/api/chat",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	}, nil
}

// DecodeResponse parses a complete (non-streaming) chat response.
func (c *Codec) DecodeResponse(status int, header http.Header, body []byte) (*providers.CompletionResponse, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError(c.provider, body, err)
	}
	return c.transformResponse(&resp), nil
}

func (c *Codec) transformResponse(resp *Response) *providers.CompletionResponse {
	out := &providers.CompletionResponse{
		Model:        resp.Model,
		Content:      resp.Message.Content,
		FinishReason: normalizeDoneReason(resp),
		Usage: providers.TokenUsage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
		Created: resp.CreatedAt.Unix(),
	}

	for i, tc := range resp.Message.ToolCalls {
		args, _ := json.Marshal(tc.Function.Arguments)
		out.ToolCalls = append(out.ToolCalls, providers.ToolCall{
			ID:   "call_" + strconv.Itoa(i),
			Type: providers.ToolTypeFunction,
			Function: providers.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: string(args),
			},
		})
	}
	return out
}

// DecodeStream wraps a JSON-lines body in an incremental decoder.
func (c *Codec) DecodeStream(body io.ReadCloser) providers.StreamDecoder {
	return &streamDecoder{
		provider: c.provider,
		body:     body,
		lines:    providers.NewNDJSONReader(body),
	}
}

type streamDecoder struct {
	provider string
	body     io.ReadCloser
	lines    *providers.NDJSONReader
	roleSent bool
	pending  *providers.StreamChunk
	done     bool
}

// Next returns the next normalized chunk. The line with done=true yields
// the terminal chunk carrying the finish reason and usage counts.
func (d *streamDecoder) Next(ctx context.Context) (*providers.StreamChunk, error) {
	if d.done {
		return nil, io.EOF
	}

	if d.pending != nil {
		chunk := d.pending
		d.pending = nil
		if chunk.Terminal() {
			d.done = true
		}
		return chunk, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := d.lines.Next()
		if err == io.EOF {
			d.done = true
			return nil, &providers.StreamError{Provider: d.provider, Message: "stream ended before done"}
		}
		if err != nil {
			d.done = true
			return nil, &providers.StreamError{Provider: d.provider, Message: "failed to read stream", Cause: err}
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			d.done = true
			return nil, decodeError(d.provider, line, err)
		}

		if resp.Done {
			d.done = true
			usage := &providers.TokenUsage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			}
			return &providers.StreamChunk{
				Model:        resp.Model,
				Delta:        resp.Message.Content,
				FinishReason: normalizeDoneReason(&resp),
				Usage:        usage,
				Done:         true,
			}, nil
		}

		chunk := &providers.StreamChunk{
			Model:   resp.Model,
			Delta:   resp.Message.Content,
			Created: resp.CreatedAt.Unix(),
		}

		if !d.roleSent {
			d.roleSent = true
			d.pending = chunk
			return &providers.StreamChunk{Model: resp.Model, Role: providers.RoleAssistant}, nil
		}

		if chunk.Delta == "" {
			continue
		}
		return chunk, nil
	}
}

// Close releases the underlying connection.
func (d *streamDecoder) Close() error {
	return d.body.Close()
}

// normalizeDoneReason maps Ollama done reasons onto the uniform set.
func normalizeDoneReason(resp *Response) string {
	if !resp.Done {
		return ""
	}
	switch resp.DoneReason {
	case "length":
		return providers.FinishReasonLength
	case "", "stop":
		if len(resp.Message.ToolCalls) > 0 {
			return providers.FinishReasonToolCalls
		}
		return providers.FinishReasonStop
	default:
		return providers.FinishReasonStop
	}
}

func decodeError(provider string, body []byte, err error) error {
	offset := int64(-1)
	if syn, ok := err.(*json.SyntaxError); ok {
		offset = syn.Offset
	}
	raw := string(body)
	if len(raw) > 512 {
		raw = raw[:512]
	}
	return &providers.DecodeError{Provider: provider, Body: raw, Offset: offset, Cause: err}
}
