package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"helios-hq/relay/pkg/providers"
)

// apiVersion is the anthropic-version header sent on every request.
const apiVersion = "2023-06-01"

// Codec implements the Anthropic messages wire format.
type Codec struct {
	provider string
}

// NewCodec creates a codec labeled with the owning provider's name.
func NewCodec(provider string) *Codec {
	return &Codec{provider: provider}
}

// New builds a Provider for an anthropic descriptor.
func New(desc *providers.Descriptor) providers.Provider {
	return providers.NewHTTPProvider(desc, NewCodec(desc.Name), providers.ProbeSpec{
		Method: http.MethodGet,
		Path:   "/models",
	})
}

// EncodeRequest serializes req into the messages shape.
func (c *Codec) EncodeRequest(req *providers.CompletionRequest) (*providers.EncodedRequest, error) {
	wire, err := transformRequest(req)
	if err != nil {
		return nil, &providers.EncodeError{
			Kind:    providers.KindAnthropic,
			Message: err.Error(),
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &providers.EncodeError{Kind: providers.KindAnthropic, Message: err.Error()}
	}

	return &providers.EncodedRequest{
		Method: http.MethodPost,
		Path:   "/messages",
		Headers: map[string]string{
			"Content-Type":      "application/json",
			"anthropic-version": apiVersion,
		},
		Body: body,
	}, nil
}

// DecodeResponse parses a complete messages response.
func (c *Codec) DecodeResponse(status int, header http.Header, body []byte) (*providers.CompletionResponse, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError(c.provider, body, err)
	}

	out, err := transformResponse(&resp)
	if err != nil {
		return nil, decodeError(c.provider, body, err)
	}
	return out, nil
}

// DecodeStream wraps an SSE body in an incremental event decoder.
func (c *Codec) DecodeStream(body io.ReadCloser) providers.StreamDecoder {
	return &streamDecoder{
		provider: c.provider,
		body:     body,
		events:   providers.NewSSEReader(body),
	}
}

// streamDecoder walks Anthropic's event sequence: message_start,
// content_block_start/delta/stop pairs, message_delta, message_stop.
type streamDecoder struct {
	provider  string
	body      io.ReadCloser
	events    *providers.SSEReader
	id        string
	model     string
	usage     providers.TokenUsage
	finish    string
	roleSent  bool
	toolID    string
	toolName  string
	done      bool
}

// Next returns the next normalized chunk. message_stop yields the terminal
// chunk carrying stop reason and usage.
func (d *streamDecoder) Next(ctx context.Context) (*providers.StreamChunk, error) {
	if d.done {
		return nil, io.EOF
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ev, err := d.events.Next()
		if err == io.EOF {
			d.done = true
			return nil, &providers.StreamError{Provider: d.provider, Message: "stream ended before message_stop"}
		}
		if err != nil {
			d.done = true
			return nil, &providers.StreamError{Provider: d.provider, Message: "failed to read stream", Cause: err}
		}

		var event StreamEvent
		if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
			d.done = true
			return nil, decodeError(d.provider, []byte(ev.Data), err)
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				d.id = event.Message.ID
				d.model = event.Message.Model
				d.usage.PromptTokens = event.Message.Usage.InputTokens
			}
			if !d.roleSent {
				d.roleSent = true
				return &providers.StreamChunk{ID: d.id, Model: d.model, Role: providers.RoleAssistant}, nil
			}

		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				d.toolID = event.ContentBlock.ID
				d.toolName = event.ContentBlock.Name
			}

		case "content_block_delta":
			var delta ContentDelta
			if err := json.Unmarshal(event.Delta, &delta); err != nil {
				d.done = true
				return nil, decodeError(d.provider, event.Delta, err)
			}
			switch delta.Type {
			case "text_delta":
				return &providers.StreamChunk{ID: d.id, Model: d.model, Delta: delta.Text}, nil
			case "input_json_delta":
				return &providers.StreamChunk{
					ID:    d.id,
					Model: d.model,
					ToolCalls: []providers.ToolCall{{
						ID:   d.toolID,
						Type: providers.ToolTypeFunction,
						Function: providers.FunctionCall{
							Name:      d.toolName,
							Arguments: delta.PartialJSON,
						},
					}},
				}, nil
			}

		case "content_block_stop":
			d.toolID = ""
			d.toolName = ""

		case "message_delta":
			var delta MessageDelta
			if err := json.Unmarshal(event.Delta, &delta); err != nil {
				d.done = true
				return nil, decodeError(d.provider, event.Delta, err)
			}
			if delta.StopReason != "" {
				d.finish = normalizeStopReason(delta.StopReason)
			}
			if event.Usage != nil {
				d.usage.CompletionTokens = event.Usage.OutputTokens
			}

		case "message_stop":
			d.done = true
			usage := d.usage
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			return &providers.StreamChunk{
				ID:           d.id,
				Model:        d.model,
				FinishReason: d.finish,
				Usage:        &usage,
				Done:         true,
			}, nil

		case "error":
			d.done = true
			msg := "provider error event"
			if event.Error != nil {
				msg = event.Error.Message
			}
			return nil, &providers.StreamError{Provider: d.provider, Message: msg}

		case "ping":
			// Keep-alive; nothing to emit.
		}
	}
}

// Close releases the underlying connection.
func (d *streamDecoder) Close() error {
	return d.body.Close()
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
