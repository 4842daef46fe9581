package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"helios-hq/relay/pkg/providers"
)

// Codec implements the OpenAI chat-completions wire format. It also serves
// the vllm and generic kinds, which speak the same protocol at different
// endpoints.
type Codec struct {
	provider string
}

// NewCodec creates a codec labeled with the owning provider's name for
// error attribution.
func NewCodec(provider string) *Codec {
	return &Codec{provider: provider}
}

// New builds a Provider for an openai-compatible descriptor.
func New(desc *providers.Descriptor) providers.Provider {
	return providers.NewHTTPProvider(desc, NewCodec(desc.Name), providers.ProbeSpec{
		Method: http.MethodGet,
		Path:   "/models",
	})
}

// EncodeRequest serializes req into the chat-completions shape.
func (c *Codec) EncodeRequest(req *providers.CompletionRequest) (*providers.EncodedRequest, error) {
	body, err := json.Marshal(transformRequest(req))
	if err != nil {
		return nil, &providers.EncodeError{
			Kind:    providers.KindOpenAI,
			Message: err.Error(),
		}
	}

	headers := map[string]string{"Content-Type": "application/json"}
	// Pass the client's idempotency token through to upstreams that honor it.
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}

	return &providers.EncodedRequest{
		Method:  http.MethodPost,
		Path:    "/chat/completions",
		Headers: headers,
		Body:    body,
	}, nil
}

// DecodeResponse parses a complete chat-completions response.
func (c *Codec) DecodeResponse(status int, header http.Header, body []byte) (*providers.CompletionResponse, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &providers.DecodeError{
			Provider: c.provider,
			Body:     truncate(body),
			Offset:   jsonErrorOffset(err),
			Cause:    err,
		}
	}

	out, err := transformResponse(&resp)
	if err != nil {
		return nil, &providers.DecodeError{Provider: c.provider, Body: truncate(body), Offset: -1, Cause: err}
	}
	return out, nil
}

// DecodeStream wraps an SSE body in an incremental chunk decoder.
func (c *Codec) DecodeStream(body io.ReadCloser) providers.StreamDecoder {
	return &streamDecoder{
		provider: c.provider,
		body:     body,
		events:   providers.NewSSEReader(body),
	}
}

// streamDecoder reads the OpenAI SSE stream: "data: <json>" events
// terminated by "data: [DONE]".
type streamDecoder struct {
	provider string
	body     io.ReadCloser
	events   *providers.SSEReader
	usage    *providers.TokenUsage
	finish   string
	id       string
	model    string
	done     bool
}

// Next returns the next normalized chunk. The [DONE] sentinel yields a
// terminal chunk with Done set, carrying any usage seen on the way.
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
			// Stream ended without [DONE]: treat as interrupted.
			d.done = true
			return nil, &providers.StreamError{
				Provider: d.provider,
				Message:  "stream ended before [DONE]",
			}
		}
		if err != nil {
			d.done = true
			return nil, &providers.StreamError{Provider: d.provider, Message: "failed to read stream", Cause: err}
		}

		if ev.Data == "[DONE]" {
			d.done = true
			return &providers.StreamChunk{
				ID:           d.id,
				Model:        d.model,
				FinishReason: d.finish,
				Usage:        d.usage,
				Done:         true,
			}, nil
		}

		var raw StreamResponse
		if err := json.Unmarshal([]byte(ev.Data), &raw); err != nil {
			d.done = true
			return nil, &providers.DecodeError{
				Provider: d.provider,
				Body:     ev.Data,
				Offset:   jsonErrorOffset(err),
				Cause:    err,
			}
		}

		chunk := transformStreamChunk(&raw)
		d.id = chunk.ID
		d.model = chunk.Model
		if chunk.FinishReason != "" {
			d.finish = chunk.FinishReason
		}
		if chunk.Usage != nil {
			d.usage = chunk.Usage
		}

		// Finish- and usage-only chunks carry no content; hold what they
		// say for the terminal chunk instead of emitting empty deltas.
		if chunk.Delta == "" && chunk.Role == "" && len(chunk.ToolCalls) == 0 {
			continue
		}

		return chunk, nil
	}
}

// Close releases the underlying connection.
func (d *streamDecoder) Close() error {
	return d.body.Close()
}

// truncate bounds raw bodies carried inside decode errors.
func truncate(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}

// jsonErrorOffset extracts the byte offset from a json.SyntaxError, -1
// when unavailable.
func jsonErrorOffset(err error) int64 {
	if syn, ok := err.(*json.SyntaxError); ok {
		return syn.Offset
	}
	return -1
}
