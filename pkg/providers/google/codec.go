package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"helios-hq/relay/pkg/providers"
)

// Codec implements the Gemini generateContent wire format.
type Codec struct {
	provider string
}

// NewCodec creates a codec labeled with the owning provider's name.
func NewCodec(provider string) *Codec {
	return &Codec{provider: provider}
}

// New builds a Provider for a google descriptor. The API key is expected as
// an x-goog-api-key header (auth kind "header").
func New(desc *providers.Descriptor) providers.Provider {
	return providers.NewHTTPProvider(desc, NewCodec(desc.Name), providers.ProbeSpec{
		Method: http.MethodGet,
		Path:   "/models",
	})
}

// EncodeRequest serializes req. The model rides in the path: streaming uses
// :streamGenerateContent with SSE framing, non-streaming :generateContent.
func (c *Codec) EncodeRequest(req *providers.CompletionRequest) (*providers.EncodedRequest, error) {
	wire, err := transformRequest(req)
	if err != nil {
		return nil, &providers.EncodeError{Kind: providers.KindGoogle, Message: err.Error()}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &providers.EncodeError{Kind: providers.KindGoogle, Message: err.Error()}
	}

	path := fmt.Sprintf("/models/%s:generateContent", req.Model)
	if req.Stream {
		path = fmt.Sprintf("/models/%s:streamGenerateContent?alt=sse", req.Model)
	}

	return &providers.EncodedRequest{
		Method:  http.MethodPost,
		Path:    path,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	}, nil
}

// DecodeResponse parses a complete generateContent response.
func (c *Codec) DecodeResponse(status int, header http.Header, body []byte) (*providers.CompletionResponse, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError(c.provider, body, err)
	}

	out, err := transformResponse(&resp, "")
	if err != nil {
		return nil, decodeError(c.provider, body, err)
	}
	return out, nil
}

// DecodeStream wraps an SSE body in an incremental decoder. Gemini streams
// full Response objects per event; the end of the stream is an event whose
// candidate carries a finishReason (there is no [DONE] sentinel).
func (c *Codec) DecodeStream(body io.ReadCloser) providers.StreamDecoder {
	return &streamDecoder{
		provider: c.provider,
		body:     body,
		events:   providers.NewSSEReader(body),
	}
}

type streamDecoder struct {
	provider string
	body     io.ReadCloser
	events   *providers.SSEReader
	usage    *providers.TokenUsage
	finish   string
	id       string
	model    string
	roleSent bool
	pending  *providers.StreamChunk
	done     bool
}

// Next returns the next normalized chunk. The first content event is split
// into a role chunk followed by its text so downstream consumers see the
// role exactly once.
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

		ev, err := d.events.Next()
		if err == io.EOF {
			d.done = true
			if d.finish == "" {
				return nil, &providers.StreamError{Provider: d.provider, Message: "stream ended without finish reason"}
			}
			return &providers.StreamChunk{
				ID:           d.id,
				Model:        d.model,
				FinishReason: d.finish,
				Usage:        d.usage,
				Done:         true,
			}, nil
		}
		if err != nil {
			d.done = true
			return nil, &providers.StreamError{Provider: d.provider, Message: "failed to read stream", Cause: err}
		}

		var resp Response
		if err := json.Unmarshal([]byte(ev.Data), &resp); err != nil {
			d.done = true
			return nil, decodeError(d.provider, []byte(ev.Data), err)
		}

		if resp.ResponseID != "" {
			d.id = resp.ResponseID
		}
		if resp.ModelVersion != "" {
			d.model = resp.ModelVersion
		}
		if resp.UsageMetadata != nil {
			d.usage = &providers.TokenUsage{
				PromptTokens:     resp.UsageMetadata.PromptTokenCount,
				CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      resp.UsageMetadata.TotalTokenCount,
			}
		}

		if len(resp.Candidates) == 0 {
			// Empty candidates is the Gemini end-of-stream shape.
			d.done = true
			return &providers.StreamChunk{
				ID:           d.id,
				Model:        d.model,
				FinishReason: d.finish,
				Usage:        d.usage,
				Done:         true,
			}, nil
		}

		candidate := resp.Candidates[0]
		if candidate.FinishReason != "" {
			d.finish = normalizeFinishReason(candidate.FinishReason)
		}

		var text string
		for _, part := range candidate.Content.Parts {
			text += part.Text
		}

		chunk := &providers.StreamChunk{ID: d.id, Model: d.model, Delta: text}

		if !d.roleSent {
			d.roleSent = true
			d.pending = chunk
			return &providers.StreamChunk{ID: d.id, Model: d.model, Role: providers.RoleAssistant}, nil
		}

		if text == "" && d.finish == "" {
			continue
		}
		return chunk, nil
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
