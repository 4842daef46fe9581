package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"helios-hq/relay/pkg/providers"
	"helios-hq/relay/pkg/providers/anthropic"
)

// anthropicVersion is the bedrock-side protocol marker replacing the
// anthropic-version header.
const anthropicVersion = "bedrock-2023-05-31"

// Request is the Bedrock invoke body: the Anthropic messages shape with the
// model moved to the path and an in-body version marker.
type Request struct {
	AnthropicVersion string `json:"anthropic_version"`
	*anthropic.Request
}

// Codec implements the Bedrock invoke wire format for Anthropic-family
// models. Requests are signed with SigV4 by the HTTP client layer.
//
// Streaming is not implemented for this kind: the invoke-with-response-stream
// endpoint uses AWS binary event framing rather than SSE. Descriptors of
// this kind must not declare the streaming capability; the capability filter
// keeps stream requests away, and EncodeRequest rejects any that slip through.
type Codec struct {
	provider string
}

// NewCodec creates a codec labeled with the owning provider's name.
func NewCodec(provider string) *Codec {
	return &Codec{provider: provider}
}

// New builds a Provider for a bedrock descriptor.
func New(desc *providers.Descriptor) providers.Provider {
	return providers.NewHTTPProvider(desc, NewCodec(desc.Name), providers.ProbeSpec{
		Method: http.MethodGet,
		Path:   "/foundation-models",
	})
}

// EncodeRequest serializes req into the invoke shape. The model id rides in
// the path and is stripped from the body.
func (c *Codec) EncodeRequest(req *providers.CompletionRequest) (*providers.EncodedRequest, error) {
	if req.Stream {
		return nil, &providers.EncodeError{
			Kind:       providers.KindBedrock,
			Capability: providers.CapStreaming,
			Message:    "bedrock kind does not support streaming",
		}
	}

	inner, err := anthropic.BuildRequest(req)
	if err != nil {
		return nil, &providers.EncodeError{Kind: providers.KindBedrock, Message: err.Error()}
	}
	inner.Model = ""
	inner.Stream = false

	body, err := json.Marshal(&Request{AnthropicVersion: anthropicVersion, Request: inner})
	if err != nil {
		return nil, &providers.EncodeError{Kind: providers.KindBedrock, Message: err.Error()}
	}

	return &providers.EncodedRequest{
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("/model/%s/invoke", url.PathEscape(req.Model)),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	}, nil
}

// DecodeResponse parses the invoke response, which is the Anthropic
// messages response shape.
func (c *Codec) DecodeResponse(status int, header http.Header, body []byte) (*providers.CompletionResponse, error) {
	var resp anthropic.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError(c.provider, body, err)
	}

	out, err := anthropic.TransformResponse(&resp)
	if err != nil {
		return nil, decodeError(c.provider, body, err)
	}
	return out, nil
}

// DecodeStream is never reached for this kind; EncodeRequest rejects
// streaming requests first. It returns a decoder that fails immediately so
// a misconfigured descriptor surfaces as a stream error rather than a panic.
func (c *Codec) DecodeStream(body io.ReadCloser) providers.StreamDecoder {
	body.Close()
	return &unsupportedStream{provider: c.provider}
}

type unsupportedStream struct {
	provider string
}

func (s *unsupportedStream) Next(ctx context.Context) (*providers.StreamChunk, error) {
	return nil, &providers.StreamError{Provider: s.provider, Message: "streaming not supported for bedrock kind"}
}

func (s *unsupportedStream) Close() error { return nil }

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
