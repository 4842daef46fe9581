package providers

import (
	"context"
	"io"
	"net/http"
)

// Provider is the core interface that all LLM provider adapters implement.
// It is a unified abstraction over the configured upstreams (OpenAI,
// Anthropic, Google, Bedrock, local Ollama/vLLM, generic OpenAI-compatible).
//
// All methods accept a context.Context for cancellation and timeout control.
// Implementations must respect context cancellation and return promptly when
// the context is cancelled.
type Provider interface {
	// SendCompletion sends a non-streaming completion request to the
	// provider and returns the normalized response. The request is encoded
	// to the provider-specific format by the provider's codec.
	//
	// SendCompletion performs exactly one upstream attempt; retry and
	// failover policy belong to the dispatch pipeline.
	SendCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// StreamCompletion opens a streaming completion request and returns a
	// decoder positioned before the first chunk. The caller must Close the
	// decoder to release the underlying connection.
	StreamCompletion(ctx context.Context, req *CompletionRequest) (StreamDecoder, error)

	// Probe performs a lightweight reachability check and reports the
	// round-trip latency. It never counts toward breaker state.
	Probe(ctx context.Context) ProbeResult

	// Name returns the provider's configured name.
	Name() string

	// Kind returns the provider's wire-protocol kind.
	Kind() Kind

	// Descriptor returns the immutable descriptor this provider was built from.
	Descriptor() *Descriptor

	// Close releases pooled connections. The provider must not be used
	// after Close.
	Close() error
}

// StreamDecoder yields normalized chunks from a provider's response stream.
// Decoding is incremental: the decoder never buffers the full response and
// tolerates event boundaries that split JSON objects.
type StreamDecoder interface {
	// Next returns the next chunk. The final chunk has Done set (normal
	// end) or the call returns a non-nil error (failure); never both.
	// After a terminal chunk or error, Next returns io.EOF.
	Next(ctx context.Context) (*StreamChunk, error)

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// EncodedRequest is the provider-specific on-wire form of a request.
type EncodedRequest struct {
	// Method is the HTTP method, normally POST.
	Method string

	// Path is the path suffix appended to the descriptor's base URL.
	Path string

	// Headers are codec-specific headers (content type, anthropic-version, ...).
	Headers map[string]string

	// Body is the serialized request body.
	Body []byte
}

// Codec translates between the uniform model and one provider kind's wire
// schema. Encode and DecodeResponse are pure: given the same inputs they
// produce the same outputs.
type Codec interface {
	// EncodeRequest serializes req into the provider's wire format.
	// Returns an EncodeError when the request needs a capability the
	// kind cannot express.
	EncodeRequest(req *CompletionRequest) (*EncodedRequest, error)

	// DecodeResponse parses a complete (non-streaming) provider response.
	DecodeResponse(status int, header http.Header, body []byte) (*CompletionResponse, error)

	// DecodeStream wraps the provider's response body in an incremental
	// chunk decoder.
	DecodeStream(body io.ReadCloser) StreamDecoder
}
