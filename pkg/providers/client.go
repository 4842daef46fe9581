package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProbeSpec describes the lightweight request used for health probes.
type ProbeSpec struct {
	// Method is the HTTP method, normally GET.
	Method string

	// Path is appended to the descriptor's base URL.
	Path string
}

// HTTPProvider is the shared implementation backing every provider kind.
// It owns a connection-pooled transport (HTTP/2 where negotiable), injects
// credentials per the descriptor's auth kind, and delegates wire translation
// to the kind's codec.
//
// HTTPProvider performs exactly one upstream attempt per call and does not
// interpret errors beyond the status code; retry, failover and outcome
// classification belong to the dispatch pipeline.
type HTTPProvider struct {
	desc   *Descriptor
	codec  Codec
	client *http.Client
	probe  ProbeSpec
	signer *sigV4Signer
}

// NewHTTPProvider builds a provider from its descriptor and codec.
func NewHTTPProvider(desc *Descriptor, codec Codec, probe ProbeSpec) *HTTPProvider {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   desc.Timeouts.Connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: desc.Timeouts.Connect,
		MaxIdleConns:        desc.MaxIdleConns,
		MaxIdleConnsPerHost: desc.MaxIdleConnsPerHost,
		IdleConnTimeout:     desc.IdleConnTimeout,
		DisableCompression:  false,
		ForceAttemptHTTP2:   true,
	}

	p := &HTTPProvider{
		desc:  desc,
		codec: codec,
		probe: probe,
		client: &http.Client{
			Transport: transport,
			// Total timeout is applied per-call via context so streaming
			// bodies are not cut off by the client-level timeout.
		},
	}

	if desc.Auth.Kind == AuthSigV4 {
		p.signer = newSigV4Signer(desc.Auth, bedrockService)
	}

	return p
}

// Name returns the provider's configured name.
func (p *HTTPProvider) Name() string {
	return p.desc.Name
}

// Kind returns the provider's wire-protocol kind.
func (p *HTTPProvider) Kind() Kind {
	return p.desc.Kind
}

// Descriptor returns the immutable descriptor this provider was built from.
func (p *HTTPProvider) Descriptor() *Descriptor {
	return p.desc
}

// SendCompletion encodes req, performs one upstream attempt and decodes the
// complete response body.
func (p *HTTPProvider) SendCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req.Stream {
		return nil, &ValidationError{Field: "stream", Message: "streaming request sent to SendCompletion"}
	}

	enc, err := p.codec.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.do(ctx, enc)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.wrapTransportError(ctx, err)
	}

	if err := p.statusError(resp, body); err != nil {
		return nil, err
	}

	out, err := p.codec.DecodeResponse(resp.StatusCode, resp.Header, body)
	if err != nil {
		return nil, err
	}
	out.Provider = p.desc.Name
	return out, nil
}

// StreamCompletion encodes req, performs one upstream attempt and returns an
// incremental decoder over the response body. The caller owns the decoder
// and must Close it.
func (p *HTTPProvider) StreamCompletion(ctx context.Context, req *CompletionRequest) (StreamDecoder, error) {
	enc, err := p.codec.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.do(ctx, enc)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, p.statusError(resp, body)
	}

	return p.codec.DecodeStream(resp.Body), nil
}

// Probe performs the kind's lightweight reachability request.
func (p *HTTPProvider) Probe(ctx context.Context) ProbeResult {
	start := time.Now()

	enc := &EncodedRequest{Method: p.probe.Method, Path: p.probe.Path}
	resp, err := p.do(ctx, enc)
	if err != nil {
		return ProbeResult{OK: false, Latency: time.Since(start), Err: err}
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()

	latency := time.Since(start)
	if resp.StatusCode >= 500 {
		return ProbeResult{
			OK:      false,
			Latency: latency,
			Err:     &ProviderError{Provider: p.desc.Name, StatusCode: resp.StatusCode, Message: "probe failed"},
		}
	}
	return ProbeResult{OK: true, Latency: latency}
}

// Close releases pooled connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// do performs one HTTP round trip with auth injection and the descriptor's
// total timeout applied through the context.
func (p *HTTPProvider) do(ctx context.Context, enc *EncodedRequest) (*http.Response, error) {
	if p.desc.Timeouts.Total > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.desc.Timeouts.Total)
		// The cancel func is tied to the response body: it fires when the
		// body is closed so streaming reads stay bounded by the deadline.
		defer func() {
			if cancel != nil {
				cancel()
			}
		}()
		resp, err := p.doOnce(ctx, enc)
		if err != nil {
			return nil, err
		}
		resp.Body = &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}
		cancel = nil
		return resp, nil
	}
	return p.doOnce(ctx, enc)
}

func (p *HTTPProvider) doOnce(ctx context.Context, enc *EncodedRequest) (*http.Response, error) {
	u, err := joinURL(p.desc.BaseURL, enc.Path)
	if err != nil {
		return nil, &ConfigError{Provider: p.desc.Name, Field: "base_url", Message: err.Error()}
	}

	var bodyReader io.Reader
	if len(enc.Body) > 0 {
		bodyReader = bytes.NewReader(enc.Body)
	}

	req, err := http.NewRequestWithContext(ctx, enc.Method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range enc.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && len(enc.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	// Compression is negotiated by the transport (DisableCompression is
	// false), which also gunzips transparently. Setting Accept-Encoding by
	// hand would leave the body compressed on arrival.

	if err := p.applyAuth(req, enc.Body); err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.wrapTransportError(ctx, err)
	}
	return resp, nil
}

// applyAuth injects credentials per the descriptor's auth kind.
func (p *HTTPProvider) applyAuth(req *http.Request, body []byte) error {
	auth := p.desc.Auth
	switch auth.Kind {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case AuthHeader:
		if auth.Header == "" {
			return &ConfigError{Provider: p.desc.Name, Field: "auth.header", Message: "header name required"}
		}
		req.Header.Set(auth.Header, auth.Prefix+auth.Token)
	case AuthSigV4:
		if p.signer == nil {
			return &ConfigError{Provider: p.desc.Name, Field: "auth", Message: "sigv4 signer not initialized"}
		}
		return p.signer.sign(req, body, time.Now().UTC())
	case AuthNone, "":
		// No credentials.
	default:
		return &ConfigError{Provider: p.desc.Name, Field: "auth.kind", Message: "unknown auth kind " + string(auth.Kind)}
	}
	return nil
}

// statusError maps a non-2xx response to the matching typed error.
// Classification of whether the error is retryable belongs to the dispatch
// pipeline; this only shapes the error.
func (p *HTTPProvider) statusError(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Provider: p.desc.Name, Message: msg}
	case http.StatusTooManyRequests:
		return &RateLimitError{
			Provider:   p.desc.Name,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    msg,
		}
	default:
		return &ProviderError{Provider: p.desc.Name, StatusCode: resp.StatusCode, Message: msg}
	}
}

// wrapTransportError shapes network-level failures. Context expiry becomes a
// TimeoutError so the pipeline can map it to 504.
func (p *HTTPProvider) wrapTransportError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return &TimeoutError{Provider: p.desc.Name, Timeout: p.desc.Timeouts.Total}
	}
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}
	return &ProviderError{Provider: p.desc.Name, Message: "transport error", Cause: err}
}

// cancelOnCloseBody ties a context cancel func to the response body so the
// per-request timeout context is released exactly when the body is closed.
type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// joinURL appends a path suffix to a base URL, preserving any base path.
func joinURL(base, suffix string) (string, error) {
	if suffix == "" {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(suffix, "/")
	return u.String(), nil
}

// ParseRetryAfter parses a Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}

	return 0
}
