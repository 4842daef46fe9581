// Package providers provides httptest-backed mock upstreams for codec and
// dispatch tests.
package providers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
)

// MockUpstream is a scriptable fake provider endpoint.
type MockUpstream struct {
	// Server is the underlying httptest server.
	Server *httptest.Server

	// calls counts requests received.
	calls atomic.Int64

	// handler is swapped per test.
	handler atomic.Value // http.HandlerFunc
}

// NewMockUpstream starts a server that responds per the installed handler.
func NewMockUpstream() *MockUpstream {
	m := &MockUpstream{}
	m.handler.Store(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.calls.Add(1)
		m.handler.Load().(http.HandlerFunc)(w, r)
	}))
	return m
}

// URL returns the server's base URL.
func (m *MockUpstream) URL() string {
	return m.Server.URL
}

// Calls returns how many requests the server has received.
func (m *MockUpstream) Calls() int64 {
	return m.calls.Load()
}

// Close shuts the server down.
func (m *MockUpstream) Close() {
	m.Server.Close()
}

// Respond installs a handler.
func (m *MockUpstream) Respond(h http.HandlerFunc) {
	m.handler.Store(h)
}

// RespondJSON installs a fixed JSON response.
func (m *MockUpstream) RespondJSON(status int, body string) {
	m.Respond(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})
}

// RespondStatusSequence installs a handler that walks a status sequence,
// returning the OpenAI-shaped success body once statuses are exhausted.
// Used for retry and failover tests.
func (m *MockUpstream) RespondStatusSequence(statuses []int, successBody string) {
	var idx atomic.Int64
	m.Respond(func(w http.ResponseWriter, r *http.Request) {
		i := idx.Add(1) - 1
		if int(i) < len(statuses) {
			w.WriteHeader(statuses[i])
			fmt.Fprintf(w, `{"error": {"message": "upstream failure %d"}}`, statuses[i])
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, successBody)
	})
}

// RespondSSE installs a handler streaming the given frames as SSE data
// lines, then closing.
func (m *MockUpstream) RespondSSE(frames []string) {
	m.Respond(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			if flusher != nil {
				flusher.Flush()
			}
		}
	})
}

// OpenAISuccessBody is a minimal valid chat completion response.
const OpenAISuccessBody = `{
	"id": "chatcmpl-123",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "Hi"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6}
}`

// OpenAIStreamFrames is a minimal valid SSE chunk sequence ending with
// [DONE].
var OpenAIStreamFrames = []string{
	`{"id":"chatcmpl-123","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
	`{"id":"chatcmpl-123","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
	`{"id":"chatcmpl-123","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
	`{"id":"chatcmpl-123","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
	`[DONE]`,
}
