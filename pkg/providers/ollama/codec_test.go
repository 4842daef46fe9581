package ollama

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"helios-hq/relay/pkg/providers"
)

func TestEncodeRequest(t *testing.T) {
	codec := NewCodec("local")
	req := &providers.CompletionRequest{
		Model: "llama3",
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "Be brief."},
			{Role: providers.RoleUser, Content: "Hello"},
		},
		Temperature: 0.3,
		MaxTokens:   64,
		Stream:      true,
	}

	enc, err := codec.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}
	if enc.Path != "/api/chat" {
		t.Errorf("Path = %q, want /api/chat", enc.Path)
	}

	var wire Request
	if err := json.Unmarshal(enc.Body, &wire); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if !wire.Stream {
		t.Error("Stream not set")
	}
	// Ollama keeps the system message in-line.
	if wire.Messages[0].Role != "system" {
		t.Errorf("first role = %q, want system", wire.Messages[0].Role)
	}
	if wire.Options == nil || wire.Options.NumPredict != 64 {
		t.Error("options.num_predict not mapped from max_tokens")
	}
}

func TestDecodeResponse(t *testing.T) {
	codec := NewCodec("local")
	body := `{
		"model": "llama3",
		"created_at": "2024-06-01T12:00:00Z",
		"message": {"role": "assistant", "content": "Hi"},
		"done": true,
		"done_reason": "stop",
		"prompt_eval_count": 9,
		"eval_count": 1
	}`

	resp, err := codec.DecodeResponse(200, nil, []byte(body))
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if resp.Content != "Hi" {
		t.Errorf("Content = %q, want Hi", resp.Content)
	}
	if resp.FinishReason != providers.FinishReasonStop {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.PromptTokens != 9 || resp.Usage.TotalTokens != 10 {
		t.Errorf("Usage = %+v, want eval counts mapped", resp.Usage)
	}
}

func TestDecodeStream_JSONLines(t *testing.T) {
	codec := NewCodec("local")
	lines := []string{
		`{"model":"llama3","created_at":"2024-06-01T12:00:00Z","message":{"role":"assistant","content":"Hel"},"done":false}`,
		`{"model":"llama3","created_at":"2024-06-01T12:00:01Z","message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"model":"llama3","created_at":"2024-06-01T12:00:02Z","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":4,"eval_count":2}`,
	}

	dec := codec.DecodeStream(io.NopCloser(strings.NewReader(strings.Join(lines, "\n"))))
	defer dec.Close()

	var content string
	var terminal *providers.StreamChunk

	for {
		chunk, err := dec.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		content += chunk.Delta
		if chunk.Terminal() {
			terminal = chunk
			break
		}
	}

	if content != "Hello" {
		t.Errorf("content = %q, want Hello", content)
	}
	if terminal == nil {
		t.Fatal("no terminal chunk from done=true")
	}
	if terminal.Usage == nil || terminal.Usage.TotalTokens != 6 {
		t.Errorf("Usage = %+v, want 4+2", terminal.Usage)
	}
}

func TestDecodeStream_TruncatedWithoutDone(t *testing.T) {
	codec := NewCodec("local")
	lines := `{"model":"llama3","message":{"role":"assistant","content":"a"},"done":false}` + "\n"

	dec := codec.DecodeStream(io.NopCloser(strings.NewReader(lines)))
	defer dec.Close()

	// Role chunk, then the content chunk.
	dec.Next(context.Background())
	dec.Next(context.Background())

	_, err := dec.Next(context.Background())
	if _, ok := err.(*providers.StreamError); !ok {
		t.Fatalf("error = %v, want StreamError for truncation", err)
	}
}
