package bedrock

import (
	"encoding/json"
	"errors"
	"testing"

	"helios-hq/relay/pkg/providers"
)

func TestEncodeRequest_ModelInPath(t *testing.T) {
	codec := NewCodec("bedrock")
	req := &providers.CompletionRequest{
		Model: "anthropic.claude-3-sonnet-20240229-v1:0",
		Messages: []providers.Message{
			{Role: providers.RoleUser, Content: "Hello"},
		},
	}

	enc, err := codec.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}

	want := "/model/anthropic.claude-3-sonnet-20240229-v1:0/invoke"
	if enc.Path != want {
		t.Errorf("Path = %q, want %q", enc.Path, want)
	}

	var wire map[string]interface{}
	if err := json.Unmarshal(enc.Body, &wire); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if wire["anthropic_version"] != "bedrock-2023-05-31" {
		t.Errorf("anthropic_version = %v, want the bedrock marker", wire["anthropic_version"])
	}
	// The model never rides in the body; it is addressed by path.
	if _, ok := wire["model"]; ok {
		t.Error("model field present in body")
	}
}

func TestEncodeRequest_StreamingRejected(t *testing.T) {
	codec := NewCodec("bedrock")
	req := &providers.CompletionRequest{
		Model:    "anthropic.claude-3-sonnet-20240229-v1:0",
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
		Stream:   true,
	}

	_, err := codec.EncodeRequest(req)
	var encodeErr *providers.EncodeError
	if !errors.As(err, &encodeErr) {
		t.Fatalf("error = %v, want EncodeError", err)
	}
	if encodeErr.Capability != providers.CapStreaming {
		t.Errorf("Capability = %q, want streaming", encodeErr.Capability)
	}
}

func TestDecodeResponse_AnthropicShape(t *testing.T) {
	codec := NewCodec("bedrock")
	body := `{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-3-sonnet",
		"content": [{"type": "text", "text": "Hi"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 6, "output_tokens": 1}
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
}
