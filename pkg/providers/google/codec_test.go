package google

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"helios-hq/relay/pkg/providers"
)

func TestEncodeRequest_Shape(t *testing.T) {
	codec := NewCodec("google")
	req := &providers.CompletionRequest{
		Model: "gemini-pro",
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "Be helpful."},
			{Role: providers.RoleUser, Content: "Hello"},
			{Role: providers.RoleAssistant, Content: "Hi there"},
			{Role: providers.RoleUser, Content: "Again"},
		},
		Temperature: 0.5,
		MaxTokens:   128,
	}

	enc, err := codec.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}
	if enc.Path != "/models/gemini-pro:generateContent" {
		t.Errorf("Path = %q, want model in path", enc.Path)
	}

	var wire Request
	if err := json.Unmarshal(enc.Body, &wire); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}

	// System message becomes systemInstruction.
	if wire.SystemInstruction == nil || wire.SystemInstruction.Parts[0].Text != "Be helpful." {
		t.Error("systemInstruction not populated from the system message")
	}
	// Assistant turns map to role "model".
	if wire.Contents[1].Role != "model" {
		t.Errorf("assistant role = %q, want model", wire.Contents[1].Role)
	}
	if wire.GenerationConfig == nil || wire.GenerationConfig.MaxOutputTokens != 128 {
		t.Error("generationConfig.maxOutputTokens not mapped")
	}
}

func TestEncodeRequest_StreamPath(t *testing.T) {
	codec := NewCodec("google")
	req := &providers.CompletionRequest{
		Model:    "gemini-pro",
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
		Stream:   true,
	}

	enc, err := codec.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}
	if enc.Path != "/models/gemini-pro:streamGenerateContent?alt=sse" {
		t.Errorf("Path = %q, want the SSE streaming endpoint", enc.Path)
	}
}

func TestEncodeRequest_ToolDeclarations(t *testing.T) {
	codec := NewCodec("google")
	req := &providers.CompletionRequest{
		Model:    "gemini-pro",
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "weather?"}},
		Tools: []providers.Tool{{
			Type: providers.ToolTypeFunction,
			Function: providers.FunctionDefinition{
				Name:       "get_weather",
				Parameters: map[string]interface{}{"type": "object"},
			},
		}},
	}

	enc, _ := codec.EncodeRequest(req)
	var wire Request
	json.Unmarshal(enc.Body, &wire)

	if len(wire.Tools) != 1 || len(wire.Tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("Tools = %+v, want one functionDeclarations entry", wire.Tools)
	}
}

func TestDecodeResponse_FinishReasonAndUsage(t *testing.T) {
	codec := NewCodec("google")
	body := `{
		"candidates": [{
			"content": {"role": "model", "parts": [{"text": "Hi"}]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 1, "totalTokenCount": 8},
		"modelVersion": "gemini-pro-001"
	}`

	resp, err := codec.DecodeResponse(200, nil, []byte(body))
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if resp.Content != "Hi" {
		t.Errorf("Content = %q, want Hi", resp.Content)
	}
	if resp.FinishReason != providers.FinishReasonStop {
		t.Errorf("FinishReason = %q, want stop (from STOP)", resp.FinishReason)
	}
	if resp.Usage.PromptTokens != 7 || resp.Usage.TotalTokens != 8 {
		t.Errorf("Usage = %+v, want promptTokenCount mapping", resp.Usage)
	}
}

func TestDecodeStream(t *testing.T) {
	codec := NewCodec("google")
	frames := []string{
		`data: {"candidates":[{"content":{"role":"model","parts":[{"text":"Hel"}]}}],"responseId":"r1","modelVersion":"gemini-pro"}`,
		``,
		`data: {"candidates":[{"content":{"role":"model","parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":2,"totalTokenCount":6}}`,
		``,
	}

	dec := codec.DecodeStream(io.NopCloser(strings.NewReader(strings.Join(frames, "\n"))))
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
		t.Fatal("no terminal chunk")
	}
	if terminal.FinishReason != providers.FinishReasonStop {
		t.Errorf("FinishReason = %q, want stop", terminal.FinishReason)
	}
	if terminal.Usage == nil || terminal.Usage.TotalTokens != 6 {
		t.Errorf("Usage = %+v, want totals from usageMetadata", terminal.Usage)
	}
}
