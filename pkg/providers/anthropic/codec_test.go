package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"helios-hq/relay/pkg/providers"
)

func TestEncodeRequest_SystemExtraction(t *testing.T) {
	codec := NewCodec("anthropic")
	req := &providers.CompletionRequest{
		Model: "claude-3-opus",
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "Be terse."},
			{Role: providers.RoleUser, Content: "Hello"},
		},
	}

	enc, err := codec.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}
	if enc.Path != "/messages" {
		t.Errorf("Path = %q, want /messages", enc.Path)
	}
	if enc.Headers["anthropic-version"] == "" {
		t.Error("anthropic-version header not set")
	}

	var wire Request
	if err := json.Unmarshal(enc.Body, &wire); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}

	// The system message moves to the top-level field.
	if wire.System != "Be terse." {
		t.Errorf("System = %q, want the system message content", wire.System)
	}
	for _, m := range wire.Messages {
		if m.Role == "system" {
			t.Error("system message left inside messages[]")
		}
	}
	// max_tokens is mandatory on this API.
	if wire.MaxTokens == 0 {
		t.Error("MaxTokens = 0, want the default applied")
	}
}

func TestEncodeRequest_ToolSchema(t *testing.T) {
	codec := NewCodec("anthropic")
	req := &providers.CompletionRequest{
		Model:    "claude-3-opus",
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "weather?"}},
		Tools: []providers.Tool{{
			Type: providers.ToolTypeFunction,
			Function: providers.FunctionDefinition{
				Name:       "get_weather",
				Parameters: map[string]interface{}{"type": "object"},
			},
		}},
	}

	enc, err := codec.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}

	var wire Request
	json.Unmarshal(enc.Body, &wire)
	if len(wire.Tools) != 1 {
		t.Fatalf("Tools = %d, want 1", len(wire.Tools))
	}
	// Anthropic uses input_schema, not nested function.parameters.
	if wire.Tools[0].InputSchema == nil {
		t.Error("InputSchema not populated")
	}
	if wire.Tools[0].Name != "get_weather" {
		t.Errorf("tool name = %q, want get_weather", wire.Tools[0].Name)
	}
}

func TestDecodeResponse_StopReasonMapping(t *testing.T) {
	tests := []struct {
		stopReason string
		want       string
	}{
		{stopReason: "end_turn", want: providers.FinishReasonStop},
		{stopReason: "stop_sequence", want: providers.FinishReasonStop},
		{stopReason: "max_tokens", want: providers.FinishReasonLength},
		{stopReason: "tool_use", want: providers.FinishReasonToolCalls},
	}

	codec := NewCodec("anthropic")
	for _, tt := range tests {
		t.Run(tt.stopReason, func(t *testing.T) {
			body := `{
				"id": "msg_1", "type": "message", "role": "assistant",
				"model": "claude-3-opus",
				"content": [{"type": "text", "text": "Hi"}],
				"stop_reason": "` + tt.stopReason + `",
				"usage": {"input_tokens": 10, "output_tokens": 3}
			}`

			resp, err := codec.DecodeResponse(200, nil, []byte(body))
			if err != nil {
				t.Fatalf("DecodeResponse() error = %v", err)
			}
			if resp.FinishReason != tt.want {
				t.Errorf("FinishReason = %q, want %q", resp.FinishReason, tt.want)
			}
		})
	}
}

func TestDecodeResponse_UsageMapping(t *testing.T) {
	codec := NewCodec("anthropic")
	body := `{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-3-opus",
		"content": [{"type": "text", "text": "Hi"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 3}
	}`

	resp, err := codec.DecodeResponse(200, nil, []byte(body))
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}

	// input_tokens/output_tokens map onto prompt/completion.
	if resp.Usage.PromptTokens != 10 || resp.Usage.CompletionTokens != 3 || resp.Usage.TotalTokens != 13 {
		t.Errorf("Usage = %+v, want 10/3/13", resp.Usage)
	}
}

func TestDecodeStream_EventSequence(t *testing.T) {
	codec := NewCodec("anthropic")
	events := []string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"id":"msg_1","model":"claude-3-opus","usage":{"input_tokens":12,"output_tokens":0}}}`,
		``,
		`event: content_block_start`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`,
		``,
		`event: content_block_stop`,
		`data: {"type":"content_block_stop","index":0}`,
		``,
		`event: message_delta`,
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`,
		``,
		`event: message_stop`,
		`data: {"type":"message_stop"}`,
		``,
	}

	dec := codec.DecodeStream(io.NopCloser(strings.NewReader(strings.Join(events, "\n"))))
	defer dec.Close()

	var content string
	var sawRole, sawTerminal bool
	var terminal *providers.StreamChunk

	for {
		chunk, err := dec.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if chunk.Role == providers.RoleAssistant {
			sawRole = true
		}
		content += chunk.Delta
		if chunk.Terminal() {
			sawTerminal = true
			terminal = chunk
			break
		}
	}

	if !sawRole {
		t.Error("no role chunk emitted from message_start")
	}
	if content != "Hello" {
		t.Errorf("content = %q, want Hello", content)
	}
	if !sawTerminal {
		t.Fatal("no terminal chunk from message_stop")
	}
	if terminal.FinishReason != providers.FinishReasonStop {
		t.Errorf("FinishReason = %q, want stop", terminal.FinishReason)
	}
	if terminal.Usage == nil || terminal.Usage.PromptTokens != 12 || terminal.Usage.CompletionTokens != 2 {
		t.Errorf("Usage = %+v, want 12 in / 2 out", terminal.Usage)
	}
}

func TestDecodeStream_ErrorEvent(t *testing.T) {
	codec := NewCodec("anthropic")
	events := []string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"id":"msg_1","model":"claude-3-opus","usage":{"input_tokens":1,"output_tokens":0}}}`,
		``,
		`event: error`,
		`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
		``,
	}

	dec := codec.DecodeStream(io.NopCloser(strings.NewReader(strings.Join(events, "\n"))))
	defer dec.Close()

	// Role chunk first.
	if _, err := dec.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	_, err := dec.Next(context.Background())
	if _, ok := err.(*providers.StreamError); !ok {
		t.Fatalf("error = %v, want StreamError from error event", err)
	}
}

func TestEncodeRequest_ToolResultRoundtrip(t *testing.T) {
	codec := NewCodec("anthropic")
	req := &providers.CompletionRequest{
		Model: "claude-3-opus",
		Messages: []providers.Message{
			{Role: providers.RoleUser, Content: "weather in SF?"},
			{Role: providers.RoleAssistant, ToolCalls: []providers.ToolCall{{
				ID:   "toolu_1",
				Type: providers.ToolTypeFunction,
				Function: providers.FunctionCall{
					Name:      "get_weather",
					Arguments: `{"city":"SF"}`,
				},
			}}},
			{Role: providers.RoleTool, ToolCallID: "toolu_1", Content: `{"temp": 18}`},
		},
	}

	enc, err := codec.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}

	var wire Request
	json.Unmarshal(enc.Body, &wire)
	if len(wire.Messages) != 3 {
		t.Fatalf("Messages = %d, want 3", len(wire.Messages))
	}
	// The tool turn becomes a user message carrying a tool_result block.
	if wire.Messages[2].Role != "user" {
		t.Errorf("tool turn role = %q, want user", wire.Messages[2].Role)
	}
}
