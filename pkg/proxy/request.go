// Package proxy implements the translation between the inbound OpenAI
// surface and the gateway's uniform request model, plus response and SSE
// formatting and the error envelope mapping.
package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"helios-hq/relay/pkg/providers"
	"helios-hq/relay/pkg/proxy/types"
)

// MaxBodyBytes caps the inbound request body.
const MaxBodyBytes = 10 << 20 // 10 MiB

// ParseChatCompletionRequest reads, decodes and validates the request body.
func ParseChatCompletionRequest(r *http.Request) (*types.ChatCompletionRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) > MaxBodyBytes {
		return nil, &types.ValidationError{Field: "body", Message: "request body too large"}
	}

	var req types.ChatCompletionRequest
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	if err := decoder.Decode(&req); err != nil {
		return nil, &jsonError{cause: err}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// jsonError marks malformed request JSON for the error mapper.
type jsonError struct {
	cause error
}

func (e *jsonError) Error() string {
	return "request body is not valid JSON: " + e.cause.Error()
}

// ToUniform converts a validated wire request into the uniform model.
// Identity fields (request id, tenant, principal, idempotency key,
// deadline) are filled by the handler from the request context.
func ToUniform(req *types.ChatCompletionRequest) *providers.CompletionRequest {
	out := &providers.CompletionRequest{
		Model:    req.Model,
		Messages: make([]providers.Message, 0, len(req.Messages)),
		Stream:   req.Stream,
		Stop:     req.Stop,
		User:     req.User,
	}

	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, convertMessage(msg))
	}

	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		out.TopP = *req.TopP
	}

	if len(req.Tools) > 0 {
		out.Tools = make([]providers.Tool, len(req.Tools))
		for i, tool := range req.Tools {
			out.Tools[i] = providers.Tool{
				Type: tool.Type,
				Function: providers.FunctionDefinition{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			}
		}
	}
	if req.ToolChoice != nil {
		out.ToolChoice = req.ToolChoice
	}

	if req.Routing != nil {
		out.Hints = providers.RoutingHints{
			PreferredProvider: req.Routing.PreferredProvider,
			CostWeight:        req.Routing.CostWeight,
			LatencyWeight:     req.Routing.LatencyWeight,
		}
		for _, c := range req.Routing.RequiredCapabilities {
			out.Hints.RequiredCapabilities = append(out.Hints.RequiredCapabilities, providers.Capability(c))
		}
	}

	return out
}

// convertMessage maps one wire message, flattening string content and
// preserving multimodal parts.
func convertMessage(msg types.Message) providers.Message {
	out := providers.Message{
		Role:       msg.Role,
		Name:       msg.Name,
		ToolCallID: msg.ToolCallID,
	}

	switch content := msg.Content.(type) {
	case string:
		out.Content = content
	case []interface{}:
		out.Parts, out.Content = convertParts(content)
	case nil:
		// Assistant messages may carry only tool calls.
	default:
		out.Content = fmt.Sprintf("%v", content)
	}

	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, providers.ToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Function: providers.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	return out
}

// convertParts maps a multimodal content array into structured parts plus
// the flattened text used by text-only providers.
func convertParts(raw []interface{}) ([]providers.ContentPart, string) {
	var parts []providers.ContentPart
	var texts []string

	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		partType, _ := m["type"].(string)

		switch partType {
		case "text":
			if text, ok := m["text"].(string); ok {
				parts = append(parts, providers.ContentPart{Type: providers.ContentPartText, Text: text})
				texts = append(texts, text)
			}
		case "image_url":
			// {"type":"image_url","image_url":{"url":...}}
			if wrapper, ok := m["image_url"].(map[string]interface{}); ok {
				if u, ok := wrapper["url"].(string); ok {
					parts = append(parts, providers.ContentPart{Type: providers.ContentPartImage, ImageURL: u})
				}
			}
		}
	}

	return parts, strings.Join(texts, " ")
}

// DeadlineFrom derives the request's absolute deadline from the context,
// zero when none is set.
func DeadlineFrom(r *http.Request) time.Time {
	if deadline, ok := r.Context().Deadline(); ok {
		return deadline
	}
	return time.Time{}
}
