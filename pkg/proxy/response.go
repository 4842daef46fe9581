package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"helios-hq/relay/pkg/providers"
	"helios-hq/relay/pkg/proxy/types"
)

// FormatChatCompletionResponse shapes a uniform response into the OpenAI
// wire form.
func FormatChatCompletionResponse(resp *providers.CompletionResponse, requestedModel string) *types.ChatCompletionResponse {
	model := resp.Model
	if model == "" {
		model = requestedModel
	}
	created := resp.Created
	if created == 0 {
		created = time.Now().Unix()
	}
	id := resp.ID
	if id == "" {
		id = "chatcmpl-" + requestedModel
	}

	out := &types.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []types.Choice{{
			Index: 0,
			Message: types.ResponseMessage{
				Role:      providers.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: convertToolCallsOut(resp.ToolCalls),
			},
			FinishReason: resp.FinishReason,
		}},
		Usage: types.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	return out
}

// FormatStreamChunk shapes a uniform chunk into the OpenAI SSE chunk form.
func FormatStreamChunk(chunk *providers.StreamChunk, model, responseID string) *types.ChatCompletionChunk {
	created := chunk.Created
	if created == 0 {
		created = time.Now().Unix()
	}

	out := &types.ChatCompletionChunk{
		ID:      responseID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
	}

	choice := types.ChunkChoice{
		Index: 0,
		Delta: types.ChunkDelta{
			Role:      chunk.Role,
			Content:   chunk.Delta,
			ToolCalls: convertToolCallsOut(chunk.ToolCalls),
		},
	}
	if chunk.FinishReason != "" {
		reason := chunk.FinishReason
		choice.FinishReason = &reason
	}
	out.Choices = []types.ChunkChoice{choice}

	if chunk.Usage != nil {
		out.Usage = &types.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}

	return out
}

func convertToolCallsOut(calls []providers.ToolCall) []types.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]types.ToolCall, len(calls))
	for i, tc := range calls {
		out[i] = types.ToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Function: types.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	return out
}

// WriteJSONResponse writes a JSON body with the given status.
func WriteJSONResponse(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// WriteErrorResponse writes the error envelope with its mapped status.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.Error.HTTPStatusCode(), errResp)
}

// SetSSEHeaders sets the streaming response headers.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable proxy buffering so chunks flush immediately.
	w.Header().Set("X-Accel-Buffering", "no")
}

// WriteSSEChunk writes one "data: <json>\n\n" frame and flushes.
func WriteSSEChunk(w http.ResponseWriter, chunk interface{}) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal SSE chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flush(w)
	return nil
}

// WriteSSEKeepAlive writes a comment frame that clients ignore but
// intermediaries treat as activity.
func WriteSSEKeepAlive(w http.ResponseWriter) error {
	if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
		return err
	}
	flush(w)
	return nil
}

// WriteSSEError writes an error envelope as an in-stream data frame. Used
// after the HTTP status is already committed.
func WriteSSEError(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteSSEChunk(w, errResp)
}

// WriteSSEDone writes the stream terminator.
func WriteSSEDone(w http.ResponseWriter) error {
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	flush(w)
	return nil
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
