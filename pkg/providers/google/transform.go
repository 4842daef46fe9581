package google

import (
	"encoding/json"
	"fmt"

	"helios-hq/relay/pkg/providers"
)

// Gemini API request/response types

// Request represents a Gemini generateContent request.
type Request struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	Tools             []ToolDeclaration `json:"tools,omitempty"`
}

// Content is one conversation turn in Gemini format. Role is "user" or
// "model"; system instructions ride in the separate top-level field.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one element of a content turn.
type Part struct {
	Text string `json:"text,omitempty"`

	// InlineData carries image content.
	InlineData *Blob `json:"inline_data,omitempty"`

	// FileData references an image by URI.
	FileData *FileData `json:"file_data,omitempty"`

	// FunctionCall is set on model turns that request a tool invocation.
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`

	// FunctionResponse is set on user turns answering a tool invocation.
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// Blob is inline binary content.
type Blob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// FileData references external content by URI.
type FileData struct {
	MimeType string `json:"mime_type,omitempty"`
	FileURI  string `json:"file_uri"`
}

// FunctionCall is a tool invocation request in Gemini format. Args is a
// structured object, unlike the JSON string of the uniform model.
type FunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// FunctionResponse carries a tool result back to the model.
type FunctionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

// GenerationConfig holds the sampling knobs.
type GenerationConfig struct {
	Temperature     float64  `json:"temperature,omitempty"`
	TopP            float64  `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

// ToolDeclaration wraps function declarations in Gemini format.
type ToolDeclaration struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// FunctionDeclaration defines one callable function.
type FunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Response represents a generateContent response.
type Response struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
	ResponseID    string         `json:"responseId,omitempty"`
}

// Candidate is one generated completion.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
	Index        int     `json:"index,omitempty"`
}

// UsageMetadata represents token usage in Gemini format.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Transformation functions

// transformRequest transforms a provider-agnostic request to Gemini format.
// The system message moves to systemInstruction; assistant turns map to
// role "model".
func transformRequest(req *providers.CompletionRequest) (*Request, error) {
	out := &Request{
		Contents: make([]Content, 0, len(req.Messages)),
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case providers.RoleSystem:
			out.SystemInstruction = &Content{Parts: []Part{{Text: msg.Content}}}

		case providers.RoleAssistant:
			content := Content{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]interface{}
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				content.Parts = append(content.Parts, Part{
					FunctionCall: &FunctionCall{Name: tc.Function.Name, Args: args},
				})
			}
			out.Contents = append(out.Contents, content)

		case providers.RoleTool:
			var response map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]interface{}{"result": msg.Content}
			}
			out.Contents = append(out.Contents, Content{
				Role: "user",
				Parts: []Part{{
					FunctionResponse: &FunctionResponse{Name: msg.Name, Response: response},
				}},
			})

		default:
			out.Contents = append(out.Contents, Content{
				Role:  "user",
				Parts: transformParts(msg),
			})
		}
	}

	if len(out.Contents) == 0 {
		return nil, fmt.Errorf("no non-system messages in request")
	}

	if req.Temperature != 0 || req.TopP != 0 || req.MaxTokens != 0 || len(req.Stop) > 0 {
		out.GenerationConfig = &GenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.Stop,
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]FunctionDeclaration, len(req.Tools))
		for i, tool := range req.Tools {
			decls[i] = FunctionDeclaration{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			}
		}
		out.Tools = []ToolDeclaration{{FunctionDeclarations: decls}}
	}

	return out, nil
}

// transformParts renders a user message's parts.
func transformParts(msg providers.Message) []Part {
	if len(msg.Parts) == 0 {
		return []Part{{Text: msg.Content}}
	}

	parts := make([]Part, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		switch p.Type {
		case providers.ContentPartText:
			parts = append(parts, Part{Text: p.Text})
		case providers.ContentPartImage:
			parts = append(parts, Part{FileData: &FileData{FileURI: p.ImageURL}})
		}
	}
	return parts
}

// transformResponse transforms a Gemini response to provider-agnostic format.
func transformResponse(resp *Response, model string) (*providers.CompletionResponse, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]

	result := &providers.CompletionResponse{
		ID:           resp.ResponseID,
		Model:        model,
		FinishReason: normalizeFinishReason(candidate.FinishReason),
	}
	if resp.ModelVersion != "" {
		result.Model = resp.ModelVersion
	}

	for i, part := range candidate.Content.Parts {
		if part.Text != "" {
			result.Content += part.Text
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("marshal function args: %w", err)
			}
			result.ToolCalls = append(result.ToolCalls, providers.ToolCall{
				ID:   fmt.Sprintf("call_%d", i),
				Type: providers.ToolTypeFunction,
				Function: providers.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
			})
		}
	}

	if len(result.ToolCalls) > 0 && result.FinishReason == providers.FinishReasonStop {
		result.FinishReason = providers.FinishReasonToolCalls
	}

	if resp.UsageMetadata != nil {
		result.Usage = providers.TokenUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	return result, nil
}

// normalizeFinishReason maps Gemini finish reasons onto the uniform set.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return providers.FinishReasonStop
	case "MAX_TOKENS":
		return providers.FinishReasonLength
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST":
		return providers.FinishReasonContentFilter
	case "":
		return ""
	default:
		return providers.FinishReasonStop
	}
}
