package routing

import "helios-hq/relay/pkg/providers"

// Character-based token estimation for cost routing. The ~4 chars/token
// ratio is within a few percent for English text across current tokenizers
// and costs nothing on the hot path; routing only needs relative cost, not
// billing accuracy.
const charsPerToken = 4

// defaultOutputEstimate is assumed when the request does not cap output
// tokens.
const defaultOutputEstimate = 512

// EstimateTokens returns (input, output) token estimates for the request.
func EstimateTokens(req *providers.CompletionRequest) (int, int) {
	chars := 0
	for _, msg := range req.Messages {
		chars += len(msg.Content) + len(msg.Role) + len(msg.Name)
		for _, p := range msg.Parts {
			chars += len(p.Text)
		}
		for _, tc := range msg.ToolCalls {
			chars += len(tc.Function.Name) + len(tc.Function.Arguments)
		}
	}
	for _, tool := range req.Tools {
		chars += len(tool.Function.Name) + len(tool.Function.Description)
		// Parameters schema contributes roughly its key material.
		chars += 32 * len(tool.Function.Parameters)
	}

	input := chars / charsPerToken
	if input < 1 {
		input = 1
	}

	output := req.MaxTokens
	if output <= 0 {
		output = defaultOutputEstimate
	}

	return input, output
}
