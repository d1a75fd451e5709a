package intent

import "context"

// ClassifyRequest is one single-shot classification prompt. The matcher
// re-sends the full candidate list on every turn, so there is no
// conversation history to carry.
type ClassifyRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int32
	Temperature float32
}

type ClassifyResponse struct {
	Text         string
	InputTokens  int32
	OutputTokens int32
}

type LLMClient interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifyResponse, error)
}
