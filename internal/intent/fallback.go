package intent

import (
	"context"

	"github.com/haloweavedev/laine/pkg/logging"
)

// FallbackLLMClient retries a failed classification on a second provider.
// A misclassified turn costs the caller a clarifying question, so one
// retry on the fallback is worth the extra latency.
type FallbackLLMClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

// NewFallbackLLMClient wires primary with an optional fallback. A nil
// fallback means primary errors surface directly.
func NewFallbackLLMClient(primary, fallback LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackLLMClient) Classify(ctx context.Context, req ClassifyRequest) (ClassifyResponse, error) {
	resp, err := c.primary.Classify(ctx, req)
	if err == nil {
		return resp, nil
	}

	if c.fallback == nil {
		return ClassifyResponse{}, err
	}
	c.logger.Warn("primary classifier failed, trying fallback", "error", err.Error())

	fallbackResp, fallbackErr := c.fallback.Classify(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback classifier also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return ClassifyResponse{}, fallbackErr
	}
	return fallbackResp, nil
}
