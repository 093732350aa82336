package ollama

import (
	"context"
	"encoding/base64"
	"time"

	"bionexus/pkg/ai"

	"github.com/ollama/ollama/api"
)

// GenerateImageDescription sends a vision chat request with a base64 image
// and returns the model's textual output for the provided prompt.
func (c *OllamaClient) GenerateImageDescription(
	ctx context.Context,
	prompt string,
	image ai.ImageData,
) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(image.Base64)
	if err != nil {
		return "", err
	}

	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	stream := false
	req := &api.ChatRequest{
		Model: c.visionModel,
		Messages: []api.Message{
			{Role: "system", Content: prompt},
			{
				Role:    "user",
				Content: "",
				Images:  []api.ImageData{raw},
			},
		},
		Stream: &stream,
	}

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(rCtx, req, func(cr api.ChatResponse) error {
		final = cr
		return nil
	}); err != nil {
		return "", err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.TotalDuration.Milliseconds(),
	})

	return final.Message.Content, nil
}
