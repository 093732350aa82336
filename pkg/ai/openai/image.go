package openai

import (
	"context"
	"fmt"
	"time"

	"bionexus/pkg/ai"

	"github.com/openai/openai-go/v3"
)

// GenerateImageDescription sends a vision request with a base64-encoded
// page or figure image and returns the model's textual output for the
// provided prompt.
func (c *OpenAIClient) GenerateImageDescription(
	ctx context.Context,
	prompt string,
	image ai.ImageData,
) (string, error) {
	client := c.VisionClient

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.visionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: image.URL(),
				}),
			}),
		},
	}

	if err := c.visionLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.visionLock.Release(1)

	start := time.Now()
	response, err := client.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", err
	}
	duration := time.Since(start).Milliseconds()

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   duration,
	})

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response from model")
	}
	return response.Choices[0].Message.Content, nil
}
