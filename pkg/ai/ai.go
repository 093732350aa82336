package ai

import "context"

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// ModelMetrics contains accumulated usage metrics from AI model operations.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"token_per_second"`
}

// ImageData carries a base64-encoded image plus its data-URL prefix, the
// form vision models accept.
type ImageData struct {
	Base64     string `json:"base64"`
	MimePrefix string `json:"mime_prefix"`
}

// URL returns the full data URL for the image.
func (d ImageData) URL() string {
	return d.MimePrefix + d.Base64
}

// Client is the narrow contract every generative collaborator implements.
// The pipeline reaches OCR, entity extraction, embedding generation, and
// answer synthesis through this interface; the concrete adapter (OpenAI or
// Ollama) is selected once at startup.
type Client interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
	GenerateImageDescription(
		ctx context.Context,
		prompt string,
		image ImageData,
	) (string, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}
