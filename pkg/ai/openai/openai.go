package openai

import (
	"sync"

	"bionexus/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// OpenAIClient talks to OpenAI-compatible endpoints for the pipeline's
// generative tasks. It keeps separate clients for chat, embedding, and
// vision so each can point at a different deployment.
//
// An OpenAIClient should be created using NewOpenAIClient.
type OpenAIClient struct {
	embeddingModel  string
	completionModel string
	extractionModel string
	visionModel     string

	chatURL      string
	chatKey      string
	embeddingURL string
	embeddingKey string
	visionURL    string
	visionKey    string

	timeoutMin int64

	embeddingLock *semaphore.Weighted
	visionLock    *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
	VisionClient    *openai.Client
}

// NewOpenAIClientParams defines the configuration for creating an
// OpenAIClient.
//
// EmbeddingModel is used for page embeddings, CompletionModel for
// free-text generation (answer synthesis, metadata), ExtractionModel for
// structured entity extraction, and VisionModel for page OCR and figure
// description.
type NewOpenAIClientParams struct {
	EmbeddingModel  string
	CompletionModel string
	ExtractionModel string
	VisionModel     string

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string
	VisionURL    string
	VisionKey    string

	RequestTimeoutMin     int64
	MaxConcurrentRequests int64
}

// NewOpenAIClient creates an OpenAIClient configured with the provided
// parameters.
//
// Example:
//
//	client := openai.NewOpenAIClient(openai.NewOpenAIClientParams{
//		EmbeddingModel:  "text-embedding-3-small",
//		CompletionModel: "gpt-4o-mini",
//		ExtractionModel: "gpt-4o-mini",
//		VisionModel:     "gpt-4o",
//		ChatKey:         os.Getenv("OPENAI_API_KEY"),
//		EmbeddingKey:    os.Getenv("OPENAI_API_KEY"),
//		VisionKey:       os.Getenv("OPENAI_API_KEY"),
//	})
func NewOpenAIClient(params NewOpenAIClientParams) *OpenAIClient {
	if params.RequestTimeoutMin <= 0 {
		params.RequestTimeoutMin = 5
	}
	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 4
	}

	return &OpenAIClient{
		embeddingModel:  params.EmbeddingModel,
		completionModel: params.CompletionModel,
		extractionModel: params.ExtractionModel,
		visionModel:     params.VisionModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,
		visionURL:    params.VisionURL,
		visionKey:    params.VisionKey,

		timeoutMin: params.RequestTimeoutMin,

		embeddingLock: semaphore.NewWeighted(params.MaxConcurrentRequests),
		visionLock:    semaphore.NewWeighted(params.MaxConcurrentRequests),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
		VisionClient:    newOpenaiClient(params.VisionURL, params.VisionKey),
	}
}

func newOpenaiClient(baseURL string, apiKey string) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
