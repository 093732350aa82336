package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"bionexus/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// OllamaClient implements the ai.Client interface using locally-hosted
// Ollama models for completion, extraction, embedding, and vision tasks.
type OllamaClient struct {
	embeddingModel  string
	completionModel string
	extractionModel string
	visionModel     string

	timeoutMin int64

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client

	Client *api.Client
}

// NewOllamaClientParams contains configuration options for creating an
// OllamaClient.
type NewOllamaClientParams struct {
	EmbeddingModel  string
	CompletionModel string
	ExtractionModel string
	VisionModel     string

	BaseURL string
	ApiKey  string

	RequestTimeoutMin     int64
	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		// don't overwrite if already set
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewOllamaClient creates an Ollama-backed AI client. It connects to the
// server at BaseURL (or the Ollama default if empty) and uses the
// configured models for the different pipeline operations.
func NewOllamaClient(params NewOllamaClientParams) (*OllamaClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	if params.RequestTimeoutMin <= 0 {
		params.RequestTimeoutMin = 5
	}
	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 2
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.ApiKey,
			},
			rt: http.DefaultTransport,
		},
	}

	cli := api.NewClient(u, httpClient)

	return &OllamaClient{
		embeddingModel:  params.EmbeddingModel,
		completionModel: params.CompletionModel,
		extractionModel: params.ExtractionModel,
		visionModel:     params.VisionModel,

		timeoutMin: params.RequestTimeoutMin,

		reqLock: semaphore.NewWeighted(params.MaxConcurrentRequests),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		baseURL:    u,
		apiKey:     params.ApiKey,
		httpClient: httpClient,

		Client: cli,
	}, nil
}
