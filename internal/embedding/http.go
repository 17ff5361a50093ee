package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the default embedding service endpoint.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultModel is the default remote embedding model.
	DefaultModel = "facenet-128"

	// DefaultDimensions is the expected output dimensions for DefaultModel.
	DefaultDimensions = 128

	// DefaultTimeout is the timeout for embedding requests.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default number of requests per second.
	DefaultRateLimit = 20.0

	apiPathModels = "/api/models"
	apiPathEmbed  = "/api/embed"
)

// HTTPProvider generates embeddings by posting images to an embedding service.
//
// Request:  POST /api/embed {"model": ..., "id": ..., "image": <base64>}
// Response: {"embedding": [...]}
type HTTPProvider struct {
	baseURL    string
	model      string
	dimensions int
	apiKey     string
	client     *http.Client
	limiter    *rate.Limiter
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithBaseURL sets the service base URL.
func WithBaseURL(url string) HTTPOption {
	return func(p *HTTPProvider) {
		p.baseURL = url
	}
}

// WithModel sets the embedding model.
func WithModel(model string) HTTPOption {
	return func(p *HTTPProvider) {
		p.model = model
	}
}

// WithDimensions sets the expected vector dimensions.
func WithDimensions(dims int) HTTPOption {
	return func(p *HTTPProvider) {
		p.dimensions = dims
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(p *HTTPProvider) {
		p.client.Timeout = timeout
	}
}

// WithAPIKey sets a bearer token sent with every request.
func WithAPIKey(key string) HTTPOption {
	return func(p *HTTPProvider) {
		p.apiKey = key
	}
}

// WithRateLimit caps requests per second. perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64) HTTPOption {
	return func(p *HTTPProvider) {
		if perSecond <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewHTTPProvider creates a new HTTP embedding provider.
func NewHTTPProvider(opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		dimensions: DefaultDimensions,
		client:     &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HTTPProvider) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return req, nil
}

// formatErrorBody reads and formats the response body for error messages.
func formatErrorBody(body io.Reader) string {
	respBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("(failed to read response body: %v)", err)
	}
	return string(respBody)
}

// Embed posts the image file to the service and returns its embedding.
func (p *HTTPProvider) Embed(ctx context.Context, in Input) (Embedding, error) {
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return Embedding{}, fmt.Errorf("reading image: %w", err)
	}

	body, err := json.Marshal(embedRequest{
		Model: p.model,
		ID:    in.ID,
		Image: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return Embedding{}, fmt.Errorf("marshaling request: %w", err)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return Embedding{}, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := p.newRequest(ctx, http.MethodPost, apiPathEmbed, bytes.NewReader(body))
	if err != nil {
		return Embedding{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Embedding{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Embedding{}, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, formatErrorBody(resp.Body))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Embedding{}, fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Embedding) != p.dimensions {
		return Embedding{}, fmt.Errorf("unexpected embedding dimensions: got %d, want %d", len(result.Embedding), p.dimensions)
	}

	return Embedding{Vector: result.Embedding}, nil
}

// ModelName returns the name of the embedding model.
func (p *HTTPProvider) ModelName() string {
	return p.model
}

// Dimensions returns the expected vector dimensions.
func (p *HTTPProvider) Dimensions() int {
	return p.dimensions
}

// IsAvailable checks that the service is reachable.
func (p *HTTPProvider) IsAvailable(ctx context.Context) error {
	resp, err := p.getModels(ctx)
	if err != nil {
		return fmt.Errorf("embedding service is not reachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// HasModel checks if the configured model is served.
func (p *HTTPProvider) HasModel(ctx context.Context) (bool, error) {
	resp, err := p.getModels(ctx)
	if err != nil {
		return false, fmt.Errorf("checking models: %w", err)
	}
	defer resp.Body.Close()

	var result modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}

	for _, m := range result.Models {
		if m.Name == p.model {
			return true, nil
		}
	}
	return false, nil
}

// getModels performs GET /api/models. The caller closes the response body.
func (p *HTTPProvider) getModels(ctx context.Context) (*http.Response, error) {
	req, err := p.newRequest(ctx, http.MethodGet, apiPathModels, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("embedding service returned status %d", resp.StatusCode)
	}

	return resp, nil
}

type embedRequest struct {
	Model string `json:"model"`
	ID    string `json:"id,omitempty"`
	Image string `json:"image"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type modelsResponse struct {
	Models []serviceModel `json:"models"`
}

type serviceModel struct {
	Name string `json:"name"`
}
