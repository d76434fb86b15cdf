package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// DefaultOpenAIEmbeddingModel is used when an OpenAI embedder has no model set.
const DefaultOpenAIEmbeddingModel = "text-embedding-3-small"

// ErrNoEmbeddings is returned by NewEmbedder for providers without an embedding API.
var ErrNoEmbeddings = errors.New("provider does not offer embeddings")

// Config holds LLM client configuration.
type Config struct {
	Provider  string // "openai", "anthropic" or "gemini"
	APIKey    string // Required: API key for the provider
	BaseURL   string // Optional: custom API endpoint
	Model     string
	MaxTokens int
}

// Generator turns a prompt into a text completion.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Model() string
}

// Embedder maps text to a fixed-length vector. Name identifies the
// provider and model so stored vectors can be checked for compatibility.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

type Request struct {
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic
	JSON         bool     // ask the provider for a bare JSON object where supported
}

type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// NewGenerator selects the provider named by cfg.Provider. Defaults to Gemini.
func NewGenerator(ctx context.Context, cfg Config) (Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	switch providerOrDefault(cfg.Provider) {
	case ProviderGemini:
		return newGeminiClient(ctx, cfg)
	case ProviderOpenAI:
		return newOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return newAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// NewEmbedder selects the embedding provider named by cfg.Provider. Defaults to Gemini.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	switch providerOrDefault(cfg.Provider) {
	case ProviderGemini:
		return newGeminiClient(ctx, cfg)
	case ProviderOpenAI:
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIEmbeddingModel
		}
		return newOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return nil, fmt.Errorf("%s: %w", ProviderAnthropic, ErrNoEmbeddings)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

func providerOrDefault(p string) string {
	if p == "" {
		return ProviderGemini
	}
	return p
}

// GenerateSchema reflects a JSON schema for T, inlining all definitions.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

func maxTokensOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}
