package agents

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/issueflow/internal/retry"
)

// Provider identifies a model backend.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderYandexGPT  Provider = "yandexgpt"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	yandexGPTBaseURL  = "https://llm.api.cloud.yandex.net/v1"
)

// ModelConfig carries generation parameters applied to every call.
type ModelConfig struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Model       string  `json:"model"`
}

// ConnectorOptions configures a Connector. BaseURL overrides the
// provider's default endpoint, which is mainly useful in tests.
type ConnectorOptions struct {
	Provider     Provider
	APIKey       string
	BaseURL      string
	YandexFolder string
	ModelConfig  ModelConfig
}

// Connector wraps a langchaingo model behind a provider-agnostic Call.
type Connector struct {
	provider Provider
	llm      llms.Model
	options  ConnectorOptions
	retry    retry.Config
}

// NewConnector creates a connector for the configured provider.
func NewConnector(ctx context.Context, options ConnectorOptions) (*Connector, error) {
	var (
		model llms.Model
		err   error
	)
	switch options.Provider {
	case ProviderOpenRouter:
		model, err = createOpenRouterModel(options)
	case ProviderYandexGPT:
		model, err = createYandexGPTModel(options)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s model: %w", options.Provider, err)
	}

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.ModelConfig.Model).
		Msg("Created model connector")

	return &Connector{
		provider: options.Provider,
		llm:      model,
		options:  options,
		retry:    retry.LLMConfig(),
	}, nil
}

func createOpenRouterModel(options ConnectorOptions) (llms.Model, error) {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	opts := []openai.Option{
		openai.WithModel(options.ModelConfig.Model),
		openai.WithToken(options.APIKey),
		openai.WithBaseURL(baseURL),
	}
	return openai.New(opts...)
}

// createYandexGPTModel uses the OpenAI-compatible endpoint; models are
// addressed as gpt://<folder>/<model>.
func createYandexGPTModel(options ConnectorOptions) (llms.Model, error) {
	if options.YandexFolder == "" {
		return nil, fmt.Errorf("yandexgpt provider requires a cloud folder id")
	}
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = yandexGPTBaseURL
	}
	opts := []openai.Option{
		openai.WithModel(fmt.Sprintf("gpt://%s/%s", options.YandexFolder, options.ModelConfig.Model)),
		openai.WithToken(options.APIKey),
		openai.WithBaseURL(baseURL),
	}
	return openai.New(opts...)
}

// Call sends input to the model and returns its text response. Transient
// provider failures are retried with backoff.
func (c *Connector) Call(ctx context.Context, input string, options ...llms.CallOption) (string, error) {
	callOptions := []llms.CallOption{
		llms.WithTemperature(c.options.ModelConfig.Temperature),
	}
	if c.options.ModelConfig.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(c.options.ModelConfig.MaxTokens))
	}
	callOptions = append(callOptions, options...)

	log.Debug().
		Str("provider", string(c.provider)).
		Str("model", c.options.ModelConfig.Model).
		Int("input_chars", len(input)).
		Msg("Calling model")

	var response string
	err := retry.Do(ctx, c.retry, func() error {
		result, callErr := llms.GenerateFromSinglePrompt(ctx, c.llm, input, callOptions...)
		if callErr != nil {
			return callErr
		}
		response = result
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s call failed: %w", c.provider, err)
	}
	return response, nil
}

// GetProvider returns the backend provider tag.
func (c *Connector) GetProvider() Provider {
	return c.provider
}

// GetModel returns the configured model identifier.
func (c *Connector) GetModel() string {
	return c.options.ModelConfig.Model
}
