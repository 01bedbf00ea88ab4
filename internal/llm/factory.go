package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"finadvisor/internal/config"
)

const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
	ProviderYandex = "yandex"
)

// Factory creates provider clients from configured credentials.
type Factory struct {
	OpenaiAPIKey       string
	OpenaiBaseURL      string
	OpenaiModel        string
	OpenRouterReferrer string
	OpenRouterTitle    string
	AnthropicAPIKey    string
	AnthropicBaseURL   string
	AnthropicModel     string
	GeminiAPIKey       string
	GeminiModel        string
	YandexOAuthToken   string
	YandexFolderID     string
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		OpenaiAPIKey:       cfg.OpenAIAPIKey,
		OpenaiBaseURL:      cfg.OpenAIBaseURL,
		OpenaiModel:        cfg.OpenAIModel,
		OpenRouterReferrer: cfg.OpenRouterReferrer,
		OpenRouterTitle:    cfg.OpenRouterTitle,
		AnthropicAPIKey:    cfg.AnthropicAPIKey,
		AnthropicBaseURL:   cfg.AnthropicBaseURL,
		AnthropicModel:     cfg.AnthropicModel,
		GeminiAPIKey:       cfg.GeminiAPIKey,
		GeminiModel:        cfg.GeminiModel,
		YandexOAuthToken:   cfg.YandexOAuthToken,
		YandexFolderID:     cfg.YandexFolderID,
	}
}

// HasCredentials reports whether the provider is configured at all.
func (f *Factory) HasCredentials(provider string) bool {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return f.OpenaiAPIKey != ""
	case ProviderClaude:
		return f.AnthropicAPIKey != ""
	case ProviderGemini:
		return f.GeminiAPIKey != ""
	case ProviderYandex:
		return f.YandexOAuthToken != "" && f.YandexFolderID != ""
	}
	return false
}

func (f *Factory) CreateClient(ctx context.Context, provider string) (Client, error) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return NewOpenAI(f.OpenaiAPIKey, f.OpenaiBaseURL, f.OpenaiModel, f.OpenRouterReferrer, f.OpenRouterTitle), nil
	case ProviderClaude:
		return NewClaude(f.AnthropicAPIKey, f.AnthropicBaseURL, f.AnthropicModel), nil
	case ProviderGemini:
		return NewGemini(ctx, f.GeminiAPIKey, f.GeminiModel)
	case ProviderYandex:
		return NewYandex(f.YandexOAuthToken, f.YandexFolderID)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}

// RegisterAll registers every known provider, available only when its
// credentials are present and its client could be built.
func (f *Factory) RegisterAll(ctx context.Context, r *Router, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for i, name := range FallbackOrder {
		if !f.HasCredentials(name) {
			r.Register(name, nil, i+1, false)
			logger.Info("provider not configured", zap.String("provider", name))
			continue
		}
		client, err := f.CreateClient(ctx, name)
		if err != nil {
			r.Register(name, nil, i+1, false)
			logger.Warn("provider unavailable", zap.String("provider", name), zap.Error(err))
			continue
		}
		r.Register(name, client, i+1, true)
		logger.Info("provider registered", zap.String("provider", name))
	}
}
