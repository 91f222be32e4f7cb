package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/logging"
)

const (
	// EnvMode selects the model mode.
	EnvMode = "EDITH_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// FactoryConfig selects and configures a provider.
type FactoryConfig struct {
	Provider  string // openai, litellm, deepseek or gemini
	Model     string
	BaseURL   string
	APIKey    string
	ProjectID string
	Location  string
	Mock      bool
}

// NewModel creates a model for cfg. Mock mode (cfg.Mock or EDITH_MODE=MOCK)
// returns a MockModel answering with DemoFallback.
func NewModel(ctx context.Context, cfg FactoryConfig, logger *zap.Logger) (Model, error) {
	logger = logging.OrNop(logger)
	if cfg.Mock || os.Getenv(EnvMode) == ModeMock {
		logger.Info("mock mode enabled, using mock model")
		m := NewMockModel()
		m.Fallback = DemoFallback
		return m, nil
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "openai", "litellm", "deepseek":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm api key or base url is required for provider %q", cfg.Provider)
		}
		logger.Info("using openai-compatible model", zap.String("model", cfg.Model), zap.String("base_url", cfg.BaseURL))
		return NewOpenAIModel(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}), nil
	case "gemini":
		logger.Info("using gemini model", zap.String("model", cfg.Model))
		return NewGeminiModel(ctx, GeminiConfig{
			APIKey:    cfg.APIKey,
			ProjectID: cfg.ProjectID,
			Location:  cfg.Location,
			Model:     cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
