package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	openai "github.com/sashabaranov/go-openai"

	"github.com/wolfman30/estate-crm/internal/assistant"
	appconfig "github.com/wolfman30/estate-crm/internal/config"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

// BuildProviders returns the configured AI providers in AI_PROVIDER_ORDER,
// skipping any without credentials. The returned func releases clients.
func BuildProviders(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) ([]assistant.Provider, func()) {
	if logger == nil {
		logger = logging.Default()
	}
	var (
		providers []assistant.Provider
		closers   []func()
	)
	for _, name := range cfg.AIProviderOrder {
		switch strings.ToLower(name) {
		case "bedrock":
			if awsCfg == nil || cfg.BedrockModelID == "" {
				logger.Info("bedrock provider skipped", "reason", "no model or aws config")
				continue
			}
			providers = append(providers, assistant.NewBedrockProvider(
				bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID, int32(cfg.AIMaxTokens)))
		case "gemini":
			if cfg.GeminiAPIKey == "" {
				logger.Info("gemini provider skipped", "reason", "no api key")
				continue
			}
			p, err := assistant.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
			if err != nil {
				logger.Warn("gemini provider unavailable", "error", err)
				continue
			}
			providers = append(providers, p)
			closers = append(closers, func() { _ = p.Close() })
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				logger.Info("openai provider skipped", "reason", "no api key")
				continue
			}
			oc := openai.DefaultConfig(cfg.OpenAIAPIKey)
			if cfg.OpenAIBaseURL != "" {
				oc.BaseURL = cfg.OpenAIBaseURL
			}
			providers = append(providers, assistant.NewOpenAIProvider(openai.NewClientWithConfig(oc), cfg.OpenAIModel))
		default:
			logger.Warn("unknown ai provider", "provider", name)
		}
	}
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	logger.Info("ai providers configured", "order", names)
	return providers, func() {
		for _, c := range closers {
			c()
		}
	}
}
