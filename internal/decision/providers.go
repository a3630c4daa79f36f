package decision

import (
	"context"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"go.uber.org/zap"

	"tradingarena/internal/config"
	"tradingarena/internal/models"
)

// buildChatModel is swapped in tests.
var buildChatModel = newChatModel

// NewChatModels builds one chat model per agent whose API key variable is set.
// DeepSeek uses its native client; the others speak the OpenAI protocol
// against their own base URL. An agent whose model cannot be built is left
// out and runs on local synthesis.
func NewChatModels(ctx context.Context, cfg config.AgentsConfig, logger *zap.Logger) map[models.Agent]ChatModel {
	out := make(map[models.Agent]ChatModel, len(models.AllAgents))
	for _, agent := range models.AllAgents {
		rc := responderConfig(cfg, agent)
		key := strings.TrimSpace(os.Getenv(rc.APIKeyEnv))
		if key == "" {
			if logger != nil {
				logger.Info("agent running on local synthesis",
					zap.String("agent", string(agent)), zap.String("key_env", rc.APIKeyEnv))
			}
			continue
		}
		cm, err := buildChatModel(ctx, agent, rc, key)
		if err != nil {
			if logger != nil {
				logger.Warn("agent model init failed, running on local synthesis",
					zap.String("agent", string(agent)), zap.String("model", rc.Model), zap.Error(err))
			}
			continue
		}
		out[agent] = cm
	}
	return out
}

func newChatModel(ctx context.Context, agent models.Agent, rc config.ResponderConfig, key string) (ChatModel, error) {
	if agent == models.AgentDeepSeek {
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    key,
			Model:     rc.Model,
			MaxTokens: rc.MaxTokens,
			BaseURL:   rc.BaseURL,
		})
	}
	oc := &openai.ChatModelConfig{
		BaseURL: rc.BaseURL,
		APIKey:  key,
		Model:   rc.Model,
	}
	if rc.MaxTokens > 0 {
		maxTokens := rc.MaxTokens
		oc.MaxTokens = &maxTokens
	}
	return openai.NewChatModel(ctx, oc)
}

func responderConfig(cfg config.AgentsConfig, agent models.Agent) config.ResponderConfig {
	switch agent {
	case models.AgentGemini:
		return cfg.Gemini
	case models.AgentGrok:
		return cfg.Grok
	case models.AgentDeepSeek:
		return cfg.DeepSeek
	default:
		return cfg.ChatGPT
	}
}
