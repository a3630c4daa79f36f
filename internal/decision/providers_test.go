package decision

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tradingarena/internal/config"
	"tradingarena/internal/models"
)

func TestNewChatModels_BuildFailureFallsBackToSynthesis(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-1")
	t.Setenv("TEST_GEMINI_KEY", "g-1")
	t.Setenv("TEST_GROK_KEY", "")

	prev := buildChatModel
	t.Cleanup(func() { buildChatModel = prev })
	buildChatModel = func(ctx context.Context, agent models.Agent, rc config.ResponderConfig, key string) (ChatModel, error) {
		if agent == models.AgentGemini {
			return nil, errors.New("bad base url")
		}
		return &fakeModel{content: `{"ticker":"AAPL"}`}, nil
	}

	core, logs := observer.New(zapcore.InfoLevel)
	got := NewChatModels(context.Background(), config.AgentsConfig{
		ChatGPT:  config.ResponderConfig{APIKeyEnv: "TEST_OPENAI_KEY"},
		Gemini:   config.ResponderConfig{APIKeyEnv: "TEST_GEMINI_KEY", Model: "gemini-2.5-flash"},
		Grok:     config.ResponderConfig{APIKeyEnv: "TEST_GROK_KEY"},
		DeepSeek: config.ResponderConfig{APIKeyEnv: "TEST_DEEPSEEK_KEY_UNSET"},
	}, zap.New(core))

	if len(got) != 1 || got[models.AgentChatGPT] == nil {
		t.Fatalf("models=%v want only chatgpt", got)
	}
	warns := logs.FilterMessage("agent model init failed, running on local synthesis").All()
	if len(warns) != 1 || warns[0].Level != zapcore.WarnLevel {
		t.Fatalf("warns=%v", warns)
	}
	if warns[0].ContextMap()["agent"] != string(models.AgentGemini) {
		t.Fatalf("warn agent=%v", warns[0].ContextMap()["agent"])
	}

	// The agent without a model still answers, from synthesis.
	src := NewSource(got, 0, nil)
	if p := src.Propose(context.Background(), models.AgentGemini, models.PromptSelectAsset, Context{}); p.Source != models.SourceFallback || p.Candidate == "" {
		t.Fatalf("gemini proposal=%+v", p)
	}
}
