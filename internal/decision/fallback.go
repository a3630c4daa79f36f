package decision

import (
	"time"

	"tradingarena/internal/models"
)

var fallbackTickers = []string{"NVDA", "AAPL", "MSFT", "GOOGL", "AMZN", "META", "TSLA"}

var fallbackJustifications = []string{
	"Strong momentum with increasing institutional buying",
	"Undervalued relative to sector peers with upcoming catalyst",
	"Technical breakout forming on daily chart with volume",
	"Positive earnings revision trend and analyst upgrades",
}

type strategyTemplate struct {
	name        string
	description string
}

var fallbackStrategies = []strategyTemplate{
	{"Momentum Breakout", "Buy on price breakout above resistance with volume confirmation"},
	{"Mean Reversion", "Enter when RSI shows oversold conditions, exit at mean"},
	{"Scalping", "Quick 5-minute trades capturing small price movements"},
	{"Swing Trading", "Hold positions for 2-5 days following trend momentum"},
}

const fallbackCritique = "Analysis complete"

// bias is the agent's fixed rotation offset into the fallback lists.
func bias(agent models.Agent) int {
	if i := agent.Index(); i >= 0 {
		return i
	}
	return 0
}

// Synthesize builds a structurally valid proposal without any external call.
// The pick rotates with the wall clock and is offset per agent.
func Synthesize(agent models.Agent, kind models.PromptKind, now time.Time) models.Proposal {
	b := bias(agent)
	p := models.Proposal{Agent: agent, Kind: kind, Source: models.SourceFallback}
	switch kind {
	case models.PromptSelectAsset:
		p.Candidate = fallbackTickers[rotate(b, now, len(fallbackTickers))]
		p.Justification = fallbackJustifications[b%len(fallbackJustifications)]
	case models.PromptSelectStrategy:
		s := fallbackStrategies[rotate(b, now, len(fallbackStrategies))]
		p.Candidate = s.name
		p.Justification = s.description
	default:
		p.Justification = fallbackCritique
	}
	return p
}

func rotate(offset int, now time.Time, n int) int {
	i := (int64(offset) + now.UnixMilli()) % int64(n)
	if i < 0 {
		i += int64(n)
	}
	return int(i)
}
