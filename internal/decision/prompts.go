package decision

import "strings"

const (
	selectAssetPrompt = `You are a ruthless hedge fund trader. Propose ONE liquid stock ticker for the next short-term trade.
Choose from major stocks like AAPL, MSFT, GOOGL, AMZN, NVDA, META, TSLA, etc.
Provide a brief justification using current market conditions, technicals, or catalysts.
Respond in JSON format: { "ticker": "SYMBOL", "justification": "Your reasoning" }`

	selectStrategyPrompt = `You are a quantitative trading strategist. Propose a trading strategy for {TICKER}.
Choose from strategies like: momentum scalping, mean reversion, breakout trading, swing trading, etc.
Provide a brief description of how to execute it.
Respond in JSON format: { "strategy": "Strategy Name", "description": "How to execute" }`

	critiquePrompt = `You are a critical hedge fund analyst. Review this proposal and provide constructive criticism:
Proposal: {PROPOSAL}
Be concise but insightful. Point out risks or improvements.
Respond in JSON format: { "critique": "Your critique" }`
)

// Context carries what a prompt is conditioned on.
type Context struct {
	Ticker   string
	Proposal string
}

func renderSelectStrategy(ticker string) string {
	return strings.ReplaceAll(selectStrategyPrompt, "{TICKER}", ticker)
}

func renderCritique(proposal string) string {
	return strings.ReplaceAll(critiquePrompt, "{PROPOSAL}", proposal)
}
