package models

type PromptKind string

const (
	PromptSelectAsset    PromptKind = "select_asset"
	PromptSelectStrategy PromptKind = "select_strategy"
	PromptCritique       PromptKind = "critique"
)

const (
	SourceExternal = "external"
	SourceFallback = "fallback"
)

// Proposal is what a decision source answers with. Candidate is a ticker for
// PromptSelectAsset, a strategy name for PromptSelectStrategy and empty for
// PromptCritique.
type Proposal struct {
	Agent         Agent
	Kind          PromptKind
	Candidate     string
	Justification string
	Source        string
}
