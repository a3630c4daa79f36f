package models

import "time"

// AgentWeight holds an agent's influence over each kind of vote.
// ExecutionWeight is carried but not scored.
type AgentWeight struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	Agent           Agent     `gorm:"type:varchar(20);uniqueIndex;not null" json:"agentType"`
	SelectionWeight float64   `gorm:"not null;default:1" json:"stockWeight"`
	StrategyWeight  float64   `gorm:"not null;default:1" json:"strategyWeight"`
	ExecutionWeight float64   `gorm:"not null;default:1" json:"tradingWeight"`
	UpdatedAt       time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updatedAt"`
}

func (AgentWeight) TableName() string {
	return "agent_weights"
}

// WeightDelta is added to the current weights of one agent.
type WeightDelta struct {
	Selection float64
	Strategy  float64
	Execution float64
}

// WeightPatch overwrites the non-nil weights of one agent.
type WeightPatch struct {
	SelectionWeight *float64 `json:"stockWeight"`
	StrategyWeight  *float64 `json:"strategyWeight"`
	ExecutionWeight *float64 `json:"tradingWeight"`
}

func (p WeightPatch) Empty() bool {
	return p.SelectionWeight == nil && p.StrategyWeight == nil && p.ExecutionWeight == nil
}

// DefaultAgentWeights returns the weights every agent starts a process with.
func DefaultAgentWeights() []AgentWeight {
	out := make([]AgentWeight, 0, len(AllAgents))
	for _, a := range AllAgents {
		out = append(out, AgentWeight{
			Agent:           a,
			SelectionWeight: 1.0,
			StrategyWeight:  1.0,
			ExecutionWeight: 1.0,
		})
	}
	return out
}
