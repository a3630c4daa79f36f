package repository

import (
	"context"
	"errors"

	"tradingarena/internal/models"
)

// ErrNotFound is returned when a keyed record (e.g. an agent's weights) does not exist.
var ErrNotFound = errors.New("not found")

type WeightRepository interface {
	GetAgentWeights(ctx context.Context) ([]models.AgentWeight, error)
	GetAgentWeight(ctx context.Context, agent models.Agent) (*models.AgentWeight, error)
	// UpdateAgentWeight adds delta to the agent's weights in one step.
	UpdateAgentWeight(ctx context.Context, agent models.Agent, delta models.WeightDelta) (*models.AgentWeight, error)
	// SetAgentWeight overwrites the weights named by patch.
	SetAgentWeight(ctx context.Context, agent models.Agent, patch models.WeightPatch) (*models.AgentWeight, error)
}

type CycleRepository interface {
	GetCycleState(ctx context.Context) (models.CycleState, error)
	// UpdateCycleState merges patch into the stored state and returns the result.
	UpdateCycleState(ctx context.Context, patch models.CycleStatePatch) (models.CycleState, error)
}

type DebateRepository interface {
	CreateDebateMessage(ctx context.Context, msg models.DebateMessage) (models.DebateMessage, error)
	ListDebateMessages(ctx context.Context) ([]models.DebateMessage, error)
	ClearDebateMessages(ctx context.Context) error
}

type TradeRepository interface {
	CreateTrade(ctx context.Context, trade models.Trade) (models.Trade, error)
	// ListTrades returns the newest trades first; limit <= 0 means all.
	ListTrades(ctx context.Context, limit int) ([]models.Trade, error)
}

// Repository is everything the cycle engine and its handlers persist.
type Repository interface {
	WeightRepository
	CycleRepository
	DebateRepository
	TradeRepository
}
