// Package weights nudges agent influence after a cycle based on whether each
// agent backed the winning ticker.
package weights

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tradingarena/internal/config"
	"tradingarena/internal/models"
	"tradingarena/internal/repository"
)

const (
	WinnerSelectionDelta = 0.05
	WinnerStrategyDelta  = 0.10
	LoserSelectionDelta  = -0.02
	LoserStrategyDelta   = -0.05
)

// Ballot is the stock-selection vote an agent cast in a cycle.
type Ballot struct {
	Candidate string
	Weight    float64
}

// Winners classifies agents: an agent wins when its own ballot named the
// winning ticker with positive weight.
func Winners(ballots map[models.Agent]Ballot, winningTicker string) map[models.Agent]bool {
	out := make(map[models.Agent]bool, len(ballots))
	for agent, b := range ballots {
		out[agent] = b.Candidate == winningTicker && b.Weight > 0
	}
	return out
}

// DeltaFor is the adjustment for one agent. Execution weight never moves.
func DeltaFor(winner bool) models.WeightDelta {
	if winner {
		return models.WeightDelta{Selection: WinnerSelectionDelta, Strategy: WinnerStrategyDelta}
	}
	return models.WeightDelta{Selection: LoserSelectionDelta, Strategy: LoserStrategyDelta}
}

type Adapter struct {
	Repo   repository.WeightRepository
	Logger *zap.Logger
	Policy config.WeightsConfig
}

// Apply adjusts every stored agent. Agents missing from winners count as losers.
func (a *Adapter) Apply(ctx context.Context, winners map[models.Agent]bool) ([]models.AgentWeight, error) {
	if a == nil || a.Repo == nil {
		return nil, nil
	}
	current, err := a.Repo.GetAgentWeights(ctx)
	if err != nil {
		return nil, fmt.Errorf("load agent weights: %w", err)
	}
	out := make([]models.AgentWeight, 0, len(current))
	for _, w := range current {
		updated, err := a.Repo.UpdateAgentWeight(ctx, w.Agent, DeltaFor(winners[w.Agent]))
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("update weight for %s: %w", w.Agent, err)
		}
		updated, err = a.enforceFloor(ctx, updated)
		if err != nil {
			return out, err
		}
		if a.Logger != nil && (updated.SelectionWeight < 0 || updated.StrategyWeight < 0) {
			a.Logger.Warn("agent weight went negative",
				zap.String("agent", string(updated.Agent)),
				zap.Float64("selection_weight", updated.SelectionWeight),
				zap.Float64("strategy_weight", updated.StrategyWeight),
			)
		}
		out = append(out, *updated)
	}
	return out, nil
}

func (a *Adapter) enforceFloor(ctx context.Context, w *models.AgentWeight) (*models.AgentWeight, error) {
	if !a.Policy.FloorEnabled {
		return w, nil
	}
	var patch models.WeightPatch
	if w.SelectionWeight < a.Policy.Floor {
		patch.SelectionWeight = &a.Policy.Floor
	}
	if w.StrategyWeight < a.Policy.Floor {
		patch.StrategyWeight = &a.Policy.Floor
	}
	if patch.Empty() {
		return w, nil
	}
	clamped, err := a.Repo.SetAgentWeight(ctx, w.Agent, patch)
	if err != nil {
		return w, fmt.Errorf("clamp weight for %s: %w", w.Agent, err)
	}
	return clamped, nil
}
