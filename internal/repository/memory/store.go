package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradingarena/internal/models"
	"tradingarena/internal/repository"
)

// Store keeps every record in process memory. All methods are safe for
// concurrent use and every write replaces whole records under one lock.
type Store struct {
	mu      sync.RWMutex
	weights map[models.Agent]models.AgentWeight
	state   models.CycleState
	debate  []models.DebateMessage
	trades  []models.Trade
}

var _ repository.Repository = (*Store)(nil)

func New() *Store {
	s := &Store{
		weights: map[models.Agent]models.AgentWeight{},
		state:   models.InitialCycleState(),
	}
	now := time.Now().UTC()
	for i, w := range models.DefaultAgentWeights() {
		w.ID = uint64(i + 1)
		w.UpdatedAt = now
		s.weights[w.Agent] = w
	}
	return s
}

func (s *Store) GetAgentWeights(ctx context.Context) ([]models.AgentWeight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AgentWeight, 0, len(s.weights))
	for _, a := range models.AllAgents {
		if w, ok := s.weights[a]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) GetAgentWeight(ctx context.Context, agent models.Agent) (*models.AgentWeight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.weights[agent]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func (s *Store) UpdateAgentWeight(ctx context.Context, agent models.Agent, delta models.WeightDelta) (*models.AgentWeight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.weights[agent]
	if !ok {
		return nil, repository.ErrNotFound
	}
	w.SelectionWeight += delta.Selection
	w.StrategyWeight += delta.Strategy
	w.ExecutionWeight += delta.Execution
	w.UpdatedAt = time.Now().UTC()
	s.weights[agent] = w
	return &w, nil
}

func (s *Store) SetAgentWeight(ctx context.Context, agent models.Agent, patch models.WeightPatch) (*models.AgentWeight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.weights[agent]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.SelectionWeight != nil {
		w.SelectionWeight = *patch.SelectionWeight
	}
	if patch.StrategyWeight != nil {
		w.StrategyWeight = *patch.StrategyWeight
	}
	if patch.ExecutionWeight != nil {
		w.ExecutionWeight = *patch.ExecutionWeight
	}
	w.UpdatedAt = time.Now().UTC()
	s.weights[agent] = w
	return &w, nil
}

func (s *Store) GetCycleState(ctx context.Context) (models.CycleState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

func (s *Store) UpdateCycleState(ctx context.Context, patch models.CycleStatePatch) (models.CycleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.state.Apply(patch)
	s.state.UpdatedAt = time.Now().UTC()
	return s.state.Clone(), nil
}

func (s *Store) CreateDebateMessage(ctx context.Context, msg models.DebateMessage) (models.DebateMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	s.debate = append(s.debate, msg)
	s.mu.Unlock()
	return msg, nil
}

func (s *Store) ListDebateMessages(ctx context.Context) ([]models.DebateMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DebateMessage, len(s.debate))
	copy(out, s.debate)
	return out, nil
}

func (s *Store) ClearDebateMessages(ctx context.Context) error {
	s.mu.Lock()
	s.debate = nil
	s.mu.Unlock()
	return nil
}

func (s *Store) CreateTrade(ctx context.Context, trade models.Trade) (models.Trade, error) {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	s.trades = append(s.trades, trade)
	s.mu.Unlock()
	return trade, nil
}

func (s *Store) ListTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.trades)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Trade, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.trades[i])
	}
	return out, nil
}
