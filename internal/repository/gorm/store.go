package gormrepository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradingarena/internal/models"
	"tradingarena/internal/repository"
)

const cycleStateID = 1

type Store struct {
	db *gorm.DB
}

var _ repository.Repository = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Seed inserts the per-agent weight rows and the single cycle state row when
// they are missing. Existing rows are left alone so weights survive restarts.
func (s *Store) Seed(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		weights := models.DefaultAgentWeights()
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent"}},
			DoNothing: true,
		}).Create(&weights).Error; err != nil {
			return err
		}
		state := models.InitialCycleState()
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&state).Error
	})
}

func (s *Store) GetAgentWeights(ctx context.Context) ([]models.AgentWeight, error) {
	var items []models.AgentWeight
	if err := s.db.WithContext(ctx).
		Model(&models.AgentWeight{}).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetAgentWeight(ctx context.Context, agent models.Agent) (*models.AgentWeight, error) {
	return getAgentWeight(s.db.WithContext(ctx), agent)
}

func (s *Store) UpdateAgentWeight(ctx context.Context, agent models.Agent, delta models.WeightDelta) (*models.AgentWeight, error) {
	var out *models.AgentWeight
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AgentWeight{}).
			Where("agent = ?", agent).
			UpdateColumns(map[string]any{
				"selection_weight": gorm.Expr("selection_weight + ?", delta.Selection),
				"strategy_weight":  gorm.Expr("strategy_weight + ?", delta.Strategy),
				"execution_weight": gorm.Expr("execution_weight + ?", delta.Execution),
				"updated_at":       time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrNotFound
		}
		w, err := getAgentWeight(tx, agent)
		if err != nil {
			return err
		}
		out = w
		return nil
	})
	return out, err
}

func (s *Store) SetAgentWeight(ctx context.Context, agent models.Agent, patch models.WeightPatch) (*models.AgentWeight, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.SelectionWeight != nil {
		updates["selection_weight"] = *patch.SelectionWeight
	}
	if patch.StrategyWeight != nil {
		updates["strategy_weight"] = *patch.StrategyWeight
	}
	if patch.ExecutionWeight != nil {
		updates["execution_weight"] = *patch.ExecutionWeight
	}
	var out *models.AgentWeight
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AgentWeight{}).Where("agent = ?", agent).UpdateColumns(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrNotFound
		}
		w, err := getAgentWeight(tx, agent)
		if err != nil {
			return err
		}
		out = w
		return nil
	})
	return out, err
}

func getAgentWeight(db *gorm.DB, agent models.Agent) (*models.AgentWeight, error) {
	var item models.AgentWeight
	err := db.Model(&models.AgentWeight{}).Where("agent = ?", agent).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetCycleState(ctx context.Context) (models.CycleState, error) {
	return getCycleState(s.db.WithContext(ctx))
}

func (s *Store) UpdateCycleState(ctx context.Context, patch models.CycleStatePatch) (models.CycleState, error) {
	var out models.CycleState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := getCycleState(tx.Clauses(clause.Locking{Strength: "UPDATE"}))
		if err != nil {
			return err
		}
		next := current.Apply(patch)
		next.ID = cycleStateID
		next.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func getCycleState(db *gorm.DB) (models.CycleState, error) {
	var item models.CycleState
	err := db.Model(&models.CycleState{}).Where("id = ?", cycleStateID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.InitialCycleState(), nil
	}
	if err != nil {
		return models.CycleState{}, err
	}
	if item.StockVotes == nil {
		item.StockVotes = map[string]float64{}
	}
	if item.StrategyVotes == nil {
		item.StrategyVotes = map[string]float64{}
	}
	return item, nil
}

func (s *Store) CreateDebateMessage(ctx context.Context, msg models.DebateMessage) (models.DebateMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return models.DebateMessage{}, err
	}
	return msg, nil
}

func (s *Store) ListDebateMessages(ctx context.Context) ([]models.DebateMessage, error) {
	var items []models.DebateMessage
	if err := s.db.WithContext(ctx).
		Model(&models.DebateMessage{}).
		Order("timestamp asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ClearDebateMessages(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.DebateMessage{}).Error
}

func (s *Store) CreateTrade(ctx context.Context, trade models.Trade) (models.Trade, error) {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&trade).Error; err != nil {
		return models.Trade{}, err
	}
	return trade, nil
}

func (s *Store) ListTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	query := s.db.WithContext(ctx).Model(&models.Trade{}).Order("timestamp desc")
	if limit > 0 {
		query = query.Limit(normalizeLimit(limit, 50))
	}
	var items []models.Trade
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}
