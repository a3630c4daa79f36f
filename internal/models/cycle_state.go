package models

import "time"

type CycleStatus string

const (
	CycleIdle           CycleStatus = "idle"
	CycleStockSelection CycleStatus = "stock_selection"
	CycleStrategyDebate CycleStatus = "strategy_debate"
	CycleTrading        CycleStatus = "trading"
	CycleStopped        CycleStatus = "stopped"
)

// Active reports whether a cycle is somewhere between start and trading.
func (s CycleStatus) Active() bool {
	switch s {
	case CycleStockSelection, CycleStrategyDebate, CycleTrading:
		return true
	default:
		return false
	}
}

// CycleState is the single process-wide record of cycle progress.
type CycleState struct {
	ID               uint64             `gorm:"primaryKey" json:"-"`
	Status           CycleStatus        `gorm:"type:varchar(20);not null" json:"status"`
	SelectedTicker   string             `gorm:"type:varchar(20)" json:"selectedTicker,omitempty"`
	SelectedStrategy string             `gorm:"type:varchar(100)" json:"selectedStrategy,omitempty"`
	StockVotes       map[string]float64 `gorm:"serializer:json;type:jsonb" json:"stockVotes"`
	StrategyVotes    map[string]float64 `gorm:"serializer:json;type:jsonb" json:"strategyVotes"`
	UpdatedAt        time.Time          `gorm:"type:timestamptz;autoUpdateTime" json:"updatedAt"`
}

func (CycleState) TableName() string {
	return "cycle_states"
}

// Clone returns a copy that shares no maps with s.
func (s CycleState) Clone() CycleState {
	out := s
	out.StockVotes = copyVotes(s.StockVotes)
	out.StrategyVotes = copyVotes(s.StrategyVotes)
	return out
}

// Apply merges a patch into s and returns the result. s is left untouched.
func (s CycleState) Apply(p CycleStatePatch) CycleState {
	out := s.Clone()
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.SelectedTicker != nil {
		out.SelectedTicker = *p.SelectedTicker
	}
	if p.SelectedStrategy != nil {
		out.SelectedStrategy = *p.SelectedStrategy
	}
	if p.StockVotes != nil {
		out.StockVotes = copyVotes(p.StockVotes)
	}
	if p.StrategyVotes != nil {
		out.StrategyVotes = copyVotes(p.StrategyVotes)
	}
	return out
}

// CycleStatePatch is a partial update. Nil fields are left unchanged; a
// pointer to "" clears a selection and an empty non-nil map resets a tally.
type CycleStatePatch struct {
	Status           *CycleStatus
	SelectedTicker   *string
	SelectedStrategy *string
	StockVotes       map[string]float64
	StrategyVotes    map[string]float64
}

// InitialCycleState is the state a fresh store starts with.
func InitialCycleState() CycleState {
	return CycleState{
		ID:            1,
		Status:        CycleIdle,
		StockVotes:    map[string]float64{},
		StrategyVotes: map[string]float64{},
	}
}

func copyVotes(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func StatusPtr(s CycleStatus) *CycleStatus { return &s }

func StrPtr(s string) *string { return &s }
