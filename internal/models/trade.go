package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
	ActionHold TradeAction = "HOLD"
)

// Trade is an immutable entry of the trade log.
type Trade struct {
	ID       string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	Ticker   string           `gorm:"type:varchar(20);not null;index" json:"ticker"`
	Action   TradeAction      `gorm:"type:varchar(10);not null" json:"action"`
	Quantity int              `gorm:"not null" json:"quantity"`
	Price    decimal.Decimal  `gorm:"type:numeric(20,6);not null" json:"price"`
	Strategy string           `gorm:"type:varchar(100);not null" json:"strategy"`
	PnL      *decimal.Decimal `gorm:"column:pnl;type:numeric(20,6)" json:"pnl,omitempty"`
	// Votes records the tallies that produced the trade.
	Votes     datatypes.JSONMap `gorm:"type:jsonb" json:"votes,omitempty"`
	Timestamp time.Time         `gorm:"type:timestamptz;not null;index" json:"timestamp"`
}

func (Trade) TableName() string {
	return "trades"
}
