package models

import "time"

type MessageType string

const (
	MessageProposal MessageType = "proposal"
	MessageCritique MessageType = "critique"
	MessageVote     MessageType = "vote"
)

// DebateMessage is an append-only entry of the current cycle's debate log.
type DebateMessage struct {
	ID          string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	Agent       Agent       `gorm:"type:varchar(20);not null;index" json:"agentType"`
	Message     string      `gorm:"type:text;not null" json:"message"`
	MessageType MessageType `gorm:"type:varchar(20);not null" json:"messageType"`
	Ticker      *string     `gorm:"type:varchar(20)" json:"ticker,omitempty"`
	Strategy    *string     `gorm:"type:varchar(100)" json:"strategy,omitempty"`
	Timestamp   time.Time   `gorm:"type:timestamptz;not null;index" json:"timestamp"`
}

func (DebateMessage) TableName() string {
	return "debate_messages"
}
