package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	JobStatusPending         = "pending"
	JobStatusExecuting       = "executing"
	JobStatusFilled          = "filled"
	JobStatusPartiallyFilled = "partially_filled"
	JobStatusFailed          = "failed"
	JobStatusSkipped         = "skipped"
	JobStatusCanceled        = "canceled"
)

const (
	JobSideBuy  = "buy"
	JobSideSell = "sell"
)

// Reason codes attached to skipped/failed jobs so an operator can tell
// apart a webhook lock from an empty book or an exchange rejection.
const (
	ReasonNoEligiblePositions = "no_eligible_positions"
	ReasonWebhookLocked       = "webhook_locked"
	ReasonNoQuantity          = "no_quantity"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonExchangeRejected    = "exchange_rejected"
	ReasonRetriesExhausted    = "retries_exhausted"
	ReasonPartialFill         = "partial_fill"
)

// TradeJob is one queued exchange-order intent derived from a signal.
// It only ever moves forward: pending → executing → one terminal status.
type TradeJob struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	EventID   uint `gorm:"index" json:"event_id"`
	AccountID uint `gorm:"not null;index" json:"account_id"`

	Symbol    string `gorm:"size:40;not null;index" json:"symbol"`
	Side      string `gorm:"size:10;not null" json:"side"`
	TradeMode string `gorm:"size:20;not null" json:"trade_mode"`

	Quantity    decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"quantity"`
	ExecutedQty decimal.Decimal `gorm:"type:numeric(30,10)" json:"executed_qty"`
	AvgPrice    decimal.Decimal `gorm:"type:numeric(30,10)" json:"avg_price"`

	// ClientOrderID is sent to the exchange so a replayed order can be
	// recognized on their side as well.
	ClientOrderID string `gorm:"size:64;uniqueIndex" json:"client_order_id"`
	ExchangeRef   string `gorm:"size:128" json:"exchange_ref"`

	Status        string `gorm:"size:20;not null;default:pending;index" json:"status"`
	ReasonCode    string `gorm:"size:40" json:"reason_code,omitempty"`
	ReasonMessage string `gorm:"size:512" json:"reason_message,omitempty"`

	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (TradeJob) TableName() string {
	return "trade_jobs"
}

// Terminal reports whether the job already reached a final status.
func (j *TradeJob) Terminal() bool {
	switch j.Status {
	case JobStatusFilled, JobStatusPartiallyFilled, JobStatusFailed, JobStatusSkipped, JobStatusCanceled:
		return true
	}
	return false
}
