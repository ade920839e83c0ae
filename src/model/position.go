package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

const (
	CloseReasonWebhookSell = "webhook_sell"
	CloseReasonManualSell  = "manual_sell"
	CloseReasonResidue     = "residue_moved"
)

const (
	FillSideBuy  = "buy"
	FillSideSell = "sell"
)

// SellOrigin tells the position ledger where a sell came from, so
// positions locked against webhook sells can be excluded from matching.
type SellOrigin string

const (
	SellOriginWebhook SellOrigin = "webhook"
	SellOriginManual  SellOrigin = "manual"
)

// TradePosition is one open-or-closed long holding. Opened by a buy
// fill, reduced by sell fills in FIFO order, never deleted.
//
// Invariant: 0 <= qty_remaining <= qty_total, closed iff qty_remaining == 0.
type TradePosition struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	AccountID uint `gorm:"not null;index:idx_position_book" json:"account_id"`

	Symbol    string `gorm:"size:40;not null;index:idx_position_book" json:"symbol"`
	TradeMode string `gorm:"size:20;not null;index:idx_position_book" json:"trade_mode"`

	PriceOpen      decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"price_open"`
	QtyTotal       decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"qty_total"`
	QtyRemaining   decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"qty_remaining"`
	RealizedProfit decimal.Decimal `gorm:"type:numeric(30,10)" json:"realized_profit"`

	LockSellByWebhook bool `gorm:"not null;default:false" json:"lock_sell_by_webhook"`
	IsResiduePosition bool `gorm:"not null;default:false;index" json:"is_residue_position"`

	// ParentPositionID points at the residue position the remainder of
	// this position was swept into. Residue positions never point back.
	ParentPositionID *uint `gorm:"index" json:"parent_position_id,omitempty"`

	Status      string     `gorm:"size:20;not null;default:open;index:idx_position_book" json:"status"`
	CloseReason string     `gorm:"size:40" json:"close_reason,omitempty"`
	OpenedAt    time.Time  `gorm:"index" json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Fills []PositionFill `gorm:"foreignKey:PositionID" json:"fills,omitempty"`
}

func (TradePosition) TableName() string {
	return "trade_positions"
}

// PositionFill is the immutable record of one buy or sell execution
// applied to a position.
type PositionFill struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	PositionID uint `gorm:"not null;index" json:"position_id"`
	JobID      uint `gorm:"index" json:"job_id"`

	Side     string          `gorm:"size:10;not null" json:"side"`
	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"quantity"`
	Price    decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"price"`
	Profit   decimal.Decimal `gorm:"type:numeric(30,10)" json:"profit"`

	ExecutionRef string `gorm:"size:128" json:"execution_ref"`

	CreatedAt time.Time `json:"created_at"`
}

func (PositionFill) TableName() string {
	return "position_fills"
}

// ResidueTransferJob is the audit row written whenever dust is swept
// from a source position into the consolidated residue position.
type ResidueTransferJob struct {
	ID                uint `gorm:"primaryKey" json:"id"`
	SourcePositionID  uint `gorm:"not null;index" json:"source_position_id"`
	ResiduePositionID uint `gorm:"not null;index" json:"residue_position_id"`

	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"quantity"`
	Price    decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"price"`

	CreatedAt time.Time `json:"created_at"`
}

func (ResidueTransferJob) TableName() string {
	return "residue_transfer_jobs"
}
