package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SignalActionBuy     = "buy"
	SignalActionSell    = "sell"
	SignalActionUnknown = "unknown"
)

const (
	EventStatusReceived   = "received"
	EventStatusJobCreated = "job_created"
	EventStatusSkipped    = "skipped"
	EventStatusFailed     = "failed"
)

// WebhookEvent is one ingested signal. The (source, target account,
// external event id) triple is the idempotency key: ingesting the same
// delivery twice must return the original event and create no new jobs.
type WebhookEvent struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	SourceID uint `gorm:"not null;index:idx_event_dedupe,unique" json:"source_id"`

	// TargetAccountID is zero when the signal addresses every binding
	// on the source.
	TargetAccountID uint `gorm:"index:idx_event_dedupe,unique" json:"target_account_id"`

	ExternalEventID string `gorm:"size:128;not null;index:idx_event_dedupe,unique" json:"external_event_id"`

	TradeMode string `gorm:"size:20;not null" json:"trade_mode"`

	SymbolRaw        string `gorm:"size:40" json:"symbol_raw"`
	SymbolNormalized string `gorm:"size:40;index" json:"symbol_normalized"`
	Action           string `gorm:"size:20;not null;default:unknown" json:"action"`
	Timeframe        string `gorm:"size:20" json:"timeframe"`

	PriceReference decimal.Decimal `gorm:"type:numeric(30,10)" json:"price_reference"`
	Quantity       decimal.Decimal `gorm:"type:numeric(30,10)" json:"quantity"`

	RawPayload string `gorm:"type:text" json:"raw_payload"`
	SourceIP   string `gorm:"size:64" json:"source_ip"`

	Status string `gorm:"size:20;not null;default:received" json:"status"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
