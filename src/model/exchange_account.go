package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ExchangeTypeBinance = "binance"
	ExchangeTypeOKX     = "okx"
	ExchangeTypeHuobi   = "huobi"
)

// ExchangeAccount holds the credentials for one trading account.
// Key and secret are stored encrypted; both stay empty for simulation
// accounts, which never touch a real exchange.
type ExchangeAccount struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"index" json:"user_id"`
	Name   string `gorm:"size:120" json:"name"`

	ExchangeType string `gorm:"size:40;not null" json:"exchange_type"`
	Simulation   bool   `gorm:"not null;default:true" json:"simulation"`

	APIKeyEncrypted    string `gorm:"column:api_key;type:text" json:"-"`
	APISecretEncrypted string `gorm:"column:api_secret;type:text" json:"-"`

	VaultID uint `gorm:"index" json:"vault_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ExchangeAccount) TableName() string {
	return "exchange_accounts"
}

// TradeMode derives the mode this account participates in. Bindings and
// events must match it.
func (a *ExchangeAccount) TradeMode() string {
	if a.Simulation {
		return TradeModeSimulation
	}
	return TradeModeReal
}

// ExchangeBalance caches the last balance snapshot fetched from the
// exchange, one row per (account, trade mode, asset).
type ExchangeBalance struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	AccountID uint   `gorm:"not null;index:idx_exchange_balance,unique" json:"account_id"`
	TradeMode string `gorm:"size:20;not null;index:idx_exchange_balance,unique" json:"trade_mode"`
	Asset     string `gorm:"size:20;not null;index:idx_exchange_balance,unique" json:"asset"`

	Free   decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"free"`
	Locked decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"locked"`

	LastSyncAt time.Time `gorm:"not null" json:"last_sync_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (ExchangeBalance) TableName() string {
	return "exchange_balances"
}
