package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vault transaction types. Every balance mutation appends exactly one
// of these in the same database transaction as the mutation itself.
const (
	VaultTxDeposit    = "deposit"
	VaultTxWithdrawal = "withdrawal"
	VaultTxBuyReserve = "buy_reserve"
	VaultTxBuyConfirm = "buy_confirm"
	VaultTxBuyCancel  = "buy_cancel"
	VaultTxSellReturn = "sell_return"
)

// Vault is a named pool of funds belonging to one account.
type Vault struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	AccountID uint   `gorm:"not null;index" json:"account_id"`
	Name      string `gorm:"size:120;not null" json:"name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Balances []VaultBalance `gorm:"foreignKey:VaultID" json:"balances,omitempty"`
}

func (Vault) TableName() string {
	return "vaults"
}

// VaultBalance tracks one asset inside a vault. Balance is what can be
// spent right now, Reserved is held for pending buys.
//
// Invariant: balance >= 0 and reserved >= 0 at all times.
type VaultBalance struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	VaultID uint   `gorm:"not null;index:idx_vault_asset,unique" json:"vault_id"`
	Asset   string `gorm:"size:20;not null;index:idx_vault_asset,unique" json:"asset"`

	Balance  decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"balance"`
	Reserved decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"reserved"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (VaultBalance) TableName() string {
	return "vault_balances"
}

// VaultTransaction is the append-only ledger entry for every balance
// mutation. Rows are never updated or deleted.
type VaultTransaction struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	VaultID uint   `gorm:"not null;index" json:"vault_id"`
	Asset   string `gorm:"size:20;not null;index" json:"asset"`

	Type   string          `gorm:"size:20;not null;index" json:"type"`
	Amount decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"amount"`

	// Balance and Reserved snapshot the row state after the mutation.
	Balance  decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"balance"`
	Reserved decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"reserved"`

	JobID   *uint  `gorm:"index" json:"job_id,omitempty"`
	Comment string `gorm:"size:256" json:"comment,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (VaultTransaction) TableName() string {
	return "vault_transactions"
}
