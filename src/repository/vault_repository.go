package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradevault/src/database"
	"tradevault/src/model"
)

// VaultRepository handles read/write operations for vaults, their
// balances and the append-only transaction log.
type VaultRepository struct {
	db *gorm.DB
}

// NewVaultRepository creates a new repository instance using the main read/write database.
func NewVaultRepository() *VaultRepository {
	return &VaultRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *VaultRepository) WithDB(db *gorm.DB) *VaultRepository {
	return &VaultRepository{db: db}
}

// FindVaultByID fetches a vault by its primary ID.
// Returns (nil, nil) if the vault is not found.
func (r *VaultRepository) FindVaultByID(
	ctx context.Context,
	id uint,
) (*model.Vault, error) {

	var vault model.Vault

	err := r.db.WithContext(ctx).First(&vault, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "VaultRepository",
			"op":   "FindVaultByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch vault by ID")

		return nil, err
	}

	return &vault, nil
}

// CreateVault inserts a new vault.
func (r *VaultRepository) CreateVault(
	ctx context.Context,
	vault *model.Vault,
) error {

	err := r.db.WithContext(ctx).Create(vault).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "VaultRepository",
			"op":         "CreateVault",
			"account_id": vault.AccountID,
		}).WithError(err).Error("Failed to create vault")
		return err
	}

	return nil
}

// FindOrCreateBalance fetches the balance row for (vault, asset),
// lazily creating a zero-valued row on first touch.
func (r *VaultRepository) FindOrCreateBalance(
	ctx context.Context,
	vaultID uint,
	asset string,
) (*model.VaultBalance, error) {

	var balance model.VaultBalance

	err := r.db.WithContext(ctx).
		Where("vault_id = ? AND asset = ?", vaultID, asset).
		First(&balance).Error

	if err == nil {
		return &balance, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.WithFields(map[string]interface{}{
			"repo":     "VaultRepository",
			"op":       "FindOrCreateBalance",
			"vault_id": vaultID,
			"asset":    asset,
		}).WithError(err).Error("Failed to fetch vault balance")

		return nil, err
	}

	balance = model.VaultBalance{
		VaultID:  vaultID,
		Asset:    asset,
		Balance:  decimal.Zero,
		Reserved: decimal.Zero,
	}

	if err := r.db.WithContext(ctx).Create(&balance).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "VaultRepository",
			"op":       "FindOrCreateBalance",
			"vault_id": vaultID,
			"asset":    asset,
		}).WithError(err).Error("Failed to create vault balance row")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "VaultRepository",
		"op":       "FindOrCreateBalance",
		"vault_id": vaultID,
		"asset":    asset,
	}).Info("Vault balance row lazily created")

	return &balance, nil
}

// SaveBalance persists a mutated balance row.
func (r *VaultRepository) SaveBalance(
	ctx context.Context,
	balance *model.VaultBalance,
) error {

	err := r.db.WithContext(ctx).Save(balance).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "VaultRepository",
			"op":       "SaveBalance",
			"vault_id": balance.VaultID,
			"asset":    balance.Asset,
		}).WithError(err).Error("Failed to save vault balance")
		return err
	}

	return nil
}

// AppendTransaction writes one append-only ledger entry. Entries are
// never updated or deleted.
func (r *VaultRepository) AppendTransaction(
	ctx context.Context,
	tx *model.VaultTransaction,
) error {

	err := r.db.WithContext(ctx).Create(tx).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "VaultRepository",
			"op":       "AppendTransaction",
			"vault_id": tx.VaultID,
			"type":     tx.Type,
		}).WithError(err).Error("Failed to append vault transaction")
		return err
	}

	return nil
}

// ListBalances returns every balance row for a vault.
func (r *VaultRepository) ListBalances(
	ctx context.Context,
	vaultID uint,
) ([]model.VaultBalance, error) {

	var balances []model.VaultBalance

	err := r.db.WithContext(ctx).
		Where("vault_id = ?", vaultID).
		Order("asset ASC").
		Find(&balances).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "VaultRepository",
			"op":       "ListBalances",
			"vault_id": vaultID,
		}).WithError(err).Error("Failed to list vault balances")

		return nil, err
	}

	return balances, nil
}

// ListTransactions returns the latest ledger entries for a vault,
// newest first.
func (r *VaultRepository) ListTransactions(
	ctx context.Context,
	vaultID uint,
	limit int,
) ([]model.VaultTransaction, error) {

	if limit <= 0 {
		limit = 50
	}

	var txs []model.VaultTransaction

	err := r.db.WithContext(ctx).
		Where("vault_id = ?", vaultID).
		Order("id DESC").
		Limit(limit).
		Find(&txs).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "VaultRepository",
			"op":       "ListTransactions",
			"vault_id": vaultID,
		}).WithError(err).Error("Failed to list vault transactions")

		return nil, err
	}

	return txs, nil
}
