package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradevault/src/database"
	"tradevault/src/model"
	"tradevault/src/security"
)

// ExchangeAccountRepository handles read/write operations for exchange
// accounts and their cached balance snapshots.
type ExchangeAccountRepository struct {
	db *gorm.DB
}

// NewExchangeAccountRepository creates a new repository instance using the main read/write database.
func NewExchangeAccountRepository() *ExchangeAccountRepository {
	return &ExchangeAccountRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *ExchangeAccountRepository) WithDB(db *gorm.DB) *ExchangeAccountRepository {
	return &ExchangeAccountRepository{db: db}
}

// FindByID fetches a single account by its primary ID.
// Returns (nil, nil) if the account is not found.
func (r *ExchangeAccountRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.ExchangeAccount, error) {

	var account model.ExchangeAccount

	err := r.db.WithContext(ctx).First(&account, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "ExchangeAccountRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Exchange account not found")
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "ExchangeAccountRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch exchange account by ID")

		return nil, err
	}

	return &account, nil
}

// Create inserts a new exchange account.
func (r *ExchangeAccountRepository) Create(
	ctx context.Context,
	account *model.ExchangeAccount,
) error {

	err := r.db.WithContext(ctx).Create(account).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExchangeAccountRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create exchange account")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "ExchangeAccountRepository",
		"op":         "Create",
		"account_id": account.ID,
		"exchange":   account.ExchangeType,
	}).Info("Exchange account created")

	return nil
}

// Save persists the current state of an account.
func (r *ExchangeAccountRepository) Save(
	ctx context.Context,
	account *model.ExchangeAccount,
) error {

	err := r.db.WithContext(ctx).Save(account).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "ExchangeAccountRepository",
			"op":         "Save",
			"account_id": account.ID,
		}).WithError(err).Error("Failed to save exchange account")
		return err
	}

	return nil
}

// DecryptAPIKeys resolves an account and decrypts its credentials on
// demand. Plaintext is never cached or persisted. Simulation accounts
// return empty credentials.
func (r *ExchangeAccountRepository) DecryptAPIKeys(
	ctx context.Context,
	accountID uint,
) (apiKey string, apiSecret string, err error) {

	account, err := r.FindByID(ctx, accountID)
	if err != nil {
		return "", "", err
	}
	if account == nil {
		return "", "", errors.New("exchange account not found")
	}
	if account.Simulation {
		return "", "", nil
	}

	apiKey, err = security.DecryptString(account.APIKeyEncrypted)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "ExchangeAccountRepository",
			"op":         "DecryptAPIKeys",
			"account_id": accountID,
		}).WithError(err).Error("Failed to decrypt API key")
		return "", "", err
	}

	apiSecret, err = security.DecryptString(account.APISecretEncrypted)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "ExchangeAccountRepository",
			"op":         "DecryptAPIKeys",
			"account_id": accountID,
		}).WithError(err).Error("Failed to decrypt API secret")
		return "", "", err
	}

	return apiKey, apiSecret, nil
}

// UpsertBalance writes one cached balance snapshot, bounded to the
// (account, trade mode, asset) key, advancing last_sync_at.
func (r *ExchangeAccountRepository) UpsertBalance(
	ctx context.Context,
	accountID uint,
	tradeMode string,
	asset string,
	free decimal.Decimal,
	locked decimal.Decimal,
	syncedAt time.Time,
) error {

	row := model.ExchangeBalance{
		AccountID:  accountID,
		TradeMode:  tradeMode,
		Asset:      asset,
		Free:       free,
		Locked:     locked,
		LastSyncAt: syncedAt,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "account_id"}, {Name: "trade_mode"}, {Name: "asset"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"free", "locked", "last_sync_at", "updated_at"}),
		}).
		Create(&row).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "ExchangeAccountRepository",
			"op":         "UpsertBalance",
			"account_id": accountID,
			"asset":      asset,
		}).WithError(err).Error("Failed to upsert exchange balance")

		return err
	}

	return nil
}

// ListBalances returns the cached balance snapshots for an account.
func (r *ExchangeAccountRepository) ListBalances(
	ctx context.Context,
	accountID uint,
	tradeMode string,
) ([]model.ExchangeBalance, error) {

	var balances []model.ExchangeBalance

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND trade_mode = ?", accountID, tradeMode).
		Order("asset ASC").
		Find(&balances).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "ExchangeAccountRepository",
			"op":         "ListBalances",
			"account_id": accountID,
		}).WithError(err).Error("Failed to list exchange balances")

		return nil, err
	}

	return balances, nil
}
