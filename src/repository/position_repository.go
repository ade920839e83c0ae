package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradevault/src/database"
	"tradevault/src/model"
)

// PositionRepository handles read/write operations for trade positions
// and their fills.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main read/write database.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new position.
func (r *PositionRepository) Create(
	ctx context.Context,
	position *model.TradePosition,
) error {

	err := r.db.WithContext(ctx).Create(position).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "PositionRepository",
			"op":     "Create",
			"symbol": position.Symbol,
		}).WithError(err).Error("Failed to create position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Create",
		"position_id": position.ID,
		"symbol":      position.Symbol,
		"qty":         position.QtyTotal.String(),
	}).Info("Position created")

	return nil
}

// Save persists the current state of a position.
func (r *PositionRepository) Save(
	ctx context.Context,
	position *model.TradePosition,
) error {

	err := r.db.WithContext(ctx).Save(position).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Save",
			"position_id": position.ID,
		}).WithError(err).Error("Failed to save position")
		return err
	}

	return nil
}

// FindByID fetches a single position by its primary ID.
// Returns (nil, nil) if the position is not found.
func (r *PositionRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.TradePosition, error) {

	var position model.TradePosition

	err := r.db.WithContext(ctx).First(&position, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch position by ID")

		return nil, err
	}

	return &position, nil
}

// FindOpenFIFO returns the open positions for one book (account, trade
// mode, symbol) ordered by opening time ascending, so the caller can
// match sells first-in-first-out. When excludeWebhookLocked is set,
// positions flagged lock_sell_by_webhook are left out.
func (r *PositionRepository) FindOpenFIFO(
	ctx context.Context,
	accountID uint,
	tradeMode string,
	symbol string,
	excludeWebhookLocked bool,
) ([]model.TradePosition, error) {

	logger.WithFields(map[string]interface{}{
		"repo":         "PositionRepository",
		"op":           "FindOpenFIFO",
		"account_id":   accountID,
		"symbol":       symbol,
		"exclude_lock": excludeWebhookLocked,
	}).Debug("Fetching open positions FIFO")

	query := r.db.WithContext(ctx).
		Where("account_id = ? AND trade_mode = ? AND symbol = ? AND status = ?",
			accountID, tradeMode, symbol, model.PositionStatusOpen)

	if excludeWebhookLocked {
		query = query.Where("lock_sell_by_webhook = ?", false)
	}

	var positions []model.TradePosition

	err := query.
		Order("opened_at ASC, id ASC").
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "FindOpenFIFO",
			"account_id": accountID,
			"symbol":     symbol,
		}).WithError(err).Error("Failed to fetch open positions")

		return nil, err
	}

	return positions, nil
}

// FindOpenResidue fetches the consolidated residue position for one
// book. Returns (nil, nil) when no residue position is open yet.
func (r *PositionRepository) FindOpenResidue(
	ctx context.Context,
	accountID uint,
	tradeMode string,
	symbol string,
) (*model.TradePosition, error) {

	var position model.TradePosition

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND trade_mode = ? AND symbol = ? AND status = ? AND is_residue_position = ?",
			accountID, tradeMode, symbol, model.PositionStatusOpen, true).
		First(&position).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "FindOpenResidue",
			"account_id": accountID,
			"symbol":     symbol,
		}).WithError(err).Error("Failed to fetch residue position")

		return nil, err
	}

	return &position, nil
}

// FindOpenByAccount returns every open position for an account,
// oldest first. Used by the residue sweep CLI and the query surface.
func (r *PositionRepository) FindOpenByAccount(
	ctx context.Context,
	accountID uint,
	tradeMode string,
) ([]model.TradePosition, error) {

	var positions []model.TradePosition

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND trade_mode = ? AND status = ?",
			accountID, tradeMode, model.PositionStatusOpen).
		Order("opened_at ASC, id ASC").
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "FindOpenByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to fetch open positions for account")

		return nil, err
	}

	return positions, nil
}

// CreateFill appends an immutable fill record.
func (r *PositionRepository) CreateFill(
	ctx context.Context,
	fill *model.PositionFill,
) error {

	err := r.db.WithContext(ctx).Create(fill).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "CreateFill",
			"position_id": fill.PositionID,
			"side":        fill.Side,
		}).WithError(err).Error("Failed to create position fill")
		return err
	}

	return nil
}

// CreateResidueTransfer appends a residue sweep audit row.
func (r *PositionRepository) CreateResidueTransfer(
	ctx context.Context,
	transfer *model.ResidueTransferJob,
) error {

	err := r.db.WithContext(ctx).Create(transfer).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":               "PositionRepository",
			"op":                 "CreateResidueTransfer",
			"source_position_id": transfer.SourcePositionID,
		}).WithError(err).Error("Failed to create residue transfer job")
		return err
	}

	return nil
}
