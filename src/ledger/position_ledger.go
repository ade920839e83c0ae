package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradevault/src/model"
	"tradevault/src/repository"
)

var (
	ErrNotBuyJob  = errors.New("ledger: job is not a buy job")
	ErrNotSellJob = errors.New("ledger: job is not a sell job")

	// ErrResidueTooLarge guards against sweeping a meaningful position
	// as dust: a sweep valued at one dollar or more is rejected.
	ErrResidueTooLarge = errors.New("ledger: residue value is not below the dust threshold")

	ErrResidueExceedsRemaining = errors.New("ledger: residue quantity exceeds remaining quantity")
	ErrPositionNotFound        = errors.New("ledger: position not found")
	ErrPositionNotOpen         = errors.New("ledger: position is not open")
)

// residueThreshold is the quote-value ceiling (exclusive) for a dust
// sweep: qty x price must stay strictly below $1.
var residueThreshold = decimal.NewFromInt(1)

const normScale = 8

func normalize(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(normScale)
}

// Ledger owns the open/closed position lifecycle: buy application,
// FIFO sell matching with partial-fill bookkeeping, and dust
// consolidation. Only the single execution worker writes through it.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// OnBuyExecuted opens a new position for an executed buy and records
// the immutable buy fill, atomically.
func (l *Ledger) OnBuyExecuted(
	ctx context.Context,
	job *model.TradeJob,
	executedQty decimal.Decimal,
	avgPrice decimal.Decimal,
) (*model.TradePosition, error) {

	if job.Side != model.JobSideBuy {
		return nil, ErrNotBuyJob
	}

	executedQty = normalize(executedQty)
	now := l.now()

	position := &model.TradePosition{
		AccountID:    job.AccountID,
		Symbol:       job.Symbol,
		TradeMode:    job.TradeMode,
		PriceOpen:    avgPrice,
		QtyTotal:     executedQty,
		QtyRemaining: executedQty,
		Status:       model.PositionStatusOpen,
		OpenedAt:     now,
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := repository.NewPositionRepository().WithDB(tx)

		if err := repo.Create(ctx, position); err != nil {
			return err
		}

		fill := &model.PositionFill{
			PositionID:   position.ID,
			JobID:        job.ID,
			Side:         model.FillSideBuy,
			Quantity:     executedQty,
			Price:        avgPrice,
			ExecutionRef: job.ExchangeRef,
		}
		return repo.CreateFill(ctx, fill)
	})

	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"position_id": position.ID,
		"job_id":      job.ID,
		"symbol":      job.Symbol,
		"qty":         executedQty.String(),
		"price":       avgPrice.String(),
	}).Info("position opened from buy execution")

	return position, nil
}

// SellResult reports how an executed sell was matched against the book.
type SellResult struct {
	MatchedQty   decimal.Decimal
	UnmatchedQty decimal.Decimal
	Profit       decimal.Decimal

	ClosedPositionIDs  []uint
	TouchedPositionIDs []uint

	// Skipped is set when nothing could be matched at all; SkipReason
	// distinguishes a webhook lock from an empty book.
	Skipped    bool
	SkipReason string
}

// OnSellExecuted walks the open positions for the job's book in FIFO
// order and closes quantity out of each until executedQty is exhausted.
// Positions flagged lock_sell_by_webhook are excluded for webhook
// origin sells. Any unmatched remainder is reported, never turned into
// a negative position.
func (l *Ledger) OnSellExecuted(
	ctx context.Context,
	job *model.TradeJob,
	executedQty decimal.Decimal,
	avgPrice decimal.Decimal,
	origin model.SellOrigin,
) (*SellResult, error) {

	if job.Side != model.JobSideSell {
		return nil, ErrNotSellJob
	}

	executedQty = normalize(executedQty)
	result := &SellResult{
		MatchedQty:   decimal.Zero,
		UnmatchedQty: decimal.Zero,
		Profit:       decimal.Zero,
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := repository.NewPositionRepository().WithDB(tx)

		// fetch without the lock filter first so an all-locked book can
		// be reported as webhook_locked instead of no_eligible_positions
		all, err := repo.FindOpenFIFO(ctx, job.AccountID, job.TradeMode, job.Symbol, false)
		if err != nil {
			return err
		}

		eligible := all
		if origin == model.SellOriginWebhook {
			eligible = make([]model.TradePosition, 0, len(all))
			for _, p := range all {
				if !p.LockSellByWebhook {
					eligible = append(eligible, p)
				}
			}
		}

		if len(eligible) == 0 {
			result.Skipped = true
			result.UnmatchedQty = executedQty
			if len(all) > 0 {
				result.SkipReason = model.ReasonWebhookLocked
			} else {
				result.SkipReason = model.ReasonNoEligiblePositions
			}
			return nil
		}

		remaining := executedQty
		now := l.now()

		for i := range eligible {
			if remaining.LessThanOrEqual(decimal.Zero) {
				break
			}
			position := &eligible[i]

			qtyToClose := decimal.Min(position.QtyRemaining, remaining)
			profit := normalize(avgPrice.Sub(position.PriceOpen).Mul(qtyToClose))

			position.QtyRemaining = normalize(position.QtyRemaining.Sub(qtyToClose))
			position.RealizedProfit = normalize(position.RealizedProfit.Add(profit))

			if position.QtyRemaining.IsZero() {
				position.Status = model.PositionStatusClosed
				closedAt := now
				position.ClosedAt = &closedAt
				if origin == model.SellOriginWebhook {
					position.CloseReason = model.CloseReasonWebhookSell
				} else {
					position.CloseReason = model.CloseReasonManualSell
				}
				result.ClosedPositionIDs = append(result.ClosedPositionIDs, position.ID)
			}

			if err := repo.Save(ctx, position); err != nil {
				return err
			}

			fill := &model.PositionFill{
				PositionID:   position.ID,
				JobID:        job.ID,
				Side:         model.FillSideSell,
				Quantity:     qtyToClose,
				Price:        avgPrice,
				Profit:       profit,
				ExecutionRef: job.ExchangeRef,
			}
			if err := repo.CreateFill(ctx, fill); err != nil {
				return err
			}

			result.TouchedPositionIDs = append(result.TouchedPositionIDs, position.ID)
			result.MatchedQty = normalize(result.MatchedQty.Add(qtyToClose))
			result.Profit = normalize(result.Profit.Add(profit))
			remaining = normalize(remaining.Sub(qtyToClose))
		}

		result.UnmatchedQty = remaining
		return nil
	})

	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"job_id":    job.ID,
		"symbol":    job.Symbol,
		"matched":   result.MatchedQty.String(),
		"unmatched": result.UnmatchedQty.String(),
		"closed":    len(result.ClosedPositionIDs),
		"skipped":   result.Skipped,
	}).Info("sell execution matched against positions")

	return result, nil
}

// MoveToResidue sweeps dust out of a source position into the single
// consolidated residue position for its (symbol, account, trade mode).
// Both sides of the transfer commit atomically or not at all.
func (l *Ledger) MoveToResidue(
	ctx context.Context,
	sourcePositionID uint,
	residueQty decimal.Decimal,
	currentPrice decimal.Decimal,
) (*model.TradePosition, error) {

	residueQty = normalize(residueQty)
	if residueQty.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("ledger: residue quantity must be positive")
	}
	if residueQty.Mul(currentPrice).GreaterThanOrEqual(residueThreshold) {
		return nil, ErrResidueTooLarge
	}

	var residue *model.TradePosition

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := repository.NewPositionRepository().WithDB(tx)

		source, err := repo.FindByID(ctx, sourcePositionID)
		if err != nil {
			return err
		}
		if source == nil {
			return ErrPositionNotFound
		}
		if source.Status != model.PositionStatusOpen {
			return ErrPositionNotOpen
		}
		if residueQty.GreaterThan(source.QtyRemaining) {
			return ErrResidueExceedsRemaining
		}

		residue, err = repo.FindOpenResidue(ctx, source.AccountID, source.TradeMode, source.Symbol)
		if err != nil {
			return err
		}

		now := l.now()

		if residue == nil {
			residue = &model.TradePosition{
				AccountID:         source.AccountID,
				Symbol:            source.Symbol,
				TradeMode:         source.TradeMode,
				PriceOpen:         currentPrice,
				QtyTotal:          residueQty,
				QtyRemaining:      residueQty,
				IsResiduePosition: true,
				Status:            model.PositionStatusOpen,
				OpenedAt:          now,
			}
			if err := repo.Create(ctx, residue); err != nil {
				return err
			}
		} else {
			// quantity-weighted average of the old stock and the sweep
			oldQty := residue.QtyRemaining
			newQty := normalize(oldQty.Add(residueQty))
			weighted := residue.PriceOpen.Mul(oldQty).Add(currentPrice.Mul(residueQty)).Div(newQty)

			residue.PriceOpen = normalize(weighted)
			residue.QtyTotal = normalize(residue.QtyTotal.Add(residueQty))
			residue.QtyRemaining = newQty

			if err := repo.Save(ctx, residue); err != nil {
				return err
			}
		}

		source.QtyRemaining = normalize(source.QtyRemaining.Sub(residueQty))
		source.ParentPositionID = &residue.ID
		if source.QtyRemaining.IsZero() {
			source.Status = model.PositionStatusClosed
			closedAt := now
			source.ClosedAt = &closedAt
			source.CloseReason = model.CloseReasonResidue
		}
		if err := repo.Save(ctx, source); err != nil {
			return err
		}

		transfer := &model.ResidueTransferJob{
			SourcePositionID:  source.ID,
			ResiduePositionID: residue.ID,
			Quantity:          residueQty,
			Price:             currentPrice,
		}
		return repo.CreateResidueTransfer(ctx, transfer)
	})

	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"source_position_id":  sourcePositionID,
		"residue_position_id": residue.ID,
		"qty":                 residueQty.String(),
		"price":               currentPrice.String(),
	}).Info("residue swept into consolidated position")

	return residue, nil
}
