package residue

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradevault/src/connectors"
	"tradevault/src/database"
	"tradevault/src/ledger"
	"tradevault/src/model"
	"tradevault/src/repository"
)

var dustThreshold = decimal.NewFromInt(1)

// Sweeper consolidates dust left on open positions into the single
// residue position per book. It runs once per invocation; scheduling
// is the operator's concern.
type Sweeper struct {
	Log    *logger.Entry
	DB     *gorm.DB
	Config Config
}

func (s *Sweeper) Start() error {
	s.Config = GetConfig()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if s.DB == nil {
		if err := database.InitMainDB(); err != nil {
			s.Log.WithError(err).Fatal("Failed to connect to main database")
			return err
		}
		s.DB = database.MainDB
	}

	if s.Config.AccountID == 0 {
		return errors.New("ACCOUNT_ID not set")
	}

	positionRepo := repository.NewPositionRepository().WithDB(s.DB)

	positions, err := positionRepo.FindOpenByAccount(ctx, s.Config.AccountID, s.Config.TradeMode)
	if err != nil {
		return err
	}

	candidates := make([]model.TradePosition, 0, len(positions))
	symbolSet := map[string]bool{}
	for _, p := range positions {
		if p.IsResiduePosition {
			continue
		}
		candidates = append(candidates, p)
		symbolSet[p.Symbol] = true
	}

	if len(candidates) == 0 {
		s.Log.Info("no open positions to inspect")
		return nil
	}

	symbols := make([]string, 0, len(symbolSet))
	for symbol := range symbolSet {
		symbols = append(symbols, symbol)
	}

	feed := connectors.NewPriceFeed(symbols)
	go feed.Run(ctx)

	if err := feed.WaitForPrices(ctx, s.Config.PriceWarmup); err != nil {
		s.Log.WithError(err).Error("price feed warm-up failed")
		return err
	}

	return s.sweep(ctx, candidates, feed)
}

func (s *Sweeper) sweep(ctx context.Context, candidates []model.TradePosition, feed *connectors.PriceFeed) error {
	positionLedger := ledger.NewLedger(s.DB)
	swept := 0

	for _, position := range candidates {
		price, ok := feed.LastPrice(position.Symbol)
		if !ok {
			s.Log.WithField("symbol", position.Symbol).Warn("no price for symbol, skipping")
			continue
		}

		value := position.QtyRemaining.Mul(price)
		if value.GreaterThanOrEqual(dustThreshold) {
			continue
		}

		residue, err := positionLedger.MoveToResidue(ctx, position.ID, position.QtyRemaining, price)
		if err != nil {
			// a price move between check and sweep can push the value
			// over the threshold; skip and pick it up next run
			if errors.Is(err, ledger.ErrResidueTooLarge) {
				s.Log.WithField("position_id", position.ID).Warn("position no longer dust, skipping")
				continue
			}
			s.Log.WithError(err).WithField("position_id", position.ID).Error("sweep failed")
			return err
		}

		swept++
		s.Log.WithFields(logger.Fields{
			"position_id":         position.ID,
			"residue_position_id": residue.ID,
			"symbol":              position.Symbol,
			"qty":                 position.QtyRemaining.String(),
			"value":               value.String(),
		}).Info("dust swept into residue position")
	}

	s.Log.WithFields(logger.Fields{
		"inspected": len(candidates),
		"swept":     swept,
	}).Info("residue sweep finished")

	return nil
}
