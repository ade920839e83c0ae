package executors

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradevault/src/connectors"
	"tradevault/src/ledger"
	"tradevault/src/model"
	"tradevault/src/repository"
	"tradevault/src/retry"
	"tradevault/src/vault"
)

const normScale = 8

func normalize(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(normScale)
}

// Worker drains the trade job queue one job at a time. It is the only
// writer for job state, positions and vault funds, so every job runs
// strictly pending → executing → terminal with no contention.
type Worker struct {
	db     *gorm.DB
	vault  *vault.Service
	ledger *ledger.Ledger
	config Config

	// connectorFor is injectable so tests can script fills.
	connectorFor func(account *model.ExchangeAccount, apiKey, apiSecret string) (connectors.ExchangeConnector, error)

	retryCfg retry.Config
	now      func() time.Time
}

func NewWorker(db *gorm.DB, vaultSvc *vault.Service, positionLedger *ledger.Ledger, config Config) *Worker {
	return &Worker{
		db:           db,
		vault:        vaultSvc,
		ledger:       positionLedger,
		config:       config,
		connectorFor: connectors.ForAccount,
		retryCfg: retry.Config{
			MaxRetries: config.MaxRetries,
			BaseDelay:  config.RetryBaseDelay,
			MaxDelay:   config.RetryMaxDelay,
		},
		now: time.Now,
	}
}

// RunOnce claims and fully processes one pending job. It reports
// whether a job was found; execution failures are recorded on the job
// itself and never bubble up as a worker error.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	jobRepo := repository.NewTradeJobRepository().WithDB(w.db)

	job, err := jobRepo.ClaimNextPending(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	w.execute(ctx, job)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, job *model.TradeJob) {
	log := logger.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"symbol": job.Symbol,
		"side":   job.Side,
		"qty":    job.Quantity.String(),
	})
	log.Info("executing trade job")

	accountRepo := repository.NewExchangeAccountRepository().WithDB(w.db)

	if job.Quantity.LessThanOrEqual(decimal.Zero) {
		w.finishJob(ctx, job, model.JobStatusSkipped, model.ReasonNoQuantity, "job has no quantity to execute")
		return
	}

	account, err := accountRepo.FindByID(ctx, job.AccountID)
	if err != nil || account == nil {
		w.failJob(ctx, job, model.ReasonExchangeRejected, "exchange account not found", err)
		return
	}

	// Sells with nothing to match are skipped before any exchange call.
	if job.Side == model.JobSideSell {
		if skipped := w.skipUnmatchableSell(ctx, job); skipped {
			return
		}
	}

	apiKey, apiSecret, err := accountRepo.DecryptAPIKeys(ctx, account.ID)
	if err != nil {
		w.failJob(ctx, job, model.ReasonExchangeRejected, "failed to decrypt account credentials", err)
		return
	}

	conn, err := w.connectorFor(account, apiKey, apiSecret)
	if err != nil {
		w.failJob(ctx, job, model.ReasonExchangeRejected, err.Error(), err)
		return
	}

	quoteAsset := model.QuoteAsset(job.Symbol)

	// Buys hold their estimated quote cost in the vault before the
	// order goes out, so a crash mid-flight can never double-spend.
	reserved := decimal.Zero
	if job.Side == model.JobSideBuy && account.VaultID != 0 {
		reserved, err = w.reserveBuyFunds(ctx, job, account, conn, quoteAsset)
		if err != nil {
			if errors.Is(err, vault.ErrInsufficientBalance) {
				w.finishJob(ctx, job, model.JobStatusFailed, model.ReasonInsufficientBalance, "vault balance too low to reserve buy cost")
			} else {
				w.failJob(ctx, job, model.ReasonExchangeRejected, "failed to reserve buy funds", err)
			}
			return
		}
	}

	result, err := retry.Do(func() (*connectors.ExecutionResult, error) {
		return conn.PlaceOrder(ctx, job.Symbol, job.Side, job.Quantity, job.ClientOrderID)
	}, w.retryCfg)

	if err != nil {
		w.releaseReservation(ctx, account, quoteAsset, reserved, job)
		if connectors.IsTerminal(err) {
			w.failJob(ctx, job, model.ReasonExchangeRejected, err.Error(), err)
		} else {
			w.failJob(ctx, job, model.ReasonRetriesExhausted, err.Error(), err)
		}
		return
	}

	if result.ExecutedQty.LessThanOrEqual(decimal.Zero) {
		w.releaseReservation(ctx, account, quoteAsset, reserved, job)
		w.failJob(ctx, job, model.ReasonExchangeRejected, "exchange executed zero quantity", nil)
		return
	}

	executedAt := w.now()
	job.ExecutedQty = normalize(result.ExecutedQty)
	job.AvgPrice = result.AvgPrice
	job.ExchangeRef = result.ExchangeRef
	job.ExecutedAt = &executedAt

	switch job.Side {
	case model.JobSideBuy:
		w.applyBuy(ctx, job, account, quoteAsset, reserved, result)
	case model.JobSideSell:
		w.applySell(ctx, job, account, quoteAsset, result)
	}

	if w.config.SyncBalances {
		w.syncBalances(ctx, account, conn)
	}
}

// skipUnmatchableSell checks the open book before a sell goes to the
// exchange. Selling with nothing to close would leave the ledger and
// the exchange out of sync, so such jobs end as skipped.
func (w *Worker) skipUnmatchableSell(ctx context.Context, job *model.TradeJob) bool {
	positionRepo := repository.NewPositionRepository().WithDB(w.db)

	all, err := positionRepo.FindOpenFIFO(ctx, job.AccountID, job.TradeMode, job.Symbol, false)
	if err != nil {
		w.failJob(ctx, job, model.ReasonExchangeRejected, "failed to inspect open positions", err)
		return true
	}

	eligible := len(all)
	if sellOrigin(job) == model.SellOriginWebhook {
		eligible = 0
		for _, p := range all {
			if !p.LockSellByWebhook {
				eligible++
			}
		}
	}

	if eligible > 0 {
		return false
	}

	reason := model.ReasonNoEligiblePositions
	message := "no open positions to sell against"
	if len(all) > 0 {
		reason = model.ReasonWebhookLocked
		message = "all open positions are locked against webhook sells"
	}
	w.finishJob(ctx, job, model.JobStatusSkipped, reason, message)
	return true
}

// reserveBuyFunds estimates the quote cost from a live reference price
// plus the configured buffer and holds it in the account's vault.
func (w *Worker) reserveBuyFunds(
	ctx context.Context,
	job *model.TradeJob,
	account *model.ExchangeAccount,
	conn connectors.ExchangeConnector,
	quoteAsset string,
) (decimal.Decimal, error) {

	refPrice, err := conn.GetPrice(ctx, job.Symbol)
	if err != nil {
		return decimal.Zero, err
	}

	buffer := decimal.NewFromInt(100 + w.config.ReserveBufferPct).Div(decimal.NewFromInt(100))
	estCost := normalize(refPrice.Mul(job.Quantity).Mul(buffer))

	if err := w.vault.Reserve(ctx, account.VaultID, quoteAsset, estCost, &job.ID); err != nil {
		return decimal.Zero, err
	}

	return estCost, nil
}

func (w *Worker) applyBuy(
	ctx context.Context,
	job *model.TradeJob,
	account *model.ExchangeAccount,
	quoteAsset string,
	reserved decimal.Decimal,
	result *connectors.ExecutionResult,
) {

	if _, err := w.ledger.OnBuyExecuted(ctx, job, result.ExecutedQty, result.AvgPrice); err != nil {
		w.failJob(ctx, job, model.ReasonExchangeRejected, "failed to open position after fill", err)
		return
	}

	// settle the reservation: confirm what the fill actually cost,
	// capped at the hold, and give the leftover back
	if reserved.GreaterThan(decimal.Zero) {
		actualCost := normalize(result.ExecutedQty.Mul(result.AvgPrice))
		confirm := decimal.Min(actualCost, reserved)

		if confirm.GreaterThan(decimal.Zero) {
			if err := w.vault.Confirm(ctx, account.VaultID, quoteAsset, confirm, &job.ID); err != nil {
				logger.WithError(err).WithField("job_id", job.ID).Error("failed to confirm buy reservation")
				w.recordException(ctx, job, "vault", "Confirm", err)
			}
		}

		leftover := normalize(reserved.Sub(confirm))
		if leftover.GreaterThan(decimal.Zero) {
			if err := w.vault.Cancel(ctx, account.VaultID, quoteAsset, leftover, &job.ID); err != nil {
				logger.WithError(err).WithField("job_id", job.ID).Error("failed to release leftover reservation")
				w.recordException(ctx, job, "vault", "Cancel", err)
			}
		}
	}

	if result.FullyFilled && job.ExecutedQty.GreaterThanOrEqual(job.Quantity) {
		w.finishJob(ctx, job, model.JobStatusFilled, "", "")
	} else {
		w.finishJob(ctx, job, model.JobStatusPartiallyFilled, model.ReasonPartialFill,
			"exchange filled "+job.ExecutedQty.String()+" of "+job.Quantity.String())
	}
}

func (w *Worker) applySell(
	ctx context.Context,
	job *model.TradeJob,
	account *model.ExchangeAccount,
	quoteAsset string,
	result *connectors.ExecutionResult,
) {

	sellResult, err := w.ledger.OnSellExecuted(ctx, job, result.ExecutedQty, result.AvgPrice, sellOrigin(job))
	if err != nil {
		w.failJob(ctx, job, model.ReasonExchangeRejected, "failed to match sell against positions", err)
		return
	}

	if account.VaultID != 0 {
		proceeds := normalize(result.ExecutedQty.Mul(result.AvgPrice))
		if proceeds.GreaterThan(decimal.Zero) {
			if err := w.vault.CreditSellReturn(ctx, account.VaultID, quoteAsset, proceeds, &job.ID); err != nil {
				logger.WithError(err).WithField("job_id", job.ID).Error("failed to credit sell proceeds")
				w.recordException(ctx, job, "vault", "CreditSellReturn", err)
			}
		}
	}

	switch {
	case sellResult.Skipped:
		w.finishJob(ctx, job, model.JobStatusSkipped, sellResult.SkipReason, "sell matched no positions")
	case sellResult.UnmatchedQty.GreaterThan(decimal.Zero) || !result.FullyFilled:
		w.finishJob(ctx, job, model.JobStatusPartiallyFilled, model.ReasonPartialFill,
			"matched "+sellResult.MatchedQty.String()+", unmatched "+sellResult.UnmatchedQty.String())
	default:
		w.finishJob(ctx, job, model.JobStatusFilled, "", "")
	}
}

// sellOrigin derives how a sell was initiated. Jobs carrying an event
// came through a webhook; everything else is operator-initiated.
func sellOrigin(job *model.TradeJob) model.SellOrigin {
	if job.EventID != 0 {
		return model.SellOriginWebhook
	}
	return model.SellOriginManual
}

func (w *Worker) releaseReservation(
	ctx context.Context,
	account *model.ExchangeAccount,
	quoteAsset string,
	reserved decimal.Decimal,
	job *model.TradeJob,
) {
	if reserved.LessThanOrEqual(decimal.Zero) {
		return
	}
	if err := w.vault.Cancel(ctx, account.VaultID, quoteAsset, reserved, &job.ID); err != nil {
		logger.WithError(err).WithField("job_id", job.ID).Error("failed to cancel buy reservation")
		w.recordException(ctx, job, "vault", "Cancel", err)
	}
}

func (w *Worker) syncBalances(ctx context.Context, account *model.ExchangeAccount, conn connectors.ExchangeConnector) {
	balances, err := conn.FetchBalances(ctx)
	if err != nil {
		logger.WithError(err).WithField("account_id", account.ID).Warn("balance sync failed")
		return
	}

	accountRepo := repository.NewExchangeAccountRepository().WithDB(w.db)
	syncedAt := w.now()

	for asset, balance := range balances {
		if err := accountRepo.UpsertBalance(ctx, account.ID, account.TradeMode(), asset, balance.Free, balance.Locked, syncedAt); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"account_id": account.ID,
				"asset":      asset,
			}).Warn("failed to upsert balance snapshot")
		}
	}
}

func (w *Worker) finishJob(ctx context.Context, job *model.TradeJob, status, reasonCode, reasonMessage string) {
	job.Status = status
	job.ReasonCode = reasonCode
	job.ReasonMessage = reasonMessage

	if err := repository.NewTradeJobRepository().WithDB(w.db).Save(ctx, job); err != nil {
		logger.WithError(err).WithField("job_id", job.ID).Error("failed to persist job result")
		return
	}

	logger.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"status": status,
		"reason": reasonCode,
	}).Info("trade job finished")
}

func (w *Worker) failJob(ctx context.Context, job *model.TradeJob, reasonCode, reasonMessage string, cause error) {
	if cause != nil {
		w.recordException(ctx, job, "worker", "execute", cause)
	}
	w.finishJob(ctx, job, model.JobStatusFailed, reasonCode, reasonMessage)
}

func (w *Worker) recordException(ctx context.Context, job *model.TradeJob, module, method string, cause error) {
	exc := &model.Exception{
		Service: "job_executor",
		Module:  module,
		Method:  method,
		Message: cause.Error(),
		Level:   "error",
		JobID:   &job.ID,
	}
	if err := repository.NewExceptionRepository().WithDB(w.db).Create(ctx, exc); err != nil {
		logger.WithError(err).Error("failed to persist exception")
	}
}
