package executors

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradevault/src/database"
	"tradevault/src/ledger"
	"tradevault/src/vault"
)

// StartLoop runs the single execution worker until ctx is canceled.
// Each tick drains the pending queue completely, one job at a time.
func StartLoop(ctx context.Context) error {
	config := GetConfig()

	worker := NewWorker(
		database.MainDB,
		vault.NewService(database.MainDB),
		ledger.NewLedger(database.MainDB),
		config,
	)

	ticker := time.NewTicker(config.LoopPeriod)
	defer ticker.Stop()

	logger.WithField("loop_period", config.LoopPeriod.String()).Info("execution worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("execution worker stopped")
			return nil

		case <-ticker.C:
			if err := drainQueue(ctx, worker); err != nil {
				logger.WithError(err).Error("queue drain failed, will retry next tick")
			}
		}
	}
}

func drainQueue(ctx context.Context, worker *Worker) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		found, err := worker.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
	}
}
