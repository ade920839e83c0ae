package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"tradevault/src/database"
	"tradevault/src/executors"
)

type Worker struct{}

func (t *Worker) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	logrus.Info("Starting trade job execution worker")

	if err := executors.StartLoop(ctx); err != nil {
		logrus.WithError(err).Error("Failed to run execution loop")
		return err
	}

	return nil
}
