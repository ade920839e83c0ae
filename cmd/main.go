package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradevault/cmd/keys"
	"tradevault/cmd/residue"
	"tradevault/cmd/worker"
)

var Version string

func main() {
	_ = godotenv.Load()

	app := cli.NewApp()
	app.Name = "Tradevault CMD"
	app.Usage = "The Tradevault command line interface"

	app.Commands = []cli.Command{
		workerCMD,
		residueCMD,
		keysCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	workerCMD = cli.Command{
		Name:        "worker",
		Usage:       "run the trade job execution worker",
		Action:      workerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the single-writer execution worker loop`,
	}
	residueCMD = cli.Command{
		Name:        "residue",
		Usage:       "sweep dust positions into residue",
		Action:      residueAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run one dust consolidation pass over an account's open positions`,
	}
	keysCMD = cli.Command{
		Name:        "keys",
		Usage:       "store encrypted exchange credentials",
		Action:      keysAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Encrypt API key/secret from the environment onto an exchange account`,
	}
)

func workerAction(_ *cli.Context) error {

	logrus.Info("Starting worker CMD")
	logrus.WithField("cmd", "worker")

	w := &worker.Worker{}
	err := w.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func residueAction(_ *cli.Context) error {

	logrus.Info("Starting residue sweep CMD")

	sweeper := &residue.Sweeper{
		Log: logrus.WithField("cmd", "residue"),
	}
	err := sweeper.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting residue cmd")
		return err
	}

	return nil
}

func keysAction(_ *cli.Context) error {

	logrus.Info("Starting keys CMD")
	logrus.WithField("cmd", "keys")

	k := &keys.Keys{}
	err := k.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
