package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"copytrader/cmd/engine"
	"copytrader/src/database"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Copytrader CMD"
	app.Usage = "The copytrader command line interface"

	app.Commands = []cli.Command{
		engineCMD,
		migrateCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	engineCMD = cli.Command{
		Name:        "engine",
		Usage:       "run the bracket order engine",
		Action:      engineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the headless bracket engine: index reload, fill polling and price feeds`,
	}
	migrateCMD = cli.Command{
		Name:        "migrate",
		Usage:       "run database migrations",
		Action:      migrateAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Connect to the main database, run AutoMigrate and exit`,
	}
)

func engineAction(_ *cli.Context) error {
	logrus.Info("Starting engine CMD")
	logrus.WithField("cmd", "engine")

	eng := &engine.Engine{}
	err := eng.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func migrateAction(_ *cli.Context) error {
	logrus.Info("Starting migrate CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to run migrations")
		return err
	}

	logrus.Info("Migrations completed")
	return nil
}
