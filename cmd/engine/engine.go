package engine

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"copytrader/src/bracket"
	"copytrader/src/connectors"
	"copytrader/src/database"
	"copytrader/src/events"
	"copytrader/src/marketdata"
	"copytrader/src/repository"
)

type Engine struct {
}

func (t *Engine) Start() error {
	config := GetConfig()
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

	repo := repository.NewBracketRepository()
	publisher := events.Fanout{
		events.NewLogPublisher(),
		events.NewAuditPublisher(repo),
	}
	eng := bracket.NewEngine(repo, publisher)

	if err := eng.Reload(ctx); err != nil {
		logrus.WithError(err).Fatal("Failed to reload bracket index")
		return err
	}

	connectorsConfig := connectors.GetConfig()
	client := connectors.NewExecutionGatewayClient(connectorsConfig.GatewayBaseURL, connectorsConfig.GatewayAPIKey)
	poller := connectors.NewFillPoller(client, eng, connectorsConfig.FillPollPeriod)

	go func() {
		if err := poller.Run(ctx); err != nil {
			logrus.WithError(err).Error("Fill poller stopped")
		}
	}()

	if config.PriceFeedEnabled {
		feed := connectors.NewPriceFeed(connectorsConfig.PriceFeedURL, eng)
		go func() {
			if err := feed.Run(ctx); err != nil {
				logrus.WithError(err).Error("Price feed stopped")
			}
		}()
	}

	marketDataConfig := marketdata.GetConfig()
	if marketDataConfig.Enabled {
		ticker := marketdata.NewTickerFeed(eng, marketDataConfig)
		go func() {
			if err := ticker.Run(ctx); err != nil {
				logrus.WithError(err).Error("Ticker feed stopped")
			}
		}()
	}

	logrus.Info("Bracket engine started")

	<-ctx.Done()
	logrus.Info("Shutdown signal received, stopping bracket engine")

	return nil
}
