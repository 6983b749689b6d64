package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"copytrader/src/bracket"
	"copytrader/src/database"
	"copytrader/src/events"
	"copytrader/src/repository"
	"copytrader/src/server"
)

var APP_NAME = os.Getenv("APP_NAME")

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	repo := repository.NewBracketRepository()
	hub := events.NewHub()
	publisher := events.Fanout{
		events.NewLogPublisher(),
		events.NewAuditPublisher(repo),
		hub,
	}

	engine := bracket.NewEngine(repo, publisher)
	if err := engine.Reload(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to reload bracket index")
	}

	config := server.GetConfig()
	server.StartServer(config.Port, server.NewRouter(engine, hub))
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
