package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	GatewayBaseURL string        `envconfig:"EXECUTION_GATEWAY_URL" default:"http://localhost:8081"`
	GatewayAPIKey  string        `envconfig:"EXECUTION_GATEWAY_API_KEY"`
	FillPollPeriod time.Duration `envconfig:"FILL_POLL_PERIOD" default:"2s"`

	PriceFeedURL string `envconfig:"PRICE_FEED_WS_URL" default:"ws://localhost:8082/stream"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
