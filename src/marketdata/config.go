package marketdata

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Enabled    bool          `envconfig:"TICKER_FEED_ENABLED" default:"false"`
	Quote      string        `envconfig:"TICKER_QUOTE" default:"USDT"`
	PollPeriod time.Duration `envconfig:"TICKER_POLL_PERIOD" default:"5s"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
