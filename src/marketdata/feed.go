package marketdata

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"copytrader/src/bracket"
)

// TickerFeed polls spot tickers for every underlying that currently has an
// active trailing stop and routes the prices into the engine. It is the
// pull-based fallback for underlyings the streaming feed does not carry.
type TickerFeed struct {
	Log      *logger.Entry
	Engine   *bracket.Engine
	Config   *Config
	exchange goex.API
}

func NewTickerFeed(engine *bracket.Engine, config *Config) *TickerFeed {
	return &TickerFeed{
		Log:      logger.WithField("component", "TickerFeed"),
		Engine:   engine,
		Config:   config,
		exchange: newBinanceInstance(),
	}
}

func newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

// Run polls until ctx is cancelled.
func (f *TickerFeed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.Config.PollPeriod)
	defer ticker.Stop()

	f.Log.WithField("period", f.Config.PollPeriod.String()).Info("Ticker feed started")

	for {
		select {
		case <-ctx.Done():
			f.Log.Info("Ticker feed stopped")
			return nil
		case <-ticker.C:
			f.pollOnce(ctx)
		}
	}
}

func (f *TickerFeed) pollOnce(ctx context.Context) {
	symbols := f.Engine.TrailingSymbols()
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}

		price, err := f.fetchLast(symbol)
		if err != nil {
			f.Log.WithError(err).WithField("symbol", symbol).
				Warn("Failed to fetch ticker")
			continue
		}

		f.Engine.OnPriceTick(ctx, symbol, price)
	}
}

func (f *TickerFeed) fetchLast(symbol string) (decimal.Decimal, error) {
	pair := f.currencyPair(symbol)

	tk, err := f.exchange.GetTicker(pair)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(tk.Last), nil
}

// currencyPair maps an engine tick key onto a goex pair. Keys may already
// carry a quote ("BTC_USDT"); bare keys get the configured default quote.
func (f *TickerFeed) currencyPair(symbol string) goex.CurrencyPair {
	base := symbol
	quote := f.Config.Quote

	if i := strings.IndexAny(symbol, "_/"); i > 0 {
		base = symbol[:i]
		quote = symbol[i+1:]
	}

	return goex.NewCurrencyPair(
		goex.Currency{Symbol: strings.ToUpper(base)},
		goex.Currency{Symbol: strings.ToUpper(quote)},
	)
}
