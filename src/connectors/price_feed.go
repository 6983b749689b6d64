package connectors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"copytrader/src/bracket"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// PriceTick is one market-data message from the streaming feed.
type PriceTick struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// PriceFeed consumes a WebSocket stream of underlying prices and routes each
// tick to the engine's trailing-stop recalculator.
type PriceFeed struct {
	url    string
	engine *bracket.Engine
	log    *logger.Entry

	dial func(ctx context.Context, url string) (*websocket.Conn, error)
}

func NewPriceFeed(url string, engine *bracket.Engine) *PriceFeed {
	return &PriceFeed{
		url:    url,
		engine: engine,
		log:    logger.WithField("component", "PriceFeed"),
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// Run keeps a connection to the feed alive until ctx is cancelled,
// reconnecting with capped exponential backoff.
func (f *PriceFeed) Run(ctx context.Context) error {
	delay := reconnectBaseDelay

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := f.dial(ctx, f.url)
		if err != nil {
			f.log.WithError(err).WithField("url", f.url).
				Warn("Price feed connect failed, will retry")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		f.log.WithField("url", f.url).Info("Price feed connected")
		delay = reconnectBaseDelay

		f.readLoop(ctx, conn)
		_ = conn.Close()
	}
}

func (f *PriceFeed) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.log.WithError(err).Warn("Price feed read failed, reconnecting")
			}
			return
		}

		var tick PriceTick
		if err := json.Unmarshal(payload, &tick); err != nil {
			f.log.WithError(err).Debug("Discarding malformed price tick")
			continue
		}
		if tick.Symbol == "" {
			continue
		}

		updated := f.engine.OnPriceTick(ctx, tick.Symbol, tick.Price)
		if updated > 0 {
			f.log.WithFields(logger.Fields{
				"symbol":  tick.Symbol,
				"price":   tick.Price.String(),
				"updated": updated,
			}).Debug("Price tick moved trailing stops")
		}
	}
}
