package connectors

// REST client for the external execution gateway. The gateway owns the
// broker-facing order placement; this side only consumes cumulative fill
// reports and terminal dispositions for the brackets it manages.
// RESTY ONLY + INTERNAL RETRY

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"copytrader/src/bracket"
	"copytrader/src/model"
)

const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// GatewayFill is one fill-report row returned by the gateway.
type GatewayFill struct {
	BracketID      string          `json:"bracketId"`
	FilledQuantity decimal.Decimal `json:"filledQuantity"`
	AvgFillPrice   decimal.Decimal `json:"avgFillPrice"`

	// Disposition is empty while the parent is live; "completed" or
	// "failed" once the gateway considers the bracket finished.
	Disposition string `json:"disposition,omitempty"`
}

type gatewayFillsResponse struct {
	Fills  []GatewayFill `json:"fills"`
	Cursor string        `json:"cursor"`
	Error  string        `json:"error,omitempty"`
}

// ExecutionGatewayClient polls the execution gateway REST API.
type ExecutionGatewayClient struct {
	baseURL string
	http    *resty.Client
}

func NewExecutionGatewayClient(baseURL, apiKey string) *ExecutionGatewayClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	if apiKey != "" {
		httpClient.SetHeader("X-Api-Key", apiKey)
	}

	return &ExecutionGatewayClient{
		baseURL: baseURL,
		http:    httpClient,
	}
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 || code == 408 {
		return true
	}
	return false
}

// FetchFills returns the fill reports accumulated since the cursor, plus the
// next cursor to resume from.
func (c *ExecutionGatewayClient) FetchFills(ctx context.Context, cursor string) ([]GatewayFill, string, error) {
	var out gatewayFillsResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("cursor", cursor).
		SetResult(&out).
		Get("/v1/fills")
	if err != nil {
		return nil, cursor, fmt.Errorf("fills request failed: %w", err)
	}
	if resp.IsError() {
		return nil, cursor, fmt.Errorf("fills request returned status %d", resp.StatusCode())
	}
	if out.Error != "" {
		return nil, cursor, fmt.Errorf("gateway error: %s", out.Error)
	}

	next := out.Cursor
	if next == "" {
		next = cursor
	}
	return out.Fills, next, nil
}

// FillPoller drives the fill reconciler from the gateway's pull API.
type FillPoller struct {
	client *ExecutionGatewayClient
	engine *bracket.Engine
	period time.Duration
	log    *logger.Entry

	cursor string
}

func NewFillPoller(client *ExecutionGatewayClient, engine *bracket.Engine, period time.Duration) *FillPoller {
	return &FillPoller{
		client: client,
		engine: engine,
		period: period,
		log:    logger.WithField("component", "FillPoller"),
	}
}

// Run polls until ctx is cancelled. Poll failures are logged and retried on
// the next tick; the cursor only advances after a successful apply pass.
func (p *FillPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	p.log.WithField("period", p.period.String()).Info("Fill poller started")

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Fill poller stopped")
			return nil
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.log.WithError(err).Error("Fill poll failed")
			}
		}
	}
}

func (p *FillPoller) poll(ctx context.Context) error {
	fills, cursor, err := p.client.FetchFills(ctx, p.cursor)
	if err != nil {
		return err
	}

	for _, fill := range fills {
		if err := p.apply(ctx, fill); err != nil {
			// Do not advance the cursor past a fill the engine could not
			// persist; it is re-delivered on the next poll.
			return err
		}
	}

	p.cursor = cursor
	return nil
}

func (p *FillPoller) apply(ctx context.Context, fill GatewayFill) error {
	switch fill.Disposition {
	case "":
		return p.engine.ApplyFillReport(ctx, bracket.FillReport{
			BracketID:      fill.BracketID,
			FilledQuantity: fill.FilledQuantity,
			AvgFillPrice:   fill.AvgFillPrice,
		})
	case model.BracketStatusCompleted, model.BracketStatusFailed:
		err := p.engine.CloseBracket(ctx, fill.BracketID, fill.Disposition)
		if errors.Is(err, bracket.ErrBracketNotFound) {
			// Already closed or never ours.
			return nil
		}
		return err
	default:
		p.log.WithFields(logger.Fields{
			"bracket_id":  fill.BracketID,
			"disposition": fill.Disposition,
		}).Warn("Unknown fill disposition, skipping")
		return nil
	}
}
