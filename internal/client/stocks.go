package client

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/tickstream/internal/model"
)

// TickersResponse from GET /api/stocks/tickers
type TickersResponse struct {
	Tickers []string `json:"tickers"`
}

// HistoryResponse from GET /api/stocks/{ticker}
type HistoryResponse struct {
	Ticker    string      `json:"ticker"`
	Prices    []int64     `json:"prices"`
	Datetimes []time.Time `json:"datetimes"`
}

// LatestResponse from GET /api/stocks/{ticker}/latest
type LatestResponse struct {
	Ticker string `json:"ticker"`
	Price  int64  `json:"price"`
}

// HistoryParams narrows a history query. Zero values use server defaults.
type HistoryParams struct {
	Limit int
	Start time.Time
	End   time.Time
}

// Tickers lists registered instruments.
func (c *Client) Tickers(ctx context.Context) ([]string, error) {
	var resp TickersResponse
	if err := c.get(ctx, "/api/stocks/tickers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tickers, nil
}

// History fetches price history for ticker, most recent first.
func (c *Client) History(ctx context.Context, ticker string, params HistoryParams) (model.History, error) {
	query := url.Values{}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if !params.Start.IsZero() {
		query.Set("start_dt", params.Start.Format(time.RFC3339))
	}
	if !params.End.IsZero() {
		query.Set("end_dt", params.End.Format(time.RFC3339))
	}

	var resp HistoryResponse
	if err := c.get(ctx, "/api/stocks/"+url.PathEscape(ticker), query, &resp); err != nil {
		return model.History{}, err
	}
	return model.History{
		Ticker:     resp.Ticker,
		Prices:     resp.Prices,
		Timestamps: resp.Datetimes,
	}, nil
}

// Latest fetches the reconciled latest price of ticker.
func (c *Client) Latest(ctx context.Context, ticker string) (int64, error) {
	var resp LatestResponse
	if err := c.get(ctx, "/api/stocks/"+url.PathEscape(ticker)+"/latest", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Price, nil
}
