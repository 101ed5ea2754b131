package domain

import (
	"context"
	"time"
)

// Ticker is a live quote snapshot for a pair.
type Ticker struct {
	Pair string
	Ask  float64
	Bid  float64
	Last float64
}

// Balance is the exchange account balance keyed by asset code.
type Balance map[string]float64

// OrderStatus describes an order as reported by the exchange.
type OrderStatus struct {
	ID          string
	Status      string
	Price       float64
	VolumeExec  float64
	Description string
}

// Exchange is the trading venue the session driver talks to.
type Exchange interface {
	// Ticker returns the live quote for the pair.
	Ticker(ctx context.Context, pair string) (*Ticker, error)
	// Candles returns OHLC bars at the given interval since the cursor.
	Candles(ctx context.Context, pair string, interval time.Duration, since time.Time) ([]Candle, error)
	// Balance returns the account balance.
	Balance(ctx context.Context) (Balance, error)
	// AddOrder places a limit order and returns the exchange order ID.
	AddOrder(ctx context.Context, pair string, side Side, volume, price float64) (string, error)
	// QueryOrder fetches the current status of a previously placed order.
	QueryOrder(ctx context.Context, orderID string) (*OrderStatus, error)
}
