package domain

import "time"

// Candle represents a single OHLC bar. Candle sequences are ordered by
// strictly increasing OpenTime and are append-only once stored.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
}
