package model

import "time"

// Bar is one daily OHLCV bar for a symbol. Prices are in the quote currency.
type Bar struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"` // session date, UTC midnight
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Closes extracts closing prices in the order given.
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// SessionDate truncates t to its UTC calendar day.
func SessionDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
