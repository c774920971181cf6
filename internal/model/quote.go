package model

import "time"

// Quote is a point-in-time market snapshot for one symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	FetchedAt     time.Time `json:"fetchedAt"`
}
