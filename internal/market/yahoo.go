// Package market adapts upstream price providers to model.MarketData.
package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-analyzer/internal/model"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
)

// ErrUnknownSymbol is returned when the provider has no data for a symbol.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Yahoo implements model.MarketData on top of the Yahoo Finance API.
type Yahoo struct {
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahoo creates a Yahoo Finance provider. Bare crypto tickers are mapped
// to their USD pairs.
func NewYahoo() *Yahoo {
	return &Yahoo{
		SymbolMap: map[string]string{
			"BTC":  "BTC-USD",
			"ETH":  "ETH-USD",
			"SOL":  "SOL-USD",
			"DOGE": "DOGE-USD",
			"SPX":  "^GSPC",
		},
	}
}

func (y *Yahoo) Name() string { return "yahoo" }

// Ticker resolves the Yahoo ticker for an internal symbol.
func (y *Yahoo) Ticker(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if mapped, ok := y.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// Quote fetches the latest regular-market quote.
func (y *Yahoo) Quote(ctx context.Context, symbol string) (model.Quote, error) {
	if err := ctx.Err(); err != nil {
		return model.Quote{}, err
	}

	q, err := quote.Get(y.Ticker(symbol))
	if err != nil {
		return model.Quote{}, fmt.Errorf("yahoo quote %s: %w", symbol, err)
	}
	if q == nil {
		return model.Quote{}, fmt.Errorf("yahoo quote %s: %w", symbol, ErrUnknownSymbol)
	}

	name := q.ShortName
	if name == "" {
		name = q.Symbol
	}
	return model.Quote{
		Symbol:        strings.ToUpper(symbol),
		Name:          name,
		Price:         q.RegularMarketPrice,
		Change:        q.RegularMarketChange,
		ChangePercent: q.RegularMarketChangePercent,
		FetchedAt:     time.Now().UTC(),
	}, nil
}

// DailyBars fetches daily bars between from and to, oldest first.
// Bars without a close (halted sessions) are skipped.
func (y *Yahoo) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := &chart.Params{
		Symbol:   y.Ticker(symbol),
		Start:    datetime.New(&from),
		End:      datetime.New(&to),
		Interval: datetime.OneDay,
	}

	var bars []model.Bar
	iter := chart.Get(params)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := iter.Bar()
		closePrice, _ := b.Close.Float64()
		if closePrice <= 0 {
			continue
		}
		open, _ := b.Open.Float64()
		high, _ := b.High.Float64()
		low, _ := b.Low.Float64()
		bars = append(bars, model.Bar{
			Symbol: strings.ToUpper(symbol),
			TS:     model.SessionDate(time.Unix(int64(b.Timestamp), 0)),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: int64(b.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, ErrUnknownSymbol)
	}
	return bars, nil
}
