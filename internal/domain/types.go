// Package domain defines the core value types shared by every stage of a
// simulation run: bars, ticks, signals, fills and portfolio states.
package domain

import "time"

// Market identifies the venue family a symbol trades on.
type Market string

const (
	MarketUS     Market = "us"
	MarketCrypto Market = "crypto"
)

// Bar is one timestamped OHLCV observation. Close is the canonical price used
// for valuation and signal inputs.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// TradeSide is the aggressor side of a tick-level trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Tick is a single top-of-book observation with the trade that printed
// alongside it.
type Tick struct {
	Symbol    string
	Timestamp time.Time
	BidPrice  float64
	AskPrice  float64
	BidSize   float64
	AskSize   float64
	Side      TradeSide
	TradeSize float64
}

// Mid returns the midpoint of the quoted bid and ask.
func (t Tick) Mid() float64 { return (t.BidPrice + t.AskPrice) / 2 }

// Signal is the trading indicator attached to one bar of the valuation
// series. Index is the position of that bar in the series the signal was
// computed from.
type Signal struct {
	Index     int
	Timestamp time.Time
	Price     float64
	Score     float64 // indicator value the rule was evaluated on
	Value     float64 // -1, 0, 1 for categorical strategies
}

// FillSide is the direction of a simulated execution.
type FillSide string

const (
	FillSideBuy  FillSide = "buy"
	FillSideSell FillSide = "sell"
)

// Fill is a simulated execution implied by a change in position.
type Fill struct {
	Timestamp time.Time
	Side      FillSide
	Qty       float64 // signed position change
	Price     float64 // executed price after slippage
	Cost      float64 // proportional fee charged
}

// Notional returns the absolute traded value at the executed price.
func (f Fill) Notional() float64 {
	n := f.Qty * f.Price
	if n < 0 {
		return -n
	}
	return n
}

// PortfolioState is the ledger row for one bar.
type PortfolioState struct {
	Timestamp time.Time
	Price     float64
	Signal    float64
	Target    float64
	Cash      float64
	Holdings  float64
	Total     float64
	Return    float64
}

// MarketValue returns the marked value of the held position.
func (s PortfolioState) MarketValue() float64 { return s.Holdings * s.Price }
