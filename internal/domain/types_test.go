package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	if MarketUS != "us" || MarketCrypto != "crypto" {
		t.Error("Market constants have unexpected values")
	}
	if TradeSideBuy != "buy" || FillSideSell != "sell" {
		t.Error("side constants have unexpected values")
	}

	sig := Signal{Index: 3, Timestamp: time.Now(), Price: 101.5, Score: -1.2, Value: 1}
	if sig.Value != 1 {
		t.Errorf("sig.Value = %v, want 1", sig.Value)
	}
}

func TestTickMid(t *testing.T) {
	tk := Tick{BidPrice: 99.5, AskPrice: 100.5}
	if got := tk.Mid(); got != 100 {
		t.Errorf("Mid() = %v, want 100", got)
	}
}

func TestFillNotional(t *testing.T) {
	sell := Fill{Side: FillSideSell, Qty: -10, Price: 110}
	if got := sell.Notional(); got != 1100 {
		t.Errorf("Notional() = %v, want 1100", got)
	}
}

func TestPortfolioStateMarketValue(t *testing.T) {
	s := PortfolioState{Price: 50, Holdings: 4, Cash: 800, Total: 1000}
	if got := s.MarketValue(); got != 200 {
		t.Errorf("MarketValue() = %v, want 200", got)
	}
	if s.Cash+s.MarketValue() != s.Total {
		t.Error("cash + market value should equal total")
	}
}
