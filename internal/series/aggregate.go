package series

import (
	"fmt"
	"math"
	"sort"
	"time"

	"tradesim/internal/domain"
)

// Bucket is one fixed-width time bucket of aggregated tick data. The embedded
// bar carries mid-price OHLC and traded volume; the remaining fields are the
// microstructure features observed over the bucket.
type Bucket struct {
	domain.Bar
	Imbalance  float64 // order-book imbalance of the last tick
	TradeFlow  float64 // signed traded size, buys positive
	Spread     float64 // mean quoted spread
	TradeCount int64
}

// AggregateTicks groups ticks into buckets of the given width. A bucket
// starts at floor(ts/width)*width and only buckets containing at least one
// tick are emitted. Ticks need not be sorted.
func AggregateTicks(symbol string, ticks []domain.Tick, width time.Duration) ([]Bucket, error) {
	if width <= 0 {
		return nil, fmt.Errorf("aggregate ticks: bucket width must be positive, got %s", width)
	}
	if len(ticks) == 0 {
		return nil, &InputError{Symbol: symbol, Index: -1, Reason: "no ticks"}
	}

	sorted := make([]domain.Tick, len(ticks))
	copy(sorted, ticks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var (
		out       []Bucket
		cur       *Bucket
		spreadSum float64
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Spread = spreadSum / float64(cur.TradeCount)
		cur.Bar.TradeCount = cur.TradeCount
		out = append(out, *cur)
	}

	for i, tk := range sorted {
		mid := tk.Mid()
		if math.IsNaN(mid) || mid <= 0 {
			return nil, &InputError{Symbol: symbol, Index: i, Reason: "missing bid/ask"}
		}
		start := tk.Timestamp.Truncate(width)
		if cur == nil || !start.Equal(cur.Timestamp) {
			flush()
			cur = &Bucket{Bar: domain.Bar{
				Symbol:    symbol,
				Timestamp: start,
				Open:      mid,
				High:      mid,
				Low:       mid,
			}}
			spreadSum = 0
		}
		cur.High = math.Max(cur.High, mid)
		cur.Low = math.Min(cur.Low, mid)
		cur.Close = mid
		cur.Volume += int64(tk.TradeSize)
		cur.TradeCount++
		cur.Imbalance = orderBookImbalance(tk)
		spreadSum += tk.AskPrice - tk.BidPrice
		switch tk.Side {
		case domain.TradeSideBuy:
			cur.TradeFlow += tk.TradeSize
		case domain.TradeSideSell:
			cur.TradeFlow -= tk.TradeSize
		}
	}
	flush()
	return out, nil
}

// BucketBars extracts the bar column of buckets, ready for New.
func BucketBars(buckets []Bucket) []domain.Bar {
	bars := make([]domain.Bar, len(buckets))
	for i, b := range buckets {
		bars[i] = b.Bar
	}
	return bars
}

func orderBookImbalance(tk domain.Tick) float64 {
	return (tk.BidSize - tk.AskSize) / (tk.BidSize + tk.AskSize + 1e-9)
}
