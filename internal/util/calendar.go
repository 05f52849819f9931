package util

import (
	"fmt"
	"strconv"
	"strings"

	"tradesim/internal/domain"
)

// Session lengths used to annualise per-bar statistics.
const (
	usTradingDays       = 252
	usMinutesPerDay     = 390 // 09:30-16:00 ET
	cryptoTradingDays   = 365
	cryptoMinutesPerDay = 24 * 60
)

// BarsPerYear returns the number of bars of the given timeframe in one
// trading year for market. Timeframes follow the Alpaca notation: an
// optional integer multiplier followed by Min, Hour, Day, Week or Month
// ("1Day", "15Min", "Hour").
func BarsPerYear(market domain.Market, timeframe string) (float64, error) {
	n, unit, err := ParseTimeframe(timeframe)
	if err != nil {
		return 0, err
	}

	days, minutes := float64(usTradingDays), float64(usMinutesPerDay)
	if market == domain.MarketCrypto {
		days, minutes = cryptoTradingDays, cryptoMinutesPerDay
	}

	var perYear float64
	switch unit {
	case "min":
		perYear = days * minutes
	case "hour":
		perYear = days * minutes / 60
	case "day":
		perYear = days
	case "week":
		perYear = 52
	case "month":
		perYear = 12
	}
	return perYear / float64(n), nil
}

// ParseTimeframe splits an Alpaca-style timeframe into its multiplier and
// canonical unit: "min", "hour", "day", "week" or "month".
func ParseTimeframe(tf string) (int, string, error) {
	s := strings.ToLower(strings.TrimSpace(tf))
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n := 1
	if i > 0 {
		v, err := strconv.Atoi(s[:i])
		if err != nil || v <= 0 {
			return 0, "", fmt.Errorf("invalid timeframe %q", tf)
		}
		n = v
	}
	unit := strings.TrimSuffix(s[i:], "s")
	switch unit {
	case "min", "t":
		return n, "min", nil
	case "hour", "h":
		return n, "hour", nil
	case "day", "d":
		return n, "day", nil
	case "week", "w":
		return n, "week", nil
	case "month", "m":
		return n, "month", nil
	}
	return 0, "", fmt.Errorf("invalid timeframe %q", tf)
}
