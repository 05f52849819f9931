package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// notAvailable is printed for metrics that are undefined.
const notAvailable = "n/a"

// Round2 rounds v half away from zero to two decimals. ok is false when v
// is NaN or infinite.
func Round2(v float64) (rounded float64, ok bool) {
	return roundTo(v, 2)
}

func roundTo(v float64, places int32) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v, false
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64(), true
}

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatMoney formats an amount as "12,345.67", or "n/a" when undefined.
func FormatMoney(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return notAvailable
	}
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	whole := d.Truncate(0)
	cents := d.Sub(whole).Shift(2).IntPart()
	return fmt.Sprintf("%s%s.%02d", sign, FormatInt(int(whole.IntPart())), cents)
}

// FormatPct formats a percentage value, already scaled by 100, as "+12.34%".
func FormatPct(v float64) string {
	r, ok := Round2(v)
	if !ok {
		return notAvailable
	}
	return fmt.Sprintf("%+.2f%%", r)
}

// FormatRatio formats a plain ratio such as the Sharpe ratio.
func FormatRatio(v float64) string {
	r, ok := Round2(v)
	if !ok {
		return notAvailable
	}
	return fmt.Sprintf("%.2f", r)
}
