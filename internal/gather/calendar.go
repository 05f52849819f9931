package gather

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"tradesim/internal/config"
)

var _ tradingCalendar = (*alpacaCalendar)(nil)

// tradingCalendar lists the session dates (YYYY-MM-DD) between start and
// end.
type tradingCalendar interface {
	TradingDays(start, end time.Time) ([]string, error)
}

// alpacaCalendar reads the market calendar from the Alpaca trading API.
type alpacaCalendar struct {
	client *alpaca.Client
}

func newAlpacaCalendar(cfg config.Alpaca) *alpacaCalendar {
	return &alpacaCalendar{client: alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})}
}

func (c *alpacaCalendar) TradingDays(start, end time.Time) ([]string, error) {
	calendar, err := c.client.GetCalendar(alpaca.GetCalendarRequest{
		Start: start,
		End:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetCalendar: %w", err)
	}
	days := make([]string, len(calendar))
	for i, day := range calendar {
		days[i] = day.Date
	}
	return days, nil
}

// latestFinishedTradingDay returns the most recent trading day whose session
// has ended, taken as 20:05 ET so that extended-hours bars have settled.
func latestFinishedTradingDay(cal tradingCalendar, now time.Time) (time.Time, error) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}
	now = now.In(et)

	days, err := cal.TradingDays(now.AddDate(0, 0, -7), now)
	if err != nil {
		return time.Time{}, err
	}
	if len(days) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}

	today := now.Format(time.DateOnly)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, et)

	for i := len(days) - 1; i >= 0; i-- {
		if days[i] == today {
			if now.After(cutoff) {
				return time.Parse(time.DateOnly, days[i])
			}
			continue
		}
		if days[i] < today {
			return time.Parse(time.DateOnly, days[i])
		}
	}
	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
