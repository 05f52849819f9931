package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/series"
)

var csvTimeLayouts = []string{
	time.RFC3339Nano,
	time.DateTime,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// LoadBarsCSV reads bars for symbol from the CSV file at path. See
// ReadBarsCSV for the accepted format.
func LoadBarsCSV(path, symbol string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()

	bars, err := ReadBarsCSV(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("reading CSV %s: %w", path, err)
	}
	return bars, nil
}

// ReadBarsCSV parses a price table with a header row naming at least a
// timestamp column (timestamp, date, time or datetime) and close. open,
// high, low and volume are optional; a missing open/high/low takes the
// close. Timestamps are RFC 3339, "2006-01-02 15:04:05", a plain date, or
// Unix seconds. Malformed values are reported as *series.InputError.
func ReadBarsCSV(r io.Reader, symbol string) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, &series.InputError{Symbol: symbol, Index: -1, Reason: "no data rows"}
	}

	cols := map[string]int{}
	for i, name := range records[0] {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "date", "time", "datetime":
			name = "timestamp"
		case "adj close", "adj_close":
			continue
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	tsCol, ok := cols["timestamp"]
	if !ok {
		return nil, &series.InputError{Symbol: symbol, Index: -1, Reason: "no timestamp column"}
	}
	closeCol, ok := cols["close"]
	if !ok {
		return nil, &series.InputError{Symbol: symbol, Index: -1, Reason: "no close column"}
	}

	bars := make([]domain.Bar, 0, len(records)-1)
	for i, row := range records[1:] {
		bad := func(reason string) error {
			return &series.InputError{Symbol: symbol, Index: i, Reason: reason}
		}
		ts, err := parseCSVTime(field(row, tsCol))
		if err != nil {
			return nil, bad(err.Error())
		}
		c, err := parseCSVFloat(field(row, closeCol))
		if err != nil {
			return nil, bad("close: " + err.Error())
		}
		bar := domain.Bar{Symbol: symbol, Timestamp: ts, Open: c, High: c, Low: c, Close: c}
		for name, dst := range map[string]*float64{"open": &bar.Open, "high": &bar.High, "low": &bar.Low} {
			if col, ok := cols[name]; ok && field(row, col) != "" {
				if *dst, err = parseCSVFloat(field(row, col)); err != nil {
					return nil, bad(name + ": " + err.Error())
				}
			}
		}
		if col, ok := cols["volume"]; ok && field(row, col) != "" {
			v, err := parseCSVFloat(field(row, col))
			if err != nil {
				return nil, bad("volume: " + err.Error())
			}
			bar.Volume = int64(math.Round(v))
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseCSVFloat(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing value")
	}
	return strconv.ParseFloat(s, 64)
}

func parseCSVTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// LoadTicksCSV reads ticks for symbol from the CSV file at path. See
// ReadTicksCSV for the accepted format.
func LoadTicksCSV(path, symbol string) ([]domain.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()

	ticks, err := ReadTicksCSV(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("reading CSV %s: %w", path, err)
	}
	return ticks, nil
}

// ReadTicksCSV parses a tick file with the columns timestamp, bid_price,
// ask_price, bid_size, ask_size, side and trade_size. side is "buy" or
// "sell"; sizes and side may be empty for quote-only rows.
func ReadTicksCSV(r io.Reader, symbol string) ([]domain.Tick, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, &series.InputError{Symbol: symbol, Index: -1, Reason: "no data rows"}
	}

	cols := map[string]int{}
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"timestamp", "bid_price", "ask_price"} {
		if _, ok := cols[required]; !ok {
			return nil, &series.InputError{Symbol: symbol, Index: -1, Reason: "no " + required + " column"}
		}
	}

	ticks := make([]domain.Tick, 0, len(records)-1)
	for i, row := range records[1:] {
		bad := func(reason string) error {
			return &series.InputError{Symbol: symbol, Index: i, Reason: reason}
		}
		ts, err := parseCSVTime(field(row, cols["timestamp"]))
		if err != nil {
			return nil, bad(err.Error())
		}
		tk := domain.Tick{Symbol: symbol, Timestamp: ts}
		for name, dst := range map[string]*float64{
			"bid_price":  &tk.BidPrice,
			"ask_price":  &tk.AskPrice,
			"bid_size":   &tk.BidSize,
			"ask_size":   &tk.AskSize,
			"trade_size": &tk.TradeSize,
		} {
			col, ok := cols[name]
			if !ok || field(row, col) == "" {
				continue
			}
			if *dst, err = parseCSVFloat(field(row, col)); err != nil {
				return nil, bad(name + ": " + err.Error())
			}
		}
		if col, ok := cols["side"]; ok {
			switch side := strings.ToLower(field(row, col)); side {
			case "":
			case string(domain.TradeSideBuy), string(domain.TradeSideSell):
				tk.Side = domain.TradeSide(side)
			default:
				return nil, bad(fmt.Sprintf("unknown side %q", side))
			}
		}
		ticks = append(ticks, tk)
	}
	return ticks, nil
}
