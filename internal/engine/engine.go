// Package engine runs the bar-by-bar portfolio ledger of a simulation.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"tradesim/internal/domain"
	"tradesim/internal/sizing"
	"tradesim/internal/stats"
)

// ErrMissingPrice is returned when a bar that must be valued or traded has
// no usable price.
var ErrMissingPrice = errors.New("missing price")

// LedgerConfig holds the execution parameters of a run.
type LedgerConfig struct {
	Capital  float64
	Slippage float64 // fraction of price paid on buys, given up on sells
	Fee      float64 // fraction of traded notional
	LongOnly bool
}

// Result is the output of one ledger pass.
type Result struct {
	States  []domain.PortfolioState
	Fills   []domain.Fill
	Refused int
}

// Ledger folds signal rows into portfolio states. A Ledger holds no state
// between runs and may be shared.
type Ledger struct {
	cfg    LedgerConfig
	risk   *RiskManager
	logger *slog.Logger
}

// NewLedger creates a Ledger. A nil logger uses slog.Default.
func NewLedger(cfg LedgerConfig, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		cfg:    cfg,
		risk:   NewRiskManager(cfg.LongOnly),
		logger: logger.With("component", "ledger"),
	}
}

// Run prepares sizer over signals and folds every row, starting from all
// cash and no holdings. State t depends only on state t-1, the signal row
// and the sizer's target at t.
func (l *Ledger) Run(signals []domain.Signal, sizer sizing.Sizer) (*Result, error) {
	if len(signals) == 0 {
		return nil, errors.New("ledger: no signal rows")
	}
	if l.cfg.Capital <= 0 {
		return nil, fmt.Errorf("ledger: capital must be positive, got %v", l.cfg.Capital)
	}
	if err := sizer.Prepare(signals); err != nil {
		return nil, fmt.Errorf("ledger: prepare sizer: %w", err)
	}

	res := &Result{States: make([]domain.PortfolioState, 0, len(signals))}
	prev := domain.PortfolioState{Cash: l.cfg.Capital, Total: l.cfg.Capital}

	for i, sig := range signals {
		next, fill, err := l.step(i, sig, prev, sizer.Target(i, prev))
		switch {
		case errors.Is(err, ErrExecutionConstraint):
			res.Refused++
			l.logger.Warn("trade refused", "row", i, "timestamp", sig.Timestamp, "error", err)
		case err != nil:
			return nil, err
		}
		if fill != nil {
			res.Fills = append(res.Fills, *fill)
		}
		res.States = append(res.States, next)
		prev = next
	}

	last := res.States[len(res.States)-1]
	l.logger.Debug("ledger complete",
		"rows", len(res.States),
		"fills", len(res.Fills),
		"refused", res.Refused,
		"final_value", last.Total,
	)
	return res, nil
}

// step books row i. A refused trade returns the carried-forward state
// together with the ErrExecutionConstraint that caused it.
func (l *Ledger) step(i int, sig domain.Signal, prev domain.PortfolioState, target float64) (domain.PortfolioState, *domain.Fill, error) {
	price := sig.Price
	validPrice := !math.IsNaN(price) && !math.IsInf(price, 0) && price > 0

	cash, holdings := prev.Cash, prev.Holdings
	change := target - holdings

	var (
		fill    *domain.Fill
		refusal error
	)
	if change != 0 {
		if !validPrice {
			return prev, nil, fmt.Errorf("row %d at %s: trade of %v: %w", i, sig.Timestamp, change, ErrMissingPrice)
		}
		tradePrice := price * (1 + l.cfg.Slippage*stats.Sign(change))
		cost := math.Abs(change) * tradePrice * l.cfg.Fee
		cashAfter := cash - change*tradePrice - cost

		refusal = l.risk.CheckFill(FillProposal{
			Row:       i,
			Cash:      cash,
			Holdings:  holdings,
			Target:    target,
			CashAfter: cashAfter,
		})
		if refusal == nil {
			cash, holdings = cashAfter, target
			side := domain.FillSideBuy
			if change < 0 {
				side = domain.FillSideSell
			}
			fill = &domain.Fill{
				Timestamp: sig.Timestamp,
				Side:      side,
				Qty:       change,
				Price:     tradePrice,
				Cost:      cost,
			}
		}
	}

	if holdings != 0 && !validPrice {
		return prev, nil, fmt.Errorf("row %d at %s: valuing %v shares: %w", i, sig.Timestamp, holdings, ErrMissingPrice)
	}
	total := cash
	if holdings != 0 {
		total += holdings * price
	}

	return domain.PortfolioState{
		Timestamp: sig.Timestamp,
		Price:     price,
		Signal:    sig.Value,
		Target:    target,
		Cash:      cash,
		Holdings:  holdings,
		Total:     total,
		Return:    stats.Div(total, prev.Total) - 1,
	}, fill, refusal
}
