package engine

import (
	"errors"
	"fmt"
	"math"
)

// ErrExecutionConstraint is returned by RiskManager.CheckFill when a trade
// would breach the run's execution constraints. The ledger skips such
// trades and counts them.
var ErrExecutionConstraint = errors.New("execution constraint violated")

// cashTolerance absorbs floating point residue when a trade spends exactly
// the available cash.
const cashTolerance = 1e-9

// FillProposal is a trade the ledger is about to book.
type FillProposal struct {
	Row       int
	Cash      float64 // cash before the trade
	Holdings  float64 // holdings before the trade
	Target    float64 // holdings after the trade
	CashAfter float64 // cash after price, slippage and fee
}

// RiskManager enforces the execution constraints of a run. Long-only runs
// may neither hold a negative position nor spend more cash than they have.
type RiskManager struct {
	longOnly bool
}

// NewRiskManager creates a RiskManager. Without longOnly every fill is
// accepted since margin is not modelled.
func NewRiskManager(longOnly bool) *RiskManager {
	return &RiskManager{longOnly: longOnly}
}

// CheckFill evaluates whether the proposed fill complies with the
// configured constraints.
func (rm *RiskManager) CheckFill(p FillProposal) error {
	if !rm.longOnly {
		return nil
	}
	if p.Target < 0 {
		return fmt.Errorf("row %d: short target %v in long-only run: %w", p.Row, p.Target, ErrExecutionConstraint)
	}
	if p.CashAfter < -cashTolerance*math.Max(1, math.Abs(p.Cash)) {
		return fmt.Errorf("row %d: cash would fall to %.2f: %w", p.Row, p.CashAfter, ErrExecutionConstraint)
	}
	return nil
}
