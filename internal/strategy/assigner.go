// Package strategy attributes trade lots to strategy buckets by replaying
// the ordered trade stream against the evolving position ledger.
package strategy

import (
	"github.com/anshugovil/testenfusion/internal/ledger"
	"github.com/anshugovil/testenfusion/internal/models"
)

// Assigner classifies each trade as opening or closing exposure based on the
// ledger state immediately before the trade. It is a state machine per
// instrument key with states LONG (lots > 0), SHORT (lots < 0) and FLAT.
//
// Classification is inherently sequential within a key: each trade's label
// depends on the position produced by all prior trades on that key. The fold
// runs over the full ordered stream rather than per-key groups, which
// preserves within-key order for free.
type Assigner struct {
	book *ledger.Ledger
}

// NewAssigner returns an assigner that starts from a clone of the given
// ledger, leaving the caller's ledger untouched.
func NewAssigner(start *ledger.Ledger) *Assigner {
	return &Assigner{book: start.Clone()}
}

// Assign labels every trade in order and advances the working ledger. A trade
// with zero lots produces no assignment. A trade whose sign crosses through
// flat is split into a closing portion of magnitude |c| (c being the pre-trade
// position) and an opening portion of the remainder; the two portions' signed
// lots sum to the trade's lots.
func (a *Assigner) Assign(trades []models.Trade) ([]models.StrategyAssignment, error) {
	out := make([]models.StrategyAssignment, 0, len(trades))
	for _, t := range trades {
		if t.Key.Underlying == "" || !t.Key.Class.Valid() {
			return nil, &models.InvalidTradeError{Trade: t}
		}
		if t.Lots == 0 {
			continue
		}

		c := a.book.Lots(t.Key)
		q := t.Lots

		switch {
		case c == 0 || sameSign(c, q):
			out = append(out, models.StrategyAssignment{
				Trade: t,
				Label: openLabel(q),
				Phase: models.PhaseOpen,
				Lots:  q,
			})
		case abs(q) <= abs(c):
			// Reduces (or exactly flattens) the existing position. The lot
			// inherits the bucket of the side being unwound.
			out = append(out, models.StrategyAssignment{
				Trade: t,
				Label: openLabel(c),
				Phase: models.PhaseClose,
				Lots:  q,
			})
		default:
			// Sign crossing: close |c| against the old side, open the
			// remainder on the new side.
			out = append(out,
				models.StrategyAssignment{
					Trade: t,
					Label: openLabel(c),
					Phase: models.PhaseClose,
					Lots:  -c,
				},
				models.StrategyAssignment{
					Trade: t,
					Label: openLabel(q),
					Phase: models.PhaseOpen,
					Lots:  q + c,
				},
			)
		}

		a.book.Apply(t)
	}
	return out, nil
}

// Ledger returns the working ledger after all assigned trades, i.e. the
// post-trade position state.
func (a *Assigner) Ledger() *ledger.Ledger { return a.book }

// openLabel maps a direction to the bucket opened on that side.
func openLabel(lots int64) models.Label {
	if lots < 0 {
		return models.LabelFUSH
	}
	return models.LabelFULO
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
