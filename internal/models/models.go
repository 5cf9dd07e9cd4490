// Package models holds the shared position and trade data model used across
// the ledger, strategy assignment, deliverables and reconciliation engines.
package models

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/anshugovil/testenfusion/internal/instrument"
)

// Position is a signed net quantity in lots against a canonical instrument
// key. Lots > 0 is long, < 0 is short, 0 is flat. A flat position is still a
// position; it is not pruned from snapshots.
type Position struct {
	Key  instrument.Key `json:"key"`
	Lots int64          `json:"lots"`
}

// Qty returns the position size in units (lots times contract lot size).
func (p Position) Qty() int64 { return p.Lots * p.Key.LotSize }

// Direction returns "Long", "Short" or "Flat".
func (p Position) Direction() string {
	switch {
	case p.Lots > 0:
		return "Long"
	case p.Lots < 0:
		return "Short"
	default:
		return "Flat"
	}
}

// Trade is one executed trade lot. Seq is the position of the trade in the
// original file; strategy assignment replays trades in Seq order, so it is
// significant. Trades are immutable once parsed.
type Trade struct {
	Key   instrument.Key  `json:"key"`
	Lots  int64           `json:"lots"`
	Seq   int             `json:"seq"`
	Price decimal.Decimal `json:"price"`
	Raw   string          `json:"raw,omitempty"`
}

// Side returns "Buy" for positive lots and "Sell" for negative.
func (t Trade) Side() string {
	if t.Lots < 0 {
		return "Sell"
	}
	return "Buy"
}

// Label is a strategy bucket. Lots opened long land in FULO, lots opened
// short in FUSH; closing trades inherit the label of the side they unwind.
type Label string

const (
	LabelFULO Label = "FULO"
	LabelFUSH Label = "FUSH"
)

// Phase says whether an assignment portion opens new exposure or closes
// existing exposure.
type Phase string

const (
	PhaseOpen  Phase = "open"
	PhaseClose Phase = "close"
)

// StrategyAssignment attributes all or part of a trade to a strategy bucket.
// A trade that crosses through flat yields two assignments (the closing
// portion and the opening portion); their signed Lots always sum to the
// trade's original Lots.
type StrategyAssignment struct {
	Trade Trade `json:"trade"`
	Label Label `json:"label"`
	Phase Phase `json:"phase"`
	Lots  int64 `json:"lots"`
}

// Side returns "Buy" or "Sell" for the assigned portion.
func (a StrategyAssignment) Side() string {
	if a.Lots < 0 {
		return "Sell"
	}
	return "Buy"
}

// InvalidTradeError is a defensive assertion: it fires when a trade reaches
// the assigner without a usable instrument key, which means upstream
// normalization was skipped.
type InvalidTradeError struct {
	Trade Trade
}

func (e *InvalidTradeError) Error() string {
	return fmt.Sprintf("trade seq %d has no normalized instrument key (raw %q)", e.Trade.Seq, e.Trade.Raw)
}
