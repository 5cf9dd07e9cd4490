// Package ledger maintains an in-memory mapping from canonical instrument
// key to signed net position, built by replaying trades against a starting
// snapshot.
package ledger

import (
	"sort"

	"github.com/anshugovil/testenfusion/internal/instrument"
	"github.com/anshugovil/testenfusion/internal/models"
)

// Ledger is a working position book. It is not safe for concurrent mutation;
// the pipeline hands each consumer its own snapshot or clone.
type Ledger struct {
	positions map[string]models.Position
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{positions: make(map[string]models.Position)}
}

// FromPositions builds a ledger from a starting snapshot. Duplicate keys are
// summed.
func FromPositions(positions []models.Position) *Ledger {
	l := New()
	for _, p := range positions {
		l.add(p.Key, p.Lots)
	}
	return l
}

func (l *Ledger) add(key instrument.Key, lots int64) {
	id := key.ID()
	pos, ok := l.positions[id]
	if !ok {
		pos = models.Position{Key: key}
	}
	pos.Lots += lots
	// A position reduced to exactly zero stays present as flat.
	l.positions[id] = pos
}

// Apply increments the position for the trade's key by the trade's lots,
// creating the position at zero first if the key is unseen.
func (l *Ledger) Apply(t models.Trade) {
	l.add(t.Key, t.Lots)
}

// ApplyAll applies trades in order.
func (l *Ledger) ApplyAll(trades []models.Trade) {
	for _, t := range trades {
		l.Apply(t)
	}
}

// Lots returns the current signed quantity for a key, zero for unseen keys.
func (l *Ledger) Lots(key instrument.Key) int64 {
	return l.positions[key.ID()].Lots
}

// Len returns the number of tracked keys, flat positions included.
func (l *Ledger) Len() int { return len(l.positions) }

// Clone returns an independent copy. The strategy assigner folds trades over
// a clone so the caller's ledger is left untouched.
func (l *Ledger) Clone() *Ledger {
	c := New()
	for id, p := range l.positions {
		c.positions[id] = p
	}
	return c
}

// Snapshot returns all positions ordered by canonical key ID. The ordering is
// deterministic so downstream diffs and reports are reproducible.
func (l *Ledger) Snapshot() []models.Position {
	out := make([]models.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.ID() < out[j].Key.ID()
	})
	return out
}
