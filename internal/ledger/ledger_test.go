package ledger

import (
	"testing"
	"time"

	"github.com/anshugovil/testenfusion/internal/instrument"
	"github.com/anshugovil/testenfusion/internal/models"
)

func futKey(underlying string) instrument.Key {
	return instrument.Key{
		Underlying: underlying,
		Class:      instrument.ClassFuture,
		Expiry:     instrument.Expiry{Year: 2025, Month: time.September},
		LotSize:    50,
	}
}

func TestFromPositions_SumsDuplicates(t *testing.T) {
	key := futKey("NIFTY")
	l := FromPositions([]models.Position{
		{Key: key, Lots: 10},
		{Key: key, Lots: -3},
		{Key: futKey("BANKNIFTY"), Lots: 5},
	})

	if got := l.Lots(key); got != 7 {
		t.Errorf("Lots = %d, want 7", got)
	}
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
}

func TestApplyAll_OrderIndependentTotals(t *testing.T) {
	key := futKey("NIFTY")
	trades := []models.Trade{
		{Key: key, Lots: 10, Seq: 1},
		{Key: key, Lots: -25, Seq: 2},
		{Key: key, Lots: 5, Seq: 3},
	}

	forward := New()
	forward.ApplyAll(trades)

	reversed := New()
	for i := len(trades) - 1; i >= 0; i-- {
		reversed.Apply(trades[i])
	}

	if forward.Lots(key) != reversed.Lots(key) {
		t.Errorf("net lots differ by order: %d vs %d", forward.Lots(key), reversed.Lots(key))
	}
	if forward.Lots(key) != -10 {
		t.Errorf("net lots = %d, want -10", forward.Lots(key))
	}
}

func TestApply_FlatPositionStaysTracked(t *testing.T) {
	key := futKey("NIFTY")
	l := FromPositions([]models.Position{{Key: key, Lots: 10}})
	l.Apply(models.Trade{Key: key, Lots: -10})

	if got := l.Lots(key); got != 0 {
		t.Errorf("Lots = %d, want 0", got)
	}
	if l.Len() != 1 {
		t.Errorf("flat position was pruned, Len = %d, want 1", l.Len())
	}

	snap := l.Snapshot()
	if len(snap) != 1 || snap[0].Lots != 0 {
		t.Errorf("Snapshot = %+v, want one flat position", snap)
	}
}

func TestClone_Isolation(t *testing.T) {
	key := futKey("NIFTY")
	orig := FromPositions([]models.Position{{Key: key, Lots: 10}})

	c := orig.Clone()
	c.Apply(models.Trade{Key: key, Lots: 5})

	if orig.Lots(key) != 10 {
		t.Errorf("original mutated through clone: %d", orig.Lots(key))
	}
	if c.Lots(key) != 15 {
		t.Errorf("clone Lots = %d, want 15", c.Lots(key))
	}
}

func TestSnapshot_Sorted(t *testing.T) {
	l := FromPositions([]models.Position{
		{Key: futKey("NIFTY"), Lots: 1},
		{Key: futKey("BANKNIFTY"), Lots: 2},
		{Key: instrument.Key{Underlying: "ACC", Class: instrument.ClassEquity, LotSize: 1}, Lots: 3},
	})

	snap := l.Snapshot()
	for i := 1; i < len(snap); i++ {
		if snap[i-1].Key.ID() >= snap[i].Key.ID() {
			t.Fatalf("snapshot not sorted: %q before %q", snap[i-1].Key.ID(), snap[i].Key.ID())
		}
	}
}
