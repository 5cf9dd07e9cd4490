// Package recon reconciles the internally computed position ledger against
// the externally supplied PMS ledger and classifies how a trade batch moved
// each discrepancy.
package recon

import (
	"sort"

	"github.com/anshugovil/testenfusion/internal/instrument"
	"github.com/anshugovil/testenfusion/internal/models"
)

// Status classifies one instrument key across the two ledgers.
type Status string

const (
	StatusMatched           Status = "matched"
	StatusMismatch          Status = "mismatch"
	StatusMissingInExternal Status = "missing_in_external"
	StatusMissingInInternal Status = "missing_in_internal"
)

// Record is the reconciliation outcome for one instrument key. Internal and
// External are the signed quantities on each side; the Present flags record
// whether the key existed on that side at all. Diff is Internal minus
// External, with an absent side counted as zero.
type Record struct {
	Key             instrument.Key `json:"key"`
	Internal        int64          `json:"internal"`
	External        int64          `json:"external"`
	InternalPresent bool           `json:"internal_present"`
	ExternalPresent bool           `json:"external_present"`
	Diff            int64          `json:"diff"`
	Status          Status         `json:"status"`
}

// Gap is the absolute quantity discrepancy. It is the severity measure used
// for impact comparison: total, deterministic, zero iff matched.
func (r Record) Gap() int64 {
	if r.Diff < 0 {
		return -r.Diff
	}
	return r.Diff
}

// Reconcile compares two position snapshots keyed on canonical instrument
// identity and returns one record per key in the union of both key sets,
// ordered by key.
//
// A key that is flat on one side and absent on the other counts as matched: a
// quantity of zero and a missing key mean the same thing for matching
// purposes. The missing_in_* statuses are reserved for keys with real
// exposure that the other side does not carry at all.
func Reconcile(internal, external []models.Position) []Record {
	type side struct {
		key     instrument.Key
		lots    int64
		present bool
	}
	merged := make(map[string]*struct{ in, ex side })
	var order []string

	at := func(id string) *struct{ in, ex side } {
		m, ok := merged[id]
		if !ok {
			m = &struct{ in, ex side }{}
			merged[id] = m
			order = append(order, id)
		}
		return m
	}
	for _, p := range internal {
		m := at(p.Key.ID())
		m.in = side{key: p.Key, lots: m.in.lots + p.Lots, present: true}
	}
	for _, p := range external {
		m := at(p.Key.ID())
		m.ex = side{key: p.Key, lots: m.ex.lots + p.Lots, present: true}
	}

	sort.Strings(order)
	records := make([]Record, 0, len(order))
	for _, id := range order {
		m := merged[id]
		key := m.in.key
		if !m.in.present {
			key = m.ex.key
		}
		rec := Record{
			Key:             key,
			Internal:        m.in.lots,
			External:        m.ex.lots,
			InternalPresent: m.in.present,
			ExternalPresent: m.ex.present,
			Diff:            m.in.lots - m.ex.lots,
		}
		switch {
		case rec.Diff == 0:
			rec.Status = StatusMatched
		case !m.ex.present:
			rec.Status = StatusMissingInExternal
		case !m.in.present:
			rec.Status = StatusMissingInInternal
		default:
			rec.Status = StatusMismatch
		}
		records = append(records, rec)
	}
	return records
}

// Summary counts records per status.
type Summary struct {
	Total             int `json:"total"`
	Matched           int `json:"matched"`
	Mismatched        int `json:"mismatched"`
	MissingInExternal int `json:"missing_in_external"`
	MissingInInternal int `json:"missing_in_internal"`
}

// Summarize tallies a reconciliation run.
func Summarize(records []Record) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case StatusMatched:
			s.Matched++
		case StatusMismatch:
			s.Mismatched++
		case StatusMissingInExternal:
			s.MissingInExternal++
		case StatusMissingInInternal:
			s.MissingInInternal++
		}
	}
	return s
}
