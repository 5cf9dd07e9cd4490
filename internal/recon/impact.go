package recon

import (
	"sort"

	"github.com/anshugovil/testenfusion/internal/instrument"
)

// Impact classifies how the trade batch moved a key's reconciliation state
// between the pre-trade and post-trade runs.
type Impact string

const (
	ImpactImproved     Impact = "improved"
	ImpactDeteriorated Impact = "deteriorated"
	ImpactUnchanged    Impact = "unchanged"
)

// ImpactRecord pairs a key's pre- and post-trade reconciliation outcomes.
type ImpactRecord struct {
	Key        instrument.Key `json:"key"`
	PreStatus  Status         `json:"pre_status"`
	PostStatus Status         `json:"post_status"`
	PreGap     int64          `json:"pre_gap"`
	PostGap    int64          `json:"post_gap"`
	Impact     Impact         `json:"impact"`
}

// AnalyzeImpact pairs pre and post reconciliation records on instrument key
// (the union of both sets: a position opened and fully closed within the run
// may appear in only one phase). A key absent from a phase was flat on both
// sides in that phase, which is a matched state with zero gap.
//
// The impact ordering is the absolute gap: a smaller post gap is improved, a
// larger one deteriorated, an equal one unchanged. Since matched means gap
// zero, any move from a non-matched status to matched is improved and the
// reverse is deteriorated, with no separate status ranking needed.
func AnalyzeImpact(pre, post []Record) []ImpactRecord {
	type pair struct {
		key  instrument.Key
		pre  *Record
		post *Record
	}
	merged := make(map[string]*pair)
	var order []string

	for i := range pre {
		r := &pre[i]
		merged[r.Key.ID()] = &pair{key: r.Key, pre: r}
		order = append(order, r.Key.ID())
	}
	for i := range post {
		r := &post[i]
		if p, ok := merged[r.Key.ID()]; ok {
			p.post = r
		} else {
			merged[r.Key.ID()] = &pair{key: r.Key, post: r}
			order = append(order, r.Key.ID())
		}
	}

	sort.Strings(order)
	out := make([]ImpactRecord, 0, len(order))
	for _, id := range order {
		p := merged[id]

		rec := ImpactRecord{Key: p.key, PreStatus: StatusMatched, PostStatus: StatusMatched}
		if p.pre != nil {
			rec.PreStatus = p.pre.Status
			rec.PreGap = p.pre.Gap()
		}
		if p.post != nil {
			rec.PostStatus = p.post.Status
			rec.PostGap = p.post.Gap()
		}
		switch {
		case rec.PostGap < rec.PreGap:
			rec.Impact = ImpactImproved
		case rec.PostGap > rec.PreGap:
			rec.Impact = ImpactDeteriorated
		default:
			rec.Impact = ImpactUnchanged
		}
		out = append(out, rec)
	}
	return out
}
