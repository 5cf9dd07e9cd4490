// Package deliverables computes physical-delivery exposure and intrinsic
// value for a position snapshot, and generates the settlement trades due at
// each expiry.
package deliverables

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/anshugovil/testenfusion/internal/instrument"
	"github.com/anshugovil/testenfusion/internal/models"
	"github.com/anshugovil/testenfusion/internal/quotes"
)

// maxConcurrentQuotes bounds parallel quote lookups per calculation pass.
const maxConcurrentQuotes = 8

// Record is the deliverable and intrinsic-value outcome for one position.
// Known distinguishes a confirmed result from "could not determine": an
// option with no spot price has Known=false, never a silent zero. Intrinsic
// values are in the instrument's native currency; conversion to a reporting
// currency happens in the report layer.
type Record struct {
	Key             instrument.Key  `json:"key"`
	Lots            int64           `json:"lots"`
	Known           bool            `json:"known"`
	SpotKnown       bool            `json:"spot_known"`
	Spot            decimal.Decimal `json:"spot,omitempty"`
	DeliverableLots int64           `json:"deliverable_lots"`
	DeliverableQty  int64           `json:"deliverable_qty"`
	IntrinsicValue  decimal.Decimal `json:"intrinsic_value"`
	Currency        string          `json:"currency"`
}

// Compute classifies a single position. quote may be nil when no spot price
// is available. The dispatch over instrument class is exhaustive: futures and
// equities always deliver their full quantity regardless of price; a call is
// exercised only when spot > strike, a put only when spot < strike, and a
// spot exactly at strike expires worthless for both.
func Compute(pos models.Position, quote *quotes.Quote, currency string) Record {
	rec := Record{
		Key:      pos.Key,
		Lots:     pos.Lots,
		Currency: currency,
	}
	if quote != nil {
		rec.SpotKnown = true
		rec.Spot = quote.Price
		if quote.Currency != "" {
			rec.Currency = quote.Currency
		}
	}

	switch pos.Key.Class {
	case instrument.ClassFuture, instrument.ClassEquity:
		rec.Known = true
		rec.DeliverableLots = pos.Lots
		rec.IntrinsicValue = decimal.Zero
	case instrument.ClassCall:
		if quote == nil {
			return rec
		}
		rec.Known = true
		if quote.Price.GreaterThan(pos.Key.Strike) {
			rec.DeliverableLots = pos.Lots
			rec.IntrinsicValue = intrinsic(quote.Price.Sub(pos.Key.Strike), pos)
		} else {
			rec.IntrinsicValue = decimal.Zero
		}
	case instrument.ClassPut:
		if quote == nil {
			return rec
		}
		rec.Known = true
		if quote.Price.LessThan(pos.Key.Strike) {
			// Exercising a put delivers the underlying away, so the sign
			// flips relative to the option position.
			rec.DeliverableLots = -pos.Lots
			rec.IntrinsicValue = intrinsic(pos.Key.Strike.Sub(quote.Price), pos)
		} else {
			rec.IntrinsicValue = decimal.Zero
		}
	}

	rec.DeliverableQty = rec.DeliverableLots * pos.Key.LotSize
	return rec
}

func intrinsic(moneyness decimal.Decimal, pos models.Position) decimal.Decimal {
	return moneyness.
		Mul(decimal.NewFromInt(pos.Lots)).
		Mul(decimal.NewFromInt(pos.Key.LotSize))
}

// Calculator computes deliverable records for whole snapshots, fetching one
// quote per underlying through the provider.
type Calculator struct {
	provider quotes.Provider
	currency func(underlying string) string
	logger   *logrus.Logger
}

// NewCalculator builds a calculator. currency maps an underlying to its
// native currency tag and may be nil, in which case records carry "INR".
func NewCalculator(provider quotes.Provider, currency func(string) string, logger *logrus.Logger) *Calculator {
	if currency == nil {
		currency = func(string) string { return "INR" }
	}
	return &Calculator{provider: provider, currency: currency, logger: logger}
}

// ComputeAll computes a record per position. Quote lookups run in parallel
// per underlying, bounded by the context: an underlying whose quote does not
// arrive in time yields unknown option records rather than blocking the run.
// Records come back ordered by canonical key.
func (c *Calculator) ComputeAll(ctx context.Context, positions []models.Position) []Record {
	found := c.fetchQuotes(ctx, underlyings(positions))

	records := make([]Record, 0, len(positions))
	for _, pos := range positions {
		var q *quotes.Quote
		if quote, ok := found[pos.Key.Underlying]; ok {
			quote := quote
			q = &quote
		}
		records = append(records, Compute(pos, q, c.currency(pos.Key.Underlying)))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key.ID() < records[j].Key.ID()
	})
	return records
}

func underlyings(positions []models.Position) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range positions {
		if _, ok := seen[p.Key.Underlying]; !ok {
			seen[p.Key.Underlying] = struct{}{}
			out = append(out, p.Key.Underlying)
		}
	}
	return out
}

func (c *Calculator) fetchQuotes(ctx context.Context, symbols []string) map[string]quotes.Quote {
	var mu sync.Mutex
	found := make(map[string]quotes.Quote, len(symbols))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentQuotes)
	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			q, err := c.provider.Spot(ctx, sym)
			if err != nil {
				if !errors.Is(err, quotes.ErrUnavailable) {
					c.logger.WithField("underlying", sym).Warnf("quote lookup failed: %v", err)
				}
				return nil // degrade to unknown, never abort the pass
			}
			mu.Lock()
			found[sym] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return found
}
