package deliverables

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/anshugovil/testenfusion/internal/instrument"
	"github.com/anshugovil/testenfusion/internal/models"
	"github.com/anshugovil/testenfusion/internal/quotes"
)

// Strategy bucket for the cash legs generated by physical settlement.
const cashStrategy = "EQLO2"

// Statutory transaction tax rates for physically settled contracts.
var (
	futSTTRate   = decimal.RequireFromString("0.001")   // 0.1% of consideration
	futStampRate = decimal.RequireFromString("0.00002") // 0.002% of consideration
	optSTTRate   = decimal.RequireFromString("0.00125") // 0.125% of intrinsic, long exercises only
	optStampRate = decimal.RequireFromString("0.00003") // 0.003% of strike notional
)

// SettlementTrade is one trade generated by expiry processing: either the
// derivative leg that closes the expiring contract, or the cash leg that
// books the resulting stock delivery.
type SettlementTrade struct {
	Underlying string            `json:"underlying"`
	Symbol     string            `json:"symbol"`
	Expiry     instrument.Expiry `json:"expiry,omitempty"`
	Side       string            `json:"side"` // Buy | Sell
	Strategy   string            `json:"strategy"`
	Lots       int64             `json:"lots"`
	Qty        int64             `json:"qty"`
	Price      decimal.Decimal   `json:"price"`
	Kind       string            `json:"kind"` // FUT | CALL | PUT | CASH
	Strike     decimal.Decimal   `json:"strike,omitempty"`
	LotSize    int64             `json:"lot_size,omitempty"`
	// Note marks exercise ("E") or assignment ("A") on physically settled
	// option legs.
	Note      string          `json:"note,omitempty"`
	STT       decimal.Decimal `json:"stt"`
	StampDuty decimal.Decimal `json:"stamp_duty"`
	Taxes     decimal.Decimal `json:"taxes"`
}

// CashNet is the netted delivery obligation per underlying within one expiry.
type CashNet struct {
	Underlying    string          `json:"underlying"`
	NetQty        int64           `json:"net_qty"`
	Consideration decimal.Decimal `json:"consideration"`
	STT           decimal.Decimal `json:"stt"`
	StampDuty     decimal.Decimal `json:"stamp_duty"`
	Taxes         decimal.Decimal `json:"taxes"`
}

// ExpiryResult gathers everything generated for a single expiry month.
type ExpiryResult struct {
	Expiry      instrument.Expiry `json:"expiry"`
	Derivatives []SettlementTrade `json:"derivatives"`
	Cash        []SettlementTrade `json:"cash"`
	CashSummary []CashNet         `json:"cash_summary"`
	Skipped     []string          `json:"skipped,omitempty"`
}

// Generator produces settlement trades for expiring positions.
type Generator struct {
	provider quotes.Provider
	isIndex  func(underlying string) bool
	logger   *logrus.Logger
}

// NewGenerator builds a generator. isIndex reports whether an underlying is
// an index product (cash-settled, never physically delivered); nil means no
// underlyings are indices.
func NewGenerator(provider quotes.Provider, isIndex func(string) bool, logger *logrus.Logger) *Generator {
	if isIndex == nil {
		isIndex = func(string) bool { return false }
	}
	return &Generator{provider: provider, isIndex: isIndex, logger: logger}
}

// GenerateByExpiry groups derivative positions by expiry month and emits the
// closing derivative trades plus cash delivery legs per group. Positions with
// no available spot price are listed in Skipped (with a reason) rather than
// failing the group. Equity positions have no expiry and are ignored.
// Results come back ordered by expiry.
func (g *Generator) GenerateByExpiry(ctx context.Context, positions []models.Position) []ExpiryResult {
	groups := make(map[instrument.Expiry][]models.Position)
	for _, p := range positions {
		if p.Key.Class == instrument.ClassEquity || p.Lots == 0 {
			continue
		}
		groups[p.Key.Expiry] = append(groups[p.Key.Expiry], p)
	}

	expiries := make([]instrument.Expiry, 0, len(groups))
	for e := range groups {
		expiries = append(expiries, e)
	}
	sort.Slice(expiries, func(i, j int) bool {
		if expiries[i].Year != expiries[j].Year {
			return expiries[i].Year < expiries[j].Year
		}
		return expiries[i].Month < expiries[j].Month
	})

	found := g.fetchQuotes(ctx, groups)

	results := make([]ExpiryResult, 0, len(expiries))
	for _, exp := range expiries {
		res := ExpiryResult{Expiry: exp}
		for _, pos := range groups[exp] {
			quote, ok := found[pos.Key.Underlying]
			if !ok {
				res.Skipped = append(res.Skipped,
					fmt.Sprintf("%s: no price available", pos.Key.ID()))
				continue
			}
			deriv, cash := g.settle(pos, quote.Price)
			res.Derivatives = append(res.Derivatives, deriv)
			if cash != nil {
				res.Cash = append(res.Cash, *cash)
			}
		}
		res.CashSummary = netCash(res.Cash)
		results = append(results, res)
	}
	return results
}

func (g *Generator) fetchQuotes(ctx context.Context, groups map[instrument.Expiry][]models.Position) map[string]quotes.Quote {
	var all []models.Position
	for _, ps := range groups {
		all = append(all, ps...)
	}
	calc := Calculator{provider: g.provider, logger: g.logger}
	return calc.fetchQuotes(ctx, underlyings(all))
}

// settle produces the derivative closing trade and, for physically delivered
// contracts, the cash leg.
func (g *Generator) settle(pos models.Position, last decimal.Decimal) (SettlementTrade, *SettlementTrade) {
	if pos.Key.Class == instrument.ClassFuture {
		return g.settleFuture(pos, last)
	}
	return g.settleOption(pos, last)
}

func (g *Generator) settleFuture(pos models.Position, last decimal.Decimal) (SettlementTrade, *SettlementTrade) {
	isIndex := g.isIndex(pos.Key.Underlying)

	deriv := SettlementTrade{
		Underlying: pos.Key.Underlying,
		Symbol:     pos.Key.ID(),
		Expiry:     pos.Key.Expiry,
		Side:       closingSide(pos.Lots),
		Strategy:   string(directionLabel(pos.Lots)),
		Lots:       abs64(pos.Lots),
		Qty:        abs64(pos.Lots) * pos.Key.LotSize,
		Price:      last,
		Kind:       string(instrument.ClassFuture),
		LotSize:    pos.Key.LotSize,
	}

	if isIndex {
		return deriv, nil // index futures cash-settle, no stock delivery
	}

	qty := abs64(pos.Lots) * pos.Key.LotSize
	consideration := decimal.NewFromInt(qty).Mul(last)
	stt := consideration.Mul(futSTTRate)
	stamp := consideration.Mul(futStampRate)

	cash := SettlementTrade{
		Underlying: pos.Key.Underlying,
		Symbol:     pos.Key.Underlying,
		Side:       openingSide(pos.Lots),
		Strategy:   cashStrategy,
		Qty:        qty,
		Price:      last,
		Kind:       "CASH",
		STT:        stt.Round(2),
		StampDuty:  stamp.Round(2),
		Taxes:      stt.Add(stamp).Round(2),
	}
	return deriv, &cash
}

func (g *Generator) settleOption(pos models.Position, last decimal.Decimal) (SettlementTrade, *SettlementTrade) {
	isIndex := g.isIndex(pos.Key.Underlying)
	isCall := pos.Key.Class == instrument.ClassCall
	itm := optionITM(pos.Key, last)

	label := directionLabel(pos.Lots)
	if !isCall {
		// Short puts carry long-side exposure and vice versa.
		label = oppositeLabel(label)
	}

	// Index options settle to cash at intrinsic value; physically delivered
	// options close at zero and settle through the cash leg instead.
	derivPrice := decimal.Zero
	if isIndex && itm {
		if isCall {
			derivPrice = last.Sub(pos.Key.Strike)
		} else {
			derivPrice = pos.Key.Strike.Sub(last)
		}
	}

	deriv := SettlementTrade{
		Underlying: pos.Key.Underlying,
		Symbol:     pos.Key.ID(),
		Expiry:     pos.Key.Expiry,
		Side:       closingSide(pos.Lots),
		Strategy:   string(label),
		Lots:       abs64(pos.Lots),
		Qty:        abs64(pos.Lots) * pos.Key.LotSize,
		Price:      derivPrice,
		Kind:       string(pos.Key.Class),
		Strike:     pos.Key.Strike,
		LotSize:    pos.Key.LotSize,
	}
	if itm && !isIndex {
		if deriv.Side == "Buy" {
			deriv.Note = "A" // short position assigned, buying back
		} else {
			deriv.Note = "E" // long position exercised
		}
	}

	if !itm || isIndex {
		return deriv, nil
	}

	qty := abs64(pos.Lots) * pos.Key.LotSize
	var side string
	var intrinsicPerUnit decimal.Decimal
	if isCall {
		// Long calls take delivery at strike; short calls deliver at strike.
		side = openingSide(pos.Lots)
		intrinsicPerUnit = last.Sub(pos.Key.Strike)
	} else {
		// Long puts deliver stock away at strike; short puts take delivery.
		side = closingSide(pos.Lots)
		intrinsicPerUnit = pos.Key.Strike.Sub(last)
	}

	// Only long options being exercised pay STT and stamp duty; assignments
	// on the short side are untaxed.
	stt, stamp := decimal.Zero, decimal.Zero
	if pos.Lots > 0 {
		if intrinsicPerUnit.Sign() > 0 {
			stt = decimal.NewFromInt(qty).Mul(intrinsicPerUnit).Mul(optSTTRate)
		}
		stamp = decimal.NewFromInt(qty).Mul(pos.Key.Strike).Mul(optStampRate)
	}

	note := "A"
	if pos.Lots > 0 {
		note = "E"
	}

	cash := SettlementTrade{
		Underlying: pos.Key.Underlying,
		Symbol:     pos.Key.Underlying,
		Side:       side,
		Strategy:   cashStrategy,
		Qty:        qty,
		Price:      pos.Key.Strike,
		Kind:       "CASH",
		Note:       note,
		STT:        stt.Round(2),
		StampDuty:  stamp.Round(2),
		Taxes:      stt.Add(stamp).Round(2),
	}
	return deriv, &cash
}

func optionITM(key instrument.Key, spot decimal.Decimal) bool {
	switch key.Class {
	case instrument.ClassCall:
		return spot.GreaterThan(key.Strike)
	case instrument.ClassPut:
		return spot.LessThan(key.Strike)
	default:
		return false
	}
}

// netCash nets the cash legs per underlying: buys minus sells, with summed
// taxes. Ordered by underlying.
func netCash(cash []SettlementTrade) []CashNet {
	byUnderlying := make(map[string]*CashNet)
	var order []string
	for _, c := range cash {
		net, ok := byUnderlying[c.Underlying]
		if !ok {
			net = &CashNet{Underlying: c.Underlying}
			byUnderlying[c.Underlying] = net
			order = append(order, c.Underlying)
		}
		consideration := decimal.NewFromInt(c.Qty).Mul(c.Price)
		if c.Side == "Buy" {
			net.NetQty += c.Qty
			net.Consideration = net.Consideration.Add(consideration)
		} else {
			net.NetQty -= c.Qty
			net.Consideration = net.Consideration.Sub(consideration)
		}
		net.STT = net.STT.Add(c.STT)
		net.StampDuty = net.StampDuty.Add(c.StampDuty)
		net.Taxes = net.Taxes.Add(c.Taxes)
	}

	sort.Strings(order)
	out := make([]CashNet, 0, len(order))
	for _, u := range order {
		n := byUnderlying[u]
		n.Consideration = n.Consideration.Round(2)
		out = append(out, *n)
	}
	return out
}

// closingSide is the side that closes a position of the given sign.
func closingSide(lots int64) string {
	if lots > 0 {
		return "Sell"
	}
	return "Buy"
}

// openingSide is the side matching the position's own direction.
func openingSide(lots int64) string {
	if lots > 0 {
		return "Buy"
	}
	return "Sell"
}

func directionLabel(lots int64) models.Label {
	if lots > 0 {
		return models.LabelFULO
	}
	return models.LabelFUSH
}

func oppositeLabel(l models.Label) models.Label {
	if l == models.LabelFULO {
		return models.LabelFUSH
	}
	return models.LabelFULO
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
