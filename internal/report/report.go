// Package report renders pipeline results to timestamped CSV files and
// console summary tables. Reporting-currency conversion (native -> USD at the
// configured rate) happens here and only here.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/anshugovil/testenfusion/internal/deliverables"
	"github.com/anshugovil/testenfusion/internal/models"
	"github.com/anshugovil/testenfusion/internal/pipeline"
	"github.com/anshugovil/testenfusion/internal/recon"
)

// Writer renders one run's outputs under a directory with a common
// prefix+timestamp naming scheme.
type Writer struct {
	dir     string
	prefix  string
	stamp   string
	usdRate decimal.Decimal
	logger  *logrus.Logger
}

// NewWriter builds a report writer. usdRate is units of native currency per
// USD; zero disables the USD columns.
func NewWriter(dir, prefix string, usdRate float64, logger *logrus.Logger) *Writer {
	return &Writer{
		dir:     dir,
		prefix:  prefix,
		stamp:   time.Now().Format("20060102_150405"),
		usdRate: decimal.NewFromFloat(usdRate),
		logger:  logger,
	}
}

// AssignmentRow is one labeled trade portion.
type AssignmentRow struct {
	Seq     int    `csv:"Seq"`
	Ticker  string `csv:"Ticker"`
	Key     string `csv:"Instrument"`
	Side    string `csv:"B/S"`
	Lots    int64  `csv:"Lots"`
	Phase   string `csv:"Phase"`
	Label   string `csv:"Strategy"`
	TxnType string `csv:"Transaction Type"`
}

// PositionOut is one snapshot position row.
type PositionOut struct {
	Key        string `csv:"Instrument"`
	Underlying string `csv:"Underlying"`
	Class      string `csv:"Type"`
	Expiry     string `csv:"Expiry"`
	Strike     string `csv:"Strike"`
	Lots       int64  `csv:"Lots"`
	LotSize    int64  `csv:"Lot Size"`
	Qty        int64  `csv:"QTY"`
	Direction  string `csv:"Direction"`
}

// DeliverableOut is one deliverable/IV row. Unknown values render as "N/A"
// rather than zero so a missing quote is visible in the file.
type DeliverableOut struct {
	Key             string `csv:"Instrument"`
	Lots            int64  `csv:"Lots"`
	Spot            string `csv:"Spot Price"`
	DeliverableLots string `csv:"Deliverable (Lots)"`
	DeliverableQty  string `csv:"Deliverable (Qty)"`
	IntrinsicValue  string `csv:"Intrinsic Value"`
	Currency        string `csv:"Currency"`
	IntrinsicUSD    string `csv:"Intrinsic Value (USD)"`
}

// ReconOut is one reconciliation row.
type ReconOut struct {
	Key      string `csv:"Instrument"`
	Internal int64  `csv:"Internal"`
	External int64  `csv:"External"`
	Diff     int64  `csv:"Difference"`
	Status   string `csv:"Status"`
}

// ImpactOut is one impact row.
type ImpactOut struct {
	Key        string `csv:"Instrument"`
	PreStatus  string `csv:"Pre Status"`
	PostStatus string `csv:"Post Status"`
	PreGap     int64  `csv:"Pre Gap"`
	PostGap    int64  `csv:"Post Gap"`
	Impact     string `csv:"Impact"`
}

// SettlementOut is one expiry settlement trade row.
type SettlementOut struct {
	Expiry     string `csv:"Expiry"`
	Underlying string `csv:"Underlying"`
	Symbol     string `csv:"Symbol"`
	Side       string `csv:"Buy/Sell"`
	Strategy   string `csv:"Strategy"`
	Lots       int64  `csv:"Lots"`
	Qty        int64  `csv:"Qty"`
	Price      string `csv:"Price"`
	Kind       string `csv:"Type"`
	Strike     string `csv:"Strike"`
	Note       string `csv:"TradeNotes"`
	STT        string `csv:"STT"`
	StampDuty  string `csv:"Stamp Duty"`
	Taxes      string `csv:"Taxes"`
}

// ErrorOut is one skipped-record row.
type ErrorOut struct {
	Error string `csv:"Error"`
}

// WriteAll writes every report file for the run and returns the paths keyed
// by report name.
func (w *Writer) WriteAll(res *pipeline.Result) (map[string]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	files := make(map[string]string)
	write := func(name string, rows interface{}) error {
		path := filepath.Join(w.dir, fmt.Sprintf("%s_%s_%s.csv", w.prefix, name, w.stamp))
		f, err := os.Create(path) // #nosec G304 -- path is under the configured output dir
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		if err := gocsv.Marshal(rows, f); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		files[name] = path
		return nil
	}

	if err := write("labeled_trades", assignmentRows(res.Assignments)); err != nil {
		return files, err
	}
	if err := write("starting_positions", positionRows(res.PrePositions)); err != nil {
		return files, err
	}
	if err := write("final_positions", positionRows(res.PostPositions)); err != nil {
		return files, err
	}
	if err := write("pre_deliverables", w.deliverableRows(res.PreDeliverables)); err != nil {
		return files, err
	}
	if err := write("post_deliverables", w.deliverableRows(res.PostDeliverables)); err != nil {
		return files, err
	}
	if len(res.PostExpiries) > 0 {
		if err := write("expiry_settlements", settlementRows(res.PostExpiries)); err != nil {
			return files, err
		}
	}
	if res.PreRecon != nil {
		if err := write("pre_reconciliation", reconRows(res.PreRecon)); err != nil {
			return files, err
		}
		if err := write("post_reconciliation", reconRows(res.PostRecon)); err != nil {
			return files, err
		}
		if err := write("impact", impactRows(res.Impact)); err != nil {
			return files, err
		}
	}
	if len(res.ACMTrades) > 0 {
		if err := write("acm_listed_trades", res.ACMTrades); err != nil {
			return files, err
		}
	}
	if len(res.ParseErrors) > 0 {
		rows := make([]ErrorOut, 0, len(res.ParseErrors))
		for _, e := range res.ParseErrors {
			rows = append(rows, ErrorOut{Error: e})
		}
		if err := write("skipped_records", rows); err != nil {
			return files, err
		}
	}

	w.logger.WithField("files", len(files)).Infof("reports written to %s", w.dir)
	return files, nil
}

func assignmentRows(assignments []models.StrategyAssignment) []AssignmentRow {
	rows := make([]AssignmentRow, 0, len(assignments))
	for _, a := range assignments {
		rows = append(rows, AssignmentRow{
			Seq:     a.Trade.Seq,
			Ticker:  a.Trade.Raw,
			Key:     a.Trade.Key.ID(),
			Side:    a.Side(),
			Lots:    a.Lots,
			Phase:   string(a.Phase),
			Label:   string(a.Label),
			TxnType: txnType(a),
		})
	}
	return rows
}

func txnType(a models.StrategyAssignment) string {
	if a.Side() == "Buy" {
		if a.Phase == models.PhaseClose {
			return "BuyToCover"
		}
		return "Buy"
	}
	if a.Phase == models.PhaseClose {
		return "Sell"
	}
	return "SellShort"
}

func positionRows(positions []models.Position) []PositionOut {
	rows := make([]PositionOut, 0, len(positions))
	for _, p := range positions {
		row := PositionOut{
			Key:        p.Key.ID(),
			Underlying: p.Key.Underlying,
			Class:      string(p.Key.Class),
			Expiry:     p.Key.Expiry.String(),
			Lots:       p.Lots,
			LotSize:    p.Key.LotSize,
			Qty:        p.Qty(),
			Direction:  p.Direction(),
		}
		if p.Key.Class.IsOption() {
			row.Strike = p.Key.Strike.String()
		}
		rows = append(rows, row)
	}
	return rows
}

func (w *Writer) deliverableRows(records []deliverables.Record) []DeliverableOut {
	rows := make([]DeliverableOut, 0, len(records))
	for _, r := range records {
		row := DeliverableOut{
			Key:             r.Key.ID(),
			Lots:            r.Lots,
			Spot:            "N/A",
			DeliverableLots: "N/A",
			DeliverableQty:  "N/A",
			IntrinsicValue:  "N/A",
			IntrinsicUSD:    "N/A",
			Currency:        r.Currency,
		}
		if r.SpotKnown {
			row.Spot = r.Spot.StringFixed(2)
		}
		if r.Known {
			row.DeliverableLots = fmt.Sprintf("%d", r.DeliverableLots)
			row.DeliverableQty = fmt.Sprintf("%d", r.DeliverableQty)
			row.IntrinsicValue = r.IntrinsicValue.StringFixed(2)
			if w.usdRate.Sign() > 0 {
				row.IntrinsicUSD = r.IntrinsicValue.Div(w.usdRate).StringFixed(2)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func reconRows(records []recon.Record) []ReconOut {
	rows := make([]ReconOut, 0, len(records))
	for _, r := range records {
		rows = append(rows, ReconOut{
			Key:      r.Key.ID(),
			Internal: r.Internal,
			External: r.External,
			Diff:     r.Diff,
			Status:   string(r.Status),
		})
	}
	return rows
}

func impactRows(records []recon.ImpactRecord) []ImpactOut {
	rows := make([]ImpactOut, 0, len(records))
	for _, r := range records {
		rows = append(rows, ImpactOut{
			Key:        r.Key.ID(),
			PreStatus:  string(r.PreStatus),
			PostStatus: string(r.PostStatus),
			PreGap:     r.PreGap,
			PostGap:    r.PostGap,
			Impact:     string(r.Impact),
		})
	}
	return rows
}

func settlementRows(expiries []deliverables.ExpiryResult) []SettlementOut {
	var rows []SettlementOut
	for _, exp := range expiries {
		for _, lists := range [][]deliverables.SettlementTrade{exp.Derivatives, exp.Cash} {
			for _, t := range lists {
				row := SettlementOut{
					Expiry:     exp.Expiry.String(),
					Underlying: t.Underlying,
					Symbol:     t.Symbol,
					Side:       t.Side,
					Strategy:   t.Strategy,
					Lots:       t.Lots,
					Qty:        t.Qty,
					Price:      t.Price.StringFixed(2),
					Kind:       t.Kind,
					Note:       t.Note,
					STT:        t.STT.StringFixed(2),
					StampDuty:  t.StampDuty.StringFixed(2),
					Taxes:      t.Taxes.StringFixed(2),
				}
				if t.Strike.Sign() > 0 {
					row.Strike = t.Strike.String()
				}
				rows = append(rows, row)
			}
		}
	}
	return rows
}

// Summary prints the run-level tables to w: counts, reconciliation status
// breakdowns and the impact tally.
func Summary(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "Run %s (%s)\n\n", res.RunID, res.StartedAt.Format(time.RFC3339))

	overview := tablewriter.NewWriter(w)
	overview.SetHeader([]string{"Metric", "Value"})
	overview.Append([]string{"Trades processed", fmt.Sprintf("%d", res.Summary.TradesProcessed)})
	overview.Append([]string{"Assignments", fmt.Sprintf("%d", res.Summary.Assignments)})
	overview.Append([]string{"Split trades", fmt.Sprintf("%d", res.Summary.SplitTrades)})
	overview.Append([]string{"Parse errors (skipped)", fmt.Sprintf("%d", res.Summary.ParseErrors)})
	overview.Append([]string{"Unknown deliverables (pre)", fmt.Sprintf("%d", res.Summary.UnknownPre)})
	overview.Append([]string{"Unknown deliverables (post)", fmt.Sprintf("%d", res.Summary.UnknownPost)})
	overview.Render()

	if res.PreRecon == nil {
		return
	}

	fmt.Fprintln(w, "\nReconciliation:")
	rt := tablewriter.NewWriter(w)
	rt.SetHeader([]string{"Phase", "Total", "Matched", "Mismatch", "Missing Ext", "Missing Int"})
	for _, phase := range []struct {
		name string
		s    recon.Summary
	}{
		{"pre-trade", res.Summary.PreRecon},
		{"post-trade", res.Summary.PostRecon},
	} {
		rt.Append([]string{
			phase.name,
			fmt.Sprintf("%d", phase.s.Total),
			fmt.Sprintf("%d", phase.s.Matched),
			fmt.Sprintf("%d", phase.s.Mismatched),
			fmt.Sprintf("%d", phase.s.MissingInExternal),
			fmt.Sprintf("%d", phase.s.MissingInInternal),
		})
	}
	rt.Render()

	improved, deteriorated, unchanged := 0, 0, 0
	for _, r := range res.Impact {
		switch r.Impact {
		case recon.ImpactImproved:
			improved++
		case recon.ImpactDeteriorated:
			deteriorated++
		default:
			unchanged++
		}
	}
	fmt.Fprintln(w, "\nImpact:")
	it := tablewriter.NewWriter(w)
	it.SetHeader([]string{"Improved", "Deteriorated", "Unchanged"})
	it.Append([]string{
		fmt.Sprintf("%d", improved),
		fmt.Sprintf("%d", deteriorated),
		fmt.Sprintf("%d", unchanged),
	})
	it.Render()
}
