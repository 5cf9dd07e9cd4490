// Package pipeline wires the engines together: ledger replay, strategy
// assignment, deliverables, reconciliation and impact analysis over one
// batch of inputs. All run-scoped state lives in the Result; the engine
// itself holds only configuration and capabilities, so concurrent runs with
// separate Results are safe.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anshugovil/testenfusion/internal/acm"
	"github.com/anshugovil/testenfusion/internal/config"
	"github.com/anshugovil/testenfusion/internal/deliverables"
	"github.com/anshugovil/testenfusion/internal/ledger"
	"github.com/anshugovil/testenfusion/internal/models"
	"github.com/anshugovil/testenfusion/internal/quotes"
	"github.com/anshugovil/testenfusion/internal/recon"
	"github.com/anshugovil/testenfusion/internal/strategy"
)

// Inputs is one parsed batch. PMSPositions may be nil when no external
// ledger was supplied, which skips reconciliation. ParseErrors carries the
// row-level failures collected while parsing the input files; they ride
// along into the Result so every output is accompanied by its skip count.
type Inputs struct {
	StartingPositions []models.Position
	Trades            []models.Trade
	PMSPositions      []models.Position
	ParseErrors       []string
}

// Summary is the run-level tally surfaced with every output.
type Summary struct {
	TradesProcessed int           `json:"trades_processed"`
	Assignments     int           `json:"assignments"`
	SplitTrades     int           `json:"split_trades"`
	ParseErrors     int           `json:"parse_errors"`
	UnknownPre      int           `json:"unknown_pre"`
	UnknownPost     int           `json:"unknown_post"`
	PreRecon        recon.Summary `json:"pre_recon"`
	PostRecon       recon.Summary `json:"post_recon"`
}

// Result is everything one run produced.
type Result struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Assignments   []models.StrategyAssignment `json:"assignments"`
	PrePositions  []models.Position           `json:"pre_positions"`
	PostPositions []models.Position           `json:"post_positions"`

	PreDeliverables  []deliverables.Record       `json:"pre_deliverables"`
	PostDeliverables []deliverables.Record       `json:"post_deliverables"`
	PreExpiries      []deliverables.ExpiryResult `json:"pre_expiries,omitempty"`
	PostExpiries     []deliverables.ExpiryResult `json:"post_expiries,omitempty"`

	PreRecon  []recon.Record       `json:"pre_recon,omitempty"`
	PostRecon []recon.Record       `json:"post_recon,omitempty"`
	Impact    []recon.ImpactRecord `json:"impact,omitempty"`

	ACMTrades []acm.ListedTrade `json:"acm_trades,omitempty"`

	ParseErrors []string `json:"parse_errors,omitempty"`
	Summary     Summary  `json:"summary"`
}

// Engine runs batches against a fixed configuration and quote provider.
type Engine struct {
	cfg      *config.Config
	provider quotes.Provider
	logger   *logrus.Logger
}

// New builds an engine.
func New(cfg *config.Config, provider quotes.Provider, logger *logrus.Logger) *Engine {
	return &Engine{cfg: cfg, provider: provider, logger: logger}
}

// Run executes the full pipeline over one batch: replay the starting
// snapshot, assign strategy labels trade by trade, then compute deliverables
// and reconciliation for both the pre-trade and post-trade snapshots and
// diff the two reconciliation runs into per-key impact.
func (e *Engine) Run(ctx context.Context, in Inputs) (*Result, error) {
	res := &Result{
		RunID:       uuid.New().String(),
		StartedAt:   time.Now().UTC(),
		ParseErrors: in.ParseErrors,
	}
	res.Summary.ParseErrors = len(in.ParseErrors)

	pre := ledger.FromPositions(in.StartingPositions)
	res.PrePositions = pre.Snapshot()

	assigner := strategy.NewAssigner(pre)
	assignments, err := assigner.Assign(in.Trades)
	if err != nil {
		return nil, err
	}
	res.Assignments = assignments
	res.PostPositions = assigner.Ledger().Snapshot()

	res.Summary.TradesProcessed = len(in.Trades)
	res.Summary.Assignments = len(assignments)
	res.Summary.SplitTrades = countSplits(assignments)

	e.logger.WithFields(logrus.Fields{
		"run_id":      res.RunID,
		"trades":      len(in.Trades),
		"assignments": len(assignments),
	}).Info("strategy assignment complete")

	calc := deliverables.NewCalculator(e.provider, e.cfg.CurrencyFor, e.logger)
	res.PreDeliverables = calc.ComputeAll(ctx, res.PrePositions)
	res.PostDeliverables = calc.ComputeAll(ctx, res.PostPositions)
	res.Summary.UnknownPre = countUnknown(res.PreDeliverables)
	res.Summary.UnknownPost = countUnknown(res.PostDeliverables)

	gen := deliverables.NewGenerator(e.provider, e.cfg.IsIndex, e.logger)
	res.PreExpiries = gen.GenerateByExpiry(ctx, res.PrePositions)
	res.PostExpiries = gen.GenerateByExpiry(ctx, res.PostPositions)

	if in.PMSPositions != nil {
		res.PreRecon = recon.Reconcile(res.PrePositions, in.PMSPositions)
		res.PostRecon = recon.Reconcile(res.PostPositions, in.PMSPositions)
		res.Impact = recon.AnalyzeImpact(res.PreRecon, res.PostRecon)
		res.Summary.PreRecon = recon.Summarize(res.PreRecon)
		res.Summary.PostRecon = recon.Summarize(res.PostRecon)
	}

	if e.cfg.Report.AccountID != "" {
		mapper, err := acm.NewMapper(acm.Account{
			AccountID:        e.cfg.Report.AccountID,
			CounterpartyCode: e.cfg.Report.CounterpartyCode,
			BrokerName:       e.cfg.Report.BrokerName,
		}, e.cfg.IsIndex)
		if err != nil {
			return nil, err
		}
		res.ACMTrades = mapper.MapTrades(assignments, res.StartedAt)
		if err := acm.Validate(res.ACMTrades); err != nil {
			return nil, err
		}
	}

	res.FinishedAt = time.Now().UTC()
	e.logger.WithFields(logrus.Fields{
		"run_id":   res.RunID,
		"duration": res.FinishedAt.Sub(res.StartedAt).String(),
	}).Info("pipeline run complete")
	return res, nil
}

// countSplits counts trades that produced more than one assignment, i.e.
// crossed through flat.
func countSplits(assignments []models.StrategyAssignment) int {
	perSeq := make(map[int]int)
	for _, a := range assignments {
		perSeq[a.Trade.Seq]++
	}
	n := 0
	for _, c := range perSeq {
		if c > 1 {
			n++
		}
	}
	return n
}

func countUnknown(records []deliverables.Record) int {
	n := 0
	for _, r := range records {
		if !r.Known {
			n++
		}
	}
	return n
}
