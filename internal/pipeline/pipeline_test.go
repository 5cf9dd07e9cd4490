package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anshugovil/testenfusion/internal/config"
	"github.com/anshugovil/testenfusion/internal/instrument"
	"github.com/anshugovil/testenfusion/internal/models"
	"github.com/anshugovil/testenfusion/internal/quotes"
	"github.com/anshugovil/testenfusion/internal/recon"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Instruments: config.InstrumentsConfig{
			LotSizes:         map[string]int64{"NIFTY": 50, "RELIANCE": 250},
			IndexUnderlyings: []string{"NIFTY"},
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func testEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	provider := quotes.NewStatic(map[string]quotes.Quote{
		"NIFTY":    {Price: decimal.NewFromInt(25100), Currency: "INR"},
		"RELIANCE": {Price: decimal.NewFromInt(1410), Currency: "INR"},
	})
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return New(cfg, provider, logger)
}

func key(t *testing.T, raw string) instrument.Key {
	t.Helper()
	k, err := instrument.ParseAt(raw, instrument.LotSizeTable{"NIFTY": 50, "RELIANCE": 250},
		time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return k
}

func TestRun_EndToEnd(t *testing.T) {
	engine := testEngine(t, testConfig(t))

	niftyFut := key(t, "NIFTY=U5 Index")
	relCall := key(t, "RELIANCE 9/25/25 C1400 IS Equity")

	in := Inputs{
		StartingPositions: []models.Position{
			{Key: niftyFut, Lots: 10},
		},
		Trades: []models.Trade{
			{Key: niftyFut, Lots: -25, Seq: 0, Raw: "NIFTY=U5 Index"},
			{Key: relCall, Lots: 2, Seq: 1, Raw: "RELIANCE 9/25/25 C1400 IS Equity"},
		},
		PMSPositions: []models.Position{
			{Key: niftyFut, Lots: -15},
			{Key: relCall, Lots: 2},
		},
		ParseErrors: []string{"trades row 3: unrecognized ticker"},
	}

	res, err := engine.Run(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	// The crossing trade splits: close FULO 10, open FUSH 15, plus the call open.
	assert.Equal(t, 2, res.Summary.TradesProcessed)
	assert.Equal(t, 3, res.Summary.Assignments)
	assert.Equal(t, 1, res.Summary.SplitTrades)
	assert.Equal(t, 1, res.Summary.ParseErrors)

	require.Len(t, res.PostPositions, 2)
	post := make(map[string]int64)
	for _, p := range res.PostPositions {
		post[p.Key.ID()] = p.Lots
	}
	assert.Equal(t, int64(-15), post["NIFTY FUT 2025-09"])
	assert.Equal(t, int64(2), post["RELIANCE CALL 2025-09 1400"])

	// Both quotes resolve, so nothing is unknown.
	assert.Equal(t, 0, res.Summary.UnknownPre)
	assert.Equal(t, 0, res.Summary.UnknownPost)

	// The trades move both keys exactly onto the PMS ledger.
	require.NotNil(t, res.PostRecon)
	assert.Equal(t, res.Summary.PostRecon.Total, res.Summary.PostRecon.Matched)
	for _, imp := range res.Impact {
		assert.NotEqual(t, recon.ImpactDeteriorated, imp.Impact, "key %s", imp.Key.ID())
	}

	// Expiry settlements exist for the derivative snapshot.
	require.NotEmpty(t, res.PostExpiries)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestRun_ACMMappingWhenAccountConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.AccountID = "ACC-1"
	engine := testEngine(t, cfg)

	relCall := key(t, "RELIANCE 9/25/25 C1400 IS Equity")
	res, err := engine.Run(context.Background(), Inputs{
		Trades: []models.Trade{{Key: relCall, Lots: 2, Seq: 0, Raw: "RELIANCE 9/25/25 C1400 IS Equity"}},
	})
	require.NoError(t, err)

	require.Len(t, res.ACMTrades, 1)
	row := res.ACMTrades[0]
	assert.Equal(t, "ACC-1", row.AccountID)
	assert.Equal(t, "Buy", row.TransactionType)
	assert.Equal(t, "OPTSTK", row.InstrumentType)
	assert.Equal(t, "FULO", row.Strategy)
}

func TestRun_NoPMSSkipsReconciliation(t *testing.T) {
	engine := testEngine(t, testConfig(t))
	res, err := engine.Run(context.Background(), Inputs{
		Trades: []models.Trade{{Key: key(t, "NIFTY=U5 Index"), Lots: 1, Seq: 0}},
	})
	require.NoError(t, err)

	assert.Nil(t, res.PreRecon)
	assert.Nil(t, res.PostRecon)
	assert.Nil(t, res.Impact)
	assert.Empty(t, res.ACMTrades)
}

func TestRun_InvalidTradeFails(t *testing.T) {
	engine := testEngine(t, testConfig(t))
	_, err := engine.Run(context.Background(), Inputs{
		Trades: []models.Trade{{Lots: 5, Seq: 0, Raw: "garbage"}},
	})
	require.Error(t, err)
	var invalid *models.InvalidTradeError
	assert.ErrorAs(t, err, &invalid)
}

// Replaying the assignments over the starting snapshot must land exactly on
// the post-trade snapshot.
func TestRun_AssignmentsReplayToPostPositions(t *testing.T) {
	engine := testEngine(t, testConfig(t))
	niftyFut := key(t, "NIFTY=U5 Index")

	res, err := engine.Run(context.Background(), Inputs{
		StartingPositions: []models.Position{{Key: niftyFut, Lots: 4}},
		Trades: []models.Trade{
			{Key: niftyFut, Lots: -9, Seq: 0},
			{Key: niftyFut, Lots: 3, Seq: 1},
		},
	})
	require.NoError(t, err)

	replay := map[string]int64{}
	for _, p := range res.PrePositions {
		replay[p.Key.ID()] += p.Lots
	}
	for _, a := range res.Assignments {
		replay[a.Trade.Key.ID()] += a.Lots
	}
	for _, p := range res.PostPositions {
		assert.Equal(t, p.Lots, replay[p.Key.ID()], "key %s", p.Key.ID())
	}
}
