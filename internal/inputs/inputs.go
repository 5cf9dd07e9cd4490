// Package inputs parses the uploaded CSV files (trades, starting positions,
// PMS positions, prices) into the core data model. Row-level failures are
// collected and returned alongside the successfully parsed records; a bad
// row never aborts the file.
package inputs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/anshugovil/testenfusion/internal/instrument"
	"github.com/anshugovil/testenfusion/internal/models"
	"github.com/anshugovil/testenfusion/internal/quotes"
)

// TradeRow is one row of the trade file. Sequence order is the row order.
type TradeRow struct {
	Ticker string `csv:"Ticker"`
	Lots   int64  `csv:"Lots"`
	Price  string `csv:"Avg Price"`
}

// PositionRow is one row of the starting-position file.
type PositionRow struct {
	Ticker string `csv:"Ticker"`
	Lots   int64  `csv:"Lots"`
}

// PMSRow is one row of the PMS export. Symbols arrive in the exchange
// convention and are normalized through the same parser as internal tickers.
type PMSRow struct {
	Symbol   string `csv:"Symbol"`
	Position int64  `csv:"Position"`
}

// PriceRow is one row of the static price file.
type PriceRow struct {
	Symbol   string  `csv:"Symbol"`
	Price    float64 `csv:"Price"`
	Currency string  `csv:"Currency"`
}

// ReadTrades parses the trade file. The second return value holds per-row
// parse errors; rows that fail are skipped, not fatal.
func ReadTrades(path string, table instrument.LotSizeTable, ref time.Time) ([]models.Trade, []error) {
	var rows []TradeRow
	if err := readFile(path, &rows); err != nil {
		return nil, []error{err}
	}

	var (
		trades []models.Trade
		errs   []error
	)
	for i, row := range rows {
		key, err := instrument.ParseAt(row.Ticker, table, ref)
		if err != nil {
			errs = append(errs, fmt.Errorf("trades row %d: %w", i+1, err))
			continue
		}
		price := decimal.Zero
		if s := strings.TrimSpace(row.Price); s != "" {
			price, err = decimal.NewFromString(s)
			if err != nil {
				errs = append(errs, fmt.Errorf("trades row %d: invalid price %q", i+1, row.Price))
				continue
			}
		}
		trades = append(trades, models.Trade{
			Key:   key,
			Lots:  row.Lots,
			Seq:   i,
			Price: price,
			Raw:   row.Ticker,
		})
	}
	return trades, errs
}

// ReadPositions parses a position file (internal starting positions).
func ReadPositions(path string, table instrument.LotSizeTable, ref time.Time) ([]models.Position, []error) {
	var rows []PositionRow
	if err := readFile(path, &rows); err != nil {
		return nil, []error{err}
	}

	var (
		positions []models.Position
		errs      []error
	)
	for i, row := range rows {
		key, err := instrument.ParseAt(row.Ticker, table, ref)
		if err != nil {
			errs = append(errs, fmt.Errorf("positions row %d: %w", i+1, err))
			continue
		}
		positions = append(positions, models.Position{Key: key, Lots: row.Lots})
	}
	return positions, errs
}

// ReadPMSPositions parses the external PMS export.
func ReadPMSPositions(path string, table instrument.LotSizeTable, ref time.Time) ([]models.Position, []error) {
	var rows []PMSRow
	if err := readFile(path, &rows); err != nil {
		return nil, []error{err}
	}

	var (
		positions []models.Position
		errs      []error
	)
	for i, row := range rows {
		key, err := instrument.ParseAt(row.Symbol, table, ref)
		if err != nil {
			errs = append(errs, fmt.Errorf("pms row %d: %w", i+1, err))
			continue
		}
		positions = append(positions, models.Position{Key: key, Lots: row.Position})
	}
	return positions, errs
}

// ReadPrices parses a static price file into a quote map keyed by underlying.
func ReadPrices(path, defaultCurrency string) (map[string]quotes.Quote, error) {
	var rows []PriceRow
	if err := readFile(path, &rows); err != nil {
		return nil, err
	}

	prices := make(map[string]quotes.Quote, len(rows))
	for i, row := range rows {
		if row.Price <= 0 {
			return nil, fmt.Errorf("prices row %d: price must be > 0", i+1)
		}
		cur := row.Currency
		if cur == "" {
			cur = defaultCurrency
		}
		prices[strings.ToUpper(strings.TrimSpace(row.Symbol))] = quotes.Quote{
			Price:    decimal.NewFromFloat(row.Price),
			Currency: cur,
		}
	}
	return prices, nil
}

func readFile(path string, out interface{}) error {
	f, err := os.Open(path) // #nosec G304 -- path is a user-provided input file
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := gocsv.UnmarshalFile(f, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
