// Package acm maps labeled trades into the ACM ListedTrades upload format.
// The schema is fixed: column order, identifier convention and the
// transaction-type rules are part of the downstream contract, not
// configuration.
package acm

import (
	"fmt"
	"time"

	"github.com/anshugovil/testenfusion/internal/instrument"
	"github.com/anshugovil/testenfusion/internal/models"
)

// Timestamps on ListedTrades rows are booked in the desk's timezone.
const bookingTimezone = "Asia/Singapore"

// ListedTrade is one row of the ACM ListedTrades file, in upload column
// order.
type ListedTrade struct {
	TradeDate        string `csv:"Trade Date"`
	SettleDate       string `csv:"Settle Date"`
	AccountID        string `csv:"Account Id"`
	CounterpartyCode string `csv:"Counterparty Code"`
	Identifier       string `csv:"Identifier"`
	IdentifierType   string `csv:"Identifier Type"`
	Quantity         int64  `csv:"Quantity"`
	TradePrice       string `csv:"Trade Price"`
	Price            string `csv:"Price"`
	InstrumentType   string `csv:"Instrument Type"`
	StrikePrice      string `csv:"Strike Price"`
	LotSize          int64  `csv:"Lot Size"`
	Strategy         string `csv:"Strategy"`
	BrokerName       string `csv:"Executing Broker Name"`
	TradeVenue       string `csv:"Trade Venue"`
	Notes            string `csv:"Notes"`
	TransactionType  string `csv:"Transaction Type"`
}

// Account carries the static booking fields stamped on every row.
type Account struct {
	AccountID        string
	CounterpartyCode string
	BrokerName       string
	TradeVenue       string
}

// Mapper converts strategy assignments to ListedTrades rows.
type Mapper struct {
	account Account
	isIndex func(string) bool
	loc     *time.Location
}

// NewMapper builds a mapper. isIndex selects OPTIDX/FUTIDX over
// OPTSTK/FUTSTK and may be nil.
func NewMapper(account Account, isIndex func(string) bool) (*Mapper, error) {
	if account.AccountID == "" {
		return nil, fmt.Errorf("acm: account id is required")
	}
	if isIndex == nil {
		isIndex = func(string) bool { return false }
	}
	loc, err := time.LoadLocation(bookingTimezone)
	if err != nil {
		return nil, fmt.Errorf("acm: loading %s: %w", bookingTimezone, err)
	}
	return &Mapper{account: account, isIndex: isIndex, loc: loc}, nil
}

// MapTrades converts each assignment to one ListedTrades row, stamped with
// the booking time now. Assignments with zero lots produce no row.
func (m *Mapper) MapTrades(assignments []models.StrategyAssignment, now time.Time) []ListedTrade {
	booked := now.In(m.loc)
	tradeDate := booked.Format("01/02/2006 15:04:05")
	settleDate := booked.Format("01/02/2006")

	rows := make([]ListedTrade, 0, len(assignments))
	for _, a := range assignments {
		if a.Lots == 0 {
			continue
		}

		identifier := a.Trade.Raw
		if identifier == "" {
			identifier = a.Trade.Key.ID()
		}

		row := ListedTrade{
			TradeDate:        tradeDate,
			SettleDate:       settleDate,
			AccountID:        m.account.AccountID,
			CounterpartyCode: m.account.CounterpartyCode,
			Identifier:       identifier,
			IdentifierType:   "Bloomberg Yellow Key",
			Quantity:         abs64(a.Lots),
			InstrumentType:   m.instrumentType(a.Trade.Key),
			LotSize:          a.Trade.Key.LotSize,
			Strategy:         string(a.Label),
			BrokerName:       m.account.BrokerName,
			TradeVenue:       m.account.TradeVenue,
			TransactionType:  TransactionType(a.Side(), a.Phase),
		}
		if !a.Trade.Price.IsZero() {
			row.TradePrice = a.Trade.Price.String()
			row.Price = a.Trade.Price.String()
		}
		if a.Trade.Key.Class.IsOption() {
			row.StrikePrice = a.Trade.Key.Strike.String()
		}
		rows = append(rows, row)
	}
	return rows
}

// TransactionType maps the trade side and phase to the ACM transaction type:
// a buy that closes short exposure is BuyToCover, a sell that opens short
// exposure is SellShort.
func TransactionType(side string, phase models.Phase) string {
	closing := phase == models.PhaseClose
	if side == "Buy" {
		if closing {
			return "BuyToCover"
		}
		return "Buy"
	}
	if closing {
		return "Sell"
	}
	return "SellShort"
}

func (m *Mapper) instrumentType(key instrument.Key) string {
	index := m.isIndex(key.Underlying)
	switch key.Class {
	case instrument.ClassFuture:
		if index {
			return "FUTIDX"
		}
		return "FUTSTK"
	case instrument.ClassCall, instrument.ClassPut:
		if index {
			return "OPTIDX"
		}
		return "OPTSTK"
	default:
		return "EQ"
	}
}

// Validate checks the mandatory ACM fields on every row.
func Validate(rows []ListedTrade) error {
	for i, row := range rows {
		switch {
		case row.AccountID == "":
			return fmt.Errorf("acm row %d: missing Account Id", i+1)
		case row.Identifier == "":
			return fmt.Errorf("acm row %d: missing Identifier", i+1)
		case row.Quantity <= 0:
			return fmt.Errorf("acm row %d: missing Quantity", i+1)
		case row.TransactionType == "":
			return fmt.Errorf("acm row %d: missing Transaction Type", i+1)
		}
	}
	return nil
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
