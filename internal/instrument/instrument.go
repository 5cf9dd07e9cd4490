// Package instrument canonicalizes raw ticker strings into comparable
// instrument keys. Two conventions are recognized: Bloomberg-style tickers
// ("NIFTY=U5 Index", "RELIANCE 9/25/25 C1400 IS Equity") as produced by the
// trade files, and compact exchange-style symbols ("NIFTY25SEPFUT",
// "RELIANCE25SEP1400CE") as produced by the PMS export. The same contract in
// either convention normalizes to an identical Key.
package instrument

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Class identifies the instrument type encoded in a ticker.
type Class string

const (
	ClassEquity Class = "EQ"
	ClassFuture Class = "FUT"
	ClassCall   Class = "CALL"
	ClassPut    Class = "PUT"
)

// Valid returns true if the Class is one of the defined constants.
func (c Class) Valid() bool {
	switch c {
	case ClassEquity, ClassFuture, ClassCall, ClassPut:
		return true
	default:
		return false
	}
}

// IsOption returns true for calls and puts.
func (c Class) IsOption() bool {
	return c == ClassCall || c == ClassPut
}

// Expiry is a contract month. Listed derivatives here expire once per month,
// so day-level precision from the Bloomberg convention is dropped when keys
// are compared against exchange symbols that encode only year and month.
type Expiry struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// IsZero reports whether the expiry is unset (equities).
func (e Expiry) IsZero() bool { return e.Year == 0 }

func (e Expiry) String() string {
	if e.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", e.Year, int(e.Month))
}

// Key is the canonical identity of an instrument. Strike is zero unless the
// class is an option. LotSizeAssumed marks keys whose underlying was absent
// from the lot-size table and fell back to 1.
type Key struct {
	Underlying     string          `json:"underlying"`
	Class          Class           `json:"class"`
	Expiry         Expiry          `json:"expiry,omitempty"`
	Strike         decimal.Decimal `json:"strike,omitempty"`
	LotSize        int64           `json:"lot_size"`
	LotSizeAssumed bool            `json:"lot_size_assumed,omitempty"`
}

// ID returns the canonical string form of the key. It is stable, unique per
// contract, and usable as a map key and sort key. Parsing an ID back through
// Parse yields the same key.
func (k Key) ID() string {
	switch k.Class {
	case ClassEquity:
		return k.Underlying
	case ClassFuture:
		return fmt.Sprintf("%s %s %s", k.Underlying, k.Class, k.Expiry)
	default:
		return fmt.Sprintf("%s %s %s %s", k.Underlying, k.Class, k.Expiry, k.Strike.String())
	}
}

func (k Key) String() string { return k.ID() }

// ParseError reports a ticker that matched no recognized convention. It is a
// per-record failure: callers collect these and continue with the rest of the
// run.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unrecognized ticker %q: %s", e.Raw, e.Reason)
}

// LotSizeTable maps underlying symbols to contract lot sizes.
type LotSizeTable map[string]int64

// Lookup returns the lot size for an underlying, or (1, false) when the
// underlying is not in the table.
func (t LotSizeTable) Lookup(underlying string) (int64, bool) {
	if n, ok := t[strings.ToUpper(underlying)]; ok && n > 0 {
		return n, true
	}
	return 1, false
}
