package instrument

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// futuresMonthCodes maps the single-letter futures month code used in
// Bloomberg tickers to a calendar month.
var futuresMonthCodes = map[byte]time.Month{
	'F': time.January, 'G': time.February, 'H': time.March,
	'J': time.April, 'K': time.May, 'M': time.June,
	'N': time.July, 'Q': time.August, 'U': time.September,
	'V': time.October, 'X': time.November, 'Z': time.December,
}

var monthAbbrevs = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// Parse canonicalizes a raw ticker into a Key using the current time to
// resolve single-digit futures years. See ParseAt.
func Parse(raw string, table LotSizeTable) (Key, error) {
	return ParseAt(raw, table, time.Now())
}

// ParseAt canonicalizes a raw ticker into a Key. The ref time is used only to
// resolve the single-digit year in Bloomberg futures codes ("=U5"); passing a
// fixed ref makes parsing fully deterministic. Lot sizes come from the table;
// a missing underlying defaults to 1 and sets LotSizeAssumed on the key
// rather than failing the parse.
func ParseAt(raw string, table LotSizeTable, ref time.Time) (Key, error) {
	norm := normalizeTicker(raw)
	if norm == "" {
		return Key{}, &ParseError{Raw: raw, Reason: "empty ticker"}
	}

	tokens := strings.Fields(norm)
	var (
		key Key
		err error
	)
	switch {
	case len(tokens) == 1:
		key, err = parseExchange(tokens[0], raw)
	case len(tokens) >= 2 && Class(tokens[1]).Valid():
		key, err = parseCanonical(tokens, raw)
	default:
		key, err = parseBloomberg(tokens, raw, ref)
	}
	if err != nil {
		return Key{}, err
	}

	key.LotSize, key.LotSizeAssumed = lotSizeFor(key, table)
	return key, nil
}

func lotSizeFor(k Key, table LotSizeTable) (int64, bool) {
	if k.Class == ClassEquity {
		// Equities trade in single shares, not contract lots.
		return 1, false
	}
	n, found := table.Lookup(k.Underlying)
	return n, !found
}

func normalizeTicker(raw string) string {
	return strings.Join(strings.Fields(strings.ToUpper(strings.TrimSpace(raw))), " ")
}

// parseBloomberg handles space-separated Bloomberg-style tickers. The trailing
// tokens are the yellow-key suffix ("IS EQUITY", "EQUITY" or "INDEX") and are
// not part of the identity.
func parseBloomberg(tokens []string, raw string, ref time.Time) (Key, error) {
	last := tokens[len(tokens)-1]
	if last != "EQUITY" && last != "INDEX" {
		return Key{}, &ParseError{Raw: raw, Reason: "expected Equity or Index suffix"}
	}
	body := tokens[:len(tokens)-1]
	if len(body) > 0 && body[len(body)-1] == "IS" {
		body = body[:len(body)-1]
	}
	if len(body) == 0 {
		return Key{}, &ParseError{Raw: raw, Reason: "missing symbol before suffix"}
	}

	switch len(body) {
	case 1:
		// Futures carry an =<month><year> code on the symbol; anything else
		// is a plain equity or index underlier.
		if sym, code, ok := strings.Cut(body[0], "="); ok {
			exp, err := parseFuturesCode(code, raw, ref)
			if err != nil {
				return Key{}, err
			}
			return Key{Underlying: sym, Class: ClassFuture, Expiry: exp}, nil
		}
		return Key{Underlying: body[0], Class: ClassEquity}, nil
	case 3:
		// Option: UNDERLYING M/D/YY [C|P]STRIKE
		exp, err := parseSlashDate(body[1], raw)
		if err != nil {
			return Key{}, err
		}
		class, strike, err := parseOptionLeg(body[2], raw)
		if err != nil {
			return Key{}, err
		}
		return Key{Underlying: body[0], Class: class, Expiry: exp, Strike: strike}, nil
	default:
		return Key{}, &ParseError{Raw: raw, Reason: "unrecognized Bloomberg ticker shape"}
	}
}

func parseFuturesCode(code, raw string, ref time.Time) (Expiry, error) {
	if len(code) != 2 {
		return Expiry{}, &ParseError{Raw: raw, Reason: "futures code must be month letter plus year digit"}
	}
	month, ok := futuresMonthCodes[code[0]]
	if !ok {
		return Expiry{}, &ParseError{Raw: raw, Reason: "unknown futures month code " + string(code[0])}
	}
	d := code[1]
	if d < '0' || d > '9' {
		return Expiry{}, &ParseError{Raw: raw, Reason: "futures year must be a digit"}
	}
	// A single digit is resolved to the nearest matching year no earlier than
	// five years before ref, matching how the venue recycles year digits.
	year := (ref.Year()/10)*10 + int(d-'0')
	if year < ref.Year()-5 {
		year += 10
	}
	return Expiry{Year: year, Month: month}, nil
}

func parseSlashDate(s, raw string) (Expiry, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Expiry{}, &ParseError{Raw: raw, Reason: "expected M/D/YY expiry"}
	}
	m, err1 := strconv.Atoi(parts[0])
	_, err2 := strconv.Atoi(parts[1])
	y, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || m < 1 || m > 12 {
		return Expiry{}, &ParseError{Raw: raw, Reason: "invalid M/D/YY expiry " + s}
	}
	if y < 100 {
		y += 2000
	}
	return Expiry{Year: y, Month: time.Month(m)}, nil
}

func parseOptionLeg(s, raw string) (Class, decimal.Decimal, error) {
	if len(s) < 2 {
		return "", decimal.Decimal{}, &ParseError{Raw: raw, Reason: "option leg too short"}
	}
	var class Class
	switch s[0] {
	case 'C':
		class = ClassCall
	case 'P':
		class = ClassPut
	default:
		return "", decimal.Decimal{}, &ParseError{Raw: raw, Reason: "option leg must start with C or P"}
	}
	strike, err := decimal.NewFromString(s[1:])
	if err != nil || strike.Sign() <= 0 {
		return "", decimal.Decimal{}, &ParseError{Raw: raw, Reason: "invalid strike " + s[1:]}
	}
	return class, strike, nil
}

// parseCanonical handles the Key.ID() form: "UNDER FUT 2025-09" and
// "UNDER CALL 2025-09 1400". Normalizing an already-canonical key returns it
// unchanged.
func parseCanonical(tokens []string, raw string) (Key, error) {
	class := Class(tokens[1])
	if len(tokens) < 3 {
		return Key{}, &ParseError{Raw: raw, Reason: "derivative key requires an expiry"}
	}
	exp, err := parseDashExpiry(tokens[2], raw)
	if err != nil {
		return Key{}, err
	}
	switch class {
	case ClassFuture:
		if len(tokens) != 3 {
			return Key{}, &ParseError{Raw: raw, Reason: "futures key takes no strike"}
		}
		return Key{Underlying: tokens[0], Class: ClassFuture, Expiry: exp}, nil
	case ClassCall, ClassPut:
		if len(tokens) != 4 {
			return Key{}, &ParseError{Raw: raw, Reason: "option key requires a strike"}
		}
		strike, err := decimal.NewFromString(tokens[3])
		if err != nil || strike.Sign() <= 0 {
			return Key{}, &ParseError{Raw: raw, Reason: "invalid strike " + tokens[3]}
		}
		return Key{Underlying: tokens[0], Class: class, Expiry: exp, Strike: strike}, nil
	default:
		return Key{}, &ParseError{Raw: raw, Reason: "equity key takes no expiry"}
	}
}

func parseDashExpiry(s, raw string) (Expiry, error) {
	y, m, ok := strings.Cut(s, "-")
	if !ok || !isDigits(y) || !isDigits(m) {
		return Expiry{}, &ParseError{Raw: raw, Reason: "expected YYYY-MM expiry"}
	}
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	if month < 1 || month > 12 || year < 1900 {
		return Expiry{}, &ParseError{Raw: raw, Reason: "invalid YYYY-MM expiry " + s}
	}
	return Expiry{Year: year, Month: time.Month(month)}, nil
}

// parseExchange handles compact exchange symbols: SYMBOL (equity),
// SYMBOL<YY><MMM>FUT (future) and SYMBOL<YY><MMM><STRIKE>CE|PE (option).
// This also accepts the canonical Key.ID() forms, which always split into
// multiple tokens and so never reach here, except bare equity IDs.
func parseExchange(s, raw string) (Key, error) {
	if s == "" {
		return Key{}, &ParseError{Raw: raw, Reason: "empty ticker"}
	}

	if strings.HasSuffix(s, "FUT") {
		body := strings.TrimSuffix(s, "FUT")
		sym, exp, rest, ok := splitExchangeExpiry(body)
		if ok && rest == "" {
			return Key{Underlying: sym, Class: ClassFuture, Expiry: exp}, nil
		}
		return Key{}, &ParseError{Raw: raw, Reason: "malformed futures symbol"}
	}

	optClass := Class("")
	body := s
	switch {
	case strings.HasSuffix(s, "CE"):
		optClass, body = ClassCall, strings.TrimSuffix(s, "CE")
	case strings.HasSuffix(s, "PE"):
		optClass, body = ClassPut, strings.TrimSuffix(s, "PE")
	}
	if optClass != "" {
		sym, exp, rest, ok := splitExchangeExpiry(body)
		if ok && rest != "" {
			strike, err := decimal.NewFromString(rest)
			if err == nil && strike.Sign() > 0 {
				return Key{Underlying: sym, Class: optClass, Expiry: exp, Strike: strike}, nil
			}
		}
		return Key{}, &ParseError{Raw: raw, Reason: "malformed option symbol"}
	}

	// Plain equity symbol. Reject anything that still looks like it carried
	// an expiry we failed to parse.
	if _, _, _, ok := splitExchangeExpiry(s); ok {
		return Key{}, &ParseError{Raw: raw, Reason: "derivative symbol missing FUT/CE/PE suffix"}
	}
	return Key{Underlying: s, Class: ClassEquity}, nil
}

// splitExchangeExpiry scans for the first <YY><MMM> run and splits the symbol
// around it. rest is whatever follows the month (the strike for options,
// empty for futures).
func splitExchangeExpiry(s string) (sym string, exp Expiry, rest string, ok bool) {
	for i := 1; i+5 <= len(s); i++ {
		if !isDigits(s[i : i+2]) {
			continue
		}
		month, found := monthAbbrevs[s[i+2:i+5]]
		if !found {
			continue
		}
		yy, _ := strconv.Atoi(s[i : i+2])
		return s[:i], Expiry{Year: 2000 + yy, Month: month}, s[i+5:], true
	}
	return "", Expiry{}, "", false
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
