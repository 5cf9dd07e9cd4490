package instrument

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var testRef = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

var testLots = LotSizeTable{
	"NIFTY":    50,
	"RELIANCE": 250,
}

func mustParse(t *testing.T, raw string) Key {
	t.Helper()
	key, err := ParseAt(raw, testLots, testRef)
	if err != nil {
		t.Fatalf("ParseAt(%q) returned error: %v", raw, err)
	}
	return key
}

func TestParseAt_Bloomberg(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Key
	}{
		{
			name: "index future",
			raw:  "NIFTY=U5 Index",
			want: Key{
				Underlying: "NIFTY",
				Class:      ClassFuture,
				Expiry:     Expiry{Year: 2025, Month: time.September},
				LotSize:    50,
			},
		},
		{
			name: "stock future",
			raw:  "RELIANCE=Z5 IS Equity",
			want: Key{
				Underlying: "RELIANCE",
				Class:      ClassFuture,
				Expiry:     Expiry{Year: 2025, Month: time.December},
				LotSize:    250,
			},
		},
		{
			name: "call option",
			raw:  "RELIANCE 9/25/25 C1400 IS Equity",
			want: Key{
				Underlying: "RELIANCE",
				Class:      ClassCall,
				Expiry:     Expiry{Year: 2025, Month: time.September},
				Strike:     decimal.NewFromInt(1400),
				LotSize:    250,
			},
		},
		{
			name: "put option on index",
			raw:  "NIFTY 9/25/25 P25000 Index",
			want: Key{
				Underlying: "NIFTY",
				Class:      ClassPut,
				Expiry:     Expiry{Year: 2025, Month: time.September},
				Strike:     decimal.NewFromInt(25000),
				LotSize:    50,
			},
		},
		{
			name: "plain equity",
			raw:  "RELIANCE IS Equity",
			want: Key{Underlying: "RELIANCE", Class: ClassEquity, LotSize: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustParse(t, tt.raw)
			if got.ID() != tt.want.ID() {
				t.Errorf("ParseAt(%q) = %s, want %s", tt.raw, got.ID(), tt.want.ID())
			}
			if got.LotSize != tt.want.LotSize {
				t.Errorf("ParseAt(%q) lot size = %d, want %d", tt.raw, got.LotSize, tt.want.LotSize)
			}
			if got.LotSizeAssumed {
				t.Errorf("ParseAt(%q) unexpectedly flagged assumed lot size", tt.raw)
			}
		})
	}
}

func TestParseAt_Exchange(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Key
	}{
		{
			name: "future",
			raw:  "NIFTY25SEPFUT",
			want: Key{
				Underlying: "NIFTY",
				Class:      ClassFuture,
				Expiry:     Expiry{Year: 2025, Month: time.September},
			},
		},
		{
			name: "call",
			raw:  "RELIANCE25SEP1400CE",
			want: Key{
				Underlying: "RELIANCE",
				Class:      ClassCall,
				Expiry:     Expiry{Year: 2025, Month: time.September},
				Strike:     decimal.NewFromInt(1400),
			},
		},
		{
			name: "put with decimal strike",
			raw:  "NIFTY26JAN24550.5PE",
			want: Key{
				Underlying: "NIFTY",
				Class:      ClassPut,
				Expiry:     Expiry{Year: 2026, Month: time.January},
				Strike:     decimal.NewFromFloat(24550.5),
			},
		},
		{
			name: "plain equity",
			raw:  "RELIANCE",
			want: Key{Underlying: "RELIANCE", Class: ClassEquity},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustParse(t, tt.raw)
			if got.ID() != tt.want.ID() {
				t.Errorf("ParseAt(%q) = %s, want %s", tt.raw, got.ID(), tt.want.ID())
			}
		})
	}
}

// The same contract written in either convention must normalize to an
// identical key, including when the Bloomberg form carries a day-level date.
func TestParseAt_CrossConventionEquivalence(t *testing.T) {
	pairs := [][2]string{
		{"NIFTY=U5 Index", "NIFTY25SEPFUT"},
		{"RELIANCE 9/25/25 C1400 IS Equity", "RELIANCE25SEP1400CE"},
		{"NIFTY 9/30/25 P25000 Index", "NIFTY25SEP25000PE"},
		{"RELIANCE IS Equity", "RELIANCE"},
	}

	for _, pair := range pairs {
		a := mustParse(t, pair[0])
		b := mustParse(t, pair[1])
		if a.ID() != b.ID() {
			t.Errorf("%q and %q normalized differently: %s vs %s", pair[0], pair[1], a.ID(), b.ID())
		}
	}
}

// Normalization is idempotent: parsing a canonical ID yields the same key.
func TestParseAt_IDRoundTrip(t *testing.T) {
	raws := []string{
		"RELIANCE",
		"NIFTY25SEPFUT",
		"RELIANCE25SEP1400CE",
		"NIFTY 9/25/25 P25000 Index",
	}
	for _, raw := range raws {
		key := mustParse(t, raw)
		again := mustParse(t, key.ID())
		if again.ID() != key.ID() {
			t.Errorf("re-parsing ID %q gave %q", key.ID(), again.ID())
		}
	}
}

func TestParseAt_CaseAndWhitespaceInsensitive(t *testing.T) {
	want := mustParse(t, "RELIANCE25SEP1400CE")
	variants := []string{
		"reliance25sep1400ce",
		"  RELIANCE25SEP1400CE  ",
		"Reliance25Sep1400CE",
	}
	for _, raw := range variants {
		got := mustParse(t, raw)
		if got.ID() != want.ID() {
			t.Errorf("ParseAt(%q) = %s, want %s", raw, got.ID(), want.ID())
		}
	}

	spaced := mustParse(t, "reliance  9/25/25   c1400  is  equity")
	if spaced.ID() != "RELIANCE CALL 2025-09 1400" {
		t.Errorf("whitespace-collapsed parse = %s", spaced.ID())
	}
}

func TestParseAt_FuturesYearResolution(t *testing.T) {
	// The single year digit resolves to the nearest matching year no earlier
	// than five years before the reference date.
	tests := []struct {
		ref      time.Time
		raw      string
		wantYear int
	}{
		{time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), "NIFTY=U5 Index", 2025},
		{time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), "NIFTY=U6 Index", 2026},
		{time.Date(2028, time.June, 1, 0, 0, 0, 0, time.UTC), "NIFTY=U1 Index", 2031},
		{time.Date(2029, time.June, 1, 0, 0, 0, 0, time.UTC), "NIFTY=U4 Index", 2024},
	}
	for _, tt := range tests {
		key, err := ParseAt(tt.raw, testLots, tt.ref)
		if err != nil {
			t.Fatalf("ParseAt(%q) error: %v", tt.raw, err)
		}
		if key.Expiry.Year != tt.wantYear {
			t.Errorf("ParseAt(%q) at ref %d resolved year %d, want %d",
				tt.raw, tt.ref.Year(), key.Expiry.Year, tt.wantYear)
		}
	}
}

func TestParseAt_LotSizeDefaults(t *testing.T) {
	// Unknown underlying on a derivative: lot size 1, flagged.
	key := mustParse(t, "TCS25SEPFUT")
	if key.LotSize != 1 || !key.LotSizeAssumed {
		t.Errorf("unknown derivative lot size = (%d, assumed=%v), want (1, true)", key.LotSize, key.LotSizeAssumed)
	}

	// Equities always trade in single shares and are never flagged.
	eq := mustParse(t, "TCS")
	if eq.LotSize != 1 || eq.LotSizeAssumed {
		t.Errorf("equity lot size = (%d, assumed=%v), want (1, false)", eq.LotSize, eq.LotSizeAssumed)
	}
}

func TestParseAt_Errors(t *testing.T) {
	raws := []string{
		"",
		"   ",
		"NIFTY=U Index",
		"NIFTY=A5 Index",
		"RELIANCE 9/25/25 X1400 IS Equity",
		"RELIANCE 13/25/25 C1400 IS Equity",
		"RELIANCE 9/25/25 C-5 IS Equity",
		"RELIANCE 9/25/25 C1400 IS Bond",
		"RELIANCE25SEP",
		"NIFTY FUT",
		"NIFTY CALL 2025-09",
	}
	for _, raw := range raws {
		_, err := ParseAt(raw, testLots, testRef)
		if err == nil {
			t.Errorf("ParseAt(%q) succeeded, want error", raw)
			continue
		}
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("ParseAt(%q) error type %T, want *ParseError", raw, err)
		}
	}
}

func TestKeyID(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{Key{Underlying: "RELIANCE", Class: ClassEquity}, "RELIANCE"},
		{Key{Underlying: "NIFTY", Class: ClassFuture, Expiry: Expiry{2025, time.September}}, "NIFTY FUT 2025-09"},
		{
			Key{Underlying: "NIFTY", Class: ClassCall, Expiry: Expiry{2025, time.September}, Strike: decimal.NewFromInt(25000)},
			"NIFTY CALL 2025-09 25000",
		},
		{
			Key{Underlying: "RELIANCE", Class: ClassPut, Expiry: Expiry{2026, time.January}, Strike: decimal.NewFromFloat(1400.5)},
			"RELIANCE PUT 2026-01 1400.5",
		},
	}
	for _, tt := range tests {
		if got := tt.key.ID(); got != tt.want {
			t.Errorf("ID() = %q, want %q", got, tt.want)
		}
	}
}

func TestLotSizeTable_Lookup(t *testing.T) {
	table := LotSizeTable{"NIFTY": 50}
	if n, ok := table.Lookup("nifty"); n != 50 || !ok {
		t.Errorf("Lookup(nifty) = (%d, %v), want (50, true)", n, ok)
	}
	if n, ok := table.Lookup("MISSING"); n != 1 || ok {
		t.Errorf("Lookup(MISSING) = (%d, %v), want (1, false)", n, ok)
	}
}
