// Package quotes provides the price-quote capability consumed by the
// deliverables calculator. A quote may be slow, stale or absent; consumers
// bound lookups with a context and degrade to "unknown" records when no quote
// arrives, so ErrUnavailable is an expected outcome rather than a failure.
package quotes

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrUnavailable reports that no spot price exists for the requested
// underlying. It is propagated into deliverable records as an unknown marker,
// never thrown up the stack.
var ErrUnavailable = errors.New("quote unavailable")

// Quote is a spot price in the instrument's native currency.
type Quote struct {
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Stale    bool            `json:"stale,omitempty"`
}

// Provider returns the spot price for an underlying identifier.
type Provider interface {
	Spot(ctx context.Context, underlying string) (Quote, error)
}

// Static serves quotes from a fixed map, used for file-fed runs and tests.
// Lookups are case-insensitive. Safe for concurrent use.
type Static struct {
	mu     sync.RWMutex
	prices map[string]Quote
}

// NewStatic builds a static provider from an underlying -> quote map.
func NewStatic(prices map[string]Quote) *Static {
	s := &Static{prices: make(map[string]Quote, len(prices))}
	for sym, q := range prices {
		s.prices[strings.ToUpper(sym)] = q
	}
	return s
}

// Set adds or replaces a quote.
func (s *Static) Set(underlying string, q Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[strings.ToUpper(underlying)] = q
}

// Spot implements Provider.
func (s *Static) Spot(ctx context.Context, underlying string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.prices[strings.ToUpper(underlying)]
	if !ok {
		return Quote{}, ErrUnavailable
	}
	return q, nil
}
