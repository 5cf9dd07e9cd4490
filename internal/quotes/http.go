package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// HTTPConfig tunes the HTTP quote client.
type HTTPConfig struct {
	Endpoint       string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	// Breaker thresholds
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

// DefaultHTTPConfig is used for fields left zero in HTTPConfig.
var DefaultHTTPConfig = HTTPConfig{
	Timeout:        5 * time.Second,
	MaxRetries:     2,
	InitialBackoff: 250 * time.Millisecond,
	MinRequests:    5,
	FailureRatio:   0.6,
	OpenTimeout:    30 * time.Second,
}

// HTTPProvider fetches spot prices from a quote endpoint. Transient failures
// are retried with exponential backoff and the endpoint is wrapped in a
// circuit breaker so a dead quote service cannot stall a whole run; once the
// breaker opens, lookups fail fast as unavailable.
type HTTPProvider struct {
	cfg     HTTPConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewHTTPProvider builds an HTTP quote client. Zero config fields fall back
// to DefaultHTTPConfig.
func NewHTTPProvider(cfg HTTPConfig, logger *logrus.Logger) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPConfig.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultHTTPConfig.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultHTTPConfig.InitialBackoff
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = DefaultHTTPConfig.MinRequests
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = DefaultHTTPConfig.FailureRatio
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultHTTPConfig.OpenTimeout
	}

	settings := gobreaker.Settings{
		Name:    "QuoteProvider",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
		// A missing symbol is a valid answer, not a service failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnavailable)
		},
	}

	return &HTTPProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

type quoteResponse struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Stale    bool    `json:"stale"`
}

// Spot implements Provider. A 404 from the endpoint and an open breaker both
// map to ErrUnavailable.
func (p *HTTPProvider) Spot(ctx context.Context, underlying string) (Quote, error) {
	var lastErr error
	backoff := p.cfg.InitialBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Quote{}, err
		}

		q, err := p.fetch(ctx, underlying)
		if err == nil {
			return q, nil
		}
		if errors.Is(err, ErrUnavailable) || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Quote{}, ErrUnavailable
		}
		lastErr = err
		p.logger.WithField("underlying", underlying).
			Warnf("quote fetch attempt %d/%d failed: %v", attempt+1, p.cfg.MaxRetries+1, err)

		if attempt < p.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return Quote{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return Quote{}, fmt.Errorf("fetching quote for %s: %w", underlying, lastErr)
}

func (p *HTTPProvider) fetch(ctx context.Context, underlying string) (Quote, error) {
	res, err := p.breaker.Execute(func() (interface{}, error) {
		u := fmt.Sprintf("%s?symbol=%s", p.cfg.Endpoint, url.QueryEscape(underlying))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrUnavailable
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("quote endpoint returned %s", resp.Status)
		}

		var body quoteResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decoding quote response: %w", err)
		}
		if body.Price <= 0 {
			return nil, ErrUnavailable
		}
		return Quote{
			Price:    decimal.NewFromFloat(body.Price),
			Currency: body.Currency,
			Stale:    body.Stale,
		}, nil
	})
	if err != nil {
		return Quote{}, err
	}
	return res.(Quote), nil
}
