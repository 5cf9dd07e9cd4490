package quotes

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestStatic_Spot(t *testing.T) {
	s := NewStatic(map[string]Quote{
		"nifty": {Price: decimal.NewFromInt(25000), Currency: "INR"},
	})

	q, err := s.Spot(context.Background(), "NIFTY")
	if err != nil {
		t.Fatalf("Spot error: %v", err)
	}
	if q.Price.String() != "25000" || q.Currency != "INR" {
		t.Errorf("quote = %+v", q)
	}
}

func TestStatic_SpotUnavailable(t *testing.T) {
	s := NewStatic(nil)
	_, err := s.Spot(context.Background(), "NIFTY")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestStatic_Set(t *testing.T) {
	s := NewStatic(nil)
	s.Set("Reliance", Quote{Price: decimal.NewFromInt(1400)})

	q, err := s.Spot(context.Background(), "RELIANCE")
	if err != nil {
		t.Fatalf("Spot error: %v", err)
	}
	if q.Price.String() != "1400" {
		t.Errorf("price = %s, want 1400", q.Price)
	}
}

func TestStatic_CancelledContext(t *testing.T) {
	s := NewStatic(map[string]Quote{"NIFTY": {Price: decimal.NewFromInt(1)}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Spot(ctx, "NIFTY"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
