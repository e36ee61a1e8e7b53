package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestManualOracleRoundTrip(t *testing.T) {
	manual := NewManualOracle()
	ts := time.Unix(1_700_000_000, 0)
	if err := manual.SetDecimal("sol/usd", "150.25", ts); err != nil {
		t.Fatalf("set decimal: %v", err)
	}

	quote, err := manual.GetPrice("SOL/USD")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if quote.Price.Cmp(big.NewRat(15025, 100)) != 0 {
		t.Fatalf("unexpected price: %s", quote.Price)
	}
	if !quote.Timestamp.Equal(ts) {
		t.Fatalf("unexpected timestamp: %s", quote.Timestamp)
	}

	if _, err := manual.GetPrice("BTC/USD"); !errors.Is(err, ErrFeedNotFound) {
		t.Fatalf("expected feed not found, got %v", err)
	}
}

func TestManualOracleRejectsInvalidPrices(t *testing.T) {
	manual := NewManualOracle()
	if err := manual.SetDecimal("SOL/USD", "", time.Now()); err == nil {
		t.Fatalf("expected error for empty price")
	}
	if err := manual.SetDecimal("SOL/USD", "-3", time.Now()); err == nil {
		t.Fatalf("expected error for negative price")
	}
	if err := manual.SetDecimal("SOL/USD", "abc", time.Now()); err == nil {
		t.Fatalf("expected error for malformed price")
	}
}

func TestAggregatorEnforcesFreshness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	manual := NewManualOracle()
	manual.Set("SOL/USD", big.NewRat(150, 1), now.Add(-10*time.Minute))

	agg := NewAggregator([]string{"manual"}, 2*time.Minute)
	agg.SetNowFunc(func() time.Time { return now })
	agg.Register("manual", manual)

	if _, err := agg.GetPrice("SOL/USD"); !errors.Is(err, ErrNoFreshQuote) {
		t.Fatalf("expected stale quote rejection, got %v", err)
	}

	manual.Set("SOL/USD", big.NewRat(150, 1), now.Add(-time.Minute))
	quote, err := agg.GetPrice("SOL/USD")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if quote.Price.Cmp(big.NewRat(150, 1)) != 0 {
		t.Fatalf("unexpected price: %s", quote.Price)
	}
	if quote.Source != "manual" {
		t.Fatalf("unexpected source: %s", quote.Source)
	}
}

func TestAggregatorPriorityFallback(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	primary := NewManualOracle()
	secondary := NewManualOracle()
	secondary.Set("SOL/USD", big.NewRat(151, 1), now)

	agg := NewAggregator([]string{"primary", "secondary"}, 0)
	agg.SetNowFunc(func() time.Time { return now })
	agg.Register("primary", primary)
	agg.Register("secondary", secondary)

	quote, err := agg.GetPrice("SOL/USD")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if quote.Price.Cmp(big.NewRat(151, 1)) != 0 {
		t.Fatalf("unexpected price: %s", quote.Price)
	}
	if quote.Source != "secondary" {
		t.Fatalf("unexpected source: %s", quote.Source)
	}
}

func TestConfigNormaliseDefaults(t *testing.T) {
	cfg := Config{}.Normalise()
	if cfg.MaxQuoteAgeSeconds != 120 {
		t.Fatalf("unexpected max quote age: %d", cfg.MaxQuoteAgeSeconds)
	}
	if len(cfg.Priority) != 1 || cfg.Priority[0] != "manual" {
		t.Fatalf("unexpected priority: %v", cfg.Priority)
	}
	if cfg.MaxQuoteAge() != 2*time.Minute {
		t.Fatalf("unexpected duration: %s", cfg.MaxQuoteAge())
	}
}
