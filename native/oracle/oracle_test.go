package oracle

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var quoteTime = time.Unix(1_700_000_000, 0).UTC()

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestAdapterBias(t *testing.T) {
	source := NewStaticSource()
	source.Set("gold", Quote{Price: dec("2000"), Confidence: dec("10"), Timestamp: quoteTime})
	adapter := NewAdapter(source, time.Minute,
		WithClock(fixedClock(quoteTime)),
		WithConfWeight(dec("2")),
	)

	low, err := adapter.Price("gold", BiasLow)
	if err != nil {
		t.Fatalf("low price: %v", err)
	}
	if !low.Equal(dec("1980")) {
		t.Fatalf("low price: got %s want 1980", low)
	}

	high, err := adapter.Price("gold", BiasHigh)
	if err != nil {
		t.Fatalf("high price: %v", err)
	}
	if !high.Equal(dec("2020")) {
		t.Fatalf("high price: got %s want 2020", high)
	}

	point, err := adapter.Price("gold", BiasNone)
	if err != nil {
		t.Fatalf("point price: %v", err)
	}
	if !point.Equal(dec("2000")) {
		t.Fatalf("point price: got %s want 2000", point)
	}
}

func TestAdapterConfidenceCap(t *testing.T) {
	source := NewStaticSource()
	// A wild confidence of 500 would shift the price by 1000 at k=2; the
	// 5% cap limits the shift to 100.
	source.Set("gold", Quote{Price: dec("2000"), Confidence: dec("500"), Timestamp: quoteTime})
	adapter := NewAdapter(source, 0,
		WithClock(fixedClock(quoteTime)),
		WithConfWeight(dec("2")),
		WithConfCap(dec("0.05")),
	)

	low, err := adapter.Price("gold", BiasLow)
	if err != nil {
		t.Fatalf("low price: %v", err)
	}
	if !low.Equal(dec("1900")) {
		t.Fatalf("capped low price: got %s want 1900", low)
	}
}

func TestAdapterLowPriceFloorsAtZero(t *testing.T) {
	source := NewStaticSource()
	source.Set("dust", Quote{Price: dec("1"), Confidence: dec("400"), Timestamp: quoteTime})
	adapter := NewAdapter(source, 0,
		WithClock(fixedClock(quoteTime)),
		WithConfCap(dec("2")),
	)

	low, err := adapter.Price("dust", BiasLow)
	if err != nil {
		t.Fatalf("low price: %v", err)
	}
	if !low.IsZero() {
		t.Fatalf("low price must floor at zero, got %s", low)
	}
}

func TestAdapterRejectsStaleQuote(t *testing.T) {
	source := NewStaticSource()
	source.Set("gold", Quote{Price: dec("2000"), Timestamp: quoteTime})
	adapter := NewAdapter(source, time.Minute,
		WithClock(fixedClock(quoteTime.Add(2*time.Minute))),
	)

	if _, err := adapter.Price("gold", BiasNone); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}

	fresh := NewAdapter(source, time.Minute, WithClock(fixedClock(quoteTime.Add(30*time.Second))))
	if _, err := fresh.Price("gold", BiasNone); err != nil {
		t.Fatalf("fresh quote rejected: %v", err)
	}
}

func TestAdapterRejectsInvalidQuote(t *testing.T) {
	source := NewStaticSource()
	source.Set("bad", Quote{Price: dec("0"), Timestamp: quoteTime})
	adapter := NewAdapter(source, 0, WithClock(fixedClock(quoteTime)))

	if _, err := adapter.Price("bad", BiasNone); !errors.Is(err, ErrInvalidQuote) {
		t.Fatalf("expected ErrInvalidQuote, got %v", err)
	}
	if _, err := adapter.Price("missing", BiasNone); !errors.Is(err, ErrUnknownFeed) {
		t.Fatalf("expected ErrUnknownFeed, got %v", err)
	}
}

func TestAggregatorPriorityOrder(t *testing.T) {
	primary := NewStaticSource()
	fallback := NewStaticSource()
	fallback.Set("gold", Quote{Price: dec("1990"), Timestamp: quoteTime})

	agg := NewAggregator("primary", "fallback")
	agg.Register("primary", primary)
	agg.Register("fallback", fallback)

	// Primary has no quote, so the fallback answers.
	q, err := agg.Quote("gold")
	if err != nil {
		t.Fatalf("aggregate quote: %v", err)
	}
	if !q.Price.Equal(dec("1990")) {
		t.Fatalf("expected fallback price, got %s", q.Price)
	}

	// Once primary can quote, it wins.
	primary.Set("gold", Quote{Price: dec("2000"), Timestamp: quoteTime})
	q, err = agg.Quote("gold")
	if err != nil {
		t.Fatalf("aggregate quote: %v", err)
	}
	if !q.Price.Equal(dec("2000")) {
		t.Fatalf("expected primary price, got %s", q.Price)
	}
}

func TestAggregatorSurfacesLastError(t *testing.T) {
	agg := NewAggregator()
	if _, err := agg.Quote("gold"); !errors.Is(err, ErrUnknownFeed) {
		t.Fatalf("expected ErrUnknownFeed, got %v", err)
	}
}
