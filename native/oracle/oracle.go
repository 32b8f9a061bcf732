// Package oracle adapts external price feeds for the lending engine. Feeds
// report a point price together with a confidence interval and a source
// timestamp; the adapter enforces freshness and converts the interval into
// conservative low/high prices so the risk engine never trusts a point
// estimate blindly.
package oracle

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrStalePrice signals a quote older than the configured maximum age.
	ErrStalePrice = errors.New("oracle: stale price")
	// ErrUnknownFeed signals that no source can quote the requested reference.
	ErrUnknownFeed = errors.New("oracle: unknown feed reference")
	// ErrInvalidQuote signals a non-positive price or negative confidence.
	ErrInvalidQuote = errors.New("oracle: invalid quote")
)

// Quote is one observation from a price feed. Confidence is an absolute
// one-sided interval in price units.
type Quote struct {
	Price      decimal.Decimal `json:"price"`
	Confidence decimal.Decimal `json:"confidence"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Source resolves a quote for a feed reference.
type Source interface {
	Quote(ref string) (Quote, error)
}

// Bias selects which edge of the confidence interval a valuation uses.
type Bias uint8

const (
	// BiasNone returns the point price.
	BiasNone Bias = iota
	// BiasLow returns the conservative lower-bound price, used for collateral.
	BiasLow
	// BiasHigh returns the conservative upper-bound price, used for
	// liabilities.
	BiasHigh
)

var (
	defaultConfWeight = decimal.RequireFromString("2.12")
	defaultConfCap    = decimal.RequireFromString("0.05")
)

// Adapter wraps a Source with the staleness and confidence contract the
// engine relies on. The zero value is not usable; construct with NewAdapter.
type Adapter struct {
	source     Source
	maxAge     time.Duration
	confWeight decimal.Decimal
	confCap    decimal.Decimal
	now        func() time.Time
}

// Option customises an Adapter.
type Option func(*Adapter)

// WithConfWeight overrides the confidence-interval multiplier k.
func WithConfWeight(k decimal.Decimal) Option {
	return func(a *Adapter) { a.confWeight = k }
}

// WithConfCap bounds the confidence adjustment to a fraction of the price.
func WithConfCap(frac decimal.Decimal) Option {
	return func(a *Adapter) { a.confCap = frac }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// NewAdapter wires a source with a maximum quote age. The default confidence
// multiplier and cap follow the conservative-direction contract: the exact
// constants are policy and configurable.
func NewAdapter(source Source, maxAge time.Duration, opts ...Option) *Adapter {
	a := &Adapter{
		source:     source,
		maxAge:     maxAge,
		confWeight: defaultConfWeight,
		confCap:    defaultConfCap,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Price fetches a fresh quote for ref and applies the requested bias. The
// adjustment is k times the reported confidence, capped at a fraction of the
// price, subtracted for BiasLow and added for BiasHigh.
func (a *Adapter) Price(ref string, bias Bias) (decimal.Decimal, error) {
	q, err := a.source.Quote(ref)
	if err != nil {
		return decimal.Zero, err
	}
	if !q.Price.IsPositive() || q.Confidence.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidQuote, ref)
	}
	if a.maxAge > 0 {
		age := a.now().Sub(q.Timestamp)
		if age > a.maxAge {
			return decimal.Zero, fmt.Errorf("%w: %s is %s old", ErrStalePrice, ref, age.Truncate(time.Second))
		}
	}

	adj := a.confWeight.Mul(q.Confidence)
	if cap := a.confCap.Mul(q.Price); adj.GreaterThan(cap) {
		adj = cap
	}
	switch bias {
	case BiasLow:
		low := q.Price.Sub(adj)
		if low.IsNegative() {
			low = decimal.Zero
		}
		return low, nil
	case BiasHigh:
		return q.Price.Add(adj), nil
	default:
		return q.Price, nil
	}
}

// StaticSource serves quotes from memory. Used for tests and bootstrap
// fixtures.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewStaticSource constructs an empty in-memory source.
func NewStaticSource() *StaticSource {
	return &StaticSource{quotes: make(map[string]Quote)}
}

// Set stores or replaces the quote for a reference.
func (s *StaticSource) Set(ref string, q Quote) {
	s.mu.Lock()
	s.quotes[strings.TrimSpace(ref)] = q
	s.mu.Unlock()
}

// Quote implements Source.
func (s *StaticSource) Quote(ref string) (Quote, error) {
	s.mu.RLock()
	q, ok := s.quotes[strings.TrimSpace(ref)]
	s.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownFeed, ref)
	}
	return q, nil
}

// Aggregator consults registered sources in priority order until one returns
// a usable quote. Identifiers are stored lowercase so lookups stay consistent
// regardless of configuration casing.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	sources  map[string]Source
}

// NewAggregator constructs an aggregator with an optional initial priority.
func NewAggregator(priority ...string) *Aggregator {
	agg := &Aggregator{sources: make(map[string]Source)}
	for _, name := range priority {
		if trimmed := strings.ToLower(strings.TrimSpace(name)); trimmed != "" {
			agg.priority = append(agg.priority, trimmed)
		}
	}
	return agg
}

// Register adds or replaces a source under the supplied identifier, appending
// it to the priority order when new.
func (agg *Aggregator) Register(name string, source Source) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" || source == nil {
		return
	}
	agg.mu.Lock()
	defer agg.mu.Unlock()
	if _, exists := agg.sources[trimmed]; !exists {
		found := false
		for _, entry := range agg.priority {
			if entry == trimmed {
				found = true
				break
			}
		}
		if !found {
			agg.priority = append(agg.priority, trimmed)
		}
	}
	agg.sources[trimmed] = source
}

// Quote implements Source by returning the first usable quote in priority
// order. The last error is surfaced when every source fails.
func (agg *Aggregator) Quote(ref string) (Quote, error) {
	agg.mu.RLock()
	priority := append([]string{}, agg.priority...)
	agg.mu.RUnlock()

	lastErr := fmt.Errorf("%w: %s", ErrUnknownFeed, ref)
	for _, name := range priority {
		agg.mu.RLock()
		source := agg.sources[name]
		agg.mu.RUnlock()
		if source == nil {
			continue
		}
		q, err := source.Quote(ref)
		if err != nil {
			lastErr = err
			continue
		}
		if !q.Price.IsPositive() {
			lastErr = fmt.Errorf("%w: %s via %s", ErrInvalidQuote, ref, name)
			continue
		}
		return q, nil
	}
	return Quote{}, lastErr
}
