package lending

import (
	"errors"
	"testing"
)

func TestCurveBelowKink(t *testing.T) {
	cfg := testRateConfig()

	// base 1%, optimal 10%, kink 80%: at 40% utilisation the curve reads
	// 0.01 + (0.4/0.8)*(0.1-0.01) = 5.5%.
	got := cfg.Curve(dec("0.4"))
	if !got.Equal(dec("0.055")) {
		t.Fatalf("unexpected curve rate: got %s want 0.055", got)
	}

	if got := cfg.Curve(dec("0")); !got.Equal(dec("0.01")) {
		t.Fatalf("rate at zero utilisation: got %s want 0.01", got)
	}
	if got := cfg.Curve(dec("0.8")); !got.Equal(dec("0.1")) {
		t.Fatalf("rate at the kink: got %s want 0.1", got)
	}
}

func TestCurveAboveKink(t *testing.T) {
	cfg := testRateConfig()

	// Above the kink the slope steepens toward the max rate:
	// 0.1 + (0.9-0.8)/(1-0.8)*(3-0.1) = 1.55.
	if got := cfg.Curve(dec("0.9")); !got.Equal(dec("1.55")) {
		t.Fatalf("unexpected rate above kink: got %s want 1.55", got)
	}
	if got := cfg.Curve(dec("1")); !got.Equal(dec("3")) {
		t.Fatalf("rate at full utilisation: got %s want 3", got)
	}
	// Out-of-range utilisation clamps rather than extrapolating.
	if got := cfg.Curve(dec("1.5")); !got.Equal(dec("3")) {
		t.Fatalf("rate above full utilisation: got %s want 3", got)
	}
	if got := cfg.Curve(dec("-0.5")); !got.Equal(dec("0.01")) {
		t.Fatalf("rate below zero utilisation: got %s want 0.01", got)
	}
}

func TestCalcRatesDeterministic(t *testing.T) {
	cfg := testRateConfig()
	cfg.ProtocolIRFee = dec("0.1")
	cfg.InsuranceIRFee = dec("0.1")

	first, err := cfg.CalcRates(dec("0.4"))
	if err != nil {
		t.Fatalf("calc rates: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := cfg.CalcRates(dec("0.4"))
		if err != nil {
			t.Fatalf("calc rates: %v", err)
		}
		if !again.Borrow.Equal(first.Borrow) || !again.Lend.Equal(first.Lend) {
			t.Fatalf("rates must be deterministic: %+v vs %+v", again, first)
		}
	}
}

func TestCalcRatesConservation(t *testing.T) {
	cfg := testRateConfig()
	cfg.ProtocolIRFee = dec("0.1")
	cfg.InsuranceIRFee = dec("0.1")

	u := dec("0.4")
	rates, err := cfg.CalcRates(u)
	if err != nil {
		t.Fatalf("calc rates: %v", err)
	}

	// Interest paid by borrowers funds depositors plus both fee streams
	// exactly: borrow = lend/u + groupFee + insuranceFee.
	paid := rates.Borrow
	distributed := rates.Lend.Div(u).Add(rates.GroupFee).Add(rates.InsuranceFee)
	if !paid.Equal(distributed) {
		t.Fatalf("interest not conserved: paid %s distributed %s", paid, distributed)
	}
}

func TestCalcRatesFixedAprs(t *testing.T) {
	cfg := testRateConfig()
	cfg.ProtocolFixedAPR = dec("0.002")
	cfg.InsuranceFixedAPR = dec("0.001")

	rates, err := cfg.CalcRates(dec("0.4"))
	if err != nil {
		t.Fatalf("calc rates: %v", err)
	}
	if !rates.Borrow.Equal(dec("0.058")) {
		t.Fatalf("borrow rate with fixed APRs: got %s want 0.058", rates.Borrow)
	}
	if !rates.GroupFee.Equal(dec("0.002")) {
		t.Fatalf("group fee: got %s want 0.002", rates.GroupFee)
	}
	if !rates.InsuranceFee.Equal(dec("0.001")) {
		t.Fatalf("insurance fee: got %s want 0.001", rates.InsuranceFee)
	}
}

func TestInterestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*InterestRateConfig)
	}{
		{"kink at zero", func(c *InterestRateConfig) { c.OptimalUtilization = zero }},
		{"kink at one", func(c *InterestRateConfig) { c.OptimalUtilization = one }},
		{"negative base", func(c *InterestRateConfig) { c.BaseRate = dec("-0.01") }},
		{"optimal below base", func(c *InterestRateConfig) { c.OptimalRate = dec("0.005") }},
		{"max below optimal", func(c *InterestRateConfig) { c.MaxRate = dec("0.05") }},
		{"fees at one", func(c *InterestRateConfig) {
			c.ProtocolIRFee = dec("0.5")
			c.InsuranceIRFee = dec("0.5")
		}},
		{"negative fixed apr", func(c *InterestRateConfig) { c.ProtocolFixedAPR = dec("-1") }},
	}
	for _, tc := range cases {
		cfg := testRateConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
	}
	if err := testRateConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
