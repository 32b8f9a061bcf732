package lending

import (
	"github.com/shopspring/decimal"
)

// Rates is the output of the interest rate model for one utilisation point.
// All values are annualised fractions.
type Rates struct {
	// Borrow is the rate charged on outstanding liabilities, fee components
	// included.
	Borrow decimal.Decimal
	// Lend is the rate credited to deposits.
	Lend decimal.Decimal
	// GroupFee and InsuranceFee accrue on outstanding liabilities and are
	// routed to the group treasury and insurance fund.
	GroupFee     decimal.Decimal
	InsuranceFee decimal.Decimal
}

// Curve evaluates the kinked borrow-rate curve at the given utilisation.
// Below the kink the rate rises linearly from the base rate to the optimal
// rate; above it, linearly (and steeper) from the optimal rate to the max
// rate. Utilisation is clamped to [0,1].
func (c InterestRateConfig) Curve(utilization decimal.Decimal) decimal.Decimal {
	u := utilization
	if u.IsNegative() {
		u = zero
	}
	if u.GreaterThan(one) {
		u = one
	}
	kink := c.OptimalUtilization
	if u.LessThanOrEqual(kink) {
		// base + u/kink * (optimal - base)
		return c.BaseRate.Add(u.Div(kink).Mul(c.OptimalRate.Sub(c.BaseRate)))
	}
	// optimal + (u-kink)/(1-kink) * (max - optimal)
	excess := u.Sub(kink).Div(one.Sub(kink))
	return c.OptimalRate.Add(excess.Mul(c.MaxRate.Sub(c.OptimalRate)))
}

// CalcRates derives the full rate set for a utilisation point. The model is a
// pure function: identical inputs always produce identical outputs, which the
// accrual step relies on for idempotence within a time unit.
//
// The lend rate is the borrow curve scaled by utilisation and reduced by the
// interest fee fraction, so interest paid by borrowers exactly covers interest
// credited to depositors plus the fee streams.
func (c InterestRateConfig) CalcRates(utilization decimal.Decimal) (Rates, error) {
	if err := c.Validate(); err != nil {
		return Rates{}, err
	}
	u := utilization
	if u.IsNegative() {
		u = zero
	}
	if u.GreaterThan(one) {
		u = one
	}

	curve := c.Curve(u)
	feeFraction := c.ProtocolIRFee.Add(c.InsuranceIRFee)

	rates := Rates{
		Borrow:       curve.Add(c.ProtocolFixedAPR).Add(c.InsuranceFixedAPR),
		Lend:         curve.Mul(u).Mul(one.Sub(feeFraction)),
		GroupFee:     curve.Mul(c.ProtocolIRFee).Add(c.ProtocolFixedAPR),
		InsuranceFee: curve.Mul(c.InsuranceIRFee).Add(c.InsuranceFixedAPR),
	}
	if rates.Borrow.IsNegative() || rates.Lend.IsNegative() {
		return Rates{}, ErrInvalidConfig
	}
	return rates, nil
}

// Validate checks the curve shape and fee fractions.
func (c InterestRateConfig) Validate() error {
	if c.OptimalUtilization.LessThanOrEqual(zero) || c.OptimalUtilization.GreaterThanOrEqual(one) {
		return ErrInvalidConfig
	}
	if c.BaseRate.IsNegative() {
		return ErrInvalidConfig
	}
	if c.OptimalRate.LessThan(c.BaseRate) {
		return ErrInvalidConfig
	}
	if c.MaxRate.LessThan(c.OptimalRate) {
		return ErrInvalidConfig
	}
	if c.ProtocolIRFee.IsNegative() || c.InsuranceIRFee.IsNegative() {
		return ErrInvalidConfig
	}
	if c.ProtocolIRFee.Add(c.InsuranceIRFee).GreaterThanOrEqual(one) {
		return ErrInvalidConfig
	}
	if c.ProtocolFixedAPR.IsNegative() || c.InsuranceFixedAPR.IsNegative() {
		return ErrInvalidConfig
	}
	return nil
}
