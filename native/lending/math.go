package lending

import (
	"github.com/shopspring/decimal"
)

// fpScale is the number of fractional digits kept when converting between
// amounts and shares. Conversions round in the protocol's favour so that
// repeated round trips can never mint value for the caller.
const fpScale = 12

// shareValueScale bounds the digit growth of the accrual indices. Truncating
// keeps the indices monotonically non-decreasing because the pre-accrual
// value is always representable at this scale.
const shareValueScale = 24

var (
	one  = decimal.NewFromInt(1)
	zero = decimal.Zero

	// maxMagnitude caps every monetary quantity and index the engine stores.
	// Crossing it aborts the operation with ErrMathOverflow instead of letting
	// adversarial inputs grow without bound.
	maxMagnitude = decimal.New(1, 30)

	// emptyBalanceEpsilon is the share quantity below which a balance slot is
	// considered empty and reclaimed.
	emptyBalanceEpsilon = decimal.New(1, -9)

	// healthTolerance absorbs conversion rounding when comparing health
	// factors before and after a liquidation.
	healthTolerance = decimal.New(1, -9)
)

func divDown(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, fpScale+4).RoundDown(fpScale)
}

func divUp(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, fpScale+4).RoundUp(fpScale)
}

func mulDown(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).RoundDown(fpScale)
}

func mulUp(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).RoundUp(fpScale)
}

func minDecimal(values ...decimal.Decimal) decimal.Decimal {
	out := values[0]
	for _, v := range values[1:] {
		if v.LessThan(out) {
			out = v
		}
	}
	return out
}

// checkMagnitude verifies that every supplied quantity is inside the
// representable range.
func checkMagnitude(values ...decimal.Decimal) error {
	for _, v := range values {
		if v.Abs().GreaterThan(maxMagnitude) {
			return ErrMathOverflow
		}
	}
	return nil
}
