package lending

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewBank constructs a bank for one asset with unit share values. The asset
// name doubles as the bank identifier inside its group.
func NewBank(groupID uuid.UUID, asset, oracleRef string, cfg BankConfig, now int64) (*Bank, error) {
	asset = strings.TrimSpace(asset)
	if asset == "" {
		return nil, ErrInvalidBank
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Bank{
		Asset:               asset,
		GroupID:             groupID,
		OracleRef:           strings.TrimSpace(oracleRef),
		AssetShareValue:     one,
		LiabilityShareValue: one,
		Config:              cfg,
		LastAccrual:         now,
	}, nil
}

// TotalAssetAmount is the absolute deposit amount backing all asset shares.
func (b *Bank) TotalAssetAmount() decimal.Decimal {
	return b.TotalAssetShares.Mul(b.AssetShareValue)
}

// TotalLiabilityAmount is the absolute amount owed across all borrow shares.
func (b *Bank) TotalLiabilityAmount() decimal.Decimal {
	return b.TotalLiabilityShares.Mul(b.LiabilityShareValue)
}

// Utilization is total borrows over total deposits, zero when the pool is
// empty.
func (b *Bank) Utilization() decimal.Decimal {
	deposits := b.TotalAssetAmount()
	if deposits.IsZero() {
		return zero
	}
	return b.TotalLiabilityAmount().Div(deposits)
}

// AssetAmount converts asset shares to an absolute amount, rounding down so
// holders can never redeem more than they put in.
func (b *Bank) AssetAmount(shares decimal.Decimal) decimal.Decimal {
	return mulDown(shares, b.AssetShareValue)
}

// LiabilityAmount converts liability shares to the amount owed, rounding up
// so recorded debt never understates the obligation.
func (b *Bank) LiabilityAmount(shares decimal.Decimal) decimal.Decimal {
	return mulUp(shares, b.LiabilityShareValue)
}

// AssetSharesForDeposit converts a deposit amount to minted shares, rounding
// down (creating an asset).
func (b *Bank) AssetSharesForDeposit(amount decimal.Decimal) decimal.Decimal {
	return divDown(amount, b.AssetShareValue)
}

// AssetSharesForWithdraw converts a withdrawal amount to burned shares,
// rounding up (reducing an asset).
func (b *Bank) AssetSharesForWithdraw(amount decimal.Decimal) decimal.Decimal {
	return divUp(amount, b.AssetShareValue)
}

// LiabilitySharesForBorrow converts a borrow amount to minted liability
// shares, rounding up (creating a liability).
func (b *Bank) LiabilitySharesForBorrow(amount decimal.Decimal) decimal.Decimal {
	return divUp(amount, b.LiabilityShareValue)
}

// LiabilitySharesForRepay converts a repayment amount to burned liability
// shares, rounding down (reducing a liability).
func (b *Bank) LiabilitySharesForRepay(amount decimal.Decimal) decimal.Decimal {
	return divDown(amount, b.LiabilityShareValue)
}

// AssertOperational gates a flow against the bank's operational state.
// Exposure-increasing flows are refused while the bank is reduce-only.
func (b *Bank) AssertOperational(increasing bool) error {
	switch b.Config.State {
	case Paused:
		return ErrBankPaused
	case ReduceOnly:
		if increasing {
			return ErrBankReduceOnly
		}
	}
	return nil
}

// ChangeAssetShares applies a share delta to the deposit side, enforcing the
// deposit cap on increases.
func (b *Bank) ChangeAssetShares(delta decimal.Decimal) error {
	total := b.TotalAssetShares.Add(delta)
	if total.IsNegative() {
		return ErrInsufficientBalance
	}
	b.TotalAssetShares = total
	if delta.IsPositive() && b.Config.DepositLimit.IsPositive() {
		if b.TotalAssetAmount().GreaterThan(b.Config.DepositLimit) {
			return ErrCapExceeded
		}
	}
	return checkMagnitude(b.TotalAssetShares)
}

// ChangeLiabilityShares applies a share delta to the borrow side, enforcing
// the borrow cap on increases.
func (b *Bank) ChangeLiabilityShares(delta decimal.Decimal) error {
	total := b.TotalLiabilityShares.Add(delta)
	if total.IsNegative() {
		return ErrInsufficientBalance
	}
	b.TotalLiabilityShares = total
	if delta.IsPositive() && b.Config.LiabilityLimit.IsPositive() {
		if b.TotalLiabilityAmount().GreaterThan(b.Config.LiabilityLimit) {
			return ErrCapExceeded
		}
	}
	return checkMagnitude(b.TotalLiabilityShares)
}

// CheckSolvency enforces the pool invariant: the bank cannot lend out more
// than it holds. Runs after any flow that moves liquidity out of the pool.
func (b *Bank) CheckSolvency() error {
	if b.TotalLiabilityAmount().GreaterThan(b.TotalAssetAmount()) {
		return ErrInsufficientLiquidity
	}
	return nil
}

// Accrue compounds both share values for the time elapsed since the last
// accrual, using pre-accrual utilisation, and credits the fee streams. The
// elapsed time is clamped to maxGap so an idle bank cannot compound an
// unbounded window in one step. Calling twice with the same timestamp is a
// no-op.
func (b *Bank) Accrue(now int64, yearSeconds, maxGap int64) error {
	dt := now - b.LastAccrual
	if dt <= 0 {
		return nil
	}
	if maxGap > 0 && dt > maxGap {
		dt = maxGap
	}
	b.LastAccrual = now

	totalAssets := b.TotalAssetAmount()
	totalLiabilities := b.TotalLiabilityAmount()
	if totalAssets.IsZero() || totalLiabilities.IsZero() {
		return nil
	}

	rates, err := b.Config.Interest.CalcRates(totalLiabilities.Div(totalAssets))
	if err != nil {
		return err
	}

	period := decimal.NewFromInt(dt).Div(decimal.NewFromInt(yearSeconds))

	b.AssetShareValue = b.AssetShareValue.
		Mul(one.Add(rates.Lend.Mul(period))).
		RoundDown(shareValueScale)
	b.LiabilityShareValue = b.LiabilityShareValue.
		Mul(one.Add(rates.Borrow.Mul(period))).
		RoundDown(shareValueScale)

	b.CollectedGroupFees = b.CollectedGroupFees.
		Add(totalLiabilities.Mul(rates.GroupFee).Mul(period).RoundDown(fpScale))
	b.CollectedInsuranceFees = b.CollectedInsuranceFees.
		Add(totalLiabilities.Mul(rates.InsuranceFee).Mul(period).RoundDown(fpScale))

	return checkMagnitude(b.AssetShareValue, b.LiabilityShareValue,
		b.CollectedGroupFees, b.CollectedInsuranceFees)
}

// SocializeLoss spreads a written-off debt amount across depositors by
// scaling the asset share value down. The share value never drops below zero.
func (b *Bank) SocializeLoss(amount decimal.Decimal) {
	if b.TotalAssetShares.IsZero() || !amount.IsPositive() {
		return
	}
	remaining := b.TotalAssetAmount().Sub(amount)
	if remaining.IsNegative() {
		remaining = zero
	}
	b.AssetShareValue = remaining.DivRound(b.TotalAssetShares, shareValueScale)
}
