package lending

import (
	"fmt"

	"github.com/shopspring/decimal"

	"astrolend/native/oracle"
)

// LiquidationReceipt reports how a settlement was sized and split.
type LiquidationReceipt struct {
	// RepaidAmount is the liability repaid, in liability-bank units.
	RepaidAmount decimal.Decimal `json:"repaidAmount"`
	// RepaidValue is the conservative (high-biased) value of the repayment.
	RepaidValue decimal.Decimal `json:"repaidValue"`
	// SeizedAmount is the collateral leaving the liquidated account, in
	// collateral-bank units.
	SeizedAmount decimal.Decimal `json:"seizedAmount"`
	// LiquidatorAmount is the collateral credited to the liquidator.
	LiquidatorAmount decimal.Decimal `json:"liquidatorAmount"`
	// InsuranceAmount is the collateral routed to the bank's insurance fund.
	InsuranceAmount decimal.Decimal `json:"insuranceAmount"`
}

// Liquidate settles part of an undercollateralised account: the liquidator
// assumes up to amount of the account's liability on liabilityAsset and
// receives bonus-adjusted collateral from collateralAsset, with the insurance
// fund taking its configured cut. The whole operation validates on working
// copies and aborts without partial state on any failure.
//
// Sizing is bounded by the nominated amount, the outstanding liability, the
// bank's close factor, and the repayment that would restore the account's
// maintenance health to exactly one.
func (e *Engine) Liquidate(liquidatorID, liquidateeID AccountID, liabilityAsset, collateralAsset string, amount decimal.Decimal) (*LiquidationReceipt, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if liquidatorID == liquidateeID {
		return nil, fmt.Errorf("%w: cannot self-liquidate", ErrInvalidAccount)
	}
	if liabilityAsset == collateralAsset {
		return nil, fmt.Errorf("%w: liability and collateral bank must differ", ErrInvalidBank)
	}

	liquidatee, liabBank, err := e.loadPair(liquidateeID, liabilityAsset)
	if err != nil {
		return nil, err
	}
	liquidator, collBank, err := e.loadPair(liquidatorID, collateralAsset)
	if err != nil {
		return nil, err
	}
	if liabBank.GroupID != collBank.GroupID {
		return nil, ErrGroupMismatch
	}

	if err := e.accrue(liabBank); err != nil {
		return nil, err
	}
	if err := e.accrue(collBank); err != nil {
		return nil, err
	}
	// Liquidation reduces risk, so reduce-only banks still allow it.
	if liabBank.Config.State == Paused || collBank.Config.State == Paused {
		return nil, ErrBankPaused
	}

	view := newBankView(e, liabBank, collBank)

	pre, err := e.health(liquidatee, Maintenance, view)
	if err != nil {
		return nil, err
	}
	if pre.Healthy() {
		return nil, ErrAccountHealthy
	}

	liabBal := liquidatee.Balance(liabBank.Asset)
	if liabBal == nil || !liabBal.LiabilityShares.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrNoDebtToRepay, liabilityAsset)
	}
	collBal := liquidatee.Balance(collBank.Asset)
	if collBal == nil || !collBal.AssetShares.IsPositive() {
		return nil, fmt.Errorf("%w: no %s collateral", ErrInsufficientCollateral, collateralAsset)
	}

	liabPrice, err := e.prices.Price(liabBank.OracleRef, oracle.BiasHigh)
	if err != nil {
		return nil, err
	}
	collPrice, err := e.prices.Price(collBank.OracleRef, oracle.BiasLow)
	if err != nil {
		return nil, err
	}
	if !liabPrice.IsPositive() || !collPrice.IsPositive() {
		return nil, oracle.ErrInvalidQuote
	}

	bonus := collBank.Config.LiquidationBonus
	repay := e.sizeLiquidation(amount, pre, liabBank, collBank, liabBal, liabPrice, bonus)
	if !repay.IsPositive() {
		return nil, ErrInvalidAmount
	}

	// Value flows: the liquidator assumes debt worth repaidValue and is owed
	// collateral worth repaidValue plus the bonus; the insurance fund's cut
	// comes out of that bonus.
	repaidValue := repay.Mul(liabPrice)
	seizedValue := repaidValue.Mul(one.Add(bonus))
	insuranceValue := repaidValue.Mul(collBank.Config.InsuranceFeeCut)
	liquidatorValue := seizedValue.Sub(insuranceValue)

	seizedAmount := divUp(seizedValue, collPrice)
	if seizedAmount.GreaterThan(collBank.AssetAmount(collBal.AssetShares)) {
		return nil, fmt.Errorf("%w: need %s %s", ErrInsufficientCollateral, seizedAmount, collateralAsset)
	}
	liquidatorAmount := divDown(liquidatorValue, collPrice)
	insuranceAmount := seizedAmount.Sub(liquidatorAmount)

	// Liability side: the debt moves from the liquidatee to the liquidator.
	burned := liabBank.LiabilitySharesForRepay(repay)
	if burned.GreaterThan(liabBal.LiabilityShares) {
		burned = liabBal.LiabilityShares
	}
	liabBal.LiabilityShares = liabBal.LiabilityShares.Sub(burned)

	liqLiabBal, err := liquidator.EnsureBalance(liabBank.Asset)
	if err != nil {
		return nil, err
	}
	if liqLiabBal.AssetShares.IsPositive() {
		return nil, fmt.Errorf("%w: liquidator holds %s deposit", ErrBalanceConflict, liabilityAsset)
	}
	assumed := liabBank.LiabilitySharesForBorrow(repay)
	liqLiabBal.LiabilityShares = liqLiabBal.LiabilityShares.Add(assumed)
	if err := liabBank.ChangeLiabilityShares(assumed.Sub(burned)); err != nil {
		return nil, err
	}

	// Collateral side: shares leave the liquidatee; the liquidator is minted
	// its payout and the insurance slice leaves the share pool entirely.
	seizedShares := collBank.AssetSharesForWithdraw(seizedAmount)
	if seizedShares.GreaterThan(collBal.AssetShares) {
		seizedShares = collBal.AssetShares
	}
	collBal.AssetShares = collBal.AssetShares.Sub(seizedShares)

	liqCollBal, err := liquidator.EnsureBalance(collBank.Asset)
	if err != nil {
		return nil, err
	}
	if liqCollBal.LiabilityShares.IsPositive() {
		return nil, fmt.Errorf("%w: liquidator owes %s debt", ErrBalanceConflict, collateralAsset)
	}
	mintedShares := collBank.AssetSharesForDeposit(liquidatorAmount)
	liqCollBal.AssetShares = liqCollBal.AssetShares.Add(mintedShares)
	if err := collBank.ChangeAssetShares(mintedShares.Sub(seizedShares)); err != nil {
		return nil, err
	}
	collBank.CollectedInsuranceFees = collBank.CollectedInsuranceFees.Add(insuranceAmount)

	for _, prune := range []struct {
		bal  *Balance
		bank *Bank
	}{
		{liabBal, liabBank},
		{collBal, collBank},
		{liqLiabBal, liabBank},
		{liqCollBal, collBank},
	} {
		if err := pruneBalance(prune.bal, prune.bank); err != nil {
			return nil, err
		}
	}

	// The insurance slice removes deposit backing from the collateral bank,
	// so the pool invariant must hold before anything is committed.
	if err := liabBank.CheckSolvency(); err != nil {
		return nil, err
	}
	if err := collBank.CheckSolvency(); err != nil {
		return nil, err
	}

	// Post-checks: the liquidatee must not be worse off in relative terms,
	// and the liquidator must remain healthy under initial weights.
	post, err := e.health(liquidatee, Maintenance, view)
	if err != nil {
		return nil, err
	}
	if !post.Unbounded && post.Factor.Add(healthTolerance).LessThan(pre.Factor) {
		return nil, fmt.Errorf("%w: liquidation would lower health from %s to %s",
			ErrHealthCheckFailed, pre.Factor, post.Factor)
	}
	if err := e.checkHealth(liquidator, Initial, view); err != nil {
		return nil, err
	}

	if err := e.state.PutBank(liabBank); err != nil {
		return nil, err
	}
	if err := e.state.PutBank(collBank); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(liquidatee); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(liquidator); err != nil {
		return nil, err
	}

	return &LiquidationReceipt{
		RepaidAmount:     repay,
		RepaidValue:      repaidValue,
		SeizedAmount:     seizedAmount,
		LiquidatorAmount: liquidatorAmount,
		InsuranceAmount:  insuranceAmount,
	}, nil
}

// sizeLiquidation bounds the repayment by the nominated amount, the
// outstanding liability, the close factor, and the repayment restoring
// maintenance health to one. Each unit of repaid value removes
// liabilityWeight of weighted liability and (1+bonus)*assetWeight of
// weighted collateral, so the restoring value solves
// shortfall / (liabilityWeight - (1+bonus)*assetWeight).
func (e *Engine) sizeLiquidation(nominated decimal.Decimal, pre HealthReport, liabBank, collBank *Bank, liabBal *Balance, liabPrice, bonus decimal.Decimal) decimal.Decimal {
	outstanding := liabBank.LiabilityAmount(liabBal.LiabilityShares)
	repay := minDecimal(nominated, outstanding)

	if closeFactor := liabBank.Config.MaxCloseFactor; closeFactor.IsPositive() {
		repay = minDecimal(repay, outstanding.Mul(closeFactor))
	}

	liabWeight := liabBank.Config.LiabilityWeight(Maintenance)
	collWeight := collBank.Config.AssetWeight(Maintenance)
	denom := liabWeight.Sub(one.Add(bonus).Mul(collWeight))
	if denom.IsPositive() {
		restoreValue := pre.Liability.Sub(pre.Collateral).DivRound(denom, fpScale)
		restore := divUp(restoreValue, liabPrice)
		repay = minDecimal(repay, restore)
	}
	return repay
}
