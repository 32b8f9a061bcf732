package lending

import (
	"fmt"

	"github.com/shopspring/decimal"

	"astrolend/native/oracle"
)

// HealthReport summarises a weighted valuation of an account under one
// requirement regime. When the account carries no liabilities the health
// factor is unbounded and Factor is left zero.
type HealthReport struct {
	Collateral decimal.Decimal `json:"collateral"`
	Liability  decimal.Decimal `json:"liability"`
	Factor     decimal.Decimal `json:"factor"`
	Unbounded  bool            `json:"unbounded"`
}

// Healthy reports whether weighted collateral covers weighted liabilities.
func (h HealthReport) Healthy() bool {
	return h.Unbounded || h.Collateral.GreaterThanOrEqual(h.Liability)
}

// bankView resolves banks for a valuation, preferring in-flight working
// copies over persisted state so health gates observe the mutation being
// validated.
type bankView struct {
	engine  *Engine
	overlay map[string]*Bank
}

func (v *bankView) bank(asset string) (*Bank, error) {
	if b, ok := v.overlay[asset]; ok {
		return b, nil
	}
	b, err := v.engine.loadBank(asset)
	if err != nil {
		return nil, err
	}
	v.overlay[asset] = b
	return b, nil
}

func newBankView(e *Engine, working ...*Bank) *bankView {
	view := &bankView{engine: e, overlay: make(map[string]*Bank, len(working))}
	for _, b := range working {
		if b != nil {
			view.overlay[b.Asset] = b
		}
	}
	return view
}

// health values every balance of the account under the requested regime.
// Collateral is valued at the confidence-lowered price times the asset
// weight; liabilities at the confidence-raised price times the liability
// weight. Bounded by the number of balance slots, so it always terminates in
// at most MaxBalances valuations per side.
func (e *Engine) health(acct *Account, req RequirementType, view *bankView) (HealthReport, error) {
	collateral := zero
	liability := zero
	for i := range acct.Balances {
		bal := &acct.Balances[i]
		if bal.Empty() {
			continue
		}
		bank, err := view.bank(bal.Bank)
		if err != nil {
			return HealthReport{}, err
		}
		if bal.AssetShares.IsPositive() {
			price, err := e.prices.Price(bank.OracleRef, oracle.BiasLow)
			if err != nil {
				return HealthReport{}, err
			}
			amount := bank.AssetAmount(bal.AssetShares)
			collateral = collateral.Add(amount.Mul(price).Mul(bank.Config.AssetWeight(req)))
		}
		if bal.LiabilityShares.IsPositive() {
			price, err := e.prices.Price(bank.OracleRef, oracle.BiasHigh)
			if err != nil {
				return HealthReport{}, err
			}
			amount := bank.LiabilityAmount(bal.LiabilityShares)
			liability = liability.Add(amount.Mul(price).Mul(bank.Config.LiabilityWeight(req)))
		}
	}
	if err := checkMagnitude(collateral, liability); err != nil {
		return HealthReport{}, err
	}

	report := HealthReport{Collateral: collateral, Liability: liability}
	if liability.IsZero() {
		report.Unbounded = true
	} else {
		report.Factor = collateral.DivRound(liability, fpScale)
	}
	return report, nil
}

// checkHealth gates a mutating operation: the account's weighted collateral
// under the given regime must cover its weighted liabilities.
func (e *Engine) checkHealth(acct *Account, req RequirementType, view *bankView) error {
	report, err := e.health(acct, req, view)
	if err != nil {
		return err
	}
	if !report.Healthy() {
		return fmt.Errorf("%w: %s collateral %s < liability %s",
			ErrHealthCheckFailed, req, report.Collateral, report.Liability)
	}
	return nil
}

// AccountHealth values a persisted account under the requested regime.
func (e *Engine) AccountHealth(accountID AccountID, req RequirementType) (HealthReport, error) {
	if e == nil || e.state == nil {
		return HealthReport{}, ErrNilState
	}
	acct, err := e.loadAccount(accountID)
	if err != nil {
		return HealthReport{}, err
	}
	return e.health(acct, req, newBankView(e))
}
