package lending

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"astrolend/native/oracle"
)

// AccountID identifies an account.
type AccountID = uuid.UUID

// ParseAccountID parses the canonical string form of an account id.
func ParseAccountID(s string) (AccountID, error) {
	return uuid.Parse(s)
}

// State is the persistence seam between the engine and its caller. Lookups
// return (nil, nil) when the entity does not exist. The engine performs no
// locking: the caller serialises operations touching the same bank or
// account, using the footprints each operation declares.
type State interface {
	GetBank(asset string) (*Bank, error)
	PutBank(bank *Bank) error
	GetAccount(id AccountID) (*Account, error)
	PutAccount(acct *Account) error
}

// Params groups the engine-wide accrual and liquidation policy knobs.
type Params struct {
	// YearSeconds converts annualised rates into per-period factors.
	YearSeconds int64
	// MaxAccrualGap clamps the elapsed time compounded in one accrual step,
	// in seconds. Zero disables the clamp.
	MaxAccrualGap int64
}

// DefaultParams uses a 365-day year and a 7-day accrual clamp.
func DefaultParams() Params {
	return Params{YearSeconds: 31_536_000, MaxAccrualGap: 7 * 24 * 3600}
}

// Engine implements the solvency core: deposits, withdrawals, borrows,
// repayments, and liquidations over share-ledger banks, gated by weighted
// health checks. Every operation validates against working copies and
// commits only on success, so a failure leaves no partial mutation behind.
type Engine struct {
	state  State
	prices *oracle.Adapter
	params Params
	now    func() time.Time
}

// NewEngine wires the engine to its state backend and price adapter.
func NewEngine(state State, prices *oracle.Adapter, params Params) *Engine {
	if params.YearSeconds <= 0 {
		params.YearSeconds = DefaultParams().YearSeconds
	}
	return &Engine{state: state, prices: prices, params: params, now: time.Now}
}

// SetClock injects the time source, for tests.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

func (e *Engine) loadBank(asset string) (*Bank, error) {
	bank, err := e.state.GetBank(asset)
	if err != nil {
		return nil, err
	}
	if bank == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBank, asset)
	}
	return bank, nil
}

func (e *Engine) loadAccount(id AccountID) (*Account, error) {
	acct, err := e.state.GetAccount(id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccount, id)
	}
	return acct, nil
}

// loadPair fetches working copies of an account and a bank in the same
// group.
func (e *Engine) loadPair(accountID AccountID, asset string) (*Account, *Bank, error) {
	acct, err := e.loadAccount(accountID)
	if err != nil {
		return nil, nil, err
	}
	bank, err := e.loadBank(asset)
	if err != nil {
		return nil, nil, err
	}
	if acct.GroupID != bank.GroupID {
		return nil, nil, ErrGroupMismatch
	}
	return acct.Clone(), bank.Clone(), nil
}

func (e *Engine) accrue(bank *Bank) error {
	return bank.Accrue(e.now().Unix(), e.params.YearSeconds, e.params.MaxAccrualGap)
}

// pruneBalance burns sub-epsilon share dust through the bank, so the bank's
// totals stay equal to the sum of account positions, and reclaims the slot
// once both sides are zero.
func pruneBalance(bal *Balance, bank *Bank) error {
	if bal == nil || bal.Empty() {
		return nil
	}
	if bal.AssetShares.IsPositive() && bal.AssetShares.LessThan(emptyBalanceEpsilon) {
		if err := bank.ChangeAssetShares(bal.AssetShares.Neg()); err != nil {
			return err
		}
		bal.AssetShares = zero
	}
	if bal.LiabilityShares.IsPositive() && bal.LiabilityShares.LessThan(emptyBalanceEpsilon) {
		if err := bank.ChangeLiabilityShares(bal.LiabilityShares.Neg()); err != nil {
			return err
		}
		bal.LiabilityShares = zero
	}
	if bal.AssetShares.IsZero() && bal.LiabilityShares.IsZero() {
		*bal = Balance{}
	}
	return nil
}

// Accrue refreshes a bank's accrual indices to the current time.
func (e *Engine) Accrue(asset string) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	bank, err := e.loadBank(asset)
	if err != nil {
		return err
	}
	working := bank.Clone()
	if err := e.accrue(working); err != nil {
		return err
	}
	return e.state.PutBank(working)
}

// Deposit moves amount into the bank's pool and mints asset shares for the
// account. Deposits only improve health, so no health gate applies.
func (e *Engine) Deposit(accountID AccountID, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	if e == nil || e.state == nil {
		return zero, ErrNilState
	}
	if !amount.IsPositive() {
		return zero, ErrInvalidAmount
	}
	acct, bank, err := e.loadPair(accountID, asset)
	if err != nil {
		return zero, err
	}
	if err := e.accrue(bank); err != nil {
		return zero, err
	}
	if err := bank.AssertOperational(true); err != nil {
		return zero, err
	}
	if !bank.AssetShareValue.IsPositive() {
		return zero, fmt.Errorf("%w: %s", ErrBankWipedOut, asset)
	}

	bal, err := acct.EnsureBalance(bank.Asset)
	if err != nil {
		return zero, err
	}
	if bal.LiabilityShares.IsPositive() {
		return zero, fmt.Errorf("%w: repay %s debt before depositing", ErrBalanceConflict, asset)
	}

	shares := bank.AssetSharesForDeposit(amount)
	if err := bank.ChangeAssetShares(shares); err != nil {
		return zero, err
	}
	bal.AssetShares = bal.AssetShares.Add(shares)
	if err := checkMagnitude(bal.AssetShares); err != nil {
		return zero, err
	}

	if err := e.state.PutBank(bank); err != nil {
		return zero, err
	}
	if err := e.state.PutAccount(acct); err != nil {
		return zero, err
	}
	return shares, nil
}

// Withdraw burns asset shares and releases the amount back to the account
// holder, subject to pool solvency and the initial-weight health gate.
func (e *Engine) Withdraw(accountID AccountID, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	if e == nil || e.state == nil {
		return zero, ErrNilState
	}
	if !amount.IsPositive() {
		return zero, ErrInvalidAmount
	}
	acct, bank, err := e.loadPair(accountID, asset)
	if err != nil {
		return zero, err
	}
	if err := e.accrue(bank); err != nil {
		return zero, err
	}
	if err := bank.AssertOperational(false); err != nil {
		return zero, err
	}
	if !bank.AssetShareValue.IsPositive() {
		return zero, fmt.Errorf("%w: %s", ErrBankWipedOut, asset)
	}

	bal := acct.Balance(bank.Asset)
	if bal == nil || !bal.AssetShares.IsPositive() {
		return zero, fmt.Errorf("%w: no %s deposit", ErrInsufficientBalance, asset)
	}
	shares := bank.AssetSharesForWithdraw(amount)
	if shares.GreaterThan(bal.AssetShares) {
		return zero, fmt.Errorf("%w: %s exceeds deposit", ErrInsufficientBalance, amount)
	}

	bal.AssetShares = bal.AssetShares.Sub(shares)
	if err := bank.ChangeAssetShares(shares.Neg()); err != nil {
		return zero, err
	}
	if err := pruneBalance(bal, bank); err != nil {
		return zero, err
	}
	if err := bank.CheckSolvency(); err != nil {
		return zero, err
	}

	if err := e.checkHealth(acct, Initial, newBankView(e, bank)); err != nil {
		return zero, err
	}

	if err := e.state.PutBank(bank); err != nil {
		return zero, err
	}
	if err := e.state.PutAccount(acct); err != nil {
		return zero, err
	}
	return amount, nil
}

// Borrow mints liability shares against the account and pays out amount from
// the pool, subject to the borrow cap, pool solvency, and the initial-weight
// health gate.
func (e *Engine) Borrow(accountID AccountID, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	if e == nil || e.state == nil {
		return zero, ErrNilState
	}
	if !amount.IsPositive() {
		return zero, ErrInvalidAmount
	}
	acct, bank, err := e.loadPair(accountID, asset)
	if err != nil {
		return zero, err
	}
	if err := e.accrue(bank); err != nil {
		return zero, err
	}
	if err := bank.AssertOperational(true); err != nil {
		return zero, err
	}

	bal, err := acct.EnsureBalance(bank.Asset)
	if err != nil {
		return zero, err
	}
	if bal.AssetShares.IsPositive() {
		return zero, fmt.Errorf("%w: withdraw %s deposit before borrowing", ErrBalanceConflict, asset)
	}

	shares := bank.LiabilitySharesForBorrow(amount)
	if err := bank.ChangeLiabilityShares(shares); err != nil {
		return zero, err
	}
	if err := bank.CheckSolvency(); err != nil {
		return zero, err
	}
	bal.LiabilityShares = bal.LiabilityShares.Add(shares)
	if err := checkMagnitude(bal.LiabilityShares); err != nil {
		return zero, err
	}

	if err := e.checkHealth(acct, Initial, newBankView(e, bank)); err != nil {
		return zero, err
	}

	if err := e.state.PutBank(bank); err != nil {
		return zero, err
	}
	if err := e.state.PutAccount(acct); err != nil {
		return zero, err
	}
	return shares, nil
}

// Repay burns liability shares for the account, clamping to the outstanding
// debt. The amount actually repaid is returned.
func (e *Engine) Repay(accountID AccountID, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	if e == nil || e.state == nil {
		return zero, ErrNilState
	}
	if !amount.IsPositive() {
		return zero, ErrInvalidAmount
	}
	acct, bank, err := e.loadPair(accountID, asset)
	if err != nil {
		return zero, err
	}
	if err := e.accrue(bank); err != nil {
		return zero, err
	}
	if err := bank.AssertOperational(false); err != nil {
		return zero, err
	}

	bal := acct.Balance(bank.Asset)
	if bal == nil || !bal.LiabilityShares.IsPositive() {
		return zero, fmt.Errorf("%w: %s", ErrNoDebtToRepay, asset)
	}

	outstanding := bank.LiabilityAmount(bal.LiabilityShares)
	repay := amount
	if repay.GreaterThan(outstanding) {
		repay = outstanding
	}
	shares := bank.LiabilitySharesForRepay(repay)
	if shares.GreaterThan(bal.LiabilityShares) {
		shares = bal.LiabilityShares
	}

	bal.LiabilityShares = bal.LiabilityShares.Sub(shares)
	if err := bank.ChangeLiabilityShares(shares.Neg()); err != nil {
		return zero, err
	}
	if err := pruneBalance(bal, bank); err != nil {
		return zero, err
	}

	if err := e.state.PutBank(bank); err != nil {
		return zero, err
	}
	if err := e.state.PutAccount(acct); err != nil {
		return zero, err
	}
	return repay, nil
}

// SocializeBadDebt writes off an account's remaining liability on a bank
// after its collateral is exhausted. The insurance fund absorbs the loss
// first; any remainder is spread across the bank's depositors. Returns the
// written-off amount.
func (e *Engine) SocializeBadDebt(accountID AccountID, asset string) (decimal.Decimal, error) {
	if e == nil || e.state == nil {
		return zero, ErrNilState
	}
	acct, bank, err := e.loadPair(accountID, asset)
	if err != nil {
		return zero, err
	}
	if err := e.accrue(bank); err != nil {
		return zero, err
	}

	for i := range acct.Balances {
		if !acct.Balances[i].Empty() && acct.Balances[i].AssetShares.IsPositive() {
			return zero, ErrBadDebtNotEligible
		}
	}
	bal := acct.Balance(bank.Asset)
	if bal == nil || !bal.LiabilityShares.IsPositive() {
		return zero, fmt.Errorf("%w: %s", ErrNoDebtToRepay, asset)
	}

	loss := bank.LiabilityAmount(bal.LiabilityShares)
	if err := bank.ChangeLiabilityShares(bal.LiabilityShares.Neg()); err != nil {
		return zero, err
	}
	bal.LiabilityShares = zero
	if err := pruneBalance(bal, bank); err != nil {
		return zero, err
	}

	covered := minDecimal(loss, bank.CollectedInsuranceFees)
	bank.CollectedInsuranceFees = bank.CollectedInsuranceFees.Sub(covered)
	if remainder := loss.Sub(covered); remainder.IsPositive() {
		bank.SocializeLoss(remainder)
	}

	if err := e.state.PutBank(bank); err != nil {
		return zero, err
	}
	if err := e.state.PutAccount(acct); err != nil {
		return zero, err
	}
	return loss, nil
}
