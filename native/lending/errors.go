package lending

import "errors"

var (
	// ErrNilState signals that the engine was used before a state backend was wired.
	ErrNilState = errors.New("lending: state not configured")
	// ErrInvalidBank is returned when a referenced bank does not exist.
	ErrInvalidBank = errors.New("lending: unknown bank")
	// ErrInvalidAccount is returned when a referenced account does not exist.
	ErrInvalidAccount = errors.New("lending: unknown account")
	// ErrInvalidAmount rejects non-positive operation amounts.
	ErrInvalidAmount = errors.New("lending: amount must be positive")
	// ErrInvalidConfig rejects bank configurations that violate the weight or
	// rate-curve constraints.
	ErrInvalidConfig = errors.New("lending: invalid bank configuration")
	// ErrGroupMismatch rejects operations that mix banks and accounts from
	// different groups.
	ErrGroupMismatch = errors.New("lending: bank and account belong to different groups")
	// ErrCapExceeded signals that a deposit or borrow cap would be breached.
	ErrCapExceeded = errors.New("lending: bank cap exceeded")
	// ErrInsufficientLiquidity signals that an operation would push borrows
	// above deposits for a bank.
	ErrInsufficientLiquidity = errors.New("lending: insufficient pool liquidity")
	// ErrInsufficientBalance signals a withdrawal or repayment larger than the
	// caller's recorded position.
	ErrInsufficientBalance = errors.New("lending: insufficient balance")
	// ErrHealthCheckFailed signals that the operation would leave an account
	// below the required health threshold.
	ErrHealthCheckFailed = errors.New("lending: account health below threshold")
	// ErrAccountHealthy rejects liquidation of an account whose maintenance
	// health factor is at or above one.
	ErrAccountHealthy = errors.New("lending: account not eligible for liquidation")
	// ErrInsufficientCollateral signals that the nominated collateral balance
	// cannot cover the bonus-adjusted seizure.
	ErrInsufficientCollateral = errors.New("lending: collateral cannot cover seizure")
	// ErrBalanceSlotsFull is returned when an account already references the
	// maximum number of distinct banks.
	ErrBalanceSlotsFull = errors.New("lending: no free balance slots")
	// ErrBalanceConflict rejects opening one side of a balance while the other
	// side is still outstanding on the same bank.
	ErrBalanceConflict = errors.New("lending: balance holds the opposite side")
	// ErrNoDebtToRepay signals a repayment against a bank with no outstanding
	// liability for the account.
	ErrNoDebtToRepay = errors.New("lending: no outstanding debt")
	// ErrMathOverflow signals that an intermediate value left the representable
	// range. The operation is aborted with no state written.
	ErrMathOverflow = errors.New("lending: numeric overflow")
	// ErrBankWipedOut rejects deposit-side flows after a full write-off has
	// driven the bank's asset share value to zero.
	ErrBankWipedOut = errors.New("lending: deposit index wiped out")
	// ErrBankPaused rejects all flows against a paused bank.
	ErrBankPaused = errors.New("lending: bank paused")
	// ErrBankReduceOnly rejects exposure-increasing flows against a
	// reduce-only bank.
	ErrBankReduceOnly = errors.New("lending: bank is reduce-only")
	// ErrBadDebtNotEligible rejects bad-debt settlement while the account
	// still holds collateral.
	ErrBadDebtNotEligible = errors.New("lending: account still holds collateral")
)
