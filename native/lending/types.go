package lending

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequirementType selects which weight regime a valuation uses. Initial
// weights gate new risk-increasing actions, Maintenance weights gate forced
// liquidation, and Equity values positions without any haircut.
type RequirementType uint8

const (
	Initial RequirementType = iota
	Maintenance
	Equity
)

func (rt RequirementType) String() string {
	switch rt {
	case Initial:
		return "initial"
	case Maintenance:
		return "maintenance"
	case Equity:
		return "equity"
	default:
		return "unknown"
	}
}

// OperationalState gates which flows a bank accepts.
type OperationalState uint8

const (
	Operational OperationalState = iota
	Paused
	ReduceOnly
)

func (os OperationalState) String() string {
	switch os {
	case Operational:
		return "operational"
	case Paused:
		return "paused"
	case ReduceOnly:
		return "reduce-only"
	default:
		return "unknown"
	}
}

// InterestRateConfig parameterises the kinked borrow-rate curve and the fee
// components layered on top of it. Rates are annualised fractions, e.g. a 10%
// optimal rate is 0.1.
type InterestRateConfig struct {
	// OptimalUtilization is the utilisation ratio at the curve's kink.
	OptimalUtilization decimal.Decimal `json:"optimalUtilization"`
	// BaseRate is the borrow rate at zero utilisation.
	BaseRate decimal.Decimal `json:"baseRate"`
	// OptimalRate is the borrow rate at the kink.
	OptimalRate decimal.Decimal `json:"optimalRate"`
	// MaxRate is the borrow rate at full utilisation.
	MaxRate decimal.Decimal `json:"maxRate"`

	// ProtocolIRFee and InsuranceIRFee are fractions of borrow interest routed
	// to the group fee fund and the insurance fund respectively.
	ProtocolIRFee  decimal.Decimal `json:"protocolIrFee"`
	InsuranceIRFee decimal.Decimal `json:"insuranceIrFee"`
	// ProtocolFixedAPR and InsuranceFixedAPR are flat charges on outstanding
	// liabilities, independent of utilisation.
	ProtocolFixedAPR  decimal.Decimal `json:"protocolFixedApr"`
	InsuranceFixedAPR decimal.Decimal `json:"insuranceFixedApr"`
}

// BankConfig carries the risk parameters for a single bank.
type BankConfig struct {
	AssetWeightInit  decimal.Decimal `json:"assetWeightInit"`
	AssetWeightMaint decimal.Decimal `json:"assetWeightMaint"`

	LiabilityWeightInit  decimal.Decimal `json:"liabilityWeightInit"`
	LiabilityWeightMaint decimal.Decimal `json:"liabilityWeightMaint"`

	// DepositLimit and LiabilityLimit cap the bank's total exposure in asset
	// units. Zero disables the cap.
	DepositLimit   decimal.Decimal `json:"depositLimit"`
	LiabilityLimit decimal.Decimal `json:"liabilityLimit"`

	Interest InterestRateConfig `json:"interest"`

	State OperationalState `json:"state"`

	// LiquidationBonus is the premium over the repaid debt value that leaves
	// the liquidated account as collateral, e.g. 0.05 for 5%.
	LiquidationBonus decimal.Decimal `json:"liquidationBonus"`
	// InsuranceFeeCut is the slice of the repaid debt value routed to the
	// bank's insurance fund; the liquidator keeps the remainder of the bonus.
	InsuranceFeeCut decimal.Decimal `json:"insuranceFeeCut"`
	// MaxCloseFactor caps the fraction of a single liability repayable in one
	// liquidation call.
	MaxCloseFactor decimal.Decimal `json:"maxCloseFactor"`
}

// AssetWeight returns the collateral weight for the requested regime.
func (c BankConfig) AssetWeight(req RequirementType) decimal.Decimal {
	switch req {
	case Initial:
		return c.AssetWeightInit
	case Maintenance:
		return c.AssetWeightMaint
	case Equity:
		return one
	}
	return zero
}

// LiabilityWeight returns the liability weight for the requested regime.
func (c BankConfig) LiabilityWeight(req RequirementType) decimal.Decimal {
	switch req {
	case Initial:
		return c.LiabilityWeightInit
	case Maintenance:
		return c.LiabilityWeightMaint
	case Equity:
		return one
	}
	return zero
}

// Validate enforces the structural constraints on a bank configuration:
// asset weights sit in [0,1] with the maintenance weight at least the initial
// weight, liability weights are at least one with the initial weight at least
// the maintenance weight, and the rate curve is monotone around its kink.
func (c BankConfig) Validate() error {
	if c.AssetWeightInit.IsNegative() || c.AssetWeightInit.GreaterThan(one) {
		return ErrInvalidConfig
	}
	if c.AssetWeightMaint.LessThan(c.AssetWeightInit) || c.AssetWeightMaint.GreaterThan(one) {
		return ErrInvalidConfig
	}
	if c.LiabilityWeightMaint.LessThan(one) {
		return ErrInvalidConfig
	}
	if c.LiabilityWeightInit.LessThan(c.LiabilityWeightMaint) {
		return ErrInvalidConfig
	}
	if c.DepositLimit.IsNegative() || c.LiabilityLimit.IsNegative() {
		return ErrInvalidConfig
	}
	if c.LiquidationBonus.IsNegative() || c.LiquidationBonus.GreaterThanOrEqual(one) {
		return ErrInvalidConfig
	}
	if c.InsuranceFeeCut.IsNegative() || c.InsuranceFeeCut.GreaterThan(c.LiquidationBonus) {
		return ErrInvalidConfig
	}
	if c.MaxCloseFactor.IsNegative() || c.MaxCloseFactor.GreaterThan(one) {
		return ErrInvalidConfig
	}
	return c.Interest.Validate()
}

// Bank is the pooled state for a single asset: configuration, accrual
// indices, share totals, and outstanding fee counters. Absolute amounts are
// derived as shares multiplied by the side's share value.
type Bank struct {
	Asset   string    `json:"asset"`
	GroupID uuid.UUID `json:"groupId"`
	// OracleRef names the price feed used when valuing this bank's positions.
	OracleRef string `json:"oracleRef"`

	AssetShareValue     decimal.Decimal `json:"assetShareValue"`
	LiabilityShareValue decimal.Decimal `json:"liabilityShareValue"`

	TotalAssetShares     decimal.Decimal `json:"totalAssetShares"`
	TotalLiabilityShares decimal.Decimal `json:"totalLiabilityShares"`

	// CollectedGroupFees and CollectedInsuranceFees are outstanding fee
	// amounts in asset units, awaiting collection into the group treasury and
	// the insurance fund.
	CollectedGroupFees     decimal.Decimal `json:"collectedGroupFees"`
	CollectedInsuranceFees decimal.Decimal `json:"collectedInsuranceFees"`

	Config BankConfig `json:"config"`

	// LastAccrual is the unix timestamp of the most recent accrual step.
	LastAccrual int64 `json:"lastAccrual"`
}

// Clone returns a deep copy so operations can mutate working state and commit
// only on success.
func (b *Bank) Clone() *Bank {
	if b == nil {
		return nil
	}
	clone := *b
	return &clone
}

// MaxBalances is the fixed number of balance slots per account.
const MaxBalances = 16

// Balance is one account position against one bank. A balance never holds
// both sides at once; the engine rejects operations that would open the
// opposite side before the existing one is settled.
type Balance struct {
	Bank            string          `json:"bank"`
	AssetShares     decimal.Decimal `json:"assetShares"`
	LiabilityShares decimal.Decimal `json:"liabilityShares"`
}

// Empty reports whether the slot is unoccupied.
func (b *Balance) Empty() bool {
	return b.Bank == ""
}

// Account is a balance sheet inside one group: an ordered, fixed set of at
// most MaxBalances positions, one per bank.
type Account struct {
	ID       uuid.UUID             `json:"id"`
	GroupID  uuid.UUID             `json:"groupId"`
	Balances [MaxBalances]Balance `json:"balances"`
}

// NewAccount mints an empty account in the given group.
func NewAccount(groupID uuid.UUID) *Account {
	return &Account{ID: uuid.New(), GroupID: groupID}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// Balance returns the slot referencing the given bank, or nil.
func (a *Account) Balance(bank string) *Balance {
	for i := range a.Balances {
		if a.Balances[i].Bank == bank {
			return &a.Balances[i]
		}
	}
	return nil
}

// EnsureBalance returns the slot for the given bank, claiming a free slot if
// the account has not touched the bank before.
func (a *Account) EnsureBalance(bank string) (*Balance, error) {
	if bal := a.Balance(bank); bal != nil {
		return bal, nil
	}
	for i := range a.Balances {
		if a.Balances[i].Empty() {
			a.Balances[i] = Balance{Bank: bank}
			return &a.Balances[i], nil
		}
	}
	return nil, ErrBalanceSlotsFull
}

// Prune reclaims slots whose share quantities are zero on both sides. Dust
// below the empty-balance epsilon is not zeroed here: that must go through
// the bank so ledger totals stay equal to the sum of account positions.
func (a *Account) Prune() {
	for i := range a.Balances {
		bal := &a.Balances[i]
		if bal.Empty() {
			continue
		}
		if bal.AssetShares.IsZero() && bal.LiabilityShares.IsZero() {
			a.Balances[i] = Balance{}
		}
	}
}

// ActiveBalances counts occupied slots.
func (a *Account) ActiveBalances() int {
	n := 0
	for i := range a.Balances {
		if !a.Balances[i].Empty() {
			n++
		}
	}
	return n
}
