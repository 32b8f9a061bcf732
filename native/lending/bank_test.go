package lending

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const yearSeconds = 31_536_000

func accrualBank(t *testing.T) *Bank {
	t.Helper()
	bank, err := NewBank(testGroupID, "usd", "usd-feed", testBankConfig(), 0)
	if err != nil {
		t.Fatalf("new bank: %v", err)
	}
	bank.TotalAssetShares = dec("1000")
	bank.TotalLiabilityShares = dec("400")
	return bank
}

func TestAccrueOneYear(t *testing.T) {
	bank := accrualBank(t)

	if err := bank.Accrue(yearSeconds, yearSeconds, 0); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	// Utilisation 40% puts the borrow rate at 5.5% and the lend rate at
	// 5.5% * 0.4 = 2.2%.
	if !bank.LiabilityShareValue.Equal(dec("1.055")) {
		t.Fatalf("unexpected liability index: got %s want 1.055", bank.LiabilityShareValue)
	}
	if !bank.AssetShareValue.Equal(dec("1.022")) {
		t.Fatalf("unexpected asset index: got %s want 1.022", bank.AssetShareValue)
	}

	// Depositors earn exactly what borrowers pay: 1000*0.022 = 400*0.055.
	earned := bank.TotalAssetAmount().Sub(dec("1000"))
	paid := bank.TotalLiabilityAmount().Sub(dec("400"))
	if !earned.Equal(paid) {
		t.Fatalf("interest not conserved: earned %s paid %s", earned, paid)
	}
}

func TestAccrueRoutesFees(t *testing.T) {
	bank := accrualBank(t)
	bank.Config.Interest.ProtocolIRFee = dec("0.1")
	bank.Config.Interest.InsuranceIRFee = dec("0.1")

	if err := bank.Accrue(yearSeconds, yearSeconds, 0); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	// Borrowers pay 400*0.055 = 22; depositors get 1000*0.0176 = 17.6 and
	// each fee stream accrues 400*0.0055 = 2.2.
	if !bank.CollectedGroupFees.Equal(dec("2.2")) {
		t.Fatalf("unexpected group fees: %s", bank.CollectedGroupFees)
	}
	if !bank.CollectedInsuranceFees.Equal(dec("2.2")) {
		t.Fatalf("unexpected insurance fees: %s", bank.CollectedInsuranceFees)
	}
	earned := bank.TotalAssetAmount().Sub(dec("1000"))
	paid := bank.TotalLiabilityAmount().Sub(dec("400"))
	fees := bank.CollectedGroupFees.Add(bank.CollectedInsuranceFees)
	if !earned.Add(fees).Equal(paid) {
		t.Fatalf("conservation broken: earned %s fees %s paid %s", earned, fees, paid)
	}
}

func TestAccrueIdempotentAtSameTimestamp(t *testing.T) {
	bank := accrualBank(t)

	if err := bank.Accrue(yearSeconds, yearSeconds, 0); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	index := bank.LiabilityShareValue
	if err := bank.Accrue(yearSeconds, yearSeconds, 0); err != nil {
		t.Fatalf("repeat accrue: %v", err)
	}
	if !bank.LiabilityShareValue.Equal(index) {
		t.Fatalf("repeat accrual changed index: %s vs %s", bank.LiabilityShareValue, index)
	}
}

func TestAccrueClampsGap(t *testing.T) {
	clamped := accrualBank(t)
	week := int64(7 * 24 * 3600)
	if err := clamped.Accrue(4*week, yearSeconds, week); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	reference := accrualBank(t)
	if err := reference.Accrue(week, yearSeconds, 0); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if !clamped.LiabilityShareValue.Equal(reference.LiabilityShareValue) {
		t.Fatalf("clamp not applied: %s vs %s", clamped.LiabilityShareValue, reference.LiabilityShareValue)
	}
}

func TestAccrueMonotonic(t *testing.T) {
	bank := accrualBank(t)
	prevAsset := bank.AssetShareValue
	prevLiab := bank.LiabilityShareValue
	for step := int64(1); step <= 50; step++ {
		if err := bank.Accrue(step*3600, yearSeconds, 0); err != nil {
			t.Fatalf("accrue step %d: %v", step, err)
		}
		if bank.AssetShareValue.LessThan(prevAsset) {
			t.Fatalf("asset index decreased at step %d", step)
		}
		if bank.LiabilityShareValue.LessThan(prevLiab) {
			t.Fatalf("liability index decreased at step %d", step)
		}
		prevAsset = bank.AssetShareValue
		prevLiab = bank.LiabilityShareValue
	}
}

func TestAccrueEmptyPoolNoOp(t *testing.T) {
	bank, err := NewBank(testGroupID, "usd", "usd-feed", testBankConfig(), 0)
	if err != nil {
		t.Fatalf("new bank: %v", err)
	}
	if err := bank.Accrue(yearSeconds, yearSeconds, 0); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if !bank.AssetShareValue.Equal(one) || !bank.LiabilityShareValue.Equal(one) {
		t.Fatalf("empty pool must not accrue: %s %s", bank.AssetShareValue, bank.LiabilityShareValue)
	}
}

func TestShareRoundingFavoursProtocol(t *testing.T) {
	bank := accrualBank(t)
	if err := bank.Accrue(yearSeconds/3, yearSeconds, 0); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	amounts := []string{"1", "0.000001", "123.456789", "999999.999999999999", "7"}
	for _, raw := range amounts {
		amount := dec(raw)

		// A deposit and full redemption can never pay out more than went in.
		shares := bank.AssetSharesForDeposit(amount)
		if out := bank.AssetAmount(shares); out.GreaterThan(amount) {
			t.Fatalf("deposit %s redeems %s", amount, out)
		}

		// A borrow always records at least the amount handed out.
		debtShares := bank.LiabilitySharesForBorrow(amount)
		if owed := bank.LiabilityAmount(debtShares); owed.LessThan(amount) {
			t.Fatalf("borrow %s records only %s owed", amount, owed)
		}

		// A repayment never burns more debt than was paid.
		burned := bank.LiabilitySharesForRepay(amount)
		if credit := bank.LiabilityAmount(burned); credit.GreaterThan(amount) {
			t.Fatalf("repay %s credits %s", amount, credit)
		}
	}
}

func TestBankConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*BankConfig)
	}{
		{"asset weight above one", func(c *BankConfig) { c.AssetWeightInit = dec("1.1") }},
		{"maint below init", func(c *BankConfig) { c.AssetWeightMaint = dec("0.5") }},
		{"liability maint below one", func(c *BankConfig) { c.LiabilityWeightMaint = dec("0.9") }},
		{"liability init below maint", func(c *BankConfig) { c.LiabilityWeightInit = dec("0.95") }},
		{"negative deposit cap", func(c *BankConfig) { c.DepositLimit = dec("-1") }},
		{"bonus at one", func(c *BankConfig) { c.LiquidationBonus = one }},
		{"insurance cut above bonus", func(c *BankConfig) { c.InsuranceFeeCut = dec("0.06") }},
		{"close factor above one", func(c *BankConfig) { c.MaxCloseFactor = dec("1.5") }},
	}
	for _, tc := range cases {
		cfg := testBankConfig()
		tc.mutate(&cfg)
		if _, err := NewBank(testGroupID, "usd", "usd-feed", cfg, 0); err == nil {
			t.Fatalf("%s: expected config rejection", tc.name)
		}
	}
}

func TestSocializeLossFloorsAtZero(t *testing.T) {
	bank := accrualBank(t)
	bank.SocializeLoss(dec("250"))
	if !bank.AssetShareValue.Equal(dec("0.75")) {
		t.Fatalf("unexpected index after loss: %s", bank.AssetShareValue)
	}
	bank.SocializeLoss(dec("9999"))
	if !bank.AssetShareValue.IsZero() {
		t.Fatalf("index must floor at zero, got %s", bank.AssetShareValue)
	}
}

func TestCapsBlockGrowthOnly(t *testing.T) {
	cfg := testBankConfig()
	cfg.DepositLimit = dec("500")
	cfg.LiabilityLimit = dec("200")
	bank, err := NewBank(testGroupID, "usd", "usd-feed", cfg, 0)
	if err != nil {
		t.Fatalf("new bank: %v", err)
	}

	if err := bank.ChangeAssetShares(dec("500")); err != nil {
		t.Fatalf("deposit to cap: %v", err)
	}
	if err := bank.ChangeAssetShares(decimal.New(1, -6)); err != ErrCapExceeded {
		t.Fatalf("expected ErrCapExceeded, got %v", err)
	}
	if err := bank.ChangeAssetShares(dec("-100")); err != nil {
		t.Fatalf("reduction above cap must pass: %v", err)
	}

	if err := bank.ChangeLiabilityShares(dec("300")); err != ErrCapExceeded {
		t.Fatalf("expected ErrCapExceeded, got %v", err)
	}
}

var testGroupID = uuid.MustParse("9f3a1c52-7b1d-4f7e-9a64-52f1d8cf0a11")
