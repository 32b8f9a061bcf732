package lending

// Footprint declares the entities an operation reads and writes. The engine
// performs no locking of its own; callers use the footprint to serialize
// conflicting operations before invoking the engine. Two operations whose
// write sets are disjoint from each other's read and write sets may run in
// any order.
type Footprint struct {
	ReadBanks     []string
	WriteBanks    []string
	ReadAccounts  []AccountID
	WriteAccounts []AccountID
}

// AccrueFootprint covers Accrue on a single bank.
func AccrueFootprint(asset string) Footprint {
	return Footprint{WriteBanks: []string{asset}}
}

// DepositFootprint covers Deposit. Deposits never gate on health, so no
// other bank is read.
func DepositFootprint(accountID AccountID, asset string) Footprint {
	return Footprint{
		WriteBanks:    []string{asset},
		WriteAccounts: []AccountID{accountID},
	}
}

// WithdrawFootprint covers Withdraw. The health gate prices every balance
// the account holds, so all of its banks are read.
func WithdrawFootprint(acct *Account, asset string) Footprint {
	return Footprint{
		ReadBanks:     accountBanks(acct, asset),
		WriteBanks:    []string{asset},
		WriteAccounts: []AccountID{acct.ID},
	}
}

// BorrowFootprint covers Borrow, health-gated like Withdraw.
func BorrowFootprint(acct *Account, asset string) Footprint {
	return Footprint{
		ReadBanks:     accountBanks(acct, asset),
		WriteBanks:    []string{asset},
		WriteAccounts: []AccountID{acct.ID},
	}
}

// RepayFootprint covers Repay and SocializeBadDebt.
func RepayFootprint(accountID AccountID, asset string) Footprint {
	return Footprint{
		WriteBanks:    []string{asset},
		WriteAccounts: []AccountID{accountID},
	}
}

// LiquidateFootprint covers Liquidate. Both accounts are health-checked, so
// every bank either account references is read; only the liability and
// collateral banks are written.
func LiquidateFootprint(liquidator, liquidatee *Account, liabilityAsset, collateralAsset string) Footprint {
	reads := accountBanks(liquidatee, liabilityAsset, collateralAsset)
	for _, b := range accountBanks(liquidator) {
		if b != liabilityAsset && b != collateralAsset && !containsBank(reads, b) {
			reads = append(reads, b)
		}
	}
	return Footprint{
		ReadBanks:     reads,
		WriteBanks:    []string{liabilityAsset, collateralAsset},
		WriteAccounts: []AccountID{liquidator.ID, liquidatee.ID},
	}
}

// accountBanks lists the banks referenced by acct's active balances,
// excluding any listed in written.
func accountBanks(acct *Account, written ...string) []string {
	var banks []string
	for i := range acct.Balances {
		bal := &acct.Balances[i]
		if bal.Empty() {
			continue
		}
		skip := false
		for _, w := range written {
			if bal.Bank == w {
				skip = true
				break
			}
		}
		if !skip && !containsBank(banks, bal.Bank) {
			banks = append(banks, bal.Bank)
		}
	}
	return banks
}

func containsBank(banks []string, asset string) bool {
	for _, b := range banks {
		if b == asset {
			return true
		}
	}
	return false
}
