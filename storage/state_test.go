package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"astrolend/native/lending"
)

func testBank(t *testing.T, asset string) *lending.Bank {
	t.Helper()
	cfg := lending.BankConfig{
		AssetWeightInit:      decimal.RequireFromString("0.8"),
		AssetWeightMaint:     decimal.RequireFromString("0.9"),
		LiabilityWeightInit:  decimal.RequireFromString("1.2"),
		LiabilityWeightMaint: decimal.RequireFromString("1"),
		Interest: lending.InterestRateConfig{
			OptimalUtilization: decimal.RequireFromString("0.8"),
			BaseRate:           decimal.RequireFromString("0.01"),
			OptimalRate:        decimal.RequireFromString("0.1"),
			MaxRate:            decimal.RequireFromString("3"),
		},
		LiquidationBonus: decimal.RequireFromString("0.05"),
		InsuranceFeeCut:  decimal.RequireFromString("0.03"),
		MaxCloseFactor:   decimal.RequireFromString("0.5"),
	}
	bank, err := lending.NewBank(uuid.New(), asset, asset+"-feed", cfg, 1_700_000_000)
	require.NoError(t, err)
	return bank
}

func TestLedgerStateBankRoundTrip(t *testing.T) {
	state := NewLedgerState(NewMemDB())

	missing, err := state.GetBank("usd")
	require.NoError(t, err)
	require.Nil(t, missing)

	bank := testBank(t, "usd")
	bank.TotalAssetShares = decimal.RequireFromString("123.456")
	require.NoError(t, state.PutBank(bank))

	loaded, err := state.GetBank("usd")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, bank.Asset, loaded.Asset)
	require.True(t, loaded.TotalAssetShares.Equal(bank.TotalAssetShares))
	require.True(t, loaded.AssetShareValue.Equal(bank.AssetShareValue))
	require.Equal(t, bank.LastAccrual, loaded.LastAccrual)
}

func TestLedgerStateAccountRoundTrip(t *testing.T) {
	state := NewLedgerState(NewMemDB())

	acct := lending.NewAccount(uuid.New())
	bal, err := acct.EnsureBalance("usd")
	require.NoError(t, err)
	bal.AssetShares = decimal.RequireFromString("42")
	require.NoError(t, state.PutAccount(acct))

	loaded, err := state.GetAccount(acct.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, acct.ID, loaded.ID)
	got := loaded.Balance("usd")
	require.NotNil(t, got)
	require.True(t, got.AssetShares.Equal(decimal.RequireFromString("42")))

	missing, err := state.GetAccount(uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestLedgerStateListing(t *testing.T) {
	state := NewLedgerState(NewMemDB())
	require.NoError(t, state.PutBank(testBank(t, "usd")))
	require.NoError(t, state.PutBank(testBank(t, "gold")))

	first := lending.NewAccount(uuid.New())
	second := lending.NewAccount(uuid.New())
	require.NoError(t, state.PutAccount(first))
	require.NoError(t, state.PutAccount(second))

	banks, err := state.ListBanks()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"usd", "gold"}, banks)

	ids, err := state.ListAccounts()
	require.NoError(t, err)
	require.ElementsMatch(t, []lending.AccountID{first.ID, second.ID}, ids)
}

func TestMemDBDelete(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	require.NoError(t, db.Delete([]byte("k")))
	_, err := db.Get([]byte("k"))
	require.ErrorIs(t, err, ErrNotFound)
}
