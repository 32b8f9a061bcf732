package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"astrolend/native/lending"
)

const (
	bankPrefix    = "bank/"
	accountPrefix = "acct/"
)

// LedgerState persists banks and accounts as JSON records and implements the
// engine's state seam. Lookups return (nil, nil) for entities that were never
// written.
type LedgerState struct {
	db Database
}

// NewLedgerState wraps a key-value backend.
func NewLedgerState(db Database) *LedgerState {
	return &LedgerState{db: db}
}

func bankKey(asset string) []byte {
	return []byte(bankPrefix + asset)
}

func accountKey(id lending.AccountID) []byte {
	return []byte(accountPrefix + id.String())
}

// GetBank loads the bank record for an asset.
func (s *LedgerState) GetBank(asset string) (*lending.Bank, error) {
	raw, err := s.db.Get(bankKey(asset))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var bank lending.Bank
	if err := json.Unmarshal(raw, &bank); err != nil {
		return nil, fmt.Errorf("storage: decode bank %s: %w", asset, err)
	}
	return &bank, nil
}

// PutBank stores a bank record keyed by its asset.
func (s *LedgerState) PutBank(bank *lending.Bank) error {
	if bank == nil || bank.Asset == "" {
		return lending.ErrInvalidBank
	}
	raw, err := json.Marshal(bank)
	if err != nil {
		return fmt.Errorf("storage: encode bank %s: %w", bank.Asset, err)
	}
	return s.db.Put(bankKey(bank.Asset), raw)
}

// GetAccount loads the account record for an id.
func (s *LedgerState) GetAccount(id lending.AccountID) (*lending.Account, error) {
	raw, err := s.db.Get(accountKey(id))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var acct lending.Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return nil, fmt.Errorf("storage: decode account %s: %w", id, err)
	}
	return &acct, nil
}

// PutAccount stores an account record keyed by its id.
func (s *LedgerState) PutAccount(acct *lending.Account) error {
	if acct == nil {
		return lending.ErrInvalidAccount
	}
	raw, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("storage: encode account %s: %w", acct.ID, err)
	}
	return s.db.Put(accountKey(acct.ID), raw)
}

// ListBanks returns the asset identifiers of every persisted bank.
func (s *LedgerState) ListBanks() ([]string, error) {
	keys, err := s.db.List([]byte(bankPrefix))
	if err != nil {
		return nil, err
	}
	assets := make([]string, 0, len(keys))
	for _, k := range keys {
		assets = append(assets, string(k[len(bankPrefix):]))
	}
	return assets, nil
}

// ListAccounts returns the identifiers of every persisted account.
func (s *LedgerState) ListAccounts() ([]lending.AccountID, error) {
	keys, err := s.db.List([]byte(accountPrefix))
	if err != nil {
		return nil, err
	}
	ids := make([]lending.AccountID, 0, len(keys))
	for _, k := range keys {
		id, err := lending.ParseAccountID(string(k[len(accountPrefix):]))
		if err != nil {
			return nil, fmt.Errorf("storage: corrupt account key %q: %w", k, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
