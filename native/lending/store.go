package lending

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"xlend/core/types"
	"xlend/storage"
)

const (
	tierKeyPrefix    = "lending/tier/"
	offerKeyPrefix   = "lending/offer/"
	loanKeyPrefix    = "lending/loan/"
	accountKeyPrefix = "lending/account/"
)

// Store persists lending records and account balances in a storage.Database.
// Records are JSON encoded under typed key prefixes. A missing record is
// reported as (nil, nil) so callers can distinguish absence from storage
// failure.
type Store struct {
	mu sync.Mutex
	db storage.Database
}

// NewStore wraps db in a lending state store.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("lending store: decode %q: %w", string(key), err)
	}
	return true, nil
}

func (s *Store) put(key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("lending store: encode %q: %w", string(key), err)
	}
	return s.db.Put(key, raw)
}

func tierKey(tierID string) []byte {
	return []byte(tierKeyPrefix + tierID)
}

func offerKey(key [32]byte) []byte {
	return []byte(offerKeyPrefix + hex.EncodeToString(key[:]))
}

func loanKey(key [32]byte) []byte {
	return []byte(loanKeyPrefix + hex.EncodeToString(key[:]))
}

func accountKey(addr [20]byte) []byte {
	return []byte(accountKeyPrefix + hex.EncodeToString(addr[:]))
}

func (s *Store) GetTier(tierID string) (*Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tier Tier
	ok, err := s.get(tierKey(tierID), &tier)
	if err != nil || !ok {
		return nil, err
	}
	return &tier, nil
}

func (s *Store) PutTier(tier *Tier) error {
	if tier == nil || tier.TierID == "" {
		return fmt.Errorf("lending store: tier must have an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(tierKey(tier.TierID), tier)
}

func (s *Store) DeleteTier(tierID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(tierKey(tierID))
}

func (s *Store) GetLendOffer(key [32]byte) (*LendOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var offer LendOffer
	ok, err := s.get(offerKey(key), &offer)
	if err != nil || !ok {
		return nil, err
	}
	return &offer, nil
}

func (s *Store) PutLendOffer(key [32]byte, offer *LendOffer) error {
	if offer == nil {
		return fmt.Errorf("lending store: nil lend offer")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(offerKey(key), offer)
}

func (s *Store) DeleteLendOffer(key [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(offerKey(key))
}

func (s *Store) GetLoanOffer(key [32]byte) (*LoanOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var loan LoanOffer
	ok, err := s.get(loanKey(key), &loan)
	if err != nil || !ok {
		return nil, err
	}
	return &loan, nil
}

func (s *Store) PutLoanOffer(key [32]byte, loan *LoanOffer) error {
	if loan == nil {
		return fmt.Errorf("lending store: nil loan offer")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(loanKey(key), loan)
}

func (s *Store) DeleteLoanOffer(key [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(loanKey(key))
}

func (s *Store) GetAccount(addr [20]byte) (*types.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var account types.Account
	ok, err := s.get(accountKey(addr), &account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{}, nil
	}
	return &account, nil
}

func (s *Store) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("lending store: nil account")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(accountKey(addr), account)
}
