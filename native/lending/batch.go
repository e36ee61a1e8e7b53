package lending

import "xlend/core/types"

// stateBatch stages every mutation of a single engine operation in memory
// and flushes to the backing state only on Commit. An operation that fails
// after its first fund movement therefore leaves the ledger untouched:
// checks and debits all run against the overlay before anything persists.
type stateBatch struct {
	base engineState

	tiers      map[string]*Tier
	tierDels   map[string]struct{}
	lendOffers map[[32]byte]*LendOffer
	lendDels   map[[32]byte]struct{}
	loanOffers map[[32]byte]*LoanOffer
	loanDels   map[[32]byte]struct{}
	accounts   map[[20]byte]*types.Account
}

func newStateBatch(base engineState) *stateBatch {
	return &stateBatch{
		base:       base,
		tiers:      make(map[string]*Tier),
		tierDels:   make(map[string]struct{}),
		lendOffers: make(map[[32]byte]*LendOffer),
		lendDels:   make(map[[32]byte]struct{}),
		loanOffers: make(map[[32]byte]*LoanOffer),
		loanDels:   make(map[[32]byte]struct{}),
		accounts:   make(map[[20]byte]*types.Account),
	}
}

func (b *stateBatch) GetTier(tierID string) (*Tier, error) {
	if _, ok := b.tierDels[tierID]; ok {
		return nil, nil
	}
	if tier, ok := b.tiers[tierID]; ok {
		return tier.Clone(), nil
	}
	return b.base.GetTier(tierID)
}

func (b *stateBatch) PutTier(tier *Tier) error {
	if tier == nil {
		return errNilSpec
	}
	delete(b.tierDels, tier.TierID)
	b.tiers[tier.TierID] = tier.Clone()
	return nil
}

func (b *stateBatch) DeleteTier(tierID string) error {
	delete(b.tiers, tierID)
	b.tierDels[tierID] = struct{}{}
	return nil
}

func (b *stateBatch) GetLendOffer(key [32]byte) (*LendOffer, error) {
	if _, ok := b.lendDels[key]; ok {
		return nil, nil
	}
	if offer, ok := b.lendOffers[key]; ok {
		return offer.Clone(), nil
	}
	return b.base.GetLendOffer(key)
}

func (b *stateBatch) PutLendOffer(key [32]byte, offer *LendOffer) error {
	if offer == nil {
		return errNilSpec
	}
	delete(b.lendDels, key)
	b.lendOffers[key] = offer.Clone()
	return nil
}

func (b *stateBatch) DeleteLendOffer(key [32]byte) error {
	delete(b.lendOffers, key)
	b.lendDels[key] = struct{}{}
	return nil
}

func (b *stateBatch) GetLoanOffer(key [32]byte) (*LoanOffer, error) {
	if _, ok := b.loanDels[key]; ok {
		return nil, nil
	}
	if loan, ok := b.loanOffers[key]; ok {
		return loan.Clone(), nil
	}
	return b.base.GetLoanOffer(key)
}

func (b *stateBatch) PutLoanOffer(key [32]byte, loan *LoanOffer) error {
	if loan == nil {
		return errNilSpec
	}
	delete(b.loanDels, key)
	b.loanOffers[key] = loan.Clone()
	return nil
}

func (b *stateBatch) DeleteLoanOffer(key [32]byte) error {
	delete(b.loanOffers, key)
	b.loanDels[key] = struct{}{}
	return nil
}

func (b *stateBatch) GetAccount(addr [20]byte) (*types.Account, error) {
	if acc, ok := b.accounts[addr]; ok {
		return acc.Clone(), nil
	}
	return b.base.GetAccount(addr)
}

func (b *stateBatch) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return errNilSpec
	}
	b.accounts[addr] = account.Clone()
	return nil
}

// Commit flushes the staged writes to the backing state. Ledger accounts go
// first so a storage fault mid-flush cannot leave a record pointing at
// balances that were never moved.
func (b *stateBatch) Commit() error {
	for addr, account := range b.accounts {
		if err := b.base.PutAccount(addr, account); err != nil {
			return err
		}
	}
	for _, tier := range b.tiers {
		if err := b.base.PutTier(tier); err != nil {
			return err
		}
	}
	for tierID := range b.tierDels {
		if err := b.base.DeleteTier(tierID); err != nil {
			return err
		}
	}
	for key, offer := range b.lendOffers {
		if err := b.base.PutLendOffer(key, offer); err != nil {
			return err
		}
	}
	for key := range b.lendDels {
		if err := b.base.DeleteLendOffer(key); err != nil {
			return err
		}
	}
	for key, loan := range b.loanOffers {
		if err := b.base.PutLoanOffer(key, loan); err != nil {
			return err
		}
	}
	for key := range b.loanDels {
		if err := b.base.DeleteLoanOffer(key); err != nil {
			return err
		}
	}
	return nil
}
