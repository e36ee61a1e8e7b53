package lending

import (
	"math/big"
	"strings"
)

// CreateLendOffer escrows the tier principal from the lender into the tier's
// settlement destination and records the offer in Created status. The
// interest rate is the lender's choice and must be positive.
func (e *Engine) CreateLendOffer(lender [20]byte, offerID, tierID string, interestBps uint64) (*LendOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return nil, errNilSpec
	}
	if interestBps == 0 {
		return nil, ErrInvalidInterest
	}
	st := newStateBatch(e.state)
	tier, err := e.loadTier(st, tierID)
	if err != nil {
		return nil, err
	}

	key := DeriveLendOfferKey(lender, offerID)
	existing, err := st.GetLendOffer(key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrLendOfferNotAvailable
	}

	deposit := new(big.Int).Set(e.cfg.StorageDepositWei)
	if err := e.transfer(st, lender, tier.SettlementDestination, tier.LendAsset, tier.PrincipalAmount, ErrInsufficientLenderBalance); err != nil {
		return nil, err
	}
	if deposit.Sign() > 0 {
		if err := e.transfer(st, lender, e.collateralVault, e.cfg.DepositAsset, deposit, ErrInsufficientLenderBalance); err != nil {
			return nil, err
		}
	}

	offer := &LendOffer{
		Lender:         lender,
		OfferID:        offerID,
		TierID:         tier.TierID,
		Amount:         new(big.Int).Set(tier.PrincipalAmount),
		InterestBps:    interestBps,
		Status:         LendOfferCreated,
		CreatedAt:      e.now(),
		StorageDeposit: deposit,
	}
	if err := st.PutLendOffer(key, offer); err != nil {
		return nil, err
	}

	tier.OpenOffers++
	if err := st.PutTier(tier); err != nil {
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}

	e.emit(LendOfferEvent{Kind: EventLendOfferCreated, Offer: offer.Clone()})
	return offer.Clone(), nil
}

// EditLendOffer updates the interest rate on an offer still in Created
// status. The derived key ties the lookup to the caller, so a non-owning
// lender never reaches another lender's record.
func (e *Engine) EditLendOffer(lender [20]byte, offerID string, interestBps uint64) (*LendOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if interestBps == 0 {
		return nil, ErrInvalidInterest
	}
	offer, key, err := e.loadLendOffer(e.state, lender, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != LendOfferCreated {
		return nil, ErrInvalidStateTransition
	}

	offer.InterestBps = interestBps
	if err := e.state.PutLendOffer(key, offer); err != nil {
		return nil, err
	}
	e.emit(LendOfferEvent{Kind: EventLendOfferEdited, Offer: offer.Clone()})
	return offer.Clone(), nil
}

// CancelLendOffer transitions a Created offer to Canceling. No funds move
// here: the escrowed principal only returns once the settlement authority
// confirms through SystemCancelLendOffer.
func (e *Engine) CancelLendOffer(lender [20]byte, offerID string) (*LendOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offer, key, err := e.loadLendOffer(e.state, lender, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != LendOfferCreated {
		return nil, ErrInvalidStateTransition
	}

	offer.Status = LendOfferCanceling
	if err := e.state.PutLendOffer(key, offer); err != nil {
		return nil, err
	}
	e.emit(LendOfferEvent{Kind: EventLendOfferCanceling, Offer: offer.Clone()})
	return offer.Clone(), nil
}

// SystemCancelLendOffer completes a two-phase cancel: the settlement
// authority returns exactly the escrowed amount plus a protocol-computed
// waiting-interest credit, reclaims the record's storage deposit to the
// lender and removes the offer. maxWaitingInterest caps the credit; the
// credit itself is derived from the offer's own rate and open time, never
// taken from caller input alone.
func (e *Engine) SystemCancelLendOffer(caller, lender [20]byte, offerID string, amount, maxWaitingInterest *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireAuthority(caller); err != nil {
		return nil, err
	}
	st := newStateBatch(e.state)
	offer, key, err := e.loadLendOffer(st, lender, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != LendOfferCanceling {
		return nil, ErrInvalidStateTransition
	}
	if amount == nil || amount.Cmp(offer.Amount) != 0 {
		return nil, ErrAmountMismatch
	}
	tier, err := e.loadTier(st, offer.TierID)
	if err != nil {
		return nil, err
	}

	credit := WaitingInterest(offer.Amount, offer.InterestBps, e.now()-offer.CreatedAt, maxWaitingInterest)
	total := new(big.Int).Add(offer.Amount, credit)

	if err := e.transfer(st, tier.SettlementDestination, lender, tier.LendAsset, total, ErrInsufficientLiquidity); err != nil {
		return nil, err
	}
	if offer.StorageDeposit != nil && offer.StorageDeposit.Sign() > 0 {
		if err := e.transfer(st, e.collateralVault, lender, e.cfg.DepositAsset, offer.StorageDeposit, ErrInsufficientLiquidity); err != nil {
			return nil, err
		}
	}

	offer.Status = LendOfferCanceled
	if err := st.DeleteLendOffer(key); err != nil {
		return nil, err
	}
	if tier.OpenOffers > 0 {
		tier.OpenOffers--
	}
	if err := st.PutTier(tier); err != nil {
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}

	e.emit(LendOfferCanceledEvent{Offer: offer.Clone(), Returned: new(big.Int).Set(total), WaitingInterest: credit})
	return total, nil
}

func (e *Engine) loadLendOffer(st engineState, lender [20]byte, offerID string) (*LendOffer, [32]byte, error) {
	key := DeriveLendOfferKey(lender, strings.TrimSpace(offerID))
	offer, err := st.GetLendOffer(key)
	if err != nil {
		return nil, key, err
	}
	if offer == nil {
		return nil, key, ErrLendOfferNotFound
	}
	if offer.Amount == nil {
		offer.Amount = big.NewInt(0)
	}
	if offer.StorageDeposit == nil {
		offer.StorageDeposit = big.NewInt(0)
	}
	return offer, key, nil
}

// reclaimMatchedLendOffer removes the lend offer a closing loan consumed
// and refunds its storage deposit to the lender. A matched offer can never
// be canceled through the offer path, so loan close-out is the only place
// its record and deposit come back.
func (e *Engine) reclaimMatchedLendOffer(st engineState, loan *LoanOffer) error {
	key := DeriveLendOfferKey(loan.Lender, loan.LendOfferID)
	offer, err := st.GetLendOffer(key)
	if err != nil {
		return err
	}
	if offer == nil || offer.Status != LendOfferMatched {
		return nil
	}
	if offer.StorageDeposit != nil && offer.StorageDeposit.Sign() > 0 {
		if err := e.transfer(st, e.collateralVault, loan.Lender, e.cfg.DepositAsset, offer.StorageDeposit, ErrInsufficientLiquidity); err != nil {
			return err
		}
	}
	return st.DeleteLendOffer(key)
}
