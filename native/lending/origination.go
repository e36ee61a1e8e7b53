package lending

import (
	"math/big"
	"strings"
)

// CreateLoanOfferNative opens a loan against an open lend offer. The
// borrower's collateral is escrowed into the custodial vault only after the
// live health ratio clears the configured minimum; both prices come from the
// oracle at call time and must be fresh.
func (e *Engine) CreateLoanOfferNative(borrower [20]byte, offerID string, lender [20]byte, lendOfferID, tierID string, collateralAmount *big.Int) (*LoanOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return nil, errNilSpec
	}
	if collateralAmount == nil || collateralAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	st := newStateBatch(e.state)
	tier, err := e.loadTier(st, tierID)
	if err != nil {
		return nil, err
	}

	lendOffer, lendKey, err := e.loadLendOffer(st, lender, lendOfferID)
	if err != nil {
		if err == ErrLendOfferNotFound {
			return nil, ErrLendOfferNotAvailable
		}
		return nil, err
	}
	if lendOffer.Status != LendOfferCreated {
		return nil, ErrLendOfferNotAvailable
	}
	if lendOffer.TierID != tier.TierID {
		return nil, ErrInvalidMintAsset
	}
	if lendOffer.Amount.Cmp(tier.PrincipalAmount) != 0 {
		return nil, ErrAmountMismatch
	}

	loanKey := DeriveLoanOfferKey(borrower, offerID)
	existing, err := st.GetLoanOffer(loanKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrInvalidStateTransition
	}

	ratio, err := e.tierHealth(tier, collateralAmount)
	if err != nil {
		return nil, err
	}
	if !MeetsThreshold(ratio, e.cfg.MinHealthBps) {
		return nil, ErrInsufficientCollateral
	}

	if err := e.transfer(st, borrower, e.collateralVault, tier.CollateralAsset, collateralAmount, ErrInsufficientBorrowerBalance); err != nil {
		return nil, err
	}
	deposit := new(big.Int).Set(e.cfg.StorageDepositWei)
	if deposit.Sign() > 0 {
		if err := e.transfer(st, borrower, e.collateralVault, e.cfg.DepositAsset, deposit, ErrInsufficientBorrowerBalance); err != nil {
			return nil, err
		}
	}

	loan := &LoanOffer{
		Borrower:         borrower,
		Lender:           lendOffer.Lender,
		OfferID:          offerID,
		LendOfferID:      lendOffer.OfferID,
		TierID:           tier.TierID,
		BorrowAmount:     new(big.Int).Set(lendOffer.Amount),
		InterestBps:      lendOffer.InterestBps,
		CollateralAmount: new(big.Int).Set(collateralAmount),
		Status:           LoanCreated,
		StartedAt:        e.now(),
		StorageDeposit:   deposit,
	}
	if err := st.PutLoanOffer(loanKey, loan); err != nil {
		return nil, err
	}

	lendOffer.Status = LendOfferMatched
	if err := st.PutLendOffer(lendKey, lendOffer); err != nil {
		return nil, err
	}

	// The matched offer no longer counts as open; the loan takes over the
	// tier reference.
	if tier.OpenOffers > 0 {
		tier.OpenOffers--
	}
	tier.OpenLoans++
	if err := st.PutTier(tier); err != nil {
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}

	e.emit(LoanOfferEvent{Kind: EventLoanCreated, Loan: loan.Clone()})
	return loan.Clone(), nil
}

func (e *Engine) loadLoanOffer(st engineState, borrower [20]byte, offerID string) (*LoanOffer, [32]byte, error) {
	key := DeriveLoanOfferKey(borrower, strings.TrimSpace(offerID))
	loan, err := st.GetLoanOffer(key)
	if err != nil {
		return nil, key, err
	}
	if loan == nil {
		return nil, key, ErrLoanOfferNotFound
	}
	if loan.BorrowAmount == nil {
		loan.BorrowAmount = big.NewInt(0)
	}
	if loan.CollateralAmount == nil {
		loan.CollateralAmount = big.NewInt(0)
	}
	if loan.StorageDeposit == nil {
		loan.StorageDeposit = big.NewInt(0)
	}
	return loan, key, nil
}
