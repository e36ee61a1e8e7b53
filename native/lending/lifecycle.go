package lending

import "math/big"

// SystemUpdateLoanOffer funds a loan: the settlement authority pays the
// borrower the tier principal minus the borrower fee out of the custodial
// pool and the loan transitions Created → FundTransferred. The supplied
// amount must match the protocol-computed disbursement exactly.
func (e *Engine) SystemUpdateLoanOffer(caller, borrower [20]byte, offerID string, borrowAmount *big.Int) (*LoanOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireAuthority(caller); err != nil {
		return nil, err
	}
	st := newStateBatch(e.state)
	loan, key, err := e.loadLoanOffer(st, borrower, offerID)
	if err != nil {
		return nil, err
	}
	if loan.Status != LoanCreated {
		return nil, ErrInvalidStateTransition
	}
	tier, err := e.loadTier(st, loan.TierID)
	if err != nil {
		return nil, err
	}

	expected := DisburseAmount(loan.BorrowAmount, tier.BorrowerFeeBps)
	if borrowAmount == nil || borrowAmount.Cmp(expected) != 0 {
		return nil, ErrAmountMismatch
	}

	if err := e.transfer(st, tier.SettlementDestination, borrower, tier.LendAsset, expected, ErrInsufficientLiquidity); err != nil {
		return nil, err
	}

	loan.Status = LoanFundTransferred
	loan.StartedAt = e.now()
	if err := st.PutLoanOffer(key, loan); err != nil {
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}

	e.emit(LoanOfferEvent{Kind: EventLoanFunded, Loan: loan.Clone()})
	return loan.Clone(), nil
}

// RepayLoanOffer settles the borrower's debt: principal plus interest plus
// the borrower fee moves back to the custodial pool and the loan becomes
// BorrowerPaid. Collateral is returned separately by SystemRepayLoanOffer.
func (e *Engine) RepayLoanOffer(borrower [20]byte, offerID string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st := newStateBatch(e.state)
	loan, key, err := e.loadLoanOffer(st, borrower, offerID)
	if err != nil {
		return nil, err
	}
	if loan.Status != LoanFundTransferred {
		return nil, ErrInvalidStateTransition
	}
	tier, err := e.loadTier(st, loan.TierID)
	if err != nil {
		return nil, err
	}
	if loan.Expired(tier.DurationSeconds, e.now()) {
		return nil, ErrLoanOfferExpired
	}

	total := RepayAmount(loan.BorrowAmount, loan.InterestBps, tier.DurationSeconds, tier.BorrowerFeeBps)
	if err := e.transfer(st, borrower, tier.SettlementDestination, tier.LendAsset, total, ErrInsufficientBorrowerBalance); err != nil {
		return nil, err
	}

	loan.Status = LoanBorrowerPaid
	if err := st.PutLoanOffer(key, loan); err != nil {
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}

	e.emit(LoanRepaidEvent{Loan: loan.Clone(), Repaid: new(big.Int).Set(total)})
	return total, nil
}

// SystemRepayLoanOffer closes out a repaid loan: the full remaining
// collateral returns to the borrower, both storage deposits are refunded,
// and the loan record plus the lend offer it matched are removed.
func (e *Engine) SystemRepayLoanOffer(caller, borrower [20]byte, offerID string, collateralAmount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	st := newStateBatch(e.state)
	loan, key, err := e.loadLoanOffer(st, borrower, offerID)
	if err != nil {
		return err
	}
	if loan.Status != LoanBorrowerPaid {
		return ErrInvalidStateTransition
	}
	if collateralAmount == nil || collateralAmount.Cmp(loan.CollateralAmount) != 0 {
		return ErrAmountMismatch
	}
	tier, err := e.loadTier(st, loan.TierID)
	if err != nil {
		return err
	}

	if loan.CollateralAmount.Sign() > 0 {
		if err := e.transfer(st, e.collateralVault, borrower, tier.CollateralAsset, loan.CollateralAmount, ErrInsufficientLiquidity); err != nil {
			return err
		}
	}
	if loan.StorageDeposit != nil && loan.StorageDeposit.Sign() > 0 {
		if err := e.transfer(st, e.collateralVault, borrower, e.cfg.DepositAsset, loan.StorageDeposit, ErrInsufficientLiquidity); err != nil {
			return err
		}
	}
	if err := e.reclaimMatchedLendOffer(st, loan); err != nil {
		return err
	}

	if err := st.DeleteLoanOffer(key); err != nil {
		return err
	}
	if tier.OpenLoans > 0 {
		tier.OpenLoans--
	}
	if err := st.PutTier(tier); err != nil {
		return err
	}
	if err := st.Commit(); err != nil {
		return err
	}

	e.emit(LoanClosedEvent{Loan: loan.Clone()})
	return nil
}

// DepositCollateral tops up the collateral on an active loan, raising its
// health ratio. Allowed while the loan is Created or FundTransferred.
func (e *Engine) DepositCollateral(borrower [20]byte, offerID string, amount *big.Int) (*LoanOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	st := newStateBatch(e.state)
	loan, key, err := e.loadLoanOffer(st, borrower, offerID)
	if err != nil {
		return nil, err
	}
	if loan.Status != LoanCreated && loan.Status != LoanFundTransferred {
		return nil, ErrInvalidStateTransition
	}
	tier, err := e.loadTier(st, loan.TierID)
	if err != nil {
		return nil, err
	}

	if err := e.transfer(st, borrower, e.collateralVault, tier.CollateralAsset, amount, ErrInsufficientBorrowerBalance); err != nil {
		return nil, err
	}

	loan.CollateralAmount = new(big.Int).Add(loan.CollateralAmount, amount)
	if err := st.PutLoanOffer(key, loan); err != nil {
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}

	e.emit(CollateralEvent{Kind: EventCollateralDeposited, Loan: loan.Clone(), Amount: new(big.Int).Set(amount)})
	return loan.Clone(), nil
}

// WithdrawCollateral is phase one of the two-phase partial release: the
// request is recorded only if the loan would remain sufficiently
// collateralised with the requested amount already gone, judged against
// live prices. No funds move until the settlement authority confirms.
func (e *Engine) WithdrawCollateral(borrower [20]byte, offerID string, requestedAmount *big.Int) (*LoanOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if requestedAmount == nil || requestedAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	loan, key, err := e.loadLoanOffer(e.state, borrower, offerID)
	if err != nil {
		return nil, err
	}
	if loan.Status != LoanFundTransferred {
		return nil, ErrInvalidStateTransition
	}
	if loan.RequestWithdrawAmount != nil {
		return nil, ErrWithdrawAlreadyPending
	}
	if requestedAmount.Cmp(loan.CollateralAmount) > 0 {
		return nil, ErrInvalidAmount
	}
	tier, err := e.loadTier(e.state, loan.TierID)
	if err != nil {
		return nil, err
	}
	if loan.Expired(tier.DurationSeconds, e.now()) {
		return nil, ErrLoanOfferExpired
	}

	remaining := new(big.Int).Sub(loan.CollateralAmount, requestedAmount)
	ratio, err := e.tierHealth(tier, remaining)
	if err != nil {
		return nil, err
	}
	if !MeetsThreshold(ratio, e.cfg.MinHealthBps) {
		return nil, ErrWithdrawalWouldUnderCollateralize
	}

	loan.RequestWithdrawAmount = new(big.Int).Set(requestedAmount)
	if err := e.state.PutLoanOffer(key, loan); err != nil {
		return nil, err
	}

	e.emit(CollateralEvent{Kind: EventWithdrawRequested, Loan: loan.Clone(), Amount: new(big.Int).Set(requestedAmount)})
	return loan.Clone(), nil
}

// SystemTransferCollateralRequestWithdraw is phase two: the settlement
// authority re-checks the pending amount and re-validates the health ratio
// against the current price immediately before moving funds, then
// atomically decrements the collateral, pays the borrower and clears the
// pending request. A price that moved since the request was recorded fails
// the release rather than honouring a stale approval.
func (e *Engine) SystemTransferCollateralRequestWithdraw(caller, borrower [20]byte, offerID string, requestedAmount *big.Int) (*LoanOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireAuthority(caller); err != nil {
		return nil, err
	}
	st := newStateBatch(e.state)
	loan, key, err := e.loadLoanOffer(st, borrower, offerID)
	if err != nil {
		return nil, err
	}
	if loan.Status != LoanFundTransferred {
		return nil, ErrInvalidStateTransition
	}
	if loan.RequestWithdrawAmount == nil {
		return nil, ErrNoWithdrawRequested
	}
	if requestedAmount == nil || requestedAmount.Cmp(loan.RequestWithdrawAmount) != 0 {
		return nil, ErrWithdrawMismatch
	}
	tier, err := e.loadTier(st, loan.TierID)
	if err != nil {
		return nil, err
	}

	remaining := new(big.Int).Sub(loan.CollateralAmount, requestedAmount)
	if remaining.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	ratio, err := e.tierHealth(tier, remaining)
	if err != nil {
		return nil, err
	}
	if !MeetsThreshold(ratio, e.cfg.MinHealthBps) {
		return nil, ErrWithdrawalWouldUnderCollateralize
	}

	if err := e.transfer(st, e.collateralVault, borrower, tier.CollateralAsset, requestedAmount, ErrInsufficientLiquidity); err != nil {
		return nil, err
	}

	loan.CollateralAmount = remaining
	loan.RequestWithdrawAmount = nil
	if err := st.PutLoanOffer(key, loan); err != nil {
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}

	e.emit(CollateralEvent{Kind: EventWithdrawSettled, Loan: loan.Clone(), Amount: new(big.Int).Set(requestedAmount)})
	return loan.Clone(), nil
}
