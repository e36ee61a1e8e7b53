package lending

import "math/big"

// StartLiquidateContract begins liquidation of an under-collateralised loan.
// The decision is made on the live health ratio re-derived from the oracle
// at call time; the caller-supplied liquidatingPrice and liquidatingAt are
// recorded for audit only and never influence the check. The full remaining
// collateral is seized into the custodial pool and the loan transitions to
// Liquidating, which also voids any pending withdrawal request. The loan
// keeps its tier reference until SystemFinishLiquidateContract settles the
// proceeds.
func (e *Engine) StartLiquidateContract(caller, borrower [20]byte, offerID string, liquidatingPrice string, liquidatingAt int64) (*LoanOffer, error) {
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
	if loan.Status != LoanCreated && loan.Status != LoanFundTransferred {
		return nil, ErrInvalidStateTransition
	}
	tier, err := e.loadTier(st, loan.TierID)
	if err != nil {
		return nil, err
	}

	ratio, err := e.tierHealth(tier, loan.CollateralAmount)
	if err != nil {
		return nil, err
	}
	if MeetsThreshold(ratio, e.cfg.LiquidationHealthBps) {
		return nil, ErrHealthRatioStillSufficient
	}

	seized := new(big.Int).Set(loan.CollateralAmount)
	if seized.Sign() > 0 {
		if err := e.transfer(st, e.collateralVault, tier.SettlementDestination, tier.CollateralAsset, seized, ErrInsufficientLiquidity); err != nil {
			return nil, err
		}
	}

	loan.CollateralAmount = big.NewInt(0)
	loan.RequestWithdrawAmount = nil
	loan.Status = LoanLiquidating
	loan.LiquidatingPrice = liquidatingPrice
	loan.LiquidatingAt = liquidatingAt
	if err := st.PutLoanOffer(key, loan); err != nil {
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}

	e.emit(LoanLiquidatingEvent{Loan: loan.Clone(), Seized: seized})
	return loan.Clone(), nil
}

// SystemFinishLiquidateContract settles a Liquidating loan once the seized
// collateral has been swapped into the lend asset. loanAmount must restate
// the loan principal; collateralSwapped is what the swap realised and must
// already sit at the tier's settlement destination. The lender receives
// principal plus term interest plus the waiting-interest credit minus the
// lender fee; whatever the swap realised beyond the debt and the borrower
// fee returns to the borrower. A swap that realised less than the debt
// leaves nothing for the borrower. The loan record, its storage deposit and
// the matched lend offer are all reclaimed, and only then does the tier
// drop its open-loan reference.
func (e *Engine) SystemFinishLiquidateContract(caller, borrower [20]byte, offerID string, loanAmount, collateralSwapped, waitingInterest *big.Int, liquidatedPrice, liquidatedTx string) (*LoanOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireAuthority(caller); err != nil {
		return nil, err
	}
	if collateralSwapped == nil || collateralSwapped.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if waitingInterest != nil && waitingInterest.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	st := newStateBatch(e.state)
	loan, key, err := e.loadLoanOffer(st, borrower, offerID)
	if err != nil {
		return nil, err
	}
	if loan.Status != LoanLiquidating {
		return nil, ErrInvalidStateTransition
	}
	if loanAmount == nil || loanAmount.Cmp(loan.BorrowAmount) != 0 {
		return nil, ErrAmountMismatch
	}
	tier, err := e.loadTier(st, loan.TierID)
	if err != nil {
		return nil, err
	}

	lenderTotal := LenderPayout(loan.BorrowAmount, loan.InterestBps, tier.DurationSeconds, tier.LenderFeeBps)
	if waitingInterest != nil {
		lenderTotal.Add(lenderTotal, waitingInterest)
	}

	interest := InterestAmount(loan.BorrowAmount, loan.InterestBps, tier.DurationSeconds)
	debt := new(big.Int).Add(loan.BorrowAmount, interest)
	debt.Add(debt, FeeAmount(loan.BorrowAmount, tier.BorrowerFeeBps))
	remainder := new(big.Int).Sub(collateralSwapped, debt)
	if remainder.Sign() < 0 {
		remainder.SetInt64(0)
	}

	if err := e.transfer(st, tier.SettlementDestination, loan.Lender, tier.LendAsset, lenderTotal, ErrInsufficientLiquidity); err != nil {
		return nil, err
	}
	if remainder.Sign() > 0 {
		if err := e.transfer(st, tier.SettlementDestination, borrower, tier.LendAsset, remainder, ErrInsufficientLiquidity); err != nil {
			return nil, err
		}
	}
	if loan.StorageDeposit != nil && loan.StorageDeposit.Sign() > 0 {
		if err := e.transfer(st, e.collateralVault, borrower, e.cfg.DepositAsset, loan.StorageDeposit, ErrInsufficientLiquidity); err != nil {
			return nil, err
		}
	}
	if err := e.reclaimMatchedLendOffer(st, loan); err != nil {
		return nil, err
	}

	loan.Status = LoanLiquidated
	loan.LiquidatedPrice = liquidatedPrice
	loan.LiquidatedTx = liquidatedTx
	if err := st.DeleteLoanOffer(key); err != nil {
		return nil, err
	}
	if tier.OpenLoans > 0 {
		tier.OpenLoans--
	}
	if err := st.PutTier(tier); err != nil {
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}

	e.emit(LoanLiquidatedEvent{
		Loan:              loan.Clone(),
		LenderTotal:       new(big.Int).Set(lenderTotal),
		BorrowerReturn:    new(big.Int).Set(remainder),
		CollateralSwapped: new(big.Int).Set(collateralSwapped),
	})
	return loan.Clone(), nil
}
