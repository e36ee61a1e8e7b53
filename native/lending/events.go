package lending

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"xlend/core/types"
)

const (
	EventTierInitialized     = "lending.tier.initialized"
	EventTierEdited          = "lending.tier.edited"
	EventTierClosed          = "lending.tier.closed"
	EventLendOfferCreated    = "lending.lend_offer.created"
	EventLendOfferEdited     = "lending.lend_offer.edited"
	EventLendOfferCanceling  = "lending.lend_offer.canceling"
	EventLendOfferCanceled   = "lending.lend_offer.canceled"
	EventLoanCreated         = "lending.loan.created"
	EventLoanFunded          = "lending.loan.fund_transferred"
	EventLoanRepaid          = "lending.loan.borrower_paid"
	EventLoanClosed          = "lending.loan.closed"
	EventLoanLiquidating     = "lending.loan.liquidating"
	EventLoanLiquidated      = "lending.loan.liquidated"
	EventCollateralDeposited = "lending.collateral.deposited"
	EventWithdrawRequested   = "lending.collateral.withdraw_requested"
	EventWithdrawSettled     = "lending.collateral.withdraw_settled"
)

func addrHex(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// TierInitialized is emitted when a tier is registered.
type TierInitialized struct{ Tier *Tier }

func (TierInitialized) EventType() string { return EventTierInitialized }

func (e TierInitialized) Event() *types.Event {
	return tierEvent(EventTierInitialized, e.Tier)
}

// TierEdited is emitted when a tier's terms are overwritten by its owner.
type TierEdited struct{ Tier *Tier }

func (TierEdited) EventType() string { return EventTierEdited }

func (e TierEdited) Event() *types.Event {
	return tierEvent(EventTierEdited, e.Tier)
}

// TierClosed is emitted when a tier is removed and its deposit refunded.
type TierClosed struct {
	TierID string
	Owner  [20]byte
}

func (TierClosed) EventType() string { return EventTierClosed }

func (e TierClosed) Event() *types.Event {
	return &types.Event{
		Type: EventTierClosed,
		Attributes: map[string]string{
			"tierId": e.TierID,
			"owner":  addrHex(e.Owner),
		},
	}
}

func tierEvent(kind string, tier *Tier) *types.Event {
	if tier == nil {
		return &types.Event{Type: kind, Attributes: map[string]string{}}
	}
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"tierId":          tier.TierID,
			"principalAmount": bigString(tier.PrincipalAmount),
			"durationSeconds": strconv.FormatUint(tier.DurationSeconds, 10),
			"lendAsset":       tier.LendAsset,
			"collateralAsset": tier.CollateralAsset,
			"owner":           addrHex(tier.Owner),
		},
	}
}

// LendOfferEvent covers the lender-driven offer transitions; Kind is one of
// the lend-offer event type constants.
type LendOfferEvent struct {
	Kind  string
	Offer *LendOffer
}

func (e LendOfferEvent) EventType() string { return e.Kind }

func (e LendOfferEvent) Event() *types.Event {
	if e.Offer == nil {
		return &types.Event{Type: e.Kind, Attributes: map[string]string{}}
	}
	return &types.Event{
		Type: e.Kind,
		Attributes: map[string]string{
			"lender":      addrHex(e.Offer.Lender),
			"offerId":     e.Offer.OfferID,
			"tierId":      e.Offer.TierID,
			"amount":      bigString(e.Offer.Amount),
			"interestBps": strconv.FormatUint(e.Offer.InterestBps, 10),
			"status":      e.Offer.Status.String(),
		},
	}
}

// LendOfferCanceledEvent is emitted when the settlement authority completes
// a cancel and returns the escrowed principal.
type LendOfferCanceledEvent struct {
	Offer           *LendOffer
	Returned        *big.Int
	WaitingInterest *big.Int
}

func (LendOfferCanceledEvent) EventType() string { return EventLendOfferCanceled }

func (e LendOfferCanceledEvent) Event() *types.Event {
	attrs := map[string]string{
		"returned":        bigString(e.Returned),
		"waitingInterest": bigString(e.WaitingInterest),
	}
	if e.Offer != nil {
		attrs["lender"] = addrHex(e.Offer.Lender)
		attrs["offerId"] = e.Offer.OfferID
		attrs["tierId"] = e.Offer.TierID
	}
	return &types.Event{Type: EventLendOfferCanceled, Attributes: attrs}
}

// LoanOfferEvent covers loan creation and funding; Kind is one of the loan
// event type constants.
type LoanOfferEvent struct {
	Kind string
	Loan *LoanOffer
}

func (e LoanOfferEvent) EventType() string { return e.Kind }

func (e LoanOfferEvent) Event() *types.Event {
	return loanEvent(e.Kind, e.Loan, nil)
}

// LoanRepaidEvent records a borrower settlement.
type LoanRepaidEvent struct {
	Loan   *LoanOffer
	Repaid *big.Int
}

func (LoanRepaidEvent) EventType() string { return EventLoanRepaid }

func (e LoanRepaidEvent) Event() *types.Event {
	return loanEvent(EventLoanRepaid, e.Loan, map[string]string{"repaid": bigString(e.Repaid)})
}

// LoanClosedEvent records the final collateral return and record removal.
type LoanClosedEvent struct{ Loan *LoanOffer }

func (LoanClosedEvent) EventType() string { return EventLoanClosed }

func (e LoanClosedEvent) Event() *types.Event {
	return loanEvent(EventLoanClosed, e.Loan, nil)
}

// LoanLiquidatingEvent records a liquidation start and the seized amount.
type LoanLiquidatingEvent struct {
	Loan   *LoanOffer
	Seized *big.Int
}

func (LoanLiquidatingEvent) EventType() string { return EventLoanLiquidating }

func (e LoanLiquidatingEvent) Event() *types.Event {
	extra := map[string]string{"seized": bigString(e.Seized)}
	if e.Loan != nil {
		extra["liquidatingPrice"] = e.Loan.LiquidatingPrice
		extra["liquidatingAt"] = strconv.FormatInt(e.Loan.LiquidatingAt, 10)
	}
	return loanEvent(EventLoanLiquidating, e.Loan, extra)
}

// LoanLiquidatedEvent records the proceeds split when a liquidation is
// settled: what the swap realised, the lender's total and the remainder
// returned to the borrower.
type LoanLiquidatedEvent struct {
	Loan              *LoanOffer
	LenderTotal       *big.Int
	BorrowerReturn    *big.Int
	CollateralSwapped *big.Int
}

func (LoanLiquidatedEvent) EventType() string { return EventLoanLiquidated }

func (e LoanLiquidatedEvent) Event() *types.Event {
	extra := map[string]string{
		"lenderTotal":       bigString(e.LenderTotal),
		"borrowerReturn":    bigString(e.BorrowerReturn),
		"collateralSwapped": bigString(e.CollateralSwapped),
	}
	if e.Loan != nil {
		extra["liquidatedPrice"] = e.Loan.LiquidatedPrice
		extra["liquidatedTx"] = e.Loan.LiquidatedTx
	}
	return loanEvent(EventLoanLiquidated, e.Loan, extra)
}

// CollateralEvent covers deposits and the two withdrawal phases; Kind is one
// of the collateral event type constants.
type CollateralEvent struct {
	Kind   string
	Loan   *LoanOffer
	Amount *big.Int
}

func (e CollateralEvent) EventType() string { return e.Kind }

func (e CollateralEvent) Event() *types.Event {
	return loanEvent(e.Kind, e.Loan, map[string]string{"amount": bigString(e.Amount)})
}

func loanEvent(kind string, loan *LoanOffer, extra map[string]string) *types.Event {
	attrs := make(map[string]string, 8+len(extra))
	if loan != nil {
		attrs["borrower"] = addrHex(loan.Borrower)
		attrs["lender"] = addrHex(loan.Lender)
		attrs["offerId"] = loan.OfferID
		attrs["lendOfferId"] = loan.LendOfferID
		attrs["tierId"] = loan.TierID
		attrs["borrowAmount"] = bigString(loan.BorrowAmount)
		attrs["collateralAmount"] = bigString(loan.CollateralAmount)
		attrs["status"] = loan.Status.String()
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &types.Event{Type: kind, Attributes: attrs}
}
