package lending

import (
	"fmt"
	"math/big"
	"strings"
)

// LendOfferStatus represents the lifecycle states of a lender's escrowed
// principal commitment.
type LendOfferStatus uint8

const (
	LendOfferCreated LendOfferStatus = iota
	LendOfferCanceling
	LendOfferCanceled
	LendOfferMatched
)

// Valid reports whether the status value is within the supported range.
func (s LendOfferStatus) Valid() bool {
	switch s {
	case LendOfferCreated, LendOfferCanceling, LendOfferCanceled, LendOfferMatched:
		return true
	default:
		return false
	}
}

func (s LendOfferStatus) String() string {
	switch s {
	case LendOfferCreated:
		return "created"
	case LendOfferCanceling:
		return "canceling"
	case LendOfferCanceled:
		return "canceled"
	case LendOfferMatched:
		return "matched"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// LoanStatus represents the lifecycle states of a collateralised loan.
type LoanStatus uint8

const (
	LoanCreated LoanStatus = iota
	LoanFundTransferred
	LoanBorrowerPaid
	LoanLiquidating
	LoanLiquidated
)

// Valid reports whether the status value is within the supported range.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanCreated, LoanFundTransferred, LoanBorrowerPaid, LoanLiquidating, LoanLiquidated:
		return true
	default:
		return false
	}
}

func (s LoanStatus) String() string {
	switch s {
	case LoanCreated:
		return "created"
	case LoanFundTransferred:
		return "fund_transferred"
	case LoanBorrowerPaid:
		return "borrower_paid"
	case LoanLiquidating:
		return "liquidating"
	case LoanLiquidated:
		return "liquidated"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Tier holds the fixed terms every offer and loan created under it must
// conform to. Reference counters track open offers/loans so the registry can
// refuse to close a tier that is still in use.
type Tier struct {
	TierID                string   `json:"tierId"`
	PrincipalAmount       *big.Int `json:"principalAmount"`
	DurationSeconds       uint64   `json:"durationSeconds"`
	LenderFeeBps          uint64   `json:"lenderFeeBps"`
	BorrowerFeeBps        uint64   `json:"borrowerFeeBps"`
	LendAsset             string   `json:"lendAsset"`
	CollateralAsset       string   `json:"collateralAsset"`
	LendPriceFeed         string   `json:"lendPriceFeed"`
	CollateralPriceFeed   string   `json:"collateralPriceFeed"`
	Owner                 [20]byte `json:"owner"`
	SettlementDestination [20]byte `json:"settlementDestination"`
	StorageDeposit        *big.Int `json:"storageDeposit"`
	OpenOffers            uint64   `json:"openOffers"`
	OpenLoans             uint64   `json:"openLoans"`
}

// Clone returns a deep copy of the tier.
func (t *Tier) Clone() *Tier {
	if t == nil {
		return nil
	}
	clone := *t
	if t.PrincipalAmount != nil {
		clone.PrincipalAmount = new(big.Int).Set(t.PrincipalAmount)
	} else {
		clone.PrincipalAmount = big.NewInt(0)
	}
	if t.StorageDeposit != nil {
		clone.StorageDeposit = new(big.Int).Set(t.StorageDeposit)
	} else {
		clone.StorageDeposit = big.NewInt(0)
	}
	return &clone
}

// Referenced reports whether any open offer or loan still points at the tier.
func (t *Tier) Referenced() bool {
	if t == nil {
		return false
	}
	return t.OpenOffers > 0 || t.OpenLoans > 0
}

// LendOffer is a lender's escrowed commitment of principal under a tier.
type LendOffer struct {
	Lender         [20]byte        `json:"lender"`
	OfferID        string          `json:"offerId"`
	TierID         string          `json:"tierId"`
	Amount         *big.Int        `json:"amount"`
	InterestBps    uint64          `json:"interestBps"`
	Status         LendOfferStatus `json:"status"`
	CreatedAt      int64           `json:"createdAt"`
	StorageDeposit *big.Int        `json:"storageDeposit"`
}

// Clone returns a deep copy of the lend offer.
func (o *LendOffer) Clone() *LendOffer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Amount != nil {
		clone.Amount = new(big.Int).Set(o.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if o.StorageDeposit != nil {
		clone.StorageDeposit = new(big.Int).Set(o.StorageDeposit)
	} else {
		clone.StorageDeposit = big.NewInt(0)
	}
	return &clone
}

// LoanOffer is a borrower's collateralised draw against a matched LendOffer.
// RequestWithdrawAmount is non-nil only between a withdrawal request and its
// system confirmation.
type LoanOffer struct {
	Borrower              [20]byte   `json:"borrower"`
	Lender                [20]byte   `json:"lender"`
	OfferID               string     `json:"offerId"`
	LendOfferID           string     `json:"lendOfferId"`
	TierID                string     `json:"tierId"`
	BorrowAmount          *big.Int   `json:"borrowAmount"`
	InterestBps           uint64     `json:"interestBps"`
	CollateralAmount      *big.Int   `json:"collateralAmount"`
	RequestWithdrawAmount *big.Int   `json:"requestWithdrawAmount,omitempty"`
	Status                LoanStatus `json:"status"`
	StartedAt             int64      `json:"startedAt"`
	LiquidatingPrice      string     `json:"liquidatingPrice,omitempty"`
	LiquidatingAt         int64      `json:"liquidatingAt,omitempty"`
	LiquidatedPrice       string     `json:"liquidatedPrice,omitempty"`
	LiquidatedTx          string     `json:"liquidatedTx,omitempty"`
	StorageDeposit        *big.Int   `json:"storageDeposit"`
}

// Clone returns a deep copy of the loan.
func (l *LoanOffer) Clone() *LoanOffer {
	if l == nil {
		return nil
	}
	clone := *l
	if l.BorrowAmount != nil {
		clone.BorrowAmount = new(big.Int).Set(l.BorrowAmount)
	} else {
		clone.BorrowAmount = big.NewInt(0)
	}
	if l.CollateralAmount != nil {
		clone.CollateralAmount = new(big.Int).Set(l.CollateralAmount)
	} else {
		clone.CollateralAmount = big.NewInt(0)
	}
	if l.RequestWithdrawAmount != nil {
		clone.RequestWithdrawAmount = new(big.Int).Set(l.RequestWithdrawAmount)
	}
	if l.StorageDeposit != nil {
		clone.StorageDeposit = new(big.Int).Set(l.StorageDeposit)
	} else {
		clone.StorageDeposit = big.NewInt(0)
	}
	return &clone
}

// Expired reports whether the loan term has elapsed at the supplied
// timestamp, based on the duration captured from its tier.
func (l *LoanOffer) Expired(durationSeconds uint64, now int64) bool {
	if l == nil {
		return false
	}
	return now > l.StartedAt+int64(durationSeconds)
}

// NormalizeAsset canonicalises an asset symbol. Symbols are free-form but
// must be non-empty; casing is normalised so tier/offer comparisons are
// deterministic.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("lending: asset symbol required")
	}
	return trimmed, nil
}

// TierSpec carries the caller-supplied fields for InitTier and EditTier.
type TierSpec struct {
	TierID                string
	PrincipalAmount       *big.Int
	DurationSeconds       uint64
	LenderFeeBps          uint64
	BorrowerFeeBps        uint64
	LendAsset             string
	CollateralAsset       string
	LendPriceFeed         string
	CollateralPriceFeed   string
	SettlementDestination [20]byte
}

// Sanitize validates and normalises the spec, returning a copy with
// canonical asset casing and non-nil amounts. The original value is not
// mutated.
func (s TierSpec) Sanitize() (TierSpec, error) {
	out := s
	out.TierID = strings.TrimSpace(s.TierID)
	if out.TierID == "" {
		return TierSpec{}, fmt.Errorf("lending: tier id required")
	}
	if s.PrincipalAmount == nil || s.PrincipalAmount.Sign() <= 0 {
		return TierSpec{}, fmt.Errorf("lending: tier principal must be positive")
	}
	out.PrincipalAmount = new(big.Int).Set(s.PrincipalAmount)
	if s.DurationSeconds == 0 {
		return TierSpec{}, fmt.Errorf("lending: tier duration required")
	}
	if s.LenderFeeBps > 10_000 || s.BorrowerFeeBps > 10_000 {
		return TierSpec{}, fmt.Errorf("lending: tier fee bps out of range")
	}
	lendAsset, err := NormalizeAsset(s.LendAsset)
	if err != nil {
		return TierSpec{}, err
	}
	out.LendAsset = lendAsset
	collateralAsset, err := NormalizeAsset(s.CollateralAsset)
	if err != nil {
		return TierSpec{}, err
	}
	out.CollateralAsset = collateralAsset
	out.LendPriceFeed = strings.TrimSpace(s.LendPriceFeed)
	out.CollateralPriceFeed = strings.TrimSpace(s.CollateralPriceFeed)
	if out.LendPriceFeed == "" || out.CollateralPriceFeed == "" {
		return TierSpec{}, fmt.Errorf("lending: tier price feeds required")
	}
	return out, nil
}
