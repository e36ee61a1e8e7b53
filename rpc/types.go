package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"xlend/crypto"
)

type tierRequest struct {
	Caller                string `json:"caller"`
	TierID                string `json:"tierId"`
	PrincipalAmount       string `json:"principalAmount"`
	DurationSeconds       uint64 `json:"durationSeconds"`
	LenderFeeBps          uint64 `json:"lenderFeeBps"`
	BorrowerFeeBps        uint64 `json:"borrowerFeeBps"`
	LendAsset             string `json:"lendAsset"`
	CollateralAsset       string `json:"collateralAsset"`
	LendPriceFeed         string `json:"lendPriceFeed"`
	CollateralPriceFeed   string `json:"collateralPriceFeed"`
	SettlementDestination string `json:"settlementDestination"`
}

type closeTierRequest struct {
	Caller string `json:"caller"`
	TierID string `json:"tierId"`
}

type lendOfferRequest struct {
	Lender      string `json:"lender"`
	OfferID     string `json:"offerId"`
	TierID      string `json:"tierId"`
	InterestBps uint64 `json:"interestBps"`
}

type systemCancelRequest struct {
	Lender             string `json:"lender"`
	OfferID            string `json:"offerId"`
	Amount             string `json:"amount"`
	MaxWaitingInterest string `json:"maxWaitingInterest"`
}

type loanRequest struct {
	Borrower         string `json:"borrower"`
	OfferID          string `json:"offerId"`
	Lender           string `json:"lender"`
	LendOfferID      string `json:"lendOfferId"`
	TierID           string `json:"tierId"`
	CollateralAmount string `json:"collateralAmount"`
}

type loanAmountRequest struct {
	Borrower string `json:"borrower"`
	OfferID  string `json:"offerId"`
	Amount   string `json:"amount"`
}

type loanActionRequest struct {
	Borrower string `json:"borrower"`
	OfferID  string `json:"offerId"`
}

type liquidateRequest struct {
	Borrower         string `json:"borrower"`
	OfferID          string `json:"offerId"`
	LiquidatingPrice string `json:"liquidatingPrice"`
	LiquidatingAt    int64  `json:"liquidatingAt"`
}

type liquidatedRequest struct {
	Borrower                string `json:"borrower"`
	OfferID                 string `json:"offerId"`
	LoanAmount              string `json:"loanAmount"`
	CollateralSwappedAmount string `json:"collateralSwappedAmount"`
	WaitingInterest         string `json:"waitingInterest,omitempty"`
	LiquidatedPrice         string `json:"liquidatedPrice"`
	LiquidatedTx            string `json:"liquidatedTx"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func parseAddress(field, value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr.Fixed(), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s: amount required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, value)
	}
	return amount, nil
}

func parseOptionalAmount(field, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return parseAmount(field, value)
}
