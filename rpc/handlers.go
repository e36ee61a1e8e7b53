package rpc

import (
	"net/http"
	"time"

	"xlend/native/lending"
)

func (s *Server) tierSpec(req tierRequest) (lending.TierSpec, error) {
	destination, err := parseAddress("settlementDestination", req.SettlementDestination)
	if err != nil {
		return lending.TierSpec{}, err
	}
	principal, err := parseAmount("principalAmount", req.PrincipalAmount)
	if err != nil {
		return lending.TierSpec{}, err
	}
	return lending.TierSpec{
		TierID:                req.TierID,
		PrincipalAmount:       principal,
		DurationSeconds:       req.DurationSeconds,
		LenderFeeBps:          req.LenderFeeBps,
		BorrowerFeeBps:        req.BorrowerFeeBps,
		LendAsset:             req.LendAsset,
		CollateralAsset:       req.CollateralAsset,
		LendPriceFeed:         req.LendPriceFeed,
		CollateralPriceFeed:   req.CollateralPriceFeed,
		SettlementDestination: destination,
	}, nil
}

func (s *Server) handleInitTier(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req tierRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	spec, err := s.tierSpec(req)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	tier, err := s.engine.InitTier(caller, spec)
	s.respond(w, r, "init_tier", started, tier, err)
}

func (s *Server) handleEditTier(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req tierRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	spec, err := s.tierSpec(req)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	tier, err := s.engine.EditTier(caller, spec)
	s.respond(w, r, "edit_tier", started, tier, err)
}

func (s *Server) handleCloseTier(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req closeTierRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	err = s.engine.CloseTier(caller, req.TierID)
	s.respond(w, r, "close_tier", started, map[string]string{"tierId": req.TierID}, err)
}

func (s *Server) handleCreateLendOffer(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req lendOfferRequest
	if !s.decode(w, r, &req) {
		return
	}
	lender, err := parseAddress("lender", req.Lender)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	offer, err := s.engine.CreateLendOffer(lender, req.OfferID, req.TierID, req.InterestBps)
	s.respond(w, r, "create_lend_offer", started, offer, err)
}

func (s *Server) handleEditLendOffer(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req lendOfferRequest
	if !s.decode(w, r, &req) {
		return
	}
	lender, err := parseAddress("lender", req.Lender)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	offer, err := s.engine.EditLendOffer(lender, req.OfferID, req.InterestBps)
	s.respond(w, r, "edit_lend_offer", started, offer, err)
}

func (s *Server) handleCancelLendOffer(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req lendOfferRequest
	if !s.decode(w, r, &req) {
		return
	}
	lender, err := parseAddress("lender", req.Lender)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	offer, err := s.engine.CancelLendOffer(lender, req.OfferID)
	s.respond(w, r, "cancel_lend_offer", started, offer, err)
}

func (s *Server) handleSystemCancelLendOffer(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req systemCancelRequest
	if !s.decode(w, r, &req) {
		return
	}
	lender, err := parseAddress("lender", req.Lender)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	maxWaiting, err := parseOptionalAmount("maxWaitingInterest", req.MaxWaitingInterest)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	returned, err := s.engine.SystemCancelLendOffer(s.authority, lender, req.OfferID, amount, maxWaiting)
	var payload interface{}
	if err == nil {
		payload = amountResponse{Amount: returned.String()}
	}
	s.respond(w, r, "system_cancel_lend_offer", started, payload, err)
}

func (s *Server) handleCreateLoanOffer(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req loanRequest
	if !s.decode(w, r, &req) {
		return
	}
	borrower, err := parseAddress("borrower", req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	lender, err := parseAddress("lender", req.Lender)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	collateral, err := parseAmount("collateralAmount", req.CollateralAmount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	loan, err := s.engine.CreateLoanOfferNative(borrower, req.OfferID, lender, req.LendOfferID, req.TierID, collateral)
	if err == nil {
		s.metrics.LoanOpened()
	}
	s.respond(w, r, "create_loan_offer", started, loan, err)
}

func (s *Server) handleRepayLoanOffer(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req loanActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	borrower, err := parseAddress("borrower", req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	repaid, err := s.engine.RepayLoanOffer(borrower, req.OfferID)
	var payload interface{}
	if err == nil {
		payload = amountResponse{Amount: repaid.String()}
	}
	s.respond(w, r, "repay_loan_offer", started, payload, err)
}

func (s *Server) handleDepositCollateral(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req loanAmountRequest
	if !s.decode(w, r, &req) {
		return
	}
	borrower, err := parseAddress("borrower", req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	loan, err := s.engine.DepositCollateral(borrower, req.OfferID, amount)
	s.respond(w, r, "deposit_collateral", started, loan, err)
}

func (s *Server) handleWithdrawCollateral(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req loanAmountRequest
	if !s.decode(w, r, &req) {
		return
	}
	borrower, err := parseAddress("borrower", req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	loan, err := s.engine.WithdrawCollateral(borrower, req.OfferID, amount)
	s.respond(w, r, "withdraw_collateral", started, loan, err)
}

func (s *Server) handleSystemUpdateLoanOffer(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req loanAmountRequest
	if !s.decode(w, r, &req) {
		return
	}
	borrower, err := parseAddress("borrower", req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	loan, err := s.engine.SystemUpdateLoanOffer(s.authority, borrower, req.OfferID, amount)
	s.respond(w, r, "system_update_loan_offer", started, loan, err)
}

func (s *Server) handleSystemRepayLoanOffer(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req loanAmountRequest
	if !s.decode(w, r, &req) {
		return
	}
	borrower, err := parseAddress("borrower", req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	err = s.engine.SystemRepayLoanOffer(s.authority, borrower, req.OfferID, amount)
	if err == nil {
		s.metrics.LoanClosed()
	}
	s.respond(w, r, "system_repay_loan_offer", started, map[string]string{"offerId": req.OfferID}, err)
}

func (s *Server) handleSystemTransferCollateral(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req loanAmountRequest
	if !s.decode(w, r, &req) {
		return
	}
	borrower, err := parseAddress("borrower", req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	loan, err := s.engine.SystemTransferCollateralRequestWithdraw(s.authority, borrower, req.OfferID, amount)
	s.respond(w, r, "system_transfer_collateral", started, loan, err)
}

func (s *Server) handleStartLiquidate(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req liquidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	borrower, err := parseAddress("borrower", req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	loan, err := s.engine.StartLiquidateContract(s.authority, borrower, req.OfferID, req.LiquidatingPrice, req.LiquidatingAt)
	s.respond(w, r, "start_liquidate", started, loan, err)
}

func (s *Server) handleFinishLiquidate(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req liquidatedRequest
	if !s.decode(w, r, &req) {
		return
	}
	borrower, err := parseAddress("borrower", req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	loanAmount, err := parseAmount("loanAmount", req.LoanAmount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	swapped, err := parseAmount("collateralSwappedAmount", req.CollateralSwappedAmount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	waiting, err := parseOptionalAmount("waitingInterest", req.WaitingInterest)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	loan, err := s.engine.SystemFinishLiquidateContract(s.authority, borrower, req.OfferID, loanAmount, swapped, waiting, req.LiquidatedPrice, req.LiquidatedTx)
	if err == nil {
		s.metrics.LoanClosed()
	}
	s.respond(w, r, "finish_liquidate", started, loan, err)
}
