package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"xlend/crypto"
	"xlend/native/lending"
	"xlend/native/oracle"
	"xlend/storage"
)

const testToken = "test-authority-token"

type rpcEnv struct {
	server *httptest.Server
	store  *lending.Store
	prices *oracle.ManualOracle

	authority crypto.Address
	vault     crypto.Address
	operator  crypto.Address
	lender    crypto.Address
	borrower  crypto.Address
}

func newRPCEnv(t *testing.T) *rpcEnv {
	t.Helper()
	env := &rpcEnv{
		store:     lending.NewStore(storage.NewMemDB()),
		prices:    oracle.NewManualOracle(),
		authority: newAddress(t),
		vault:     newAddress(t),
		operator:  newAddress(t),
		lender:    newAddress(t),
		borrower:  newAddress(t),
	}
	engine := lending.NewEngine(env.authority.Fixed(), env.vault.Fixed(), lending.Config{})
	engine.SetState(env.store)
	engine.SetOracle(env.prices)

	if err := env.prices.SetDecimal("SOL/USD", "150", time.Now()); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if err := env.prices.SetDecimal("USDC/USD", "1", time.Now()); err != nil {
		t.Fatalf("set price: %v", err)
	}

	server := NewServer(engine, env.authority.Fixed(), testToken, nil)
	env.server = httptest.NewServer(server.Router())
	t.Cleanup(env.server.Close)
	return env
}

func newAddress(t *testing.T) crypto.Address {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key.PubKey().Address()
}

func (env *rpcEnv) fund(t *testing.T, addr crypto.Address, asset string, amount int64) {
	t.Helper()
	acc, err := env.store.GetAccount(addr.Fixed())
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	acc.Credit(asset, big.NewInt(amount))
	if err := env.store.PutAccount(addr.Fixed(), acc); err != nil {
		t.Fatalf("put account: %v", err)
	}
}

func (env *rpcEnv) post(t *testing.T, path, token string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, env.server.URL+path, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp
}

func (env *rpcEnv) postOK(t *testing.T, path, token string, body interface{}, out interface{}) {
	t.Helper()
	resp := env.post(t, path, token, body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var failure errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		t.Fatalf("post %s: status %d: %s", path, resp.StatusCode, failure.Error)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func (env *rpcEnv) initTier(t *testing.T) {
	t.Helper()
	env.postOK(t, "/v1/tiers", "", tierRequest{
		Caller:                env.operator.String(),
		TierID:                "tier-100",
		PrincipalAmount:       "100",
		DurationSeconds:       14 * 24 * 3600,
		LenderFeeBps:          100,
		BorrowerFeeBps:        200,
		LendAsset:             "USDC",
		CollateralAsset:       "SOL",
		LendPriceFeed:         "USDC/USD",
		CollateralPriceFeed:   "SOL/USD",
		SettlementDestination: env.vault.String(),
	}, nil)
}

func TestServerLendOfferFlow(t *testing.T) {
	env := newRPCEnv(t)
	env.initTier(t)
	env.fund(t, env.lender, "USDC", 100)

	var offer lending.LendOffer
	env.postOK(t, "/v1/lend-offers", "", lendOfferRequest{
		Lender:      env.lender.String(),
		OfferID:     "offer-1",
		TierID:      "tier-100",
		InterestBps: 500,
	}, &offer)
	if offer.Status != lending.LendOfferCreated {
		t.Fatalf("offer status: %s", offer.Status)
	}
	if offer.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("offer amount: %s", offer.Amount)
	}
}

func TestServerDuplicateTierConflicts(t *testing.T) {
	env := newRPCEnv(t)
	env.initTier(t)

	resp := env.post(t, "/v1/tiers", "", tierRequest{
		Caller:                env.operator.String(),
		TierID:                "tier-100",
		PrincipalAmount:       "100",
		DurationSeconds:       3600,
		LendAsset:             "USDC",
		CollateralAsset:       "SOL",
		LendPriceFeed:         "USDC/USD",
		CollateralPriceFeed:   "SOL/USD",
		SettlementDestination: env.vault.String(),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate tier, got %d", resp.StatusCode)
	}
}

func TestServerRejectsBadAddress(t *testing.T) {
	env := newRPCEnv(t)
	resp := env.post(t, "/v1/lend-offers", "", lendOfferRequest{
		Lender:      "not-an-address",
		OfferID:     "offer-1",
		TierID:      "tier-100",
		InterestBps: 500,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad address, got %d", resp.StatusCode)
	}
}

func TestServerSystemRoutesRequireToken(t *testing.T) {
	env := newRPCEnv(t)
	env.initTier(t)

	body := loanAmountRequest{Borrower: env.borrower.String(), OfferID: "loan-1", Amount: "98"}

	resp := env.post(t, "/v1/system/loans/fund", "", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = env.post(t, "/v1/system/loans/fund", "wrong-token", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", resp.StatusCode)
	}

	// Correct token reaches the engine; the unknown loan maps to 404.
	resp = env.post(t, "/v1/system/loans/fund", testToken, body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown loan, got %d", resp.StatusCode)
	}
}

func TestServerLoanLifecycleOverHTTP(t *testing.T) {
	env := newRPCEnv(t)
	env.initTier(t)
	env.fund(t, env.lender, "USDC", 100)
	env.fund(t, env.borrower, "SOL", 10)

	env.postOK(t, "/v1/lend-offers", "", lendOfferRequest{
		Lender:      env.lender.String(),
		OfferID:     "offer-1",
		TierID:      "tier-100",
		InterestBps: 500,
	}, nil)

	var loan lending.LoanOffer
	env.postOK(t, "/v1/loans", "", loanRequest{
		Borrower:         env.borrower.String(),
		OfferID:          "loan-1",
		Lender:           env.lender.String(),
		LendOfferID:      "offer-1",
		TierID:           "tier-100",
		CollateralAmount: "2",
	}, &loan)
	if loan.Status != lending.LoanCreated {
		t.Fatalf("loan status: %s", loan.Status)
	}

	env.postOK(t, "/v1/system/loans/fund", testToken, loanAmountRequest{
		Borrower: env.borrower.String(),
		OfferID:  "loan-1",
		Amount:   "98",
	}, &loan)
	if loan.Status != lending.LoanFundTransferred {
		t.Fatalf("loan status after funding: %s", loan.Status)
	}

	env.fund(t, env.borrower, "USDC", 4)
	var repaid amountResponse
	env.postOK(t, "/v1/loans/repay", "", loanActionRequest{
		Borrower: env.borrower.String(),
		OfferID:  "loan-1",
	}, &repaid)
	if repaid.Amount != "102" {
		t.Fatalf("repaid: %s", repaid.Amount)
	}

	env.postOK(t, "/v1/system/loans/close", testToken, loanAmountRequest{
		Borrower: env.borrower.String(),
		OfferID:  "loan-1",
		Amount:   "2",
	}, nil)
}

func TestServerLiquidationSettlesOverHTTP(t *testing.T) {
	env := newRPCEnv(t)
	env.initTier(t)
	env.fund(t, env.lender, "USDC", 100)
	env.fund(t, env.borrower, "SOL", 10)

	env.postOK(t, "/v1/lend-offers", "", lendOfferRequest{
		Lender:      env.lender.String(),
		OfferID:     "offer-1",
		TierID:      "tier-100",
		InterestBps: 500,
	}, nil)
	env.postOK(t, "/v1/loans", "", loanRequest{
		Borrower:         env.borrower.String(),
		OfferID:          "loan-1",
		Lender:           env.lender.String(),
		LendOfferID:      "offer-1",
		TierID:           "tier-100",
		CollateralAmount: "2",
	}, nil)
	env.postOK(t, "/v1/system/loans/fund", testToken, loanAmountRequest{
		Borrower: env.borrower.String(),
		OfferID:  "loan-1",
		Amount:   "98",
	}, nil)

	if err := env.prices.SetDecimal("SOL/USD", "50", time.Now()); err != nil {
		t.Fatalf("set price: %v", err)
	}
	var loan lending.LoanOffer
	env.postOK(t, "/v1/system/loans/liquidate", testToken, liquidateRequest{
		Borrower:         env.borrower.String(),
		OfferID:          "loan-1",
		LiquidatingPrice: "50.00",
		LiquidatingAt:    time.Now().Unix(),
	}, &loan)
	if loan.Status != lending.LoanLiquidating {
		t.Fatalf("loan status after start: %s", loan.Status)
	}

	// Swap proceeds land at the settlement destination before settling.
	env.fund(t, env.vault, "USDC", 106)
	env.postOK(t, "/v1/system/loans/liquidate/settle", testToken, liquidatedRequest{
		Borrower:                env.borrower.String(),
		OfferID:                 "loan-1",
		LoanAmount:              "100",
		CollateralSwappedAmount: "110",
		LiquidatedPrice:         "55.00",
		LiquidatedTx:            "0xswap",
	}, &loan)
	if loan.Status != lending.LoanLiquidated {
		t.Fatalf("loan status after settle: %s", loan.Status)
	}

	lenderAcc, err := env.store.GetAccount(env.lender.Fixed())
	if err != nil {
		t.Fatalf("get lender: %v", err)
	}
	if lenderAcc.BalanceOf("USDC").Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("lender balance: %s", lenderAcc.BalanceOf("USDC"))
	}
	borrowerAcc, err := env.store.GetAccount(env.borrower.Fixed())
	if err != nil {
		t.Fatalf("get borrower: %v", err)
	}
	if borrowerAcc.BalanceOf("USDC").Cmp(big.NewInt(106)) != 0 {
		t.Fatalf("borrower balance: %s", borrowerAcc.BalanceOf("USDC"))
	}
}

func TestServerHealthz(t *testing.T) {
	env := newRPCEnv(t)
	resp, err := env.server.Client().Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}
}
