package lending

import (
	"errors"
	"math/big"
	"testing"
)

func TestCreateLendOfferEscrowsPrincipal(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.initTier(t)
	env.fund(t, lenderAddr, "USDC", 150)

	offer, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 500)
	if err != nil {
		t.Fatalf("create lend offer: %v", err)
	}
	if offer.Status != LendOfferCreated {
		t.Fatalf("status: %s", offer.Status)
	}
	if offer.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("amount: %s", offer.Amount)
	}
	env.requireBalance(t, lenderAddr, "USDC", 50)
	env.requireBalance(t, poolAddr, "USDC", 100)

	tier, err := env.store.GetTier(testTierID)
	if err != nil || tier == nil {
		t.Fatalf("load tier: %v", err)
	}
	if tier.OpenOffers != 1 {
		t.Fatalf("open offers: %d", tier.OpenOffers)
	}
}

func TestCreateLendOfferRejectsZeroInterest(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.initTier(t)
	env.fund(t, lenderAddr, "USDC", 150)

	if _, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 0); !errors.Is(err, ErrInvalidInterest) {
		t.Fatalf("expected ErrInvalidInterest, got %v", err)
	}
	// Failed creation must leave no trace: the same rejection repeats and
	// no funds moved.
	if _, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 0); !errors.Is(err, ErrInvalidInterest) {
		t.Fatalf("expected ErrInvalidInterest on retry, got %v", err)
	}
	env.requireBalance(t, lenderAddr, "USDC", 150)
	env.requireBalance(t, poolAddr, "USDC", 0)
}

func TestCreateLendOfferRejectsInsufficientBalance(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.initTier(t)
	env.fund(t, lenderAddr, "USDC", 99)

	if _, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 500); !errors.Is(err, ErrInsufficientLenderBalance) {
		t.Fatalf("expected ErrInsufficientLenderBalance, got %v", err)
	}
	env.requireBalance(t, lenderAddr, "USDC", 99)
}

func TestCreateLendOfferRejectsDuplicateID(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.initTier(t)
	env.fund(t, lenderAddr, "USDC", 200)

	if _, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 500); err != nil {
		t.Fatalf("create lend offer: %v", err)
	}
	if _, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 600); !errors.Is(err, ErrLendOfferNotAvailable) {
		t.Fatalf("expected ErrLendOfferNotAvailable, got %v", err)
	}
}

func TestEditLendOfferOnlyWhileCreated(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.initTier(t)
	env.fund(t, lenderAddr, "USDC", 100)

	if _, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 500); err != nil {
		t.Fatalf("create lend offer: %v", err)
	}
	edited, err := env.engine.EditLendOffer(lenderAddr, "offer-1", 750)
	if err != nil {
		t.Fatalf("edit lend offer: %v", err)
	}
	if edited.InterestBps != 750 {
		t.Fatalf("interest: %d", edited.InterestBps)
	}

	if _, err := env.engine.CancelLendOffer(lenderAddr, "offer-1"); err != nil {
		t.Fatalf("cancel lend offer: %v", err)
	}
	if _, err := env.engine.EditLendOffer(lenderAddr, "offer-1", 900); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestEditLendOfferUnknownLender(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.initTier(t)
	env.fund(t, lenderAddr, "USDC", 100)

	if _, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 500); err != nil {
		t.Fatalf("create lend offer: %v", err)
	}
	// A different lender derives a different key and never reaches the
	// record.
	if _, err := env.engine.EditLendOffer(borrowerAddr, "offer-1", 900); !errors.Is(err, ErrLendOfferNotFound) {
		t.Fatalf("expected ErrLendOfferNotFound, got %v", err)
	}
}

func TestSystemCancelLendOfferReturnsPrincipalWithWaitingInterest(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.initTier(t)
	env.fund(t, lenderAddr, "USDC", 100)
	env.fund(t, poolAddr, "USDC", 5)

	if _, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 500); err != nil {
		t.Fatalf("create lend offer: %v", err)
	}
	if _, err := env.engine.CancelLendOffer(lenderAddr, "offer-1"); err != nil {
		t.Fatalf("cancel lend offer: %v", err)
	}

	// One year escrowed at 5%: credit of 5 on a principal of 100.
	env.advance(365 * 24 * 3600)
	env.setPrice(t, testCollatFeed, "150")
	env.setPrice(t, testLendFeed, "1")

	returned, err := env.engine.SystemCancelLendOffer(authorityAddr, lenderAddr, "offer-1", big.NewInt(100), big.NewInt(1000))
	if err != nil {
		t.Fatalf("system cancel: %v", err)
	}
	if returned.Cmp(big.NewInt(105)) != 0 {
		t.Fatalf("returned: %s", returned)
	}
	env.requireBalance(t, lenderAddr, "USDC", 105)
	env.requireBalance(t, poolAddr, "USDC", 0)

	if _, err := env.engine.CancelLendOffer(lenderAddr, "offer-1"); !errors.Is(err, ErrLendOfferNotFound) {
		t.Fatalf("expected offer removed, got %v", err)
	}
	tier, err := env.store.GetTier(testTierID)
	if err != nil || tier == nil {
		t.Fatalf("load tier: %v", err)
	}
	if tier.OpenOffers != 0 {
		t.Fatalf("open offers: %d", tier.OpenOffers)
	}
}

func TestSystemCancelCapsWaitingInterest(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.initTier(t)
	env.fund(t, lenderAddr, "USDC", 100)
	env.fund(t, poolAddr, "USDC", 2)

	if _, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 500); err != nil {
		t.Fatalf("create lend offer: %v", err)
	}
	if _, err := env.engine.CancelLendOffer(lenderAddr, "offer-1"); err != nil {
		t.Fatalf("cancel lend offer: %v", err)
	}
	env.advance(365 * 24 * 3600)

	returned, err := env.engine.SystemCancelLendOffer(authorityAddr, lenderAddr, "offer-1", big.NewInt(100), big.NewInt(2))
	if err != nil {
		t.Fatalf("system cancel: %v", err)
	}
	if returned.Cmp(big.NewInt(102)) != 0 {
		t.Fatalf("returned: %s", returned)
	}
}

func TestSystemCancelGuards(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.initTier(t)
	env.fund(t, lenderAddr, "USDC", 100)

	if _, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 500); err != nil {
		t.Fatalf("create lend offer: %v", err)
	}

	// Not the settlement authority.
	if _, err := env.engine.SystemCancelLendOffer(lenderAddr, lenderAddr, "offer-1", big.NewInt(100), nil); !errors.Is(err, ErrNotSettlementAuthority) {
		t.Fatalf("expected ErrNotSettlementAuthority, got %v", err)
	}
	// Not in Canceling yet.
	if _, err := env.engine.SystemCancelLendOffer(authorityAddr, lenderAddr, "offer-1", big.NewInt(100), nil); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	if _, err := env.engine.CancelLendOffer(lenderAddr, "offer-1"); err != nil {
		t.Fatalf("cancel lend offer: %v", err)
	}
	// Amount must match the escrowed principal exactly.
	if _, err := env.engine.SystemCancelLendOffer(authorityAddr, lenderAddr, "offer-1", big.NewInt(99), nil); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	env.requireBalance(t, lenderAddr, "USDC", 0)
}

func TestLendOfferStorageDepositRoundTrip(t *testing.T) {
	env := newTestEnv(t, Config{StorageDepositWei: big.NewInt(3), DepositAsset: "XL"})
	env.fund(t, operatorAddr, "XL", 3)
	env.initTier(t)
	env.fund(t, lenderAddr, "USDC", 100)
	env.fund(t, lenderAddr, "XL", 3)

	if _, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 500); err != nil {
		t.Fatalf("create lend offer: %v", err)
	}
	env.requireBalance(t, lenderAddr, "XL", 0)
	env.requireBalance(t, vaultAddr, "XL", 6)

	if _, err := env.engine.CancelLendOffer(lenderAddr, "offer-1"); err != nil {
		t.Fatalf("cancel lend offer: %v", err)
	}
	if _, err := env.engine.SystemCancelLendOffer(authorityAddr, lenderAddr, "offer-1", big.NewInt(100), nil); err != nil {
		t.Fatalf("system cancel: %v", err)
	}
	env.requireBalance(t, lenderAddr, "XL", 3)
	env.requireBalance(t, vaultAddr, "XL", 3)
	env.requireBalance(t, lenderAddr, "USDC", 100)
}

func TestCreateLendOfferKeepsLedgerOnDepositShortfall(t *testing.T) {
	env := newTestEnv(t, Config{StorageDepositWei: big.NewInt(3)})
	env.fund(t, operatorAddr, "XL", 3)
	env.initTier(t)

	// The lender can cover the principal but not the storage deposit: the
	// principal escrow must not survive the failed deposit debit.
	env.fund(t, lenderAddr, "USDC", 100)
	if _, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 500); !errors.Is(err, ErrInsufficientLenderBalance) {
		t.Fatalf("expected ErrInsufficientLenderBalance, got %v", err)
	}
	env.requireBalance(t, lenderAddr, "USDC", 100)
	env.requireBalance(t, poolAddr, "USDC", 0)

	offer, err := env.store.GetLendOffer(DeriveLendOfferKey(lenderAddr, "offer-1"))
	if err != nil {
		t.Fatalf("load lend offer: %v", err)
	}
	if offer != nil {
		t.Fatalf("no offer record may persist after a failed create")
	}
	tier, err := env.store.GetTier(testTierID)
	if err != nil || tier == nil {
		t.Fatalf("load tier: %v", err)
	}
	if tier.OpenOffers != 0 {
		t.Fatalf("open offers: %d", tier.OpenOffers)
	}
}

func TestSystemCancelKeepsLedgerOnPoolShortfall(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.initTier(t)
	env.fund(t, lenderAddr, "USDC", 100)
	if _, err := env.engine.CreateLendOffer(lenderAddr, "offer-1", testTierID, 500); err != nil {
		t.Fatalf("create lend offer: %v", err)
	}
	if _, err := env.engine.CancelLendOffer(lenderAddr, "offer-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// After a year the waiting-interest credit is 5, but the pool holds
	// only the escrowed 100. The refund must fail whole: the offer stays
	// Canceling and no balance moves.
	env.advance(365 * 24 * 3600)
	if _, err := env.engine.SystemCancelLendOffer(authorityAddr, lenderAddr, "offer-1", big.NewInt(100), nil); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	env.requireBalance(t, lenderAddr, "USDC", 0)
	env.requireBalance(t, poolAddr, "USDC", 100)

	offer, err := env.store.GetLendOffer(DeriveLendOfferKey(lenderAddr, "offer-1"))
	if err != nil || offer == nil {
		t.Fatalf("load lend offer: %v", err)
	}
	if offer.Status != LendOfferCanceling {
		t.Fatalf("status: %s", offer.Status)
	}
}
