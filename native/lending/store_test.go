package lending

import (
	"math/big"
	"testing"

	"xlend/storage"
)

func TestStoreTierRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	missing, err := store.GetTier("tier-100")
	if err != nil {
		t.Fatalf("get missing tier: %v", err)
	}
	if missing != nil {
		t.Fatal("missing tier must read as nil")
	}

	tier := &Tier{
		TierID:          "tier-100",
		PrincipalAmount: big.NewInt(100),
		DurationSeconds: 3600,
		LendAsset:       "USDC",
		CollateralAsset: "SOL",
		Owner:           operatorAddr,
		StorageDeposit:  big.NewInt(5),
		OpenOffers:      2,
	}
	if err := store.PutTier(tier); err != nil {
		t.Fatalf("put tier: %v", err)
	}
	loaded, err := store.GetTier("tier-100")
	if err != nil {
		t.Fatalf("get tier: %v", err)
	}
	if loaded == nil || loaded.PrincipalAmount.Cmp(tier.PrincipalAmount) != 0 || loaded.OpenOffers != 2 {
		t.Fatalf("tier round trip: %+v", loaded)
	}
	if loaded.Owner != operatorAddr {
		t.Fatal("owner must survive the round trip")
	}

	if err := store.DeleteTier("tier-100"); err != nil {
		t.Fatalf("delete tier: %v", err)
	}
	if gone, err := store.GetTier("tier-100"); err != nil || gone != nil {
		t.Fatalf("deleted tier must read as nil: %v %v", gone, err)
	}
}

func TestStoreRejectsInvalidRecords(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	if err := store.PutTier(nil); err == nil {
		t.Fatal("nil tier must be rejected")
	}
	if err := store.PutTier(&Tier{}); err == nil {
		t.Fatal("tier without id must be rejected")
	}
	if err := store.PutLendOffer(DeriveLendOfferKey(lenderAddr, "x"), nil); err == nil {
		t.Fatal("nil lend offer must be rejected")
	}
	if err := store.PutLoanOffer(DeriveLoanOfferKey(borrowerAddr, "x"), nil); err == nil {
		t.Fatal("nil loan offer must be rejected")
	}
	if err := store.PutAccount(lenderAddr, nil); err == nil {
		t.Fatal("nil account must be rejected")
	}
}

func TestStoreLoanOfferPreservesPendingWithdrawal(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	key := DeriveLoanOfferKey(borrowerAddr, "loan-1")

	loan := &LoanOffer{
		Borrower:         borrowerAddr,
		Lender:           lenderAddr,
		OfferID:          "loan-1",
		TierID:           "tier-100",
		BorrowAmount:     big.NewInt(100),
		CollateralAmount: big.NewInt(2),
		Status:           LoanFundTransferred,
	}
	if err := store.PutLoanOffer(key, loan); err != nil {
		t.Fatalf("put loan: %v", err)
	}
	loaded, err := store.GetLoanOffer(key)
	if err != nil || loaded == nil {
		t.Fatalf("get loan: %v", err)
	}
	if loaded.RequestWithdrawAmount != nil {
		t.Fatal("absent withdrawal request must stay nil")
	}

	loan.RequestWithdrawAmount = big.NewInt(1)
	if err := store.PutLoanOffer(key, loan); err != nil {
		t.Fatalf("put loan: %v", err)
	}
	loaded, err = store.GetLoanOffer(key)
	if err != nil || loaded == nil {
		t.Fatalf("get loan: %v", err)
	}
	if loaded.RequestWithdrawAmount == nil || loaded.RequestWithdrawAmount.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("pending withdrawal lost: %v", loaded.RequestWithdrawAmount)
	}
}

func TestStoreAccountDefaultsEmpty(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	acc, err := store.GetAccount(lenderAddr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc == nil || acc.BalanceOf("USDC").Sign() != 0 {
		t.Fatalf("missing account must read as empty: %+v", acc)
	}

	acc.Credit("USDC", big.NewInt(75))
	if err := store.PutAccount(lenderAddr, acc); err != nil {
		t.Fatalf("put account: %v", err)
	}
	loaded, err := store.GetAccount(lenderAddr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if loaded.BalanceOf("USDC").Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("balance round trip: %s", loaded.BalanceOf("USDC"))
	}
}
