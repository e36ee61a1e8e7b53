package types

import "math/big"

// Account holds the fungible balances for a single ledger participant. The
// lending module is multi-asset, so balances are keyed by the canonical asset
// symbol rather than carried as dedicated fields.
type Account struct {
	Nonce    uint64              `json:"nonce"`
	Balances map[string]*big.Int `json:"balances"`
}

// BalanceOf returns the balance held for the provided asset symbol. A missing
// entry reads as zero; the returned value is the stored pointer, so callers
// that mutate it must go through Credit/Debit instead.
func (a *Account) BalanceOf(asset string) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	if bal, ok := a.Balances[asset]; ok && bal != nil {
		return bal
	}
	return big.NewInt(0)
}

// Credit adds amount to the asset balance, allocating the balance map on
// first use.
func (a *Account) Credit(asset string, amount *big.Int) {
	if a == nil || amount == nil {
		return
	}
	if a.Balances == nil {
		a.Balances = make(map[string]*big.Int)
	}
	a.Balances[asset] = new(big.Int).Add(a.BalanceOf(asset), amount)
}

// Debit subtracts amount from the asset balance. The caller is responsible
// for checking sufficiency first; Debit never produces a negative balance.
func (a *Account) Debit(asset string, amount *big.Int) {
	if a == nil || amount == nil {
		return
	}
	next := new(big.Int).Sub(a.BalanceOf(asset), amount)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	if a.Balances == nil {
		a.Balances = make(map[string]*big.Int)
	}
	a.Balances[asset] = next
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Nonce: a.Nonce}
	if a.Balances != nil {
		clone.Balances = make(map[string]*big.Int, len(a.Balances))
		for asset, bal := range a.Balances {
			if bal != nil {
				clone.Balances[asset] = new(big.Int).Set(bal)
			} else {
				clone.Balances[asset] = big.NewInt(0)
			}
		}
	}
	return clone
}
