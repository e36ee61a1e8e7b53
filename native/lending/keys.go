package lending

import (
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Derived account keys replace ledger-native address derivation: a fixed
// namespace tag plus kind, owning identity and caller-supplied identifier is
// hashed into a 32-byte key. Re-deriving the same inputs always yields the
// same key, so lookups are idempotent and a caller that does not own a
// record simply derives a key that has no value behind it.
var (
	namespaceSeed = []byte("xlend/v1")
	lendOfferSeed = []byte("lend-offer")
	loanOfferSeed = []byte("loan-offer")
)

func deriveKey(kind []byte, identity [20]byte, id string) [32]byte {
	trimmed := strings.TrimSpace(id)
	buf := make([]byte, 0, len(namespaceSeed)+len(kind)+len(identity)+len(trimmed)+3)
	buf = append(buf, namespaceSeed...)
	buf = append(buf, '/')
	buf = append(buf, kind...)
	buf = append(buf, '/')
	buf = append(buf, identity[:]...)
	buf = append(buf, '/')
	buf = append(buf, trimmed...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

// DeriveLendOfferKey returns the deterministic key for a lender's offer.
func DeriveLendOfferKey(lender [20]byte, offerID string) [32]byte {
	return deriveKey(lendOfferSeed, lender, offerID)
}

// DeriveLoanOfferKey returns the deterministic key for a borrower's loan.
func DeriveLoanOfferKey(borrower [20]byte, offerID string) [32]byte {
	return deriveKey(loanOfferSeed, borrower, offerID)
}
