package lending

import "math/big"

var basisPoints = big.NewInt(10_000)

const secondsPerYear = 365 * 24 * 60 * 60

// HealthRatio computes collateral value over loan value in the common quote
// currency: (collateralAmount × collateralPrice) / (principal × lendPrice).
// Prices are rational to avoid float drift; a zero denominator yields a nil
// ratio, which no threshold accepts.
func HealthRatio(collateralAmount, principal *big.Int, collateralPrice, lendPrice *big.Rat) *big.Rat {
	if collateralAmount == nil || principal == nil || collateralPrice == nil || lendPrice == nil {
		return nil
	}
	if principal.Sign() <= 0 || lendPrice.Sign() <= 0 {
		return nil
	}
	if collateralAmount.Sign() < 0 || collateralPrice.Sign() <= 0 {
		return nil
	}
	num := new(big.Rat).Mul(new(big.Rat).SetInt(collateralAmount), collateralPrice)
	den := new(big.Rat).Mul(new(big.Rat).SetInt(principal), lendPrice)
	return num.Quo(num, den)
}

// MeetsThreshold reports whether the ratio is at least thresholdBps/10000.
func MeetsThreshold(ratio *big.Rat, thresholdBps uint64) bool {
	if ratio == nil {
		return false
	}
	threshold := new(big.Rat).SetFrac(new(big.Int).SetUint64(thresholdBps), basisPoints)
	return ratio.Cmp(threshold) >= 0
}

// InterestAmount computes simple pro-rata interest on the principal:
// principal × rateBps × durationSeconds / (10000 × secondsPerYear),
// truncated toward zero.
func InterestAmount(principal *big.Int, rateBps, durationSeconds uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || rateBps == 0 || durationSeconds == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(principal, new(big.Int).SetUint64(rateBps))
	num.Mul(num, new(big.Int).SetUint64(durationSeconds))
	den := new(big.Int).Mul(basisPoints, big.NewInt(secondsPerYear))
	return num.Quo(num, den)
}

// FeeAmount computes base × feeBps / 10000, truncated toward zero.
func FeeAmount(base *big.Int, feeBps uint64) *big.Int {
	if base == nil || base.Sign() <= 0 || feeBps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(base, new(big.Int).SetUint64(feeBps))
	return fee.Quo(fee, basisPoints)
}

// RepayAmount is what the borrower owes at settlement: principal, plus
// interest accrued over the full loan duration at the matched offer's rate,
// plus the borrower fee on the principal. Fees are applied after interest,
// each with floor division.
func RepayAmount(principal *big.Int, interestBps, durationSeconds, borrowerFeeBps uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	total := new(big.Int).Set(principal)
	total.Add(total, InterestAmount(principal, interestBps, durationSeconds))
	total.Add(total, FeeAmount(principal, borrowerFeeBps))
	return total
}

// DisburseAmount is what the borrower receives at funding: the tier
// principal minus the borrower fee.
func DisburseAmount(principal *big.Int, borrowerFeeBps uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(principal, FeeAmount(principal, borrowerFeeBps))
}

// LenderPayout is the lender's side of a settled repayment: principal plus
// interest minus the lender fee, which is charged on the interest only.
func LenderPayout(principal *big.Int, interestBps, durationSeconds, lenderFeeBps uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	interest := InterestAmount(principal, interestBps, durationSeconds)
	payout := new(big.Int).Add(principal, interest)
	return payout.Sub(payout, FeeAmount(interest, lenderFeeBps))
}

// WaitingInterest credits a canceled lend offer for the time its principal
// sat escrowed: amount × rateBps × openSeconds / (10000 × secondsPerYear),
// capped by the authority-supplied ceiling when one is given.
func WaitingInterest(amount *big.Int, rateBps uint64, openSeconds int64, cap *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || rateBps == 0 || openSeconds <= 0 {
		return big.NewInt(0)
	}
	credit := InterestAmount(amount, rateBps, uint64(openSeconds))
	if cap != nil && credit.Cmp(cap) > 0 {
		credit = new(big.Int).Set(cap)
	}
	return credit
}
