package lending

import "errors"

var (
	errNilState = errors.New("lending engine: state not configured")
	errNilSpec  = errors.New("lending engine: nil input")
)

// Validation errors. Rejected before any state mutation; the caller can
// retry with corrected input.
var (
	ErrInvalidInterest  = errors.New("lending engine: interest rate must be positive")
	ErrInvalidAmount    = errors.New("lending engine: amount must be positive")
	ErrInvalidMintAsset = errors.New("lending engine: asset does not match tier configuration")
	ErrAmountMismatch   = errors.New("lending engine: amount does not match record")
)

// Authorization errors. Rejected before any state is mutated; privileged
// operations additionally re-validate state at execution time.
var (
	ErrNotTierOwner           = errors.New("lending engine: caller does not own tier")
	ErrNotSettlementAuthority = errors.New("lending engine: caller is not the settlement authority")
)

// State errors. The operation was attempted from a status that does not
// permit it.
var (
	ErrTierAlreadyExists      = errors.New("lending engine: tier already initialized")
	ErrTierNotInitialized     = errors.New("lending engine: tier not initialized")
	ErrTierReferenced         = errors.New("lending engine: tier still referenced by open offers or loans")
	ErrLendOfferNotFound      = errors.New("lending engine: lend offer not found for derived key")
	ErrLendOfferNotAvailable  = errors.New("lending engine: lend offer not available")
	ErrLoanOfferNotFound      = errors.New("lending engine: loan offer not found for derived key")
	ErrInvalidStateTransition = errors.New("lending engine: operation not permitted in current status")
	ErrLoanOfferExpired       = errors.New("lending engine: loan offer expired")
	ErrNoWithdrawRequested    = errors.New("lending engine: no collateral withdrawal requested")
	ErrWithdrawAlreadyPending = errors.New("lending engine: collateral withdrawal already pending")
	ErrWithdrawMismatch       = errors.New("lending engine: withdrawal amount does not match pending request")
)

// Resource errors. Rejected before any transfer is attempted.
var (
	ErrInsufficientLenderBalance         = errors.New("lending engine: insufficient lender balance")
	ErrInsufficientBorrowerBalance       = errors.New("lending engine: insufficient borrower balance")
	ErrInsufficientLiquidity             = errors.New("lending engine: insufficient custodial liquidity")
	ErrInsufficientCollateral            = errors.New("lending engine: health ratio below minimum threshold")
	ErrWithdrawalWouldUnderCollateralize = errors.New("lending engine: withdrawal would leave loan under-collateralized")
	ErrHealthRatioStillSufficient        = errors.New("lending engine: health ratio has not breached liquidation threshold")
)

// Oracle errors. The operation has no side effect.
var (
	ErrStalePriceFeed  = errors.New("lending engine: price feed is stale")
	ErrPriceFeedFailed = errors.New("lending engine: price feed unavailable")
)
