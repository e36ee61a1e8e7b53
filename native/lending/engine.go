package lending

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"xlend/core/events"
	"xlend/core/types"
	"xlend/native/oracle"
)

type engineState interface {
	GetTier(tierID string) (*Tier, error)
	PutTier(tier *Tier) error
	DeleteTier(tierID string) error
	GetLendOffer(key [32]byte) (*LendOffer, error)
	PutLendOffer(key [32]byte, offer *LendOffer) error
	DeleteLendOffer(key [32]byte) error
	GetLoanOffer(key [32]byte) (*LoanOffer, error)
	PutLoanOffer(key [32]byte, loan *LoanOffer) error
	DeleteLoanOffer(key [32]byte) error
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// Engine orchestrates every state transition of the lending protocol: the
// tier registry, lend offers, loan origination, the loan lifecycle and the
// liquidation path. All fund movement routes through the account balances of
// the external persistence layer; the engine itself never holds funds.
type Engine struct {
	state           engineState
	emitter         events.Emitter
	oracle          oracle.PriceOracle
	authority       [20]byte
	collateralVault [20]byte
	cfg             Config
	nowFn           func() int64
}

// NewEngine constructs a lending engine. authority is the settlement
// authority identity required for every system operation; collateralVault is
// the custodial address holding escrowed collateral.
func NewEngine(authority, collateralVault [20]byte, cfg Config) *Engine {
	return &Engine{
		authority:       authority,
		collateralVault: collateralVault,
		cfg:             cfg.Normalise(),
		emitter:         events.NoopEmitter{},
		nowFn:           func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracle configures the price oracle consulted for health checks.
func (e *Engine) SetOracle(o oracle.PriceOracle) {
	if e == nil {
		return
	}
	e.oracle = o
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) requireAuthority(caller [20]byte) error {
	if caller != e.authority {
		return ErrNotSettlementAuthority
	}
	return nil
}

// --- TierRegistry ---

// InitTier registers a new lending tier. The operator pays the storage
// deposit for the tier record; it is returned on CloseTier.
func (e *Engine) InitTier(owner [20]byte, spec TierSpec) (*Tier, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sanitized, err := spec.Sanitize()
	if err != nil {
		return nil, err
	}
	st := newStateBatch(e.state)
	existing, err := st.GetTier(sanitized.TierID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrTierAlreadyExists
	}

	deposit := new(big.Int).Set(e.cfg.StorageDepositWei)
	if deposit.Sign() > 0 {
		if err := e.transfer(st, owner, e.collateralVault, e.cfg.DepositAsset, deposit, ErrInsufficientLenderBalance); err != nil {
			return nil, err
		}
	}

	tier := &Tier{
		TierID:                sanitized.TierID,
		PrincipalAmount:       sanitized.PrincipalAmount,
		DurationSeconds:       sanitized.DurationSeconds,
		LenderFeeBps:          sanitized.LenderFeeBps,
		BorrowerFeeBps:        sanitized.BorrowerFeeBps,
		LendAsset:             sanitized.LendAsset,
		CollateralAsset:       sanitized.CollateralAsset,
		LendPriceFeed:         sanitized.LendPriceFeed,
		CollateralPriceFeed:   sanitized.CollateralPriceFeed,
		Owner:                 owner,
		SettlementDestination: sanitized.SettlementDestination,
		StorageDeposit:        deposit,
	}
	if err := st.PutTier(tier); err != nil {
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}
	e.emit(TierInitialized{Tier: tier.Clone()})
	return tier.Clone(), nil
}

// EditTier atomically overwrites the mutable tier fields. Only the tier
// owner may edit, and the tier id itself never changes.
func (e *Engine) EditTier(owner [20]byte, spec TierSpec) (*Tier, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sanitized, err := spec.Sanitize()
	if err != nil {
		return nil, err
	}
	st := newStateBatch(e.state)
	tier, err := e.loadTier(st, sanitized.TierID)
	if err != nil {
		return nil, err
	}
	if tier.Owner != owner {
		return nil, ErrNotTierOwner
	}

	tier.PrincipalAmount = sanitized.PrincipalAmount
	tier.DurationSeconds = sanitized.DurationSeconds
	tier.LenderFeeBps = sanitized.LenderFeeBps
	tier.BorrowerFeeBps = sanitized.BorrowerFeeBps
	tier.LendAsset = sanitized.LendAsset
	tier.CollateralAsset = sanitized.CollateralAsset
	tier.LendPriceFeed = sanitized.LendPriceFeed
	tier.CollateralPriceFeed = sanitized.CollateralPriceFeed
	tier.SettlementDestination = sanitized.SettlementDestination

	if err := st.PutTier(tier); err != nil {
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}
	e.emit(TierEdited{Tier: tier.Clone()})
	return tier.Clone(), nil
}

// CloseTier removes a tier and refunds its storage deposit. Closing is
// rejected while any open lend offer or loan still references the tier.
func (e *Engine) CloseTier(owner [20]byte, tierID string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	st := newStateBatch(e.state)
	tier, err := e.loadTier(st, tierID)
	if err != nil {
		return err
	}
	if tier.Owner != owner {
		return ErrNotTierOwner
	}
	if tier.Referenced() {
		return ErrTierReferenced
	}

	if tier.StorageDeposit != nil && tier.StorageDeposit.Sign() > 0 {
		if err := e.transfer(st, e.collateralVault, owner, e.cfg.DepositAsset, tier.StorageDeposit, ErrInsufficientLiquidity); err != nil {
			return err
		}
	}
	if err := st.DeleteTier(tier.TierID); err != nil {
		return err
	}
	if err := st.Commit(); err != nil {
		return err
	}
	e.emit(TierClosed{TierID: tier.TierID, Owner: owner})
	return nil
}

// --- shared helpers ---

func (e *Engine) loadTier(st engineState, tierID string) (*Tier, error) {
	trimmed := strings.TrimSpace(tierID)
	if trimmed == "" {
		return nil, ErrTierNotInitialized
	}
	tier, err := st.GetTier(trimmed)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, ErrTierNotInitialized
	}
	if tier.PrincipalAmount == nil {
		tier.PrincipalAmount = big.NewInt(0)
	}
	if tier.StorageDeposit == nil {
		tier.StorageDeposit = big.NewInt(0)
	}
	return tier, nil
}

func (e *Engine) loadAccount(st engineState, addr [20]byte) (*types.Account, error) {
	acc, err := st.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	return acc, nil
}

// transfer moves amount of asset between two ledger accounts within an
// operation's staged state, returning shortErr when the source balance
// cannot cover it. Nothing reaches the backing state until the caller
// commits, so a later check failing cannot strand half a movement.
func (e *Engine) transfer(st engineState, from, to [20]byte, asset string, amount *big.Int, shortErr error) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromAcc, err := e.loadAccount(st, from)
	if err != nil {
		return err
	}
	if fromAcc.BalanceOf(asset).Cmp(amount) < 0 {
		return shortErr
	}
	// A self-transfer is a funded no-op, not a double credit.
	if from == to {
		return nil
	}
	toAcc, err := e.loadAccount(st, to)
	if err != nil {
		return err
	}
	fromAcc.Debit(asset, amount)
	toAcc.Credit(asset, amount)
	if err := st.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return st.PutAccount(to, toAcc)
}

// price fetches a quote for the feed and enforces the freshness window. The
// staleness check runs against the engine clock, not the oracle's, so a
// feed that stops updating fails closed.
func (e *Engine) price(feedID string) (*big.Rat, error) {
	if e.oracle == nil {
		return nil, fmt.Errorf("%w: oracle not configured", ErrPriceFeedFailed)
	}
	quote, err := e.oracle.GetPrice(feedID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceFeedFailed, err)
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive price for %s", ErrPriceFeedFailed, feedID)
	}
	age := e.now() - quote.Timestamp.Unix()
	if e.cfg.MaxPriceAgeSeconds > 0 && age > e.cfg.MaxPriceAgeSeconds {
		return nil, ErrStalePriceFeed
	}
	return quote.Price, nil
}

// tierHealth computes the live health ratio for a collateral amount against
// the tier's principal, reading both feeds at call time.
func (e *Engine) tierHealth(tier *Tier, collateralAmount *big.Int) (*big.Rat, error) {
	collateralPrice, err := e.price(tier.CollateralPriceFeed)
	if err != nil {
		return nil, err
	}
	lendPrice, err := e.price(tier.LendPriceFeed)
	if err != nil {
		return nil, err
	}
	return HealthRatio(collateralAmount, tier.PrincipalAmount, collateralPrice, lendPrice), nil
}
