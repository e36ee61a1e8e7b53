package lending

import "math/big"

// Config captures the operator-tuned risk parameters for the lending module.
// Health thresholds are configuration, not transition logic: the engine
// reads whatever the operator set after Normalise applied the defaults.
type Config struct {
	// MinHealthBps gates loan origination and collateral withdrawal,
	// expressed in basis points (12000 = health ratio 1.2).
	MinHealthBps uint64 `toml:"MinHealthBps"`
	// LiquidationHealthBps is the threshold below which the settlement
	// authority may begin liquidation.
	LiquidationHealthBps uint64 `toml:"LiquidationHealthBps"`
	// MaxPriceAgeSeconds bounds how old an oracle quote may be before
	// fund-moving operations refuse to act on it.
	MaxPriceAgeSeconds int64 `toml:"MaxPriceAgeSeconds"`
	// StorageDepositWei is debited when a tier/offer/loan account is
	// created and refunded when the account is closed.
	StorageDepositWei *big.Int `toml:"StorageDepositWei"`
	// DepositAsset denominates the storage deposit.
	DepositAsset string `toml:"DepositAsset"`
}

// Normalise applies defaults and returns a copy safe to hand to the engine.
func (c Config) Normalise() Config {
	cfg := c
	if cfg.MinHealthBps == 0 {
		cfg.MinHealthBps = 12_000
	}
	if cfg.LiquidationHealthBps == 0 {
		cfg.LiquidationHealthBps = 11_000
	}
	if cfg.MaxPriceAgeSeconds <= 0 {
		cfg.MaxPriceAgeSeconds = 120
	}
	if cfg.StorageDepositWei == nil {
		cfg.StorageDepositWei = big.NewInt(0)
	} else {
		cfg.StorageDepositWei = new(big.Int).Set(cfg.StorageDepositWei)
	}
	if cfg.DepositAsset == "" {
		cfg.DepositAsset = "XL"
	}
	return cfg
}
