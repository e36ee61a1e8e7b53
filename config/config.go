package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"xlend/crypto"
	"xlend/native/lending"
	"xlend/native/oracle"

	"github.com/BurntSushi/toml"
)

// Config is the top-level daemon configuration. Privileged identities are
// referenced by address and environment variable name only; no key material
// or token value ever lives in the file itself.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	NetworkName   string `toml:"NetworkName"`
	Environment   string `toml:"Environment"`

	// AuthorityAddress is the bech32 address of the settlement authority.
	// System operations are accepted only for this identity.
	AuthorityAddress string `toml:"AuthorityAddress"`
	// CollateralVaultAddress is the bech32 address of the custodial
	// account holding escrowed collateral and storage deposits.
	CollateralVaultAddress string `toml:"CollateralVaultAddress"`
	// AuthorityTokenEnv names the environment variable carrying the
	// bearer token that authenticates system RPC calls.
	AuthorityTokenEnv string `toml:"AuthorityTokenEnv"`
	// AuthorityKeystorePath points at an encrypted keystore for the
	// authority identity when the daemon signs outbound settlements.
	AuthorityKeystorePath string `toml:"AuthorityKeystorePath"`

	Lending lending.Config `toml:"lending"`
	Oracle  oracle.Config  `toml:"oracle"`
}

// Load reads the configuration from path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./xlend-data"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "xlend-local"
	}
	if strings.TrimSpace(c.AuthorityTokenEnv) == "" {
		c.AuthorityTokenEnv = "XLEND_AUTHORITY_TOKEN"
	}
	c.Lending = c.Lending.Normalise()
	c.Oracle = c.Oracle.Normalise()
}

// Validate checks the address fields decode to the expected prefix.
func (c *Config) Validate() error {
	if _, err := c.Authority(); err != nil {
		return err
	}
	if _, err := c.CollateralVault(); err != nil {
		return err
	}
	return nil
}

// Authority decodes the configured settlement authority address.
func (c *Config) Authority() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.AuthorityAddress))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("AuthorityAddress: %w", err)
	}
	return addr, nil
}

// CollateralVault decodes the configured custodial vault address.
func (c *Config) CollateralVault() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.CollateralVaultAddress))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("CollateralVaultAddress: %w", err)
	}
	return addr, nil
}

// AuthorityToken resolves the system RPC bearer token from the configured
// environment variable. An empty result disables the system endpoints.
func (c *Config) AuthorityToken() string {
	name := strings.TrimSpace(c.AuthorityTokenEnv)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

// createDefault writes a default configuration file. The authority and vault
// addresses are intentionally left empty: the operator must fill them in
// before the daemon will start.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
