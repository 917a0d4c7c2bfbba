package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// ChainFamily selects the transaction sender implementation for a chain.
type ChainFamily string

const (
	FamilyCosmos    ChainFamily = "cosmos"
	FamilyEthermint ChainFamily = "ethermint"
)

// Endpoint lists the RPC endpoints for a chain. Cosmos chains require the
// tendermint RPC endpoint; ethermint chains require the EVM JSON-RPC one.
type Endpoint struct {
	RPC    string `yaml:"rpc"`
	EvmRPC string `yaml:"evm_rpc"`
}

// HDPath describes the BIP-44 derivation path of the funding wallet.
type HDPath struct {
	CoinType uint32 `yaml:"coin_type"`
	Account  uint32 `yaml:"account"`
	Index    uint32 `yaml:"index"`
}

// TxParams captures the payout transaction parameters for a chain.
type TxParams struct {
	Amount    string `yaml:"amount"`
	Denom     string `yaml:"denom"`
	FeeAmount string `yaml:"fee_amount"`
	FeeDenom  string `yaml:"fee_denom"`
	Gas       uint64 `yaml:"gas"`
	Memo      string `yaml:"memo"`
}

// Limits holds the trailing-window admission thresholds for a chain.
type Limits struct {
	Address int `yaml:"address"`
	IP      int `yaml:"ip"`
}

// Chain configures one funded blockchain.
type Chain struct {
	Name         string      `yaml:"name"`
	ChainID      string      `yaml:"chain_id"`
	Family       ChainFamily `yaml:"family"`
	Prefix       string      `yaml:"prefix"`
	Endpoint     Endpoint    `yaml:"endpoint"`
	Mnemonic     string      `yaml:"mnemonic"`
	MnemonicEnv  string      `yaml:"mnemonic_env"`
	MnemonicFile string      `yaml:"mnemonic_file"`
	HDPath       HDPath      `yaml:"hd_path"`
	Tx           TxParams    `yaml:"tx"`
	Limits       Limits      `yaml:"limits"`
}

// HTTPLimit configures the per-client burst limiter in front of the durable
// faucet limits.
type HTTPLimit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Env        string `yaml:"env"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Config captures the runtime configuration for faucetd.
type Config struct {
	ListenAddress string    `yaml:"listen"`
	StorePath     string    `yaml:"store"`
	Cooldown      Duration  `yaml:"cooldown"`
	SendTimeout   Duration  `yaml:"send_timeout"`
	Window        Duration  `yaml:"window"`
	HTTPLimit     HTTPLimit `yaml:"http_limit"`
	Log           LogConfig `yaml:"log"`
	Chains        []Chain   `yaml:"chains"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	for i := range cfg.Chains {
		if err := cfg.Chains[i].normalise(); err != nil {
			return cfg, fmt.Errorf("chain %s: %w", cfg.Chains[i].Name, err)
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Chain returns the configuration for the named chain.
func (c Config) Chain(name string) (Chain, bool) {
	for _, chain := range c.Chains {
		if chain.Name == name {
			return chain, true
		}
	}
	return Chain{}, false
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8088"
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "faucet.db"
	}
	if cfg.Cooldown.Duration == 0 {
		cfg.Cooldown.Duration = 5 * time.Second
	}
	if cfg.SendTimeout.Duration == 0 {
		cfg.SendTimeout.Duration = 30 * time.Second
	}
	if cfg.Window.Duration == 0 {
		cfg.Window.Duration = 24 * time.Hour
	}
	if cfg.HTTPLimit.RequestsPerMinute == 0 {
		cfg.HTTPLimit.RequestsPerMinute = 60
	}
	if cfg.HTTPLimit.Burst == 0 {
		cfg.HTTPLimit.Burst = 10
	}
	for i := range cfg.Chains {
		chain := &cfg.Chains[i]
		if chain.Limits.Address == 0 {
			chain.Limits.Address = 1
		}
		if chain.Limits.IP == 0 {
			chain.Limits.IP = 10
		}
		if chain.Tx.Gas == 0 {
			chain.Tx.Gas = 200000
		}
		if chain.HDPath.CoinType == 0 {
			if chain.Family == FamilyEthermint {
				chain.HDPath.CoinType = 60
			} else {
				chain.HDPath.CoinType = 118
			}
		}
	}
}

func validateConfig(cfg Config) error {
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	cosmosPrefix := ""
	for _, chain := range cfg.Chains {
		name := strings.TrimSpace(chain.Name)
		if name == "" {
			return fmt.Errorf("chain name must be configured")
		}
		switch chain.Family {
		case FamilyCosmos:
			if strings.TrimSpace(chain.Endpoint.RPC) == "" {
				return fmt.Errorf("chain %s: rpc endpoint must be configured", name)
			}
			if strings.TrimSpace(chain.ChainID) == "" {
				return fmt.Errorf("chain %s: chain_id must be configured", name)
			}
			// The SDK keeps bech32 prefixes in a process-wide singleton, so
			// all cosmos chains served by one faucet must share a prefix.
			if cosmosPrefix != "" && cosmosPrefix != chain.Prefix {
				return fmt.Errorf("chain %s: cosmos chains must share bech32 prefix %q", name, cosmosPrefix)
			}
			cosmosPrefix = chain.Prefix
		case FamilyEthermint:
			if strings.TrimSpace(chain.Endpoint.EvmRPC) == "" {
				return fmt.Errorf("chain %s: evm_rpc endpoint must be configured", name)
			}
		default:
			return fmt.Errorf("chain %s: unknown family %q", name, chain.Family)
		}
		if strings.TrimSpace(chain.Prefix) == "" {
			return fmt.Errorf("chain %s: address prefix must be configured", name)
		}
		if strings.TrimSpace(chain.Mnemonic) == "" {
			return fmt.Errorf("chain %s: funding mnemonic must be configured", name)
		}
		if strings.TrimSpace(chain.Tx.Amount) == "" {
			return fmt.Errorf("chain %s: payout amount must be configured", name)
		}
		if strings.TrimSpace(chain.Tx.Denom) == "" {
			return fmt.Errorf("chain %s: payout denom must be configured", name)
		}
		if chain.Limits.Address < 0 || chain.Limits.IP < 0 {
			return fmt.Errorf("chain %s: limits must not be negative", name)
		}
	}
	return nil
}

func (c *Chain) normalise() error {
	c.Mnemonic = strings.TrimSpace(c.Mnemonic)
	c.MnemonicEnv = strings.TrimSpace(c.MnemonicEnv)
	c.MnemonicFile = strings.TrimSpace(c.MnemonicFile)
	if c.Mnemonic != "" {
		return nil
	}
	switch {
	case c.MnemonicEnv != "":
		value := strings.TrimSpace(os.Getenv(c.MnemonicEnv))
		if value == "" {
			return fmt.Errorf("mnemonic_env %s is empty", c.MnemonicEnv)
		}
		c.Mnemonic = value
	case c.MnemonicFile != "":
		contents, err := os.ReadFile(c.MnemonicFile)
		if err != nil {
			return fmt.Errorf("read mnemonic_file: %w", err)
		}
		c.Mnemonic = strings.TrimSpace(string(contents))
	}
	return nil
}
