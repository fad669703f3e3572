package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/vitos/token_staking/internal/domain"
	"github.com/vitos/token_staking/internal/units"
	"gopkg.in/yaml.v3"
)

const (
	LedgerMemory = "memory"
	LedgerERC20  = "erc20"
)

// Environment overrides, usually kept in .env next to the binary.
const (
	EnvJWTSecret  = "STAKING_JWT_SECRET"
	EnvCustodyKey = "STAKING_CUSTODY_KEY"
	EnvRPCURL     = "STAKING_RPC_URL"
)

type Config struct {
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Staking StakingConfig `yaml:"staking"`
	Monitor struct {
		SolvencyInterval time.Duration `yaml:"solvency_interval"`
	} `yaml:"monitor"`
}

type LedgerConfig struct {
	Mode           string           `yaml:"mode"`
	RPCURL         string           `yaml:"rpc_url"`
	TokenAddress   string           `yaml:"token_address"`
	CustodyAddress string           `yaml:"custody_address"`
	CustodyKey     string           `yaml:"custody_key"`
	Genesis        []GenesisAccount `yaml:"genesis"`
}

// GenesisAccount funds an address on the memory ledger at startup.
type GenesisAccount struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
}

type StakingConfig struct {
	Owner                     string        `yaml:"owner"`
	Decimals                  int32         `yaml:"decimals"`
	MinimumStake              string        `yaml:"minimum_stake"`
	AnnualRewardRateBps       uint64        `yaml:"annual_reward_rate_bps"`
	LockPeriod                time.Duration `yaml:"lock_period"`
	EarlyWithdrawalPenaltyBps uint64        `yaml:"early_withdrawal_penalty_bps"`
	Tiers                     []TierConfig  `yaml:"tiers"`
}

type TierConfig struct {
	Threshold     string `yaml:"threshold"`
	RewardRateBps uint64 `yaml:"reward_rate_bps"`
}

// Default returns the stock economic parameters: 10% base, 30 day lock, 5%
// penalty and bronze/silver/gold tiers at 1k/5k/10k tokens.
func Default() *Config {
	cfg := &Config{}
	cfg.Logging.Level = "info"
	cfg.Server.Port = 8080
	cfg.Storage.Path = "staking.db"
	cfg.Ledger.Mode = LedgerMemory
	cfg.Monitor.SolvencyInterval = time.Minute
	cfg.Staking = StakingConfig{
		Decimals:                  18,
		MinimumStake:              "10",
		AnnualRewardRateBps:       1000,
		LockPeriod:                30 * 24 * time.Hour,
		EarlyWithdrawalPenaltyBps: 500,
		Tiers: []TierConfig{
			{Threshold: "1000", RewardRateBps: 200},
			{Threshold: "5000", RewardRateBps: 500},
			{Threshold: "10000", RewardRateBps: 1000},
		},
	}
	return cfg
}

// Load reads path on top of Default, then applies .env files and environment
// variables. Missing env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvJWTSecret); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv(EnvCustodyKey); v != "" {
		c.Ledger.CustodyKey = v
	}
	if v := os.Getenv(EnvRPCURL); v != "" {
		c.Ledger.RPCURL = v
	}
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (or %s) is required", EnvJWTSecret)
	}

	switch c.Ledger.Mode {
	case LedgerMemory:
		if !common.IsHexAddress(c.Ledger.CustodyAddress) {
			return fmt.Errorf("ledger.custody_address %q is not an address", c.Ledger.CustodyAddress)
		}
		for _, g := range c.Ledger.Genesis {
			if !common.IsHexAddress(g.Address) {
				return fmt.Errorf("ledger.genesis address %q is not an address", g.Address)
			}
			if _, err := units.Parse(g.Balance, c.Staking.Decimals); err != nil {
				return fmt.Errorf("ledger.genesis balance for %s: %w", g.Address, err)
			}
		}
	case LedgerERC20:
		if c.Ledger.RPCURL == "" {
			return fmt.Errorf("ledger.rpc_url (or %s) is required in erc20 mode", EnvRPCURL)
		}
		if !common.IsHexAddress(c.Ledger.TokenAddress) {
			return fmt.Errorf("ledger.token_address %q is not an address", c.Ledger.TokenAddress)
		}
		if c.Ledger.CustodyKey == "" {
			return fmt.Errorf("ledger.custody_key (or %s) is required in erc20 mode", EnvCustodyKey)
		}
	default:
		return fmt.Errorf("unknown ledger.mode %q", c.Ledger.Mode)
	}

	if !common.IsHexAddress(c.Staking.Owner) {
		return fmt.Errorf("staking.owner %q is not an address", c.Staking.Owner)
	}
	if c.Staking.EarlyWithdrawalPenaltyBps > domain.BasisPoints {
		return fmt.Errorf("%w: staking.early_withdrawal_penalty_bps %d", domain.ErrInvalidPenalty, c.Staking.EarlyWithdrawalPenaltyBps)
	}
	if c.Staking.LockPeriod < 0 {
		return fmt.Errorf("staking.lock_period must not be negative")
	}
	if len(c.Staking.Tiers) != domain.TierCount {
		return fmt.Errorf("staking.tiers: want %d tiers, got %d", domain.TierCount, len(c.Staking.Tiers))
	}
	// Zero turns the solvency worker off.
	if c.Monitor.SolvencyInterval < 0 {
		return fmt.Errorf("monitor.solvency_interval must not be negative")
	}
	return nil
}

// ToDomain converts the staking section into the seed used on first start.
func (c *Config) ToDomain() (*domain.Config, error) {
	s := c.Staking
	minimum, err := units.Parse(s.MinimumStake, s.Decimals)
	if err != nil {
		return nil, fmt.Errorf("staking.minimum_stake: %w", err)
	}

	cfg := &domain.Config{
		Owner:                  common.HexToAddress(s.Owner),
		MinimumStakeAmount:     minimum,
		AnnualRewardRate:       s.AnnualRewardRateBps,
		LockPeriod:             uint64(s.LockPeriod / time.Second),
		EarlyWithdrawalPenalty: s.EarlyWithdrawalPenaltyBps,
	}
	for i, tier := range s.Tiers {
		if i >= domain.TierCount {
			break
		}
		if cfg.TierThresholds[i], err = units.Parse(tier.Threshold, s.Decimals); err != nil {
			return nil, fmt.Errorf("staking.tiers[%d].threshold: %w", i, err)
		}
		cfg.TierRewardRates[i] = tier.RewardRateBps
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
