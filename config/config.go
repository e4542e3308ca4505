package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/michaelpento.lv/dexarb/dex/sushiswap"
	"github.com/michaelpento.lv/dexarb/dex/uniswap"
	"github.com/michaelpento.lv/dexarb/types"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

// DefaultConfigName is looked up in the home directory when no file is given
const DefaultConfigName = ".arbbot.yaml"

// NativeToken is accepted in place of a token address for the chain's native asset
const NativeToken = "native"

type Config struct {
	// Chain and network settings
	ChainID     uint64 `json:"chain_id" yaml:"chain_id"`
	RPCEndpoint string `json:"rpc_endpoint" yaml:"rpc_endpoint"`

	// Only ever read from the environment
	PrivateKey string `json:"-" yaml:"-"`

	// Polling and trade sizing
	PollInterval  time.Duration `json:"poll_interval" yaml:"poll_interval"`
	TradeSize     string        `json:"trade_size" yaml:"trade_size"`
	EstimatedCost string        `json:"estimated_cost" yaml:"estimated_cost"`

	// Execution bounds
	SlippageBps     int64         `json:"slippage_bps" yaml:"slippage_bps"`
	DeadlineWindow  time.Duration `json:"deadline_window" yaml:"deadline_window"`
	GasLimit        uint64        `json:"gas_limit" yaml:"gas_limit"`
	MaxGasPriceGwei string        `json:"max_gas_price_gwei" yaml:"max_gas_price_gwei"`
	NativeReserve   string        `json:"native_reserve" yaml:"native_reserve"`
	BootstrapAmount string        `json:"bootstrap_amount" yaml:"bootstrap_amount"`

	// Feature flags
	DryRun    bool `json:"dry_run" yaml:"dry_run"`
	Preflight bool `json:"preflight" yaml:"preflight"`
	Debug     bool `json:"debug" yaml:"debug"`

	// Markets
	ExchangeX     ExchangeConfig `json:"exchange_x" yaml:"exchange_x"`
	ExchangeY     ExchangeConfig `json:"exchange_y" yaml:"exchange_y"`
	Pair          PairConfig     `json:"pair" yaml:"pair"`
	WrappedNative string         `json:"wrapped_native" yaml:"wrapped_native"`

	RPCRateLimit RateLimitConfig `json:"rpc_rate_limit" yaml:"rpc_rate_limit"`
	Metrics      MetricsConfig   `json:"metrics" yaml:"metrics"`
}

// ExchangeConfig describes a Uniswap V2 compatible deployment
type ExchangeConfig struct {
	Name         string `json:"name" yaml:"name"`
	Router       string `json:"router" yaml:"router"`
	Factory      string `json:"factory" yaml:"factory"`
	InitCodeHash string `json:"init_code_hash" yaml:"init_code_hash"`
}

type TokenConfig struct {
	Address  string `json:"address" yaml:"address"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// PairConfig is the watched pair. Input is held between cycles.
type PairConfig struct {
	Input        TokenConfig `json:"input" yaml:"input"`
	Intermediate TokenConfig `json:"intermediate" yaml:"intermediate"`
}

// RateLimitConfig throttles RPC reads. Zero requests per second disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size"`
}

type MetricsConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

func (c *Config) Validate() error {
	var errors []string

	// Chain and network settings
	if c.ChainID == 0 {
		errors = append(errors, "chain_id must be specified")
	}
	if c.RPCEndpoint == "" {
		errors = append(errors, "rpc_endpoint must be specified")
	}
	if c.PrivateKey == "" {
		errors = append(errors, EnvPrivateKey+" must be set")
	}

	// Polling and trade sizing
	if c.PollInterval <= 0 {
		errors = append(errors, "poll_interval must be positive")
	}
	if size, err := ParseUnits(c.TradeSize, c.Pair.Input.Decimals); err != nil {
		errors = append(errors, fmt.Sprintf("trade_size: %v", err))
	} else if size.Sign() <= 0 {
		errors = append(errors, "trade_size must be positive")
	}
	if c.EstimatedCost != "" {
		if _, err := ParseBaseUnits(c.EstimatedCost); err != nil {
			errors = append(errors, fmt.Sprintf("estimated_cost: %v", err))
		}
	}

	// Execution bounds
	if c.SlippageBps < 0 || c.SlippageBps >= 10000 {
		errors = append(errors, "slippage_bps must be in [0, 10000)")
	}
	if c.DeadlineWindow <= 0 {
		errors = append(errors, "deadline_window must be positive")
	}
	if c.GasLimit == 0 {
		errors = append(errors, "gas_limit must be positive")
	}
	for _, amount := range []struct {
		name     string
		value    string
		decimals uint8
	}{
		{"max_gas_price_gwei", c.MaxGasPriceGwei, 9},
		{"native_reserve", c.NativeReserve, 18},
		{"bootstrap_amount", c.BootstrapAmount, 18},
	} {
		if amount.value == "" {
			continue
		}
		if _, err := ParseUnits(amount.value, amount.decimals); err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", amount.name, err))
		}
	}

	// Markets
	if err := c.ExchangeX.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("exchange_x: %v", err))
	}
	if err := c.ExchangeY.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("exchange_y: %v", err))
	}
	if c.ExchangeX.Router != "" && strings.EqualFold(c.ExchangeX.Router, c.ExchangeY.Router) {
		errors = append(errors, "exchange_x and exchange_y must use different routers")
	}
	if err := c.Pair.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("pair: %v", err))
	}
	if !common.IsHexAddress(c.WrappedNative) {
		errors = append(errors, "wrapped_native must be an address")
	} else if err := c.Pair.ValidateRoute(common.HexToAddress(c.WrappedNative)); err != nil {
		errors = append(errors, fmt.Sprintf("pair: %v", err))
	}

	if err := c.RPCRateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("RPC rate limit error: %v", err))
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errors = append(errors, "metrics.listen_addr must be specified when metrics are enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (e *ExchangeConfig) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("name must be specified")
	}
	if !common.IsHexAddress(e.Router) {
		return fmt.Errorf("router must be an address")
	}
	if !common.IsHexAddress(e.Factory) {
		return fmt.Errorf("factory must be an address")
	}
	if len(common.FromHex(e.InitCodeHash)) != common.HashLength {
		return fmt.Errorf("init_code_hash must be 32 bytes")
	}
	return nil
}

func (p *PairConfig) Validate() error {
	for _, tok := range []TokenConfig{p.Input, p.Intermediate} {
		if tok.Address != NativeToken && !common.IsHexAddress(tok.Address) {
			return fmt.Errorf("token %q must be an address or %q", tok.Symbol, NativeToken)
		}
		if tok.Symbol == "" {
			return fmt.Errorf("token %s needs a symbol", tok.Address)
		}
	}
	if strings.EqualFold(p.Input.Address, p.Intermediate.Address) {
		return fmt.Errorf("input and intermediate tokens must differ")
	}
	return nil
}

// ValidateRoute rejects pairs whose two sides reach the router as the same
// address, such as native against the wrapped native token
func (p *PairConfig) ValidateRoute(wrappedNative common.Address) error {
	input := p.Input.Token().RouteAddress(wrappedNative)
	intermediate := p.Intermediate.Token().RouteAddress(wrappedNative)
	if input == intermediate {
		return fmt.Errorf("input and intermediate tokens both route as %s", input.Hex())
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative")
	}
	if r.RequestsPerSecond > 0 && r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	return nil
}

// Deployment converts the exchange settings for the V2 binding
func (e ExchangeConfig) Deployment() uniswap.Deployment {
	return uniswap.Deployment{
		Name:         e.Name,
		Router:       common.HexToAddress(e.Router),
		Factory:      common.HexToAddress(e.Factory),
		InitCodeHash: common.HexToHash(e.InitCodeHash),
	}
}

// Token converts the token settings
func (t TokenConfig) Token() types.Token {
	address := types.NativeAsset
	if t.Address != NativeToken {
		address = common.HexToAddress(t.Address)
	}
	return types.Token{Address: address, Symbol: t.Symbol, Decimals: t.Decimals}
}

// TradeSizeUnits returns the nominal quote size in input-token base units
func (c *Config) TradeSizeUnits() (*big.Int, error) {
	return ParseUnits(c.TradeSize, c.Pair.Input.Decimals)
}

// EstimatedCostUnits returns the cost subtracted from both profit scores
func (c *Config) EstimatedCostUnits() (*big.Int, error) {
	if c.EstimatedCost == "" {
		return big.NewInt(0), nil
	}
	return ParseBaseUnits(c.EstimatedCost)
}

// MaxGasPriceWei returns the fee cap ceiling, nil when unset
func (c *Config) MaxGasPriceWei() (*big.Int, error) {
	if c.MaxGasPriceGwei == "" {
		return nil, nil
	}
	return ParseUnits(c.MaxGasPriceGwei, 9)
}

// NativeReserveWei returns the native balance kept back for gas
func (c *Config) NativeReserveWei() (*big.Int, error) {
	if c.NativeReserve == "" {
		return big.NewInt(0), nil
	}
	return ParseUnits(c.NativeReserve, 18)
}

// BootstrapAmountWei returns the native amount swapped by the bootstrap command
func (c *Config) BootstrapAmountWei() (*big.Int, error) {
	return ParseUnits(c.BootstrapAmount, 18)
}

// LoadConfig reads a YAML or JSON file, chosen by extension. With no path it
// tries ~/.arbbot.yaml and falls back to the defaults. Values missing from the
// file keep their defaults.
func LoadConfig(cfgFile string) (*Config, error) {
	config := DefaultConfig()

	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, DefaultConfigName)
		if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
			return config, nil
		}
	}

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(cfgFile)) {
	case ".json":
		err = json.Unmarshal(data, config)
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(data, config)
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s", cfgFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return config, nil
}

// DefaultConfig trades DAI against MKR between Uniswap V2 and Sushiswap on a
// local mainnet fork
func DefaultConfig() *Config {
	return &Config{
		ChainID:         1,
		RPCEndpoint:     "http://localhost:8545",
		PollInterval:    time.Second,
		TradeSize:       "1",
		EstimatedCost:   "0",
		SlippageBps:     50,
		DeadlineWindow:  20 * time.Minute,
		GasLimit:        300000,
		MaxGasPriceGwei: "500",
		NativeReserve:   "0.05",
		BootstrapAmount: "1",
		Preflight:       true,
		ExchangeX:       exchangeConfig(uniswap.MainnetDeployment),
		ExchangeY:       exchangeConfig(sushiswap.MainnetDeployment),
		Pair: PairConfig{
			Input: TokenConfig{
				Address:  "0x6B175474E89094C44Da98b954EedeAC495271d0F",
				Symbol:   "DAI",
				Decimals: 18,
			},
			Intermediate: TokenConfig{
				Address:  "0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2",
				Symbol:   "MKR",
				Decimals: 18,
			},
		},
		WrappedNative: uniswap.WETHAddress.Hex(),
		RPCRateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         100,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9090",
		},
	}
}

func exchangeConfig(d uniswap.Deployment) ExchangeConfig {
	return ExchangeConfig{
		Name:         d.Name,
		Router:       d.Router.Hex(),
		Factory:      d.Factory.Hex(),
		InitCodeHash: d.InitCodeHash.Hex(),
	}
}
