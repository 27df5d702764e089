package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Well-known Solana mints. USDC doubles as the reserved cash token and SOL is
// never traded directly, so both sit on the default exclusion list.
const (
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	SOLMint  = "So11111111111111111111111111111111111111112"
)

// Environment variable names for secrets. These are loaded from .env (or the
// process environment) rather than the JSON config file, and can be updated at
// runtime through the key-management endpoints.
const (
	EnvLLMAPIKey        = "LLM_API_KEY"
	EnvBirdeyeAPIKey    = "BIRDEYE_API_KEY"
	EnvSolanaPrivateKey = "SOLANA_PRIVATE_KEY"
	EnvWalletAddress    = "WALLET_ADDRESS"
	EnvBinanceAPIKey    = "BINANCE_API_KEY"
	EnvBinanceSecretKey = "BINANCE_SECRET_KEY"
)

// RequiredKeys lists the secrets the has-keys endpoint reports on.
var RequiredKeys = []string{EnvLLMAPIKey, EnvBirdeyeAPIKey, EnvSolanaPrivateKey, EnvWalletAddress}

// LLMConfig model API configuration
type LLMConfig struct {
	Provider    string  `json:"provider"` // "groq", "deepseek", or "custom"
	Model       string  `json:"model,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"` // required for "custom"
	APIKey      string  `json:"-"`                  // from LLM_API_KEY, never the config file
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Config main configuration
type Config struct {
	// Execution backend: "paper" (default, no keys needed) or "binance"
	Exchange string `json:"exchange"`
	// Token identifier -> Binance pair, e.g. a SOL mint -> "SOLUSDC"
	SymbolOverrides map[string]string `json:"symbol_overrides,omitempty"`

	LLM LLMConfig `json:"llm"`

	// Portfolio sizing
	PortfolioSizeUSD float64 `json:"portfolio_size_usd"`
	MaxPositionPct   float64 `json:"max_position_pct"` // max % of portfolio per position
	CashBufferPct    float64 `json:"cash_buffer_pct"`  // min % kept in the cash token
	MaxOrderSizeUSD  float64 `json:"max_order_size_usd"`
	SlippageBps      int     `json:"slippage_bps"`

	// Token universe
	CashTokenAddress string   `json:"cash_token_address"` // defaults to the USDC mint
	ExcludedTokens   []string `json:"excluded_tokens"`    // never analyzed or traded
	DefaultTokens    []string `json:"default_tokens"`     // used when wallet holdings can't be resolved

	// Market data
	DaysBack      int    `json:"days_back"`
	DataTimeframe string `json:"data_timeframe"`
	SaveOHLCVData bool   `json:"save_ohlcv_data"` // cache candles under data/ instead of temp_data/

	// Scheduling
	SleepBetweenRunsMinutes float64 `json:"sleep_between_runs_minutes"`

	// Layout
	RunsDir     string `json:"runs_dir"`
	TempDataDir string `json:"temp_data_dir"`
	DataDir     string `json:"data_dir"`

	APIServerPort int `json:"api_server_port"`

	// Secrets, overlaid from the environment by ApplyEnv
	WalletAddress    string `json:"-"`
	BirdeyeAPIKey    string `json:"-"`
	BinanceAPIKey    string `json:"-"`
	BinanceSecretKey string `json:"-"`
}

// LoadConfig loads configuration from file and overlays secrets from the
// environment. A missing file yields the defaults, so the system can boot with
// nothing but a .env.
func LoadConfig(filename string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(filename)
	if err == nil {
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// ApplyEnv overlays secrets from the process environment.
func (c *Config) ApplyEnv() {
	c.LLM.APIKey = os.Getenv(EnvLLMAPIKey)
	c.BirdeyeAPIKey = os.Getenv(EnvBirdeyeAPIKey)
	c.WalletAddress = os.Getenv(EnvWalletAddress)
	c.BinanceAPIKey = os.Getenv(EnvBinanceAPIKey)
	c.BinanceSecretKey = os.Getenv(EnvBinanceSecretKey)
}

// Validate validates configuration validity and fills defaults.
func (c *Config) Validate() error {
	if c.Exchange == "" {
		c.Exchange = "paper"
	}
	if c.Exchange != "paper" && c.Exchange != "binance" {
		return fmt.Errorf("exchange must be 'paper' or 'binance', got '%s'", c.Exchange)
	}
	if c.Exchange == "binance" && (c.BinanceAPIKey == "" || c.BinanceSecretKey == "") {
		return fmt.Errorf("BINANCE_API_KEY and BINANCE_SECRET_KEY must be set when using Binance")
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "groq"
	}
	if c.LLM.Provider != "groq" && c.LLM.Provider != "deepseek" && c.LLM.Provider != "custom" {
		return fmt.Errorf("llm.provider must be 'groq', 'deepseek' or 'custom', got '%s'", c.LLM.Provider)
	}
	if c.LLM.Provider == "custom" && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url must be configured when using a custom provider")
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.7
	}

	if c.PortfolioSizeUSD <= 0 {
		c.PortfolioSizeUSD = 100
	}
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 100 {
		c.MaxPositionPct = 20
	}
	if c.CashBufferPct <= 0 || c.CashBufferPct > 100 {
		c.CashBufferPct = 30
	}
	if c.MaxOrderSizeUSD <= 0 {
		c.MaxOrderSizeUSD = 25
	}
	if c.SlippageBps <= 0 {
		c.SlippageBps = 199
	}

	if c.CashTokenAddress == "" {
		c.CashTokenAddress = USDCMint
	}
	if len(c.ExcludedTokens) == 0 {
		c.ExcludedTokens = []string{USDCMint, SOLMint}
	}

	if c.DaysBack <= 0 {
		c.DaysBack = 3
	}
	if c.DataTimeframe == "" {
		c.DataTimeframe = "15m"
	}

	if c.SleepBetweenRunsMinutes <= 0 {
		c.SleepBetweenRunsMinutes = 15
	}

	if c.RunsDir == "" {
		c.RunsDir = "runs"
	}
	if c.TempDataDir == "" {
		c.TempDataDir = "temp_data"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}

	if c.APIServerPort <= 0 {
		c.APIServerPort = 8000
	}

	// Wallet address is optional (the default token list covers paper mode),
	// but when present it must be a valid Solana public key.
	if c.WalletAddress != "" {
		if _, err := solana.PublicKeyFromBase58(c.WalletAddress); err != nil {
			return fmt.Errorf("WALLET_ADDRESS is not a valid Solana public key: %w", err)
		}
	}
	if _, err := solana.PublicKeyFromBase58(c.CashTokenAddress); err != nil {
		return fmt.Errorf("cash_token_address is not a valid Solana mint: %w", err)
	}

	return nil
}

// IsExcluded reports whether a token sits on the exclusion list.
func (c *Config) IsExcluded(token string) bool {
	for _, t := range c.ExcludedTokens {
		if t == token {
			return true
		}
	}
	return false
}

// SleepBetweenRuns returns the cooldown between trading cycles.
func (c *Config) SleepBetweenRuns() time.Duration {
	return time.Duration(c.SleepBetweenRunsMinutes * float64(time.Minute))
}
