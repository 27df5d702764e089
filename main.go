package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Coffee-fun/auto-trading/agent"
	"github.com/Coffee-fun/auto-trading/api"
	"github.com/Coffee-fun/auto-trading/config"
	"github.com/Coffee-fun/auto-trading/logger"
	"github.com/Coffee-fun/auto-trading/manager"
	"github.com/Coffee-fun/auto-trading/market"
	"github.com/Coffee-fun/auto-trading/mcp"
	"github.com/Coffee-fun/auto-trading/trader"
)

func main() {
	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║       ☕ Coffee AI Automated Trading Agent                 ║")
	fmt.Println("║          LLM-driven recommendation & allocation            ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Println()

	// Load .env if present (silently ignore if missing)
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			log.Printf("ℹ️  No .env file found, continuing with OS environment variables")
		} else {
			log.Printf("⚠️  Failed to load .env file: %v", err)
		}
	}

	configFile := "config.json"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	log.Printf("📋 Loading configuration file: %s", configFile)
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	// Override API server port with the host's PORT environment variable if set
	if hostPort := os.Getenv("PORT"); hostPort != "" {
		if portNum, err := strconv.Atoi(hostPort); err == nil {
			cfg.APIServerPort = portNum
			log.Printf("✓ Using PORT from environment: %d", portNum)
		}
	}

	log.Printf("✓ Configuration loaded: %s exchange, $%.0f portfolio, %d tracked tokens",
		cfg.Exchange, cfg.PortfolioSizeUSD, len(cfg.DefaultTokens))
	fmt.Println()

	llm := buildLLMClient(cfg)
	collector := market.NewCollector(cfg.BirdeyeAPIKey, cfg.DaysBack, cfg.DataTimeframe, cfg.TempDataDir)
	trading := buildTrader(cfg)

	agents := manager.New(cfg.RunsDir, func(runID string) (*agent.TradingAgent, error) {
		archive, err := logger.NewCycleLogger(cfg.RunsDir, runID)
		if err != nil {
			log.Printf("⚠️ Cycle archive unavailable for run %s: %v", runID, err)
			return agent.New(runID, cfg, llm, collector, trading, nil)
		}
		return agent.New(runID, cfg, llm, collector, trading, archive)
	})

	fmt.Println()
	fmt.Printf("🤖 LLM provider: %s (%s)\n", cfg.LLM.Provider, llm.Model)
	fmt.Printf("💰 Portfolio: $%.2f, max position %.0f%%, cash buffer %.0f%%\n",
		cfg.PortfolioSizeUSD, cfg.MaxPositionPct, cfg.CashBufferPct)
	fmt.Println()
	fmt.Println("⚠️  Risk Warning: AI automated trading has risks, recommend testing with small funds!")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	apiServer := api.NewServer(agents, cfg.APIServerPort)
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("❌ API server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	fmt.Println()
	fmt.Println()
	log.Println("📛 Received shutdown signal, stopping active run...")
	if active := agents.Active(); active != nil {
		active.Stop()
	}

	fmt.Println()
	fmt.Println("👋 Thank you for using the Coffee AI Trading Agent!")
}

func buildLLMClient(cfg *config.Config) *mcp.Client {
	client := mcp.New()
	switch mcp.Provider(cfg.LLM.Provider) {
	case mcp.ProviderDeepSeek:
		client.SetDeepSeekAPIKey(cfg.LLM.APIKey)
	case mcp.ProviderCustom:
		client.SetCustomAPI(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	default:
		client.SetGroqAPIKey(cfg.LLM.APIKey, cfg.LLM.Model)
	}
	if cfg.LLM.MaxTokens > 0 {
		client.MaxTokens = cfg.LLM.MaxTokens
	}
	if cfg.LLM.Temperature > 0 {
		client.Temperature = cfg.LLM.Temperature
	}
	return client
}

func buildTrader(cfg *config.Config) trader.Trader {
	if cfg.Exchange == "binance" && cfg.BinanceAPIKey != "" {
		log.Printf("✓ Binance spot execution enabled")
		return trader.NewSpotTrader(cfg.BinanceAPIKey, cfg.BinanceSecretKey, cfg.SymbolOverrides, cfg.MaxOrderSizeUSD)
	}
	log.Printf("✓ Paper trading mode (no real orders)")
	return trader.NewPaperTrader(cfg.PortfolioSizeUSD)
}
