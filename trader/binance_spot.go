package trader

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// quantityPrecision is a conservative lot precision for market sells; Binance
// rejects quantities with more decimals than the symbol's step size allows.
const quantityPrecision = 5

// SpotTrader executes through Binance spot markets. Tokens are mapped to
// trading pairs via the overrides table, falling back to <TOKEN>USDC.
type SpotTrader struct {
	client          *binance.Client
	symbolOverrides map[string]string
	maxOrderSizeUSD float64
}

// NewSpotTrader creates a Binance spot trader. symbolOverrides maps token
// identifiers (e.g. Solana mints) to Binance pairs like "SOLUSDC".
func NewSpotTrader(apiKey, secretKey string, symbolOverrides map[string]string, maxOrderSizeUSD float64) *SpotTrader {
	if maxOrderSizeUSD <= 0 {
		maxOrderSizeUSD = 25
	}
	return &SpotTrader{
		client:          binance.NewClient(apiKey, secretKey),
		symbolOverrides: symbolOverrides,
		maxOrderSizeUSD: maxOrderSizeUSD,
	}
}

// symbolFor resolves the trading pair and its base asset for a token.
func (t *SpotTrader) symbolFor(token string) (symbol, baseAsset string) {
	if mapped, ok := t.symbolOverrides[token]; ok {
		return mapped, strings.TrimSuffix(mapped, "USDC")
	}
	upper := strings.ToUpper(token)
	return upper + "USDC", upper
}

func (t *SpotTrader) price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := t.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch price for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("no price returned for %s", symbol)
	}
	p, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable price for %s: %w", symbol, err)
	}
	return p, nil
}

func (t *SpotTrader) freeBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	account, err := t.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get account info: %w", err)
	}
	for _, b := range account.Balances {
		if b.Asset != asset {
			continue
		}
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return decimal.Zero, fmt.Errorf("unparseable balance for %s: %w", asset, err)
		}
		return free, nil
	}
	return decimal.Zero, nil
}

func (t *SpotTrader) GetPositionValueUSD(ctx context.Context, token string) (float64, error) {
	symbol, baseAsset := t.symbolFor(token)
	free, err := t.freeBalance(ctx, baseAsset)
	if err != nil {
		return 0, err
	}
	if free.IsZero() {
		return 0, nil
	}
	price, err := t.price(ctx, symbol)
	if err != nil {
		return 0, err
	}
	value, _ := free.Mul(price).Float64()
	return value, nil
}

func (t *SpotTrader) EnterPosition(ctx context.Context, token string, usdAmount float64) error {
	if usdAmount <= 0 {
		return fmt.Errorf("entry amount must be positive, got %.2f", usdAmount)
	}
	symbol, _ := t.symbolFor(token)
	quote := decimal.NewFromFloat(usdAmount).Round(2)

	_, err := t.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(quote.String()).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("market buy %s for %s USDC failed: %w", symbol, quote, err)
	}
	log.Printf("✅ Market buy %s for %s USDC", symbol, quote)
	return nil
}

// ExitPosition liquidates the position in chunks capped at maxOrderSizeUSD so
// a large exit doesn't move the book in one order.
func (t *SpotTrader) ExitPosition(ctx context.Context, token string) error {
	symbol, baseAsset := t.symbolFor(token)

	remaining, err := t.freeBalance(ctx, baseAsset)
	if err != nil {
		return err
	}
	if remaining.IsZero() {
		return fmt.Errorf("no %s balance to liquidate", baseAsset)
	}
	price, err := t.price(ctx, symbol)
	if err != nil {
		return err
	}
	if price.IsZero() {
		return fmt.Errorf("zero price for %s", symbol)
	}

	maxChunkQty := decimal.NewFromFloat(t.maxOrderSizeUSD).Div(price).Truncate(quantityPrecision)
	if maxChunkQty.IsZero() {
		maxChunkQty = remaining
	}

	for remaining.GreaterThan(decimal.Zero) {
		chunk := decimal.Min(remaining, maxChunkQty).Truncate(quantityPrecision)
		if chunk.IsZero() {
			// Dust below lot precision, nothing more to sell.
			break
		}
		_, err := t.client.NewCreateOrderService().
			Symbol(symbol).
			Side(binance.SideTypeSell).
			Type(binance.OrderTypeMarket).
			Quantity(chunk.String()).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("market sell %s %s failed: %w", chunk, symbol, err)
		}
		log.Printf("✅ Market sell %s %s", chunk, symbol)
		remaining = remaining.Sub(chunk)
		if remaining.GreaterThan(decimal.Zero) {
			time.Sleep(time.Second)
		}
	}
	return nil
}
