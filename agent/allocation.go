package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// usdcAddressLiteral is the placeholder key the allocation prompt asks the
// model to use for cash; it gets rewritten to the configured cash token after
// parsing in case the model echoed the literal instead.
const usdcAddressLiteral = "USDC_ADDRESS"

// allocatePortfolio asks the model to split the portfolio across candidate
// tokens and validates the result. Returns nil when no usable allocation was
// produced; the cycle then simply runs without new entries.
func (a *TradingAgent) allocatePortfolio(ctx context.Context, candidateTokens []string) map[string]float64 {
	totalSize := a.cfg.PortfolioSizeUSD
	maxPositionSize := totalSize * a.cfg.MaxPositionPct / 100

	a.log("💰 Calculating optimal portfolio allocation...")
	a.log(fmt.Sprintf("🎯 Maximum position size: $%.2f (%.0f%% of $%.2f)",
		maxPositionSize, a.cfg.MaxPositionPct, totalSize))

	prompt := allocationPrompt(totalSize, maxPositionSize, a.cfg.MaxPositionPct,
		a.cfg.CashBufferPct, a.cfg.CashTokenAddress, candidateTokens)

	response, err := a.llm.Complete(ctx, "", prompt)
	if err != nil {
		a.log(fmt.Sprintf("❌ Error in portfolio allocation: %v", err))
		return nil
	}

	allocations := a.parseAllocationResponse(ctx, response)
	if allocations == nil {
		return nil
	}

	// The prompt instructs the model to key cash under the real mint, but it
	// regularly echoes the placeholder instead.
	if amount, ok := allocations[usdcAddressLiteral]; ok {
		delete(allocations, usdcAddressLiteral)
		allocations[a.cfg.CashTokenAddress] = amount
	}

	var totalAllocated float64
	for _, amount := range allocations {
		totalAllocated += amount
	}
	if totalAllocated > totalSize {
		a.log(fmt.Sprintf("❌ Total allocation $%.2f exceeds portfolio size $%.2f", totalAllocated, totalSize))
		return nil
	}

	a.log("📊 Portfolio Allocation:")
	for _, token := range sortedKeys(allocations) {
		display := token
		if token == a.cfg.CashTokenAddress {
			display = "USDC"
		}
		a.log(fmt.Sprintf("  • %s: $%.2f", display, allocations[token]))
	}

	return allocations
}

// parseAllocationResponse extracts the token->USD map from raw model text.
// When the first parse fails it asks the model once to repair its own output
// and runs the identical extraction on the second response.
func (a *TradingAgent) parseAllocationResponse(ctx context.Context, response string) map[string]float64 {
	allocations, err := extractAllocations(response)
	if err == nil {
		return allocations
	}
	a.log(fmt.Sprintf("❌ Error parsing allocation response: %v", err))

	fixed, err := a.llm.Complete(ctx, "", allocationRepairPrompt(response))
	if err != nil {
		a.log(fmt.Sprintf("❌ Error parsing fixed allocation response again: %v", err))
		return nil
	}
	a.log("🔍 Fixed response received:")
	a.log(fixed)

	allocations, err = extractAllocations(fixed)
	if err != nil {
		a.log(fmt.Sprintf("❌ Error parsing fixed allocation response again: %v", err))
		return nil
	}

	a.log("📊 Parsed fixed allocations:")
	for _, token := range sortedKeys(allocations) {
		a.log(fmt.Sprintf("  • %s: $%.2f", token, allocations[token]))
	}
	return allocations
}

// extractAllocations runs the exact clean-and-parse algorithm over a model
// response: take the substring between the first '{' and the last '}', strip
// newlines, 4-space runs, tabs, escaped-newline literals and spaces, then
// JSON-decode and require every value to be a non-negative number.
func extractAllocations(response string) (map[string]float64, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	jsonStr := response[start : end+1]
	jsonStr = strings.ReplaceAll(jsonStr, "\n", "")
	jsonStr = strings.ReplaceAll(jsonStr, "    ", "")
	jsonStr = strings.ReplaceAll(jsonStr, "\t", "")
	jsonStr = strings.ReplaceAll(jsonStr, `\n`, "")
	jsonStr = strings.ReplaceAll(jsonStr, " ", "")
	jsonStr = strings.TrimSpace(jsonStr)

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse allocation JSON: %w", err)
	}

	allocations := make(map[string]float64, len(raw))
	for token, value := range raw {
		amount, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("invalid amount type for %s: %T", token, value)
		}
		if amount < 0 {
			return nil, fmt.Errorf("negative allocation for %s: %v", token, amount)
		}
		allocations[token] = amount
	}
	return allocations, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
