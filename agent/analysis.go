package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Coffee-fun/auto-trading/market"
)

// ActionKind is the strict classification of a model action. Rows keep the
// raw action text; the kind is consulted only where behavior branches on it
// (exit handling), so unrecognized actions flow through without being
// rejected.
type ActionKind int

const (
	KindBuy ActionKind = iota
	KindSell
	KindNothing
	KindUnrecognized
)

// ClassifyAction maps an action string onto its kind.
func ClassifyAction(action string) ActionKind {
	switch strings.TrimSpace(action) {
	case "BUY":
		return KindBuy
	case "SELL":
		return KindSell
	case "NOTHING":
		return KindNothing
	default:
		return KindUnrecognized
	}
}

const (
	defaultConfidence = 50
	defaultReasoning  = "No detailed reasoning provided"
)

// parseRecommendation turns raw model text into a pending recommendation row.
// The first line is the action, taken verbatim. Confidence comes from the
// first line mentioning "confidence" (all digits on that line, default 50).
// Everything after the first line is the reasoning.
func parseRecommendation(token, response string) RecommendationRow {
	row := RecommendationRow{
		Token:      token,
		Action:     "NOTHING",
		Confidence: defaultConfidence,
		Reasoning:  defaultReasoning,
		Status:     StatusPending,
	}
	if response == "" {
		return row
	}

	lines := strings.Split(response, "\n")
	if action := strings.TrimSpace(lines[0]); action != "" {
		row.Action = action
	}

	for _, line := range lines {
		if !strings.Contains(strings.ToLower(line), "confidence") {
			continue
		}
		digits := keepDigits(line)
		if digits != "" {
			if value, err := strconv.Atoi(digits); err == nil {
				row.Confidence = value
			}
		}
		break
	}

	if len(lines) > 1 {
		row.Reasoning = strings.Join(lines[1:], "\n")
	}
	return row
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// analyzeToken runs one model analysis for a token and appends the resulting
// row to the ledger. Failures never abort the cycle: a model error still
// appends a NOTHING row with zero confidence. Returns the raw model response
// for logging, empty when the token was skipped or the call failed.
func (a *TradingAgent) analyzeToken(ctx context.Context, token string, data *market.Data) string {
	if a.cfg.IsExcluded(token) {
		a.log(fmt.Sprintf("⚠️ Skipping analysis for excluded token: %s", token))
		return ""
	}

	strategyContext := "No strategy signals available."
	if len(data.StrategySignals) > 0 {
		pretty, err := json.MarshalIndent(data.StrategySignals, "", "  ")
		if err == nil {
			strategyContext = fmt.Sprintf("Strategy Signals Available:\n%s", pretty)
		}
	}

	response, err := a.llm.Complete(ctx, "", tradingPrompt(strategyContext, data.Summary()))
	if err != nil {
		a.log(fmt.Sprintf("❌ Error in AI analysis: %v", err))
		a.appendRow(RecommendationRow{
			Token:      token,
			Action:     "NOTHING",
			Confidence: 0,
			Reasoning:  fmt.Sprintf("Error during analysis: %v", err),
			Status:     StatusPending,
		})
		return ""
	}

	a.appendRow(parseRecommendation(token, response))
	a.log(fmt.Sprintf("🎯 Coffee AI's AI Analysis Complete for %s!", shortToken(token)))
	return response
}

func shortToken(token string) string {
	if len(token) > 4 {
		return token[:4]
	}
	return token
}
