package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type structuredRecommendation struct {
	Token      string `json:"token"`
	Action     string `json:"action"`
	Confidence *int   `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// ProcessUserInput turns a free-form user message into a structured
// recommendation row on the ledger. It returns the log entries produced while
// handling the input so callers can show just the new activity.
func (a *TradingAgent) ProcessUserInput(ctx context.Context, userInput string) []LogEntry {
	startIdx := a.logCount()

	a.logAs("user", userInput)
	a.log("🔄 Collecting token details")

	tokenInfo := a.collectTokenInfo(ctx)
	history := a.historyJSON()

	response, err := a.llm.Complete(ctx, "", feedbackPrompt(tokenInfo, history, userInput))
	if err != nil {
		a.log(fmt.Sprintf("❌ Error parsing structured recommendation: %v", err))
		a.log("ℹ️ Continuing without user recommendation.")
		return a.logsSince(startIdx)
	}

	a.log("🔍 Structured recommendation from user input:")
	a.log(response)

	var rec structuredRecommendation
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &rec); err != nil {
		a.log(fmt.Sprintf("❌ Error parsing structured recommendation: %v", err))
		a.log("ℹ️ Continuing without user recommendation.")
		return a.logsSince(startIdx)
	}

	if rec.Token == "" && rec.Action == "" && rec.Confidence == nil && rec.Reasoning == "" {
		a.log("ℹ️ No actionable recommendation extracted from user input.")
		return a.logsSince(startIdx)
	}
	if rec.Action == "" {
		a.log("ℹ️ No valid action found in recommendation.")
		return a.logsSince(startIdx)
	}

	if rec.Token == "" {
		rec.Token = "ALL"
	}
	confidence := 100
	if rec.Confidence != nil {
		confidence = *rec.Confidence
	}
	if rec.Reasoning == "" {
		rec.Reasoning = "User provided recommendation."
	}

	row := RecommendationRow{
		Token:      rec.Token,
		Action:     rec.Action,
		Confidence: confidence,
		Reasoning:  rec.Reasoning,
		Status:     StatusPending,
	}
	a.appendRow(row)
	a.log(fmt.Sprintf("🔄 Added structured user recommendation: %s %s (confidence %d)",
		row.Action, row.Token, row.Confidence))

	return a.logsSince(startIdx)
}

// collectTokenInfo renders a short market summary for each tracked token so
// the model can ground the user's request in current data. Collection
// failures degrade to an empty summary rather than blocking feedback.
func (a *TradingAgent) collectTokenInfo(ctx context.Context) string {
	tokens := a.resolveTokens(ctx)
	if len(tokens) == 0 {
		return "No token data available."
	}
	collected := a.data.CollectAll(ctx, tokens, a.log)
	if len(collected) == 0 {
		return "No token data available."
	}
	var b strings.Builder
	for _, token := range tokens {
		if d, ok := collected[token]; ok {
			b.WriteString(d.Summary())
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (a *TradingAgent) historyJSON() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	raw, err := json.Marshal(a.logs)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func (a *TradingAgent) logCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.logs)
}

func (a *TradingAgent) logsSince(start int) []LogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if start > len(a.logs) {
		start = len(a.logs)
	}
	out := make([]LogEntry, len(a.logs)-start)
	copy(out, a.logs[start:])
	return out
}
