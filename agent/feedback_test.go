package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessUserInputValidRecommendation(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"token": "TOKEN1", "action": "SELL", "confidence": 90, "reasoning": "user wants out"}`,
	}}
	a := newTestAgent(t, nil, llm, nil, nil)

	logs := a.ProcessUserInput(context.Background(), "please sell TOKEN1")

	rows := a.LedgerSnapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, "TOKEN1", rows[0].Token)
	assert.Equal(t, "SELL", rows[0].Action)
	assert.Equal(t, 90, rows[0].Confidence)
	assert.Equal(t, "user wants out", rows[0].Reasoning)
	assert.Equal(t, StatusPending, rows[0].Status)

	require.NotEmpty(t, logs)
	assert.Equal(t, "user", logs[0].Role)
	assert.Equal(t, "please sell TOKEN1", logs[0].Message)
}

func TestProcessUserInputDefaults(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"action": "SELL"}`}}
	a := newTestAgent(t, nil, llm, nil, nil)

	a.ProcessUserInput(context.Background(), "dump everything")

	rows := a.LedgerSnapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, "ALL", rows[0].Token)
	assert.Equal(t, 100, rows[0].Confidence)
	assert.Equal(t, "User provided recommendation.", rows[0].Reasoning)
}

func TestProcessUserInputEmptyObject(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{}`}}
	a := newTestAgent(t, nil, llm, nil, nil)

	logs := a.ProcessUserInput(context.Background(), "how is the weather")

	assert.Empty(t, a.LedgerSnapshot())
	assertHasMessage(t, logs, "ℹ️ No actionable recommendation extracted from user input.")
}

func TestProcessUserInputMissingAction(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"token": "TOKEN1", "reasoning": "interesting token"}`}}
	a := newTestAgent(t, nil, llm, nil, nil)

	logs := a.ProcessUserInput(context.Background(), "what about TOKEN1?")

	assert.Empty(t, a.LedgerSnapshot())
	assertHasMessage(t, logs, "ℹ️ No valid action found in recommendation.")
}

func TestProcessUserInputUnparseableResponse(t *testing.T) {
	llm := &fakeLLM{responses: []string{"I think you should sell, maybe?"}}
	a := newTestAgent(t, nil, llm, nil, nil)

	logs := a.ProcessUserInput(context.Background(), "thoughts?")

	assert.Empty(t, a.LedgerSnapshot())
	assertHasMessage(t, logs, "ℹ️ Continuing without user recommendation.")
}

func TestProcessUserInputModelError(t *testing.T) {
	llm := &fakeLLM{err: assert.AnError}
	a := newTestAgent(t, nil, llm, nil, nil)

	logs := a.ProcessUserInput(context.Background(), "thoughts?")

	assert.Empty(t, a.LedgerSnapshot())
	assertHasMessage(t, logs, "ℹ️ Continuing without user recommendation.")
}

func TestProcessUserInputZeroConfidenceIsKept(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"token": "TOKEN1", "action": "BUY", "confidence": 0}`}}
	a := newTestAgent(t, nil, llm, nil, nil)

	a.ProcessUserInput(context.Background(), "buy a tiny bit")

	rows := a.LedgerSnapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].Confidence)
}

func assertHasMessage(t *testing.T, logs []LogEntry, message string) {
	t.Helper()
	for _, entry := range logs {
		if entry.Message == message {
			return
		}
	}
	t.Errorf("log message %q not found in %d entries", message, len(logs))
}
