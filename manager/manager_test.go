package manager

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Coffee-fun/auto-trading/agent"
	"github.com/Coffee-fun/auto-trading/config"
)

func testFactory(t *testing.T, runsDir string) AgentFactory {
	t.Helper()
	cfg := &config.Config{
		CashTokenAddress:        config.USDCMint,
		PortfolioSizeUSD:        100,
		MaxPositionPct:          20,
		CashBufferPct:           30,
		SleepBetweenRunsMinutes: 60,
		RunsDir:                 runsDir,
		TempDataDir:             t.TempDir(),
	}
	return func(runID string) (*agent.TradingAgent, error) {
		return agent.New(runID, cfg, nil, nil, nil, nil)
	}
}

func TestGenerateRunIDSeedsLogFile(t *testing.T) {
	runsDir := t.TempDir()
	m := New(runsDir, testFactory(t, runsDir))

	runID, err := m.GenerateRunID()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{10}$`), runID)

	raw, err := os.ReadFile(filepath.Join(runsDir, runID+"_logs.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestGenerateRunIDsAreUnique(t *testing.T) {
	runsDir := t.TempDir()
	m := New(runsDir, testFactory(t, runsDir))

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		runID, err := m.GenerateRunID()
		require.NoError(t, err)
		assert.False(t, seen[runID])
		seen[runID] = true
	}
}

func TestReplaceActivatesNewRun(t *testing.T) {
	runsDir := t.TempDir()
	m := New(runsDir, testFactory(t, runsDir))

	assert.Nil(t, m.Active())

	first, err := m.Replace("1111111111")
	require.NoError(t, err)
	assert.Same(t, first, m.Active())

	second, err := m.Replace("2222222222")
	require.NoError(t, err)
	assert.Same(t, second, m.Active())
	assert.NotSame(t, first, second)
}

func TestReplaceSameRunKeepsAgent(t *testing.T) {
	runsDir := t.TempDir()
	m := New(runsDir, testFactory(t, runsDir))

	first, err := m.Replace("1111111111")
	require.NoError(t, err)

	again, err := m.Replace("1111111111")
	require.NoError(t, err)
	assert.Same(t, first, again)
}

func TestListRunIDs(t *testing.T) {
	runsDir := t.TempDir()
	m := New(runsDir, testFactory(t, runsDir))

	require.NoError(t, os.WriteFile(filepath.Join(runsDir, "1111111111_logs.json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(runsDir, "1111111111_recommendations_latest.csv"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(runsDir, "2222222222_logs.json"), []byte("[]"), 0o644))

	ids, err := m.ListRunIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"1111111111", "2222222222"}, ids)
}

func TestListRunIDsMissingDir(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "nope"), nil)
	ids, err := m.ListRunIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRunLogs(t *testing.T) {
	runsDir := t.TempDir()
	m := New(runsDir, nil)

	body := `[{"role":"system","time":1700000000.5,"message":"hello"}]`
	require.NoError(t, os.WriteFile(filepath.Join(runsDir, "1111111111_logs.json"), []byte(body), 0o644))

	logs, err := m.RunLogs("1111111111")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "hello", logs[0].Message)

	_, err = m.RunLogs("9999999999")
	assert.Error(t, err)
}
