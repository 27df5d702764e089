package agent

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recommendations_latest.csv")

	ledger := NewLedger()
	ledger.Append(RecommendationRow{
		Token:      "TOKEN1",
		Action:     "BUY",
		Confidence: 80,
		Reasoning:  "Momentum, volume, and \"vibes\"\nall look strong",
		Status:     StatusPending,
	})
	ledger.Append(RecommendationRow{
		Token:      "TOKEN2",
		Action:     "SELL",
		Confidence: 65,
		Reasoning:  "Losing steam",
		Status:     StatusExecuted,
	})

	require.NoError(t, ledger.SaveCSV(path))

	loaded, err := LoadLedgerCSV(path)
	require.NoError(t, err)
	assert.Equal(t, ledger.Snapshot(), loaded.Snapshot())
}

func TestLedgerSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recommendations_latest.csv")

	first := NewLedger()
	first.Append(RecommendationRow{Token: "OLD", Action: "BUY", Confidence: 50, Reasoning: "r", Status: StatusPending})
	require.NoError(t, first.SaveCSV(path))

	second := NewLedger()
	second.Append(RecommendationRow{Token: "NEW", Action: "SELL", Confidence: 70, Reasoning: "r", Status: StatusPending})
	require.NoError(t, second.SaveCSV(path))

	loaded, err := LoadLedgerCSV(path)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())
	assert.Equal(t, "NEW", loaded.Snapshot()[0].Token)
}

func TestLoadLedgerCSVMissingFile(t *testing.T) {
	loaded, err := LoadLedgerCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.NoError(t, err)
	assert.Zero(t, loaded.Len())
}

func TestLedgerUpdateStatus(t *testing.T) {
	ledger := NewLedger()
	ledger.Append(RecommendationRow{Token: "TOKEN1", Action: "SELL", Confidence: 70, Reasoning: "r", Status: StatusPending})

	require.NoError(t, ledger.UpdateStatus(0, StatusExecuted))
	assert.Equal(t, StatusExecuted, ledger.Snapshot()[0].Status)

	assert.Error(t, ledger.UpdateStatus(1, StatusFailed))
	assert.Error(t, ledger.UpdateStatus(-1, StatusFailed))
}

func TestLedgerSnapshotIsACopy(t *testing.T) {
	ledger := NewLedger()
	ledger.Append(RecommendationRow{Token: "TOKEN1", Action: "BUY", Confidence: 80, Reasoning: "r", Status: StatusPending})

	snap := ledger.Snapshot()
	snap[0].Status = StatusFailed

	assert.Equal(t, StatusPending, ledger.Snapshot()[0].Status)
}

func TestLedgerSummaryTable(t *testing.T) {
	ledger := NewLedger()
	ledger.Append(RecommendationRow{Token: "TOKEN1", Action: "BUY", Confidence: 80, Reasoning: "long reasoning", Status: StatusPending})

	table := ledger.SummaryTable()
	assert.Contains(t, table, "token action confidence status")
	assert.Contains(t, table, "TOKEN1 BUY 80 pending")
	assert.NotContains(t, table, "long reasoning")
}
