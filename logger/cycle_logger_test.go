package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleLoggerArchivesCycles(t *testing.T) {
	runsDir := t.TempDir()

	l, err := NewCycleLogger(runsDir, "1111111111")
	require.NoError(t, err)
	defer l.Close()

	start := time.Now().Add(-time.Minute)
	require.NoError(t, l.LogCycle(start, time.Now(), `[{"token":"TOKEN1"}]`, `{"TOKEN1":20}`, true, ""))
	require.NoError(t, l.LogCycle(start, time.Now(), `[]`, `{}`, false, "model unreachable"))

	assert.Equal(t, 2, l.CycleCount())

	records, err := l.GetAllRecords()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].CycleNumber)
	assert.Equal(t, 2, records[1].CycleNumber)
	assert.True(t, records[0].Success)
	assert.False(t, records[1].Success)
	assert.Equal(t, "model unreachable", records[1].ErrorMessage)

	latest, err := l.GetLatestRecord()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.CycleNumber)
	assert.Equal(t, "1111111111", latest.RunID)
}

func TestCycleLoggerEmptyArchive(t *testing.T) {
	l, err := NewCycleLogger(t.TempDir(), "1111111111")
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, 0, l.CycleCount())

	latest, err := l.GetLatestRecord()
	require.NoError(t, err)
	assert.Nil(t, latest)

	records, err := l.GetAllRecords()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCycleLoggerRestoresNumberingAcrossRestarts(t *testing.T) {
	runsDir := t.TempDir()

	l, err := NewCycleLogger(runsDir, "1111111111")
	require.NoError(t, err)
	require.NoError(t, l.LogCycle(time.Now(), time.Now(), "[]", "{}", true, ""))
	require.NoError(t, l.LogCycle(time.Now(), time.Now(), "[]", "{}", true, ""))
	require.NoError(t, l.Close())

	reopened, err := NewCycleLogger(runsDir, "1111111111")
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.CycleCount())
	require.NoError(t, reopened.LogCycle(time.Now(), time.Now(), "[]", "{}", true, ""))

	latest, err := reopened.GetLatestRecord()
	require.NoError(t, err)
	assert.Equal(t, 3, latest.CycleNumber)
}
