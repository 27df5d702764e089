package trader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperTraderEnterAndValue(t *testing.T) {
	pt := NewPaperTrader(100)
	ctx := context.Background()

	require.NoError(t, pt.EnterPosition(ctx, "TOKEN1", 40))

	value, err := pt.GetPositionValueUSD(ctx, "TOKEN1")
	require.NoError(t, err)
	assert.Equal(t, 40.0, value)
	assert.Equal(t, 60.0, pt.Cash())

	// topping up an existing position accumulates
	require.NoError(t, pt.EnterPosition(ctx, "TOKEN1", 10))
	value, _ = pt.GetPositionValueUSD(ctx, "TOKEN1")
	assert.Equal(t, 50.0, value)
}

func TestPaperTraderRejectsBadEntries(t *testing.T) {
	pt := NewPaperTrader(100)
	ctx := context.Background()

	assert.Error(t, pt.EnterPosition(ctx, "TOKEN1", 0))
	assert.Error(t, pt.EnterPosition(ctx, "TOKEN1", -5))
	assert.Error(t, pt.EnterPosition(ctx, "TOKEN1", 150))
	assert.Equal(t, 100.0, pt.Cash())
}

func TestPaperTraderExit(t *testing.T) {
	pt := NewPaperTrader(100)
	ctx := context.Background()

	require.NoError(t, pt.EnterPosition(ctx, "TOKEN1", 40))
	require.NoError(t, pt.ExitPosition(ctx, "TOKEN1"))

	value, err := pt.GetPositionValueUSD(ctx, "TOKEN1")
	require.NoError(t, err)
	assert.Zero(t, value)
	assert.Equal(t, 100.0, pt.Cash())

	assert.Error(t, pt.ExitPosition(ctx, "TOKEN1"))
}

func TestPaperTraderHoldings(t *testing.T) {
	pt := NewPaperTrader(100)
	ctx := context.Background()

	assert.Empty(t, pt.Holdings())

	require.NoError(t, pt.EnterPosition(ctx, "TOKEN1", 10))
	require.NoError(t, pt.EnterPosition(ctx, "TOKEN2", 10))
	assert.ElementsMatch(t, []string{"TOKEN1", "TOKEN2"}, pt.Holdings())
}

func TestPaperTraderFlatTokenHasZeroValue(t *testing.T) {
	pt := NewPaperTrader(100)

	value, err := pt.GetPositionValueUSD(context.Background(), "NEVER")
	require.NoError(t, err)
	assert.Zero(t, value)
}

func TestSpotTraderSymbolFor(t *testing.T) {
	st := NewSpotTrader("k", "s", map[string]string{
		"So11111111111111111111111111111111111111112": "SOLUSDC",
	}, 25)

	symbol, base := st.symbolFor("So11111111111111111111111111111111111111112")
	assert.Equal(t, "SOLUSDC", symbol)
	assert.Equal(t, "SOL", base)

	symbol, base = st.symbolFor("btc")
	assert.Equal(t, "BTCUSDC", symbol)
	assert.Equal(t, "BTC", base)
}
