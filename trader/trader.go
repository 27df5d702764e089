package trader

import "context"

// Trader executes entries and exits on behalf of the trading agent. Amounts
// are USD notionals; tokens are the same identifiers the agent analyzes.
type Trader interface {
	// GetPositionValueUSD returns the current USD value of the open position
	// in token, zero if none.
	GetPositionValueUSD(ctx context.Context, token string) (float64, error)
	// EnterPosition buys token up to the given USD amount at market.
	EnterPosition(ctx context.Context, token string, usdAmount float64) error
	// ExitPosition liquidates the whole position in token.
	ExitPosition(ctx context.Context, token string) error
}
