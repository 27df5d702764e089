package trader

import (
	"context"
	"fmt"
	"sync"
)

// PaperTrader simulates execution with an in-memory wallet. It is the default
// backend, so the whole loop runs without exchange credentials.
type PaperTrader struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]float64 // token -> USD value
}

// NewPaperTrader creates a paper trader holding initialCash in the cash token.
func NewPaperTrader(initialCash float64) *PaperTrader {
	return &PaperTrader{
		cash:      initialCash,
		positions: make(map[string]float64),
	}
}

func (pt *PaperTrader) GetPositionValueUSD(_ context.Context, token string) (float64, error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.positions[token], nil
}

func (pt *PaperTrader) EnterPosition(_ context.Context, token string, usdAmount float64) error {
	if usdAmount <= 0 {
		return fmt.Errorf("entry amount must be positive, got %.2f", usdAmount)
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if usdAmount > pt.cash {
		return fmt.Errorf("insufficient cash: need %.2f, have %.2f", usdAmount, pt.cash)
	}
	pt.cash -= usdAmount
	pt.positions[token] += usdAmount
	return nil
}

func (pt *PaperTrader) ExitPosition(_ context.Context, token string) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	value, ok := pt.positions[token]
	if !ok || value == 0 {
		return fmt.Errorf("no open position for %s", token)
	}
	pt.cash += value
	delete(pt.positions, token)
	return nil
}

// Cash returns the uninvested balance.
func (pt *PaperTrader) Cash() float64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.cash
}

// Holdings returns the tokens with open positions.
func (pt *PaperTrader) Holdings() []string {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	tokens := make([]string, 0, len(pt.positions))
	for token, value := range pt.positions {
		if value > 0 {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
